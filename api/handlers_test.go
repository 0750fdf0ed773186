package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chainflow/account"
	"chainflow/auth"
	"chainflow/dispatch"
)

type stubAccountService struct {
	created   account.Account
	createErr error
	got       account.Account
	getErr    error
}

func (s *stubAccountService) CreateAccount(_ context.Context, _ account.CreateAccountRequest) (account.Account, error) {
	return s.created, s.createErr
}

func (s *stubAccountService) GetAccount(_ context.Context, _ string) (account.Account, error) {
	return s.got, s.getErr
}

type stubStats struct {
	snapshot dispatch.Snapshot
}

func (s *stubStats) Stats() dispatch.Snapshot { return s.snapshot }

type stubTokens struct {
	token     string
	loginErr  error
	verifyErr error
}

func (s *stubTokens) Login(string) (string, error) { return s.token, s.loginErr }

func (s *stubTokens) VerifyToken(string) (string, error) {
	if s.verifyErr != nil {
		return "", s.verifyErr
	}
	return "operator", nil
}

func pendingAccount() account.Account {
	now := time.Now().UTC()
	return account.Account{
		ID:        "acct-1",
		UserID:    "u1",
		Status:    account.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestCreateAccountHandler_Created(t *testing.T) {
	h := NewHandler(&stubAccountService{created: pendingAccount()}, &stubStats{}, &stubTokens{})
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/api/accounts", strings.NewReader(`{"userId":"u1"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var body accountResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.UserID != "u1" || body.Status != "pending" {
		t.Fatalf("unexpected body %+v", body)
	}
	if body.WalletAddress != nil {
		t.Fatal("wallet must be absent on a pending account")
	}
}

func TestCreateAccountHandler_Duplicate(t *testing.T) {
	h := NewHandler(&stubAccountService{createErr: account.ErrDuplicateUserID}, &stubStats{}, &stubTokens{})
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/api/accounts", strings.NewReader(`{"userId":"u1"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestCreateAccountHandler_InvalidUserID(t *testing.T) {
	h := NewHandler(&stubAccountService{createErr: account.ErrInvalidUserID}, &stubStats{}, &stubTokens{})
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/api/accounts", strings.NewReader(`{"userId":"  "}`))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreateAccountHandler_BadBody(t *testing.T) {
	h := NewHandler(&stubAccountService{}, &stubStats{}, &stubTokens{})
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/api/accounts", strings.NewReader(`{`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetAccountHandler_NotFound(t *testing.T) {
	h := NewHandler(&stubAccountService{getErr: account.ErrAccountNotFound}, &stubStats{}, &stubTokens{})
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/accounts/ghost", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestLoginHandler_InvalidKey(t *testing.T) {
	h := NewHandler(&stubAccountService{}, &stubStats{}, &stubTokens{loginErr: auth.ErrInvalidKey})
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"key":"nope"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestStatsHandler_RequiresToken(t *testing.T) {
	stats := &stubStats{snapshot: dispatch.Snapshot{ActiveWorkers: 3, QueueDepth: 7, CompletedTasks: 42}}
	h := NewHandler(&stubAccountService{}, stats, &stubTokens{})
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil)
	req.Header.Set("Authorization", "Bearer any")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rec.Code)
	}

	var snap dispatch.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap != stats.snapshot {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestStatsHandler_RejectsBadToken(t *testing.T) {
	h := NewHandler(&stubAccountService{}, &stubStats{}, &stubTokens{verifyErr: auth.ErrInvalidToken})
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil)
	req.Header.Set("Authorization", "Bearer junk")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

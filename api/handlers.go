package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"chainflow/account"
	"chainflow/auth"
	"chainflow/dispatch"
)

// AccountService is the account surface the handlers need.
type AccountService interface {
	CreateAccount(ctx context.Context, req account.CreateAccountRequest) (account.Account, error)
	GetAccount(ctx context.Context, userID string) (account.Account, error)
}

// StatsSource reports dispatcher activity.
type StatsSource interface {
	Stats() dispatch.Snapshot
}

// TokenService issues and verifies operator tokens.
type TokenService interface {
	Login(key string) (string, error)
	VerifyToken(token string) (string, error)
}

// Handler holds the dependencies for all HTTP handlers.
type Handler struct {
	accounts AccountService
	stats    StatsSource
	tokens   TokenService
}

// NewHandler creates the handler set.
func NewHandler(accounts AccountService, stats StatsSource, tokens TokenService) *Handler {
	return &Handler{accounts: accounts, stats: stats, tokens: tokens}
}

type accountResponse struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	DisplayName   *string   `json:"displayName,omitempty"`
	WalletAddress *string   `json:"walletAddress,omitempty"`
	ExternalTxRef *string   `json:"externalTxRef,omitempty"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func toAccountResponse(acct account.Account) accountResponse {
	return accountResponse{
		ID:            acct.ID,
		UserID:        acct.UserID,
		DisplayName:   acct.DisplayName,
		WalletAddress: acct.WalletAddress,
		ExternalTxRef: acct.ExternalTxRef,
		Status:        string(acct.Status),
		CreatedAt:     acct.CreatedAt,
		UpdatedAt:     acct.UpdatedAt,
	}
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var req account.CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	acct, err := h.accounts.CreateAccount(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, account.ErrDuplicateUserID):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, account.ErrInvalidUserID):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			log.Printf("[api] create account: %v", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusCreated, toAccountResponse(acct))
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	acct, err := h.accounts.GetAccount(r.Context(), userID)
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		log.Printf("[api] get account: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, toAccountResponse(acct))
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := h.tokens.Login(req.Key)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidKey) {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		log.Printf("[api] login: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *Handler) dispatcherStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.stats.Stats())
}

// requireOperator guards the admin surface with a bearer token.
func (h *Handler) requireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if _, err := h.tokens.VerifyToken(token); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

package account

import (
	"context"
	"errors"
	"testing"

	"chainflow/registrar"
)

func seedPending(t *testing.T, repo *fakeRepository, userID string) Account {
	t.Helper()
	acct, err := repo.CreateAccount(context.Background(), nil, CreateAccountParams{UserID: userID})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return acct
}

func TestReconciler_SuccessActivates(t *testing.T) {
	repo := newFakeRepository()
	seedPending(t, repo, "u1")
	rec := NewReconciler(repo)

	err := rec.Apply(context.Background(), "u1", registrar.Result{WalletAddress: "0xabc", TxRef: "0x123"}, nil)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	acct, _ := repo.GetByUserID(context.Background(), "u1")
	if acct.Status != StatusActive {
		t.Fatalf("expected active, got %s", acct.Status)
	}
	if acct.WalletAddress == nil || *acct.WalletAddress != "0xabc" {
		t.Fatalf("expected wallet 0xabc, got %v", acct.WalletAddress)
	}
}

// Second application of a success outcome is rejected, and the record keeps
// the first outcome.
func TestReconciler_SecondSuccessRejected(t *testing.T) {
	repo := newFakeRepository()
	seedPending(t, repo, "u1")
	rec := NewReconciler(repo)

	if err := rec.Apply(context.Background(), "u1", registrar.Result{WalletAddress: "0xabc"}, nil); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	err := rec.Apply(context.Background(), "u1", registrar.Result{WalletAddress: "0xOTHER"}, nil)
	if !errors.Is(err, ErrAlreadyReconciled) {
		t.Fatalf("expected ErrAlreadyReconciled, got %v", err)
	}

	acct, _ := repo.GetByUserID(context.Background(), "u1")
	if *acct.WalletAddress != "0xabc" {
		t.Fatalf("record changed on second application: %v", *acct.WalletAddress)
	}
}

func TestReconciler_RecordVanished(t *testing.T) {
	repo := newFakeRepository()
	rec := NewReconciler(repo)

	err := rec.Apply(context.Background(), "ghost", registrar.Result{WalletAddress: "0xabc"}, nil)
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestReconciler_TransientLeavesPending(t *testing.T) {
	repo := newFakeRepository()
	seedPending(t, repo, "u1")
	rec := NewReconciler(repo)

	callErr := &registrar.CallError{Reason: "attempts exhausted: status 503", Transient: true}
	if err := rec.Apply(context.Background(), "u1", registrar.Result{}, callErr); err != nil {
		t.Fatalf("apply: %v", err)
	}

	acct, _ := repo.GetByUserID(context.Background(), "u1")
	if acct.Status != StatusPending {
		t.Fatalf("expected pending, got %s", acct.Status)
	}
}

func TestReconciler_PermanentMarksFailed(t *testing.T) {
	repo := newFakeRepository()
	seedPending(t, repo, "u1")
	rec := NewReconciler(repo)

	callErr := &registrar.CallError{Reason: "status 400", Transient: false}
	if err := rec.Apply(context.Background(), "u1", registrar.Result{}, callErr); err != nil {
		t.Fatalf("apply: %v", err)
	}

	acct, _ := repo.GetByUserID(context.Background(), "u1")
	if acct.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", acct.Status)
	}
	if acct.WalletAddress != nil {
		t.Fatal("failed account must keep wallet unset")
	}
}

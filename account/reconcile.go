package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chainflow/registrar"
)

// ErrAlreadyReconciled signals that the account already left the pending
// state, so a second outcome application was rejected.
var ErrAlreadyReconciled = errors.New("account: already reconciled")

// defaultReconcileTimeout bounds the reconciling write. The update is a
// single-row indexed UPDATE expected to finish in milliseconds; hitting this
// timeout means the store itself is in trouble.
const defaultReconcileTimeout = 5 * time.Second

// Reconciler applies a registration outcome to the account record in its own
// short unit of work, independent of any transaction open elsewhere.
type Reconciler struct {
	repo    Repository
	timeout time.Duration
}

// NewReconciler creates a reconciler with the default write timeout.
func NewReconciler(repo Repository) *Reconciler {
	return &Reconciler{repo: repo, timeout: defaultReconcileTimeout}
}

// Apply records the outcome of a registration call for userID.
//
// On success it atomically sets the wallet fields and flips the account to
// active; zero matched rows distinguish a vanished record
// (ErrAccountNotFound) from one already reconciled (ErrAlreadyReconciled).
// A permanent failure marks the account failed. A transient failure leaves
// the record pending and returns nil: the status field stays the durable
// signal for a later retry.
func (r *Reconciler) Apply(ctx context.Context, userID string, result registrar.Result, callErr error) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if callErr == nil {
		return r.applySuccess(ctx, userID, result)
	}
	if registrar.IsTransient(callErr) {
		return nil
	}
	return r.applyPermanentFailure(ctx, userID)
}

func (r *Reconciler) applySuccess(ctx context.Context, userID string, result registrar.Result) error {
	rows, err := r.repo.ActivateAccount(ctx, userID, result.WalletAddress, result.TxRef)
	if err != nil {
		return fmt.Errorf("account: reconcile success: %w", err)
	}
	if rows == 0 {
		return r.classifyZeroRows(ctx, userID)
	}
	return nil
}

func (r *Reconciler) applyPermanentFailure(ctx context.Context, userID string) error {
	rows, err := r.repo.FailAccount(ctx, userID)
	if err != nil {
		return fmt.Errorf("account: reconcile failure: %w", err)
	}
	if rows == 0 {
		return r.classifyZeroRows(ctx, userID)
	}
	return nil
}

func (r *Reconciler) classifyZeroRows(ctx context.Context, userID string) error {
	if _, err := r.repo.GetByUserID(ctx, userID); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return err
	}
	return ErrAlreadyReconciled
}

package account

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/jackc/pgx/v5"

	"chainflow/dispatch"
	"chainflow/registrar"
)

// ErrInvalidUserID signals that the request carried no usable user id.
var ErrInvalidUserID = errors.New("account: user id is required")

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Registrar provisions a wallet for an account on the external chain. The
// call may take seconds; the service only ever invokes it from a deferred
// task, after the creating transaction has committed and released its
// connection.
type Registrar interface {
	Register(ctx context.Context, userID string, displayName *string) (registrar.Result, error)
}

// EventPublisher emits account lifecycle events for downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, body any) error
}

// Service orchestrates account creation: a short insert transaction, then a
// commit-deferred registration task, then reconciliation of the outcome in
// its own unit of work. The caller only ever observes the pending account;
// everything after the commit is invisible to the original request.
type Service struct {
	pool       TxBeginner
	repo       Repository
	workers    *dispatch.Pool
	registrar  Registrar
	reconciler *Reconciler
	events     EventPublisher
}

// NewService creates the account service.
func NewService(pool TxBeginner, repo Repository, workers *dispatch.Pool, reg Registrar, reconciler *Reconciler, events EventPublisher) *Service {
	return &Service{
		pool:       pool,
		repo:       repo,
		workers:    workers,
		registrar:  reg,
		reconciler: reconciler,
		events:     events,
	}
}

// CreateAccount persists a pending account and schedules the external
// registration to run once the insert has durably committed. If the commit
// aborts, the registration never runs.
func (s *Service) CreateAccount(ctx context.Context, req CreateAccountRequest) (Account, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return Account{}, ErrInvalidUserID
	}

	exists, err := s.repo.UserIDExists(ctx, userID)
	if err != nil {
		return Account{}, err
	}
	if exists {
		return Account{}, ErrDuplicateUserID
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Account{}, fmt.Errorf("account: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	scope := s.workers.NewScope()
	defer scope.Abort()

	acct, err := s.repo.CreateAccount(ctx, tx, CreateAccountParams{
		UserID:      userID,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		return Account{}, err
	}

	// Registered before the commit so the happens-before edge is explicit:
	// the task is released only by scope.Commit below.
	displayName := acct.DisplayName
	s.workers.AfterCommit(scope, func() {
		s.registerInBackground(acct.UserID, displayName)
	})

	if err := tx.Commit(ctx); err != nil {
		return Account{}, fmt.Errorf("account: commit tx: %w", err)
	}
	scope.Commit()

	log.Printf("[account] created userId=%s id=%s", acct.UserID, acct.ID)
	return acct, nil
}

// GetAccount retrieves an account by user id.
func (s *Service) GetAccount(ctx context.Context, userID string) (Account, error) {
	return s.repo.GetByUserID(ctx, userID)
}

// registerInBackground runs on a dispatch worker (or, under saturation, on
// the submitting goroutine after its commit has completed). It holds no
// database connection across the registrar call.
func (s *Service) registerInBackground(userID string, displayName *string) {
	ctx := context.Background()
	log.Printf("[bg:register] starting registration for %s", userID)

	result, callErr := s.registrar.Register(ctx, userID, displayName)

	if err := s.reconciler.Apply(ctx, userID, result, callErr); err != nil {
		log.Printf("[bg:register] reconcile %s: %v", userID, err)
		return
	}

	switch {
	case callErr == nil:
		s.publish(ctx, "account.activated", activatedEvent{
			UserID:        userID,
			WalletAddress: result.WalletAddress,
			ExternalTxRef: result.TxRef,
		})
	case !registrar.IsTransient(callErr):
		s.publish(ctx, "account.registration_failed", failedEvent{
			UserID: userID,
			Reason: callErr.Error(),
		})
	default:
		// Transient exhaustion: record stays pending for a later
		// operator-driven retry, nothing to announce.
		log.Printf("[bg:register] %s left pending: %v", userID, callErr)
	}
}

func (s *Service) publish(ctx context.Context, routingKey string, body any) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, routingKey, body); err != nil {
		log.Printf("[account] publish %s: %v", routingKey, err)
	}
}

type activatedEvent struct {
	UserID        string `json:"userId"`
	WalletAddress string `json:"walletAddress"`
	ExternalTxRef string `json:"externalTxRef,omitempty"`
}

type failedEvent struct {
	UserID string `json:"userId"`
	Reason string `json:"reason"`
}

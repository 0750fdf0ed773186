package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrDuplicateUserID signals that the user id is already registered.
	ErrDuplicateUserID = errors.New("account: user id already exists")
	// ErrAccountNotFound signals that the account does not exist.
	ErrAccountNotFound = errors.New("account: not found")
)

// Repository handles data access for accounts. Creation runs inside the
// caller's transaction; the reconciling updates run directly on the pool so
// they form their own short unit of work.
type Repository interface {
	UserIDExists(ctx context.Context, userID string) (bool, error)
	CreateAccount(ctx context.Context, tx pgx.Tx, params CreateAccountParams) (Account, error)
	GetByUserID(ctx context.Context, userID string) (Account, error)
	ActivateAccount(ctx context.Context, userID, walletAddress, externalTxRef string) (int64, error)
	FailAccount(ctx context.Context, userID string) (int64, error)
}

// CreateAccountParams contains write parameters for creating accounts.
type CreateAccountParams struct {
	UserID      string
	DisplayName *string
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed account repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const accountColumns = `id, user_id, display_name, wallet_address, external_tx_ref, status, created_at, updated_at`

// UserIDExists reports whether an account already uses the user id.
func (r *PGRepository) UserIDExists(ctx context.Context, userID string) (bool, error) {
	const existsSQL = `SELECT EXISTS (SELECT 1 FROM accounts WHERE user_id = $1)`

	var exists bool
	if err := r.pool.QueryRow(ctx, existsSQL, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("account: check user id: %w", err)
	}
	return exists, nil
}

// CreateAccount inserts a pending account inside the caller's transaction.
func (r *PGRepository) CreateAccount(ctx context.Context, tx pgx.Tx, params CreateAccountParams) (Account, error) {
	const insertSQL = `
		INSERT INTO accounts (user_id, display_name, status)
		VALUES ($1, $2, 'pending')
		RETURNING ` + accountColumns

	acct, err := scanAccount(tx.QueryRow(ctx, insertSQL, params.UserID, params.DisplayName))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Account{}, ErrDuplicateUserID
		}
		return Account{}, fmt.Errorf("account: create: %w", err)
	}

	return acct, nil
}

// GetByUserID retrieves an account by user id.
func (r *PGRepository) GetByUserID(ctx context.Context, userID string) (Account, error) {
	const selectSQL = `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE user_id = $1
	`

	acct, err := scanAccount(r.pool.QueryRow(ctx, selectSQL, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, fmt.Errorf("account: get by user id: %w", err)
	}

	return acct, nil
}

// ActivateAccount sets the wallet fields and flips the account to active.
// Only pending rows match, so a second application affects zero rows and the
// first outcome stands. Returns the number of rows updated.
func (r *PGRepository) ActivateAccount(ctx context.Context, userID, walletAddress, externalTxRef string) (int64, error) {
	const updateSQL = `
		UPDATE accounts
		SET wallet_address = $2, external_tx_ref = NULLIF($3, ''), status = 'active', updated_at = now()
		WHERE user_id = $1 AND status = 'pending'
	`

	tag, err := r.pool.Exec(ctx, updateSQL, userID, walletAddress, externalTxRef)
	if err != nil {
		return 0, fmt.Errorf("account: activate: %w", err)
	}
	return tag.RowsAffected(), nil
}

// FailAccount flips a pending account to failed, leaving the wallet fields
// unset. Returns the number of rows updated.
func (r *PGRepository) FailAccount(ctx context.Context, userID string) (int64, error) {
	const updateSQL = `
		UPDATE accounts
		SET status = 'failed', updated_at = now()
		WHERE user_id = $1 AND status = 'pending'
	`

	tag, err := r.pool.Exec(ctx, updateSQL, userID)
	if err != nil {
		return 0, fmt.Errorf("account: mark failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var (
		acct        Account
		displayName *string
		wallet      *string
		txRef       *string
	)
	err := row.Scan(
		&acct.ID,
		&acct.UserID,
		&displayName,
		&wallet,
		&txRef,
		&acct.Status,
		&acct.CreatedAt,
		&acct.UpdatedAt,
	)
	if err != nil {
		return Account{}, err
	}

	acct.DisplayName = displayName
	acct.WalletAddress = wallet
	acct.ExternalTxRef = txRef
	return acct, nil
}

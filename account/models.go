package account

import "time"

// Status tracks where an account sits in the registration lifecycle.
// pending is the only initial state; active and failed are terminal.
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusFailed  Status = "failed"
)

// Account is the domain representation of a registered account. It mirrors
// the accounts table and carries no JSON annotations so it can be reused by
// different presentation layers. WalletAddress and ExternalTxRef are set
// together when, and only when, the account becomes active.
type Account struct {
	ID            string
	UserID        string
	DisplayName   *string
	WalletAddress *string
	ExternalTxRef *string
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CreateAccountRequest contains account creation data supplied by callers.
type CreateAccountRequest struct {
	UserID      string  `json:"userId"`
	DisplayName *string `json:"displayName"`
}

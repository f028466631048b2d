package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup matches no account.
var ErrNotFound = errors.New("account not found")

// Account is one persisted chat identity. IDs are assigned by the store at
// insert time and never reused. APIKeySealed holds the secretbox-sealed
// credential; callers decrypt it through the secret package.
type Account struct {
	ID           int64
	ServerURL    string
	Email        string
	APIKeySealed string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Store defines persistence operations used by the account registry.
type Store interface {
	Close() error
	Migrate(ctx context.Context) error

	ListAccounts(ctx context.Context) ([]Account, error)
	AccountByID(ctx context.Context, id int64) (Account, error)
	InsertAccount(ctx context.Context, account *Account) error
}

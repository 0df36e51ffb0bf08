package interfaces

import (
	"context"

	"github.com/m-mizutani/reposync/pkg/domain/model"
	"github.com/m-mizutani/reposync/pkg/domain/types"
)

// Ledger is the durable record of synchronization attempts
type Ledger interface {
	// Record persists entry; it becomes the current state of its key
	Record(ctx context.Context, entry *model.LedgerEntry) error

	// Get returns the current entry of key, or nil if the key was never recorded
	Get(ctx context.Context, key model.LedgerKey) (*model.LedgerEntry, error)

	// StatusOf returns the status of key, types.StatusUnknown if never recorded
	StatusOf(ctx context.Context, key model.LedgerKey) (types.SyncStatus, error)

	// Entries returns the current entry of every key, ordered by kind and number
	Entries(ctx context.Context) ([]*model.LedgerEntry, error)

	Close() error
}

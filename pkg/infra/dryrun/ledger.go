package dryrun

import (
	"context"
	"sync"

	"github.com/m-mizutani/reposync/pkg/domain/interfaces"
	"github.com/m-mizutani/reposync/pkg/domain/model"
	"github.com/m-mizutani/reposync/pkg/domain/types"
)

// Ledger reads through to the wrapped ledger and keeps records of the
// rehearsal in memory, so a dry run never marks anything synced.
type Ledger struct {
	base interfaces.Ledger

	mu      sync.Mutex
	overlay map[model.LedgerKey]*model.LedgerEntry
}

var _ interfaces.Ledger = (*Ledger)(nil)

// NewLedger wraps base
func NewLedger(base interfaces.Ledger) *Ledger {
	return &Ledger{
		base:    base,
		overlay: make(map[model.LedgerKey]*model.LedgerEntry),
	}
}

func (x *Ledger) Record(ctx context.Context, entry *model.LedgerEntry) error {
	copied := *entry
	x.mu.Lock()
	defer x.mu.Unlock()
	x.overlay[entry.Key()] = &copied
	return nil
}

func (x *Ledger) Get(ctx context.Context, key model.LedgerKey) (*model.LedgerEntry, error) {
	x.mu.Lock()
	entry, ok := x.overlay[key]
	x.mu.Unlock()
	if ok {
		copied := *entry
		return &copied, nil
	}
	return x.base.Get(ctx, key)
}

func (x *Ledger) StatusOf(ctx context.Context, key model.LedgerKey) (types.SyncStatus, error) {
	entry, err := x.Get(ctx, key)
	if err != nil {
		return types.StatusUnknown, err
	}
	if entry == nil {
		return types.StatusUnknown, nil
	}
	return entry.Status, nil
}

// Entries returns the wrapped ledger's entries; rehearsed records are not included
func (x *Ledger) Entries(ctx context.Context) ([]*model.LedgerEntry, error) {
	return x.base.Entries(ctx)
}

func (x *Ledger) Close() error {
	return x.base.Close()
}

package model

import (
	"fmt"
	"time"

	"github.com/m-mizutani/reposync/pkg/domain/types"
)

// LedgerEntry is one durable record of a synchronization attempt. The last
// entry recorded for a (Kind, SourceNumber) key is authoritative.
type LedgerEntry struct {
	Kind              types.ObjectKind `json:"kind" firestore:"kind"`
	SourceNumber      int64            `json:"source_number" firestore:"source_number"`
	DestinationNumber int64            `json:"destination_number,omitempty" firestore:"destination_number"`
	Status            types.SyncStatus `json:"status" firestore:"status"`
	LastAttemptAt     time.Time        `json:"last_attempt_at" firestore:"last_attempt_at"`
	RunID             string           `json:"run_id,omitempty" firestore:"run_id"`
	Message           string           `json:"message,omitempty" firestore:"message"`
}

// LedgerKey identifies a ledger entry
type LedgerKey struct {
	Kind   types.ObjectKind
	Number int64
}

// Key returns the entry key
func (e *LedgerEntry) Key() LedgerKey {
	return LedgerKey{Kind: e.Kind, Number: e.SourceNumber}
}

func (k LedgerKey) String() string {
	return fmt.Sprintf("%s#%d", k.Kind, k.Number)
}

// IsAligned reports whether a synced numbered entry kept its number
func (e *LedgerEntry) IsAligned() bool {
	return !e.Kind.SharesNumbering() || e.DestinationNumber == e.SourceNumber
}

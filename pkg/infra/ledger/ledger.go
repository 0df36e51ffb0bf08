// Package ledger provides durable backends for interfaces.Ledger.
package ledger

import (
	"cmp"
	"slices"

	"github.com/m-mizutani/reposync/pkg/domain/model"
)

// sortEntries puts the shared issue/pull request namespace first, then
// releases, each by source number.
func sortEntries(entries []*model.LedgerEntry) {
	group := func(e *model.LedgerEntry) int {
		if e.Kind.SharesNumbering() {
			return 0
		}
		return 1
	}
	slices.SortFunc(entries, func(a, b *model.LedgerEntry) int {
		if c := cmp.Compare(group(a), group(b)); c != 0 {
			return c
		}
		if c := cmp.Compare(a.SourceNumber, b.SourceNumber); c != 0 {
			return c
		}
		return cmp.Compare(a.Kind, b.Kind)
	})
}

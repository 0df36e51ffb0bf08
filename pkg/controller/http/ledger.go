package http

import (
	"encoding/json"
	"net/http"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/reposync/pkg/domain/interfaces"
	"github.com/m-mizutani/reposync/pkg/domain/model"
	"github.com/m-mizutani/reposync/pkg/domain/types"
)

// ledgerHandler lists ledger entries, optionally filtered by ?status=
func ledgerHandler(ledger interfaces.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var filter types.SyncStatus
		if s := r.URL.Query().Get("status"); s != "" {
			status, ok := types.ParseSyncStatus(s)
			if !ok {
				writeError(w, r, goerr.New("invalid status filter", goerr.V("status", s)), http.StatusBadRequest)
				return
			}
			filter = status
		}

		entries, err := ledger.Entries(ctx)
		if err != nil {
			ctxlog.From(ctx).Error("Failed to read ledger", "error", err)
			writeError(w, r, err, http.StatusInternalServerError)
			return
		}

		result := make([]*model.LedgerEntry, 0, len(entries))
		for _, entry := range entries {
			if filter == "" || entry.Status == filter {
				result = append(result, entry)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(map[string]any{
			"entries": result,
		}); err != nil {
			ctxlog.From(ctx).Error("Failed to encode ledger response", "error", err)
		}
	}
}

package ledger

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/reposync/pkg/domain/model"
	"github.com/m-mizutani/reposync/pkg/domain/types"
)

// maxLineSize bounds a single JSONL record. Messages carry API error texts,
// which stay far below this.
const maxLineSize = 1024 * 1024

// File is an append-only JSONL ledger. Each Record appends one line and
// syncs it to disk; opening replays the file and keeps the last line per key.
// Lines carry the scope they were written under, so several repository
// pairs can share one file without seeing each other's progress.
type File struct {
	path    string
	scope   string
	mu      sync.Mutex
	f       *os.File
	current map[model.LedgerKey]*model.LedgerEntry
}

type fileRecord struct {
	Scope string `json:"scope,omitempty"`
	model.LedgerEntry
}

// FileOption configures File
type FileOption func(*File)

// WithScope sets the scope, usually "<source>..<destination>"
func WithScope(scope string) FileOption {
	return func(x *File) {
		x.scope = scope
	}
}

// OpenFile opens or creates the ledger at path
func OpenFile(path string, opts ...FileOption) (*File, error) {
	x := &File{path: path}
	for _, opt := range opts {
		opt(x)
	}

	current, err := replay(path, x.scope)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open ledger file", goerr.V("path", path))
	}

	x.f = f
	x.current = current
	return x, nil
}

func replay(path, scope string) (map[model.LedgerKey]*model.LedgerEntry, error) {
	current := make(map[model.LedgerKey]*model.LedgerEntry)

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return current, nil
		}
		return nil, goerr.Wrap(err, "failed to read ledger file", goerr.V("path", path))
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var record fileRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			// A crash during append can leave a torn last line
			if !hasMore(scanner) {
				break
			}
			return nil, goerr.Wrap(err, "corrupted ledger record", goerr.V("path", path), goerr.V("line", line))
		}
		if record.Scope != scope {
			continue
		}
		entry := record.LedgerEntry
		current[entry.Key()] = &entry
	}
	if err := scanner.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to scan ledger file", goerr.V("path", path))
	}

	return current, nil
}

// hasMore advances the scanner and reports whether a non-empty line follows
func hasMore(scanner *bufio.Scanner) bool {
	for scanner.Scan() {
		if len(scanner.Bytes()) > 0 {
			return true
		}
	}
	return false
}

// Record appends entry and makes it the current state of its key
func (x *File) Record(ctx context.Context, entry *model.LedgerEntry) error {
	raw, err := json.Marshal(&fileRecord{Scope: x.scope, LedgerEntry: *entry})
	if err != nil {
		return goerr.Wrap(err, "failed to marshal ledger entry", goerr.V("key", entry.Key().String()))
	}
	raw = append(raw, '\n')

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.f == nil {
		return goerr.New("ledger is closed", goerr.V("path", x.path))
	}
	if _, err := x.f.Write(raw); err != nil {
		return goerr.Wrap(err, "failed to append ledger entry", goerr.V("path", x.path), goerr.V("key", entry.Key().String()))
	}
	if err := x.f.Sync(); err != nil {
		return goerr.Wrap(err, "failed to sync ledger file", goerr.V("path", x.path))
	}

	copied := *entry
	x.current[entry.Key()] = &copied
	return nil
}

// Get returns the current entry of key, or nil
func (x *File) Get(ctx context.Context, key model.LedgerKey) (*model.LedgerEntry, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	entry, ok := x.current[key]
	if !ok {
		return nil, nil
	}
	copied := *entry
	return &copied, nil
}

// StatusOf returns the current status of key
func (x *File) StatusOf(ctx context.Context, key model.LedgerKey) (types.SyncStatus, error) {
	entry, err := x.Get(ctx, key)
	if err != nil || entry == nil {
		return types.StatusUnknown, err
	}
	return entry.Status, nil
}

// Entries returns the current entry of every key
func (x *File) Entries(ctx context.Context) ([]*model.LedgerEntry, error) {
	x.mu.Lock()
	entries := make([]*model.LedgerEntry, 0, len(x.current))
	for _, entry := range x.current {
		copied := *entry
		entries = append(entries, &copied)
	}
	x.mu.Unlock()

	sortEntries(entries)
	return entries, nil
}

// Close closes the underlying file
func (x *File) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.f == nil {
		return nil
	}
	err := x.f.Close()
	x.f = nil
	if err != nil {
		return goerr.Wrap(err, "failed to close ledger file", goerr.V("path", x.path))
	}
	return nil
}

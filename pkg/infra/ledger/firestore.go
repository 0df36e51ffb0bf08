package ledger

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/reposync/pkg/domain/model"
	"github.com/m-mizutani/reposync/pkg/domain/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DefaultCollection is the Firestore collection holding ledger entries
const DefaultCollection = "reposync_ledger"

// Firestore stores one document per ledger key. A document is overwritten
// on every Record, so it always holds the last entry of its key.
type Firestore struct {
	client     *firestore.Client
	collection string
	// scope keeps ledgers of different repository pairs apart in one collection
	scope string
}

// FirestoreOption configures Firestore
type FirestoreOption func(*Firestore)

// WithCollection overrides DefaultCollection
func WithCollection(name string) FirestoreOption {
	return func(x *Firestore) {
		x.collection = name
	}
}

// NewFirestore connects to projectID/databaseID. scope is usually
// "<source>..<destination>".
func NewFirestore(ctx context.Context, projectID, databaseID, scope string, opts ...FirestoreOption) (*Firestore, error) {
	if databaseID == "" {
		databaseID = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create Firestore client",
			goerr.V("project_id", projectID),
			goerr.V("database_id", databaseID))
	}

	x := &Firestore{
		client:     client,
		collection: DefaultCollection,
		scope:      scope,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x, nil
}

type firestoreEntry struct {
	Scope string `firestore:"scope"`
	model.LedgerEntry
}

// docID must not contain "/", which Firestore reserves for paths
func (x *Firestore) docID(key model.LedgerKey) string {
	return fmt.Sprintf("%s:%s:%d", strings.ReplaceAll(x.scope, "/", "_"), key.Kind, key.Number)
}

func (x *Firestore) doc(key model.LedgerKey) *firestore.DocumentRef {
	return x.client.Collection(x.collection).Doc(x.docID(key))
}

// Record overwrites the document of entry's key
func (x *Firestore) Record(ctx context.Context, entry *model.LedgerEntry) error {
	doc := &firestoreEntry{Scope: x.scope, LedgerEntry: *entry}
	if _, err := x.doc(entry.Key()).Set(ctx, doc); err != nil {
		return goerr.Wrap(err, "failed to record ledger entry",
			goerr.V("collection", x.collection),
			goerr.V("key", entry.Key().String()))
	}
	return nil
}

// Get returns the current entry of key, or nil
func (x *Firestore) Get(ctx context.Context, key model.LedgerKey) (*model.LedgerEntry, error) {
	snap, err := x.doc(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to get ledger entry",
			goerr.V("collection", x.collection),
			goerr.V("key", key.String()))
	}

	var doc firestoreEntry
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode ledger entry", goerr.V("key", key.String()))
	}
	return &doc.LedgerEntry, nil
}

// StatusOf returns the current status of key
func (x *Firestore) StatusOf(ctx context.Context, key model.LedgerKey) (types.SyncStatus, error) {
	entry, err := x.Get(ctx, key)
	if err != nil || entry == nil {
		return types.StatusUnknown, err
	}
	return entry.Status, nil
}

// Entries returns every entry of this scope
func (x *Firestore) Entries(ctx context.Context) ([]*model.LedgerEntry, error) {
	iter := x.client.Collection(x.collection).Where("scope", "==", x.scope).Documents(ctx)
	defer iter.Stop()

	var entries []*model.LedgerEntry
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate ledger entries", goerr.V("collection", x.collection))
		}

		var doc firestoreEntry
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode ledger entry", goerr.V("doc_id", snap.Ref.ID))
		}
		entries = append(entries, &doc.LedgerEntry)
	}

	sortEntries(entries)
	return entries, nil
}

// Close releases the Firestore client
func (x *Firestore) Close() error {
	if err := x.client.Close(); err != nil {
		return goerr.Wrap(err, "failed to close Firestore client")
	}
	return nil
}

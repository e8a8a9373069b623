package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/franklinwh/pkg/log"
	"github.com/raterudder/franklinwh/pkg/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	snapshotsCollection = "snapshots"
	actionsCollection   = "action_history"
)

// docIDFormat is fixed width in UTC so document ids sort the same as their
// timestamps.
const docIDFormat = "2006-01-02T15:04:05.000000000Z"

// Firestore implements Database using Google Cloud Firestore. Records are
// stored as JSON blobs under gateways/{gatewayID}/{collection}/{timestamp}.
type Firestore struct {
	client    *firestore.Client
	projectID string
	database  string
}

var _ Database = (*Firestore)(nil)

// configuredFirestore sets up the Firestore provider.
func configuredFirestore() *Firestore {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")

	f := &Firestore{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Validate checks if the provider is properly configured.
func (f *Firestore) Validate() error {
	// an empty project id is detected from the environment
	return nil
}

// Init creates the Firestore client. It must be called before any other
// method.
func (f *Firestore) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *Firestore) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func (f *Firestore) getCollection(gatewayID, name string) (*firestore.CollectionRef, error) {
	if gatewayID == "" {
		return nil, ErrMissingGatewayID
	}
	return f.client.Collection("gateways").Doc(gatewayID).Collection(name), nil
}

func docID(t time.Time) string {
	return t.UTC().Format(docIDFormat)
}

// insertJSON stores v as a JSON blob under the document for ts.
func (f *Firestore) insertJSON(ctx context.Context, gatewayID, collection string, ts time.Time, v any) error {
	if ts.IsZero() {
		return fmt.Errorf("%s record missing timestamp", collection)
	}
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s record: %w", collection, err)
	}
	coll, err := f.getCollection(gatewayID, collection)
	if err != nil {
		return err
	}
	_, err = coll.Doc(docID(ts)).Set(ctx, map[string]interface{}{
		"json":      string(jsonBytes),
		"timestamp": ts,
	})
	if err != nil {
		return fmt.Errorf("failed to insert %s record: %w", collection, err)
	}
	return nil
}

// queryJSON decodes every JSON blob in collection with start <= id < end.
func queryJSON[T any](ctx context.Context, f *Firestore, gatewayID, collection string, start, end time.Time) ([]T, error) {
	coll, err := f.getCollection(gatewayID, collection)
	if err != nil {
		return nil, err
	}
	iter := coll.
		Where(firestore.DocumentID, ">=", coll.Doc(docID(start))).
		Where(firestore.DocumentID, "<", coll.Doc(docID(end))).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var out []T
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			if status.Code(err) == codes.NotFound {
				// the gateway has never written to this collection
				return nil, nil
			}
			return nil, fmt.Errorf("error iterating %s: %w", collection, err)
		}

		val, err := doc.DataAt("json")
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "doc missing json", slog.String("collection", collection), slog.String("docID", doc.Ref.ID), slog.String("gatewayID", gatewayID))
			return nil, fmt.Errorf("%s document %s missing 'json' field: %w", collection, doc.Ref.ID, err)
		}
		jsonStr, ok := val.(string)
		if !ok {
			log.Ctx(ctx).WarnContext(ctx, "doc json not string", slog.String("collection", collection), slog.String("docID", doc.Ref.ID), slog.String("gatewayID", gatewayID))
			return nil, fmt.Errorf("%s document %s 'json' field is not string", collection, doc.Ref.ID)
		}

		var v T
		if err := json.Unmarshal([]byte(jsonStr), &v); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal doc", slog.String("collection", collection), slog.String("docID", doc.Ref.ID), slog.Any("err", err))
			return nil, fmt.Errorf("failed to unmarshal %s (id=%s): %w", collection, doc.Ref.ID, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// InsertSnapshot implements Database.
func (f *Firestore) InsertSnapshot(ctx context.Context, snapshot types.Snapshot) error {
	return f.insertJSON(ctx, snapshot.GatewayID, snapshotsCollection, snapshot.Timestamp, snapshot)
}

// GetSnapshots implements Database.
func (f *Firestore) GetSnapshots(ctx context.Context, gatewayID string, start, end time.Time) ([]types.Snapshot, error) {
	return queryJSON[types.Snapshot](ctx, f, gatewayID, snapshotsCollection, start, end)
}

// InsertAction implements Database.
func (f *Firestore) InsertAction(ctx context.Context, action types.Action) error {
	return f.insertJSON(ctx, action.GatewayID, actionsCollection, action.Timestamp, action)
}

// GetActionHistory implements Database.
func (f *Firestore) GetActionHistory(ctx context.Context, gatewayID string, start, end time.Time) ([]types.Action, error) {
	return queryJSON[types.Action](ctx, f, gatewayID, actionsCollection, start, end)
}

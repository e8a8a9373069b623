package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/franklinwh/pkg/types"
)

// ErrMissingGatewayID is returned when a record isn't tied to a gateway.
var ErrMissingGatewayID = errors.New("gatewayID cannot be empty")

// Database persists readings and control writes for a gateway.
type Database interface {
	// InsertSnapshot stores a stats reading keyed by its timestamp.
	InsertSnapshot(ctx context.Context, snapshot types.Snapshot) error
	// GetSnapshots returns readings with start <= timestamp < end, oldest
	// first.
	GetSnapshots(ctx context.Context, gatewayID string, start, end time.Time) ([]types.Snapshot, error)

	// InsertAction stores a mode or switch write.
	InsertAction(ctx context.Context, action types.Action) error
	// GetActionHistory returns writes with start <= timestamp < end, oldest
	// first.
	GetActionHistory(ctx context.Context, gatewayID string, start, end time.Time) ([]types.Action, error)

	Close() error
}

// Configured sets up the Database based on flags.
func Configured() Database {
	provider := lflag.String("storage-provider", "none", "Storage provider to use (available: firestore, none)")

	var p struct{ Database }

	fs := configuredFirestore()

	lflag.Do(func() {
		switch *provider {
		case "firestore":
			if err := fs.Validate(); err != nil {
				panic(fmt.Sprintf("firestore validation failed: %v", err))
			}
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
			p.Database = fs
		case "none", "":
			p.Database = None{}
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return &p
}

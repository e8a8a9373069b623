package storage

import (
	"context"
	"time"

	"github.com/raterudder/franklinwh/pkg/types"
)

// None is a Database that keeps nothing. History queries always come back
// empty.
type None struct{}

var _ Database = None{}

func (None) InsertSnapshot(ctx context.Context, snapshot types.Snapshot) error {
	return nil
}

func (None) GetSnapshots(ctx context.Context, gatewayID string, start, end time.Time) ([]types.Snapshot, error) {
	return nil, nil
}

func (None) InsertAction(ctx context.Context, action types.Action) error {
	return nil
}

func (None) GetActionHistory(ctx context.Context, gatewayID string, start, end time.Time) ([]types.Action, error) {
	return nil, nil
}

func (None) Close() error {
	return nil
}

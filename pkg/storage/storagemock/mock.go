package storagemock

import (
	"context"
	"time"

	"github.com/raterudder/franklinwh/pkg/storage"
	"github.com/raterudder/franklinwh/pkg/types"
	"github.com/stretchr/testify/mock"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) InsertSnapshot(ctx context.Context, snapshot types.Snapshot) error {
	args := m.Called(ctx, snapshot)
	return args.Error(0)
}

func (m *MockDatabase) GetSnapshots(ctx context.Context, gatewayID string, start, end time.Time) ([]types.Snapshot, error) {
	args := m.Called(ctx, gatewayID, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.Snapshot), args.Error(1)
}

func (m *MockDatabase) InsertAction(ctx context.Context, action types.Action) error {
	args := m.Called(ctx, action)
	return args.Error(0)
}

func (m *MockDatabase) GetActionHistory(ctx context.Context, gatewayID string, start, end time.Time) ([]types.Action, error) {
	args := m.Called(ctx, gatewayID, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.Action), args.Error(1)
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}

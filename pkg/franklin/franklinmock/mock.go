package franklinmock

import (
	"context"

	"github.com/raterudder/franklinwh/pkg/franklin"
	"github.com/raterudder/franklinwh/pkg/types"
	"github.com/stretchr/testify/mock"
)

type MockSystem struct {
	mock.Mock
}

var _ franklin.System = (*MockSystem)(nil)

func (m *MockSystem) GetStats(ctx context.Context) (types.Stats, error) {
	args := m.Called(ctx)
	return args.Get(0).(types.Stats), args.Error(1)
}

func (m *MockSystem) GetMode(ctx context.Context) (types.ModeState, error) {
	args := m.Called(ctx)
	return args.Get(0).(types.ModeState), args.Error(1)
}

func (m *MockSystem) SetMode(ctx context.Context, mode franklin.Mode) (franklin.Response, error) {
	args := m.Called(ctx, mode)
	return args.Get(0).(franklin.Response), args.Error(1)
}

func (m *MockSystem) GetSwitchState(ctx context.Context) (types.Switches, error) {
	args := m.Called(ctx)
	return args.Get(0).(types.Switches), args.Error(1)
}

func (m *MockSystem) SetSwitchState(ctx context.Context, desired types.SwitchState) (map[string]any, error) {
	args := m.Called(ctx, desired)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]any), args.Error(1)
}

func (m *MockSystem) GatewayID() string {
	args := m.Called()
	return args.String(0)
}

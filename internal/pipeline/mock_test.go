package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/shopper-cli/internal/model"
	"github.com/sells-group/shopper-cli/internal/store"
)

// --- Store Mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) SaveArtifact(ctx context.Context, a model.BatchArtifact) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *mockStore) GetArtifact(ctx context.Context, id string) (model.BatchArtifact, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.BatchArtifact), args.Error(1)
}

func (m *mockStore) ListArtifacts(ctx context.Context, filter store.ArtifactFilter) ([]store.ArtifactInfo, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]store.ArtifactInfo), args.Error(1)
}

func (m *mockStore) SaveDecision(ctx context.Context, rec model.DecisionRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *mockStore) ListDecisions(ctx context.Context, batchID string) ([]model.DecisionRecord, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.DecisionRecord), args.Error(1)
}

func (m *mockStore) ReplaceAttribution(ctx context.Context, rows []model.AttributionRow) (int64, error) {
	args := m.Called(ctx, rows)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

var _ store.Store = (*mockStore)(nil)

package usecase

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/rocketscienceinc/tictactoe-hotseat/internal/entity"
)

type mockSessionRepo struct {
	mock.Mock
}

func (that *mockSessionRepo) CreateOrUpdate(ctx context.Context, sessionID string, snapshot entity.Snapshot) error {
	args := that.Called(ctx, sessionID, snapshot)
	return args.Error(0)
}

func (that *mockSessionRepo) GetByID(ctx context.Context, sessionID string) (entity.Snapshot, error) {
	args := that.Called(ctx, sessionID)
	return args.Get(0).(entity.Snapshot), args.Error(1)
}

func (that *mockSessionRepo) DeleteByID(ctx context.Context, sessionID string) error {
	args := that.Called(ctx, sessionID)
	return args.Error(0)
}

type mockHistoryRepo struct {
	mock.Mock
}

func (that *mockHistoryRepo) Record(ctx context.Context, record entity.GameRecord) error {
	args := that.Called(ctx, record)
	return args.Error(0)
}

func (that *mockHistoryRepo) ListBySession(ctx context.Context, sessionID string, limit int) ([]entity.GameRecord, error) {
	args := that.Called(ctx, sessionID, limit)

	records, _ := args.Get(0).([]entity.GameRecord)
	return records, args.Error(1)
}

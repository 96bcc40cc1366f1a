package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/tictactoe-hotseat/internal/entity"
	"github.com/rocketscienceinc/tictactoe-hotseat/testing/suite"
)

func TestHistoryRepository_Record(t *testing.T) {
	ctx, st := suite.NewSQLite(t)

	historyRepo := NewHistoryRepository(st.Connection)

	// Given: a finished game won by X
	line := entity.Line{0, 1, 2}
	finishedAt := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	record := entity.GameRecord{
		SessionID:   "s1",
		Outcome:     entity.OutcomeXWins,
		WinningLine: &line,
		Board:       wonSnapshot().Board,
		Moves:       5,
		FinishedAt:  finishedAt,
	}

	// When: it is recorded
	err := historyRepo.Record(ctx, record)
	require.NoError(t, err)

	// Then: it is listed back unchanged
	records, err := historyRepo.ListBySession(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, record, records[0])
}

func TestHistoryRepository_ListBySession(t *testing.T) {
	t.Run("Newest first with limit", func(t *testing.T) {
		ctx, st := suite.NewSQLite(t)

		historyRepo := NewHistoryRepository(st.Connection)

		// Given: a draw followed by a win in one session and a game in another session
		draw := entity.GameRecord{
			SessionID: "s1",
			Outcome:   entity.OutcomeDraw,
			Board: entity.Board{
				entity.PlayerX, entity.PlayerO, entity.PlayerX,
				entity.PlayerX, entity.PlayerO, entity.PlayerO,
				entity.PlayerO, entity.PlayerX, entity.PlayerX,
			},
			Moves:      9,
			FinishedAt: time.UnixMilli(1000).UTC(),
		}
		require.NoError(t, historyRepo.Record(ctx, draw))

		line := entity.Line{0, 1, 2}
		win := entity.GameRecord{
			SessionID:   "s1",
			Outcome:     entity.OutcomeXWins,
			WinningLine: &line,
			Board:       wonSnapshot().Board,
			Moves:       5,
			FinishedAt:  time.UnixMilli(2000).UTC(),
		}
		require.NoError(t, historyRepo.Record(ctx, win))

		other := win
		other.SessionID = "s2"
		require.NoError(t, historyRepo.Record(ctx, other))

		// When: s1 history is listed
		all, err := historyRepo.ListBySession(ctx, "s1", 10)
		require.NoError(t, err)

		limited, err := historyRepo.ListBySession(ctx, "s1", 1)
		require.NoError(t, err)

		// Then: only s1 games are returned, newest first
		require.Len(t, all, 2)
		assert.Equal(t, win, all[0])
		assert.Equal(t, draw, all[1])
		assert.Nil(t, all[1].WinningLine)

		require.Len(t, limited, 1)
		assert.Equal(t, win, limited[0])
	})

	t.Run("Unknown session", func(t *testing.T) {
		ctx, st := suite.NewSQLite(t)

		historyRepo := NewHistoryRepository(st.Connection)

		// When: a session without finished games is listed
		records, err := historyRepo.ListBySession(ctx, "nobody", 10)

		// Then: an empty list is returned
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("Zero finish time defaults to now", func(t *testing.T) {
		ctx, st := suite.NewSQLite(t)

		historyRepo := NewHistoryRepository(st.Connection)
		before := time.Now().Add(-time.Second)

		// When: a record without a finish time is saved
		require.NoError(t, historyRepo.Record(ctx, entity.GameRecord{
			SessionID: "s1",
			Outcome:   entity.OutcomeDraw,
			Moves:     9,
		}))

		// Then: the stored time is the time of saving
		records, err := historyRepo.ListBySession(ctx, "s1", 1)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.True(t, records[0].FinishedAt.After(before))
	})
}

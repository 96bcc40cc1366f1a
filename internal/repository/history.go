package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rocketscienceinc/tictactoe-hotseat/internal/entity"
)

type HistoryRepository interface {
	Record(ctx context.Context, record entity.GameRecord) error
	ListBySession(ctx context.Context, sessionID string, limit int) ([]entity.GameRecord, error)
}

type historyRepository struct {
	conn *sql.DB
}

// NewHistoryRepository expects the finished_games table created by storage.Storage.Init.
func NewHistoryRepository(conn *sql.DB) HistoryRepository {
	return &historyRepository{
		conn: conn,
	}
}

func (that *historyRepository) Record(ctx context.Context, record entity.GameRecord) error {
	query := `INSERT INTO finished_games (session_id, outcome, winning_line, board, moves, finished_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	var winningLine sql.NullString
	if record.WinningLine != nil {
		winningLine = sql.NullString{String: record.WinningLine.String(), Valid: true}
	}

	finishedAt := record.FinishedAt
	if finishedAt.IsZero() {
		finishedAt = time.Now()
	}

	_, err := that.conn.ExecContext(ctx, query,
		record.SessionID,
		string(record.Outcome),
		winningLine,
		record.Board.String(),
		record.Moves,
		finishedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("can't save finished game: %w", err)
	}

	return nil
}

// ListBySession returns the newest records first.
func (that *historyRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]entity.GameRecord, error) {
	query := `SELECT outcome, winning_line, board, moves, finished_at
		FROM finished_games
		WHERE session_id = ?
		ORDER BY id DESC
		LIMIT ?`

	rows, err := that.conn.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("can't list finished games: %w", err)
	}
	defer rows.Close()

	records := make([]entity.GameRecord, 0, limit)
	for rows.Next() {
		var (
			outcome     string
			winningLine sql.NullString
			board       string
			moves       int
			finishedAt  int64
		)

		if err = rows.Scan(&outcome, &winningLine, &board, &moves, &finishedAt); err != nil {
			return nil, fmt.Errorf("can't scan finished game: %w", err)
		}

		record, parseErr := toGameRecord(sessionID, outcome, winningLine, board, moves, finishedAt)
		if parseErr != nil {
			return nil, parseErr
		}

		records = append(records, record)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("can't iterate finished games: %w", err)
	}

	return records, nil
}

func toGameRecord(sessionID, outcome string, winningLine sql.NullString, board string, moves int, finishedAt int64) (entity.GameRecord, error) {
	parsedBoard, err := entity.ParseBoard(board)
	if err != nil {
		return entity.GameRecord{}, fmt.Errorf("can't parse stored board: %w", err)
	}

	record := entity.GameRecord{
		SessionID:  sessionID,
		Outcome:    entity.Outcome(outcome),
		Board:      parsedBoard,
		Moves:      moves,
		FinishedAt: time.UnixMilli(finishedAt).UTC(),
	}

	if winningLine.Valid {
		line, err := entity.ParseLine(winningLine.String)
		if err != nil {
			return entity.GameRecord{}, fmt.Errorf("can't parse stored winning line: %w", err)
		}
		record.WinningLine = &line
	}

	return record, nil
}

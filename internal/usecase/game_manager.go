package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rocketscienceinc/tictactoe-hotseat/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-hotseat/internal/entity"
	"github.com/rocketscienceinc/tictactoe-hotseat/internal/repository"
	"github.com/rocketscienceinc/tictactoe-hotseat/internal/tictactoe"
)

const (
	DefaultHistoryLimit = 10
	MaxHistoryLimit     = 100
)

type sessionRepo interface {
	CreateOrUpdate(ctx context.Context, sessionID string, snapshot entity.Snapshot) error
	GetByID(ctx context.Context, sessionID string) (entity.Snapshot, error)
	DeleteByID(ctx context.Context, sessionID string) error
}

type historyRepo interface {
	Record(ctx context.Context, record entity.GameRecord) error
	ListBySession(ctx context.Context, sessionID string, limit int) ([]entity.GameRecord, error)
}

// GameManager drives one game controller per session. Operations on the same session are serialized,
// different sessions run in parallel.
type GameManager struct {
	logger      *slog.Logger
	sessionRepo sessionRepo
	historyRepo historyRepo
	now         func() time.Time

	locksMutex sync.Mutex
	locks      map[string]*sessionLock
}

type sessionLock struct {
	sync.Mutex
	refs int
}

// NewGameManager builds a manager; historyRepo may be nil to disable the finished games history.
func NewGameManager(logger *slog.Logger, sessionRepo sessionRepo, historyRepo historyRepo) *GameManager {
	return &GameManager{
		logger:      logger.With("component", "game_manager"),
		sessionRepo: sessionRepo,
		historyRepo: historyRepo,
		now:         time.Now,
		locks:       make(map[string]*sessionLock),
	}
}

// State returns the session snapshot, starting a new session when none is stored.
func (that *GameManager) State(ctx context.Context, sessionID string) (entity.Snapshot, error) {
	var snapshot entity.Snapshot

	err := that.withSession(ctx, sessionID, func(controller *tictactoe.GameController) (bool, error) {
		snapshot = controller.Snapshot()
		return false, nil
	})

	return snapshot, err
}

func (that *GameManager) PlaceMark(ctx context.Context, sessionID string, cell int) (entity.Snapshot, error) {
	log := that.logger.With("method", "PlaceMark", "sessionID", sessionID, "cell", cell)

	var snapshot entity.Snapshot

	err := that.withSession(ctx, sessionID, func(controller *tictactoe.GameController) (bool, error) {
		before := controller.Snapshot()

		var err error
		snapshot, err = controller.PlaceMark(cell)
		if err != nil {
			return false, fmt.Errorf("failed to place mark: %w", err)
		}

		if snapshot.Board.Moves() == before.Board.Moves() {
			log.Debug("placement ignored", "outcome", snapshot.Outcome)
			return false, nil
		}

		log.Debug("mark placed", "mark", snapshot.Board[cell], "outcome", snapshot.Outcome)

		if snapshot.Outcome.IsFinished() {
			log.Info("game finished", "outcome", snapshot.Outcome, "moves", snapshot.Board.Moves())
			that.recordFinishedGame(ctx, sessionID, snapshot)
		}

		return true, nil
	})

	return snapshot, err
}

// Reset starts a new game in the session; the score is kept.
func (that *GameManager) Reset(ctx context.Context, sessionID string) (entity.Snapshot, error) {
	var snapshot entity.Snapshot

	err := that.withSession(ctx, sessionID, func(controller *tictactoe.GameController) (bool, error) {
		snapshot = controller.Reset()
		return true, nil
	})
	if err != nil {
		return entity.Snapshot{}, err
	}

	that.logger.Debug("game reset", "method", "Reset", "sessionID", sessionID)

	return snapshot, nil
}

// EndSession forgets the session together with its score. Ending an unknown session is not an error.
func (that *GameManager) EndSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return apperror.ErrEmptySessionID
	}

	unlock := that.lock(sessionID)
	defer unlock()

	err := that.sessionRepo.DeleteByID(ctx, sessionID)
	if err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	that.logger.Info("session ended", "method", "EndSession", "sessionID", sessionID)

	return nil
}

// History lists finished games of the session, newest first. limit is clamped to [1, MaxHistoryLimit].
func (that *GameManager) History(ctx context.Context, sessionID string, limit int) ([]entity.GameRecord, error) {
	if sessionID == "" {
		return nil, apperror.ErrEmptySessionID
	}

	if that.historyRepo == nil {
		return []entity.GameRecord{}, nil
	}

	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}

	records, err := that.historyRepo.ListBySession(ctx, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}

	return records, nil
}

// withSession loads the session under its lock, runs fn and stores the result when fn reports a change.
func (that *GameManager) withSession(
	ctx context.Context,
	sessionID string,
	fn func(controller *tictactoe.GameController) (bool, error),
) error {
	if sessionID == "" {
		return apperror.ErrEmptySessionID
	}

	unlock := that.lock(sessionID)
	defer unlock()

	controller, created, err := that.loadController(ctx, sessionID)
	if err != nil {
		return err
	}

	changed, err := fn(controller)
	if err != nil {
		return err
	}

	if !changed && !created {
		return nil
	}

	if err = that.sessionRepo.CreateOrUpdate(ctx, sessionID, controller.Snapshot()); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	return nil
}

func (that *GameManager) loadController(ctx context.Context, sessionID string) (*tictactoe.GameController, bool, error) {
	snapshot, err := that.sessionRepo.GetByID(ctx, sessionID)
	if errors.Is(err, repository.ErrSessionNotFound) {
		that.logger.Info("new session", "sessionID", sessionID)
		return tictactoe.NewGameController(), true, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("failed to get session: %w", err)
	}

	controller, err := tictactoe.Restore(snapshot)
	if err != nil {
		return nil, false, fmt.Errorf("failed to restore session %s: %w", sessionID, err)
	}

	return controller, false, nil
}

func (that *GameManager) recordFinishedGame(ctx context.Context, sessionID string, snapshot entity.Snapshot) {
	if that.historyRepo == nil {
		return
	}

	record := entity.GameRecord{
		SessionID:   sessionID,
		Outcome:     snapshot.Outcome,
		WinningLine: snapshot.WinningLine,
		Board:       snapshot.Board,
		Moves:       snapshot.Board.Moves(),
		FinishedAt:  that.now(),
	}

	// history is best effort and never fails a move
	if err := that.historyRepo.Record(ctx, record); err != nil {
		that.logger.Error("failed to record finished game", "sessionID", sessionID, "error", err)
	}
}

func (that *GameManager) lock(sessionID string) func() {
	that.locksMutex.Lock()
	l, ok := that.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		that.locks[sessionID] = l
	}
	l.refs++
	that.locksMutex.Unlock()

	l.Lock()

	return func() {
		l.Unlock()

		that.locksMutex.Lock()
		l.refs--
		if l.refs == 0 {
			delete(that.locks, sessionID)
		}
		that.locksMutex.Unlock()
	}
}

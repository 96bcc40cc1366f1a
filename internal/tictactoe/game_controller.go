package tictactoe

import (
	"fmt"

	"github.com/rocketscienceinc/tictactoe-hotseat/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-hotseat/internal/entity"
)

// GameController is the board/turn state machine of one hot-seat session.
// It is not safe for concurrent use; callers serialize access.
type GameController struct {
	board         entity.Board
	currentPlayer entity.Mark
	outcome       entity.Outcome
	winningLine   *entity.Line
	lastMove      *int
	score         entity.Score
}

func NewGameController() *GameController {
	return &GameController{
		currentPlayer: entity.PlayerX,
		outcome:       entity.OutcomeInProgress,
	}
}

// Restore rebuilds a controller from a stored snapshot, rejecting states the machine could never reach.
func Restore(snapshot entity.Snapshot) (*GameController, error) {
	if err := validateSnapshot(snapshot); err != nil {
		return nil, fmt.Errorf("%w: %w", apperror.ErrCorruptSession, err)
	}

	controller := &GameController{
		board:         snapshot.Board,
		currentPlayer: snapshot.CurrentPlayer,
		outcome:       snapshot.Outcome,
		score:         snapshot.Score,
	}

	if snapshot.WinningLine != nil {
		line := *snapshot.WinningLine
		controller.winningLine = &line
	}

	if snapshot.LastMove != nil {
		lastMove := *snapshot.LastMove
		controller.lastMove = &lastMove
	}

	return controller, nil
}

// PlaceMark puts the current player's mark on cell. Occupied cells and finished games are silent no-ops;
// only an index outside the board is an error.
func (that *GameController) PlaceMark(cell int) (entity.Snapshot, error) {
	if cell < 0 || cell >= entity.BoardSize {
		return that.Snapshot(), fmt.Errorf("%w: cell %d", apperror.ErrInvalidCell, cell)
	}

	if that.outcome.IsFinished() || that.board[cell] != entity.EmptyCell {
		return that.Snapshot(), nil
	}

	that.board[cell] = that.currentPlayer
	that.lastMove = &cell

	that.updateGameState()

	if !that.outcome.IsFinished() {
		that.currentPlayer = that.currentPlayer.Opponent()
	}

	return that.Snapshot(), nil
}

// Reset starts a new game on an empty board. Scores are kept.
func (that *GameController) Reset() entity.Snapshot {
	that.board = entity.Board{}
	that.currentPlayer = entity.PlayerX
	that.outcome = entity.OutcomeInProgress
	that.winningLine = nil
	that.lastMove = nil

	return that.Snapshot()
}

func (that *GameController) Snapshot() entity.Snapshot {
	snapshot := entity.Snapshot{
		Board:         that.board,
		CurrentPlayer: that.currentPlayer,
		Outcome:       that.outcome,
		Score:         that.score,
	}

	if that.winningLine != nil {
		line := *that.winningLine
		snapshot.WinningLine = &line
	}

	if that.lastMove != nil {
		lastMove := *that.lastMove
		snapshot.LastMove = &lastMove
	}

	return snapshot
}

// updateGameState evaluates the board after a placement and counts a finished game exactly once.
func (that *GameController) updateGameState() {
	outcome, line := checkGameStatus(that.board)

	switch outcome {
	case entity.OutcomeXWins:
		that.score.XWins++
	case entity.OutcomeOWins:
		that.score.OWins++
	case entity.OutcomeDraw:
		that.score.Draws++
	case entity.OutcomeInProgress:
	}

	that.outcome = outcome
	that.winningLine = line
}

// checkGameStatus returns the first uniform triple in entity.WinLines order, a draw for a full board,
// or in progress otherwise.
func checkGameStatus(board entity.Board) (entity.Outcome, *entity.Line) {
	for _, combo := range entity.WinLines {
		a, b, c := board[combo[0]], board[combo[1]], board[combo[2]]
		if a != entity.EmptyCell && a == b && b == c {
			line := combo
			return entity.WinOutcome(a), &line
		}
	}

	if board.IsFull() {
		return entity.OutcomeDraw, nil
	}

	return entity.OutcomeInProgress, nil
}

package tictactoe

import (
	"errors"
	"fmt"

	"github.com/rocketscienceinc/tictactoe-hotseat/internal/entity"
)

var (
	errUnknownMark      = errors.New("unknown mark")
	errUnknownOutcome   = errors.New("unknown outcome")
	errMarkCount        = errors.New("mark counts out of balance")
	errOutcomeMismatch  = errors.New("outcome does not match board")
	errTurnMismatch     = errors.New("current player does not match move parity")
	errLastMoveMismatch = errors.New("last move does not match board")
	errNegativeScore    = errors.New("negative score")
	errWinningLine      = errors.New("winning line does not match board")
)

// validateSnapshot checks that snapshot is reachable by alternating placements from an empty board.
func validateSnapshot(snapshot entity.Snapshot) error {
	for i, cell := range snapshot.Board {
		if !cell.IsValid() {
			return fmt.Errorf("%w: %q at cell %d", errUnknownMark, cell, i)
		}
	}

	if !snapshot.Outcome.IsValid() {
		return fmt.Errorf("%w: %q", errUnknownOutcome, snapshot.Outcome)
	}

	score := snapshot.Score
	if score.XWins < 0 || score.OWins < 0 || score.Draws < 0 {
		return fmt.Errorf("%w: %+v", errNegativeScore, score)
	}

	xCount, oCount := snapshot.Board.Count(entity.PlayerX), snapshot.Board.Count(entity.PlayerO)
	if xCount-oCount != 0 && xCount-oCount != 1 {
		return fmt.Errorf("%w: X=%d O=%d", errMarkCount, xCount, oCount)
	}

	outcome, line := checkGameStatus(snapshot.Board)
	if outcome != snapshot.Outcome {
		return fmt.Errorf("%w: stored %s, board says %s", errOutcomeMismatch, snapshot.Outcome, outcome)
	}

	if !sameLine(line, snapshot.WinningLine) {
		return errWinningLine
	}

	// X opens, so X is one mark ahead exactly when X moved last.
	lastMover := entity.EmptyCell
	switch {
	case xCount > oCount:
		lastMover = entity.PlayerX
	case xCount > 0:
		lastMover = entity.PlayerO
	}

	if winner := outcome.Winner(); winner != entity.EmptyCell && winner != lastMover {
		return fmt.Errorf("%w: %q won but %q moved last", errOutcomeMismatch, winner, lastMover)
	}

	expectedTurn := lastMover.Opponent()
	if lastMover == entity.EmptyCell {
		expectedTurn = entity.PlayerX
	}
	if outcome.IsFinished() {
		expectedTurn = lastMover
	}

	if snapshot.CurrentPlayer != expectedTurn {
		return fmt.Errorf("%w: stored %q, expected %q", errTurnMismatch, snapshot.CurrentPlayer, expectedTurn)
	}

	return validateLastMove(snapshot, lastMover)
}

func validateLastMove(snapshot entity.Snapshot, lastMover entity.Mark) error {
	if lastMover == entity.EmptyCell {
		if snapshot.LastMove != nil {
			return fmt.Errorf("%w: empty board with last move %d", errLastMoveMismatch, *snapshot.LastMove)
		}
		return nil
	}

	if snapshot.LastMove == nil {
		return fmt.Errorf("%w: missing on a non-empty board", errLastMoveMismatch)
	}

	cell := *snapshot.LastMove
	if cell < 0 || cell >= entity.BoardSize || snapshot.Board[cell] != lastMover {
		return fmt.Errorf("%w: cell %d is not %q", errLastMoveMismatch, cell, lastMover)
	}

	return nil
}

func sameLine(a, b *entity.Line) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

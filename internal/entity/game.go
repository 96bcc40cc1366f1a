package entity

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Mark string

const (
	EmptyCell Mark = ""
	PlayerX   Mark = "X"
	PlayerO   Mark = "O"
)

type Outcome string

const (
	OutcomeInProgress Outcome = "in_progress"
	OutcomeXWins      Outcome = "x_wins"
	OutcomeOWins      Outcome = "o_wins"
	OutcomeDraw       Outcome = "draw"
)

// BoardSize is the number of cells on a 3x3 board.
const BoardSize = 9

var ErrInvalidBoard = errors.New("invalid board notation")

// Line is an index triple of cells on the board.
type Line [3]int

// WinLines are scanned in this order: rows top to bottom, columns left to right, then both diagonals.
var WinLines = [8]Line{
	{0, 1, 2},
	{3, 4, 5},
	{6, 7, 8},
	{0, 3, 6},
	{1, 4, 7},
	{2, 5, 8},
	{0, 4, 8},
	{2, 4, 6},
}

type Board [BoardSize]Mark

type Score struct {
	XWins int `json:"x_wins"`
	OWins int `json:"o_wins"`
	Draws int `json:"draws"`
}

// Snapshot is a read-only view of a game session handed to the presentation layer.
type Snapshot struct {
	Board         Board   `json:"board"`
	CurrentPlayer Mark    `json:"current_player"`
	Outcome       Outcome `json:"outcome"`
	WinningLine   *Line   `json:"winning_line,omitempty"`
	LastMove      *int    `json:"last_move,omitempty"`
	Score         Score   `json:"score"`
}

// GameRecord describes one finished game of a session.
type GameRecord struct {
	SessionID   string    `json:"session_id"`
	Outcome     Outcome   `json:"outcome"`
	WinningLine *Line     `json:"winning_line,omitempty"`
	Board       Board     `json:"board"`
	Moves       int       `json:"moves"`
	FinishedAt  time.Time `json:"finished_at"`
}

func (that Mark) IsValid() bool {
	return that == EmptyCell || that == PlayerX || that == PlayerO
}

// Opponent returns the other player's mark. EmptyCell has no opponent.
func (that Mark) Opponent() Mark {
	switch that {
	case PlayerX:
		return PlayerO
	case PlayerO:
		return PlayerX
	default:
		return EmptyCell
	}
}

func (that Outcome) IsValid() bool {
	switch that {
	case OutcomeInProgress, OutcomeXWins, OutcomeOWins, OutcomeDraw:
		return true
	default:
		return false
	}
}

func (that Outcome) IsFinished() bool {
	return that == OutcomeXWins || that == OutcomeOWins || that == OutcomeDraw
}

// Winner returns the winning mark, or EmptyCell for draws and games in progress.
func (that Outcome) Winner() Mark {
	switch that {
	case OutcomeXWins:
		return PlayerX
	case OutcomeOWins:
		return PlayerO
	default:
		return EmptyCell
	}
}

// WinOutcome maps a winning mark to its outcome.
func WinOutcome(mark Mark) Outcome {
	if mark == PlayerO {
		return OutcomeOWins
	}
	return OutcomeXWins
}

func (that Board) Count(mark Mark) int {
	n := 0
	for _, cell := range that {
		if cell == mark {
			n++
		}
	}
	return n
}

func (that Board) IsFull() bool {
	return that.Count(EmptyCell) == 0
}

func (that Board) Moves() int {
	return BoardSize - that.Count(EmptyCell)
}

// String encodes the board row-major with "." for empty cells, e.g. "XO.X.....".
func (that Board) String() string {
	var sb strings.Builder
	sb.Grow(BoardSize)
	for _, cell := range that {
		if cell == EmptyCell {
			sb.WriteByte('.')
			continue
		}
		sb.WriteString(string(cell))
	}
	return sb.String()
}

// ParseBoard decodes the notation produced by Board.String.
func ParseBoard(s string) (Board, error) {
	var board Board
	if len(s) != BoardSize {
		return board, fmt.Errorf("%w: want %d cells, got %d", ErrInvalidBoard, BoardSize, len(s))
	}

	for i := range len(s) {
		switch s[i] {
		case '.':
			board[i] = EmptyCell
		case 'X':
			board[i] = PlayerX
		case 'O':
			board[i] = PlayerO
		default:
			return board, fmt.Errorf("%w: unexpected %q at %d", ErrInvalidBoard, s[i], i)
		}
	}

	return board, nil
}

// String encodes the line as "a,b,c".
func (that Line) String() string {
	return fmt.Sprintf("%d,%d,%d", that[0], that[1], that[2])
}

func ParseLine(s string) (Line, error) {
	var line Line
	parts := strings.Split(s, ",")
	if len(parts) != len(line) {
		return line, fmt.Errorf("invalid line %q", s)
	}

	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return line, fmt.Errorf("invalid line %q: %w", s, err)
		}
		line[i] = n
	}

	return line, nil
}

func (that Line) Contains(cell int) bool {
	return that[0] == cell || that[1] == cell || that[2] == cell
}

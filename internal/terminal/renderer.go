package terminal

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/muesli/termenv"

	"github.com/rocketscienceinc/tictactoe-hotseat/internal/entity"
)

const (
	colorX = "#8B5CF6"
	colorO = "#0EA5E9"
)

// Renderer draws snapshots as text. Colors and highlights depend on the output profile,
// termenv.Ascii renders plain text.
type Renderer struct {
	output *termenv.Output
	base   int
}

func NewRenderer(w io.Writer, profile termenv.Profile, oneBased bool) *Renderer {
	base := 0
	if oneBased {
		base = 1
	}

	return &Renderer{
		output: termenv.NewOutput(w, termenv.WithProfile(profile)),
		base:   base,
	}
}

// Board draws the grid; empty cells show the number to type for them.
func (that *Renderer) Board(snapshot entity.Snapshot) string {
	var b strings.Builder

	for row := range 3 {
		if row > 0 {
			b.WriteString("---+---+---\n")
		}

		cells := make([]string, 3)
		for col := range 3 {
			cells[col] = " " + that.cell(snapshot, row*3+col) + " "
		}

		b.WriteString(strings.Join(cells, "|"))
		b.WriteString("\n")
	}

	return b.String()
}

func (that *Renderer) cell(snapshot entity.Snapshot, idx int) string {
	mark := snapshot.Board[idx]
	if mark == entity.EmptyCell {
		return that.output.String(strconv.Itoa(idx + that.base)).Faint().String()
	}

	style := that.mark(mark).Bold()

	if snapshot.LastMove != nil && *snapshot.LastMove == idx {
		style = style.Underline()
	}

	if snapshot.WinningLine != nil && snapshot.WinningLine.Contains(idx) {
		style = style.Reverse()
	}

	return style.String()
}

func (that *Renderer) mark(mark entity.Mark) termenv.Style {
	style := that.output.String(string(mark))

	switch mark {
	case entity.PlayerX:
		return style.Foreground(that.output.Color(colorX))
	case entity.PlayerO:
		return style.Foreground(that.output.Color(colorO))
	default:
		return style
	}
}

// Status is the turn line while the game runs and the end-of-game message after.
func (that *Renderer) Status(snapshot entity.Snapshot) string {
	switch snapshot.Outcome {
	case entity.OutcomeXWins, entity.OutcomeOWins:
		winner := that.mark(snapshot.Outcome.Winner()).Bold().String()
		return fmt.Sprintf("Player %s Wins! Congratulations on your victory!", winner)
	case entity.OutcomeDraw:
		return "It's a Draw! No one could claim victory this time."
	default:
		return fmt.Sprintf("Player %s: CURRENT TURN, player %s: WAITING",
			that.mark(snapshot.CurrentPlayer).Bold().String(),
			that.mark(snapshot.CurrentPlayer.Opponent()).String(),
		)
	}
}

func (that *Renderer) Scores(score entity.Score) string {
	return fmt.Sprintf("%s wins: %d  %s wins: %d  draws: %d",
		that.mark(entity.PlayerX).String(), score.XWins,
		that.mark(entity.PlayerO).String(), score.OWins,
		score.Draws,
	)
}

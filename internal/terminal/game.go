package terminal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/rocketscienceinc/tictactoe-hotseat/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-hotseat/internal/entity"
	"github.com/rocketscienceinc/tictactoe-hotseat/internal/tictactoe"
)

const helpText = "commands: <cell> place a mark, r new game, s scores, h help, q quit"

// Game is a hot-seat session played from a line based input stream.
type Game struct {
	logger     *slog.Logger
	out        io.Writer
	renderer   *Renderer
	controller *tictactoe.GameController
	oneBased   bool
}

func New(logger *slog.Logger, out io.Writer, renderer *Renderer, oneBased bool) *Game {
	return &Game{
		logger:     logger.With("component", "terminal"),
		out:        out,
		renderer:   renderer,
		controller: tictactoe.NewGameController(),
		oneBased:   oneBased,
	}
}

// Run reads commands until q, end of input or ctx cancellation. Cancellation returns at once,
// even while the reader is blocked waiting for a line.
func (that *Game) Run(ctx context.Context, in io.Reader) error {
	that.println(helpText)
	that.render(that.controller.Snapshot())

	lines, readErr := readLines(ctx, in)

	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("terminal game interrupted: %w", err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("terminal game interrupted: %w", ctx.Err())
		case line, ok := <-lines:
			if !ok {
				if err := ctx.Err(); err != nil {
					return fmt.Errorf("terminal game interrupted: %w", err)
				}
				if err := <-readErr; err != nil {
					return fmt.Errorf("failed to read input: %w", err)
				}
				return nil
			}

			if ctx.Err() != nil {
				continue
			}

			if quit := that.handle(strings.TrimSpace(line)); quit {
				that.println("bye")
				return nil
			}
		}
	}
}

// readLines scans in on its own goroutine so a blocked read never holds up cancellation.
// The goroutine stays parked in Read until in is closed or yields data.
func readLines(ctx context.Context, in io.Reader) (<-chan string, <-chan error) {
	lines := make(chan string)
	readErr := make(chan error, 1)

	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				readErr <- nil
				return
			}
		}

		readErr <- scanner.Err()
	}()

	return lines, readErr
}

func (that *Game) handle(command string) bool {
	log := that.logger.With("method", "handle", "command", command)

	switch strings.ToLower(command) {
	case "":
		return false
	case "q", "quit", "exit":
		return true
	case "r", "reset":
		log.Debug("game reset")
		that.render(that.controller.Reset())
		return false
	case "s", "score", "scores":
		that.println(that.renderer.Scores(that.controller.Snapshot().Score))
		return false
	case "h", "help", "?":
		that.println(helpText)
		return false
	}

	cell, err := strconv.Atoi(command)
	if err != nil {
		that.println(fmt.Sprintf("unknown command %q, %s", command, helpText))
		return false
	}

	that.placeMark(log, cell)

	return false
}

func (that *Game) placeMark(log *slog.Logger, cell int) {
	if that.oneBased {
		cell--
	}

	before := that.controller.Snapshot()

	snapshot, err := that.controller.PlaceMark(cell)
	if errors.Is(err, apperror.ErrInvalidCell) {
		that.println(fmt.Sprintf("invalid cell, choose %s", that.cellRange()))
		return
	}

	if snapshot.Board.Moves() == before.Board.Moves() {
		if before.Outcome.IsFinished() {
			that.println("game over, press r for a new game")
		} else {
			that.println(fmt.Sprintf("cell %d is taken", cell+that.base()))
		}
		return
	}

	log.Debug("mark placed", "mark", snapshot.Board[cell], "outcome", snapshot.Outcome)

	that.render(snapshot)
}

func (that *Game) render(snapshot entity.Snapshot) {
	that.println("")
	that.println(strings.TrimSuffix(that.renderer.Board(snapshot), "\n"))
	that.println(that.renderer.Status(snapshot))

	if snapshot.Outcome.IsFinished() {
		that.println(that.renderer.Scores(snapshot.Score))
	}
}

func (that *Game) base() int {
	if that.oneBased {
		return 1
	}

	return 0
}

func (that *Game) cellRange() string {
	return fmt.Sprintf("%d-%d", that.base(), entity.BoardSize-1+that.base())
}

func (that *Game) println(line string) {
	if _, err := fmt.Fprintln(that.out, line); err != nil {
		that.logger.Error("failed to write output", "error", err)
	}
}

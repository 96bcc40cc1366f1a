package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/muesli/termenv"

	"github.com/rocketscienceinc/tictactoe-hotseat/internal/config"
	"github.com/rocketscienceinc/tictactoe-hotseat/internal/terminal"
)

func main() {
	oneBased := flag.Bool("one-based", false, "number cells 1-9 instead of 0-8")
	noColor := flag.Bool("no-color", false, "disable colors")
	levelStr := flag.String("log-level", "warn", "debug|info|warn|error")
	flag.Parse()

	lvl, err := config.ParseLogLevel(*levelStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tictactoe: %v\n", err)
		os.Exit(2)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))

	profile := termenv.EnvColorProfile()
	if *noColor {
		profile = termenv.Ascii
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	renderer := terminal.NewRenderer(os.Stdout, profile, *oneBased)
	game := terminal.New(logger, os.Stdout, renderer, *oneBased)

	err = game.Run(ctx, os.Stdin)
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stdout)
		return
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "tictactoe: %v\n", err)
		os.Exit(1)
	}
}

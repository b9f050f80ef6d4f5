package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/patrikhermansson/colsel/cmd"
	"github.com/patrikhermansson/colsel/core"
)

// main sets up console logging (level from COLSEL_LOG), cancels the command
// context on an interrupt and runs the CLI.
func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	core.ConfigureLogging()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		log.Error().Err(err).Msg("colsel failed")
		stop()
		os.Exit(1)
	}
}

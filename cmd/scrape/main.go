// cmd/scrape/main.go
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/pagebound/scrape/internal/cli"
)

func main() {
	// The serve command drains gracefully on the first interrupt; a
	// second interrupt force-exits everything.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Warn().Msg("Interrupt received, shutting down...")
		<-sigCh
		log.Warn().Msg("Second interrupt, forcing exit")
		os.Exit(1)
	}()

	cli.Execute()
}

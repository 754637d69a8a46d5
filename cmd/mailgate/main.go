// Command mailgate polls one or more IMAP mailboxes and files incoming
// mail into tickets: a reply continuing an open SRQ reference is added
// as a comment, everything else opens a new issue.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/hkdb/srq-mailgate/internal/config"
	"github.com/hkdb/srq-mailgate/internal/logging"
	"github.com/hkdb/srq-mailgate/internal/orchestrator"
	"github.com/rs/zerolog"
)

// stopGracePeriod bounds how long shutdown waits for every supervisor to
// reach an idle, disconnected state before giving up and exiting anyway.
const stopGracePeriod = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to the gateway's YAML configuration file")
	flag.Parse()

	if configPath == "" {
		configPath = os.Getenv("MAILGATE_CONFIG")
	}
	if configPath == "" {
		return fmt.Errorf("no configuration file given: pass -config or set MAILGATE_CONFIG")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if err := logging.Configure(cfg.Log.InfoPath, cfg.Log.ErrorPath, level); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}

	log := logging.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	orch := orchestrator.New(cfg)
	orch.Run(ctx)
	log.Info().Msg("mailgate running, waiting for shutdown signal")

	<-ctx.Done()
	log.Info().Msg("shutdown signal received, stopping supervisors")

	stopCtx, cancel := context.WithTimeout(context.Background(), stopGracePeriod)
	defer cancel()
	orch.Stop(stopCtx)

	return nil
}

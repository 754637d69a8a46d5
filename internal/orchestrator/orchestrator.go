// Package orchestrator owns the full set of supervised server
// connections and drives their coordinated startup and shutdown.
package orchestrator

import (
	"context"
	"time"

	"github.com/hkdb/srq-mailgate/internal/attachupload"
	"github.com/hkdb/srq-mailgate/internal/config"
	"github.com/hkdb/srq-mailgate/internal/credentials"
	"github.com/hkdb/srq-mailgate/internal/dispatch"
	"github.com/hkdb/srq-mailgate/internal/logging"
	"github.com/hkdb/srq-mailgate/internal/spamgate"
	"github.com/hkdb/srq-mailgate/internal/supervisor"
	"github.com/hkdb/srq-mailgate/internal/ticketclient"
	"github.com/rs/zerolog"
)

// idlePollInterval is how often Stop checks whether every supervisor
// has reached an idle, disconnected state.
const idlePollInterval = 500 * time.Millisecond

// Orchestrator owns one supervisor per configured server.
type Orchestrator struct {
	supervisors []*supervisor.Supervisor
	log         zerolog.Logger
}

// New builds an Orchestrator for cfg, wiring one ticketclient.Client
// (shared across every server, since they all dispatch to the same
// ticketing backend) and one Supervisor per configured server.
func New(cfg *config.Config) *Orchestrator {
	client := ticketclient.New(cfg.TicketClient)
	creds := credentials.NewStore()

	o := &Orchestrator{log: logging.WithComponent("orchestrator")}
	for _, server := range cfg.Servers {
		srv := server
		newDispatcher := func() *dispatch.Dispatcher {
			gate := spamgate.New(cfg.Runtime.Spam, client)
			uploader := attachupload.New(client)
			return dispatch.New(client, uploader, gate, &cfg.Runtime)
		}
		o.supervisors = append(o.supervisors, supervisor.New(srv, &cfg.Runtime, creds, newDispatcher))
	}
	return o
}

// Run starts every supervisor. It does not block; each supervisor drives
// its own goroutine until Stop is called.
func (o *Orchestrator) Run(ctx context.Context) {
	o.log.Info().Int("servers", len(o.supervisors)).Msg("starting supervisors")
	for _, s := range o.supervisors {
		s.Start(ctx)
	}
}

// Stop requests every supervisor to disconnect and blocks until all of
// them report idle, or ctx is done first.
func (o *Orchestrator) Stop(ctx context.Context) {
	for _, s := range o.supervisors {
		go s.Stop()
	}

	ticker := time.NewTicker(idlePollInterval)
	defer ticker.Stop()
	for {
		if o.allIdle() {
			o.log.Info().Msg("all supervisors stopped")
			return
		}
		select {
		case <-ctx.Done():
			o.log.Warn().Msg("stop deadline reached before all supervisors went idle")
			return
		case <-ticker.C:
		}
	}
}

func (o *Orchestrator) allIdle() bool {
	for _, s := range o.supervisors {
		if !s.Idle() {
			return false
		}
	}
	return true
}

// Package supervisor owns one IMAP connection's lifecycle: connect,
// authenticate, poll its configured mailboxes on an interval, and
// reconnect on an unclean close, independent of every other supervised
// server.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hkdb/srq-mailgate/internal/config"
	"github.com/hkdb/srq-mailgate/internal/credentials"
	"github.com/hkdb/srq-mailgate/internal/dispatch"
	"github.com/hkdb/srq-mailgate/internal/logging"
	"github.com/hkdb/srq-mailgate/internal/mailbox"
	"github.com/hkdb/srq-mailgate/internal/mailimap"
	"github.com/rs/zerolog"
)

// State is one point in the connection lifecycle
// disconnected → connecting → authenticated → polling/idle → closed.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticated
	StatePolling
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StatePolling:
		return "polling"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// reconnectInterval is fixed, not exponential backoff: a misbehaving
// mail server doesn't get a longer and longer grace period, and an
// operator watching logs sees a predictable retry cadence.
const reconnectInterval = 10 * time.Second

// Supervisor drives one server's connection lifecycle and mailbox polls.
type Supervisor struct {
	server  config.ServerConfig
	runtime *config.RuntimeConfig
	creds   *credentials.Store

	newDispatcher func() *dispatch.Dispatcher

	stateMu sync.Mutex
	state   State

	// isRunning gates a poll tick against an in-flight poll: a tick that
	// finds isRunning true issues zero IMAP commands rather than queuing
	// up behind the running one.
	runningMu sync.Mutex
	isRunning bool

	client *mailimap.Client

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	log zerolog.Logger
}

// New creates a Supervisor for one server. newDispatcher is called at the
// start of every poll cycle, so each tick builds a fresh Dispatcher (and
// its collaborators) rather than sharing one across cycles.
func New(server config.ServerConfig, runtime *config.RuntimeConfig, creds *credentials.Store, newDispatcher func() *dispatch.Dispatcher) *Supervisor {
	return &Supervisor{
		server:        server,
		runtime:       runtime,
		creds:         creds,
		newDispatcher: newDispatcher,
		state:         StateDisconnected,
		log:           logging.WithComponent("supervisor").With().Str("server", server.Name).Logger(),
	}
}

// State returns the supervisor's current lifecycle state.
func (s *Supervisor) State() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

func (s *Supervisor) setState(st State) {
	s.stateMu.Lock()
	s.state = st
	s.stateMu.Unlock()
}

// Idle reports whether the supervisor has reached a disconnected, no
// poll in flight state — the condition the orchestrator polls for
// during shutdown.
func (s *Supervisor) Idle() bool {
	s.runningMu.Lock()
	running := s.isRunning
	s.runningMu.Unlock()
	return !running && (s.State() == StateDisconnected || s.State() == StateClosed)
}

// Start begins the supervisor's goroutine: connect, then poll on
// runtime.QueryInterval until ctx is cancelled.
func (s *Supervisor) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run()
}

// Stop signals the supervisor to disconnect and waits for its goroutine
// to exit.
func (s *Supervisor) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.setState(StateClosed)
}

func (s *Supervisor) run() {
	defer s.wg.Done()

	if !s.connectWithRetry() {
		return
	}

	interval := s.runtime.QueryInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.disconnect()
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// connectWithRetry blocks, retrying every reconnectInterval, until the
// connection succeeds or ctx is cancelled. Returns false if cancelled
// before a successful connect.
func (s *Supervisor) connectWithRetry() bool {
	for {
		if err := s.connect(); err == nil {
			return true
		} else {
			s.log.Warn().Err(err).Dur("retryIn", reconnectInterval).Msg("connect failed, will retry")
		}

		select {
		case <-s.ctx.Done():
			return false
		case <-time.After(reconnectInterval):
		}
	}
}

func (s *Supervisor) connect() error {
	s.setState(StateConnecting)

	cfg := mailimap.DefaultConfig()
	cfg.Host = s.server.Host
	cfg.Port = s.server.Port
	cfg.Username = s.server.Username
	cfg.Password = s.creds.Resolve(s.server.Name, s.server.Password)
	cfg.TLSInsecure = s.server.TLSInsecure
	switch s.server.TLS {
	case config.TLSDirect:
		cfg.Security = mailimap.SecurityTLS
	case config.TLSStartTLS:
		cfg.Security = mailimap.SecurityStartTLS
	default:
		cfg.Security = mailimap.SecurityNone
	}

	client := mailimap.NewClient(cfg)
	if err := client.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if err := client.Login(); err != nil {
		client.Close()
		return fmt.Errorf("login: %w", err)
	}

	if err := mailbox.EnsureStructure(s.ctx, client, s.server.Mailboxes); err != nil {
		client.Close()
		return fmt.Errorf("mailbox structure check: %w", err)
	}

	s.client = client
	s.setState(StateAuthenticated)
	s.log.Info().Msg("connected and authenticated")
	return nil
}

func (s *Supervisor) disconnect() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			s.log.Warn().Err(err).Msg("error closing connection")
		}
		s.client = nil
	}
	s.setState(StateDisconnected)
}

// tick runs one poll cycle across every configured mailbox. A tick that
// finds a poll already in flight is a no-op (Invariant: isRunning true
// means zero IMAP commands are issued this tick).
func (s *Supervisor) tick() {
	s.runningMu.Lock()
	if s.isRunning {
		s.runningMu.Unlock()
		return
	}
	s.isRunning = true
	s.runningMu.Unlock()

	defer func() {
		s.runningMu.Lock()
		s.isRunning = false
		s.runningMu.Unlock()
	}()

	s.setState(StatePolling)
	defer s.setState(StateAuthenticated)

	cycleID := uuid.NewString()
	log := s.log.With().Str("cycle", cycleID).Logger()

	dispatcher := s.newDispatcher()
	processor := mailbox.NewProcessor(s.client, dispatcher, s.runtime)

	for top, children := range s.server.Mailboxes {
		if s.ctx.Err() != nil {
			return
		}
		n, err := processor.ProcessMailbox(s.ctx, top, children)
		if err != nil {
			log.Error().Err(err).Str("mailbox", top).Msg("poll failed, reconnecting")
			s.disconnect()
			if !s.connectWithRetry() {
				return
			}
			continue
		}
		if n > 0 {
			log.Info().Str("mailbox", top).Int("processed", n).Msg("processed messages")
		}
	}
}

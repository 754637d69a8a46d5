package supervisor

import (
	"testing"

	"github.com/hkdb/srq-mailgate/internal/config"
	"github.com/hkdb/srq-mailgate/internal/credentials"
	"github.com/hkdb/srq-mailgate/internal/dispatch"
)

func TestStateStrings(t *testing.T) {
	cases := map[State]string{
		StateDisconnected:  "disconnected",
		StateConnecting:    "connecting",
		StateAuthenticated: "authenticated",
		StatePolling:       "polling",
		StateClosed:        "closed",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}

func TestIdleReportsDisconnectedAndNotRunning(t *testing.T) {
	s := New(config.ServerConfig{Name: "test"}, &config.RuntimeConfig{}, &credentials.Store{}, func() *dispatch.Dispatcher { return nil })

	if !s.Idle() {
		t.Fatal("expected a freshly constructed supervisor to be idle")
	}

	s.setState(StateAuthenticated)
	if s.Idle() {
		t.Fatal("expected authenticated state to not be idle")
	}
}

func TestTickSkipsWhenAlreadyRunning(t *testing.T) {
	s := New(config.ServerConfig{Name: "test"}, &config.RuntimeConfig{}, &credentials.Store{}, func() *dispatch.Dispatcher { return nil })

	s.runningMu.Lock()
	s.isRunning = true
	s.runningMu.Unlock()

	// Invariant: a tick that finds isRunning true issues zero IMAP
	// commands. A tick that got past the early return would reset
	// isRunning to false on exit, so isRunning still being true proves
	// the gate held.
	s.tick()

	s.runningMu.Lock()
	stillRunning := s.isRunning
	s.runningMu.Unlock()
	if !stillRunning {
		t.Fatal("tick should not have touched isRunning when it found the gate already held")
	}
}

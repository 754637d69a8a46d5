// Package credentials resolves IMAP server passwords, preferring the OS
// keyring over the plaintext value carried in the static config file.
package credentials

import (
	"github.com/hkdb/srq-mailgate/internal/logging"
	"github.com/rs/zerolog"
	gokeyring "github.com/zalando/go-keyring"
)

const serviceName = "srq-mailgate"

// Store resolves and, when the keyring is available, persists per-server
// IMAP passwords.
type Store struct {
	keyringEnabled bool
	log            zerolog.Logger
}

// NewStore probes OS keyring availability once at startup. A headless
// server with no keyring daemon running falls back to the plaintext
// password already present in the config file.
func NewStore() *Store {
	log := logging.WithComponent("credentials")

	keyringEnabled := testKeyring()
	if keyringEnabled {
		log.Info().Msg("OS keyring available, preferring it over config file passwords")
	} else {
		log.Warn().Msg("OS keyring not available, using config file passwords")
	}

	return &Store{keyringEnabled: keyringEnabled, log: log}
}

func testKeyring() bool {
	const testKey = "srq-mailgate-test-keyring-check"
	if err := gokeyring.Set(serviceName, testKey, "test"); err != nil {
		return false
	}
	gokeyring.Delete(serviceName, testKey)
	return true
}

// Resolve returns the password to use for serverName: the keyring entry
// if one exists, otherwise configPassword as read from the static config
// file.
func (s *Store) Resolve(serverName, configPassword string) string {
	if s.keyringEnabled {
		if password, err := gokeyring.Get(serviceName, serverName); err == nil {
			return password
		}
	}
	return configPassword
}

// Store saves password in the OS keyring under serverName, when the
// keyring is available. It is a no-op otherwise: the config file value
// remains the source of truth.
func (s *Store) Store(serverName, password string) {
	if !s.keyringEnabled || password == "" {
		return
	}
	if err := gokeyring.Set(serviceName, serverName, password); err != nil {
		s.log.Warn().Err(err).Str("server", serverName).Msg("failed to store password in OS keyring")
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "mailgate.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

const validConfig = `
servers:
  - name: primary
    host: imap.example.com
    port: 993
    tls: tls
    username: gateway@example.com
    password: secret
    mailboxes:
      INBOX:
        success: Processed
        failure: Failed
runtime:
  maxQueryMessages: 50
  queryInterval: 30s
  onPersonNotFound: createSystemIssue
  commentDelimiters:
    - literal: "-----Original Message-----"
  permittedBodyAttributes:
    - name: priority
      type: string
ticketClient:
  baseURL: https://tickets.example.com/api
`

func TestLoadValid(t *testing.T) {
	path := writeTempConfig(t, validConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Servers) != 1 {
		t.Fatalf("expected 1 server, got %d", len(cfg.Servers))
	}
	if cfg.Runtime.QueryInterval.Seconds() != 30 {
		t.Fatalf("expected 30s queryInterval, got %v", cfg.Runtime.QueryInterval)
	}
}

func TestValidateRejectsUnknownPersonNotFoundPolicy(t *testing.T) {
	cfg := &Config{
		Servers: []ServerConfig{{
			Name: "primary", Host: "h", TLS: TLSDirect,
			Mailboxes: map[string]MailboxConfig{"INBOX": {Success: "S", Failure: "F"}},
		}},
		Runtime:      RuntimeConfig{MaxQueryMessages: 1, QueryInterval: 1, OnPersonNotFound: "doSomethingElse"},
		TicketClient: TicketClientConfig{BaseURL: "https://x"},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for unknown onPersonNotFound policy")
	}
}

func TestValidateRejectsIdenticalSuccessFailure(t *testing.T) {
	cfg := &Config{
		Servers: []ServerConfig{{
			Name: "primary", Host: "h",
			Mailboxes: map[string]MailboxConfig{"INBOX": {Success: "Same", Failure: "Same"}},
		}},
		Runtime:      RuntimeConfig{MaxQueryMessages: 1, QueryInterval: 1, OnPersonNotFound: string(PolicyCreateSystemIssue)},
		TicketClient: TicketClientConfig{BaseURL: "https://x"},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error when success and failure mailboxes match")
	}
}

func TestValidateRejectsEmptyServers(t *testing.T) {
	cfg := &Config{}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for empty server list")
	}
}

// Package config loads and validates the gateway's static YAML
// configuration: the list of IMAP servers to supervise and the runtime
// behavior that governs how a polled message becomes a ticket.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// TLSMode selects how a server connection is secured.
type TLSMode string

const (
	TLSNone     TLSMode = "none"
	TLSDirect   TLSMode = "tls"
	TLSStartTLS TLSMode = "starttls"
)

// PersonNotFoundPolicy is the closed set of behaviors when a message's
// sender cannot be resolved to a known person. Open Question #1 (see
// DESIGN.md) resolves the ambiguity in spec.md by validating this as an
// enum at load time rather than silently preferring one behavior.
type PersonNotFoundPolicy string

const (
	PolicyCreateSystemIssue      PersonNotFoundPolicy = "createSystemIssue"
	PolicyMoveMsgToFailureFolder PersonNotFoundPolicy = "moveMsgToFailureFolder"
)

// MailboxConfig names the sibling mailboxes a processed message is moved
// into.
type MailboxConfig struct {
	Success string `yaml:"success"`
	Failure string `yaml:"failure"`
}

// ServerConfig describes one IMAP server to supervise.
type ServerConfig struct {
	Name        string                   `yaml:"name"`
	Host        string                   `yaml:"host"`
	Port        int                      `yaml:"port"`
	TLS         TLSMode                  `yaml:"tls"`
	TLSInsecure bool                     `yaml:"tlsInsecure"`
	Username    string                   `yaml:"username"`
	Password    string                   `yaml:"password"`
	Mailboxes   map[string]MailboxConfig `yaml:"mailboxes"`
}

// Delimiter is one ordered comment-truncation marker. Exactly one of
// Literal or Regex is set.
type Delimiter struct {
	Literal string `yaml:"literal"`
	Regex   string `yaml:"regex"`
}

// AttributeConfig binds a permitted body attribute's name to its value
// grammar.
type AttributeConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"` // date | id | string
}

// SpamConfig controls the spam gate of spec.md §4.8.
type SpamConfig struct {
	TimeSpan         time.Duration `yaml:"timeSpan"`
	MaxNumOfIssues   int           `yaml:"maxNumOfIssues"`
	Headers          []string      `yaml:"headers"`
	DontCheckAuthors []string      `yaml:"dontCheckAuthors"`
}

// RuntimeConfig controls the message-processing behavior shared across
// every supervised server.
type RuntimeConfig struct {
	MaxQueryMessages                int               `yaml:"maxQueryMessages"`
	QueryInterval                   time.Duration     `yaml:"queryInterval"`
	JoinOriginalAsEML               bool              `yaml:"joinOriginalAsEML"`
	JoinAttachments                 bool              `yaml:"joinAttachments"`
	TruncateCommentsAfterDelimiter  bool              `yaml:"truncateCommentsAfterDelimiter"`
	CommentDelimiters               []Delimiter       `yaml:"commentDelimiters"`
	PermittedBodyAttributes         []AttributeConfig `yaml:"permittedBodyAttributes"`
	OnPersonNotFound                string            `yaml:"onPersonNotFound"`
	Spam                            SpamConfig        `yaml:"spam"`
}

// TicketClientConfig holds the REST ticketing API connection details
// (spec.md §6 external interface contract).
type TicketClientConfig struct {
	BaseURL  string `yaml:"baseURL"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// LogConfig names the two append-only log sinks of spec.md §6.
type LogConfig struct {
	InfoPath  string `yaml:"infoPath"`
	ErrorPath string `yaml:"errorPath"`
	Level     string `yaml:"level"`
}

// Config is the top-level static configuration document.
type Config struct {
	Servers      []ServerConfig      `yaml:"servers"`
	Runtime      RuntimeConfig       `yaml:"runtime"`
	TicketClient TicketClientConfig  `yaml:"ticketClient"`
	Log          LogConfig           `yaml:"log"`
}

// Load reads and validates the YAML configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

var mailboxNamePattern = regexp.MustCompile(`^[^/\\]+$`)

// Validate checks the structural and grammar invariants spec.md requires
// at load time: a non-empty server list, well-formed mailbox hierarchy
// (a top mailbox plus its success/failure children, all distinct), a
// closed enum for OnPersonNotFound, and well-formed delimiter/attribute
// entries.
func (c *Config) Validate() error {
	if len(c.Servers) == 0 {
		return fmt.Errorf("at least one server must be configured")
	}

	seenNames := map[string]bool{}
	for _, s := range c.Servers {
		if s.Name == "" {
			return fmt.Errorf("server missing name")
		}
		if seenNames[s.Name] {
			return fmt.Errorf("duplicate server name: %s", s.Name)
		}
		seenNames[s.Name] = true

		if s.Host == "" {
			return fmt.Errorf("server %s: host is required", s.Name)
		}
		switch s.TLS {
		case TLSNone, TLSDirect, TLSStartTLS, "":
		default:
			return fmt.Errorf("server %s: unknown tls mode %q", s.Name, s.TLS)
		}
		if len(s.Mailboxes) == 0 {
			return fmt.Errorf("server %s: at least one mailbox must be configured", s.Name)
		}
		for box, mb := range s.Mailboxes {
			if !mailboxNamePattern.MatchString(box) {
				return fmt.Errorf("server %s: invalid mailbox name %q", s.Name, box)
			}
			if mb.Success == "" || mb.Failure == "" {
				return fmt.Errorf("server %s: mailbox %s requires both success and failure children", s.Name, box)
			}
			if mb.Success == mb.Failure {
				return fmt.Errorf("server %s: mailbox %s success and failure children must differ", s.Name, box)
			}
			if mb.Success == box || mb.Failure == box {
				return fmt.Errorf("server %s: mailbox %s success and failure children must differ from the mailbox itself", s.Name, box)
			}
		}
	}

	switch PersonNotFoundPolicy(c.Runtime.OnPersonNotFound) {
	case PolicyCreateSystemIssue, PolicyMoveMsgToFailureFolder:
	default:
		return fmt.Errorf("runtime.onPersonNotFound must be %q or %q, got %q",
			PolicyCreateSystemIssue, PolicyMoveMsgToFailureFolder, c.Runtime.OnPersonNotFound)
	}

	if c.Runtime.MaxQueryMessages <= 0 {
		return fmt.Errorf("runtime.maxQueryMessages must be positive")
	}
	if c.Runtime.QueryInterval <= 0 {
		return fmt.Errorf("runtime.queryInterval must be positive")
	}

	for _, d := range c.Runtime.CommentDelimiters {
		if d.Literal == "" && d.Regex == "" {
			return fmt.Errorf("comment delimiter requires literal or regex")
		}
		if d.Literal != "" && d.Regex != "" {
			return fmt.Errorf("comment delimiter must not set both literal and regex")
		}
		if d.Regex != "" {
			if _, err := regexp.Compile(d.Regex); err != nil {
				return fmt.Errorf("invalid delimiter regex %q: %w", d.Regex, err)
			}
		}
	}

	for _, a := range c.Runtime.PermittedBodyAttributes {
		switch a.Type {
		case "date", "id", "string":
		default:
			return fmt.Errorf("attribute %s: unknown type %q", a.Name, a.Type)
		}
	}

	if c.TicketClient.BaseURL == "" {
		return fmt.Errorf("ticketClient.baseURL is required")
	}

	return nil
}

// Server looks up a server by name.
func (c *Config) Server(name string) (*ServerConfig, error) {
	for i := range c.Servers {
		if c.Servers[i].Name == name {
			return &c.Servers[i], nil
		}
	}
	return nil, fmt.Errorf("server not found: %s", name)
}

// Package mailimap wraps github.com/emersion/go-imap/v2's imapclient with
// the subset of IMAP operations the mail gateway needs: connect, login,
// list mailboxes, select, search unseen, fetch, move, and logout. Blocking
// Wait() calls are run in a goroutine and raced against ctx.Done() so a
// supervisor can cancel an in-flight command during shutdown.
package mailimap

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-sasl"
	"github.com/hkdb/srq-mailgate/internal/logging"
	"github.com/rs/zerolog"
)

// deadlineConn wraps a net.Conn to set a read/write deadline before every
// operation, so a stalled server can't block the supervisor forever.
type deadlineConn struct {
	net.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func (c *deadlineConn) Read(b []byte) (int, error) {
	if c.readTimeout > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(b)
}

func (c *deadlineConn) Write(b []byte) (int, error) {
	if c.writeTimeout > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(b)
}

// Security selects how the connection to the server is secured.
type Security string

const (
	SecurityNone     Security = "none"
	SecurityTLS      Security = "tls"
	SecurityStartTLS Security = "starttls"
)

// ClientConfig holds the connection parameters for one IMAP server.
type ClientConfig struct {
	Host     string
	Port     int
	Security Security
	Username string
	Password string

	// TLSInsecure skips certificate verification. Defaults to false; a
	// per-server opt-in only, never process-wide (spec.md Design Notes
	// flags a global TLS-verify-off toggle as a hazard).
	TLSInsecure bool

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// DefaultConfig returns connection timeouts suited to polling a mailbox
// and occasionally fetching a full message body.
func DefaultConfig() ClientConfig {
	return ClientConfig{
		Port:           993,
		Security:       SecurityTLS,
		ConnectTimeout: 30 * time.Second,
		ReadTimeout:    3 * time.Minute,
		WriteTimeout:   30 * time.Second,
	}
}

// Client wraps an imapclient.Client with the gateway's timeout and
// capability handling.
type Client struct {
	config ClientConfig
	client *imapclient.Client
	caps   imap.CapSet
	log    zerolog.Logger
}

// NewClient creates a client but does not connect.
func NewClient(config ClientConfig) *Client {
	return &Client{
		config: config,
		log:    logging.WithComponent("mailimap"),
	}
}

// Connect dials the server, waits for the greeting, and records its
// capabilities. Login must be called separately.
func (c *Client) Connect() error {
	addr := fmt.Sprintf("%s:%d", c.config.Host, c.config.Port)

	c.log.Debug().
		Str("host", c.config.Host).
		Int("port", c.config.Port).
		Str("security", string(c.config.Security)).
		Msg("connecting to IMAP server")

	var err error
	options := &imapclient.Options{}
	dialer := &net.Dialer{Timeout: c.config.ConnectTimeout}

	switch c.config.Security {
	case SecurityTLS:
		tlsConfig := &tls.Config{ServerName: c.config.Host, InsecureSkipVerify: c.config.TLSInsecure}
		rawConn, dialErr := tls.DialWithDialer(dialer, "tcp", addr, tlsConfig)
		if dialErr != nil {
			return fmt.Errorf("connect with TLS: %w", dialErr)
		}
		wrapped := &deadlineConn{Conn: rawConn, readTimeout: c.config.ReadTimeout, writeTimeout: c.config.WriteTimeout}
		c.client = imapclient.New(wrapped, options)

	case SecurityStartTLS:
		options.TLSConfig = &tls.Config{ServerName: c.config.Host, InsecureSkipVerify: c.config.TLSInsecure}
		c.client, err = imapclient.DialStartTLS(addr, options)
		if err != nil {
			return fmt.Errorf("connect with STARTTLS: %w", err)
		}

	case SecurityNone:
		rawConn, dialErr := dialer.Dial("tcp", addr)
		if dialErr != nil {
			return fmt.Errorf("connect: %w", dialErr)
		}
		wrapped := &deadlineConn{Conn: rawConn, readTimeout: c.config.ReadTimeout, writeTimeout: c.config.WriteTimeout}
		c.client = imapclient.New(wrapped, options)

	default:
		return fmt.Errorf("unknown security mode %q", c.config.Security)
	}

	if err := c.client.WaitGreeting(); err != nil {
		c.client.Close()
		return fmt.Errorf("receive greeting: %w", err)
	}

	c.caps = c.client.Caps()
	c.log.Info().Str("host", c.config.Host).Msg("connected to IMAP server")
	return nil
}

// Login authenticates with LOGIN, falling back to AUTHENTICATE PLAIN when
// the server advertises LOGINDISABLED.
func (c *Client) Login() error {
	if c.client == nil {
		return fmt.Errorf("not connected")
	}

	if c.caps.Has(imap.CapLoginDisabled) {
		c.log.Debug().Msg("LOGIN disabled, using AUTHENTICATE PLAIN")
		saslClient := sasl.NewPlainClient("", c.config.Username, c.config.Password)
		if err := c.client.Authenticate(saslClient); err != nil {
			return fmt.Errorf("authenticate: %w", err)
		}
	} else {
		if err := c.client.Login(c.config.Username, c.config.Password).Wait(); err != nil {
			return fmt.Errorf("login: %w", err)
		}
	}

	c.caps = c.client.Caps()
	c.log.Info().Str("username", c.config.Username).Msg("logged in")
	return nil
}

// Close logs out and closes the underlying connection.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	if err := c.client.Logout().Wait(); err != nil {
		c.log.Warn().Err(err).Msg("logout failed, closing anyway")
	}
	return c.client.Close()
}

// HasCap reports whether the server advertised cap.
func (c *Client) HasCap(cap imap.Cap) bool {
	return c.caps.Has(cap)
}

// Mailbox is one entry returned by ListMailboxes.
type Mailbox struct {
	Name       string
	Delimiter  string
	Attributes []string
}

// Noselect reports whether the mailbox carries \Noselect, meaning it is a
// hierarchy placeholder rather than a mailbox that can be polled.
func (m *Mailbox) Noselect() bool {
	for _, a := range m.Attributes {
		if imap.MailboxAttr(a) == imap.MailboxAttrNoSelect {
			return true
		}
	}
	return false
}

// ListMailboxes lists every mailbox visible to the authenticated user.
func (c *Client) ListMailboxes(ctx context.Context) ([]*Mailbox, error) {
	if c.client == nil {
		return nil, fmt.Errorf("not connected")
	}

	listCmd := c.client.List("", "*", nil)

	var mailboxes []*Mailbox
	for {
		mbox := listCmd.Next()
		if mbox == nil {
			break
		}
		mb := &Mailbox{
			Name:       mbox.Mailbox,
			Delimiter:  string(mbox.Delim),
			Attributes: make([]string, len(mbox.Attrs)),
		}
		for i, attr := range mbox.Attrs {
			mb.Attributes[i] = string(attr)
		}
		mailboxes = append(mailboxes, mb)
	}

	if err := listCmd.Close(); err != nil {
		return nil, fmt.Errorf("list mailboxes: %w", err)
	}
	return mailboxes, nil
}

// SelectMailbox selects a mailbox and returns the number of messages it
// holds. It races the blocking Wait() call against ctx cancellation.
func (c *Client) SelectMailbox(ctx context.Context, name string) (uint32, error) {
	if c.client == nil {
		return 0, fmt.Errorf("not connected")
	}

	type result struct {
		data *imap.SelectData
		err  error
	}
	resultCh := make(chan result, 1)
	go func() {
		data, err := c.client.Select(name, nil).Wait()
		resultCh <- result{data, err}
	}()

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case r := <-resultCh:
		if r.err != nil {
			return 0, fmt.Errorf("select mailbox %s: %w", name, r.err)
		}
		return r.data.NumMessages, nil
	}
}

// SearchUnseen returns the UIDs of unread messages in the currently
// selected mailbox.
func (c *Client) SearchUnseen(ctx context.Context) ([]imap.UID, error) {
	if c.client == nil {
		return nil, fmt.Errorf("not connected")
	}

	criteria := &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}

	type result struct {
		data *imap.SearchData
		err  error
	}
	resultCh := make(chan result, 1)
	go func() {
		data, err := c.client.UIDSearch(criteria, nil).Wait()
		resultCh <- result{data, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-resultCh:
		if r.err != nil {
			return nil, fmt.Errorf("search unseen: %w", r.err)
		}
		return r.data.AllUIDs(), nil
	}
}

// HeaderData is what FetchHeaders returns for one message: its UID, raw
// header section and RFC822 size. BODYSTRUCTURE is not fetched.
type HeaderData struct {
	UID     imap.UID
	Header  []byte // raw RFC822 header section
	RFC822Size int64
}

// FetchHeaders fetches the header section and size for each UID, in
// ascending UID order, streaming results as they arrive so a cancelled
// context stops the fetch mid-flight instead of discarding completed
// work.
func (c *Client) FetchHeaders(ctx context.Context, uids []imap.UID) ([]HeaderData, error) {
	if c.client == nil {
		return nil, fmt.Errorf("not connected")
	}
	if len(uids) == 0 {
		return nil, nil
	}

	uidSet := imap.UIDSet{}
	for _, uid := range uids {
		uidSet.AddNum(uid)
	}
	options := &imap.FetchOptions{
		UID:        true,
		RFC822Size: true,
		BodySection: []*imap.FetchItemBodySection{
			{Specifier: imap.PartSpecifierHeader, Peek: true},
		},
	}

	fetchCmd := c.client.Fetch(uidSet, options)
	defer fetchCmd.Close()

	var out []HeaderData
	for {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}

		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		hd := HeaderData{}
		for {
			item := msg.Next()
			if item == nil {
				break
			}
			switch v := item.(type) {
			case imapclient.FetchItemDataUID:
				hd.UID = v.UID
			case imapclient.FetchItemDataRFC822Size:
				hd.RFC822Size = v.Size
			case imapclient.FetchItemDataBodySection:
				if v.Literal != nil {
					data, err := io.ReadAll(v.Literal)
					if err != nil {
						return out, fmt.Errorf("read header literal for uid %d: %w", hd.UID, err)
					}
					hd.Header = data
				}
			}
		}
		out = append(out, hd)
	}

	if err := fetchCmd.Close(); err != nil {
		return out, fmt.Errorf("fetch headers: %w", err)
	}
	return out, nil
}

// FetchFullBody fetches the complete RFC822 source of one message by UID,
// without marking it seen (Peek: true) until the caller explicitly marks
// it processed.
func (c *Client) FetchFullBody(ctx context.Context, uid imap.UID) ([]byte, error) {
	if c.client == nil {
		return nil, fmt.Errorf("not connected")
	}

	uidSet := imap.UIDSet{}
	uidSet.AddNum(uid)
	options := &imap.FetchOptions{
		UID: true,
		BodySection: []*imap.FetchItemBodySection{
			{Specifier: imap.PartSpecifierNone, Peek: true},
		},
	}

	fetchCmd := c.client.Fetch(uidSet, options)
	defer fetchCmd.Close()

	var raw []byte
	msg := fetchCmd.Next()
	if msg != nil {
		for {
			item := msg.Next()
			if item == nil {
				break
			}
			if section, ok := item.(imapclient.FetchItemDataBodySection); ok && section.Literal != nil {
				data, err := io.ReadAll(section.Literal)
				if err != nil {
					return nil, fmt.Errorf("read body literal for uid %d: %w", uid, err)
				}
				raw = data
			}
		}
	}

	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("fetch full body for uid %d: %w", uid, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("no body section returned for uid %d", uid)
	}
	return raw, nil
}

// MarkSeen adds the \Seen flag to a message by UID.
func (c *Client) MarkSeen(uid imap.UID) error {
	return c.addFlags(uid, []imap.Flag{imap.FlagSeen})
}

func (c *Client) addFlags(uid imap.UID, flags []imap.Flag) error {
	if c.client == nil {
		return fmt.Errorf("not connected")
	}
	uidSet := imap.UIDSet{}
	uidSet.AddNum(uid)
	storeFlags := &imap.StoreFlags{Op: imap.StoreFlagsAdd, Flags: flags, Silent: true}
	storeCmd := c.client.Store(uidSet, storeFlags, nil)
	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("add flags: %w", err)
	}
	return nil
}

// MoveByUID moves a message to destMailbox, using UID MOVE (RFC 6851) when
// the server supports it, and COPY+STORE \Deleted+EXPUNGE otherwise.
func (c *Client) MoveByUID(uid imap.UID, destMailbox string) error {
	if c.client == nil {
		return fmt.Errorf("not connected")
	}

	uidSet := imap.UIDSet{}
	uidSet.AddNum(uid)

	if c.caps.Has(imap.CapMove) {
		moveCmd := c.client.Move(uidSet, destMailbox)
		if _, err := moveCmd.Wait(); err != nil {
			return fmt.Errorf("move uid %d to %s: %w", uid, destMailbox, err)
		}
		return nil
	}

	copyCmd := c.client.Copy(uidSet, destMailbox)
	if _, err := copyCmd.Wait(); err != nil {
		return fmt.Errorf("copy uid %d to %s: %w", uid, destMailbox, err)
	}

	storeFlags := &imap.StoreFlags{Op: imap.StoreFlagsAdd, Flags: []imap.Flag{imap.FlagDeleted}, Silent: true}
	storeCmd := c.client.Store(uidSet, storeFlags, nil)
	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("mark uid %d deleted: %w", uid, err)
	}

	if c.caps.Has(imap.CapUIDPlus) {
		if err := c.client.UIDExpunge(uidSet).Close(); err != nil {
			return fmt.Errorf("uid expunge %d: %w", uid, err)
		}
	} else {
		if err := c.client.Expunge().Close(); err != nil {
			return fmt.Errorf("expunge: %w", err)
		}
	}
	return nil
}

package mailbox

import (
	"context"
	"fmt"

	"github.com/emersion/go-imap/v2"
	"github.com/hkdb/srq-mailgate/internal/config"
	"github.com/hkdb/srq-mailgate/internal/dispatch"
	"github.com/hkdb/srq-mailgate/internal/logging"
	"github.com/hkdb/srq-mailgate/internal/mailimap"
	"github.com/hkdb/srq-mailgate/internal/mailparse"
	"github.com/rs/zerolog"
)

// MailClient is the subset of mailimap.Client a mailbox processor needs.
// *mailimap.Client satisfies it; tests supply a fake.
type MailClient interface {
	SelectMailbox(ctx context.Context, name string) (uint32, error)
	SearchUnseen(ctx context.Context) ([]imap.UID, error)
	FetchHeaders(ctx context.Context, uids []imap.UID) ([]mailimap.HeaderData, error)
	FetchFullBody(ctx context.Context, uid imap.UID) ([]byte, error)
	MarkSeen(uid imap.UID) error
	MoveByUID(uid imap.UID, destMailbox string) error
}

// Processor runs one configured top-level mailbox's poll cycle against
// an already-authenticated connection.
type Processor struct {
	client     MailClient
	dispatcher *dispatch.Dispatcher
	runtime    *config.RuntimeConfig
	log        zerolog.Logger
}

func NewProcessor(client MailClient, dispatcher *dispatch.Dispatcher, runtime *config.RuntimeConfig) *Processor {
	return &Processor{
		client:     client,
		dispatcher: dispatcher,
		runtime:    runtime,
		log:        logging.WithComponent("mailbox"),
	}
}

// ProcessMailbox selects name, searches for unseen messages (capped to
// MaxQueryMessages), and dispatches each one in ascending UID order. A
// message is always marked \Seen before dispatch is attempted, so a
// crash mid-cycle can't cause the same message to be re-opened as a
// duplicate ticket on the next poll; a dispatch failure still files the
// message into the failure child mailbox.
func (p *Processor) ProcessMailbox(ctx context.Context, name string, children config.MailboxConfig) (processed int, err error) {
	if _, err := p.client.SelectMailbox(ctx, name); err != nil {
		return 0, fmt.Errorf("select mailbox %s: %w", name, err)
	}

	uids, err := p.client.SearchUnseen(ctx)
	if err != nil {
		return 0, fmt.Errorf("search unseen in %s: %w", name, err)
	}
	if len(uids) == 0 {
		return 0, nil
	}

	if max := p.runtime.MaxQueryMessages; max > 0 && len(uids) > max {
		p.log.Warn().Str("mailbox", name).Int("unseen", len(uids)).Int("cap", max).Msg("more unseen messages than the configured query cap, deferring the rest to the next poll")
		uids = uids[:max]
	}

	headers, err := p.client.FetchHeaders(ctx, uids)
	if err != nil {
		return 0, fmt.Errorf("fetch headers in %s: %w", name, err)
	}

	for _, h := range headers {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		p.processOne(ctx, name, children, h.UID)
		processed++
	}
	return processed, nil
}

func (p *Processor) processOne(ctx context.Context, mailboxName string, children config.MailboxConfig, uid imap.UID) {
	log := p.log.With().Str("mailbox", mailboxName).Uint64("uid", uint64(uid)).Logger()

	raw, err := p.client.FetchFullBody(ctx, uid)
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch full message body")
		return
	}

	if err := p.client.MarkSeen(uid); err != nil {
		log.Warn().Err(err).Msg("failed to mark message seen")
	}

	msg, err := mailparse.Parse(uint32(uid), raw)
	if err != nil {
		log.Error().Err(err).Msg("failed to parse message, filing to failure mailbox")
		p.moveTo(uid, children.Failure, log)
		return
	}

	// Invariant: every dispatched message gets exactly one move, to
	// success or failure — spam and other rejections settle as failure,
	// never leaving the message unmoved.
	dest := children.Failure
	if p.dispatcher.Dispatch(ctx, msg) == dispatch.OutcomeSuccess {
		dest = children.Success
	}
	p.moveTo(uid, dest, log)
}

func (p *Processor) moveTo(uid imap.UID, dest string, log zerolog.Logger) {
	if err := p.client.MoveByUID(uid, dest); err != nil {
		log.Error().Err(err).Str("dest", dest).Msg("failed to move message")
	}
}

// Package dispatch implements the per-message pipeline: decide whether a
// message continues an existing ticket (COMMENT-FLOW) or opens a new one
// (ISSUE-FLOW), run the spam gate, and produce a single Outcome. Design
// Notes call for no nested continuation chains — one function resolves
// to exactly one of Success/Failure per message, each settled by exactly
// one move to the success or failure child mailbox (spec.md Invariant 3).
package dispatch

import (
	"context"

	"github.com/hkdb/srq-mailgate/internal/attachupload"
	"github.com/hkdb/srq-mailgate/internal/bodyproc"
	"github.com/hkdb/srq-mailgate/internal/config"
	"github.com/hkdb/srq-mailgate/internal/logging"
	"github.com/hkdb/srq-mailgate/internal/mailmodel"
	"github.com/hkdb/srq-mailgate/internal/spamgate"
	"github.com/hkdb/srq-mailgate/internal/ticketclient"
	"github.com/rs/zerolog"
)

// Outcome is the sum-typed result of dispatching one message.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// TicketAPI is the subset of ticketclient.Client the dispatch pipeline
// calls. *ticketclient.Client satisfies it; tests supply a fake.
type TicketAPI interface {
	FindPersonByEmail(ctx context.Context, email string) (*ticketclient.Person, error)
	FindIssueBySRQ(ctx context.Context, srq string) (*ticketclient.Issue, error)
	CreateIssue(ctx context.Context, req ticketclient.CreateIssueRequest) (*ticketclient.Issue, error)
	AddComment(ctx context.Context, issueID string, req ticketclient.AddCommentRequest) error
	PersonTimezone(ctx context.Context, personID string) (string, error)
}

// AttachmentUploader is the subset of attachupload.Uploader the dispatch
// pipeline calls.
type AttachmentUploader interface {
	UploadAll(ctx context.Context, resourceID string, msg *mailmodel.Message, joinAttachments, joinOriginalAsEML bool) error
}

// Dispatcher runs the per-message pipeline against a ticketing API.
type Dispatcher struct {
	client   TicketAPI
	uploader AttachmentUploader
	gate     *spamgate.Gate
	runtime  *config.RuntimeConfig
	log      zerolog.Logger
}

func New(client TicketAPI, uploader AttachmentUploader, gate *spamgate.Gate, runtime *config.RuntimeConfig) *Dispatcher {
	return &Dispatcher{
		client:   client,
		uploader: uploader,
		gate:     gate,
		runtime:  runtime,
		log:      logging.WithComponent("dispatch"),
	}
}

// Dispatch runs the full decision pipeline for one already-parsed
// message and returns its outcome. The spam gate only runs once a
// message's sender is resolved to a person-id, inside the found-person
// branch of whichever flow handles it (spec.md §4.4/§4.8); an unknown
// sender is never spam-checked.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *mailmodel.Message) Outcome {
	fromEmail := firstOrEmpty(msg.Header.From)

	if _, err := bodyproc.Process(msg, d.runtime); err != nil {
		d.log.Error().Err(err).Uint32("uid", msg.UID).Msg("body processing failed")
		return OutcomeFailure
	}

	person, err := d.client.FindPersonByEmail(ctx, fromEmail)
	if err != nil {
		d.log.Error().Err(err).Str("from", fromEmail).Msg("person lookup failed")
		return OutcomeFailure
	}

	if srq, ok := msg.SRQ(); ok {
		return d.commentFlow(ctx, msg, person, srq)
	}
	return d.issueFlow(ctx, msg, person, fromEmail)
}

// handlePersonNotFound applies the configured policy (spec.md Open
// Question #1, resolved in DESIGN.md) for ISSUE-FLOW's unknown-sender
// branch: either open a system-attributed issue anyway, or treat the
// message as a dispatch failure so the mailbox processor moves it to
// the failure child mailbox.
func (d *Dispatcher) handlePersonNotFound(ctx context.Context, msg *mailmodel.Message, fromEmail string) Outcome {
	switch config.PersonNotFoundPolicy(d.runtime.OnPersonNotFound) {
	case config.PolicyCreateSystemIssue:
		const systemPersonID = "system"
		return d.createIssue(ctx, msg, systemPersonID, msg.ParsedFields)
	default:
		d.log.Warn().Str("from", fromEmail).Msg("sender not found, moving to failure mailbox")
		return OutcomeFailure
	}
}

// commentFlow adds msg as a comment on the issue referenced by srq. If
// the issue can't be found, the message degrades to opening a new issue
// instead of being silently dropped. An unknown sender still produces an
// anonymous comment (no author) rather than a failure: onPersonNotFound
// only governs ISSUE-FLOW (spec.md §4.4 COMMENT-FLOW step 2).
func (d *Dispatcher) commentFlow(ctx context.Context, msg *mailmodel.Message, person *ticketclient.Person, srq string) Outcome {
	issue, err := d.client.FindIssueBySRQ(ctx, srq)
	if err != nil {
		d.log.Warn().Err(err).Str("srq", srq).Msg("issue lookup failed, falling back to new issue")
		return d.issueFlow(ctx, msg, person, firstOrEmpty(msg.Header.From))
	}
	if issue == nil {
		d.log.Info().Str("srq", srq).Msg("referenced issue not found, falling back to new issue")
		return d.issueFlow(ctx, msg, person, firstOrEmpty(msg.Header.From))
	}

	var personID string
	if person != nil {
		if d.gate.IsSpam(person.ID, msg.Header.Raw) {
			d.log.Info().Str("personId", person.ID).Str("issueId", issue.ID).Msg("comment rejected by spam gate")
			return OutcomeFailure
		}
		personID = person.ID
	}

	if err := d.client.AddComment(ctx, issue.ID, ticketclient.AddCommentRequest{
		PersonID: personID,
		Body:     msg.Body,
	}); err != nil {
		d.log.Error().Err(err).Str("issueId", issue.ID).Msg("add comment failed")
		return OutcomeFailure
	}

	// joinOriginalAsEml is only ever applied to new issues, not comments.
	if err := d.uploader.UploadAll(ctx, issue.ID, msg, d.runtime.JoinAttachments, false); err != nil {
		d.log.Warn().Err(err).Str("issueId", issue.ID).Msg("attachment upload failed, comment was still recorded")
	}

	return OutcomeSuccess
}

// issueFlow opens a new ticket from msg. An unknown sender is handled by
// the configured onPersonNotFound policy; a known sender passes the
// spam gate and has its date attributes adjusted to its timezone offset
// before the issue is created (spec.md §4.4 ISSUE-FLOW, §4.6).
func (d *Dispatcher) issueFlow(ctx context.Context, msg *mailmodel.Message, person *ticketclient.Person, fromEmail string) Outcome {
	if person == nil {
		return d.handlePersonNotFound(ctx, msg, fromEmail)
	}

	if d.gate.IsSpam(person.ID, msg.Header.Raw) {
		d.log.Info().Str("personId", person.ID).Msg("issue rejected by spam gate")
		return OutcomeFailure
	}

	fields := d.offsetDateFields(ctx, person.ID, msg.ParsedFields)
	return d.createIssue(ctx, msg, person.ID, fields)
}

// createIssue opens a ticket authored by personID with the given
// (already timezone-adjusted, if applicable) fields.
func (d *Dispatcher) createIssue(ctx context.Context, msg *mailmodel.Message, personID string, fields map[string]string) Outcome {
	issue, err := d.client.CreateIssue(ctx, ticketclient.CreateIssueRequest{
		PersonID: personID,
		Subject:  msg.Header.Subject,
		Body:     msg.Body,
		Fields:   fields,
	})
	if err != nil {
		d.log.Error().Err(err).Str("subject", msg.Header.Subject).Msg("issue creation failed")
		return OutcomeFailure
	}

	if err := d.uploader.UploadAll(ctx, issue.ID, msg, d.runtime.JoinAttachments, d.runtime.JoinOriginalAsEML); err != nil {
		d.log.Warn().Err(err).Str("issueId", issue.ID).Msg("attachment upload failed, issue was still created")
	}

	return OutcomeSuccess
}

// offsetDateFields appends personID's UTC offset (spec.md §4.6) to every
// field value already canonicalized as a bare ISO 8601 local-time
// string. A timezone lookup failure defaults to +00:00 rather than
// blocking issue creation.
func (d *Dispatcher) offsetDateFields(ctx context.Context, personID string, fields map[string]string) map[string]string {
	if len(fields) == 0 {
		return fields
	}

	offset, err := d.client.PersonTimezone(ctx, personID)
	if err != nil {
		d.log.Warn().Err(err).Str("personId", personID).Msg("person timezone lookup failed, defaulting to +00:00")
		offset = "+00:00"
	}

	adjusted := make(map[string]string, len(fields))
	for k, v := range fields {
		if mailmodel.IsNormalizedDate(v) {
			v += offset
		}
		adjusted[k] = v
	}
	return adjusted
}

func firstOrEmpty(ss []string) string {
	if len(ss) == 0 {
		return ""
	}
	return ss[0]
}

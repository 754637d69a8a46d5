package mailbox

import (
	"context"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/hkdb/srq-mailgate/internal/config"
	"github.com/hkdb/srq-mailgate/internal/dispatch"
	"github.com/hkdb/srq-mailgate/internal/mailimap"
	"github.com/hkdb/srq-mailgate/internal/mailmodel"
	"github.com/hkdb/srq-mailgate/internal/spamgate"
	"github.com/hkdb/srq-mailgate/internal/ticketclient"
)

const rawPlainMessage = "From: sender@example.com\r\nSubject: help\r\nContent-Type: text/plain\r\n\r\nhello there\r\n"

type fakeMailClient struct {
	unseen  []imap.UID
	headers []mailimap.HeaderData
	body    []byte
	moved   map[imap.UID]string
	seen    map[imap.UID]bool
}

func newFakeMailClient(uids []imap.UID) *fakeMailClient {
	headers := make([]mailimap.HeaderData, len(uids))
	for i, uid := range uids {
		headers[i] = mailimap.HeaderData{UID: uid}
	}
	return &fakeMailClient{
		unseen:  uids,
		headers: headers,
		body:    []byte(rawPlainMessage),
		moved:   make(map[imap.UID]string),
		seen:    make(map[imap.UID]bool),
	}
}

func (f *fakeMailClient) SelectMailbox(ctx context.Context, name string) (uint32, error) {
	return uint32(len(f.unseen)), nil
}

func (f *fakeMailClient) SearchUnseen(ctx context.Context) ([]imap.UID, error) {
	return f.unseen, nil
}

func (f *fakeMailClient) FetchHeaders(ctx context.Context, uids []imap.UID) ([]mailimap.HeaderData, error) {
	if len(uids) > len(f.headers) {
		return f.headers, nil
	}
	return f.headers[:len(uids)], nil
}

func (f *fakeMailClient) FetchFullBody(ctx context.Context, uid imap.UID) ([]byte, error) {
	return f.body, nil
}

func (f *fakeMailClient) MarkSeen(uid imap.UID) error {
	f.seen[uid] = true
	return nil
}

func (f *fakeMailClient) MoveByUID(uid imap.UID, destMailbox string) error {
	f.moved[uid] = destMailbox
	return nil
}

func newTestDispatcher(personFound bool) *dispatch.Dispatcher {
	var person *ticketclient.Person
	if personFound {
		person = &ticketclient.Person{ID: "p1"}
	}
	client := &testTicketAPI{person: person}
	gate := spamgate.New(config.SpamConfig{}, testCounter{})
	runtime := &config.RuntimeConfig{OnPersonNotFound: string(config.PolicyMoveMsgToFailureFolder)}
	return dispatch.New(client, testUploader{}, gate, runtime)
}

func TestProcessMailboxFilesSuccessfullyDispatchedMessages(t *testing.T) {
	client := newFakeMailClient([]imap.UID{1, 2})
	d := newTestDispatcher(true)
	p := NewProcessor(client, d, &config.RuntimeConfig{MaxQueryMessages: 10})

	children := config.MailboxConfig{Success: "Support.Done", Failure: "Support.Failed"}
	n, err := p.ProcessMailbox(context.Background(), "Support", children)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 processed, got %d", n)
	}
	for _, uid := range []imap.UID{1, 2} {
		if !client.seen[uid] {
			t.Errorf("expected uid %d marked seen", uid)
		}
		if client.moved[uid] != "Support.Done" {
			t.Errorf("expected uid %d moved to Support.Done, got %q", uid, client.moved[uid])
		}
	}
}

func TestProcessMailboxCapsToMaxQueryMessages(t *testing.T) {
	client := newFakeMailClient([]imap.UID{1, 2, 3, 4})
	d := newTestDispatcher(true)
	p := NewProcessor(client, d, &config.RuntimeConfig{MaxQueryMessages: 2})

	children := config.MailboxConfig{Success: "Support.Done", Failure: "Support.Failed"}
	n, err := p.ProcessMailbox(context.Background(), "Support", children)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected cap to 2 processed, got %d", n)
	}
}

func TestProcessMailboxNoUnseenIsNoop(t *testing.T) {
	client := newFakeMailClient(nil)
	d := newTestDispatcher(true)
	p := NewProcessor(client, d, &config.RuntimeConfig{})

	children := config.MailboxConfig{Success: "Support.Done", Failure: "Support.Failed"}
	n, err := p.ProcessMailbox(context.Background(), "Support", children)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 processed, got %d", n)
	}
}

func TestProcessMailboxFilesDispatchFailuresToFailureMailbox(t *testing.T) {
	client := newFakeMailClient([]imap.UID{5})
	d := newTestDispatcher(false) // no person found -> failure under default policy
	p := NewProcessor(client, d, &config.RuntimeConfig{})

	children := config.MailboxConfig{Success: "Support.Done", Failure: "Support.Failed"}
	if _, err := p.ProcessMailbox(context.Background(), "Support", children); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.moved[5] != "Support.Failed" {
		t.Fatalf("expected uid 5 moved to Support.Failed, got %q", client.moved[5])
	}
}

type testTicketAPI struct {
	person *ticketclient.Person
}

func (f *testTicketAPI) FindPersonByEmail(ctx context.Context, email string) (*ticketclient.Person, error) {
	return f.person, nil
}

func (f *testTicketAPI) FindIssueBySRQ(ctx context.Context, srq string) (*ticketclient.Issue, error) {
	return nil, nil
}

func (f *testTicketAPI) CreateIssue(ctx context.Context, req ticketclient.CreateIssueRequest) (*ticketclient.Issue, error) {
	return &ticketclient.Issue{ID: "issue-1"}, nil
}

func (f *testTicketAPI) AddComment(ctx context.Context, issueID string, req ticketclient.AddCommentRequest) error {
	return nil
}

func (f *testTicketAPI) PersonTimezone(ctx context.Context, personID string) (string, error) {
	return "+00:00", nil
}

type testUploader struct{}

func (testUploader) UploadAll(ctx context.Context, resourceID string, msg *mailmodel.Message, joinAttachments, joinOriginalAsEML bool) error {
	return nil
}

type testCounter struct{}

func (testCounter) CountIssuesSince(personID string, since time.Time) (int, error) {
	return 0, nil
}

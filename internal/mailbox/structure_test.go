package mailbox

import (
	"context"
	"testing"

	"github.com/hkdb/srq-mailgate/internal/config"
	"github.com/hkdb/srq-mailgate/internal/mailimap"
)

type fakeLister struct {
	mailboxes []*mailimap.Mailbox
}

func (f *fakeLister) ListMailboxes(ctx context.Context) ([]*mailimap.Mailbox, error) {
	return f.mailboxes, nil
}

func TestEnsureStructurePasses(t *testing.T) {
	lister := &fakeLister{mailboxes: []*mailimap.Mailbox{
		{Name: "Support"}, {Name: "Support.Done"}, {Name: "Support.Failed"},
	}}
	mailboxes := map[string]config.MailboxConfig{
		"Support": {Success: "Support.Done", Failure: "Support.Failed"},
	}

	if err := EnsureStructure(context.Background(), lister, mailboxes); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEnsureStructureMissingChildFails(t *testing.T) {
	lister := &fakeLister{mailboxes: []*mailimap.Mailbox{{Name: "Support"}}}
	mailboxes := map[string]config.MailboxConfig{
		"Support": {Success: "Support.Done", Failure: "Support.Failed"},
	}

	if err := EnsureStructure(context.Background(), lister, mailboxes); err == nil {
		t.Fatal("expected error for missing child mailbox")
	}
}

func TestEnsureStructureIgnoresNoselectPlaceholders(t *testing.T) {
	lister := &fakeLister{mailboxes: []*mailimap.Mailbox{
		{Name: "Support", Attributes: []string{string(`\Noselect`)}},
		{Name: "Support.Done"}, {Name: "Support.Failed"},
	}}
	mailboxes := map[string]config.MailboxConfig{
		"Support": {Success: "Support.Done", Failure: "Support.Failed"},
	}

	if err := EnsureStructure(context.Background(), lister, mailboxes); err == nil {
		t.Fatal("expected error: Support itself is a Noselect placeholder")
	}
}

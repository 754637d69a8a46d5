// Package mailbox verifies mailbox hierarchies and runs the per-mailbox
// poll-fetch-dispatch-file cycle for one supervised server connection.
package mailbox

import (
	"context"
	"fmt"

	"github.com/hkdb/srq-mailgate/internal/config"
	"github.com/hkdb/srq-mailgate/internal/mailimap"
)

// MailboxLister is the subset of mailimap.Client EnsureStructure needs.
type MailboxLister interface {
	ListMailboxes(ctx context.Context) ([]*mailimap.Mailbox, error)
}

// EnsureStructure verifies that every configured top-level mailbox and
// its success/failure children exist on the server. It never creates
// mailboxes itself — a missing mailbox is an operator configuration
// error reported up so the supervisor can refuse to start polling a
// server it can't file messages on.
func EnsureStructure(ctx context.Context, client MailboxLister, mailboxes map[string]config.MailboxConfig) error {
	present, err := client.ListMailboxes(ctx)
	if err != nil {
		return fmt.Errorf("list mailboxes: %w", err)
	}

	known := make(map[string]bool, len(present))
	for _, mb := range present {
		if !mb.Noselect() {
			known[mb.Name] = true
		}
	}

	for top, children := range mailboxes {
		if !known[top] {
			return fmt.Errorf("configured mailbox %q does not exist on server", top)
		}
		if !known[children.Success] {
			return fmt.Errorf("success mailbox %q (for %q) does not exist on server", children.Success, top)
		}
		if !known[children.Failure] {
			return fmt.Errorf("failure mailbox %q (for %q) does not exist on server", children.Failure, top)
		}
	}
	return nil
}

// Package spamgate implements the spam short-circuit chain of the
// mailbox processor's per-message dispatch: a sender who has opened more
// than the configured number of issues within a time window is treated
// as spam unless explicitly exempted.
package spamgate

import (
	"strings"
	"time"

	"github.com/hkdb/srq-mailgate/internal/config"
	"github.com/hkdb/srq-mailgate/internal/logging"
	"github.com/rs/zerolog"
)

// IssueCounter answers how many issues a given person-id has opened
// since a cutoff time — the one piece of information this gate needs
// from the ticketing collaborator.
type IssueCounter interface {
	CountIssuesSince(personID string, since time.Time) (int, error)
}

// Gate evaluates the spam short-circuit chain.
type Gate struct {
	cfg     config.SpamConfig
	counter IssueCounter
	log     zerolog.Logger
}

func New(cfg config.SpamConfig, counter IssueCounter) *Gate {
	return &Gate{cfg: cfg, counter: counter, log: logging.WithComponent("spamgate")}
}

// IsSpam decides whether a message authored by personID, carrying the
// given headers, should be treated as spam. The chain short-circuits in
// this order: an explicitly exempted person-id is never spam; a
// configured header present on the message marks it spam outright;
// otherwise the person's recent issue count against the configured
// threshold decides. A lookup failure fails open — not spam — consistent
// with the gateway's general rule that a collaborator failure degrades
// rather than aborts processing (see DESIGN.md's Open Question #3).
func (g *Gate) IsSpam(personID string, headers map[string][]string) bool {
	for _, exempt := range g.cfg.DontCheckAuthors {
		if exempt == personID {
			return false
		}
	}

	for _, h := range g.cfg.Headers {
		if _, present := headers[strings.ToLower(h)]; present {
			g.log.Debug().Str("personId", personID).Str("header", h).Msg("message flagged spam by header match")
			return true
		}
	}

	if g.cfg.MaxNumOfIssues <= 0 {
		return false
	}

	since := timeNow().Add(-g.cfg.TimeSpan)
	count, err := g.counter.CountIssuesSince(personID, since)
	if err != nil {
		g.log.Warn().Err(err).Str("personId", personID).Msg("issue count lookup failed, failing open")
		return false
	}

	return count > g.cfg.MaxNumOfIssues
}

// timeNow is a var so tests can override it without a clock-injection
// parameter threading through every caller.
var timeNow = time.Now

package spamgate

import (
	"errors"
	"testing"
	"time"

	"github.com/hkdb/srq-mailgate/internal/config"
)

type fakeCounter struct {
	count int
	err   error
}

func (f *fakeCounter) CountIssuesSince(personID string, since time.Time) (int, error) {
	return f.count, f.err
}

func TestIsSpamExemptAuthor(t *testing.T) {
	g := New(config.SpamConfig{MaxNumOfIssues: 0, DontCheckAuthors: []string{"p-vip"}}, &fakeCounter{count: 100})
	if g.IsSpam("p-vip", nil) {
		t.Fatal("expected exempt author to never be spam")
	}
}

func TestIsSpamHeaderMatch(t *testing.T) {
	g := New(config.SpamConfig{Headers: []string{"X-Bulk-Mail"}}, &fakeCounter{})
	if !g.IsSpam("p1", map[string][]string{"x-bulk-mail": {"true"}}) {
		t.Fatal("expected header match to flag spam")
	}
}

func TestIsSpamOverThreshold(t *testing.T) {
	g := New(config.SpamConfig{MaxNumOfIssues: 5, TimeSpan: time.Hour}, &fakeCounter{count: 6})
	if !g.IsSpam("p1", nil) {
		t.Fatal("expected count over threshold to be spam")
	}
}

func TestIsSpamUnderThreshold(t *testing.T) {
	g := New(config.SpamConfig{MaxNumOfIssues: 5, TimeSpan: time.Hour}, &fakeCounter{count: 2})
	if g.IsSpam("p1", nil) {
		t.Fatal("expected count under threshold to not be spam")
	}
}

func TestIsSpamFailsOpenOnLookupError(t *testing.T) {
	g := New(config.SpamConfig{MaxNumOfIssues: 1, TimeSpan: time.Hour}, &fakeCounter{err: errors.New("boom")})
	if g.IsSpam("p1", nil) {
		t.Fatal("expected lookup error to fail open (not spam)")
	}
}

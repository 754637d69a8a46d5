package mailmodel

import "testing"

func TestExtractSRQ(t *testing.T) {
	cases := []struct {
		subject string
		want    string
		found   bool
	}{
		{"Re: ticket SRQ000000000123 update", "SRQ000000000123", true},
		{"no reference here", "", false},
		{"SRQ12 too short", "", false},
	}
	for _, c := range cases {
		got, ok := ExtractSRQ(c.subject)
		if ok != c.found || got != c.want {
			t.Errorf("ExtractSRQ(%q) = (%q, %v), want (%q, %v)", c.subject, got, ok, c.want, c.found)
		}
	}
}

func TestMatchesType(t *testing.T) {
	if !MatchesType(AttributeDate, "31/07/2026") {
		t.Error("expected valid DD/MM/YYYY date to match")
	}
	if !MatchesType(AttributeDate, "31-07-2026 14:05") {
		t.Error("expected valid DD-MM-YYYY HH:MM date to match")
	}
	if MatchesType(AttributeDate, "2026-07-31") {
		t.Error("expected ISO date to not match the DD/MM/YYYY grammar")
	}
	if !MatchesType(AttributeID, "ABC000000000042") {
		t.Error("expected three-letter-plus-12-digit id to match")
	}
	if MatchesType(AttributeID, "ABC") {
		t.Error("expected bare three-letter value without digits to not match id grammar")
	}
	if MatchesType(AttributeID, "ABCD000000000042") {
		t.Error("expected four-letter prefix to not match id grammar")
	}
	if !MatchesType(AttributeString, "anything at all") {
		t.Error("expected string type to match unconditionally")
	}
}

func TestNormalizeDate(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"31/07/2026", "2026-07-31T23:59:59", true},
		{"31-07-2026 14:05", "2026-07-31T14:05:00", true},
		{"1/1/2026", "2026-01-01T23:59:59", true},
		{"not-a-date", "", false},
		{"32/13/2026", "", false},
	}
	for _, c := range cases {
		got, ok := NormalizeDate(c.in)
		if ok != c.ok || got != c.want {
			t.Errorf("NormalizeDate(%q) = (%q, %v), want (%q, %v)", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestIsNormalizedDate(t *testing.T) {
	if !IsNormalizedDate("2026-07-31T23:59:59") {
		t.Error("expected canonical local date to be recognized")
	}
	if IsNormalizedDate("2026-07-31T23:59:59+05:00") {
		t.Error("expected an already offset-adjusted value to not match")
	}
	if IsNormalizedDate("31/07/2026") {
		t.Error("expected raw un-normalized input to not match")
	}
}

func TestMessageSRQ(t *testing.T) {
	m := &Message{Header: Header{Subject: "Re: help SRQ000000000042"}}
	srq, ok := m.SRQ()
	if !ok || srq != "SRQ000000000042" {
		t.Fatalf("expected SRQ000000000042, got (%q, %v)", srq, ok)
	}
}

// Package mailmodel defines the message, attachment, and attribute types
// shared across the gateway's parsing, body-processing, and dispatch
// stages.
package mailmodel

import "time"

// AttributeType is the grammar a permitted body attribute value must
// match.
type AttributeType string

const (
	AttributeDate   AttributeType = "date"
	AttributeID     AttributeType = "id"
	AttributeString AttributeType = "string"
)

// Header holds the envelope fields a mailbox processor needs before
// deciding whether to fetch a message's full body.
type Header struct {
	From    []string
	To      []string
	Subject string
	Date    time.Time
	// Raw carries every header, keyed by lower-cased name, for the spam
	// gate's configured-header check.
	Raw map[string][]string
}

// Attachment represents one decoded MIME part of a message. Every field
// is populated in one pass when the full message body is parsed; there
// is no earlier BODYSTRUCTURE-based discovery step.
type Attachment struct {
	FileName         string
	ContentType      string
	TransferEncoding string
	Length           int
	ContentID        string
	IsInline         bool
	Content          []byte
}

// Message is the parsed representation of one mailbox item as it moves
// through the dispatch pipeline.
type Message struct {
	UID     uint32
	Header  Header
	RawEML  []byte // full RFC822 source, used for the <uid>-message.eml upload
	Body    string // effective body after delimiter truncation
	BodyIsHTML bool
	Attachments []Attachment

	// ParsedFields holds the permitted body attributes extracted from
	// Body, keyed by the configured attribute name.
	ParsedFields map[string]string
}

// SRQ returns the ticket ID embedded in the subject, if the subject
// matches the SRQ<12 digits> grammar, and whether a match was found.
func (m *Message) SRQ() (string, bool) {
	return ExtractSRQ(m.Header.Subject)
}

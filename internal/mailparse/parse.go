// Package mailparse turns a raw RFC822 message into a mailmodel.Message:
// header extraction, multipart walk, charset decoding, and Outlook TNEF
// attachment unwrapping.
package mailparse

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"net/mail"
	"strings"

	gomessage "github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset" // registers extra charsets with go-message's decoder
	"github.com/hkdb/srq-mailgate/internal/logging"
	"github.com/hkdb/srq-mailgate/internal/mailmodel"
	"github.com/rs/zerolog"
	"github.com/teamwork/tnef"
)

// maxPartSize bounds how much of any single MIME part is read into memory,
// guarding against a malicious or malformed message exhausting memory.
const maxPartSize = 25 * 1024 * 1024

var log zerolog.Logger = logging.WithComponent("mailparse")

// Parse reads a raw RFC822 message (the bytes returned by a FETCH BODY[])
// and produces the domain Message the rest of the gateway operates on.
// uid is stamped onto the result for logging; raw is kept verbatim on the
// message for the optional <uid>-message.eml upload.
func Parse(uid uint32, raw []byte) (*mailmodel.Message, error) {
	header, err := parseHeader(raw)
	if err != nil {
		return nil, err
	}

	msg := &mailmodel.Message{
		UID:    uid,
		Header: header,
		RawEML: raw,
	}

	entity, err := gomessage.Read(bytes.NewReader(raw))
	if err != nil {
		log.Debug().Err(err).Uint32("uid", uid).Msg("failed to parse as MIME, treating body as plain text")
		msg.Body = string(raw)
		return msg, nil
	}

	if mr := entity.MultipartReader(); mr != nil {
		parseMultipart(mr, msg)
	} else {
		parseSinglePart(entity, msg)
	}

	return msg, nil
}

func parseHeader(raw []byte) (mailmodel.Header, error) {
	m, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return mailmodel.Header{}, errors.New("parse header: " + err.Error())
	}

	h := mailmodel.Header{
		Subject: decodeMIMEWord(m.Header.Get("Subject")),
		Raw:     map[string][]string{},
	}
	if from := m.Header.Get("From"); from != "" {
		h.From = []string{decodeMIMEWord(from)}
	}
	if to := m.Header.Get("To"); to != "" {
		h.To = []string{decodeMIMEWord(to)}
	}
	if date, err := m.Header.Date(); err == nil {
		h.Date = date
	}
	for k, vals := range m.Header {
		h.Raw[strings.ToLower(k)] = vals
	}
	return h, nil
}

func parseMultipart(mr gomessage.MultipartReader, msg *mailmodel.Message) {
	for {
		part, err := mr.NextPart()
		if err != nil {
			if !errors.Is(err, io.EOF) && !strings.Contains(err.Error(), "EOF") {
				log.Debug().Err(err).Msg("error reading multipart")
			}
			break
		}

		contentType, params, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
		disposition, dispParams, _ := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
		contentID := strings.Trim(part.Header.Get("Content-ID"), "<>")

		if contentType == "application/ms-tnef" {
			if attachments := unwrapTNEF(part); len(attachments) > 0 {
				msg.Attachments = append(msg.Attachments, attachments...)
				continue
			}
		}

		if strings.HasPrefix(contentType, "multipart/") {
			if nested := part.MultipartReader(); nested != nil {
				parseMultipart(nested, msg)
			}
			continue
		}

		if disposition == "attachment" || (contentID != "" && !strings.HasPrefix(contentType, "text/")) {
			att := extractAttachment(part, contentType, dispParams, contentID, disposition == "inline" || contentID != "")
			if att != nil {
				msg.Attachments = append(msg.Attachments, *att)
			}
			continue
		}

		body, err := io.ReadAll(io.LimitReader(part.Body, maxPartSize))
		if err != nil && len(body) == 0 {
			continue
		}

		charsetName := params["charset"]
		if charsetName == "" && contentType == "text/html" {
			charsetName = extractCharsetFromHTML(body)
		}
		decoded := decodeCharset(body, charsetName)

		switch contentType {
		case "text/plain":
			if msg.Body == "" || msg.BodyIsHTML {
				msg.Body = decoded
				msg.BodyIsHTML = false
			}
		case "text/html":
			if msg.Body == "" {
				msg.Body = decoded
				msg.BodyIsHTML = true
			}
		}
	}
}

func parseSinglePart(entity *gomessage.Entity, msg *mailmodel.Message) {
	contentType, params, _ := mime.ParseMediaType(entity.Header.Get("Content-Type"))
	body, err := io.ReadAll(io.LimitReader(entity.Body, maxPartSize))
	if err != nil && len(body) == 0 {
		return
	}

	charsetName := params["charset"]
	if charsetName == "" && contentType == "text/html" {
		charsetName = extractCharsetFromHTML(body)
	}
	decoded := decodeCharset(body, charsetName)

	if contentType == "text/html" {
		msg.Body = decoded
		msg.BodyIsHTML = true
	} else {
		msg.Body = decoded
	}
}

func extractAttachment(part *gomessage.Entity, contentType string, dispParams map[string]string, contentID string, isInline bool) *mailmodel.Attachment {
	filename := dispParams["filename"]
	if filename == "" {
		_, ctParams, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
		filename = ctParams["name"]
	}
	filename = decodeMIMEWord(filename)
	if filename == "" {
		filename = "attachment.bin"
	}

	content, err := io.ReadAll(io.LimitReader(part.Body, maxPartSize))
	if err != nil && len(content) == 0 {
		log.Debug().Err(err).Str("filename", filename).Msg("failed to read attachment content")
	}

	return &mailmodel.Attachment{
		FileName:    filename,
		ContentType: contentType,
		ContentID:   contentID,
		IsInline:    isInline,
		Length:      len(content),
		Content:     content,
	}
}

// unwrapTNEF decodes an Outlook "winmail.dat"/TNEF attachment into its
// real constituent attachments, so a comment body or issue body is never
// left with a single opaque application/ms-tnef blob.
func unwrapTNEF(part *gomessage.Entity) []mailmodel.Attachment {
	raw, err := io.ReadAll(io.LimitReader(part.Body, maxPartSize))
	if err != nil && len(raw) == 0 {
		return nil
	}

	data, err := tnef.Decode(raw)
	if err != nil {
		log.Debug().Err(err).Msg("failed to decode TNEF attachment")
		return nil
	}

	out := make([]mailmodel.Attachment, 0, len(data.Attachments))
	for _, a := range data.Attachments {
		out = append(out, mailmodel.Attachment{
			FileName:    a.Title,
			ContentType: "application/octet-stream",
			Length:      len(a.Data),
			Content:     a.Data,
		})
	}
	return out
}

func decodeMIMEWord(s string) string {
	if s == "" {
		return s
	}
	dec := new(mime.WordDecoder)
	decoded, err := dec.DecodeHeader(s)
	if err != nil {
		return s
	}
	return decoded
}

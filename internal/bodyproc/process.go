package bodyproc

import (
	"github.com/hkdb/srq-mailgate/internal/config"
	"github.com/hkdb/srq-mailgate/internal/mailmodel"
)

// Process truncates msg.Body at the configured delimiters (when
// cfg.TruncateCommentsAfterDelimiter is set), sanitizes HTML bodies, and
// extracts the permitted body attributes. It mutates msg in place and
// also returns the effective body for convenience.
func Process(msg *mailmodel.Message, cfg *config.RuntimeConfig) (string, error) {
	delims, err := CompileDelimiters(cfg.CommentDelimiters)
	if err != nil {
		return "", err
	}

	body := msg.Body
	if cfg.TruncateCommentsAfterDelimiter {
		if msg.BodyIsHTML {
			truncated, err := TruncateHTML(body, delims)
			if err != nil {
				return "", err
			}
			body = truncated
		} else {
			body = TruncateText(body, delims)
		}
	}

	if msg.BodyIsHTML {
		body = Sanitize(body)
	}

	msg.Body = body
	msg.ParsedFields = ExtractAttributes(body, cfg.PermittedBodyAttributes)
	return body, nil
}

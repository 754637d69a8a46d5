package mailparse

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/htmlindex"
)

// metaCharsetPattern extracts charset= from an HTML <meta> tag when a part
// carries no Content-Type charset parameter of its own.
var metaCharsetPattern = regexp.MustCompile(`(?i)charset=["']?([a-zA-Z0-9_-]+)`)

func extractCharsetFromHTML(body []byte) string {
	m := metaCharsetPattern.FindSubmatch(body)
	if m == nil {
		return ""
	}
	return string(m[1])
}

// decodeCharset converts content to UTF-8, trusting declaredCharset first
// and falling back to autodetection (golang.org/x/net/html/charset) when
// the declared charset is empty, unknown, or produces invalid UTF-8.
func decodeCharset(content []byte, declaredCharset string) string {
	if declaredCharset == "" || strings.EqualFold(declaredCharset, "utf-8") || strings.EqualFold(declaredCharset, "us-ascii") {
		if utf8.Valid(content) {
			return string(content)
		}
		enc, _, _ := charset.DetermineEncoding(content, "text/html")
		if decoded, err := enc.NewDecoder().Bytes(content); err == nil {
			return string(decoded)
		}
		return string(content)
	}

	enc, err := htmlindex.Get(declaredCharset)
	if err != nil {
		return string(content)
	}
	decoded, err := enc.NewDecoder().Bytes(content)
	if err != nil {
		return string(content)
	}
	return string(decoded)
}

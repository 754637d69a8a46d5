// Package bodyproc implements the delimiter-based comment truncation and
// typed attribute extraction that turn a parsed message body into the
// text actually uploaded to a ticket.
package bodyproc

import (
	"regexp"
	"strings"

	"github.com/hkdb/srq-mailgate/internal/config"
	"golang.org/x/net/html"
)

// compiledDelimiter is a config.Delimiter pre-compiled into a matcher.
type compiledDelimiter struct {
	literal string
	regex   *regexp.Regexp
}

// CompileDelimiters compiles the ordered delimiter list into matchers.
// Process calls it once for each message it handles.
func CompileDelimiters(delims []config.Delimiter) ([]compiledDelimiter, error) {
	out := make([]compiledDelimiter, 0, len(delims))
	for _, d := range delims {
		if d.Regex != "" {
			re, err := regexp.Compile(d.Regex)
			if err != nil {
				return nil, err
			}
			out = append(out, compiledDelimiter{regex: re})
			continue
		}
		out = append(out, compiledDelimiter{literal: d.Literal})
	}
	return out, nil
}

// findEarliest returns the index of the earliest delimiter match in s, or
// -1 if none of the delimiters match.
func findEarliest(s string, delims []compiledDelimiter) int {
	earliest := -1
	for _, d := range delims {
		var idx int
		if d.regex != nil {
			loc := d.regex.FindStringIndex(s)
			if loc == nil {
				continue
			}
			idx = loc[0]
		} else {
			idx = strings.Index(s, d.literal)
			if idx < 0 {
				continue
			}
		}
		if earliest < 0 || idx < earliest {
			earliest = idx
		}
	}
	return earliest
}

// TruncateText truncates plain-text body at the earliest configured
// delimiter, dropping the delimiter and everything after it. A body with
// no matching delimiter is returned unchanged.
func TruncateText(body string, delims []compiledDelimiter) string {
	idx := findEarliest(body, delims)
	if idx < 0 {
		return body
	}
	return strings.TrimRight(body[:idx], "\r\n \t")
}

// TruncateHTML truncates an HTML body at the earliest configured
// delimiter. It parses the body into a DOM (golang.org/x/net/html, whose
// tree nodes carry Parent/PrevSibling/NextSibling natively), finds the
// deepest node whose own text first contains a delimiter, then removes
// that node and every one of its following siblings at each level walking
// up to <body> — the same shape a human reader's eye follows when a
// reply quotes an earlier message below a delimiter line.
func TruncateHTML(bodyHTML string, delims []compiledDelimiter) (string, error) {
	doc, err := html.Parse(strings.NewReader(bodyHTML))
	if err != nil {
		return bodyHTML, err
	}

	target := findDeepestMatch(doc, delims)
	if target == nil {
		return bodyHTML, nil
	}

	removeFromHere(target)

	var sb strings.Builder
	if err := html.Render(&sb, doc); err != nil {
		return bodyHTML, err
	}
	return sb.String(), nil
}

// findDeepestMatch walks the DOM depth-first and returns the first text
// node, in document order, whose own text contains a delimiter; a
// delimiter split across several text nodes is not found.
// Depth-first-first-match means an earlier, more deeply
// nested delimiter wins over a shallower one appearing later in document
// order, matching how quoted-reply markers are nested inside the
// innermost <div>/<blockquote> of a reply chain.
func findDeepestMatch(n *html.Node, delims []compiledDelimiter) *html.Node {
	var found *html.Node
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if found != nil {
			return
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
			if found != nil {
				return
			}
		}
		if node.Type == html.TextNode {
			if findEarliest(node.Data, delims) >= 0 {
				found = node
			}
		}
	}
	walk(n)
	if found == nil {
		return nil
	}
	// A text node's siblings are what must be removed; operate on the
	// node itself, whose Parent holds the removal context.
	return found
}

// removeFromHere removes node and every following sibling at its level,
// then climbs to the parent and removes only the parent's following
// siblings (the parent itself holds content before the delimiter and is
// kept), repeating until it reaches the element whose parent is <body>.
// This is what keeps everything textually before the delimiter — at
// every ancestor level — while discarding the delimiter itself and
// everything document-order after it.
func removeFromHere(node *html.Node) {
	removeNodeAndFollowing(node)

	current := node.Parent
	for current != nil && current.Parent != nil {
		if current.Parent.Type == html.ElementNode && current.Parent.Data == "body" {
			removeFollowing(current)
			return
		}
		removeFollowing(current)
		current = current.Parent
	}
}

// removeNodeAndFollowing removes node and its following siblings from
// node.Parent.
func removeNodeAndFollowing(node *html.Node) {
	parent := node.Parent
	if parent == nil {
		return
	}
	for sib := node; sib != nil; {
		next := sib.NextSibling
		parent.RemoveChild(sib)
		sib = next
	}
}

// removeFollowing removes every sibling after node, keeping node itself.
func removeFollowing(node *html.Node) {
	for sib := node.NextSibling; sib != nil; {
		next := sib.NextSibling
		node.Parent.RemoveChild(sib)
		sib = next
	}
}

package bodyproc

import "github.com/microcosm-cc/bluemonday"

// sanitizer is shared across all messages: bluemonday policies are safe
// for concurrent use once built and are relatively expensive to
// construct, so building one per message would be wasteful.
var sanitizer = bluemonday.UGCPolicy()

// Sanitize runs a final safety pass over truncated HTML before it is
// uploaded as ticket content, stripping anything bluemonday's
// user-generated-content policy doesn't allow (script tags, inline event
// handlers, and so on) that may have survived the delimiter truncation.
func Sanitize(bodyHTML string) string {
	return sanitizer.Sanitize(bodyHTML)
}

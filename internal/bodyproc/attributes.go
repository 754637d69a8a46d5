package bodyproc

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hkdb/srq-mailgate/internal/config"
	"github.com/hkdb/srq-mailgate/internal/mailmodel"
)

// attributeLinePattern matches a "Name: value" line, the grammar every
// permitted body attribute is extracted with regardless of its declared
// type; the declared type only constrains what value is accepted.
var attributeLinePattern = regexp.MustCompile(`(?m)^\s*([A-Za-z][A-Za-z0-9 _-]*)\s*:\s*(.+?)\s*$`)

// ExtractAttributes scans body (already truncated at the comment
// delimiter) for "Name: value" lines matching one of the configured
// permitted attributes, validating each extracted value against its
// declared grammar (date/id/string). Lines whose name isn't in the
// permitted list, or whose value fails the grammar check, are ignored —
// not an error, since arbitrary free text commonly contains colons.
func ExtractAttributes(body string, attrs []config.AttributeConfig) map[string]string {
	permitted := make(map[string]mailmodel.AttributeType, len(attrs))
	for _, a := range attrs {
		permitted[strings.ToLower(a.Name)] = mailmodel.AttributeType(a.Type)
	}

	out := map[string]string{}
	for _, m := range attributeLinePattern.FindAllStringSubmatch(body, -1) {
		name, value := strings.ToLower(strings.TrimSpace(m[1])), strings.TrimSpace(m[2])
		typ, ok := permitted[name]
		if !ok {
			continue
		}
		if typ == mailmodel.AttributeDate {
			normalized, ok := mailmodel.NormalizeDate(value)
			if !ok {
				continue
			}
			out[m[1]] = normalized
			continue
		}
		if !mailmodel.MatchesType(typ, value) {
			continue
		}
		out[m[1]] = value
	}
	return out
}

// ValidateAttribute reports an error if value does not conform to typ's
// grammar; used when an attribute is required rather than best-effort.
func ValidateAttribute(typ mailmodel.AttributeType, value string) error {
	if !mailmodel.MatchesType(typ, value) {
		return fmt.Errorf("value %q does not match %s grammar", value, typ)
	}
	return nil
}

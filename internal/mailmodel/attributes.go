package mailmodel

import (
	"fmt"
	"regexp"
	"strconv"
)

// srqPattern matches the ticket-reference grammar used in reply subject
// lines: the literal "SRQ" followed by exactly twelve digits.
var srqPattern = regexp.MustCompile(`SRQ(\d{12})`)

// ExtractSRQ scans subject for the SRQ<12 digits> grammar and returns the
// full match (including the "SRQ" prefix) and true if found.
func ExtractSRQ(subject string) (string, bool) {
	m := srqPattern.FindString(subject)
	if m == "" {
		return "", false
	}
	return m, true
}

// datePattern matches DD[-/]MM[-/]YYYY with an optional trailing HH:MM,
// the grammar spec.md assigns to attributes typed "date". The two
// separators are matched independently so "12-01/2024" is accepted same
// as "12/01/2024".
var datePattern = regexp.MustCompile(`^([0-3]?\d)[-/]([0-1]?\d)[-/](\d{4})(?:\s+([0-2]?\d):([0-5]\d))?$`)

// idPattern matches three uppercase letters followed by twelve digits,
// the grammar spec.md assigns to attributes typed "id" (distinct from
// the subject's SRQ-id grammar, which carries its own "SRQ" literal
// prefix).
var idPattern = regexp.MustCompile(`^[A-Z]{3}\d{12}$`)

// isoLocalPattern matches the canonical output of NormalizeDate before a
// timezone offset has been appended.
var isoLocalPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}$`)

// MatchesType reports whether value conforms to the grammar for typed t.
// AttributeString matches unconditionally: any extracted text qualifies.
func MatchesType(t AttributeType, value string) bool {
	switch t {
	case AttributeDate:
		return datePattern.MatchString(value)
	case AttributeID:
		return idPattern.MatchString(value)
	case AttributeString:
		return true
	default:
		return false
	}
}

// NormalizeDate canonicalizes a value already matching the "date"
// attribute grammar into YYYY-MM-DDTHH:MM:00. A value with no time
// component canonicalizes to 23:59:59, the grammar's documented
// end-of-day default. Returns false if value doesn't match the grammar.
func NormalizeDate(value string) (string, bool) {
	m := datePattern.FindStringSubmatch(value)
	if m == nil {
		return "", false
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	if day < 1 || day > 31 || month < 1 || month > 12 {
		return "", false
	}

	hour, minute, seconds := 23, 59, "59"
	if m[4] != "" {
		hour, _ = strconv.Atoi(m[4])
		minute, _ = strconv.Atoi(m[5])
		seconds = "00"
	}

	return fmt.Sprintf("%04d-%02d-%02dT%02d:%02d:%s", year, month, day, hour, minute, seconds), true
}

// IsNormalizedDate reports whether value is a bare ISO 8601 local-time
// string as produced by NormalizeDate, not yet offset-adjusted for a
// timezone (spec.md §4.6).
func IsNormalizedDate(value string) bool {
	return isoLocalPattern.MatchString(value)
}

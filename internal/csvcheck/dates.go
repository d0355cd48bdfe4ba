package csvcheck

// dates.go holds the date grammars accepted in statusDate and entdte.
//
// Grammars are tried in order. The first one that recognises the shape of a
// value decides the outcome; a value no grammar recognises is an error.
// Day is range-checked against 1-31 only, so 2024-02-31 passes.

import (
	"regexp"
	"strconv"
	"strings"
)

type matchKind int

const (
	noMatch matchKind = iota
	matchOK
	matchDeprecated
	matchInvalid
)

type dateMatch struct {
	kind   matchKind
	detail string // set for matchInvalid
}

type dateGrammar struct {
	name    string
	pattern *regexp.Regexp
	// positions of month and day capture groups
	month, day int
	// accepted, but reported as a warning
	deprecated bool
}

var (
	isoDate = dateGrammar{
		name:    "YYYY-MM-DD",
		pattern: regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})(\s+\d{2}:\d{2}:\d{2}(\.\d{3})?)?$`),
		month:   2,
		day:     3,
	}
	legacyDate = dateGrammar{
		name:       "M/D/YYYY",
		pattern:    regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`),
		month:      1,
		day:        2,
		deprecated: true,
	}
)

var dateGrammars = []dateGrammar{isoDate, legacyDate}

func (g dateGrammar) match(value string) dateMatch {
	m := g.pattern.FindStringSubmatch(value)
	if m == nil {
		return dateMatch{kind: noMatch}
	}

	month, _ := strconv.Atoi(m[g.month])
	if month < 1 || month > 12 {
		return dateMatch{kind: matchInvalid, detail: "has invalid month: " + m[g.month]}
	}
	day, _ := strconv.Atoi(m[g.day])
	if day < 1 || day > 31 {
		return dateMatch{kind: matchInvalid, detail: "has invalid day: " + m[g.day]}
	}
	if g.deprecated {
		return dateMatch{kind: matchDeprecated}
	}
	return dateMatch{kind: matchOK}
}

// isNullDate reports whether value stands for "no date".
func isNullDate(value string) bool {
	return value == "" || strings.EqualFold(value, "NULL")
}

// checkDate validates one date cell. It returns at most one finding.
func checkDate(row int, field, raw string) (Finding, bool) {
	value := strings.TrimSpace(raw)
	if isNullDate(value) {
		return Finding{}, false
	}

	for _, g := range dateGrammars {
		m := g.match(value)
		switch m.kind {
		case noMatch:
			continue
		case matchInvalid:
			return rowError(row, "%s %s", field, m.detail), true
		case matchDeprecated:
			return rowWarning(row, "%s uses deprecated date format (%s). Please use ISO 8601 format (YYYY-MM-DD)",
				field, g.name), true
		default:
			return Finding{}, false
		}
	}

	return rowError(row, `%s has invalid date format: "%s". Use YYYY-MM-DD format`, field, value), true
}

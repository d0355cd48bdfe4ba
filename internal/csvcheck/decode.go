package csvcheck

// decode.go turns raw upload bytes into a Document.
//
// The whole buffer is decoded at once; callers cap the size upstream.
// Lines are split on \n or \r\n and blank lines are dropped before row
// numbers are assigned, so a blank line never shifts numbering.

import (
	"bytes"
	"errors"
	"strings"
	"unicode/utf8"
)

// ErrEmptyFile is returned by Parse when the input has no non-blank lines.
var ErrEmptyFile = errors.New("csvcheck: no non-blank lines")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Document is a parsed file. Rows[0] is the header.
type Document struct {
	Rows   [][]string
	HadBOM bool
}

// Header returns the header row, or nil for an empty document.
func (d Document) Header() []string {
	if len(d.Rows) == 0 {
		return nil
	}
	return d.Rows[0]
}

// DataRows returns every row after the header.
func (d Document) DataRows() [][]string {
	if len(d.Rows) < 2 {
		return nil
	}
	return d.Rows[1:]
}

// HasBOM reports whether data starts with the UTF-8 byte order mark.
func HasBOM(data []byte) bool {
	return bytes.HasPrefix(data, utf8BOM)
}

// StripBOM returns data without a leading UTF-8 BOM. Later bytes are untouched.
func StripBOM(data []byte) []byte {
	if HasBOM(data) {
		return data[len(utf8BOM):]
	}
	return data
}

// Parse decodes data and splits it into trimmed fields.
func Parse(data []byte) (Document, error) {
	doc := Document{HadBOM: HasBOM(data)}

	text := sanitizeUTF8(StripBOM(data))
	for _, line := range splitLines(text) {
		if strings.TrimSpace(line) == "" {
			continue
		}
		doc.Rows = append(doc.Rows, ParseLine(line))
	}

	if len(doc.Rows) == 0 {
		return Document{HadBOM: doc.HadBOM}, ErrEmptyFile
	}
	return doc, nil
}

// splitLines splits on \n and drops the \r of a \r\n pair.
// A lone \r is ordinary text.
func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}

// ParseLine scans one line into fields.
//
// A double quote toggles the quoted state; inside quotes a comma is literal
// and "" is one literal quote. An unterminated quote runs to the end of the
// line and everything scanned lands in the last field. Fields are trimmed
// after escapes are resolved.
func ParseLine(line string) []string {
	var (
		fields   []string
		current  strings.Builder
		inQuotes bool
	)

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '"':
			if inQuotes && i+1 < len(line) && line[i+1] == '"' {
				current.WriteByte('"')
				i++
				continue
			}
			inQuotes = !inQuotes
		case c == ',' && !inQuotes:
			fields = append(fields, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteByte(c)
		}
	}

	return append(fields, strings.TrimSpace(current.String()))
}

// sanitizeUTF8 replaces each invalid byte with U+FFFD.
func sanitizeUTF8(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}

	var b strings.Builder
	b.Grow(len(data))
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			b.WriteRune(utf8.RuneError)
		} else {
			b.Write(data[:size])
		}
		data = data[size:]
	}
	return b.String()
}

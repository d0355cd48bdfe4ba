// Package csvcheck validates the daily licence file before it is accepted.
//
// Validation is pure: it reads an in-memory buffer and returns a Verdict.
// The only collaborator is a DateSource used to name the accepted file.
// A Validator holds no mutable state and may be shared between goroutines.
package csvcheck

import (
	"strings"
)

// DateSource supplies the current business date as YYYY-MM-DD.
type DateSource interface {
	Today() string
}

// DateFunc adapts a function to DateSource.
type DateFunc func() string

// Today implements DateSource.
func (f DateFunc) Today() string { return f() }

// Validator checks files against the licence column contract.
type Validator struct {
	dates DateSource
}

// New returns a Validator that names accepted files from dates.
func New(dates DateSource) *Validator {
	return &Validator{dates: dates}
}

// Validate checks content and returns the verdict. It never fails; every
// problem is reported in the verdict. originalFilename is informational only.
func (v *Validator) Validate(content []byte, originalFilename string) Verdict {
	var findings []Finding

	if HasBOM(content) {
		findings = append(findings, Finding{
			Severity: SeverityWarning,
			Message:  "File contains BOM (Byte Order Mark). BOM will be removed during processing.",
		})
	}

	doc, err := Parse(content)
	if err != nil {
		findings = append(findings, docError("File is empty"))
		return assemble(findings, 0, nil)
	}

	if structural := checkDocument(doc); len(structural) > 0 {
		return assemble(append(findings, structural...), 0, nil)
	}

	dataRows := doc.DataRows()
	for i, row := range dataRows {
		// header is row 1
		findings = append(findings, checkRow(i+2, row)...)
	}

	name := v.suggestedFilename()
	return assemble(findings, len(dataRows), &name)
}

// checkDocument runs the checks that stop validation when they fail.
func checkDocument(doc Document) []Finding {
	if len(doc.Rows) == 0 {
		return []Finding{docError("File contains no data rows")}
	}
	if header := checkHeader(doc.Header()); len(header) > 0 {
		return header
	}
	if len(doc.DataRows()) == 0 {
		return []Finding{docError("File contains header but no data rows")}
	}
	return nil
}

// suggestedFilename is the business date as YYYYMMDD.csv.
func (v *Validator) suggestedFilename() string {
	return strings.ReplaceAll(v.dates.Today(), "-", "") + ".csv"
}

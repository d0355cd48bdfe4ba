package csvcheck

// Verdict is the outcome of validating one file.
type Verdict struct {
	Valid             bool      `json:"valid" yaml:"valid"`
	Errors            []string  `json:"errors" yaml:"errors"`
	Warnings          []string  `json:"warnings" yaml:"warnings"`
	SuggestedFilename *string   `json:"suggestedFilename" yaml:"suggestedFilename"`
	RowCount          int       `json:"rowCount" yaml:"rowCount"`
	Findings          []Finding `json:"-" yaml:"-"`
}

// assemble splits findings by severity, keeping insertion order.
// suggested is nil when validation stopped early.
func assemble(findings []Finding, rowCount int, suggested *string) Verdict {
	v := Verdict{
		Errors:            []string{},
		Warnings:          []string{},
		SuggestedFilename: suggested,
		RowCount:          rowCount,
		Findings:          findings,
	}

	for _, f := range findings {
		if f.Severity == SeverityWarning {
			v.Warnings = append(v.Warnings, f.String())
		} else {
			v.Errors = append(v.Errors, f.String())
		}
	}

	v.Valid = len(v.Errors) == 0
	return v
}

// ErrorCount returns the number of error findings.
func (v Verdict) ErrorCount() int {
	return len(v.Errors)
}

package csvcheck

import "fmt"

// Severity classifies a finding.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	default:
		return "error"
	}
}

// Finding is one problem discovered in a file.
// Row is the 1-based line number over non-blank lines (header = 1);
// zero means the finding applies to the whole document.
type Finding struct {
	Severity Severity
	Row      int
	Message  string
}

func (f Finding) String() string {
	if f.Row > 0 {
		return fmt.Sprintf("Row %d: %s", f.Row, f.Message)
	}
	return f.Message
}

func docError(format string, args ...any) Finding {
	return Finding{Severity: SeverityError, Message: fmt.Sprintf(format, args...)}
}

func rowError(row int, format string, args ...any) Finding {
	return Finding{Severity: SeverityError, Row: row, Message: fmt.Sprintf(format, args...)}
}

func rowWarning(row int, format string, args ...any) Finding {
	return Finding{Severity: SeverityWarning, Row: row, Message: fmt.Sprintf(format, args...)}
}

package csvcheck

import (
	"strings"

	"github.com/JonMunkholm/csvportal/internal/schema"
)

// checkHeader runs the document-level header checks in order and returns the
// findings of the first one that fails.
func checkHeader(header []string) []Finding {
	want := schema.LicenceColumns()

	if len(header) != len(want) {
		return []Finding{docError("Header row has %d columns, expected %d columns", len(header), len(want))}
	}

	// A repeated name can never line up with the contract, so duplicates are
	// reported before the positional comparison would bury them.
	seen := make(map[string]bool, len(header))
	for _, name := range header {
		if seen[name] {
			return []Finding{docError(`Duplicate column name: "%s"`, name)}
		}
		seen[name] = true
	}

	var mismatches []Finding
	for i, name := range want {
		if header[i] != name {
			mismatches = append(mismatches,
				docError(`Column %d: expected "%s", got "%s"`, i+1, name, header[i]))
		}
	}
	if len(mismatches) == 0 {
		return nil
	}
	return append([]Finding{docError("Column header mismatch:")}, mismatches...)
}

// checkRow validates one data row. Findings are appended in column order:
// appli_no, trn, app_file_dept, statusDate, entdte, status_num.
func checkRow(rowNum int, fields []string) []Finding {
	if len(fields) != schema.ColumnCount() {
		return []Finding{rowError(rowNum, "has %d columns, expected %d", len(fields), schema.ColumnCount())}
	}

	row := schema.NewRowView(fields)
	var out []Finding

	if isBlank(row.ApplicationNo()) {
		out = append(out, rowError(rowNum, "%s is required", schema.ColumnName(schema.ColApplicationNo)))
	}

	if f, ok := checkTaxRef(rowNum, row.TaxRef()); ok {
		out = append(out, f)
	}

	if isBlank(row.FileDepartment()) {
		out = append(out, rowError(rowNum, "%s is required", schema.ColumnName(schema.ColFileDepartment)))
	}

	if f, ok := checkDate(rowNum, schema.ColumnName(schema.ColStatusDate), row.StatusDate()); ok {
		out = append(out, f)
	}
	if f, ok := checkDate(rowNum, schema.ColumnName(schema.ColEntryDate), row.EntryDate()); ok {
		out = append(out, f)
	}

	if f, ok := checkStatusNum(rowNum, row.StatusNum()); ok {
		out = append(out, f)
	}

	return out
}

func checkTaxRef(rowNum int, raw string) (Finding, bool) {
	field := schema.ColumnName(schema.ColTaxRef)
	value := strings.TrimSpace(raw)

	switch {
	case value == "":
		return rowError(rowNum, "%s is required", field), true
	case !isDigits(value):
		return rowError(rowNum, `%s must be numeric, got: "%s"`, field, value), true
	case len(value) != schema.TaxRefDigits:
		return rowError(rowNum, "%s must be %d digits, got %d digits", field, schema.TaxRefDigits, len(value)), true
	}
	return Finding{}, false
}

func checkStatusNum(rowNum int, raw string) (Finding, bool) {
	value := strings.TrimSpace(raw)
	if value == "" || isDigits(value) {
		return Finding{}, false
	}
	return rowError(rowNum, `%s must be an integer, got: "%s"`, schema.ColumnName(schema.ColStatusNum), value), true
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// isDigits reports whether s is non-empty and only ASCII digits.
func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

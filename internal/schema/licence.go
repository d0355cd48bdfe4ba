// Package schema defines the column contract of the daily licence file.
//
// The contract is positional and case-sensitive: column i of the header must
// equal LicenceColumns[i] exactly. Row fields are read through RowView so
// callers never index into a row with bare integers.
package schema

// FieldType describes what a column is expected to hold.
type FieldType int

const (
	FieldText FieldType = iota
	FieldTaxRef
	FieldDate
	FieldInteger
)

// FieldSpec defines the rules for a single column of the daily file.
type FieldSpec struct {
	Name     string    // Header name (must match exactly)
	Type     FieldType // Expected content
	Required bool      // Value must be non-empty
}

// Column offsets within a row.
const (
	ColApplicationNo = iota
	ColLicenceType
	ColTaxRef
	ColFirstName
	ColMiddleName
	ColLastName
	ColFileStatus
	ColStatusDate
	ColComments
	ColEntryDate
	ColStatusNum
	ColFileLocation
	ColFileDepartment
)

// LicenceFieldSpecs is the full ordered contract. Its length is the required
// width of every row.
var LicenceFieldSpecs = []FieldSpec{
	{Name: "appli_no", Type: FieldText, Required: true},
	{Name: "Licence_Type", Type: FieldText},
	{Name: "trn", Type: FieldTaxRef, Required: true},
	{Name: "FName", Type: FieldText},
	{Name: "MName", Type: FieldText},
	{Name: "LName", Type: FieldText},
	{Name: "file_status", Type: FieldText},
	{Name: "statusDate", Type: FieldDate},
	{Name: "comments", Type: FieldText},
	{Name: "entdte", Type: FieldDate},
	{Name: "status_num", Type: FieldInteger},
	{Name: "app_file_locn", Type: FieldText},
	{Name: "app_file_dept", Type: FieldText, Required: true},
}

// TaxRefDigits is the exact length of a taxpayer reference number.
const TaxRefDigits = 9

// LicenceColumns returns the expected header names in order.
func LicenceColumns() []string {
	cols := make([]string, len(LicenceFieldSpecs))
	for i, spec := range LicenceFieldSpecs {
		cols[i] = spec.Name
	}
	return cols
}

// ColumnCount is the number of columns every row must carry.
func ColumnCount() int {
	return len(LicenceFieldSpecs)
}

// ColumnName returns the header name at offset i.
func ColumnName(i int) string {
	if i < 0 || i >= len(LicenceFieldSpecs) {
		return ""
	}
	return LicenceFieldSpecs[i].Name
}

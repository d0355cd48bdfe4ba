package schema

// RowView gives named access to the fields of one data row.
// It must only wrap rows whose width matches ColumnCount.
type RowView struct {
	fields []string
}

// NewRowView wraps a row. Missing offsets read as "".
func NewRowView(fields []string) RowView {
	return RowView{fields: fields}
}

func (r RowView) at(i int) string {
	if i < 0 || i >= len(r.fields) {
		return ""
	}
	return r.fields[i]
}

// ApplicationNo returns the application identifier (appli_no).
func (r RowView) ApplicationNo() string { return r.at(ColApplicationNo) }

// TaxRef returns the taxpayer reference number (trn).
func (r RowView) TaxRef() string { return r.at(ColTaxRef) }

// FileDepartment returns the department code (app_file_dept).
func (r RowView) FileDepartment() string { return r.at(ColFileDepartment) }

// StatusDate returns the raw statusDate value.
func (r RowView) StatusDate() string { return r.at(ColStatusDate) }

// EntryDate returns the raw entdte value.
func (r RowView) EntryDate() string { return r.at(ColEntryDate) }

// StatusNum returns the raw status_num value.
func (r RowView) StatusNum() string { return r.at(ColStatusNum) }

// Field returns the value at column offset i.
func (r RowView) Field(i int) string { return r.at(i) }

// Width returns the number of fields in the row.
func (r RowView) Width() int { return len(r.fields) }

package core

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ExportFormat selects the audit export encoding.
type ExportFormat string

const (
	ExportCSV  ExportFormat = "csv"
	ExportXLSX ExportFormat = "xlsx"
)

// ContentType returns the MIME type for the format.
func (f ExportFormat) ContentType() string {
	if f == ExportXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// ParseExportFormat accepts "csv" (the default when empty) or "xlsx".
func ParseExportFormat(s string) (ExportFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return ExportCSV, nil
	case "xlsx":
		return ExportXLSX, nil
	default:
		return "", validationError("format must be csv or xlsx")
	}
}

var auditExportHeader = []string{
	"ID", "Timestamp", "Action", "Severity", "Username", "User ID",
	"Upload Session", "IP Hash", "User Agent", "Details",
}

func auditExportRow(e AuditEntry) []string {
	return []string{
		e.ID,
		e.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
		string(e.Action),
		string(e.Severity),
		e.Username,
		e.UserID,
		e.UploadSessionID,
		e.IPHash,
		e.UserAgent,
		string(e.Details),
	}
}

// ExportAudit writes up to MaxAuditLimit entries matching filter to w.
// Paging in filter is ignored. Admin only.
func (s *Service) ExportAudit(ctx context.Context, filter AuditFilter, format ExportFormat, w io.Writer) error {
	if _, err := requireAdmin(ctx, "Only administrators can export audit logs"); err != nil {
		return err
	}
	filter.Limit = MaxAuditLimit
	filter.Offset = 0
	page, err := s.listAudit(ctx, filter)
	if err != nil {
		return err
	}

	switch format {
	case ExportXLSX:
		return writeAuditXLSX(w, page.Items)
	default:
		return writeAuditCSV(w, page.Items)
	}
}

func writeAuditCSV(w io.Writer, entries []AuditEntry) error {
	var sb strings.Builder
	writeCSVLine(&sb, auditExportHeader)
	for _, e := range entries {
		writeCSVLine(&sb, auditExportRow(e))
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func writeCSVLine(sb *strings.Builder, fields []string) {
	for i, f := range fields {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(csvEscapeField(f))
	}
	sb.WriteByte('\n')
}

// csvEscapeField quotes s when it contains a delimiter, quote or newline.
func csvEscapeField(s string) string {
	if strings.ContainsAny(s, ",\"\n\r") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}

func writeAuditXLSX(w io.Writer, entries []AuditEntry) error {
	const sheet = "Audit Log"

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	header := make([]any, len(auditExportHeader))
	for i, h := range auditExportHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(auditExportHeader), 1)
	if err := f.SetCellStyle(sheet, "A1", lastHeader, headerStyle); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, e := range entries {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		fields := auditExportRow(e)
		row := make([]any, len(fields))
		for j, v := range fields {
			row[j] = v
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	f.SetColWidth(sheet, "A", "A", 38)
	f.SetColWidth(sheet, "B", "D", 20)
	f.SetColWidth(sheet, "E", "H", 24)
	f.SetColWidth(sheet, "I", "J", 40)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

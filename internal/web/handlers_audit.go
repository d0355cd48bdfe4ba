package web

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/JonMunkholm/csvportal/internal/bizdate"
	"github.com/JonMunkholm/csvportal/internal/core"
	"github.com/JonMunkholm/csvportal/internal/logging"
)

// parseIntParam parses a non-negative integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 0 {
		return defaultVal
	}
	return i
}

// auditFilterFromQuery reads limit, offset, action, uploadSessionId and
// uploadsOnly.
func auditFilterFromQuery(r *http.Request) core.AuditFilter {
	q := r.URL.Query()
	uploadsOnly, _ := strconv.ParseBool(q.Get("uploadsOnly"))
	return core.AuditFilter{
		Limit:           parseIntParam(r, "limit", core.DefaultAuditLimit),
		Offset:          parseIntParam(r, "offset", 0),
		Action:          q.Get("action"),
		UploadSessionID: q.Get("uploadSessionId"),
		UploadsOnly:     uploadsOnly,
	}
}

func (s *Server) handleAuditList(w http.ResponseWriter, r *http.Request) {
	page, err := s.service.ListAudit(r.Context(), auditFilterFromQuery(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, page)
}

// handleAuditExport streams the filtered audit log as CSV or XLSX.
// The export is buffered so a failure still produces a JSON error.
func (s *Server) handleAuditExport(w http.ResponseWriter, r *http.Request) {
	format, err := core.ParseExportFormat(r.URL.Query().Get("format"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := s.service.ExportAudit(r.Context(), auditFilterFromQuery(r), format, &buf); err != nil {
		respondError(w, r, err)
		return
	}

	filename := fmt.Sprintf("audit-log-%s.%s", bizdate.Compact(s.service.Calendar().Today()), format)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		respondWriteFailure(r, err)
	}
}

// respondWriteFailure logs a failure after the status line was sent.
func respondWriteFailure(r *http.Request, err error) {
	logging.FromContext(r.Context()).Warn("response write failed", "path", r.URL.Path, "error", err)
}

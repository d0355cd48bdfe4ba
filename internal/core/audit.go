package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/JonMunkholm/csvportal/internal/auth"
	db "github.com/JonMunkholm/csvportal/internal/database"
)

// AuditAction represents the type of action being audited.
type AuditAction string

const (
	ActionLoginSuccess      AuditAction = "LOGIN_SUCCESS"
	ActionLoginFailed       AuditAction = "LOGIN_FAILED"
	ActionUserCreated       AuditAction = "USER_CREATED"
	ActionUserUpdated       AuditAction = "USER_UPDATED"
	ActionUserDeleted       AuditAction = "USER_DELETED"
	ActionUserPasswordReset AuditAction = "USER_PASSWORD_RESET"
	ActionIssueSAS          AuditAction = "ISSUE_SAS"
	ActionUploadComplete    AuditAction = "UPLOAD_COMPLETE"
	ActionUploadFailed      AuditAction = "UPLOAD_FAILED"
	ActionUploadDeleted     AuditAction = "UPLOAD_DELETED"
)

// UploadActions are the actions selected by AuditFilter.UploadsOnly.
var UploadActions = []AuditAction{ActionUploadComplete, ActionUploadFailed, ActionUploadDeleted}

// AuditSeverity represents the severity level of an audit entry.
type AuditSeverity string

const (
	SeverityLow      AuditSeverity = "low"
	SeverityMedium   AuditSeverity = "medium"
	SeverityHigh     AuditSeverity = "high"
	SeverityCritical AuditSeverity = "critical"
)

const (
	// DefaultAuditLimit is the page size when none is requested.
	DefaultAuditLimit = 100
	// MaxAuditLimit caps a single page and an export.
	MaxAuditLimit = 1000

	maxUserAgentLength = 500
)

// AuditEntry represents a single audit log entry.
type AuditEntry struct {
	ID              string          `json:"id"`
	Action          AuditAction     `json:"action"`
	Severity        AuditSeverity   `json:"severity"`
	UserID          string          `json:"userId,omitempty"`
	Username        string          `json:"username,omitempty"`
	UploadSessionID string          `json:"uploadSessionId,omitempty"`
	IPHash          string          `json:"ipHash"`
	UserAgent       string          `json:"userAgent,omitempty"`
	Details         json.RawMessage `json:"details,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// AuditEvent describes something worth recording. IP address and user agent
// are taken from the context; the acting user from the Principal unless
// Username is set explicitly (failed logins have no principal).
type AuditEvent struct {
	Action          AuditAction
	Username        string
	UploadSessionID string
	Details         map[string]any
}

// determineSeverity returns the appropriate severity for an action.
func determineSeverity(action AuditAction) AuditSeverity {
	switch action {
	case ActionLoginSuccess:
		return SeverityLow
	case ActionLoginFailed, ActionUploadFailed, ActionUserCreated, ActionUserPasswordReset:
		return SeverityHigh
	case ActionUserDeleted, ActionUploadDeleted:
		return SeverityCritical
	default:
		return SeverityMedium
	}
}

// LogAudit records ev. Audit failures are logged and never interrupt the
// operation being audited.
func (s *Service) LogAudit(ctx context.Context, ev AuditEvent) {
	params := db.InsertAuditLogParams{
		Action:          string(ev.Action),
		Severity:        string(determineSeverity(ev.Action)),
		UploadSessionID: toPgUUID(ev.UploadSessionID),
		IpHash:          auth.HashIP(GetIPAddressFromContext(ctx)),
		UserAgent:       toPgText(truncateUTF8(GetUserAgentFromContext(ctx), maxUserAgentLength)),
	}

	username := ev.Username
	if p, ok := PrincipalFromContext(ctx); ok {
		params.UserID = toPgUUID(p.UserID)
		if username == "" {
			username = p.Username
		}
	}
	params.Username = toPgText(username)

	if ev.Details != nil {
		details, err := json.Marshal(ev.Details)
		if err != nil {
			slog.Warn("audit details not serialisable", "action", ev.Action, "error", err)
		} else {
			params.Details = details
		}
	}

	if _, err := s.store.InsertAuditLog(ctx, params); err != nil {
		slog.Error("failed to write audit log", "action", ev.Action, "error", err)
	}
}

// AuditFilter contains filtering options for querying audit logs.
type AuditFilter struct {
	Limit           int
	Offset          int
	Action          string
	UploadSessionID string
	UploadsOnly     bool
}

// AuditPage is one page of audit entries plus the total matching count.
type AuditPage struct {
	Items  []AuditEntry `json:"items"`
	Total  int64        `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

// normalize clamps paging to the allowed range.
func (f AuditFilter) normalize() AuditFilter {
	if f.Limit == 0 {
		f.Limit = DefaultAuditLimit
	}
	f.Limit = min(max(f.Limit, 1), MaxAuditLimit)
	f.Offset = max(f.Offset, 0)
	return f
}

// ListAudit returns a page of audit entries, newest first. Admin only.
func (s *Service) ListAudit(ctx context.Context, filter AuditFilter) (AuditPage, error) {
	if _, err := requireAdmin(ctx, "Only administrators can view audit logs"); err != nil {
		return AuditPage{}, err
	}
	if filter.UploadSessionID != "" && !toPgUUID(filter.UploadSessionID).Valid {
		return AuditPage{}, validationError("uploadSessionId must be a valid UUID")
	}
	return s.listAudit(ctx, filter.normalize())
}

func (s *Service) listAudit(ctx context.Context, f AuditFilter) (AuditPage, error) {
	var actions []string
	// An explicit action wins over the uploads-only shortcut.
	if f.UploadsOnly && f.Action == "" {
		for _, a := range UploadActions {
			actions = append(actions, string(a))
		}
	}

	action := toPgText(f.Action)
	session := toPgUUID(f.UploadSessionID)

	rows, err := s.store.ListAuditLogs(ctx, db.ListAuditLogsParams{
		Action:          action,
		UploadSessionID: session,
		Actions:         actions,
		Limit:           int32(f.Limit),
		Offset:          int32(f.Offset),
	})
	if err != nil {
		return AuditPage{}, fmt.Errorf("list audit logs: %w", err)
	}

	total, err := s.store.CountAuditLogs(ctx, db.CountAuditLogsParams{
		Action:          action,
		UploadSessionID: session,
		Actions:         actions,
	})
	if err != nil {
		return AuditPage{}, fmt.Errorf("count audit logs: %w", err)
	}

	items := make([]AuditEntry, 0, len(rows))
	for _, row := range rows {
		items = append(items, dbAuditLogToEntry(row))
	}
	return AuditPage{Items: items, Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

func dbAuditLogToEntry(row db.AuditLog) AuditEntry {
	entry := AuditEntry{
		ID:              uuidToString(row.ID),
		Action:          AuditAction(row.Action),
		Severity:        AuditSeverity(row.Severity),
		UserID:          uuidToString(row.UserID),
		UploadSessionID: uuidToString(row.UploadSessionID),
		IPHash:          row.IpHash,
		CreatedAt:       row.CreatedAt.Time,
	}
	if row.Username.Valid {
		entry.Username = row.Username.String
	}
	if row.UserAgent.Valid {
		entry.UserAgent = row.UserAgent.String
	}
	if len(row.Details) > 0 {
		entry.Details = json.RawMessage(row.Details)
	}
	return entry
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const auditColumns = `id, action, severity, user_id, username, upload_session_id, ip_hash, user_agent, details, created_at`

func scanAuditLog(row interface{ Scan(...any) error }) (AuditLog, error) {
	var a AuditLog
	err := row.Scan(
		&a.ID,
		&a.Action,
		&a.Severity,
		&a.UserID,
		&a.Username,
		&a.UploadSessionID,
		&a.IpHash,
		&a.UserAgent,
		&a.Details,
		&a.CreatedAt,
	)
	return a, err
}

const insertAuditLog = `-- name: InsertAuditLog :one
INSERT INTO audit_logs (action, severity, user_id, username, upload_session_id, ip_hash, user_agent, details)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING ` + auditColumns

type InsertAuditLogParams struct {
	Action          string
	Severity        string
	UserID          pgtype.UUID
	Username        pgtype.Text
	UploadSessionID pgtype.UUID
	IpHash          string
	UserAgent       pgtype.Text
	Details         []byte
}

func (q *Queries) InsertAuditLog(ctx context.Context, arg InsertAuditLogParams) (AuditLog, error) {
	return scanAuditLog(q.db.QueryRow(ctx, insertAuditLog,
		arg.Action,
		arg.Severity,
		arg.UserID,
		arg.Username,
		arg.UploadSessionID,
		arg.IpHash,
		arg.UserAgent,
		arg.Details,
	))
}

// Filters shared by ListAuditLogs and CountAuditLogs. A NULL filter or an
// empty action set matches everything.
const auditFilter = `
WHERE ($1::text IS NULL OR action = $1)
  AND ($2::uuid IS NULL OR upload_session_id = $2)
  AND (COALESCE(cardinality($3::text[]), 0) = 0 OR action = ANY($3::text[]))`

const listAuditLogs = `-- name: ListAuditLogs :many
SELECT ` + auditColumns + ` FROM audit_logs` + auditFilter + `
ORDER BY created_at DESC
LIMIT $4 OFFSET $5`

type ListAuditLogsParams struct {
	Action          pgtype.Text
	UploadSessionID pgtype.UUID
	Actions         []string
	Limit           int32
	Offset          int32
}

func (q *Queries) ListAuditLogs(ctx context.Context, arg ListAuditLogsParams) ([]AuditLog, error) {
	rows, err := q.db.Query(ctx, listAuditLogs,
		arg.Action,
		arg.UploadSessionID,
		arg.Actions,
		arg.Limit,
		arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []AuditLog
	for rows.Next() {
		a, err := scanAuditLog(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

const countAuditLogs = `-- name: CountAuditLogs :one
SELECT count(*) FROM audit_logs` + auditFilter

type CountAuditLogsParams struct {
	Action          pgtype.Text
	UploadSessionID pgtype.UUID
	Actions         []string
}

func (q *Queries) CountAuditLogs(ctx context.Context, arg CountAuditLogsParams) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, countAuditLogs, arg.Action, arg.UploadSessionID, arg.Actions).Scan(&count)
	return count, err
}

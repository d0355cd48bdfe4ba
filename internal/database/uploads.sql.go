package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const sessionColumns = `id, user_id, business_date, status, created_at, updated_at`

func scanSession(row interface{ Scan(...any) error }) (UploadSession, error) {
	var s UploadSession
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.BusinessDate,
		&s.Status,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	return s, err
}

const fileColumns = `id, session_id, original_name, blob_path, size_bytes, content_type, etag, sha256, uploaded_at, created_at`

func scanFile(row interface{ Scan(...any) error }) (UploadFile, error) {
	var f UploadFile
	err := row.Scan(
		&f.ID,
		&f.SessionID,
		&f.OriginalName,
		&f.BlobPath,
		&f.SizeBytes,
		&f.ContentType,
		&f.Etag,
		&f.Sha256,
		&f.UploadedAt,
		&f.CreatedAt,
	)
	return f, err
}

const createUploadSession = `-- name: CreateUploadSession :one
INSERT INTO upload_sessions (user_id, business_date)
VALUES ($1, $2)
RETURNING ` + sessionColumns

type CreateUploadSessionParams struct {
	UserID       pgtype.UUID
	BusinessDate pgtype.Date
}

func (q *Queries) CreateUploadSession(ctx context.Context, arg CreateUploadSessionParams) (UploadSession, error) {
	return scanSession(q.db.QueryRow(ctx, createUploadSession, arg.UserID, arg.BusinessDate))
}

const createUploadFile = `-- name: CreateUploadFile :one
INSERT INTO upload_files (session_id, original_name, blob_path, size_bytes, content_type)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + fileColumns

type CreateUploadFileParams struct {
	SessionID    pgtype.UUID
	OriginalName string
	BlobPath     string
	SizeBytes    int64
	ContentType  string
}

func (q *Queries) CreateUploadFile(ctx context.Context, arg CreateUploadFileParams) (UploadFile, error) {
	return scanFile(q.db.QueryRow(ctx, createUploadFile,
		arg.SessionID,
		arg.OriginalName,
		arg.BlobPath,
		arg.SizeBytes,
		arg.ContentType,
	))
}

const getUploadSession = `-- name: GetUploadSession :one
SELECT ` + sessionColumns + ` FROM upload_sessions WHERE id = $1`

func (q *Queries) GetUploadSession(ctx context.Context, id pgtype.UUID) (UploadSession, error) {
	return scanSession(q.db.QueryRow(ctx, getUploadSession, id))
}

const getUploadFileBySession = `-- name: GetUploadFileBySession :one
SELECT ` + fileColumns + ` FROM upload_files WHERE session_id = $1`

func (q *Queries) GetUploadFileBySession(ctx context.Context, sessionID pgtype.UUID) (UploadFile, error) {
	return scanFile(q.db.QueryRow(ctx, getUploadFileBySession, sessionID))
}

const transitionUploadSession = `-- name: TransitionUploadSession :execrows
UPDATE upload_sessions SET status = $3, updated_at = now()
WHERE id = $1 AND status = $2`

type TransitionUploadSessionParams struct {
	ID   pgtype.UUID
	From string
	To   string
}

// TransitionUploadSession moves a session from one status to another. It
// affects no rows when the session is not in the From status.
func (q *Queries) TransitionUploadSession(ctx context.Context, arg TransitionUploadSessionParams) (int64, error) {
	tag, err := q.db.Exec(ctx, transitionUploadSession, arg.ID, arg.From, arg.To)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const markUploadFileUploaded = `-- name: MarkUploadFileUploaded :exec
UPDATE upload_files
SET etag = $2, sha256 = $3, uploaded_at = $4
WHERE session_id = $1`

type MarkUploadFileUploadedParams struct {
	SessionID  pgtype.UUID
	Etag       pgtype.Text
	Sha256     pgtype.Text
	UploadedAt pgtype.Timestamptz
}

func (q *Queries) MarkUploadFileUploaded(ctx context.Context, arg MarkUploadFileUploadedParams) error {
	_, err := q.db.Exec(ctx, markUploadFileUploaded, arg.SessionID, arg.Etag, arg.Sha256, arg.UploadedAt)
	return err
}

const expirePendingSessions = `-- name: ExpirePendingSessions :execrows
UPDATE upload_sessions
SET status = 'EXPIRED', updated_at = now()
WHERE status = 'PENDING' AND created_at < $1`

func (q *Queries) ExpirePendingSessions(ctx context.Context, createdBefore pgtype.Timestamptz) (int64, error) {
	tag, err := q.db.Exec(ctx, expirePendingSessions, createdBefore)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

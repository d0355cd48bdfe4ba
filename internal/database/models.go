package database

import (
	"github.com/jackc/pgx/v5/pgtype"
)

type User struct {
	ID           pgtype.UUID
	Username     string
	PasswordHash string
	Role         string
	IsActive     bool
	Protected    bool
	CreatedAt    pgtype.Timestamptz
	UpdatedAt    pgtype.Timestamptz
}

type UploadSession struct {
	ID           pgtype.UUID
	UserID       pgtype.UUID
	BusinessDate pgtype.Date
	Status       string
	CreatedAt    pgtype.Timestamptz
	UpdatedAt    pgtype.Timestamptz
}

type UploadFile struct {
	ID           pgtype.UUID
	SessionID    pgtype.UUID
	OriginalName string
	BlobPath     string
	SizeBytes    int64
	ContentType  string
	Etag         pgtype.Text
	Sha256       pgtype.Text
	UploadedAt   pgtype.Timestamptz
	CreatedAt    pgtype.Timestamptz
}

type AuditLog struct {
	ID              pgtype.UUID
	Action          string
	Severity        string
	UserID          pgtype.UUID
	Username        pgtype.Text
	UploadSessionID pgtype.UUID
	IpHash          string
	UserAgent       pgtype.Text
	Details         []byte
	CreatedAt       pgtype.Timestamptz
}

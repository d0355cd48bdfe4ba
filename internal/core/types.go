package core

import (
	"context"
	"time"

	db "github.com/JonMunkholm/csvportal/internal/database"
	"github.com/JonMunkholm/csvportal/internal/storage"
	"github.com/jackc/pgx/v5/pgtype"
)

// Role is a user's permission level.
type Role string

const (
	RoleUser       Role = "USER"
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPERADMIN"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// IsAdmin reports whether r may manage users and read the audit log.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// SessionStatus is the lifecycle state of an upload session.
type SessionStatus string

const (
	StatusPending  SessionStatus = "PENDING"
	StatusUploaded SessionStatus = "UPLOADED"
	StatusFailed   SessionStatus = "FAILED"
	StatusExpired  SessionStatus = "EXPIRED"
)

// Store is the persistence the service needs. *database.Store satisfies it.
type Store interface {
	Ping(ctx context.Context) error

	GetUserByID(ctx context.Context, id pgtype.UUID) (db.User, error)
	GetUserByUsername(ctx context.Context, username string) (db.User, error)
	ListUsers(ctx context.Context) ([]db.User, error)
	CreateUser(ctx context.Context, arg db.CreateUserParams) (db.User, error)
	UpdateUser(ctx context.Context, arg db.UpdateUserParams) (db.User, error)
	SetUserPassword(ctx context.Context, arg db.SetUserPasswordParams) (int64, error)

	CreateUpload(ctx context.Context, session db.CreateUploadSessionParams, file db.CreateUploadFileParams) (db.UploadSession, db.UploadFile, error)
	GetUploadSession(ctx context.Context, id pgtype.UUID) (db.UploadSession, error)
	GetUploadFileBySession(ctx context.Context, sessionID pgtype.UUID) (db.UploadFile, error)
	TransitionUploadSession(ctx context.Context, arg db.TransitionUploadSessionParams) (int64, error)
	CompleteUpload(ctx context.Context, file db.MarkUploadFileUploadedParams) error
	ExpirePendingSessions(ctx context.Context, createdBefore pgtype.Timestamptz) (int64, error)

	InsertAuditLog(ctx context.Context, arg db.InsertAuditLogParams) (db.AuditLog, error)
	ListAuditLogs(ctx context.Context, arg db.ListAuditLogsParams) ([]db.AuditLog, error)
	CountAuditLogs(ctx context.Context, arg db.CountAuditLogsParams) (int64, error)
}

// BlobStore is the upload container. *storage.Container satisfies it.
type BlobStore interface {
	WriteURL(blobPath string) (storage.SignedURL, error)
	Download(ctx context.Context, blobPath string, limit int64) ([]byte, error)
	Delete(ctx context.Context, blobPath string) error
	List(ctx context.Context, prefix string) ([]storage.BlobInfo, error)
}

// UserInfo is the public view of an account. The password hash never leaves
// the service.
type UserInfo struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      Role      `json:"role"`
	IsActive  bool      `json:"isActive"`
	Protected bool      `json:"protected"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	Role      Role      `json:"role"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// CreateUserInput describes a new account. An empty Password is replaced by
// a generated one.
type CreateUserInput struct {
	Username string
	Role     Role
	Password string
	// Protected is honoured by BootstrapUser only.
	Protected bool
}

// CreatedUser carries the plaintext password exactly once.
type CreatedUser struct {
	UserInfo
	Password string `json:"password,omitempty"`
}

// UpdateUserInput holds optional changes; nil fields are left untouched.
type UpdateUserInput struct {
	Role     *Role
	IsActive *bool
	Password *string
}

// PasswordReset is the result of ResetPassword.
type PasswordReset struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// UploadRequest asks for a direct-upload URL.
type UploadRequest struct {
	OriginalName string
	SizeBytes    int64
	MimeType     string
}

// UploadTicket is returned by IssueUploadURL.
type UploadTicket struct {
	UploadID  string    `json:"uploadId"`
	BlobPath  string    `json:"blobPath"`
	SASURL    string    `json:"sasUrl"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// CompleteRequest finalises an upload. SHA256 is optional.
type CompleteRequest struct {
	UploadID string
	ETag     string
	SHA256   string
}

// UploadFileInfo describes the file attached to a session.
type UploadFileInfo struct {
	ID           string     `json:"id"`
	OriginalName string     `json:"originalName"`
	MimeType     string     `json:"mimeType"`
	SizeBytes    int64      `json:"sizeBytes"`
	BlobPath     string     `json:"blobPath"`
	UploadedAt   *time.Time `json:"uploadedAt"`
}

// UploadInfo is the public view of an upload session.
type UploadInfo struct {
	ID           string          `json:"id"`
	Status       SessionStatus   `json:"status"`
	BusinessDate string          `json:"businessDate"`
	CreatedAt    time.Time       `json:"createdAt"`
	File         *UploadFileInfo `json:"file"`
}

// DayListing lists the blobs uploaded on one business date.
type DayListing struct {
	Date  string             `json:"date"`
	Count int                `json:"count"`
	Files []storage.BlobInfo `json:"files"`
}

// DayDeletion reports the outcome of DeleteDayUploads.
type DayDeletion struct {
	Date    string `json:"date"`
	Deleted int    `json:"deleted"`
	Failed  int    `json:"failed"`
	Message string `json:"message"`
}

package core

import (
	"time"

	db "github.com/JonMunkholm/csvportal/internal/database"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// Helper functions for type conversion

func toPgText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

func toPgUUID(s string) pgtype.UUID {
	if s == "" {
		return pgtype.UUID{Valid: false}
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return pgtype.UUID{Valid: false}
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}
}

func toPgTimestamptz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func toPgDate(date string) (pgtype.Date, error) {
	t, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return pgtype.Date{}, err
	}
	return pgtype.Date{Time: t, Valid: true}, nil
}

func uuidToString(u pgtype.UUID) string {
	if !u.Valid {
		return ""
	}
	return uuid.UUID(u.Bytes).String()
}

func dateToString(d pgtype.Date) string {
	if !d.Valid {
		return ""
	}
	return d.Time.Format(time.DateOnly)
}

func timePtr(ts pgtype.Timestamptz) *time.Time {
	if !ts.Valid {
		return nil
	}
	t := ts.Time
	return &t
}

func userToInfo(u db.User) UserInfo {
	return UserInfo{
		ID:        uuidToString(u.ID),
		Username:  u.Username,
		Role:      Role(u.Role),
		IsActive:  u.IsActive,
		Protected: u.Protected,
		CreatedAt: u.CreatedAt.Time,
		UpdatedAt: u.UpdatedAt.Time,
	}
}

func uploadToInfo(s db.UploadSession, f *db.UploadFile) UploadInfo {
	info := UploadInfo{
		ID:           uuidToString(s.ID),
		Status:       SessionStatus(s.Status),
		BusinessDate: dateToString(s.BusinessDate),
		CreatedAt:    s.CreatedAt.Time,
	}
	if f != nil {
		info.File = &UploadFileInfo{
			ID:           uuidToString(f.ID),
			OriginalName: f.OriginalName,
			MimeType:     f.ContentType,
			SizeBytes:    f.SizeBytes,
			BlobPath:     f.BlobPath,
			UploadedAt:   timePtr(f.UploadedAt),
		}
	}
	return info
}

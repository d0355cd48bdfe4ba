package core

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path"
	"slices"
	"strings"

	"github.com/JonMunkholm/csvportal/internal/auth"
	"github.com/JonMunkholm/csvportal/internal/bizdate"
	"github.com/JonMunkholm/csvportal/internal/csvcheck"
	db "github.com/JonMunkholm/csvportal/internal/database"
	"github.com/JonMunkholm/csvportal/internal/storage"
	"github.com/jackc/pgx/v5/pgtype"
)

// MaxListedErrors is how many validation errors a completion failure names
// before summarising the rest.
const MaxListedErrors = 10

var errNoBlobStore = errors.New("core: blob storage not configured")

// ValidateUpload checks content against the licence file format.
func (s *Service) ValidateUpload(content []byte, filename string) csvcheck.Verdict {
	return s.validator.Validate(content, filename)
}

// IssueUploadURL opens a PENDING session and returns a write-only URL for a
// direct upload under today's business-date prefix.
func (s *Service) IssueUploadURL(ctx context.Context, req UploadRequest) (UploadTicket, error) {
	p, err := requirePrincipal(ctx)
	if err != nil {
		return UploadTicket{}, err
	}
	if err := s.checkUploadRequest(req); err != nil {
		return UploadTicket{}, err
	}
	if s.blobs == nil {
		return UploadTicket{}, errNoBlobStore
	}

	date := s.calendar.Today()
	blobPath := storage.NewBlobPath(date, req.OriginalName)
	signed, err := s.blobs.WriteURL(blobPath)
	if err != nil {
		return UploadTicket{}, fmt.Errorf("sign upload URL: %w", err)
	}

	businessDate, err := toPgDate(date)
	if err != nil {
		return UploadTicket{}, fmt.Errorf("business date: %w", err)
	}

	sess, _, err := s.store.CreateUpload(ctx,
		db.CreateUploadSessionParams{
			UserID:       toPgUUID(p.UserID),
			BusinessDate: businessDate,
		},
		db.CreateUploadFileParams{
			OriginalName: req.OriginalName,
			BlobPath:     blobPath,
			SizeBytes:    req.SizeBytes,
			ContentType:  req.MimeType,
		},
	)
	if err != nil {
		return UploadTicket{}, fmt.Errorf("create upload session: %w", err)
	}

	uploadID := uuidToString(sess.ID)
	s.LogAudit(ctx, AuditEvent{
		Action:          ActionIssueSAS,
		UploadSessionID: uploadID,
		Details: map[string]any{
			"blobPath":  blobPath,
			"sizeBytes": req.SizeBytes,
			"expiresAt": signed.ExpiresAt,
		},
	})

	return UploadTicket{
		UploadID:  uploadID,
		BlobPath:  blobPath,
		SASURL:    signed.URL,
		ExpiresAt: signed.ExpiresAt,
	}, nil
}

func (s *Service) checkUploadRequest(req UploadRequest) error {
	if strings.TrimSpace(req.OriginalName) == "" {
		return validationError("originalName is required")
	}
	if req.SizeBytes <= 0 {
		return validationError("sizeBytes must be a positive number")
	}
	if req.SizeBytes > s.opts.MaxFileSize {
		return validationError("File size (%dMB) exceeds maximum of %dMB", toMB(req.SizeBytes), toMB(s.opts.MaxFileSize))
	}
	if req.MimeType == "" {
		return validationError("mimeType is required")
	}
	if !slices.Contains(s.opts.AllowedMimeTypes, req.MimeType) {
		return validationError("MIME type %s is not allowed. Allowed types: %s",
			req.MimeType, strings.Join(s.opts.AllowedMimeTypes, ", "))
	}
	if ext := strings.ToLower(path.Ext(req.OriginalName)); ext != ".csv" {
		return validationError("File extension %s is not allowed. Only .csv files are accepted", ext)
	}
	return nil
}

func toMB(n int64) int64 {
	return int64(math.Round(float64(n) / (1024 * 1024)))
}

func isSHA256Hex(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// CompleteUpload finalises a direct upload. The blob is downloaded and
// validated again; an invalid file is deleted and its session marked FAILED.
// Every failure once the upload id is known is recorded as UPLOAD_FAILED.
func (s *Service) CompleteUpload(ctx context.Context, req CompleteRequest) (UploadInfo, error) {
	if _, err := requirePrincipal(ctx); err != nil {
		return UploadInfo{}, err
	}

	uploadID := strings.TrimSpace(req.UploadID)
	if uploadID == "" {
		return UploadInfo{}, validationError("uploadId is required")
	}
	if req.ETag == "" {
		return UploadInfo{}, validationError("etag is required")
	}
	if req.SHA256 != "" && !isSHA256Hex(req.SHA256) {
		return UploadInfo{}, validationError("sha256 must be a valid 64-character hex string")
	}

	info, err := s.completeUpload(ctx, uploadID, req)
	if err != nil {
		s.LogAudit(ctx, AuditEvent{
			Action:          ActionUploadFailed,
			UploadSessionID: uploadID,
			Details:         map[string]any{"error": err.Error()},
		})
		return UploadInfo{}, err
	}
	return info, nil
}

func (s *Service) completeUpload(ctx context.Context, uploadID string, req CompleteRequest) (UploadInfo, error) {
	id := toPgUUID(uploadID)
	if !id.Valid {
		return UploadInfo{}, notFound("Upload session not found")
	}

	sess, err := s.store.GetUploadSession(ctx, id)
	if db.IsNotFound(err) {
		return UploadInfo{}, notFound("Upload session not found")
	}
	if err != nil {
		return UploadInfo{}, fmt.Errorf("get upload session: %w", err)
	}
	if SessionStatus(sess.Status) != StatusPending {
		return UploadInfo{}, validationError("Upload session is %s, cannot complete", sess.Status)
	}

	file, err := s.store.GetUploadFileBySession(ctx, id)
	if db.IsNotFound(err) {
		return UploadInfo{}, notFound("Upload file not found")
	}
	if err != nil {
		return UploadInfo{}, fmt.Errorf("get upload file: %w", err)
	}

	if err := s.verifyBlob(ctx, sess, file, req.SHA256); err != nil {
		return UploadInfo{}, err
	}

	now := s.calendar.Now()
	err = s.store.CompleteUpload(ctx, db.MarkUploadFileUploadedParams{
		SessionID:  id,
		Etag:       toPgText(req.ETag),
		Sha256:     toPgText(strings.ToLower(req.SHA256)),
		UploadedAt: toPgTimestamptz(now),
	})
	if errors.Is(err, db.ErrSessionNotPending) {
		return UploadInfo{}, validationError("Upload session is no longer pending, cannot complete")
	}
	if err != nil {
		return UploadInfo{}, fmt.Errorf("complete upload: %w", err)
	}

	s.LogAudit(ctx, AuditEvent{
		Action:          ActionUploadComplete,
		UploadSessionID: uploadID,
		Details: map[string]any{
			"blobPath": file.BlobPath,
			"etag":     req.ETag,
		},
	})

	sess.Status = string(StatusUploaded)
	file.UploadedAt = toPgTimestamptz(now)
	return uploadToInfo(sess, &file), nil
}

// verifyBlob downloads and validates the uploaded file. A blob that cannot be
// read does not block completion; the client-side validation stands.
func (s *Service) verifyBlob(ctx context.Context, sess db.UploadSession, file db.UploadFile, wantSHA string) error {
	if s.blobs == nil {
		return errNoBlobStore
	}
	if err := s.limiter.Acquire(ctx); err != nil {
		return err
	}
	defer s.limiter.Release()

	log := slog.With("upload_id", uuidToString(sess.ID), "blob_path", file.BlobPath)

	content, err := s.blobs.Download(ctx, file.BlobPath, s.opts.MaxFileSize)
	switch {
	case errors.Is(err, storage.ErrTooLarge):
		s.rejectUpload(ctx, sess.ID, file.BlobPath)
		return validationError("File size exceeds maximum of %dMB", toMB(s.opts.MaxFileSize))
	case err != nil:
		log.Warn("could not validate uploaded blob, completing without validation", "error", err)
		return nil
	}

	verdict := s.validator.Validate(content, file.OriginalName)
	if !verdict.Valid {
		s.rejectUpload(ctx, sess.ID, file.BlobPath)
		n := len(verdict.Errors)
		return validationError("CSV validation failed (%d %s): %s",
			n, pluralize(n, "error", "errors"), SummarizeErrors(verdict.Errors, MaxListedErrors))
	}

	if wantSHA != "" {
		if got := auth.SHA256Hex(content); !strings.EqualFold(got, wantSHA) {
			s.rejectUpload(ctx, sess.ID, file.BlobPath)
			return validationError("File checksum mismatch: expected sha256 %s, got %s", strings.ToLower(wantSHA), got)
		}
	}

	log.Info("uploaded file validated", "rows", verdict.RowCount, "warnings", len(verdict.Warnings))
	return nil
}

// rejectUpload marks a PENDING session FAILED and then deletes its blob. A
// session another request already moved on keeps its blob. Both steps are
// best effort.
func (s *Service) rejectUpload(ctx context.Context, id pgtype.UUID, blobPath string) {
	n, err := s.store.TransitionUploadSession(ctx, db.TransitionUploadSessionParams{
		ID:   id,
		From: string(StatusPending),
		To:   string(StatusFailed),
	})
	if err != nil {
		slog.Error("could not mark upload failed", "upload_id", uuidToString(id), "error", err)
	} else if n == 0 {
		slog.Warn("upload no longer pending, keeping blob", "upload_id", uuidToString(id), "blob_path", blobPath)
		return
	}
	if err := s.blobs.Delete(ctx, blobPath); err != nil && !errors.Is(err, storage.ErrNotFound) {
		slog.Warn("could not delete rejected blob", "blob_path", blobPath, "error", err)
	}
}

// SummarizeErrors joins the first limit messages with "; " and counts the rest.
func SummarizeErrors(errs []string, limit int) string {
	if len(errs) <= limit {
		return strings.Join(errs, "; ")
	}
	return fmt.Sprintf("%s ... and %d more errors", strings.Join(errs[:limit], "; "), len(errs)-limit)
}

func pluralize(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// GetUpload returns one upload session and its file.
func (s *Service) GetUpload(ctx context.Context, uploadID string) (UploadInfo, error) {
	if _, err := requirePrincipal(ctx); err != nil {
		return UploadInfo{}, err
	}

	id := toPgUUID(strings.TrimSpace(uploadID))
	if !id.Valid {
		return UploadInfo{}, notFound("Upload session not found")
	}

	sess, err := s.store.GetUploadSession(ctx, id)
	if db.IsNotFound(err) {
		return UploadInfo{}, notFound("Upload session not found")
	}
	if err != nil {
		return UploadInfo{}, fmt.Errorf("get upload session: %w", err)
	}

	file, err := s.store.GetUploadFileBySession(ctx, id)
	if db.IsNotFound(err) {
		return uploadToInfo(sess, nil), nil
	}
	if err != nil {
		return UploadInfo{}, fmt.Errorf("get upload file: %w", err)
	}
	return uploadToInfo(sess, &file), nil
}

// TodayUploads lists the blobs stored under today's business date.
func (s *Service) TodayUploads(ctx context.Context) (DayListing, error) {
	if _, err := requirePrincipal(ctx); err != nil {
		return DayListing{}, err
	}
	if s.blobs == nil {
		return DayListing{}, errNoBlobStore
	}

	date := s.calendar.Today()
	files, err := s.blobs.List(ctx, storage.DayPrefix(date))
	if err != nil {
		return DayListing{}, fmt.Errorf("list blobs for %s: %w", date, err)
	}
	if files == nil {
		files = []storage.BlobInfo{}
	}
	return DayListing{Date: date, Count: len(files), Files: files}, nil
}

// DeleteDayUploads removes every blob of a business date (today when date is
// empty). A blob that fails to delete is logged and skipped.
func (s *Service) DeleteDayUploads(ctx context.Context, date string) (DayDeletion, error) {
	p, err := requirePrincipal(ctx)
	if err != nil {
		return DayDeletion{}, err
	}
	if s.blobs == nil {
		return DayDeletion{}, errNoBlobStore
	}

	if date == "" {
		date = s.calendar.Today()
	} else if date, err = bizdate.ParseDate(date); err != nil {
		return DayDeletion{}, validationError("date must be in YYYY-MM-DD format")
	}

	files, err := s.blobs.List(ctx, storage.DayPrefix(date))
	if err != nil {
		return DayDeletion{}, fmt.Errorf("list blobs for %s: %w", date, err)
	}

	var deleted, failed int
	for _, f := range files {
		if err := s.blobs.Delete(ctx, f.Name); err != nil && !errors.Is(err, storage.ErrNotFound) {
			slog.Warn("could not delete blob", "blob_path", f.Name, "error", err)
			failed++
			continue
		}
		deleted++
	}

	s.LogAudit(ctx, AuditEvent{
		Action: ActionUploadDeleted,
		Details: map[string]any{
			"deletedBy":    p.Username,
			"date":         date,
			"deletedCount": deleted,
			"failedCount":  failed,
		},
	})

	return DayDeletion{
		Date:    date,
		Deleted: deleted,
		Failed:  failed,
		Message: fmt.Sprintf("Deleted %d %s", deleted, pluralize(deleted, "file", "files")),
	}, nil
}

// ExpireStaleSessions marks PENDING sessions older than the upload URL
// lifetime as EXPIRED and returns how many changed.
func (s *Service) ExpireStaleSessions(ctx context.Context) (int64, error) {
	cutoff := s.calendar.Now().Add(-s.opts.SASExpiry)
	n, err := s.store.ExpirePendingSessions(ctx, toPgTimestamptz(cutoff))
	if err != nil {
		return 0, fmt.Errorf("expire pending sessions: %w", err)
	}
	return n, nil
}

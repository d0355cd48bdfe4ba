package web

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/JonMunkholm/csvportal/internal/core"
	"github.com/go-chi/chi/v5"
)

type validateRequest struct {
	FileContent string `json:"fileContent"`
	Filename    string `json:"filename"`
}

type issueRequest struct {
	OriginalName string `json:"originalName"`
	SizeBytes    int64  `json:"sizeBytes"`
	MimeType     string `json:"mimeType"`
}

type completeRequest struct {
	UploadID string `json:"uploadId"`
	ETag     string `json:"etag"`
	SHA256   string `json:"sha256"`
}

// validateBodyLimit allows for base64 expansion of a maximum-size file plus
// the JSON envelope.
func (s *Server) validateBodyLimit() int64 {
	return s.opts.MaxFileSize/3*4 + 64<<10
}

// decodeFileContent accepts raw base64 or a data URL.
func decodeFileContent(content string) ([]byte, error) {
	if strings.HasPrefix(content, "data:") {
		if _, rest, ok := strings.Cut(content, ","); ok {
			content = rest
		}
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(content))
	if err != nil {
		return nil, core.NewError(core.KindValidation, "Invalid file content encoding")
	}
	return data, nil
}

// handleValidate runs the licence-file checks on an uploaded file without
// storing it.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decodeJSON(w, r, s.validateBodyLimit(), &req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.FileContent == "" {
		respondError(w, r, core.NewError(core.KindValidation, "fileContent is required"))
		return
	}
	if strings.TrimSpace(req.Filename) == "" {
		respondError(w, r, core.NewError(core.KindValidation, "filename is required"))
		return
	}

	data, err := decodeFileContent(req.FileContent)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if int64(len(data)) > s.opts.MaxFileSize {
		respondError(w, r, core.NewError(core.KindValidation,
			fmt.Sprintf("File too large. Maximum size is %dMB", s.opts.MaxFileSize>>20)))
		return
	}

	limiter := s.service.Limiter()
	if err := limiter.Acquire(r.Context()); err != nil {
		respondError(w, r, err)
		return
	}
	defer limiter.Release()

	writeJSON(w, s.service.ValidateUpload(data, req.Filename))
}

// handleIssueSAS opens an upload session and returns a write-only URL.
func (s *Server) handleIssueSAS(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := decodeJSON(w, r, maxJSONBody, &req); err != nil {
		respondError(w, r, err)
		return
	}

	ticket, err := s.service.IssueUploadURL(r.Context(), core.UploadRequest{
		OriginalName: req.OriginalName,
		SizeBytes:    req.SizeBytes,
		MimeType:     req.MimeType,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, ticket)
}

// handleComplete finalises a direct upload.
func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := decodeJSON(w, r, maxJSONBody, &req); err != nil {
		respondError(w, r, err)
		return
	}

	info, err := s.service.CompleteUpload(r.Context(), core.CompleteRequest{
		UploadID: req.UploadID,
		ETag:     req.ETag,
		SHA256:   req.SHA256,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, info)
}

// handleCheckToday lists files already uploaded for today's business date.
func (s *Server) handleCheckToday(w http.ResponseWriter, r *http.Request) {
	listing, err := s.service.TodayUploads(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, listing)
}

// handleDeleteToday removes the files of one business date, today unless
// ?date=YYYY-MM-DD is given.
func (s *Server) handleDeleteToday(w http.ResponseWriter, r *http.Request) {
	res, err := s.service.DeleteDayUploads(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// handleGetUpload returns one upload session.
func (s *Server) handleGetUpload(w http.ResponseWriter, r *http.Request) {
	info, err := s.service.GetUpload(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, info)
}

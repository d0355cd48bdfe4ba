// Package coretest provides in-memory implementations of the core.Store and
// core.BlobStore interfaces for tests.
package coretest

import (
	"context"
	"strings"
	"sync"
	"time"

	db "github.com/JonMunkholm/csvportal/internal/database"
	"github.com/JonMunkholm/csvportal/internal/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// NewUUID returns a random valid pgtype.UUID.
func NewUUID() pgtype.UUID {
	return pgtype.UUID{Bytes: uuid.New(), Valid: true}
}

// MemStore is an in-memory Store. Rows are keyed by their UUID bytes; upload
// files are keyed by their session.
type MemStore struct {
	mu       sync.Mutex
	users    map[[16]byte]db.User
	sessions map[[16]byte]db.UploadSession
	files    map[[16]byte]db.UploadFile
	audit    []db.AuditLog

	// Now stamps created and updated rows.
	Now func() time.Time

	// FailAudit and FailPing, when set, are returned by InsertAuditLog and Ping.
	FailAudit error
	FailPing  error
}

// NewMemStore returns an empty store whose clock is fixed at now.
func NewMemStore(now time.Time) *MemStore {
	return &MemStore{
		users:    map[[16]byte]db.User{},
		sessions: map[[16]byte]db.UploadSession{},
		files:    map[[16]byte]db.UploadFile{},
		Now:      func() time.Time { return now },
	}
}

func (m *MemStore) ts() pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: m.Now(), Valid: true}
}

func (m *MemStore) Ping(context.Context) error { return m.FailPing }

func (m *MemStore) GetUserByID(_ context.Context, id pgtype.UUID) (db.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id.Bytes]
	if !ok {
		return db.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func (m *MemStore) GetUserByUsername(_ context.Context, username string) (db.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return db.User{}, pgx.ErrNoRows
}

func (m *MemStore) ListUsers(context.Context) ([]db.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []db.User
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, nil
}

func (m *MemStore) CreateUser(_ context.Context, arg db.CreateUserParams) (db.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == arg.Username {
			return db.User{}, &pgconn.PgError{Code: "23505"}
		}
	}
	u := db.User{
		ID:           NewUUID(),
		Username:     arg.Username,
		PasswordHash: arg.PasswordHash,
		Role:         arg.Role,
		IsActive:     true,
		Protected:    arg.Protected,
		CreatedAt:    m.ts(),
		UpdatedAt:    m.ts(),
	}
	m.users[u.ID.Bytes] = u
	return u, nil
}

func (m *MemStore) UpdateUser(_ context.Context, arg db.UpdateUserParams) (db.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[arg.ID.Bytes]
	if !ok {
		return db.User{}, pgx.ErrNoRows
	}
	if arg.Username.Valid {
		u.Username = arg.Username.String
	}
	if arg.Role.Valid {
		u.Role = arg.Role.String
	}
	if arg.IsActive.Valid {
		u.IsActive = arg.IsActive.Bool
	}
	u.UpdatedAt = m.ts()
	m.users[u.ID.Bytes] = u
	return u, nil
}

// SetProtected flips the protected flag of a stored user.
func (m *MemStore) SetProtected(id pgtype.UUID, protected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[id.Bytes]
	u.Protected = protected
	m.users[id.Bytes] = u
}

func (m *MemStore) SetUserPassword(_ context.Context, arg db.SetUserPasswordParams) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[arg.ID.Bytes]
	if !ok {
		return 0, nil
	}
	u.PasswordHash = arg.PasswordHash
	m.users[u.ID.Bytes] = u
	return 1, nil
}

func (m *MemStore) CreateUpload(_ context.Context, sp db.CreateUploadSessionParams, fp db.CreateUploadFileParams) (db.UploadSession, db.UploadFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess := db.UploadSession{
		ID:           NewUUID(),
		UserID:       sp.UserID,
		BusinessDate: sp.BusinessDate,
		Status:       "PENDING",
		CreatedAt:    m.ts(),
		UpdatedAt:    m.ts(),
	}
	file := db.UploadFile{
		ID:           NewUUID(),
		SessionID:    sess.ID,
		OriginalName: fp.OriginalName,
		BlobPath:     fp.BlobPath,
		SizeBytes:    fp.SizeBytes,
		ContentType:  fp.ContentType,
		CreatedAt:    m.ts(),
	}
	m.sessions[sess.ID.Bytes] = sess
	m.files[sess.ID.Bytes] = file
	return sess, file, nil
}

func (m *MemStore) GetUploadSession(_ context.Context, id pgtype.UUID) (db.UploadSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id.Bytes]
	if !ok {
		return db.UploadSession{}, pgx.ErrNoRows
	}
	return s, nil
}

func (m *MemStore) GetUploadFileBySession(_ context.Context, id pgtype.UUID) (db.UploadFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[id.Bytes]
	if !ok {
		return db.UploadFile{}, pgx.ErrNoRows
	}
	return f, nil
}

func (m *MemStore) TransitionUploadSession(_ context.Context, arg db.TransitionUploadSessionParams) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transition(arg), nil
}

func (m *MemStore) transition(arg db.TransitionUploadSessionParams) int64 {
	s, ok := m.sessions[arg.ID.Bytes]
	if !ok || s.Status != arg.From {
		return 0
	}
	s.Status = arg.To
	s.UpdatedAt = m.ts()
	m.sessions[arg.ID.Bytes] = s
	return 1
}

func (m *MemStore) CompleteUpload(_ context.Context, arg db.MarkUploadFileUploadedParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.transition(db.TransitionUploadSessionParams{ID: arg.SessionID, From: "PENDING", To: "UPLOADED"}) == 0 {
		return db.ErrSessionNotPending
	}
	f := m.files[arg.SessionID.Bytes]
	f.Etag = arg.Etag
	f.Sha256 = arg.Sha256
	f.UploadedAt = arg.UploadedAt
	m.files[arg.SessionID.Bytes] = f
	return nil
}

func (m *MemStore) ExpirePendingSessions(_ context.Context, before pgtype.Timestamptz) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if s.Status == "PENDING" && s.CreatedAt.Time.Before(before.Time) {
			s.Status = "EXPIRED"
			m.sessions[id] = s
			n++
		}
	}
	return n, nil
}

func (m *MemStore) InsertAuditLog(_ context.Context, arg db.InsertAuditLogParams) (db.AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAudit != nil {
		return db.AuditLog{}, m.FailAudit
	}
	a := db.AuditLog{
		ID:              NewUUID(),
		Action:          arg.Action,
		Severity:        arg.Severity,
		UserID:          arg.UserID,
		Username:        arg.Username,
		UploadSessionID: arg.UploadSessionID,
		IpHash:          arg.IpHash,
		UserAgent:       arg.UserAgent,
		Details:         arg.Details,
		CreatedAt:       m.ts(),
	}
	m.audit = append(m.audit, a)
	return a, nil
}

// matchAudit returns matching rows newest first.
func (m *MemStore) matchAudit(action pgtype.Text, session pgtype.UUID, actions []string) []db.AuditLog {
	var out []db.AuditLog
	for i := len(m.audit) - 1; i >= 0; i-- {
		a := m.audit[i]
		if action.Valid && a.Action != action.String {
			continue
		}
		if session.Valid && a.UploadSessionID.Bytes != session.Bytes {
			continue
		}
		if len(actions) > 0 && !contains(actions, a.Action) {
			continue
		}
		out = append(out, a)
	}
	return out
}

func (m *MemStore) ListAuditLogs(_ context.Context, arg db.ListAuditLogsParams) ([]db.AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.matchAudit(arg.Action, arg.UploadSessionID, arg.Actions)
	start := min(int(arg.Offset), len(rows))
	end := min(start+int(arg.Limit), len(rows))
	return rows[start:end], nil
}

func (m *MemStore) CountAuditLogs(_ context.Context, arg db.CountAuditLogsParams) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.matchAudit(arg.Action, arg.UploadSessionID, arg.Actions))), nil
}

// Actions returns the recorded audit actions, oldest first.
func (m *MemStore) Actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.audit))
	for i, a := range m.audit {
		out[i] = a.Action
	}
	return out
}

// LastAudit returns the newest audit row. It panics when there is none.
func (m *MemStore) LastAudit() db.AuditLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.audit[len(m.audit)-1]
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// MemBlobs is an in-memory BlobStore.
type MemBlobs struct {
	mu   sync.Mutex
	data map[string][]byte

	// FailDelete makes Delete fail for the listed paths.
	FailDelete map[string]bool
	// DownloadErr, when set, is returned by every Download.
	DownloadErr error
	// OnDownload, when set, runs before every Download.
	OnDownload func(blobPath string)
	// Expiry is the ExpiresAt reported by WriteURL.
	Expiry time.Time
}

// NewMemBlobs returns an empty container.
func NewMemBlobs() *MemBlobs {
	return &MemBlobs{data: map[string][]byte{}, FailDelete: map[string]bool{}}
}

func (b *MemBlobs) WriteURL(blobPath string) (storage.SignedURL, error) {
	return storage.SignedURL{
		URL:       "https://devstoreaccount1.blob.core.windows.net/uploads/" + blobPath + "?sp=cw&sig=test",
		BlobPath:  blobPath,
		ExpiresAt: b.Expiry,
	}, nil
}

func (b *MemBlobs) Download(_ context.Context, blobPath string, limit int64) ([]byte, error) {
	if b.OnDownload != nil {
		b.OnDownload(blobPath)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.DownloadErr != nil {
		return nil, b.DownloadErr
	}
	data, ok := b.data[blobPath]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if int64(len(data)) > limit {
		return nil, storage.ErrTooLarge
	}
	return data, nil
}

func (b *MemBlobs) Delete(_ context.Context, blobPath string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailDelete[blobPath] {
		return context.DeadlineExceeded
	}
	if _, ok := b.data[blobPath]; !ok {
		return storage.ErrNotFound
	}
	delete(b.data, blobPath)
	return nil
}

func (b *MemBlobs) List(_ context.Context, prefix string) ([]storage.BlobInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []storage.BlobInfo
	for name, data := range b.data {
		if strings.HasPrefix(name, prefix) {
			out = append(out, storage.BlobInfo{Name: name, Size: int64(len(data))})
		}
	}
	return out, nil
}

// Put stores data at blobPath, as a client upload would.
func (b *MemBlobs) Put(blobPath string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[blobPath] = data
}

// Has reports whether blobPath exists.
func (b *MemBlobs) Has(blobPath string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.data[blobPath]
	return ok
}

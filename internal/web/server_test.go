package web

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/csvportal/internal/auth"
	"github.com/JonMunkholm/csvportal/internal/bizdate"
	"github.com/JonMunkholm/csvportal/internal/core"
	"github.com/JonMunkholm/csvportal/internal/core/coretest"
)

var fastParams = auth.Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

// testNow is 2024-03-05 09:30 in Bogota.
var testNow = time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)

var goodFile = []byte("appli_no,Licence_Type,trn,FName,MName,LName,file_status,statusDate,comments,entdte,status_num,app_file_locn,app_file_dept\n" +
	"A-100,Retail,123456789,Jane,,Doe,Active,2024-03-01,note,2024-03-01 10:15:00,3,Shelf 4,D12\n")

type testServer struct {
	srv   *Server
	svc   *core.Service
	store *coretest.MemStore
	blobs *coretest.MemBlobs
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	cal, err := bizdate.New(bizdate.DefaultTimezone)
	if err != nil {
		t.Fatalf("calendar: %v", err)
	}
	cal = cal.WithClock(func() time.Time { return testNow })

	tokens, err := auth.NewTokenIssuer("test-secret-test-secret-test-secret", time.Hour)
	if err != nil {
		t.Fatalf("token issuer: %v", err)
	}

	store := coretest.NewMemStore(testNow)
	blobs := coretest.NewMemBlobs()
	blobs.Expiry = testNow.Add(10 * time.Minute)
	svc, err := core.NewService(store, blobs, cal, tokens, core.Options{
		MaxFileSize:    1024 * 1024,
		SASExpiry:      10 * time.Minute,
		PasswordParams: fastParams,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	if opts.MaxFileSize == 0 {
		opts.MaxFileSize = 1024 * 1024
	}
	srv := NewServer(svc, opts)
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, svc: svc, store: store, blobs: blobs}
}

// seed creates an account and returns a bearer token for it.
func (ts *testServer) seed(t *testing.T, username string, role core.Role) string {
	t.Helper()
	if _, err := ts.svc.BootstrapUser(context.Background(), core.CreateUserInput{
		Username: username,
		Role:     role,
		Password: "password1",
	}); err != nil {
		t.Fatalf("seed %s: %v", username, err)
	}
	rec := ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": username, "password": "password1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: status %d body %s", username, rec.Code, rec.Body.String())
	}
	var res core.LoginResult
	decodeBody(t, rec, &res)
	return res.Token
}

func (ts *testServer) do(t *testing.T, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	switch b := body.(type) {
	case nil:
		rdr = bytes.NewReader(nil)
	case string:
		rdr = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, rdr)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func wantError(t *testing.T, rec *httptest.ResponseRecorder, status int, code, message string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, status, rec.Body.String())
	}
	var resp ErrorResponse
	decodeBody(t, rec, &resp)
	if resp.Error.Code != code {
		t.Errorf("code = %q, want %q", resp.Error.Code, code)
	}
	if message != "" && resp.Error.Message != message {
		t.Errorf("message = %q, want %q", resp.Error.Message, message)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, Options{})

	rec := ts.do(t, http.MethodGet, "/api/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	var resp healthResponse
	decodeBody(t, rec, &resp)
	if resp.Status != "ok" {
		t.Errorf("status = %q", resp.Status)
	}
}

func TestHealthDB(t *testing.T) {
	ts := newTestServer(t, Options{})

	rec := ts.do(t, http.MethodGet, "/api/health/db", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp healthResponse
	decodeBody(t, rec, &resp)
	if resp.Database != "connected" || resp.Limiter == nil || resp.Limiter.MaxConcurrent == 0 {
		t.Errorf("resp = %+v", resp)
	}

	ts.store.FailPing = errors.New("connection refused")
	rec = ts.do(t, http.MethodGet, "/api/health/db", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	decodeBody(t, rec, &resp)
	if resp.Status != "error" || resp.Database != "disconnected" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Error == "connection refused" {
		t.Errorf("raw error leaked: %q", resp.Error)
	}
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t, Options{})
	token := ts.seed(t, "clerk", core.RoleUser)
	if token == "" {
		t.Fatal("empty token")
	}

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"wrong password", map[string]string{"username": "clerk", "password": "nope-nope"}, http.StatusUnauthorized, "AUTH_ERROR"},
		{"unknown user", map[string]string{"username": "ghost", "password": "password1"}, http.StatusUnauthorized, "AUTH_ERROR"},
		{"missing password", map[string]string{"username": "clerk"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"invalid json", "{", http.StatusBadRequest, "VALIDATION_ERROR"},
		{"empty body", "", http.StatusBadRequest, "VALIDATION_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/auth/login", "", tt.body)
			wantError(t, rec, tt.status, tt.code, "")
		})
	}
}

func TestLoginRateLimit(t *testing.T) {
	ts := newTestServer(t, Options{RateLimitEnabled: true, LoginAttempts: 2, LoginWindow: time.Minute})
	body := map[string]string{"username": "ghost", "password": "password1"}

	for i := range 2 {
		if rec := ts.do(t, http.MethodPost, "/api/auth/login", "", body); rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status = %d", i+1, rec.Code)
		}
	}
	rec := ts.do(t, http.MethodPost, "/api/auth/login", "", body)
	wantError(t, rec, http.StatusTooManyRequests, "RATE001", "Too many login attempts")
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}

	// other routes use the general limiter
	if rec := ts.do(t, http.MethodGet, "/api/health", "", nil); rec.Code != http.StatusOK {
		t.Errorf("health status = %d", rec.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	ts := newTestServer(t, Options{})
	userToken := ts.seed(t, "clerk", core.RoleUser)
	adminToken := ts.seed(t, "boss", core.RoleAdmin)

	tests := []struct {
		name   string
		path   string
		token  string
		status int
	}{
		{"no token", "/api/uploads/check-today", "", http.StatusUnauthorized},
		{"garbage token", "/api/uploads/check-today", "not-a-jwt", http.StatusUnauthorized},
		{"user on uploads", "/api/uploads/check-today", userToken, http.StatusOK},
		{"user on users", "/api/users", userToken, http.StatusForbidden},
		{"user on audit", "/api/audit/list", userToken, http.StatusForbidden},
		{"admin on users", "/api/users", adminToken, http.StatusOK},
		{"admin on audit", "/api/audit/list", adminToken, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodGet, tt.path, tt.token, nil)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.status, rec.Body.String())
			}
		})
	}
}

func TestDeactivatedUserTokenRejected(t *testing.T) {
	ts := newTestServer(t, Options{})
	token := ts.seed(t, "clerk", core.RoleUser)
	user, err := ts.svc.FindUser(context.Background(), "clerk")
	if err != nil {
		t.Fatalf("FindUser: %v", err)
	}
	adminToken := ts.seed(t, "boss", core.RoleAdmin)
	if rec := ts.do(t, http.MethodDelete, "/api/users/"+user.ID, adminToken, nil); rec.Code != http.StatusOK {
		t.Fatalf("deactivate status = %d", rec.Code)
	}

	rec := ts.do(t, http.MethodGet, "/api/uploads/check-today", token, nil)
	wantError(t, rec, http.StatusUnauthorized, "AUTH_ERROR", "Account is disabled")
}

func TestValidateEndpoint(t *testing.T) {
	ts := newTestServer(t, Options{MaxFileSize: 4096})
	token := ts.seed(t, "clerk", core.RoleUser)
	encoded := base64.StdEncoding.EncodeToString(goodFile)

	t.Run("valid file", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/uploads/validate", token,
			map[string]string{"fileContent": encoded, "filename": "whatever.csv"})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
		}
		var v struct {
			Valid             bool     `json:"valid"`
			Errors            []string `json:"errors"`
			SuggestedFilename *string  `json:"suggestedFilename"`
			RowCount          int      `json:"rowCount"`
		}
		decodeBody(t, rec, &v)
		if !v.Valid || v.RowCount != 1 || len(v.Errors) != 0 {
			t.Errorf("verdict = %+v", v)
		}
		if v.SuggestedFilename == nil || *v.SuggestedFilename != "20240305.csv" {
			t.Errorf("suggestedFilename = %v", v.SuggestedFilename)
		}
	})

	t.Run("data url", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/uploads/validate", token,
			map[string]string{"fileContent": "data:text/csv;base64," + encoded, "filename": "a.csv"})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("invalid file is still 200", func(t *testing.T) {
		bad := base64.StdEncoding.EncodeToString([]byte("a,b\n1,2\n"))
		rec := ts.do(t, http.MethodPost, "/api/uploads/validate", token,
			map[string]string{"fileContent": bad, "filename": "a.csv"})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var v struct {
			Valid  bool     `json:"valid"`
			Errors []string `json:"errors"`
		}
		decodeBody(t, rec, &v)
		if v.Valid || len(v.Errors) == 0 {
			t.Errorf("verdict = %+v", v)
		}
	})

	errTests := []struct {
		name string
		body map[string]string
		msg  string
	}{
		{"missing content", map[string]string{"filename": "a.csv"}, "fileContent is required"},
		{"missing filename", map[string]string{"fileContent": encoded}, "filename is required"},
		{"bad base64", map[string]string{"fileContent": "!!!", "filename": "a.csv"}, "Invalid file content encoding"},
		{"too large", map[string]string{
			"fileContent": base64.StdEncoding.EncodeToString(bytes.Repeat([]byte("x"), 5000)),
			"filename":    "a.csv",
		}, ""},
	}
	for _, tt := range errTests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/uploads/validate", token, tt.body)
			wantError(t, rec, http.StatusBadRequest, "VALIDATION_ERROR", tt.msg)
		})
	}
}

func TestUploadFlow(t *testing.T) {
	ts := newTestServer(t, Options{})
	token := ts.seed(t, "clerk", core.RoleUser)

	rec := ts.do(t, http.MethodPost, "/api/uploads/sas", token, map[string]any{
		"originalName": "daily.csv",
		"sizeBytes":    len(goodFile),
		"mimeType":     "text/csv",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("sas status = %d body %s", rec.Code, rec.Body.String())
	}
	var ticket core.UploadTicket
	decodeBody(t, rec, &ticket)
	if !strings.HasPrefix(ticket.BlobPath, "2024-03-05/") || !strings.Contains(ticket.SASURL, "sig=") {
		t.Fatalf("ticket = %+v", ticket)
	}

	ts.blobs.Put(ticket.BlobPath, goodFile)

	rec = ts.do(t, http.MethodPost, "/api/uploads/complete", token, map[string]string{
		"uploadId": ticket.UploadID,
		"etag":     "0x8DC",
		"sha256":   auth.SHA256Hex(goodFile),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("complete status = %d body %s", rec.Code, rec.Body.String())
	}
	var info core.UploadInfo
	decodeBody(t, rec, &info)
	if info.Status != core.StatusUploaded {
		t.Errorf("status = %q", info.Status)
	}

	rec = ts.do(t, http.MethodGet, "/api/uploads/"+ticket.UploadID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = ts.do(t, http.MethodGet, "/api/uploads/check-today", token, nil)
	var listing core.DayListing
	decodeBody(t, rec, &listing)
	if listing.Date != "2024-03-05" || listing.Count != 1 {
		t.Errorf("listing = %+v", listing)
	}

	rec = ts.do(t, http.MethodPost, "/api/uploads/delete-today", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	var del core.DayDeletion
	decodeBody(t, rec, &del)
	if del.Deleted != 1 || del.Message != "Deleted 1 file" {
		t.Errorf("deletion = %+v", del)
	}
	if ts.blobs.Has(ticket.BlobPath) {
		t.Error("blob still present")
	}

	rec = ts.do(t, http.MethodPost, "/api/uploads/delete-today?date=03/05/2024", token, nil)
	wantError(t, rec, http.StatusBadRequest, "VALIDATION_ERROR", "date must be in YYYY-MM-DD format")

	rec = ts.do(t, http.MethodGet, "/api/uploads/not-a-uuid", token, nil)
	wantError(t, rec, http.StatusNotFound, "NOT_FOUND", "Upload session not found")
}

func TestCompleteInvalidUpload(t *testing.T) {
	ts := newTestServer(t, Options{})
	token := ts.seed(t, "clerk", core.RoleUser)

	rec := ts.do(t, http.MethodPost, "/api/uploads/sas", token, map[string]any{
		"originalName": "daily.csv",
		"sizeBytes":    10,
		"mimeType":     "text/csv",
	})
	var ticket core.UploadTicket
	decodeBody(t, rec, &ticket)
	ts.blobs.Put(ticket.BlobPath, []byte("a,b\n1,2\n"))

	rec = ts.do(t, http.MethodPost, "/api/uploads/complete", token, map[string]string{
		"uploadId": ticket.UploadID,
		"etag":     "0x8DC",
	})
	wantError(t, rec, http.StatusBadRequest, "VALIDATION_ERROR", "")
	if ts.blobs.Has(ticket.BlobPath) {
		t.Error("invalid blob was not deleted")
	}

	rec = ts.do(t, http.MethodGet, "/api/uploads/"+ticket.UploadID, token, nil)
	var info core.UploadInfo
	decodeBody(t, rec, &info)
	if info.Status != core.StatusFailed {
		t.Errorf("status = %q, want FAILED", info.Status)
	}
}

func TestUserEndpoints(t *testing.T) {
	ts := newTestServer(t, Options{})
	adminToken := ts.seed(t, "boss", core.RoleAdmin)

	rec := ts.do(t, http.MethodPost, "/api/users/create", adminToken, map[string]string{"username": "Clerk", "role": "USER"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d body %s", rec.Code, rec.Body.String())
	}
	var created core.CreatedUser
	decodeBody(t, rec, &created)
	if created.Username != "clerk" || len(created.Password) != core.GeneratedPasswordLength {
		t.Fatalf("created = %+v", created)
	}

	rec = ts.do(t, http.MethodPost, "/api/users/create", adminToken, map[string]string{"username": "clerk", "role": "USER"})
	wantError(t, rec, http.StatusBadRequest, "VALIDATION_ERROR", "Username already exists")

	rec = ts.do(t, http.MethodGet, "/api/users", adminToken, nil)
	var list usersResponse
	decodeBody(t, rec, &list)
	if len(list.Users) != 2 {
		t.Errorf("users = %d, want 2", len(list.Users))
	}

	rec = ts.do(t, http.MethodPut, "/api/users/"+created.ID, adminToken, map[string]any{"role": "ADMIN"})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d body %s", rec.Code, rec.Body.String())
	}
	var updated core.UserInfo
	decodeBody(t, rec, &updated)
	if updated.Role != core.RoleAdmin {
		t.Errorf("role = %q", updated.Role)
	}

	rec = ts.do(t, http.MethodPost, "/api/users/"+created.ID+"/reset-password", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reset status = %d body %s", rec.Code, rec.Body.String())
	}
	var reset core.PasswordReset
	decodeBody(t, rec, &reset)
	if reset.Password == "" || reset.Password == created.Password {
		t.Errorf("reset = %+v", reset)
	}

	rec = ts.do(t, http.MethodDelete, "/api/users/"+created.ID, adminToken, nil)
	var deleted core.UserInfo
	decodeBody(t, rec, &deleted)
	if deleted.IsActive {
		t.Error("user still active after delete")
	}

	rec = ts.do(t, http.MethodGet, "/api/users/00000000-0000-0000-0000-000000000000", adminToken, nil)
	wantError(t, rec, http.StatusNotFound, "NOT_FOUND", "")
}

func TestAuditEndpoints(t *testing.T) {
	ts := newTestServer(t, Options{})
	adminToken := ts.seed(t, "boss", core.RoleAdmin)

	rec := ts.do(t, http.MethodGet, "/api/audit/list?limit=1&action=LOGIN_SUCCESS", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d body %s", rec.Code, rec.Body.String())
	}
	var page core.AuditPage
	decodeBody(t, rec, &page)
	if page.Limit != 1 || len(page.Items) != 1 || page.Items[0].Action != core.ActionLoginSuccess {
		t.Errorf("page = %+v", page)
	}

	rec = ts.do(t, http.MethodGet, "/api/audit/list?uploadSessionId=nope", adminToken, nil)
	wantError(t, rec, http.StatusBadRequest, "VALIDATION_ERROR", "uploadSessionId must be a valid UUID")

	rec = ts.do(t, http.MethodGet, "/api/audit/export", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export status = %d body %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="audit-log-20240305.csv"` {
		t.Errorf("Content-Disposition = %q", got)
	}
	if !strings.HasPrefix(rec.Body.String(), "ID,Timestamp,Action") {
		t.Errorf("body = %q", rec.Body.String())
	}

	rec = ts.do(t, http.MethodGet, "/api/audit/export?format=xlsx", adminToken, nil)
	if got := rec.Header().Get("Content-Type"); got != core.ExportXLSX.ContentType() {
		t.Errorf("Content-Type = %q", got)
	}

	rec = ts.do(t, http.MethodGet, "/api/audit/export?format=pdf", adminToken, nil)
	wantError(t, rec, http.StatusBadRequest, "VALIDATION_ERROR", "format must be csv or xlsx")
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t, Options{AllowedOrigins: []string{"https://portal.example.com"}})

	tests := []struct {
		name       string
		method     string
		origin     string
		wantStatus int
		wantAllow  string
	}{
		{"preflight allowed", http.MethodOptions, "https://portal.example.com", http.StatusNoContent, "https://portal.example.com"},
		{"simple allowed", http.MethodGet, "https://portal.example.com", http.StatusOK, "https://portal.example.com"},
		{"disallowed", http.MethodGet, "https://evil.example.com", http.StatusForbidden, ""},
		{"no origin", http.MethodGet, "", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/health", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()
			ts.srv.Router().ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantAllow)
			}
		})
	}
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t, Options{})
	rec := ts.do(t, http.MethodGet, "/api/nope", "", nil)
	wantError(t, rec, http.StatusNotFound, "NOT_FOUND", "Route not found")
}

func TestRespondErrorInternal(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"busy limiter", core.ErrTooManyValidations, http.StatusServiceUnavailable},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			respondError(rec, httptest.NewRequest(http.MethodGet, "/x", nil), tt.err)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var resp ErrorResponse
			decodeBody(t, rec, &resp)
			if resp.Error.Message == "boom" {
				t.Error("raw error message leaked")
			}
		})
	}
}

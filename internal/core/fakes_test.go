package core

import (
	"context"
	"testing"
	"time"

	"github.com/JonMunkholm/csvportal/internal/auth"
	"github.com/JonMunkholm/csvportal/internal/bizdate"
	"github.com/JonMunkholm/csvportal/internal/core/coretest"
	db "github.com/JonMunkholm/csvportal/internal/database"
)

var fastParams = auth.Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

// testNow is 2024-03-05 09:30 in Bogota.
var testNow = time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)

const licenceHeader = "appli_no,Licence_Type,trn,FName,MName,LName,file_status,statusDate,comments,entdte,status_num,app_file_locn,app_file_dept"

const goodRow = "A-100,Retail,123456789,Jane,,Doe,Active,2024-03-01,note,2024-03-01 10:15:00,3,Shelf 4,D12"

type dbUpdate = db.UpdateUserParams

var (
	_ Store     = (*coretest.MemStore)(nil)
	_ BlobStore = (*coretest.MemBlobs)(nil)
)

type testEnv struct {
	svc   *Service
	store *coretest.MemStore
	blobs *coretest.MemBlobs
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cal, err := bizdate.New(bizdate.DefaultTimezone)
	if err != nil {
		t.Fatalf("calendar: %v", err)
	}
	cal = cal.WithClock(func() time.Time { return testNow })

	tokens, err := auth.NewTokenIssuer("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("token issuer: %v", err)
	}

	store := coretest.NewMemStore(testNow)
	blobs := coretest.NewMemBlobs()
	blobs.Expiry = testNow.Add(10 * time.Minute)
	svc, err := NewService(store, blobs, cal, tokens, Options{
		MaxFileSize:    1024 * 1024,
		SASExpiry:      10 * time.Minute,
		PasswordParams: fastParams,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return &testEnv{svc: svc, store: store, blobs: blobs}
}

// seedUser inserts an account directly and returns a context acting as it.
func (e *testEnv) seedUser(t *testing.T, username string, role Role, password string) (db.User, context.Context) {
	t.Helper()
	hash, err := auth.HashPassword(password, fastParams)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u, err := e.store.CreateUser(context.Background(), db.CreateUserParams{
		Username:     username,
		PasswordHash: hash,
		Role:         string(role),
		Protected:    isProtectedName(username),
	})
	if err != nil {
		t.Fatalf("seed %s: %v", username, err)
	}
	ctx := ContextWithPrincipal(context.Background(), Principal{
		UserID:   uuidToString(u.ID),
		Username: u.Username,
		Role:     role,
	})
	ctx = ContextWithIPAddress(ctx, "203.0.113.7")
	ctx = ContextWithUserAgent(ctx, "test-agent")
	return u, ctx
}

func wantKind(t *testing.T, err error, kind Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind.Code())
	}
	if got := KindOf(err); got != kind {
		t.Fatalf("error kind = %s (%v), want %s", got.Code(), err, kind.Code())
	}
}

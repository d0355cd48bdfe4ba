package web

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterAllow(t *testing.T) {
	rl := newRateLimiter(2, time.Minute)
	defer rl.stop()

	now := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	for i := range 2 {
		if ok, _ := rl.allow("1.1.1.1"); !ok {
			t.Fatalf("request %d refused", i+1)
		}
	}
	ok, wait := rl.allow("1.1.1.1")
	if ok {
		t.Fatal("third request allowed")
	}
	if wait != time.Minute {
		t.Errorf("wait = %v, want 1m", wait)
	}

	if ok, _ := rl.allow("2.2.2.2"); !ok {
		t.Error("other client refused")
	}

	now = now.Add(time.Minute)
	if ok, _ := rl.allow("1.1.1.1"); !ok {
		t.Error("refused after window reset")
	}
}

func TestRateLimiterMiddleware(t *testing.T) {
	rl := newRateLimiter(1, time.Minute)
	defer rl.stop()

	h := rl.middleware("Too many requests")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "203.0.113.7"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	if rec := send(); rec.Code != http.StatusNoContent {
		t.Fatalf("first status = %d", rec.Code)
	}
	rec := send()
	wantError(t, rec, http.StatusTooManyRequests, "RATE001", "Too many requests")
	if got := rec.Header().Get("Retry-After"); got != "60" {
		t.Errorf("Retry-After = %q, want 60", got)
	}
}

func TestDecodeFileContent(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"plain", "aGVsbG8=", "hello", false},
		{"data url", "data:text/csv;base64,aGVsbG8=", "hello", false},
		{"whitespace", " aGVsbG8=\n", "hello", false},
		{"invalid", "not base64!", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeFileContent(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if string(got) != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

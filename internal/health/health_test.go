package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHealth_LegacyBody(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	New().Health(rec, httptest.NewRequest("GET", "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "healthy" || body["service"] != "lingualink" {
		t.Errorf("body = %v", body)
	}
}

func TestHealthz_AlwaysOK(t *testing.T) {
	t.Parallel()

	h := New(Checker{Name: "broken", Check: func(context.Context) error { return errors.New("down") }})
	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	ok := func(context.Context) error { return nil }
	fail := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name       string
		checkers   []Checker
		wantStatus int
		wantBody   string
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantStatus: http.StatusOK,
			wantBody:   "ok",
		},
		{
			name: "all pass",
			checkers: []Checker{
				{Name: "transcriber", Check: ok},
				{Name: "database", Check: ok},
			},
			wantStatus: http.StatusOK,
			wantBody:   "ok",
			wantChecks: map[string]string{"transcriber": "ok", "database": "ok"},
		},
		{
			name: "required failure",
			checkers: []Checker{
				{Name: "transcriber", Check: ok},
				{Name: "database", Check: fail},
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "fail",
			wantChecks: map[string]string{"transcriber": "ok", "database": "fail: connection refused"},
		},
		{
			name: "optional failure is degraded",
			checkers: []Checker{
				{Name: "transcriber", Check: ok},
				{Name: "ffmpeg", Check: fail, Optional: true},
			},
			wantStatus: http.StatusOK,
			wantBody:   "ok",
			wantChecks: map[string]string{"transcriber": "ok", "ffmpeg": "degraded: connection refused"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			New(tt.checkers...).Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var body result
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Status != tt.wantBody {
				t.Errorf("body status = %q, want %q", body.Status, tt.wantBody)
			}
			for k, v := range tt.wantChecks {
				if body.Checks[k] != v {
					t.Errorf("checks[%q] = %q, want %q", k, body.Checks[k], v)
				}
			}
		})
	}
}

func TestReadyz_CheckTimeoutApplied(t *testing.T) {
	t.Parallel()

	h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			return errors.New("no deadline")
		}
		return nil
	}})
	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, body %s", rec.Code, rec.Body)
	}
}

func TestReadyz_CancelledRequest(t *testing.T) {
	t.Parallel()

	h := New(Checker{Name: "db", Check: func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestRegister_Routes(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	New().Register(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	for _, path := range []string{"/health", "/healthz", "/readyz"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d", path, resp.StatusCode)
		}
		if !strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
			t.Errorf("GET %s content type = %q", path, resp.Header.Get("Content-Type"))
		}
	}
}

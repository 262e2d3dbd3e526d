package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/murtezaalemdar/CompanyAi-sub001/internal/telemetry"
)

func okSummary() telemetry.Summary { return telemetry.Summary{} }

func Test_RateLimit_BurstThenReject(t *testing.T) {
	t.Parallel()
	h := newTestServer(t, &fakeService{}, &Config{RateLimit: 1, RateBurst: 2})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.RemoteAddr = "203.0.113.9:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Fatalf("burst requests must pass, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Fatalf("third request must be limited, got %v", codes)
	}
}

func Test_RateLimit_PerIPIsolation(t *testing.T) {
	t.Parallel()
	h := newTestServer(t, &fakeService{}, &Config{RateLimit: 1, RateBurst: 1})

	first := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	first.RemoteAddr = "198.51.100.1:1111"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, first)
	if rec.Code != http.StatusOK {
		t.Fatalf("first IP first request: want 200, got %d", rec.Code)
	}

	// Exhausted for the first IP.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, first)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("first IP second request: want 429, got %d", rec.Code)
	}

	// A different IP still has its own bucket.
	second := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	second.RemoteAddr = "198.51.100.2:2222"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, second)
	if rec.Code != http.StatusOK {
		t.Fatalf("second IP: want 200, got %d", rec.Code)
	}
}

func Test_ClientIP_StripsPort(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.7:5555"
	if got := clientIP(r); got != "192.0.2.7" {
		t.Errorf("want 192.0.2.7, got %q", got)
	}
}

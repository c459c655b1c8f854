package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCheck_Reachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/json/version" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"Browser": "Chrome/130.0.0.0", "Protocol-Version": "1.3"}`))
	}))
	defer srv.Close()

	info, err := NewChecker(srv.URL).Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if info.Browser != "Chrome/130.0.0.0" {
		t.Errorf("Browser = %q", info.Browser)
	}
}

func TestCheck_RetriesThenFails(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewChecker(srv.URL).Check(context.Background())
	if err == nil {
		t.Fatal("expected failure on persistent 503")
	}
	if attempts != probeAttempts {
		t.Errorf("attempts = %d, want %d", attempts, probeAttempts)
	}
}

func TestCheck_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewChecker(srv.URL).Check(ctx); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func TestDiagnose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/json/version":
			w.Write([]byte(`{"Browser": "Chrome/130.0.0.0"}`))
		case "/json/list":
			w.Write([]byte(`[
				{"id": "1", "type": "page", "title": "ChatGPT", "url": "https://chatgpt.com"},
				{"id": "2", "type": "service_worker", "title": "", "url": ""}
			]`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	msg := NewChecker(srv.URL).Diagnose(context.Background())
	if !strings.Contains(msg, "1 page target(s)") {
		t.Errorf("Diagnose = %q, want page count", msg)
	}
}

func TestDiagnose_Unreachable(t *testing.T) {
	c := NewChecker("http://127.0.0.1:1")
	msg := c.Diagnose(context.Background())
	if !strings.Contains(msg, "unreachable") {
		t.Errorf("Diagnose = %q, want unreachable hint", msg)
	}
}

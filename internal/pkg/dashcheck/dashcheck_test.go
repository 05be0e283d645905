package dashcheck

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func stubClient(t *testing.T, rt roundTripperFunc) {
	t.Helper()
	orig := newHTTPClient
	t.Cleanup(func() { newHTTPClient = orig })
	newHTTPClient = func(timeout time.Duration) *http.Client {
		return &http.Client{Timeout: timeout, Transport: rt}
	}
}

func TestHealthURL(t *testing.T) {
	if got := HealthURL("", 0); got != "http://localhost:8501/_stcore/health" {
		t.Fatalf("default url=%q", got)
	}
	if got := HealthURL("0.0.0.0", 9000); got != "http://0.0.0.0:9000/_stcore/health" {
		t.Fatalf("custom url=%q", got)
	}
}

func TestCheckReachable_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != healthPath {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, "ok\n")
	}))
	defer srv.Close()

	body, err := CheckReachable(context.Background(), srv.URL+healthPath, time.Second)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if body != "ok" {
		t.Fatalf("body=%q", body)
	}
}

func TestCheckReachable_EmptyBody(t *testing.T) {
	stubClient(t, func(*http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewBufferString("  \n")),
			Header:     make(http.Header),
		}, nil
	})

	if _, err := CheckReachable(context.Background(), "http://example.test/_stcore/health", 0); err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestCheckReachable_Non2xx(t *testing.T) {
	stubClient(t, func(*http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusServiceUnavailable,
			Status:     "503 Service Unavailable",
			Body:       io.NopCloser(bytes.NewBufferString("down")),
			Header:     make(http.Header),
		}, nil
	})

	if _, err := CheckReachable(context.Background(), "http://example.test/_stcore/health", 0); err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestCheckReachable_TransportError(t *testing.T) {
	stubClient(t, func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})

	if _, err := CheckReachable(context.Background(), "http://example.test/_stcore/health", 0); err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestCheckReachable_MissingURL(t *testing.T) {
	if _, err := CheckReachable(context.Background(), " ", 0); err == nil {
		t.Fatalf("expected error, got nil")
	}
}

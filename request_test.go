package laplace

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// newTestClient returns a client pointed at a test server, configured
// for fast retries.
func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient("test-key",
		WithBaseURL(server.URL),
		WithRetries(3, 5*time.Millisecond),
	)
}

func TestDoRequest_APIKeyQueryParam(t *testing.T) {
	var gotKey, gotUA string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("api_key")
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte(`{}`))
	})

	var out struct{}
	if err := c.get(context.Background(), "v1/test", nil, &out); err != nil {
		t.Fatalf("get failed: %v", err)
	}

	if gotKey != "test-key" {
		t.Errorf("api_key query param = %q, want %q", gotKey, "test-key")
	}
	if !strings.HasPrefix(gotUA, "laplace-go/") {
		t.Errorf("User-Agent = %q, want laplace-go/ prefix", gotUA)
	}
}

func TestDoRequest_NoAuthHeader(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("REST requests must not carry an Authorization header")
		}
		w.Write([]byte(`{}`))
	})

	var out struct{}
	if err := c.get(context.Background(), "v1/test", nil, &out); err != nil {
		t.Fatalf("get failed: %v", err)
	}
}

func TestDoRequest_PostBody(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	var gotBody payload
	var gotContentType string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"ok":true}`))
	})

	var out struct {
		OK bool `json:"ok"`
	}
	if err := c.post(context.Background(), "v1/test", nil, payload{Name: "x"}, &out); err != nil {
		t.Fatalf("post failed: %v", err)
	}

	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", gotContentType)
	}
	if gotBody.Name != "x" {
		t.Errorf("body name = %q, want %q", gotBody.Name, "x")
	}
	if !out.OK {
		t.Error("response not decoded")
	}
}

func TestDoWithRetry_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	})

	var out struct {
		OK bool `json:"ok"`
	}
	if err := c.get(context.Background(), "v1/test", nil, &out); err != nil {
		t.Fatalf("get failed after retries: %v", err)
	}

	if got := calls.Load(); got != 3 {
		t.Errorf("server called %d times, want 3", got)
	}
}

func TestDoWithRetry_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	})

	err := c.get(context.Background(), "v1/test", nil, nil)
	if err == nil {
		t.Fatal("expected error for 400 response")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", apiErr.StatusCode)
	}

	if got := calls.Load(); got != 1 {
		t.Errorf("server called %d times, want 1 (no retry on 4xx)", got)
	}
}

func TestDoWithRetry_ExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	})

	err := c.get(context.Background(), "v1/test", nil, nil)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if !strings.Contains(err.Error(), "max retries exceeded") {
		t.Errorf("error = %q, want max retries exceeded", err)
	}

	// Initial attempt plus three retries.
	if got := calls.Load(); got != 4 {
		t.Errorf("server called %d times, want 4", got)
	}
}

func TestDoWithRetry_ContextCancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.get(ctx, "v1/test", nil, nil)
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestAPIError(t *testing.T) {
	t.Run("Error method", func(t *testing.T) {
		err := &APIError{
			StatusCode: 404,
			Message:    "Not Found",
			Body:       []byte(`{"error": "symbol not found"}`),
		}
		expected := "laplace api error 404: Not Found"
		if err.Error() != expected {
			t.Errorf("Error() = %q, want %q", err.Error(), expected)
		}
	})

	t.Run("IsRetryable", func(t *testing.T) {
		tests := []struct {
			code string
			sc   int
			want bool
		}{
			{"500", 500, true},
			{"502", 502, true},
			{"503", 503, true},
			{"429", 429, true},
			{"400", 400, false},
			{"401", 401, false},
			{"404", 404, false},
		}

		for _, tt := range tests {
			t.Run(tt.code, func(t *testing.T) {
				err := &APIError{StatusCode: tt.sc}
				if got := err.IsRetryable(); got != tt.want {
					t.Errorf("IsRetryable() for %d = %v, want %v", tt.sc, got, tt.want)
				}
			})
		}
	})
}

package fetch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCircuitBreakerFetchSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/gzip")
		_, _ = w.Write([]byte("box content"))
	}))
	defer server.Close()

	cbf := NewCircuitBreakerFetcher(NewFetcher())

	artifact, err := cbf.Fetch(context.Background(), server.URL+"/test.box")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer func() { _ = artifact.Body.Close() }()

	body, _ := io.ReadAll(artifact.Body)
	if string(body) != "box content" {
		t.Errorf("expected 'box content', got %q", string(body))
	}
}

func TestCircuitBreakerHeadSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("expected HEAD request, got %s", r.Method)
		}
		w.Header().Set("Content-Length", "1234")
		w.Header().Set("Content-Type", "application/json")
	}))
	defer server.Close()

	cbf := NewCircuitBreakerFetcher(NewFetcher())

	size, contentType, err := cbf.Head(context.Background(), server.URL+"/bionic64.json")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if size != 1234 {
		t.Errorf("expected size 1234, got %d", size)
	}
	if contentType != "application/json" {
		t.Errorf("expected content type application/json, got %s", contentType)
	}
}

func TestExtractHost(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		expected string
	}{
		{
			name:     "box server",
			url:      "https://boxes.example.com/hashicorp/bionic64.json",
			expected: "boxes.example.com",
		},
		{
			name:     "mirror with port",
			url:      "https://mirror.example.com:8080/bionic64.box",
			expected: "mirror.example.com:8080",
		},
		{
			name:     "invalid URL",
			url:      "not-a-valid-url",
			expected: "not-a-valid-url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractHost(tt.url)
			if got != tt.expected {
				t.Errorf("extractHost(%q) = %q, want %q", tt.url, got, tt.expected)
			}
		})
	}
}

func TestBreakerStates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	cbf := NewCircuitBreakerFetcher(NewFetcher())

	states := cbf.BreakerStates()
	if len(states) != 0 {
		t.Errorf("expected empty states, got %d entries", len(states))
	}

	artifact, err := cbf.Fetch(context.Background(), server.URL+"/test.box")
	if err != nil {
		t.Fatal(err)
	}
	_ = artifact.Body.Close()

	states = cbf.BreakerStates()
	if len(states) != 1 {
		t.Fatalf("expected one breaker state after fetch, got %d", len(states))
	}
	for _, state := range states {
		if state != "closed" {
			t.Errorf("expected closed state, got %s", state)
		}
	}
}

func TestCircuitBreakerSeparateHosts(t *testing.T) {
	server1 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("server1"))
	}))
	defer server1.Close()

	server2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("server2"))
	}))
	defer server2.Close()

	cbf := NewCircuitBreakerFetcher(NewFetcher())
	ctx := context.Background()

	art1, err := cbf.Fetch(ctx, server1.URL+"/test.box")
	if err != nil {
		t.Fatalf("fetch 1 failed: %v", err)
	}
	_ = art1.Body.Close()

	art2, err := cbf.Fetch(ctx, server2.URL+"/test.box")
	if err != nil {
		t.Fatalf("fetch 2 failed: %v", err)
	}
	_ = art2.Body.Close()

	if states := cbf.BreakerStates(); len(states) != 2 {
		t.Errorf("expected 2 breaker states, got %d", len(states))
	}
}

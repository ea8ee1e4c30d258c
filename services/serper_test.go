package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"stock-analyst/config"
)

func newTestSerperService(t *testing.T, handler http.HandlerFunc) *SerperService {
	t.Helper()
	SetGlobalRegistry(NewCircuitBreakerRegistry(DefaultCircuitBreakerConfig))

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.NewTestConfig()
	cfg.Serper.APIKey = "serper-key"
	cfg.Serper.BaseURL = server.URL
	svc, err := NewSerperService(cfg)
	if err != nil {
		t.Fatalf("NewSerperService failed: %v", err)
	}
	svc.retry = RetryConfig{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
	return svc
}

func TestNewSerperService_MissingKey(t *testing.T) {
	if _, err := NewSerperService(config.NewTestConfig()); err == nil {
		t.Error("expected error without SERPER_API_KEY")
	}
}

func TestSerperSearch(t *testing.T) {
	svc := newTestSerperService(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/search" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-API-KEY") != "serper-key" {
			t.Error("API key header missing")
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["q"] != "trending stocks today" {
			t.Errorf("query = %v", body["q"])
		}
		_, _ = w.Write([]byte(`{
			"topStories":[{"title":"NVDA leads gains","link":"https://example.com/1"}],
			"organic":[{"title":"Most active stocks","link":"https://example.com/2","snippet":"AMD, PLTR and SMCI","date":"1 hour ago"}]
		}`))
	})

	digest, err := svc.Search(context.Background(), "trending stocks today")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"1. NVDA leads gains", "2. Most active stocks", "AMD, PLTR and SMCI", "Date: 1 hour ago"} {
		if !strings.Contains(digest, want) {
			t.Errorf("digest missing %q:\n%s", want, digest)
		}
	}
}

func TestSerperSearch_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantCalls int32
	}{
		{"bad key is not retried", http.StatusForbidden, 1},
		{"throttling is retried", http.StatusTooManyRequests, 3},
		{"server errors are retried", http.StatusBadGateway, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			svc := newTestSerperService(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"message":"nope"}`))
			})

			_, err := svc.Search(context.Background(), "q")
			if err == nil || !strings.Contains(err.Error(), fmt.Sprintf("status %d", tt.status)) {
				t.Errorf("expected status error, got %v", err)
			}
			if calls.Load() != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls.Load(), tt.wantCalls)
			}
		})
	}
}

func TestFormatSearchResults_Empty(t *testing.T) {
	if got := formatSearchResults(serperResponse{}); got != "No results found." {
		t.Errorf("got %q", got)
	}
}

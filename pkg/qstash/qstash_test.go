package qstash

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPublishJSON(t *testing.T) {
	t.Parallel()

	var gotPath, gotAuth, gotRetries string
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotRetries = r.Header.Get("Upstash-Retries")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"messageId":"msg_1"}`))
	}))
	defer server.Close()

	client, err := NewClient(Config{URL: server.URL, Token: "token", Destination: "https://example.com/runs", Retries: 2})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	id, err := client.PublishJSON(context.Background(), map[string]string{"outcome": "success"})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if id != "msg_1" {
		t.Fatalf("expected msg_1, got %q", id)
	}
	if gotPath != "/v2/publish/https://example.com/runs" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotAuth != "Bearer token" || gotRetries != "2" {
		t.Fatalf("unexpected headers auth=%q retries=%q", gotAuth, gotRetries)
	}
	if gotBody["outcome"] != "success" {
		t.Fatalf("unexpected body %v", gotBody)
	}
}

func TestPublishJSONReportsErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "http status", status: http.StatusUnauthorized, body: `{"error":"unauthorized"}`},
		{name: "error body", status: http.StatusOK, body: `{"error":"bad destination"}`},
		{name: "invalid json", status: http.StatusOK, body: `nope`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			client := MustNew(Config{URL: server.URL, Token: "token", Destination: "https://example.com/runs"})
			if _, err := client.PublishJSON(context.Background(), struct{}{}); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestNewClientValidation(t *testing.T) {
	t.Parallel()

	tests := map[string]Config{
		"missing url":         {Token: "t", Destination: "https://example.com"},
		"missing token":       {URL: "https://qstash.upstash.io", Destination: "https://example.com"},
		"invalid destination": {URL: "https://qstash.upstash.io", Token: "t", Destination: "runs"},
	}
	for name, cfg := range tests {
		if _, err := NewClient(cfg); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testUpstashConfig() UpstashRedisConfig {
	return UpstashRedisConfig{Token: "token", TTL: 168 * time.Hour, KeyPrefix: "skill:run:"}
}

func newTestUpstash(t *testing.T, handler http.HandlerFunc) *UpstashRedisStore {
	t.Helper()
	return newTestUpstashWith(t, testUpstashConfig(), handler)
}

func newTestUpstashWith(t *testing.T, cfg UpstashRedisConfig, handler http.HandlerFunc) *UpstashRedisStore {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg.URL = server.URL
	store, err := NewUpstashRedisStore(cfg)
	if err != nil {
		t.Fatalf("NewUpstashRedisStore() error = %v", err)
	}
	return store
}

func TestUpstashRedisStoreRedisKey(t *testing.T) {
	t.Parallel()

	cfg := testUpstashConfig()
	cfg.URL = "https://example.upstash.io"
	store, err := NewUpstashRedisStore(cfg)
	if err != nil {
		t.Fatalf("NewUpstashRedisStore() error = %v", err)
	}
	got, err := store.redisKey("abc")
	if err != nil {
		t.Fatalf("redisKey() error = %v", err)
	}
	if got != "skill:run:abc" {
		t.Fatalf("redisKey() = %q, want %q", got, "skill:run:abc")
	}

	if _, err := store.redisKey("   "); !errors.Is(err, ErrInvalidRunID) {
		t.Fatalf("redisKey() error = %v, want ErrInvalidRunID", err)
	}
}

func TestNewUpstashRedisStoreValidatesConfig(t *testing.T) {
	t.Parallel()

	cases := map[string]func(*UpstashRedisConfig){
		"missing url":      func(c *UpstashRedisConfig) { c.URL = "" },
		"missing token":    func(c *UpstashRedisConfig) { c.Token = " " },
		"negative ttl":     func(c *UpstashRedisConfig) { c.TTL = -time.Second },
		"sub-ms ttl":       func(c *UpstashRedisConfig) { c.TTL = time.Microsecond },
		"empty key prefix": func(c *UpstashRedisConfig) { c.KeyPrefix = "" },
	}
	for name, mutate := range cases {
		cfg := testUpstashConfig()
		cfg.URL = "https://example.upstash.io"
		mutate(&cfg)
		if _, err := NewUpstashRedisStore(cfg); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestUpstashRedisStoreSave(t *testing.T) {
	t.Parallel()

	rec := sampleRecord(t)
	var gotCommand []any
	var gotAuth string

	cfg := testUpstashConfig()
	cfg.KeyPrefix = "robot1:run:"
	store := newTestUpstashWith(t, cfg, func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotCommand); err != nil {
			t.Errorf("decode command: %v", err)
		}
		fmt.Fprint(w, `{"result":"OK"}`)
	})

	if err := store.Save(context.Background(), rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if gotAuth != "Bearer token" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
	if len(gotCommand) != 5 {
		t.Fatalf("unexpected command: %#v", gotCommand)
	}
	if gotCommand[0] != "SET" || gotCommand[1] != "robot1:run:"+rec.ID {
		t.Fatalf("unexpected command head: %v %v", gotCommand[0], gotCommand[1])
	}
	if !strings.Contains(gotCommand[2].(string), `"state":"SELECT_GOAL"`) {
		t.Fatalf("payload missing steps: %v", gotCommand[2])
	}
	if gotCommand[3] != "PX" || gotCommand[4] != float64(7*24*3600*1000) {
		t.Fatalf("unexpected expiry: %v %v", gotCommand[3], gotCommand[4])
	}
}

func TestUpstashRedisStoreSaveWithoutTTL(t *testing.T) {
	t.Parallel()

	var gotCommand []any
	cfg := testUpstashConfig()
	cfg.TTL = 0
	store := newTestUpstashWith(t, cfg, func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&gotCommand); err != nil {
			t.Errorf("decode command: %v", err)
		}
		fmt.Fprint(w, `{"result":"OK"}`)
	})

	if err := store.Save(context.Background(), sampleRecord(t)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if len(gotCommand) != 3 {
		t.Fatalf("expected SET without expiry, got %#v", gotCommand)
	}
}

func TestUpstashRedisStoreSaveRejectsInvalidRecord(t *testing.T) {
	t.Parallel()

	store := newTestUpstash(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	if err := store.Save(context.Background(), nil); !errors.Is(err, ErrNilRunRecord) {
		t.Fatalf("Save() error = %v, want ErrNilRunRecord", err)
	}
}

func TestUpstashRedisStoreLoad(t *testing.T) {
	t.Parallel()

	seed := sampleRecord(t)
	payload, err := json.Marshal(seed)
	if err != nil {
		t.Fatalf("marshal seed: %v", err)
	}
	encoded, err := json.Marshal(string(payload))
	if err != nil {
		t.Fatalf("marshal encoded seed: %v", err)
	}

	var gotCommand []any
	store := newTestUpstash(t, func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&gotCommand); err != nil {
			t.Errorf("decode command: %v", err)
		}
		fmt.Fprintf(w, `{"result":%s}`, encoded)
	})

	rec, err := store.Load(context.Background(), seed.ID)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if rec.ID != seed.ID || len(rec.Steps) != 2 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if gotCommand[0] != "GET" || gotCommand[1] != "skill:run:"+seed.ID {
		t.Fatalf("unexpected command: %#v", gotCommand)
	}
}

func TestUpstashRedisStoreLoadNotFound(t *testing.T) {
	t.Parallel()

	store := newTestUpstash(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":null}`)
	})
	if _, err := store.Load(context.Background(), "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("Load() error = %v, want ErrRunNotFound", err)
	}
}

func TestUpstashRedisStoreErrors(t *testing.T) {
	t.Parallel()

	cases := map[string]http.HandlerFunc{
		"http status": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":"unauthorized"}`)
		},
		"redis error": func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"error":"WRONGTYPE"}`)
		},
	}
	for name, handler := range cases {
		store := newTestUpstash(t, handler)
		if err := store.Delete(context.Background(), "run-1"); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestUpstashRedisStoreDelete(t *testing.T) {
	t.Parallel()

	var gotCommand []any
	store := newTestUpstash(t, func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&gotCommand); err != nil {
			t.Errorf("decode command: %v", err)
		}
		fmt.Fprint(w, `{"result":1}`)
	})

	if err := store.Delete(context.Background(), "run-3"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if gotCommand[0] != "DEL" || gotCommand[1] != "skill:run:run-3" {
		t.Fatalf("unexpected command: %#v", gotCommand)
	}
}

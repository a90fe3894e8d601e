package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxResponseSizeBytes = 2 << 20

type UpstashRedisConfig struct {
	URL       string        `envconfig:"URL" split_words:"true" required:"true"`
	Token     string        `envconfig:"TOKEN" split_words:"true" required:"true"`
	Timeout   time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
	TTL       time.Duration `envconfig:"TTL" split_words:"true" default:"168h"`
	KeyPrefix string        `envconfig:"KEY_PREFIX" split_words:"true" default:"skill:run:"`
}

// UpstashRedisStore keeps one JSON document per run under KeyPrefix+ID,
// written through the Upstash REST API. A TTL of zero keeps records forever.
type UpstashRedisStore struct {
	baseURL    string
	token      string
	keyPrefix  string
	ttl        time.Duration
	httpClient *http.Client
}

type redisRESTResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

func NewUpstashRedisStore(cfg UpstashRedisConfig) (*UpstashRedisStore, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("upstash redis url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid redis rest url: %w", err)
	}
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("upstash redis token is required")
	}
	if cfg.TTL < 0 || (cfg.TTL > 0 && cfg.TTL < time.Millisecond) {
		return nil, errors.New("ttl must be 0 or at least 1ms")
	}
	prefix := strings.TrimSpace(cfg.KeyPrefix)
	if prefix == "" {
		return nil, errors.New("upstash redis key prefix is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &UpstashRedisStore{
		baseURL:    baseURL,
		token:      token,
		keyPrefix:  prefix,
		ttl:        cfg.TTL,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (s *UpstashRedisStore) Load(ctx context.Context, runID string) (*RunRecord, error) {
	key, err := s.redisKey(runID)
	if err != nil {
		return nil, err
	}
	resp, err := s.exec(ctx, "GET", key)
	if err != nil {
		return nil, err
	}

	result := bytes.TrimSpace(resp.Result)
	if len(result) == 0 || bytes.Equal(result, []byte("null")) {
		return nil, ErrRunNotFound
	}
	var encoded string
	if err := json.Unmarshal(result, &encoded); err != nil {
		return nil, fmt.Errorf("decode run payload: %w", err)
	}
	var rec RunRecord
	if err := json.Unmarshal([]byte(encoded), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal run record: %w", err)
	}
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run record loaded from store: %w", err)
	}
	return &rec, nil
}

func (s *UpstashRedisStore) Save(ctx context.Context, rec *RunRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}

	cmd := []any{"SET", s.keyPrefix + rec.ID, string(payload)}
	if s.ttl > 0 {
		cmd = append(cmd, "PX", s.ttl.Milliseconds())
	}
	_, err = s.exec(ctx, cmd...)
	return err
}

func (s *UpstashRedisStore) Delete(ctx context.Context, runID string) error {
	key, err := s.redisKey(runID)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, "DEL", key)
	return err
}

func (s *UpstashRedisStore) redisKey(runID string) (string, error) {
	if strings.TrimSpace(runID) == "" {
		return "", ErrInvalidRunID
	}
	return s.keyPrefix + runID, nil
}

func (s *UpstashRedisStore) exec(ctx context.Context, command ...any) (*redisRESTResponse, error) {
	body, err := json.Marshal(command)
	if err != nil {
		return nil, fmt.Errorf("marshal redis command: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build redis request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute redis request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read redis response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("redis http status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed redisRESTResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode redis response: %w", err)
	}
	if parsed.Error != "" {
		return nil, errors.New(parsed.Error)
	}
	return &parsed, nil
}

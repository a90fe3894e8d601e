package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	ErrRunNotFound  = errors.New("run record not found")
	ErrNilRunRecord = errors.New("run record is nil")
	ErrInvalidRunID = errors.New("run id is invalid")
)

// Store is the persistence contract used by the orchestrator.
type Store interface {
	Load(ctx context.Context, runID string) (*RunRecord, error)
	Save(ctx context.Context, rec *RunRecord) error
	Delete(ctx context.Context, runID string) error
}

// MemoryStore keeps records in process. Records are copied in and out.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string][]byte)}
}

func (s *MemoryStore) Load(ctx context.Context, runID string) (*RunRecord, error) {
	if strings.TrimSpace(runID) == "" {
		return nil, ErrInvalidRunID
	}
	s.mu.RLock()
	raw, ok := s.runs[runID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrRunNotFound
	}
	var rec RunRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal run record: %w", err)
	}
	return &rec, nil
}

func (s *MemoryStore) Save(ctx context.Context, rec *RunRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}
	s.mu.Lock()
	s.runs[rec.ID] = raw
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, runID string) error {
	if strings.TrimSpace(runID) == "" {
		return ErrInvalidRunID
	}
	s.mu.Lock()
	delete(s.runs, runID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}

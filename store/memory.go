package store

import (
	"context"
	"sync"

	"github.com/taskmesh/taskmesh/types"
)

// MemoryTaskStore keeps task records in process memory. Safe for concurrent
// use; every Save and Load works on deep copies so callers never share
// mutable state with the store.
type MemoryTaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*types.TaskExecutionRecord
}

// NewMemoryTaskStore creates an empty in-memory task store.
func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{tasks: make(map[string]*types.TaskExecutionRecord)}
}

// Save stores a snapshot of the record, replacing any previous one.
func (s *MemoryTaskStore) Save(ctx context.Context, rec *types.TaskExecutionRecord) error {
	if rec == nil || rec.TaskID == "" {
		return types.NewError(types.ErrInvalidInput, "record has no task id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[rec.TaskID] = rec.Clone()
	return nil
}

// Load returns a copy of the stored record or TASK_NOT_FOUND.
func (s *MemoryTaskStore) Load(ctx context.Context, taskID string) (*types.TaskExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.tasks[taskID]
	if !ok {
		return nil, types.NewError(types.ErrTaskNotFound, "task not found: "+taskID)
	}
	return rec.Clone(), nil
}

// Len returns the number of stored tasks.
func (s *MemoryTaskStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// MemoryAuditStore keeps the audit trail in process memory, preserving
// append order. Records are append-only and never mutated, so Query hands
// out the stored values directly.
type MemoryAuditStore struct {
	mu      sync.RWMutex
	records []types.AuditRecord
}

// NewMemoryAuditStore creates an empty in-memory audit store.
func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{}
}

// Append adds one record to the trail.
func (s *MemoryAuditStore) Append(ctx context.Context, rec types.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// Query returns every record matching q, in append order.
func (s *MemoryAuditStore) Query(ctx context.Context, q types.AuditQuery) ([]types.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.AuditRecord
	for _, rec := range s.records {
		if q.Matches(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

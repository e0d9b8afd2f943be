package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore：和 MySQLStore 同一契约的内存实现，给测试和单机试跑用
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string][]SnapshotRecord // docID -> 按 revision 升序
	ops       map[string][]OperationRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots: make(map[string][]SnapshotRecord),
		ops:       make(map[string][]OperationRecord),
	}
}

func (m *MemoryStore) CreateDocument(ctx context.Context, docID string, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.snapshots[docID]) > 0 {
		return ErrDocumentExists
	}
	m.snapshots[docID] = append(m.snapshots[docID], SnapshotRecord{
		DocID:     docID,
		Revision:  0,
		Content:   content,
		CreatedAt: time.Now(),
	})
	return nil
}

func (m *MemoryStore) LoadSnapshot(ctx context.Context, docID string) (SnapshotRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snaps := m.snapshots[docID]
	if len(snaps) == 0 {
		return SnapshotRecord{}, ErrDocumentNotFound
	}
	return snaps[len(snaps)-1], nil
}

func (m *MemoryStore) SaveSnapshot(ctx context.Context, docID string, revision uint64, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snaps := m.snapshots[docID]
	for _, s := range snaps {
		if s.Revision == revision {
			// 同 revision 幂等
			return nil
		}
	}
	m.snapshots[docID] = append(snaps, SnapshotRecord{
		DocID:     docID,
		Revision:  revision,
		Content:   content,
		CreatedAt: time.Now(),
	})
	return nil
}

func (m *MemoryStore) AppendOperation(ctx context.Context, rec OperationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	log := m.ops[rec.DocID]
	for _, existing := range log {
		if existing.Revision == rec.Revision {
			return ErrRevisionLogConflict
		}
	}
	m.ops[rec.DocID] = append(log, rec)
	return nil
}

func (m *MemoryStore) LoadOperationsSince(ctx context.Context, docID string, fromRevision uint64) ([]OperationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []OperationRecord
	for _, rec := range m.ops[docID] {
		if rec.Revision > fromRevision {
			out = append(out, rec)
		}
	}
	return out, nil
}

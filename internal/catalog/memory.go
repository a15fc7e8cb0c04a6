package catalog

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory 是进程内的 Catalog 实现，用于测试和一次性命令。
type Memory struct {
	mu        sync.Mutex
	nextID    int64
	bySource  map[string]*Record
	byContent map[string]*Record
}

// NewMemory 创建一个空的内存 Catalog
func NewMemory() *Memory {
	return &Memory{
		bySource:  make(map[string]*Record),
		byContent: make(map[string]*Record),
	}
}

func (m *Memory) FindBySourceFingerprint(_ context.Context, fp string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.bySource[fp]; ok {
		return *rec, nil
	}
	return Record{}, ErrNotFound
}

func (m *Memory) FindByContentFingerprint(_ context.Context, fp string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.byContent[fp]; ok {
		return *rec, nil
	}
	return Record{}, ErrNotFound
}

func (m *Memory) Insert(_ context.Context, rec Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byContent[rec.ContentFingerprint]; ok {
		return Record{}, ErrDuplicateContent
	}
	if _, ok := m.bySource[rec.SourceFingerprint]; ok {
		return Record{}, ErrDuplicateSource
	}
	m.nextID++
	rec.ID = m.nextID
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	stored := rec
	m.bySource[rec.SourceFingerprint] = &stored
	m.byContent[rec.ContentFingerprint] = &stored
	return stored, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

// All 按插入顺序返回所有记录
func (m *Memory) All() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0, len(m.byContent))
	for _, rec := range m.byContent {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len 返回记录数
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byContent)
}

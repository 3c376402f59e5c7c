package progress

import (
	"context"
	"sync"
)

// Memory keeps progress for the lifetime of the process only. It is the
// store used when resuming is disabled.
type Memory struct {
	mu     sync.Mutex
	record Record
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

var _ Store = (*Memory)(nil)

func (m *Memory) Load(_ context.Context) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record, nil
}

func (m *Memory) Save(_ context.Context, lastIndex, totalCompleted int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record = Record{LastIndex: lastIndex, TotalCompleted: totalCompleted, UpdatedAt: nowFunc()}
	return nil
}

func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record = Record{}
	return nil
}

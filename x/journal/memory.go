package journal

import (
	"context"
	"sort"
	"sync"

	"github.com/compose-network/harberger/x/ledger"
)

var _ Manager = (*memoryManager)(nil)

// NewMemoryManager creates an in-memory journal.
func NewMemoryManager() Manager {
	return newMemoryManager()
}

func newMemoryManager() *memoryManager {
	return &memoryManager{entries: make([]ledger.Event, 0)}
}

type memoryManager struct {
	mu      sync.RWMutex
	entries []ledger.Event
}

func (m *memoryManager) Publish(_ context.Context, events []ledger.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.append(events)
	return nil
}

func (m *memoryManager) append(events []ledger.Event) {
	for _, ev := range events {
		m.entries = append(m.entries, copyEvent(ev))
	}
}

func (m *memoryManager) ReadEntries(_ context.Context, since uint64) ([]ledger.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	start := sort.Search(len(m.entries), func(i int) bool { return m.entries[i].Seq > since })
	results := make([]ledger.Event, 0, len(m.entries)-start)
	for _, e := range m.entries[start:] {
		results = append(results, copyEvent(e))
	}
	return results, nil
}

func (m *memoryManager) LastSeq() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.entries) == 0 {
		return 0
	}
	return m.entries[len(m.entries)-1].Seq
}

func (m *memoryManager) Close() error {
	return nil
}

func copyEvent(ev ledger.Event) ledger.Event {
	if ev.Attrs != nil {
		attrs := make(map[string]string, len(ev.Attrs))
		for k, v := range ev.Attrs {
			attrs[k] = v
		}
		ev.Attrs = attrs
	}
	return ev
}

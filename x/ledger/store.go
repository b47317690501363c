package ledger

import (
	"sync"

	"github.com/google/btree"
)

// Store persists slot records keyed by identifier. Only non-default records
// are stored; a missing key reads as the default record.
type Store interface {
	Get(id SlotID) (Slot, bool)
	Put(id SlotID, s Slot)
	Delete(id SlotID)
	// Ascend visits stored records in identifier order until fn returns false.
	Ascend(fn func(id SlotID, s Slot) bool)
	Len() int
}

type slotEntry struct {
	id   SlotID
	slot Slot
}

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps records in an ordered in-memory B-tree.
type MemoryStore struct {
	mu   sync.RWMutex
	tree *btree.BTreeG[slotEntry]
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tree: btree.NewG[slotEntry](32, func(a, b slotEntry) bool { return a.id < b.id }),
	}
}

func (m *MemoryStore) Get(id SlotID) (Slot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.tree.Get(slotEntry{id: id})
	if !ok {
		return Slot{}, false
	}
	return e.slot.normalize(), true
}

func (m *MemoryStore) Put(id SlotID, s Slot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tree.ReplaceOrInsert(slotEntry{id: id, slot: s.normalize()})
}

func (m *MemoryStore) Delete(id SlotID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tree.Delete(slotEntry{id: id})
}

func (m *MemoryStore) Ascend(fn func(id SlotID, s Slot) bool) {
	m.mu.RLock()
	entries := make([]slotEntry, 0, m.tree.Len())
	m.tree.Ascend(func(e slotEntry) bool {
		entries = append(entries, e)
		return true
	})
	m.mu.RUnlock()

	for _, e := range entries {
		if !fn(e.id, e.slot.normalize()) {
			return
		}
	}
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tree.Len()
}

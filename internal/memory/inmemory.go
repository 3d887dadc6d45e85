package memory

import "sync"

// InMemoryStore keeps every user document in process memory. State is lost
// on restart; it backs local runs and tests.
type InMemoryStore struct {
	docStore
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{docStore: newDocStore(&mapBackend{docs: make(map[string]*userDoc)})}
}

// mapBackend guards only the map itself; per-user ordering comes from
// docStore.
type mapBackend struct {
	mu   sync.RWMutex
	docs map[string]*userDoc
}

func (b *mapBackend) load(userID string) (*userDoc, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	doc, ok := b.docs[userID]
	if !ok {
		return nil, nil
	}
	return doc.clone(), nil
}

func (b *mapBackend) save(doc *userDoc) error {
	c := doc.clone()
	b.mu.Lock()
	b.docs[doc.ID] = c
	b.mu.Unlock()
	return nil
}

func (b *mapBackend) close() error { return nil }

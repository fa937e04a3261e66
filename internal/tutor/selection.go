package tutor

import (
	"context"
	"sync"
	"time"
)

const selectionKeyPrefix = "scai:selection:"

// Selection is the learner's last curriculum choice.
type Selection struct {
	Subject string `json:"subject"`
	Chapter string `json:"chapter"`
	Lesson  string `json:"lesson"`
	Goal    string `json:"goal,omitempty"`
}

// SelectionStore remembers each learner's last selection.
type SelectionStore interface {
	SaveSelection(ctx context.Context, userName string, sel Selection) error
	LoadSelection(ctx context.Context, userName string) (Selection, bool, error)
	ClearSelection(ctx context.Context, userName string) error
}

// MemorySelectionStore keeps selections in process memory.
type MemorySelectionStore struct {
	mu         sync.RWMutex
	selections map[string]Selection
}

func NewMemorySelectionStore() *MemorySelectionStore {
	return &MemorySelectionStore{selections: make(map[string]Selection)}
}

func (s *MemorySelectionStore) SaveSelection(_ context.Context, userName string, sel Selection) error {
	s.mu.Lock()
	s.selections[userName] = sel
	s.mu.Unlock()
	return nil
}

func (s *MemorySelectionStore) LoadSelection(_ context.Context, userName string) (Selection, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sel, ok := s.selections[userName]
	return sel, ok, nil
}

func (s *MemorySelectionStore) ClearSelection(_ context.Context, userName string) error {
	s.mu.Lock()
	delete(s.selections, userName)
	s.mu.Unlock()
	return nil
}

// JSONCache is the subset of *cache.Cache used for selections.
type JSONCache interface {
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, v any) (bool, error)
	Delete(ctx context.Context, key string) error
}

// CacheSelectionStore keeps selections in Redis with a TTL.
type CacheSelectionStore struct {
	cache JSONCache
	ttl   time.Duration
}

func NewCacheSelectionStore(cache JSONCache, ttl time.Duration) *CacheSelectionStore {
	return &CacheSelectionStore{cache: cache, ttl: ttl}
}

func (s *CacheSelectionStore) SaveSelection(ctx context.Context, userName string, sel Selection) error {
	return s.cache.SetJSON(ctx, selectionKeyPrefix+userName, sel, s.ttl)
}

func (s *CacheSelectionStore) LoadSelection(ctx context.Context, userName string) (Selection, bool, error) {
	var sel Selection
	found, err := s.cache.GetJSON(ctx, selectionKeyPrefix+userName, &sel)
	if err != nil || !found {
		return Selection{}, false, err
	}
	return sel, true, nil
}

func (s *CacheSelectionStore) ClearSelection(ctx context.Context, userName string) error {
	return s.cache.Delete(ctx, selectionKeyPrefix+userName)
}

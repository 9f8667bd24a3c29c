package quota

import (
	"context"
	"sync"
	"time"
)

type memoryStore struct {
	mu       sync.Mutex
	counters map[string]Counter
}

func newMemoryStore() *memoryStore {
	return &memoryStore{counters: make(map[string]Counter)}
}

func counterKey(orgID, periodID string) string {
	return orgID + "|" + periodID
}

func (s *memoryStore) Increment(ctx context.Context, orgID, periodID string, limit int, at time.Time) (Counter, bool, error) {
	if err := ctx.Err(); err != nil {
		return Counter{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := counterKey(orgID, periodID)
	c, ok := s.counters[key]
	if !ok {
		c = Counter{OrgID: orgID, PeriodID: periodID}
	}
	c.Limit = limit
	if c.Count >= limit {
		s.counters[key] = c
		return c, false, nil
	}
	c.Count++
	c.UpdatedAt = at
	s.counters[key] = c
	return c, true, nil
}

func (s *memoryStore) Get(ctx context.Context, orgID, periodID string, limit int) (Counter, error) {
	if err := ctx.Err(); err != nil {
		return Counter{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[counterKey(orgID, periodID)]
	if !ok {
		return Counter{OrgID: orgID, PeriodID: periodID, Limit: limit}, nil
	}
	return c, nil
}

package synclog

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryLog is an in-process ActionLog with the same cap/TTL semantics as
// the Redis log. Used by tests and local development.
type MemoryLog struct {
	mu      sync.Mutex
	actions map[string][]Action
	expiry  map[string]time.Time

	now func() time.Time
}

// NewMemoryLog creates an empty in-memory action log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{
		actions: make(map[string][]Action),
		expiry:  make(map[string]time.Time),
		now:     time.Now,
	}
}

func (l *MemoryLog) Store(ctx context.Context, action Action) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	companyID := action.CompanyID
	l.dropIfExpired(companyID)

	entries := append(l.actions[companyID], action)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp < entries[j].Timestamp
	})

	if len(entries) > MaxActionsPerCompany {
		entries = entries[len(entries)-MaxActionsPerCompany:]
	}

	l.actions[companyID] = entries
	l.expiry[companyID] = l.now().Add(ActionTTL)

	return nil
}

func (l *MemoryLog) MissedSince(ctx context.Context, companyID string, since int64) ([]Action, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.dropIfExpired(companyID)

	var out []Action
	for _, action := range l.actions[companyID] {
		if action.Timestamp > since {
			out = append(out, action)
		}
	}

	return out, nil
}

func (l *MemoryLog) dropIfExpired(companyID string) {
	expiry, ok := l.expiry[companyID]
	if ok && l.now().After(expiry) {
		delete(l.actions, companyID)
		delete(l.expiry, companyID)
	}
}

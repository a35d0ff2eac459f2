package session

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type entry struct {
	respondentID int64
	expiresAt    time.Time
}

type memory struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

// Memory keeps bindings in process. Only suitable for a single instance.
func Memory(ttl time.Duration) Binder {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &memory{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (m *memory) Bind(ctx context.Context, callSid string, respondentID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key(callSid)
	if e, ok := m.lookup(k); ok && e.respondentID != respondentID {
		return fmt.Errorf("%w: %s is bound to %d", ErrConflict, callSid, e.respondentID)
	}
	m.entries[k] = entry{respondentID: respondentID, expiresAt: m.now().Add(m.ttl)}
	return nil
}

func (m *memory) Rebind(ctx context.Context, callSid string, respondentID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key(callSid)] = entry{respondentID: respondentID, expiresAt: m.now().Add(m.ttl)}
	return nil
}

func (m *memory) Resolve(ctx context.Context, callSid string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key(callSid)
	e, ok := m.lookup(k)
	if !ok {
		return 0, false, nil
	}
	e.expiresAt = m.now().Add(m.ttl)
	m.entries[k] = e
	return e.respondentID, true, nil
}

func (m *memory) Forget(ctx context.Context, callSid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key(callSid))
	return nil
}

func (m *memory) Ping(ctx context.Context) error {
	return nil
}

// lookup drops the entry when it has expired. Callers hold mu.
func (m *memory) lookup(k string) (entry, bool) {
	e, ok := m.entries[k]
	if !ok {
		return entry{}, false
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.entries, k)
		return entry{}, false
	}
	return e, true
}

package limiter

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMemoryEntries bounds the number of tracked email/address pairs.
const DefaultMemoryEntries = 4096

type memEntry struct {
	fails        int
	updatedAt    time.Time
	blockedUntil time.Time
}

// Memory is an in-process limiter for single-node and development servers.
// The least recently seen pairs are evicted first.
type Memory struct {
	pol Policy
	now func() time.Time

	mu    sync.Mutex
	state *lru.Cache[string, memEntry]
}

var _ Limiter = (*Memory)(nil)

// NewMemory constructs an in-memory limiter tracking at most size pairs.
func NewMemory(pol Policy, size int) (*Memory, error) {
	if size <= 0 {
		size = DefaultMemoryEntries
	}
	c, err := lru.New[string, memEntry](size)
	if err != nil {
		return nil, err
	}
	return &Memory{pol: pol, now: time.Now, state: c}, nil
}

func memKey(email string, ipHash []byte) string { return email + "\x00" + string(ipHash) }

// Allow reports whether the pair is currently unblocked.
func (m *Memory) Allow(_ context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.state.Get(memKey(email, ipHash))
	if !ok {
		return true, 0, nil
	}
	if wait := e.blockedUntil.Sub(m.now()); wait > 0 {
		return false, wait, nil
	}
	return true, 0, nil
}

// Success forgets the pair.
func (m *Memory) Success(_ context.Context, email string, ipHash []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Remove(memKey(email, ipHash))
	return nil
}

// Failure counts a failed attempt inside Window and blocks at MaxFails.
func (m *Memory) Failure(_ context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	k := memKey(email, ipHash)
	e, _ := m.state.Get(k)
	if now.Sub(e.updatedAt) > m.pol.Window {
		e.fails = 0
	}
	e.fails++
	e.updatedAt = now
	blocked := e.fails >= m.pol.MaxFails
	if blocked {
		e.blockedUntil = now.Add(m.pol.BlockFor)
	}
	m.state.Add(k, e)
	if !blocked {
		return false, 0, nil
	}
	return true, m.pol.BlockFor, nil
}

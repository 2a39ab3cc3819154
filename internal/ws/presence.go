package ws

import (
	"context"
	"sort"
	"sync"
)

// Presence counts sockets per user. Connect reports whether this is the
// user's first socket, Disconnect whether it was the last.
type Presence interface {
	Connect(ctx context.Context, userID string) (bool, error)
	Disconnect(ctx context.Context, userID string) (bool, error)
	Online(ctx context.Context) ([]string, error)
}

// MemoryPresence is a single-node Presence.
type MemoryPresence struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{counts: make(map[string]int)}
}

func (p *MemoryPresence) Connect(_ context.Context, userID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counts[userID]++
	return p.counts[userID] == 1, nil
}

func (p *MemoryPresence) Disconnect(_ context.Context, userID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, ok := p.counts[userID]
	if !ok {
		return false, nil
	}
	if n <= 1 {
		delete(p.counts, userID)
		return true, nil
	}
	p.counts[userID] = n - 1
	return false, nil
}

func (p *MemoryPresence) Online(_ context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	users := make([]string, 0, len(p.counts))
	for userID := range p.counts {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users, nil
}

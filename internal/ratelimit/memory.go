package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/scailup/creditledger/internal/clock"
	"github.com/scailup/creditledger/internal/config"
)

// MemoryWindow is the default per-instance sliding window limiter.
type MemoryWindow struct {
	holder *config.EngineConfigHolder
	clock  clock.Clock

	mu        sync.Mutex
	windows   map[string][]time.Time
	lastSweep time.Time
}

func NewMemoryWindow(holder *config.EngineConfigHolder, clk clock.Clock) *MemoryWindow {
	return &MemoryWindow{
		holder:  holder,
		clock:   clk,
		windows: make(map[string][]time.Time),
	}
}

func (m *MemoryWindow) Allow(_ context.Context, identity string) (*Result, error) {
	if identity == "" {
		return nil, errors.New("rate limiter identity is empty")
	}

	cfg := m.holder.Get().RateLimit
	if !cfg.Enabled || cfg.Budget <= 0 {
		return &Result{Allowed: true, Limit: cfg.Budget, Remaining: cfg.Budget}, nil
	}

	now := m.clock.Now()
	cutoff := now.Add(-cfg.Window)

	m.mu.Lock()
	defer m.mu.Unlock()

	// Identities that stop sending requests would otherwise pin their key
	// forever; sweep the whole map at most once per window.
	if now.Sub(m.lastSweep) >= cfg.Window {
		for key, hits := range m.windows {
			live := hits[:0]
			for _, hit := range hits {
				if hit.After(cutoff) {
					live = append(live, hit)
				}
			}
			if len(live) == 0 {
				delete(m.windows, key)
				continue
			}
			m.windows[key] = live
		}
		m.lastSweep = now
	}

	hits := m.windows[identity]
	pruned := hits[:0]
	for _, hit := range hits {
		if hit.After(cutoff) {
			pruned = append(pruned, hit)
		}
	}

	if len(pruned) >= cfg.Budget {
		m.windows[identity] = pruned
		retryAfter := pruned[0].Add(cfg.Window).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return &Result{Allowed: false, Limit: cfg.Budget, Remaining: 0, RetryAfter: retryAfter}, nil
	}

	pruned = append(pruned, now)
	m.windows[identity] = pruned
	return &Result{
		Allowed:   true,
		Limit:     cfg.Budget,
		Remaining: cfg.Budget - len(pruned),
	}, nil
}

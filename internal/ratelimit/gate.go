// Package ratelimit throttles comment creation per user.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
	"v4corner/internal/apperr"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var gateRejections = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "engagement",
	Name:      "rate_gate_rejections_total",
	Help:      "Comment attempts rejected by the rate gate",
})

// Gate decides whether a user may attempt another comment right now.
// A shared implementation (e.g. Redis INCR) can replace MemoryGate
// without touching callers.
type Gate interface {
	Allow(userID uint) error
}

// MemoryGate keeps each user's last attempt in process memory.
// Every attempt, rejected or not, moves the user's clock to now, so a
// burst keeps pushing itself out instead of eventually getting through.
//
// State is lost on restart and is not shared between instances.
type MemoryGate struct {
	mu       sync.Mutex
	last     *lru.Cache[uint, time.Time]
	interval time.Duration
	now      func() time.Time
}

// NewMemoryGate tracks up to capacity users; the least recently active
// user is forgotten first.
func NewMemoryGate(interval time.Duration, capacity int) (*MemoryGate, error) {
	cache, err := lru.New[uint, time.Time](capacity)
	if err != nil {
		return nil, fmt.Errorf("rate gate: %w", err)
	}
	return &MemoryGate{
		last:     cache,
		interval: interval,
		now:      time.Now,
	}, nil
}

// WithClock replaces the time source. Tests only.
func (g *MemoryGate) WithClock(now func() time.Time) *MemoryGate {
	g.now = now
	return g
}

func (g *MemoryGate) Allow(userID uint) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	prev, seen := g.last.Get(userID)
	g.last.Add(userID, now)

	if seen && now.Sub(prev) < g.interval {
		gateRejections.Inc()
		return apperr.RateLimited("评论太频繁，请稍后再试")
	}
	return nil
}

// Len reports how many users are currently tracked.
func (g *MemoryGate) Len() int {
	return g.last.Len()
}

package ledger

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Ledger suitable for single-instance deployments.
// Expired entries are removed lazily on access and periodically by the
// janitor goroutine started via StartJanitor.
type Memory struct {
	mu      sync.Mutex
	seen    map[string]time.Time // key -> expiry
	windows map[string]*window
	now     func() time.Time
}

// window tracks request counts across two adjacent buckets for the sliding
// window rate-limit algorithm.
type window struct {
	prevCount float64
	currCount float64
	currStart time.Time
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{
		seen:    make(map[string]time.Time),
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Seen reports whether key was recorded and has not expired.
func (m *Memory) Seen(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	expiry, ok := m.seen[key]
	if !ok {
		return false, nil
	}
	if m.now().After(expiry) {
		delete(m.seen, key)
		return false, nil
	}
	return true, nil
}

// Record marks key as seen until ttl elapses.
func (m *Memory) Record(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seen[key] = m.now().Add(ttl)
	return nil
}

// Allow applies a sliding-window count: the previous bucket contributes
// proportionally to how much of it still overlaps the window ending now.
func (m *Memory) Allow(_ context.Context, key string, limit int, windowDur time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	w, ok := m.windows[key]
	if !ok {
		w = &window{currStart: now}
		m.windows[key] = w
	}

	// Rotate buckets once the current one has elapsed.
	if elapsed := now.Sub(w.currStart); elapsed >= windowDur {
		if elapsed >= 2*windowDur {
			w.prevCount = 0
		} else {
			w.prevCount = w.currCount
		}
		w.currCount = 0
		w.currStart = now.Truncate(windowDur)
	}

	overlap := 1.0 - now.Sub(w.currStart).Seconds()/windowDur.Seconds()
	if overlap < 0 {
		overlap = 0
	}

	effective := w.prevCount*overlap + w.currCount
	if effective >= float64(limit) {
		return false, nil
	}

	w.currCount++
	return true, nil
}

// StartJanitor launches a goroutine that evicts expired entries every
// interval. It stops when ctx is cancelled.
func (m *Memory) StartJanitor(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				m.sweep(now, interval)
			}
		}
	}()
}

func (m *Memory) sweep(now time.Time, staleWindow time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, expiry := range m.seen {
		if now.After(expiry) {
			delete(m.seen, key)
		}
	}
	for key, w := range m.windows {
		if now.Sub(w.currStart) >= 2*staleWindow {
			delete(m.windows, key)
		}
	}
}

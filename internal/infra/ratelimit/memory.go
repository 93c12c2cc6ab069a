package ratelimit

import (
	"context"
	"sync"
	"time"

	"guest-messaging/internal/domain"
)

// bucket — отметки времени одного ключа. mu сериализует чтение-изменение-запись.
// evicted выставляется Evict: такой бакет уже не в карте, и писать в него нельзя.
type bucket struct {
	mu      sync.Mutex
	stamps  []time.Time
	last    time.Time
	evicted bool
}

// Memory — скользящее окно в памяти процесса.
type Memory struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	keys map[string]*bucket
}

var _ domain.RateLimiter = (*Memory)(nil)

// MemoryOption настраивает Memory.
type MemoryOption func(*Memory)

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemory создаёт лимитер: не более limit событий на ключ за window.
func NewMemory(limit int, window time.Duration, opts ...MemoryOption) *Memory {
	m := &Memory{
		limit:  limit,
		window: window,
		now:    time.Now,
		keys:   make(map[string]*bucket),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Allow регистрирует событие, если окно ключа ещё не заполнено.
func (m *Memory) Allow(_ context.Context, key string) (bool, error) {
	for {
		if allowed, live := m.tryAllow(m.entry(key)); live {
			return allowed, nil
		}
	}
}

// tryAllow возвращает live=false, если бакет успели удалить после выдачи из entry.
func (m *Memory) tryAllow(w *bucket) (allowed, live bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.evicted {
		return false, false
	}

	now := m.now()
	cutoff := now.Add(-m.window)
	kept := w.stamps[:0]
	for _, ts := range w.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	w.stamps = kept
	w.last = now

	if len(w.stamps) >= m.limit {
		return false, true
	}
	w.stamps = append(w.stamps, now)
	return true, true
}

func (m *Memory) entry(key string) *bucket {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.keys[key]
	if !ok {
		w = &bucket{}
		m.keys[key] = w
	}
	return w
}

// Evict удаляет ключи без событий дольше окна. Возвращает число удалённых ключей.
func (m *Memory) Evict() int {
	cutoff := m.now().Add(-m.window)

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for key, w := range m.keys {
		w.mu.Lock()
		idle := !w.last.After(cutoff)
		if idle {
			w.evicted = true
		}
		w.mu.Unlock()
		if idle {
			delete(m.keys, key)
			removed++
		}
	}
	return removed
}

// Len возвращает число отслеживаемых ключей.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.keys)
}

// RunJanitor периодически вызывает Evict до отмены контекста.
func (m *Memory) RunJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = m.window
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Evict()
		}
	}
}

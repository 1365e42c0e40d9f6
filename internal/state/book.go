package state

import (
	"sync"
	"time"

	"quantbrains/internal/schema"
)

// Book holds the latest strategy list and account status reported by the
// terminal. A refresh swaps the whole list; records are never merged.
type Book struct {
	mu         sync.RWMutex
	strategies []schema.Strategy
	index      map[int]int
	status     *schema.StatusData
	version    uint64
	updatedAt  time.Time
}

// NewBook creates an empty book.
func NewBook() *Book {
	return &Book{index: make(map[int]int)}
}

// Replace swaps in a new strategy list and returns the new version.
func (b *Book) Replace(strategies []schema.Strategy) uint64 {
	next := append([]schema.Strategy(nil), strategies...)
	index := make(map[int]int, len(next))
	for i, s := range next {
		if _, ok := index[s.ID]; !ok {
			index[s.ID] = i
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.strategies = next
	b.index = index
	b.version++
	b.updatedAt = time.Now()
	return b.version
}

// SetStatus stores the latest status payload.
func (b *Book) SetStatus(status schema.StatusData) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = &status
}

// Strategies returns a copy of the current list.
func (b *Book) Strategies() []schema.Strategy {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]schema.Strategy(nil), b.strategies...)
}

// Get returns the strategy with id.
func (b *Book) Get(id int) (schema.Strategy, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	i, ok := b.index[id]
	if !ok {
		return schema.Strategy{}, false
	}
	return b.strategies[i], true
}

// Count returns the number of strategies.
func (b *Book) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.strategies)
}

// CountByStatus tallies strategies per lifecycle state.
func (b *Book) CountByStatus() map[schema.Status]int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	counts := make(map[schema.Status]int, 4)
	for _, s := range b.strategies {
		counts[s.Status]++
	}
	return counts
}

// Status returns the latest status payload.
func (b *Book) Status() (schema.StatusData, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.status == nil {
		return schema.StatusData{}, false
	}
	return *b.status, true
}

// Account returns the account from the latest status payload.
func (b *Book) Account() (schema.Account, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.status == nil || b.status.Account == nil {
		return schema.Account{}, false
	}
	return *b.status.Account, true
}

// Version increments on every Replace.
func (b *Book) Version() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.version
}

// UpdatedAt is the time of the last Replace.
func (b *Book) UpdatedAt() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.updatedAt
}

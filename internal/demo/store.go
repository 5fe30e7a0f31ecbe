package demo

import (
	"fmt"
	"sync"
	"time"
)

// Tag labels an item.
type Tag string

const (
	TagWork     Tag = "work"
	TagPersonal Tag = "personal"
	TagUrgent   Tag = "urgent"
)

var seedTags = []Tag{TagWork, TagPersonal, TagUrgent}

// Item is one row of the paginated list.
type Item struct {
	ID        string
	Title     string
	Tag       Tag
	CreatedAt time.Time
}

// Stats counts items per tag.
type Stats struct {
	Total int         `json:"total"`
	ByTag map[Tag]int `json:"by_tag"`
}

// Store is an in-memory item store, oldest first.
type Store struct {
	mu     sync.RWMutex
	items  []*Item
	nextID int
}

// NewStore creates a store with n sample items.
func NewStore(n int) *Store {
	s := &Store{nextID: 1}
	for i := range n {
		s.Add(fmt.Sprintf("Item %d", i+1), seedTags[i%len(seedTags)])
	}
	return s
}

// Add appends an item and returns it.
func (s *Store) Add(title string, tag Tag) *Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	it := &Item{
		ID:        fmt.Sprintf("item-%d", s.nextID),
		Title:     title,
		Tag:       tag,
		CreatedAt: time.Now(),
	}
	s.nextID++
	s.items = append(s.items, it)
	return it
}

// Page returns the items of page n (1-based) and whether a later page
// exists.
func (s *Store) Page(n, size int) ([]*Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n < 1 || size < 1 {
		return nil, false
	}
	start := (n - 1) * size
	if start >= len(s.items) {
		return nil, false
	}
	end := min(start+size, len(s.items))
	return append([]*Item(nil), s.items[start:end]...), end < len(s.items)
}

// Len returns the number of items.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Stats returns statistics about the items.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{ByTag: make(map[Tag]int)}
	for _, it := range s.items {
		stats.Total++
		stats.ByTag[it.Tag]++
	}
	return stats
}

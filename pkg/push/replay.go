package push

import (
	"container/list"
	"sync"
	"time"
)

// DefaultReplayWindow is how long a seen message id is remembered.
const DefaultReplayWindow = 10 * time.Minute

// DefaultReplaySize bounds the number of remembered message ids.
const DefaultReplaySize = 1000

// replayEntry is one remembered message id.
type replayEntry struct {
	key       string
	expiresAt time.Time
}

// ReplayGuard remembers recently delivered message ids so a notification
// delivered twice by the platform is only handled once. Entries expire after
// the window and the least recently seen id is evicted when full.
// It is safe for concurrent use.
type ReplayGuard struct {
	mu      sync.Mutex
	window  time.Duration
	maxSize int
	now     func() time.Time
	items   map[string]*list.Element
	lruList *list.List
}

// NewReplayGuard creates a guard. Non-positive arguments select the defaults.
func NewReplayGuard(window time.Duration, maxSize int) *ReplayGuard {
	if window <= 0 {
		window = DefaultReplayWindow
	}
	if maxSize <= 0 {
		maxSize = DefaultReplaySize
	}

	return &ReplayGuard{
		window:  window,
		maxSize: maxSize,
		now:     time.Now,
		items:   make(map[string]*list.Element),
		lruList: list.New(),
	}
}

// Seen records messageID and reports whether it was already recorded within the window.
func (g *ReplayGuard) Seen(messageID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()

	if elem, ok := g.items[messageID]; ok {
		entry := elem.Value.(*replayEntry)
		if now.Before(entry.expiresAt) {
			g.lruList.MoveToFront(elem)
			return true
		}
		entry.expiresAt = now.Add(g.window)
		g.lruList.MoveToFront(elem)
		return false
	}

	elem := g.lruList.PushFront(&replayEntry{key: messageID, expiresAt: now.Add(g.window)})
	g.items[messageID] = elem

	if g.lruList.Len() > g.maxSize {
		if oldest := g.lruList.Back(); oldest != nil {
			g.removeElement(oldest)
		}
	}
	return false
}

// Forget drops messageID so a later delivery is handled again.
func (g *ReplayGuard) Forget(messageID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if elem, ok := g.items[messageID]; ok {
		g.removeElement(elem)
	}
}

// Len returns the number of remembered ids, including expired ones not yet pruned.
func (g *ReplayGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lruList.Len()
}

// Prune removes expired entries.
func (g *ReplayGuard) Prune() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	var toRemove []*list.Element
	for elem := g.lruList.Front(); elem != nil; elem = elem.Next() {
		if !now.Before(elem.Value.(*replayEntry).expiresAt) {
			toRemove = append(toRemove, elem)
		}
	}
	for _, elem := range toRemove {
		g.removeElement(elem)
	}
}

// removeElement must be called with the lock held.
func (g *ReplayGuard) removeElement(elem *list.Element) {
	entry := elem.Value.(*replayEntry)
	delete(g.items, entry.key)
	g.lruList.Remove(elem)
}

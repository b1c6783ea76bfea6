// Package clockhand implements CLOCK (second-chance) replacement for a
// fixed number of slots.
package clockhand

import "sync"

// Per-slot tracking state. A slot moves unavailable -> fresh when its
// user lets go of it, is demoted fresh -> stale by a sweep, and leaves
// as a victim only from stale.
type state uint8

const (
	unavailable state = iota
	fresh
	stale
)

// Clock tracks eviction candidacy for slot IDs [0..capacity).
// All methods are safe for concurrent use.
type Clock struct {
	mu    sync.Mutex
	slots []state
	hand  int
	size  int // number of evictable slots
}

func New(capacity int) *Clock {
	if capacity <= 0 {
		capacity = 1
	}
	return &Clock{slots: make([]state, capacity)}
}

func (c *Clock) Capacity() int { return len(c.slots) }

// Unpin marks slot id evictable with a second chance. Unpinning an
// already-evictable slot refreshes it.
func (c *Clock) Unpin(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id < 0 || id >= len(c.slots) {
		return
	}
	if c.slots[id] == unavailable {
		c.size++
	}
	c.slots[id] = fresh
}

// Pin takes slot id out of eviction candidacy.
func (c *Clock) Pin(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id < 0 || id >= len(c.slots) {
		return
	}
	if c.slots[id] != unavailable {
		c.size--
	}
	c.slots[id] = unavailable
}

// Victim selects a slot for eviction and removes it from candidacy.
// The hand keeps its position between calls.
func (c *Clock) Victim() (id int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.slots)
	if c.size == 0 {
		return -1, false
	}

	// The first sweep can at worst demote every slot, the second must
	// then land on a stale one, so 2n steps always suffice.
	for i := 0; i < 2*n; i++ {
		idx := c.hand
		c.hand = (c.hand + 1) % n

		switch c.slots[idx] {
		case fresh:
			c.slots[idx] = stale
		case stale:
			c.slots[idx] = unavailable
			c.size--
			return idx, true
		}
	}

	return -1, false
}

// Size returns the number of evictable slots.
func (c *Clock) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Package structidx implements open addressing hash indices over integer
// handles into externally owned flat record buffers. Entries are stored in
// parallel slot arrays so inserting does not allocate per entry.
//
// Indices are not safe for concurrent use.
package structidx

import "math/bits"

const (
	defaultSetCapacity = 32
	defaultMapCapacity = 16
	// Resize when count exceeds loadNum/loadDen of capacity.
	loadNum = 3
	loadDen = 4
)

// HashFunc returns the hash of the record referenced by handle.
type HashFunc func(handle int) uint64

// EqualFunc reports whether the records referenced by a and b are the same logical record.
type EqualFunc func(a, b int) bool

// table is the slot storage shared by Set and Map.
type table struct {
	handles  []int32
	hashes   []uint64
	occupied []bool
	count    int
}

func newTable(capacity int) table {
	capacity = nextPow2(max(capacity, 2))
	return table{
		handles:  make([]int32, capacity),
		hashes:   make([]uint64, capacity),
		occupied: make([]bool, capacity),
	}
}

func nextPow2(n int) int {
	if n&(n-1) == 0 {
		return n
	}
	return 1 << bits.Len(uint(n))
}

// lookup returns the slot holding a handle with hash h accepted by match, or
// the free slot where such a handle would be inserted.
func (t *table) lookup(h uint64, match func(handle int) bool) (slot int, found bool) {
	mask := uint64(len(t.handles) - 1)
	for i := h & mask; ; i = (i + 1) & mask {
		if !t.occupied[i] {
			return int(i), false
		}
		if t.hashes[i] == h && match(int(t.handles[i])) {
			return int(i), true
		}
	}
}

func (t *table) needsGrow() bool {
	return (t.count+1)*loadDen > len(t.handles)*loadNum
}

// grow doubles capacity reinserting live entries. onMove is called with the
// old and new slot of every entry so parallel payload arrays can follow.
func (t *table) grow(onMove func(oldSlot, newSlot int)) {
	old := *t
	*t = newTable(2 * len(old.handles))
	t.count = old.count
	mask := uint64(len(t.handles) - 1)
	for s, occ := range old.occupied {
		if !occ {
			continue
		}
		i := old.hashes[s] & mask
		for t.occupied[i] {
			i = (i + 1) & mask
		}
		t.occupied[i] = true
		t.handles[i] = old.handles[s]
		t.hashes[i] = old.hashes[s]
		if onMove != nil {
			onMove(s, int(i))
		}
	}
}

func (t *table) set(slot, handle int, h uint64) {
	t.occupied[slot] = true
	t.handles[slot] = int32(handle)
	t.hashes[slot] = h
	t.count++
}

func (t *table) clear() {
	clear(t.occupied)
	t.count = 0
}

func (t *table) keys(dst []int) []int {
	for s, occ := range t.occupied {
		if occ {
			dst = append(dst, int(t.handles[s]))
		}
	}
	return dst
}

// Set is a set of record handles deduplicated by hash and equality of the records they reference.
type Set struct {
	hash  HashFunc
	equal EqualFunc
	t     table
}

// NewSet returns an empty set with the default initial capacity.
func NewSet(hash HashFunc, equal EqualFunc) *Set {
	return NewSetCapacity(hash, equal, defaultSetCapacity)
}

// NewSetCapacity returns an empty set with room for at least capacity slots.
func NewSetCapacity(hash HashFunc, equal EqualFunc, capacity int) *Set {
	if hash == nil || equal == nil {
		panic("structidx: nil hash or equal function")
	}
	return &Set{hash: hash, equal: equal, t: newTable(capacity)}
}

// Add inserts handle h. If a record equal to h's is already present its handle
// is returned with isNew false and h is not stored.
func (s *Set) Add(h int) (existing int, isNew bool) {
	hh := s.hash(h)
	match := func(other int) bool { return s.equal(h, other) }
	slot, found := s.t.lookup(hh, match)
	if found {
		return int(s.t.handles[slot]), false
	}
	if s.t.needsGrow() {
		s.t.grow(nil)
		slot, _ = s.t.lookup(hh, match)
	}
	s.t.set(slot, h, hh)
	return h, true
}

// addHashed inserts h under hash hh without an equality check.
func (s *Set) addHashed(h int, hh uint64) {
	never := func(int) bool { return false }
	if s.t.needsGrow() {
		s.t.grow(nil)
	}
	slot, _ := s.t.lookup(hh, never)
	s.t.set(slot, h, hh)
}

// lookup finds a stored handle under hash hh accepted by match.
func (s *Set) lookup(hh uint64, match func(handle int) bool) (int, bool) {
	slot, found := s.t.lookup(hh, match)
	if !found {
		return -1, false
	}
	return int(s.t.handles[slot]), true
}

// Find returns the stored handle whose record equals h's.
func (s *Set) Find(h int) (int, bool) {
	return s.lookup(s.hash(h), func(other int) bool { return s.equal(h, other) })
}

// Contains reports whether a record equal to h's is in the set.
func (s *Set) Contains(h int) bool {
	_, ok := s.Find(h)
	return ok
}

// Keys appends all stored handles to dst in unspecified order.
func (s *Set) Keys(dst []int) []int { return s.t.keys(dst) }

// Len returns the number of stored handles.
func (s *Set) Len() int { return s.t.count }

// Cap returns the number of slots.
func (s *Set) Cap() int { return len(s.t.handles) }

// Clear removes all entries keeping capacity.
func (s *Set) Clear() { s.t.clear() }

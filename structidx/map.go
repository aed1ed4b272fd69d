package structidx

// Map associates record handles with integer values. Keys are deduplicated
// by hash and equality of the records they reference.
type Map struct {
	hash   HashFunc
	equal  EqualFunc
	t      table
	values []int32
}

// NewMap returns an empty map with the default initial capacity.
func NewMap(hash HashFunc, equal EqualFunc) *Map {
	return NewMapCapacity(hash, equal, defaultMapCapacity)
}

// NewMapCapacity returns an empty map with room for at least capacity slots.
func NewMapCapacity(hash HashFunc, equal EqualFunc, capacity int) *Map {
	if hash == nil || equal == nil {
		panic("structidx: nil hash or equal function")
	}
	t := newTable(capacity)
	return &Map{hash: hash, equal: equal, t: t, values: make([]int32, len(t.handles))}
}

// Put associates key with value if no equal key is present and returns
// (key, true). Otherwise the map is unchanged and the existing key handle is
// returned with isNew false. Use [Map.Update] to overwrite values.
func (m *Map) Put(key, value int) (existing int, isNew bool) {
	h := m.hash(key)
	match := func(other int) bool { return m.equal(key, other) }
	slot, found := m.t.lookup(h, match)
	if found {
		return int(m.t.handles[slot]), false
	}
	if m.t.needsGrow() {
		m.grow()
		slot, _ = m.t.lookup(h, match)
	}
	m.t.set(slot, key, h)
	m.values[slot] = int32(value)
	return key, true
}

// Update sets the value of an existing key. It reports whether the key was present.
func (m *Map) Update(key, value int) bool {
	slot, found := m.find(key)
	if found {
		m.values[slot] = int32(value)
	}
	return found
}

func (m *Map) grow() {
	oldValues := m.values
	newValues := make([]int32, 2*len(m.t.handles))
	m.t.grow(func(oldSlot, newSlot int) {
		newValues[newSlot] = oldValues[oldSlot]
	})
	m.values = newValues
}

func (m *Map) find(key int) (int, bool) {
	return m.t.lookup(m.hash(key), func(other int) bool { return m.equal(key, other) })
}

// Get returns the value associated with a key equal to key.
func (m *Map) Get(key int) (value int, ok bool) {
	slot, found := m.find(key)
	if !found {
		return -1, false
	}
	return int(m.values[slot]), true
}

// Keys appends all stored key handles to dst in unspecified order.
func (m *Map) Keys(dst []int) []int { return m.t.keys(dst) }

// Values appends all stored values to dst in the same order as [Map.Keys].
func (m *Map) Values(dst []int) []int {
	for s, occ := range m.t.occupied {
		if occ {
			dst = append(dst, int(m.values[s]))
		}
	}
	return dst
}

// EntrySet appends interleaved key, value pairs to dst.
func (m *Map) EntrySet(dst []int) []int {
	for s, occ := range m.t.occupied {
		if occ {
			dst = append(dst, int(m.t.handles[s]), int(m.values[s]))
		}
	}
	return dst
}

func (m *Map) Len() int { return m.t.count }
func (m *Map) Cap() int { return len(m.t.handles) }
func (m *Map) Clear()   { m.t.clear() }

package sermux

import "sync"

// Record is a fixed-capacity buffer drawn from an Arena. The backing
// storage is carved from the arena slab at startup and reused for the
// lifetime of the process; no allocation happens on the data path.
type Record struct {
	data []byte
	n    int
	slot int
}

// Bytes returns the filled portion of the record. The slice aliases the
// arena slab and is only valid until the record is released.
func (r *Record) Bytes() []byte { return r.data[:r.n] }

// Len returns the number of bytes written so far.
func (r *Record) Len() int { return r.n }

// Cap returns the fixed record capacity.
func (r *Record) Cap() int { return len(r.data) }

// Tail returns the unfilled remainder. Receive paths read directly into it
// and then call Advance.
func (r *Record) Tail() []byte { return r.data[r.n:] }

// Advance marks n more tail bytes as filled.
func (r *Record) Advance(n int) {
	if n < 0 || r.n+n > len(r.data) {
		panic("sermux: record advance out of range")
	}
	r.n += n
}

// Append copies p into the tail and returns how many bytes fit.
func (r *Record) Append(p []byte) int {
	n := copy(r.data[r.n:], p)
	r.n += n
	return n
}

// AppendByte appends a single byte, reporting whether there was room.
func (r *Record) AppendByte(b byte) bool {
	if r.n == len(r.data) {
		return false
	}
	r.data[r.n] = b
	r.n++
	return true
}

// Arena is a fixed pool of equally sized Records backed by a single slab.
// Acquire and Release are safe for concurrent use. Exhaustion is an
// expected condition reported as ErrNoBuffers, and callers are built to
// retry or shed load rather than treat it as fatal.
type Arena struct {
	mu      sync.Mutex
	records []Record
	free    []int
	inUse   []bool
}

// NewArena preallocates a pool of slots records of the given capacity.
func NewArena(slots, capacity int) *Arena {
	a := &Arena{
		records: make([]Record, slots),
		free:    make([]int, 0, slots),
		inUse:   make([]bool, slots),
	}
	slab := make([]byte, slots*capacity)
	for i := range a.records {
		a.records[i] = Record{
			data: slab[i*capacity : (i+1)*capacity : (i+1)*capacity],
			slot: i,
		}
		a.free = append(a.free, i)
	}
	return a
}

// Acquire returns an empty record, or ErrNoBuffers when the pool is dry.
func (a *Arena) Acquire() (*Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.free) == 0 {
		return nil, ErrNoBuffers
	}
	i := a.free[len(a.free)-1]
	a.free = a.free[:len(a.free)-1]
	a.inUse[i] = true
	r := &a.records[i]
	r.n = 0
	return r, nil
}

// Release returns a record to the pool. Releasing nil, a foreign record or
// an already free record is a no-op.
func (a *Arena) Release(r *Record) {
	if r == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if r.slot < 0 || r.slot >= len(a.records) || &a.records[r.slot] != r {
		return
	}
	if !a.inUse[r.slot] {
		return
	}
	a.inUse[r.slot] = false
	a.free = append(a.free, r.slot)
}

// Free reports how many records are currently available.
func (a *Arena) Free() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.free)
}

// Slots returns the pool size.
func (a *Arena) Slots() int { return len(a.records) }

package sermux

import (
	"sync"
	"sync/atomic"
	"time"
)

// Session is one attached peer occupying a registry slot. The slot index
// doubles as the session's routing address and stays fixed until the
// session is freed.
type Session struct {
	index int
	peer  Peer
	since time.Time

	txRecords atomic.Uint64
	txBytes   atomic.Uint64
	rxRecords atomic.Uint64
	rxBytes   atomic.Uint64
}

// Index returns the slot index, which is also the routing address.
func (s *Session) Index() int { return s.index }

// Peer returns the underlying link peer.
func (s *Session) Peer() Peer { return s.peer }

// Addr returns the peer's stable handle.
func (s *Session) Addr() string { return s.peer.Addr() }

func (s *Session) noteTx(n int) {
	s.txRecords.Add(1)
	s.txBytes.Add(uint64(n))
}

func (s *Session) noteRx(n int) {
	s.rxRecords.Add(1)
	s.rxBytes.Add(uint64(n))
}

// SessionInfo is a point-in-time snapshot of a session for display.
type SessionInfo struct {
	Index     int
	Addr      string
	Name      string
	Since     time.Time
	TxRecords uint64
	TxBytes   uint64
	RxRecords uint64
	RxBytes   uint64
}

// SessionRef is a borrowed reference to a live session. The slot cannot be
// freed while the reference is held; Release must always be called.
type SessionRef struct {
	s    *Session
	sl   *regSlot
	once sync.Once
}

// Session returns the borrowed session.
func (ref *SessionRef) Session() *Session { return ref.s }

// Release returns the borrow. Safe to call more than once.
func (ref *SessionRef) Release() {
	ref.once.Do(func() { ref.sl.mu.Unlock() })
}

type regSlot struct {
	mu   sync.Mutex // borrow lock, held for the lifetime of a SessionRef
	sess *Session   // assignment guarded by Registry.mu
}

// Registry is the bounded session slot table. Slots are handed out lowest
// index first and reused after free, so routing addresses stay small and
// stable. All methods are safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	slots    []regSlot
	byHandle map[string]int
	occupied int
}

// NewRegistry creates a registry with the given number of slots.
func NewRegistry(maxSessions int) *Registry {
	return &Registry{
		slots:    make([]regSlot, maxSessions),
		byHandle: make(map[string]int, maxSessions),
	}
}

// Allocate binds a peer to the lowest free slot and returns the session.
// The peer's Addr is the handle used for later Free and GetByHandle calls.
func (r *Registry) Allocate(peer Peer) (*Session, error) {
	handle := peer.Addr()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byHandle[handle]; dup {
		return nil, ErrSessionExists
	}
	for i := range r.slots {
		if r.slots[i].sess == nil {
			s := &Session{index: i, peer: peer, since: time.Now()}
			r.slots[i].sess = s
			r.byHandle[handle] = i
			r.occupied++
			return s, nil
		}
	}
	return nil, ErrRegistryFull
}

// Free releases the slot bound to handle. It blocks until any outstanding
// borrow of that slot is released, so a lookup never observes a session
// mid-teardown. Freeing an unknown handle returns ErrSessionNotFound.
func (r *Registry) Free(handle string) error {
	r.mu.Lock()
	i, ok := r.byHandle[handle]
	if !ok {
		r.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(r.byHandle, handle)
	r.slots[i].sess = nil
	r.occupied--
	r.mu.Unlock()

	// Drain the borrow before reporting the slot free.
	r.slots[i].mu.Lock()
	r.slots[i].mu.Unlock() //nolint:staticcheck // empty critical section is the drain
	return nil
}

// Count returns the number of occupied slots. The routing engine uses it
// as the exclusive upper bound for unicast addresses, so after a free the
// highest occupied slot can temporarily sit outside the unicast range.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.occupied
}

// Capacity returns the total slot count.
func (r *Registry) Capacity() int { return len(r.slots) }

// GetByIndex borrows the session in slot i. The second return is false for
// out-of-range indices and unoccupied slots.
func (r *Registry) GetByIndex(i int) (*SessionRef, bool) {
	if i < 0 || i >= len(r.slots) {
		return nil, false
	}
	sl := &r.slots[i]
	sl.mu.Lock()
	r.mu.Lock()
	s := sl.sess
	r.mu.Unlock()
	if s == nil {
		sl.mu.Unlock()
		return nil, false
	}
	return &SessionRef{s: s, sl: sl}, true
}

// GetByHandle borrows the session registered under handle. A slot can be
// freed and reallocated between resolving the handle and taking the
// borrow, so the result is validated and the lookup retried if it moved.
func (r *Registry) GetByHandle(handle string) (*SessionRef, bool) {
	for {
		r.mu.Lock()
		i, ok := r.byHandle[handle]
		r.mu.Unlock()
		if !ok {
			return nil, false
		}
		ref, ok := r.GetByIndex(i)
		if !ok {
			continue
		}
		if ref.Session().Addr() == handle {
			return ref, true
		}
		ref.Release()
	}
}

// Sessions returns a snapshot of every occupied slot, ascending by index.
func (r *Registry) Sessions() []SessionInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	infos := make([]SessionInfo, 0, r.occupied)
	for i := range r.slots {
		s := r.slots[i].sess
		if s == nil {
			continue
		}
		infos = append(infos, SessionInfo{
			Index:     s.index,
			Addr:      s.peer.Addr(),
			Name:      s.peer.Name(),
			Since:     s.since,
			TxRecords: s.txRecords.Load(),
			TxBytes:   s.txBytes.Load(),
			RxRecords: s.rxRecords.Load(),
			RxBytes:   s.rxBytes.Load(),
		})
	}
	return infos
}

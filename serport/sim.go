package serport

import (
	"sync"

	"github.com/sermux/sermux"
)

// Sim is an in-memory stand-in for a serial device. Inject plays the role
// of the wire's receive side and Transmitted records everything the bridge
// wrote out. The console command runs on it, and it doubles as a scripted
// driver for tests.
type Sim struct {
	mu          sync.Mutex
	handler     func(sermux.Event)
	armed       []*sermux.Record
	stopReq     bool
	needStandby bool
	txBusy      bool
	closed      bool
	txLog       [][]byte
	dropped     int

	txCh chan *sermux.Record
	wg   sync.WaitGroup
}

var _ sermux.Driver = (*Sim)(nil)

// NewSim returns a simulated serial driver ready for a pipeline.
func NewSim() *Sim {
	s := &Sim{txCh: make(chan *sermux.Record, 1)}
	s.wg.Add(1)
	go s.txWorker()
	return s
}

// SetHandler binds the event callback.
func (s *Sim) SetHandler(fn func(sermux.Event)) {
	s.mu.Lock()
	s.handler = fn
	s.mu.Unlock()
}

// EnableRx arms reception with a fresh record.
func (s *Sim) EnableRx(rec *sermux.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrPortClosed
	}
	s.armed = append(s.armed, rec)
	s.stopReq = false
	s.needStandby = true
	return nil
}

// DisableRx requests reception stop; the teardown events are delivered by
// the Inject call in progress, or by the next one.
func (s *Sim) DisableRx() {
	s.mu.Lock()
	s.stopReq = true
	s.mu.Unlock()
}

// SupplyRxBuffer hands over a standby record for rollover.
func (s *Sim) SupplyRxBuffer(rec *sermux.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.armed = append(s.armed, rec)
}

// Transmit accepts one record at a time and completes it asynchronously.
// The payload lands in the transmit log before Transmit returns.
func (s *Sim) Transmit(rec *sermux.Record, off int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrPortClosed
	}
	if s.txBusy {
		return sermux.ErrTxBusy
	}
	s.txBusy = true
	s.txLog = append(s.txLog, append([]byte(nil), rec.Bytes()[off:]...))
	s.txCh <- rec
	return nil
}

// Close shuts the simulator down and returns any held receive buffers.
func (s *Sim) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	held := s.armed
	s.armed = nil
	close(s.txCh)
	s.mu.Unlock()

	s.wg.Wait()
	for _, rec := range held {
		s.emit(sermux.Event{Type: sermux.EventRxBufReleased, Rec: rec})
	}
	return nil
}

// Inject feeds bytes to the receive side the way a wire would deliver
// them, driving rollover and teardown exactly as a device does. It returns
// the number of bytes that found an armed buffer; the rest are dropped and
// counted.
func (s *Sim) Inject(data []byte) int {
	consumed := 0
	for len(data) > 0 {
		s.mu.Lock()
		if s.closed {
			s.dropped += len(data)
			s.mu.Unlock()
			return consumed
		}
		if s.stopReq {
			s.mu.Unlock()
			s.teardown()
			continue
		}
		if len(s.armed) == 0 {
			s.dropped += len(data)
			s.mu.Unlock()
			return consumed
		}
		if s.needStandby {
			s.needStandby = false
			s.mu.Unlock()
			s.emit(sermux.Event{Type: sermux.EventRxBufRequest})
			continue
		}
		cur := s.armed[0]
		s.mu.Unlock()

		n := copy(cur.Tail(), data)
		if n == 0 {
			s.rollOver(cur)
			continue
		}
		data = data[n:]
		consumed += n
		s.emit(sermux.Event{Type: sermux.EventRxReady, Rec: cur, N: n})

		s.mu.Lock()
		stop := s.stopReq
		full := cur.Len() == cur.Cap()
		s.mu.Unlock()

		switch {
		case stop:
			s.teardown()
		case full:
			s.rollOver(cur)
		}
	}
	return consumed
}

// InjectString is Inject for string payloads.
func (s *Sim) InjectString(data string) int { return s.Inject([]byte(data)) }

// Transmitted returns a snapshot of every payload written to the wire so
// far, one entry per transmit.
func (s *Sim) Transmitted() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.txLog))
	for i, b := range s.txLog {
		out[i] = append([]byte(nil), b...)
	}
	return out
}

// Dropped reports how many injected bytes never found a receive buffer.
func (s *Sim) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *Sim) emit(ev sermux.Event) {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

// teardown returns every held buffer and reports reception disabled.
func (s *Sim) teardown() {
	s.mu.Lock()
	held := s.armed
	s.armed = nil
	s.stopReq = false
	s.mu.Unlock()
	for _, rec := range held {
		s.emit(sermux.Event{Type: sermux.EventRxBufReleased, Rec: rec})
	}
	s.emit(sermux.Event{Type: sermux.EventRxDisabled})
}

// rollOver retires the full current buffer and continues on the standby
// one, or reports disabled when none was supplied.
func (s *Sim) rollOver(cur *sermux.Record) {
	s.mu.Lock()
	if len(s.armed) > 0 && s.armed[0] == cur {
		s.armed = s.armed[1:]
	}
	rest := len(s.armed)
	s.mu.Unlock()
	s.emit(sermux.Event{Type: sermux.EventRxBufReleased, Rec: cur})
	if rest == 0 {
		s.emit(sermux.Event{Type: sermux.EventRxDisabled})
		return
	}
	s.emit(sermux.Event{Type: sermux.EventRxBufRequest})
}

func (s *Sim) txWorker() {
	defer s.wg.Done()
	for rec := range s.txCh {
		s.mu.Lock()
		s.txBusy = false
		s.mu.Unlock()
		s.emit(sermux.Event{Type: sermux.EventTxDone, Rec: rec})
	}
}

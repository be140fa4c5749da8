package sermux

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Pipeline owns the serial half of the bridge. It keeps the driver armed
// with receive buffers, reassembles line-terminated records from the event
// stream and serializes outbound records through the single transmitter.
//
// All state machine fields live here explicitly and are guarded by one
// mutex; events arrive from the driver's goroutines one at a time.
type Pipeline struct {
	drv        Driver
	arena      *Arena
	rearmDelay time.Duration
	log        *zap.Logger

	mu             sync.Mutex
	currentRx      *Record // completed on a terminator, owned by the consumer
	releasePending bool    // DisableRx issued, release events are teardown
	abortedOffset  int     // bytes of the active transmit already on the wire
	txQueue        []*Record
	rearmTimer     *time.Timer
	closed         bool

	out chan *Record
}

// NewPipeline wires a pipeline to a driver and an arena. Call Start to arm
// reception.
func NewPipeline(drv Driver, arena *Arena, rearmDelay time.Duration, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		drv:        drv,
		arena:      arena,
		rearmDelay: rearmDelay,
		log:        log,
		out:        make(chan *Record, arena.Slots()),
	}
}

// Records is the stream of completed inbound records. The consumer owns
// each record and must release it to the arena after dispatch.
func (p *Pipeline) Records() <-chan *Record { return p.out }

// Start binds the event handler and arms the first receive buffer. A
// failure here is the one startup error the bridge treats as fatal.
func (p *Pipeline) Start() error {
	p.drv.SetHandler(p.handleEvent)
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, err := p.arena.Acquire()
	if err != nil {
		return fmt.Errorf("arming receive: %w", err)
	}
	if err := p.drv.EnableRx(rec); err != nil {
		p.arena.Release(rec)
		return fmt.Errorf("enabling receive: %w", err)
	}
	return nil
}

// Transmit hands rec to the serial line, queueing it when the transmitter
// is busy. On success the pipeline owns rec until its completion event; on
// error the caller keeps ownership.
func (p *Pipeline) Transmit(rec *Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if len(p.txQueue) == 0 {
		err := p.drv.Transmit(rec, 0)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrTxBusy) {
			return fmt.Errorf("serial transmit: %w", err)
		}
	}
	// The queue is bounded by the arena: at most Slots records exist.
	p.txQueue = append(p.txQueue, rec)
	return nil
}

// Close stops the rearm timer and shuts the driver down. Events already in
// flight are still absorbed so their records return to the arena.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.rearmTimer != nil {
		p.rearmTimer.Stop()
	}
	p.mu.Unlock()
	return p.drv.Close()
}

func (p *Pipeline) handleEvent(ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		// Only buffer returns matter now.
		if ev.Rec != nil && (ev.Type == EventRxBufReleased || ev.Type == EventTxDone) {
			p.arena.Release(ev.Rec)
		}
		return
	}
	switch ev.Type {
	case EventRxReady:
		p.onRxReady(ev.Rec, ev.N)
	case EventRxBufRequest:
		p.onRxBufRequest()
	case EventRxBufReleased:
		p.onRxBufReleased(ev.Rec)
	case EventRxDisabled:
		p.onRxDisabled()
	case EventTxDone:
		p.onTxDone(ev.Rec)
	case EventTxAborted:
		p.onTxAborted(ev.Rec, ev.N)
	}
}

func (p *Pipeline) onRxReady(rec *Record, n int) {
	if rec == nil || n <= 0 {
		return
	}
	rec.Advance(n)
	if p.releasePending {
		return
	}
	b := rec.Bytes()
	last := b[len(b)-1]
	switch {
	case rec.Len() == rec.Cap():
		// Full record completes as-is; the driver rolls over to the
		// standby buffer on its own.
		p.complete(rec)
	case last == '\n' || last == '\r':
		// Outbound line endings are normalized to LF.
		if last == '\r' {
			b[len(b)-1] = '\n'
		}
		p.complete(rec)
		p.currentRx = rec
		p.releasePending = true
		p.drv.DisableRx()
	}
}

func (p *Pipeline) onRxBufRequest() {
	rec, err := p.arena.Acquire()
	if err != nil {
		p.log.Warn("no free record for standby receive buffer")
		return
	}
	p.drv.SupplyRxBuffer(rec)
}

func (p *Pipeline) onRxBufReleased(rec *Record) {
	if rec == nil {
		return
	}
	// Outside teardown a released buffer has already been completed and
	// handed to the consumer. During teardown the completed record is
	// identified by currentRx and everything else goes back to the arena.
	if p.releasePending && rec != p.currentRx {
		p.arena.Release(rec)
	}
}

func (p *Pipeline) onRxDisabled() {
	p.releasePending = false
	p.currentRx = nil
	p.rearm()
}

// rearm acquires a fresh receive record, retrying on a timer while the
// arena is exhausted. Called with p.mu held.
func (p *Pipeline) rearm() {
	if p.closed {
		return
	}
	rec, err := p.arena.Acquire()
	if err != nil {
		p.log.Warn("receive stalled, waiting for a free record",
			zap.Duration("retry_in", p.rearmDelay))
		p.rearmTimer = time.AfterFunc(p.rearmDelay, func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			p.rearm()
		})
		return
	}
	if err := p.drv.EnableRx(rec); err != nil {
		p.arena.Release(rec)
		p.log.Error("re-enabling receive failed", zap.Error(err))
	}
}

func (p *Pipeline) onTxDone(rec *Record) {
	p.abortedOffset = 0
	p.arena.Release(rec)
	p.startNext()
}

func (p *Pipeline) onTxAborted(rec *Record, n int) {
	if rec == nil {
		return
	}
	p.abortedOffset += n
	if err := p.drv.Transmit(rec, p.abortedOffset); err != nil {
		p.log.Error("resuming aborted transmit failed",
			zap.Int("offset", p.abortedOffset), zap.Error(err))
		p.abortedOffset = 0
		p.arena.Release(rec)
		p.startNext()
	}
}

// startNext pops the pending queue into the idle transmitter. Called with
// p.mu held.
func (p *Pipeline) startNext() {
	for len(p.txQueue) > 0 {
		next := p.txQueue[0]
		err := p.drv.Transmit(next, 0)
		if err == nil {
			p.txQueue = p.txQueue[1:]
			return
		}
		if errors.Is(err, ErrTxBusy) {
			return
		}
		p.log.Error("queued transmit failed", zap.Error(err))
		p.txQueue = p.txQueue[1:]
		p.arena.Release(next)
	}
}

// complete hands a finished record to the consumer. The channel capacity
// equals the arena size, so the send cannot block. Called with p.mu held.
func (p *Pipeline) complete(rec *Record) {
	p.out <- rec
	p.log.Debug("record completed", zap.Int("len", rec.Len()))
}

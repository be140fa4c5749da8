package serport

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sermux/sermux"
)

// readErrorBackoff bounds how fast the receive loop retries after a read
// error, so a dead or unplugged device cannot spin the loop.
const readErrorBackoff = 100 * time.Millisecond

// Driver adapts a Port to the sermux.Driver event contract. A receive
// goroutine keeps reading into the armed record's tail and a transmit
// goroutine performs one write at a time; both report progress through the
// bound event handler, never from inside a method call.
type Driver struct {
	port Port
	log  *zap.Logger

	mu          sync.Mutex
	handler     func(sermux.Event)
	armed       []*sermux.Record // armed[0] is the active receive buffer
	rxStop      bool             // DisableRx requested, teardown pending
	needStandby bool             // freshly enabled, standby not yet requested
	txBusy      bool
	txResume    bool // abort reported, the handler's resume call is expected
	closed      bool

	txCh   chan txJob
	rxWake chan struct{}
	quit   chan struct{}
	wg     sync.WaitGroup
}

type txJob struct {
	rec *sermux.Record
	off int
}

var _ sermux.Driver = (*Driver)(nil)

// NewDriver opens the serial device and wraps it in an event driver. The
// options are the same ones Open accepts; WithLogger feeds the driver's
// diagnostics.
func NewDriver(device string, opts ...Option) (*Driver, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		if err := opt(&config); err != nil {
			return nil, err
		}
	}
	p, err := openWithConfig(device, config)
	if err != nil {
		return nil, err
	}
	return WrapPort(p, config.Logger), nil
}

// WrapPort builds a Driver around an already opened port. The driver owns
// the port from here on and closes it in Close.
func WrapPort(p Port, log *zap.Logger) *Driver {
	if log == nil {
		log = zap.NewNop()
	}
	d := &Driver{
		port:   p,
		log:    log,
		txCh:   make(chan txJob, 1),
		rxWake: make(chan struct{}, 1),
		quit:   make(chan struct{}),
	}
	d.wg.Add(2)
	go d.rxLoop()
	go d.txLoop()
	return d
}

// SetHandler binds the event callback. Must be called before EnableRx.
func (d *Driver) SetHandler(fn func(sermux.Event)) {
	d.mu.Lock()
	d.handler = fn
	d.mu.Unlock()
}

// EnableRx arms reception with a fresh record.
func (d *Driver) EnableRx(rec *sermux.Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrPortClosed
	}
	d.armed = append(d.armed, rec)
	d.needStandby = true
	d.wakeRx()
	return nil
}

// SupplyRxBuffer hands the driver a standby record for seamless rollover.
func (d *Driver) SupplyRxBuffer(rec *sermux.Record) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.armed = append(d.armed, rec)
	d.wakeRx()
}

// DisableRx requests reception stop. The receive goroutine returns every
// held buffer and finishes with EventRxDisabled.
func (d *Driver) DisableRx() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.rxStop = true
	d.wakeRx()
}

// Transmit starts sending rec.Bytes()[off:]. While a write is in flight it
// returns sermux.ErrTxBusy, except for the one resume call the handler makes
// after an EventTxAborted.
func (d *Driver) Transmit(rec *sermux.Record, off int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrPortClosed
	}
	if d.txBusy && !d.txResume {
		return sermux.ErrTxBusy
	}
	d.txBusy = true
	d.txResume = false
	d.txCh <- txJob{rec: rec, off: off}
	return nil
}

// Close stops both goroutines and closes the port. Buffers still held by
// the receive side are returned through the handler before Close returns.
func (d *Driver) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.quit)
	d.mu.Unlock()

	err := d.port.Close()
	d.wg.Wait()
	if errors.Is(err, ErrPortClosed) {
		err = nil
	}
	return err
}

// wakeRx nudges the receive loop. Called with d.mu held.
func (d *Driver) wakeRx() {
	select {
	case d.rxWake <- struct{}{}:
	default:
	}
}

func (d *Driver) emit(ev sermux.Event) {
	d.mu.Lock()
	h := d.handler
	d.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

func (d *Driver) rxLoop() {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		if d.closed {
			held := d.armed
			d.armed = nil
			d.mu.Unlock()
			for _, rec := range held {
				d.emit(sermux.Event{Type: sermux.EventRxBufReleased, Rec: rec})
			}
			return
		}
		if d.rxStop {
			held := d.armed
			d.armed = nil
			d.rxStop = false
			d.mu.Unlock()
			for _, rec := range held {
				d.emit(sermux.Event{Type: sermux.EventRxBufReleased, Rec: rec})
			}
			d.emit(sermux.Event{Type: sermux.EventRxDisabled})
			continue
		}
		if len(d.armed) == 0 {
			d.mu.Unlock()
			select {
			case <-d.rxWake:
			case <-d.quit:
			}
			continue
		}
		if d.needStandby {
			// Ask for the second buffer right after arming so a full
			// record can roll over without losing bytes in between.
			d.needStandby = false
			d.mu.Unlock()
			d.emit(sermux.Event{Type: sermux.EventRxBufRequest})
			continue
		}
		cur := d.armed[0]
		d.mu.Unlock()

		buf := cur.Tail()
		if len(buf) == 0 {
			d.rollOver(cur)
			continue
		}

		// VMIN=0/VTIME makes this return within the configured timeout
		// even with no data, so stop requests are picked up promptly.
		n, err := d.port.Read(buf)
		if err != nil {
			if !errors.Is(err, ErrPortClosed) {
				d.log.Warn("serial read failed", zap.Error(err))
				select {
				case <-time.After(readErrorBackoff):
				case <-d.quit:
				}
			}
			continue
		}
		if n == 0 {
			continue
		}

		d.emit(sermux.Event{Type: sermux.EventRxReady, Rec: cur, N: n})

		d.mu.Lock()
		stop := d.rxStop
		d.mu.Unlock()
		if stop {
			continue
		}
		if cur.Len() == cur.Cap() {
			d.rollOver(cur)
		}
	}
}

// rollOver retires a full receive buffer and moves on to the standby one,
// or stops reception when no standby was supplied in time.
func (d *Driver) rollOver(cur *sermux.Record) {
	d.mu.Lock()
	if len(d.armed) > 0 && d.armed[0] == cur {
		d.armed = d.armed[1:]
	}
	hasStandby := len(d.armed) > 0
	d.mu.Unlock()

	d.emit(sermux.Event{Type: sermux.EventRxBufReleased, Rec: cur})
	if hasStandby {
		d.emit(sermux.Event{Type: sermux.EventRxBufRequest})
	} else {
		d.emit(sermux.Event{Type: sermux.EventRxDisabled})
	}
}

func (d *Driver) txLoop() {
	defer d.wg.Done()
	for {
		select {
		case <-d.quit:
			// Return any record still queued so it can be released.
			select {
			case job := <-d.txCh:
				d.emit(sermux.Event{Type: sermux.EventTxDone, Rec: job.rec})
			default:
			}
			return
		case job := <-d.txCh:
			d.runTx(job)
		}
	}
}

func (d *Driver) runTx(job txJob) {
	remaining := job.rec.Bytes()[job.off:]
	var n int
	var err error
	if len(remaining) > 0 {
		n, err = d.port.Write(remaining)
	}

	switch {
	case n > 0 && n < len(remaining):
		// Partial write. Keep the transmitter reserved for the resume
		// call the handler makes while processing the abort event.
		d.mu.Lock()
		d.txResume = true
		d.mu.Unlock()
		d.emit(sermux.Event{Type: sermux.EventTxAborted, Rec: job.rec, N: n})
		d.mu.Lock()
		if d.txResume {
			// No resume came (shutdown); free the transmitter.
			d.txResume = false
			d.txBusy = false
		}
		d.mu.Unlock()
	case err != nil && n == 0:
		// Nothing went out. Completing anyway keeps the queue draining;
		// the record is lost rather than retried forever.
		if errors.Is(err, ErrPortClosed) {
			d.log.Debug("transmit on closed port", zap.Int("len", len(remaining)))
		} else {
			d.log.Warn("serial write failed, record dropped",
				zap.Int("len", len(remaining)), zap.Error(err))
		}
		fallthrough
	default:
		d.mu.Lock()
		d.txBusy = false
		d.mu.Unlock()
		d.emit(sermux.Event{Type: sermux.EventTxDone, Rec: job.rec})
	}
}

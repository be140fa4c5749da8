package sermux

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"
)

// Bridge glues one serial line to many wireless peer sessions. Inbound
// serial records are routed by their address prefix; inbound peer data is
// reassembled into records, optionally routed peer-to-peer, and always
// forwarded to the serial line.
type Bridge struct {
	cfg Config
	log *zap.Logger
	tap TapFunc

	arena    *Arena
	registry *Registry
	sender   *Sender
	router   *Router
	pipeline *Pipeline

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

var _ Handler = (*Bridge)(nil)

// New assembles a bridge over the given serial driver.
func New(drv Driver, opts ...Option) (*Bridge, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	b := &Bridge{cfg: cfg, log: log, tap: cfg.Tap}
	b.arena = NewArena(cfg.ArenaSlots, cfg.RecordCapacity)
	b.registry = NewRegistry(cfg.MaxSessions)
	b.sender = NewSender(cfg.SendTimeout)
	b.router = NewRouter(b.registry, b.sender, log.Named("router"), cfg.Tap)
	b.pipeline = NewPipeline(drv, b.arena, cfg.RearmDelay, log.Named("pipeline"))
	return b, nil
}

// Start arms the serial side and launches the dispatch worker. The worker
// runs until ctx is canceled or Stop is called. A serial pipeline that
// cannot start is the one fatal condition.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return fmt.Errorf("bridge already started")
	}
	if err := b.pipeline.Start(); err != nil {
		return fmt.Errorf("starting serial pipeline: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.done = make(chan struct{})
	b.started = true
	go b.dispatchLoop(ctx)
	b.log.Info("bridge started",
		zap.Int("record_capacity", b.cfg.RecordCapacity),
		zap.Int("arena_slots", b.cfg.ArenaSlots),
		zap.Int("max_sessions", b.cfg.MaxSessions))
	return nil
}

// Stop shuts the bridge down: the serial driver closes first, then the
// dispatch worker drains.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return nil
	}
	b.started = false
	cancel := b.cancel
	done := b.done
	b.mu.Unlock()

	cancel()
	err := b.pipeline.Close()
	<-done
	b.log.Info("bridge stopped")
	return err
}

// Sessions returns a snapshot of the active sessions.
func (b *Bridge) Sessions() []SessionInfo { return b.registry.Sessions() }

// FreeRecords reports how many arena records are currently unused.
func (b *Bridge) FreeRecords() int { return b.arena.Free() }

// dispatchLoop is the application worker: it blocks on completed serial
// records and routes each one, returning the record to the arena after
// delivery.
func (b *Bridge) dispatchLoop(ctx context.Context) {
	defer close(b.done)
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-b.pipeline.Records():
			data := rec.Bytes()
			tapEmit(b.tap, TapSerialRecord, -1, "", data, nil)
			b.router.Dispatch(data)
			b.arena.Release(rec)
		}
	}
}

// PeerConnected admits a peer into the lowest free registry slot.
// Returning an error tells the link to drop the connection.
func (b *Bridge) PeerConnected(p Peer) error {
	sess, err := b.registry.Allocate(p)
	if err != nil {
		b.log.Warn("peer rejected",
			zap.String("peer", p.Addr()), zap.Error(err))
		return err
	}
	b.log.Info("session up",
		zap.Int("addr", sess.Index()),
		zap.String("peer", p.Addr()),
		zap.String("name", p.Name()))
	tapEmit(b.tap, TapSessionUp, sess.Index(), p.Addr(), nil, nil)
	return nil
}

// PeerReady sends the registration record: the session's routing address
// as one or two decimal digits, CR terminated. The peer learns its own
// address from the first record it receives.
func (b *Bridge) PeerReady(p Peer) {
	ref, ok := b.registry.GetByHandle(p.Addr())
	if !ok {
		b.log.Warn("ready from unregistered peer", zap.String("peer", p.Addr()))
		return
	}
	defer ref.Release()
	sess := ref.Session()
	msg := strconv.Itoa(sess.Index()) + "\r"
	if err := b.sender.Send(sess, []byte(msg)); err != nil {
		b.log.Warn("address registration failed",
			zap.Int("addr", sess.Index()), zap.Error(err))
	}
}

// PeerData runs the reverse path: the blob is cut into records of at most
// capacity-1 bytes, a blob ending in CR gets LF appended to its final
// record, marked records are routed peer-to-peer, and every record is
// forwarded to the serial line. When the arena runs dry the remainder of
// the blob is dropped after a warning.
func (b *Bridge) PeerData(p Peer, data []byte) {
	if len(data) == 0 {
		return
	}
	addr := -1
	if ref, ok := b.registry.GetByHandle(p.Addr()); ok {
		ref.Session().noteRx(len(data))
		addr = ref.Session().Index()
		ref.Release()
	}
	tapEmit(b.tap, TapPeerData, addr, p.Addr(), data, nil)

	chunk := b.cfg.RecordCapacity - 1
	for pos := 0; pos < len(data); {
		rec, err := b.arena.Acquire()
		if err != nil {
			b.log.Warn("peer data dropped, no free records",
				zap.String("peer", p.Addr()),
				zap.Int("dropped", len(data)-pos))
			return
		}
		n := len(data) - pos
		if n > chunk {
			n = chunk
		}
		rec.Append(data[pos : pos+n])
		pos += n
		if pos == len(data) && data[len(data)-1] == '\r' {
			rec.AppendByte('\n')
		}
		b.forward(rec)
	}
}

// forward routes a reassembled record if it carries the marker, then hands
// it to the serial transmitter. The routing pass borrows the record's
// bytes and finishes before the transmitter takes ownership.
func (b *Bridge) forward(rec *Record) {
	payload := rec.Bytes()
	if payload[0] == RouteMarker {
		b.router.Dispatch(payload)
	}
	tapEmit(b.tap, TapSerialOut, -1, "", payload, nil)
	if err := b.pipeline.Transmit(rec); err != nil {
		b.log.Warn("serial forward failed", zap.Error(err))
		b.arena.Release(rec)
	}
}

// PeerSent releases the flow-control slot. Transport delivery errors are
// logged here; completion is signaled either way, like the radio stack's
// send callback.
func (b *Bridge) PeerSent(p Peer, err error) {
	if err != nil {
		b.log.Warn("peer write completed with error",
			zap.String("peer", p.Addr()), zap.Error(err))
	}
	b.sender.Complete()
}

// PeerClosed retires the session. Close notifications for unknown handles
// are normal during link teardown and only logged.
func (b *Bridge) PeerClosed(p Peer, err error) {
	addr := -1
	if ref, ok := b.registry.GetByHandle(p.Addr()); ok {
		addr = ref.Session().Index()
		ref.Release()
	}
	if ferr := b.registry.Free(p.Addr()); ferr != nil {
		b.log.Debug("close for unknown session", zap.String("peer", p.Addr()))
		return
	}
	b.log.Info("session down",
		zap.Int("addr", addr),
		zap.String("peer", p.Addr()),
		zap.Error(err))
	tapEmit(b.tap, TapSessionDown, addr, p.Addr(), nil, err)
}

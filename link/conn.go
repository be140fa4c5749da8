package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/sermux/sermux"
)

// connPeer is a framed stream connection presented to the bridge as a
// peer. Sends are confirmed as soon as the frame is on the stream, the
// closest analog a reliable byte stream has to a radio send callback.
type connPeer struct {
	rwc  io.ReadWriteCloser
	addr string
	name string
	h    sermux.Handler

	wmu  sync.Mutex
	once sync.Once
	cerr error
}

var _ sermux.Peer = (*connPeer)(nil)

func (p *connPeer) Addr() string { return p.addr }
func (p *connPeer) Name() string { return p.name }

func (p *connPeer) Send(b []byte) error {
	p.wmu.Lock()
	err := WriteFrame(p.rwc, b)
	p.wmu.Unlock()
	if err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	p.h.PeerSent(p, nil)
	return nil
}

func (p *connPeer) Close() error {
	p.once.Do(func() { p.cerr = p.rwc.Close() })
	return p.cerr
}

// ServeConn drives one framed stream connection through the peer
// lifecycle: hello, admission, ready, read loop, close. It returns when
// the connection ends or ctx is canceled. addr must be a stable identity
// for the remote; it becomes the session handle.
func ServeConn(ctx context.Context, rwc io.ReadWriteCloser, addr string, h sermux.Handler, cfg Config) error {
	cfg = cfg.withDefaults()
	log := cfg.Logger

	hello, err := AwaitHello(rwc, cfg.HelloTimeout, cfg.MaxFrame)
	if err != nil {
		_ = rwc.Close()
		log.Warn("peer hello failed", zap.String("peer", addr), zap.Error(err))
		return fmt.Errorf("peer %s: %w", addr, err)
	}

	p := &connPeer{rwc: rwc, addr: addr, name: hello.Name, h: h}
	if err := h.PeerConnected(p); err != nil {
		_ = rwc.Close()
		return fmt.Errorf("peer %s rejected: %w", addr, err)
	}
	h.PeerReady(p)

	// Cancellation unblocks the read loop by closing the stream.
	stop := context.AfterFunc(ctx, func() { _ = p.Close() })
	defer stop()

	var rerr error
	for {
		frame, err := ReadFrame(rwc, cfg.MaxFrame)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				rerr = err
			}
			break
		}
		h.PeerData(p, frame)
	}
	_ = p.Close()
	h.PeerClosed(p, rerr)
	return rerr
}

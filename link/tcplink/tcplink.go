// Package tcplink accepts framed stream peers over TCP. It is the plain
// network transport: one connection per peer, no transport security, for
// trusted links and local tooling. quiclink covers the encrypted case.
package tcplink

import (
	"context"
	"errors"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/sermux/sermux"
	"github.com/sermux/sermux/link"
)

// Listener accepts TCP peers on behalf of the bridge.
type Listener struct {
	ln  net.Listener
	cfg link.Config
}

var _ link.Listener = (*Listener)(nil)

// Listen binds addr (host:port). Port 0 picks a free port; Addr reports
// the bound endpoint.
func Listen(addr string, opts ...link.Option) (*Listener, error) {
	cfg, err := link.NewConfig(opts...)
	if err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Listener{ln: ln, cfg: cfg}, nil
}

func (l *Listener) Addr() string { return l.ln.Addr().String() }

func (l *Listener) Close() error { return l.ln.Close() }

// Serve accepts connections until ctx is canceled or the listener is
// closed. Each connection becomes one peer session; the remote address is
// its registry handle.
func (l *Listener) Serve(ctx context.Context, h sermux.Handler) error {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	// Cancellation unblocks Accept by closing the socket.
	stop := context.AfterFunc(ctx, func() { _ = l.ln.Close() })
	defer stop()

	log := l.cfg.Logger
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		addr := conn.RemoteAddr().String()
		log.Debug("tcp peer accepted", zap.String("peer", addr))

		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = link.ServeConn(ctx, conn, addr, h, l.cfg)
		}()
	}
}

// Dial connects to a bridge listener and performs the opening handshake,
// returning the peer half of the connection.
func Dial(ctx context.Context, addr, name string, opts ...link.Option) (*link.Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	c, err := link.NewClient(conn, name, opts...)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

// Package memlink is an in-process stream transport over net.Pipe. It
// exists for tests and for the console command, which runs a full bridge
// without any hardware: every dialed connection speaks the same framed
// protocol as the network transports.
package memlink

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/sermux/sermux"
	"github.com/sermux/sermux/link"
)

// Network is a namespace of in-process endpoints. Dial connects to a
// listener registered under the same name.
type Network struct {
	mu        sync.Mutex
	listeners map[string]*Listener
}

func NewNetwork() *Network {
	return &Network{listeners: make(map[string]*Listener)}
}

// Listen registers a named endpoint.
func (n *Network) Listen(name string, opts ...link.Option) (*Listener, error) {
	cfg, err := link.NewConfig(opts...)
	if err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.listeners[name]; ok {
		return nil, fmt.Errorf("memlink: endpoint %q already exists", name)
	}
	l := &Listener{
		net:   n,
		name:  name,
		cfg:   cfg,
		conns: make(chan net.Conn, 8),
		done:  make(chan struct{}),
	}
	n.listeners[name] = l
	return l, nil
}

// Dial connects to a named endpoint and returns the peer's end of the
// pipe. The caller typically wraps it in a link.Client.
func (n *Network) Dial(name string) (net.Conn, error) {
	n.mu.Lock()
	l, ok := n.listeners[name]
	n.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("memlink: no endpoint %q", name)
	}

	server, client := net.Pipe()
	select {
	case l.conns <- server:
		return client, nil
	case <-l.done:
		return nil, fmt.Errorf("memlink: endpoint %q closed", name)
	}
}

func (n *Network) remove(name string) {
	n.mu.Lock()
	delete(n.listeners, name)
	n.mu.Unlock()
}

// Listener accepts in-process peers for one endpoint name.
type Listener struct {
	net  *Network
	name string
	cfg  link.Config

	conns chan net.Conn
	once  sync.Once
	done  chan struct{}

	mu  sync.Mutex
	seq int
}

var _ link.Listener = (*Listener)(nil)

func (l *Listener) Addr() string { return "mem:" + l.name }

// Close unregisters the endpoint and stops Serve, which tears down the
// served connections on its way out.
func (l *Listener) Close() error {
	l.once.Do(func() {
		l.net.remove(l.name)
		close(l.done)
	})
	return nil
}

// Serve accepts dialed pipes and drives each through the shared stream
// lifecycle until ctx is canceled or the listener is closed. On return
// every served connection has been torn down and its callbacks finished.
func (l *Listener) Serve(ctx context.Context, h sermux.Handler) error {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-l.done:
			return nil
		case conn := <-l.conns:
			l.mu.Lock()
			l.seq++
			addr := fmt.Sprintf("%s#%d", l.Addr(), l.seq)
			l.mu.Unlock()

			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = link.ServeConn(ctx, conn, addr, h, l.cfg)
			}()
		}
	}
}

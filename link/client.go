package link

import (
	"fmt"
	"io"
	"sync"
)

// Client is the remote end of a framed stream connection: it speaks the
// same wire protocol the listeners serve, from the peer's point of view.
// Tests and tooling use it to stand in for a real wireless device.
type Client struct {
	rwc io.ReadWriteCloser
	cfg Config

	wmu  sync.Mutex
	once sync.Once
	cerr error
}

// NewClient sends the opening hello over an established stream and
// returns the peer half. The caller keeps ownership of the stream only on
// error; afterwards Close tears it down.
func NewClient(rwc io.ReadWriteCloser, name string, opts ...Option) (*Client, error) {
	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}
	if err := SendHello(rwc, name); err != nil {
		return nil, fmt.Errorf("sending hello: %w", err)
	}
	return &Client{rwc: rwc, cfg: cfg}, nil
}

// Send writes one record frame.
func (c *Client) Send(p []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return WriteFrame(c.rwc, p)
}

// Recv blocks for the next record frame. The first frame a freshly
// connected client receives is its address registration.
func (c *Client) Recv() ([]byte, error) {
	return ReadFrame(c.rwc, c.cfg.MaxFrame)
}

func (c *Client) Close() error {
	c.once.Do(func() { c.cerr = c.rwc.Close() })
	return c.cerr
}

// Package blelink attaches Nordic UART Service peripherals as bridge
// peers. It runs a BLE central that scans for NUS advertisers, wires
// their TX notifications into the bridge and writes records back over
// the RX characteristic in ATT-sized chunks.
package blelink

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"tinygo.org/x/bluetooth"

	"github.com/sermux/sermux"
	"github.com/sermux/sermux/link"
)

// attPayload is the largest write carried by the default ATT MTU.
const attPayload = 20

// Central scans for NUS peripherals and serves each one as a peer.
type Central struct {
	adapter *bluetooth.Adapter
	cfg     link.Config

	mu     sync.Mutex
	peers  map[string]*blePeer
	closed bool

	done chan struct{}
	once sync.Once
}

var _ link.Listener = (*Central)(nil)

// NewCentral prepares a central on the platform's default adapter.
func NewCentral(opts ...link.Option) (*Central, error) {
	cfg, err := link.NewConfig(opts...)
	if err != nil {
		return nil, err
	}
	return &Central{
		adapter: bluetooth.DefaultAdapter,
		cfg:     cfg,
		peers:   make(map[string]*blePeer),
		done:    make(chan struct{}),
	}, nil
}

func (c *Central) Addr() string { return "ble:central" }

// Close stops scanning and disconnects every attached peripheral.
func (c *Central) Close() error {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		peers := make([]*blePeer, 0, len(c.peers))
		for _, p := range c.peers {
			peers = append(peers, p)
		}
		c.mu.Unlock()

		close(c.done)
		_ = c.adapter.StopScan()
		for _, p := range peers {
			_ = p.dev.Disconnect()
		}
	})
	return nil
}

// Serve scans until ctx is canceled or the central is closed. Each NUS
// advertiser found is connected, subscribed and announced to h; scanning
// resumes afterwards so several peripherals can attach.
func (c *Central) Serve(ctx context.Context, h sermux.Handler) error {
	if err := c.adapter.Enable(); err != nil {
		return fmt.Errorf("enable adapter: %w", err)
	}
	c.adapter.SetConnectHandler(func(dev bluetooth.Device, connected bool) {
		if !connected {
			c.dropPeer(dev.Address.String(), h)
		}
	})

	stop := context.AfterFunc(ctx, func() { _ = c.adapter.StopScan() })
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.done:
			return nil
		default:
		}

		var (
			found bluetooth.ScanResult
			ok    bool
		)
		// Connecting from inside the scan callback deadlocks some
		// stacks, so stop the scan and connect after it returns.
		err := c.adapter.Scan(func(a *bluetooth.Adapter, res bluetooth.ScanResult) {
			if !res.HasServiceUUID(bluetooth.ServiceUUIDNordicUART) {
				return
			}
			addr := res.Address.String()
			c.mu.Lock()
			_, dup := c.peers[addr]
			c.mu.Unlock()
			if dup {
				return
			}
			found, ok = res, true
			_ = a.StopScan()
		})
		if err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		if !ok {
			continue
		}
		c.attach(found, h)
	}
}

func (c *Central) attach(res bluetooth.ScanResult, h sermux.Handler) {
	addr := res.Address.String()
	log := c.cfg.Logger

	dev, err := c.adapter.Connect(res.Address, bluetooth.ConnectionParams{})
	if err != nil {
		log.Warn("ble connect failed", zap.String("peer", addr), zap.Error(err))
		return
	}

	svcs, err := dev.DiscoverServices([]bluetooth.UUID{bluetooth.ServiceUUIDNordicUART})
	if err != nil || len(svcs) == 0 {
		log.Warn("ble service discovery failed", zap.String("peer", addr), zap.Error(err))
		_ = dev.Disconnect()
		return
	}
	chars, err := svcs[0].DiscoverCharacteristics([]bluetooth.UUID{
		bluetooth.CharacteristicUUIDUARTRX,
		bluetooth.CharacteristicUUIDUARTTX,
	})
	if err != nil || len(chars) != 2 {
		log.Warn("ble characteristic discovery failed", zap.String("peer", addr), zap.Error(err))
		_ = dev.Disconnect()
		return
	}

	p := &blePeer{
		central: c,
		dev:     dev,
		rx:      chars[0],
		addr:    addr,
		name:    res.LocalName(),
		h:       h,
	}

	if err := chars[1].EnableNotifications(func(buf []byte) {
		h.PeerData(p, buf)
	}); err != nil {
		log.Warn("ble subscribe failed", zap.String("peer", addr), zap.Error(err))
		_ = dev.Disconnect()
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = dev.Disconnect()
		return
	}
	c.peers[addr] = p
	c.mu.Unlock()

	if err := h.PeerConnected(p); err != nil {
		log.Warn("ble peer rejected", zap.String("peer", addr), zap.Error(err))
		c.forget(addr)
		_ = dev.Disconnect()
		return
	}
	log.Info("ble peer attached", zap.String("peer", addr), zap.String("name", p.name))
	h.PeerReady(p)
}

// dropPeer handles a stack-reported disconnect.
func (c *Central) dropPeer(addr string, h sermux.Handler) {
	c.mu.Lock()
	p, ok := c.peers[addr]
	if ok {
		delete(c.peers, addr)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	c.cfg.Logger.Info("ble peer detached", zap.String("peer", addr))
	h.PeerClosed(p, nil)
}

func (c *Central) forget(addr string) {
	c.mu.Lock()
	delete(c.peers, addr)
	c.mu.Unlock()
}

// blePeer is one attached peripheral.
type blePeer struct {
	central *Central
	dev     bluetooth.Device
	rx      bluetooth.DeviceCharacteristic
	addr    string
	name    string
	h       sermux.Handler
}

var _ sermux.Peer = (*blePeer)(nil)

func (p *blePeer) Addr() string { return p.addr }
func (p *blePeer) Name() string { return p.name }

// Send writes the record over the RX characteristic in MTU-sized chunks
// and reports completion. A failed write drops the connection; the
// disconnect runs detached so the close callback never fires from inside
// this call.
func (p *blePeer) Send(rec []byte) error {
	for _, chunk := range splitChunks(rec, attPayload) {
		if _, err := p.rx.WriteWithoutResponse(chunk); err != nil {
			p.central.cfg.Logger.Warn("ble write failed",
				zap.String("peer", p.addr), zap.Error(err))
			go func() { _ = p.dev.Disconnect() }()
			return err
		}
	}
	p.h.PeerSent(p, nil)
	return nil
}

func (p *blePeer) Close() error {
	return p.dev.Disconnect()
}

// splitChunks cuts b into pieces of at most n bytes. The final piece
// carries the remainder; an empty b yields no pieces.
func splitChunks(b []byte, n int) [][]byte {
	if n <= 0 || len(b) == 0 {
		return nil
	}
	out := make([][]byte, 0, (len(b)+n-1)/n)
	for len(b) > n {
		out = append(out, b[:n])
		b = b[n:]
	}
	return append(out, b)
}

package memlink

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sermux/sermux"
	"github.com/sermux/sermux/link"
	"github.com/sermux/sermux/serport"
)

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

type countingHandler struct {
	mu        sync.Mutex
	addrs     []string
	connected int
	closed    int
}

func (h *countingHandler) PeerConnected(p sermux.Peer) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connected++
	h.addrs = append(h.addrs, p.Addr())
	return nil
}

func (h *countingHandler) PeerReady(p sermux.Peer)          {}
func (h *countingHandler) PeerData(p sermux.Peer, b []byte) {}
func (h *countingHandler) PeerSent(p sermux.Peer, e error)  {}

func (h *countingHandler) PeerClosed(p sermux.Peer, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed++
}

func (h *countingHandler) counts() (int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connected, h.closed
}

func TestListenerLifecycle(t *testing.T) {
	nw := NewNetwork()
	ln, err := nw.Listen("hub")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	if got := ln.Addr(); got != "mem:hub" {
		t.Errorf("Expected addr \"mem:hub\", got %q", got)
	}
	if _, err := nw.Listen("hub"); err == nil {
		t.Error("Expected duplicate endpoint name to fail")
	}
	if _, err := nw.Dial("ghost"); err == nil {
		t.Error("Expected dial to unknown endpoint to fail")
	}

	h := &countingHandler{}
	served := make(chan error, 1)
	go func() { served <- ln.Serve(context.Background(), h) }()

	conn, err := nw.Dial("hub")
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	c, err := link.NewClient(conn, "probe")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	waitFor(t, func() bool { n, _ := h.counts(); return n == 1 }, "peer never admitted")

	h.mu.Lock()
	addr := h.addrs[0]
	h.mu.Unlock()
	if !strings.HasPrefix(addr, "mem:hub#") {
		t.Errorf("Expected peer addr with \"mem:hub#\" prefix, got %q", addr)
	}

	c.Close()
	waitFor(t, func() bool { _, n := h.counts(); return n == 1 }, "peer never retired")

	ln.Close()
	select {
	case err := <-served:
		if err != nil {
			t.Errorf("Expected clean serve exit, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Close")
	}
	if _, err := nw.Dial("hub"); err == nil {
		t.Error("Expected dial after close to fail")
	}
}

// TestBridgeEndToEnd runs the whole stack without hardware: a simulated
// serial device under a bridge, served over memlink to two framed clients.
func TestBridgeEndToEnd(t *testing.T) {
	sim := serport.NewSim()
	bridge, err := sermux.New(sim)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := bridge.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer bridge.Stop()

	nw := NewNetwork()
	ln, err := nw.Listen("bridge")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	served := make(chan error, 1)
	go func() { served <- ln.Serve(ctx, bridge) }()

	dial := func(name string) *link.Client {
		t.Helper()
		conn, err := nw.Dial("bridge")
		if err != nil {
			t.Fatalf("Dial failed: %v", err)
		}
		c, err := link.NewClient(conn, name)
		if err != nil {
			t.Fatalf("NewClient failed: %v", err)
		}
		return c
	}
	recv := func(c *link.Client) string {
		t.Helper()
		frame, err := c.Recv()
		if err != nil {
			t.Fatalf("Recv failed: %v", err)
		}
		return string(frame)
	}

	alpha := dial("alpha")
	defer alpha.Close()
	if got := recv(alpha); got != "0\r" {
		t.Fatalf("Expected registration \"0\\r\", got %q", got)
	}
	beta := dial("beta")
	defer beta.Close()
	if got := recv(beta); got != "1\r" {
		t.Fatalf("Expected registration \"1\\r\", got %q", got)
	}
	if n := len(bridge.Sessions()); n != 2 {
		t.Errorf("Expected 2 sessions, got %d", n)
	}

	// Addressed record from the serial side reaches only its session.
	sim.InjectString("*00hello\r")
	if got := recv(alpha); got != "hello\n" {
		t.Errorf("Expected \"hello\\n\", got %q", got)
	}

	// Broadcast reaches both. Beta seeing the broadcast as its first
	// record proves the earlier unicast never leaked to it.
	sim.InjectString("*99ping\r")
	if got := recv(alpha); got != "ping\n" {
		t.Errorf("Expected \"ping\\n\" for alpha, got %q", got)
	}
	if got := recv(beta); got != "ping\n" {
		t.Errorf("Expected \"ping\\n\" for beta, got %q", got)
	}

	// Reverse path: a peer record comes out the serial side with the
	// terminator normalized to CR LF.
	if err := alpha.Send([]byte("pong\r")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	waitFor(t, func() bool { return len(sim.Transmitted()) >= 1 }, "record never reached serial")
	if got := string(sim.Transmitted()[0]); got != "pong\r\n" {
		t.Errorf("Expected serial output \"pong\\r\\n\", got %q", got)
	}

	// A marked record from a peer goes both ways: routed to the addressed
	// session and forwarded to the serial line in full.
	if err := alpha.Send([]byte("*01hi\r")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if got := recv(beta); got != "hi\r\n" {
		t.Errorf("Expected \"hi\\r\\n\" for beta, got %q", got)
	}
	waitFor(t, func() bool { return len(sim.Transmitted()) >= 2 }, "marked record never reached serial")
	if got := string(sim.Transmitted()[1]); got != "*01hi\r\n" {
		t.Errorf("Expected serial output \"*01hi\\r\\n\", got %q", got)
	}

	alpha.Close()
	waitFor(t, func() bool { return len(bridge.Sessions()) == 1 }, "session never retired")

	ln.Close()
	select {
	case err := <-served:
		if err != nil {
			t.Errorf("Expected clean serve exit, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Close")
	}
}

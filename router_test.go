package sermux

import (
	"sync"
	"testing"
	"time"
)

// fakePeer records everything sent to it and can confirm writes through an
// optional hook, standing in for a real link peer.
type fakePeer struct {
	addr    string
	name    string
	sendErr error
	onSend  func([]byte)

	mu   sync.Mutex
	sent [][]byte
}

func (p *fakePeer) Addr() string { return p.addr }
func (p *fakePeer) Name() string { return p.name }
func (p *fakePeer) Close() error { return nil }

func (p *fakePeer) Send(b []byte) error {
	if p.sendErr != nil {
		return p.sendErr
	}
	cp := append([]byte(nil), b...)
	p.mu.Lock()
	p.sent = append(p.sent, cp)
	p.mu.Unlock()
	if p.onSend != nil {
		p.onSend(cp)
	}
	return nil
}

func (p *fakePeer) records() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.sent))
	for i, b := range p.sent {
		out[i] = string(b)
	}
	return out
}

// newTestRouter builds a router over n instantly confirming peers.
func newTestRouter(t *testing.T, n int) (*Router, *Registry, []*fakePeer) {
	t.Helper()
	reg := NewRegistry(8)
	sender := NewSender(100 * time.Millisecond)
	peers := make([]*fakePeer, n)
	for i := range peers {
		fp := &fakePeer{addr: string(rune('a' + i)), onSend: func([]byte) { sender.Complete() }}
		peers[i] = fp
		if _, err := reg.Allocate(fp); err != nil {
			t.Fatalf("Allocate failed: %v", err)
		}
	}
	return NewRouter(reg, sender, nil, nil), reg, peers
}

func TestParseRouteAddr(t *testing.T) {
	tests := []struct {
		name string
		data string
		addr int
		ok   bool
	}{
		{"single digit slot", "*02x", 2, true},
		{"double digit slot", "*47x", 47, true},
		{"broadcast", "*99x", 99, true},
		{"zero", "*00x", 0, true},
		{"prefix only", "*13", 13, true},
		{"too short", "*1", 0, false},
		{"marker alone", "*", 0, false},
		{"letters", "*abx", 0, false},
		{"digit then letter", "*1zx", 0, false},
		{"space padded", "* 1x", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, ok := parseRouteAddr([]byte(tt.data))
			if ok != tt.ok || (ok && addr != tt.addr) {
				t.Errorf("parseRouteAddr(%q) = (%d, %v), want (%d, %v)",
					tt.data, addr, ok, tt.addr, tt.ok)
			}
		})
	}
}

func TestDispatchUnicast(t *testing.T) {
	r, _, peers := newTestRouter(t, 3)

	r.Dispatch([]byte("*02hello\n"))

	if got := peers[2].records(); len(got) != 1 || got[0] != "hello\n" {
		t.Errorf("peer 2 received %q, want [hello\\n]", got)
	}
	for i := 0; i < 2; i++ {
		if got := peers[i].records(); len(got) != 0 {
			t.Errorf("peer %d received %q, want nothing", i, got)
		}
	}
}

func TestDispatchBroadcastAddress(t *testing.T) {
	r, _, peers := newTestRouter(t, 3)

	r.Dispatch([]byte("*99ping\n"))

	for i, p := range peers {
		if got := p.records(); len(got) != 1 || got[0] != "ping\n" {
			t.Errorf("peer %d received %q, want [ping\\n]", i, got)
		}
	}
}

func TestDispatchUnmarkedBroadcasts(t *testing.T) {
	r, _, peers := newTestRouter(t, 3)

	r.Dispatch([]byte("hi\n"))

	for i, p := range peers {
		if got := p.records(); len(got) != 1 || got[0] != "hi\n" {
			t.Errorf("peer %d received %q, want [hi\\n]", i, got)
		}
	}
}

func TestDispatchOutOfRangeKeepsPrefix(t *testing.T) {
	r, _, peers := newTestRouter(t, 3)

	// Address 7 is valid syntax but beyond the three active sessions: the
	// record falls back to broadcast with the prefix intact.
	r.Dispatch([]byte("*07data\n"))

	for i, p := range peers {
		if got := p.records(); len(got) != 1 || got[0] != "*07data\n" {
			t.Errorf("peer %d received %q, want [*07data\\n]", i, got)
		}
	}
}

func TestDispatchMalformedAddressKeepsPrefix(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"letters in address", "*abdata\n"},
		{"marker only", "*\n"},
		{"one digit", "*1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _, peers := newTestRouter(t, 2)
			r.Dispatch([]byte(tt.data))
			for i, p := range peers {
				if got := p.records(); len(got) != 1 || got[0] != tt.data {
					t.Errorf("peer %d received %q, want [%q]", i, got, tt.data)
				}
			}
		})
	}
}

func TestDispatchEmptyRecord(t *testing.T) {
	r, _, peers := newTestRouter(t, 1)
	r.Dispatch(nil)
	r.Dispatch([]byte{})
	if got := peers[0].records(); len(got) != 0 {
		t.Errorf("peer received %q from empty dispatch", got)
	}
}

func TestDispatchUnicastVacatedSlot(t *testing.T) {
	r, reg, peers := newTestRouter(t, 3)
	if err := reg.Free("b"); err != nil {
		t.Fatalf("Free failed: %v", err)
	}

	// Address 1 is below Count()==2 but the slot is empty: the record is
	// dropped, not rerouted.
	r.Dispatch([]byte("*01lost\n"))

	for i, p := range peers {
		if got := p.records(); len(got) != 0 {
			t.Errorf("peer %d received %q, want nothing", i, got)
		}
	}
}

func TestBroadcastBoundedByCount(t *testing.T) {
	r, reg, peers := newTestRouter(t, 3)
	if err := reg.Free("b"); err != nil {
		t.Fatalf("Free failed: %v", err)
	}

	// Count is 2 after the free, so the sweep covers slots 0 and 1 only:
	// slot 0 delivers, slot 1 is empty, and slot 2 sits outside the bound
	// until the freed slot is reused.
	r.Dispatch([]byte("all\n"))

	if got := peers[0].records(); len(got) != 1 || got[0] != "all\n" {
		t.Errorf("peer 0 received %q, want [all\\n]", got)
	}
	if got := peers[2].records(); len(got) != 0 {
		t.Errorf("peer 2 received %q, want nothing", got)
	}
}

func TestBroadcastContinuesPastFailures(t *testing.T) {
	r, _, peers := newTestRouter(t, 3)
	peers[1].sendErr = errTestLink

	r.Dispatch([]byte("news\n"))

	if got := peers[0].records(); len(got) != 1 {
		t.Errorf("peer 0 received %q, want one record", got)
	}
	if got := peers[2].records(); len(got) != 1 {
		t.Errorf("peer 2 received %q, want one record", got)
	}
}

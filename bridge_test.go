package sermux

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestBridge(t *testing.T, opts ...Option) (*Bridge, *fakeDriver) {
	t.Helper()
	fd := &fakeDriver{}
	base := []Option{
		WithArenaSlots(8),
		WithSendTimeout(100 * time.Millisecond),
		WithRearmDelay(10 * time.Millisecond),
	}
	b, err := New(fd, append(base, opts...)...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { _ = b.Stop() })
	return b, fd
}

// attachPeer runs the full admission flow and clears the registration
// record so tests start from a clean send log.
func attachPeer(t *testing.T, b *Bridge, addr string) *fakePeer {
	t.Helper()
	p := &fakePeer{addr: addr}
	p.onSend = func([]byte) { b.PeerSent(p, nil) }
	if err := b.PeerConnected(p); err != nil {
		t.Fatalf("PeerConnected(%s) failed: %v", addr, err)
	}
	b.PeerReady(p)
	if recs := p.records(); len(recs) != 1 {
		t.Fatalf("registration records for %s = %q, want exactly one", addr, recs)
	}
	p.mu.Lock()
	p.sent = nil
	p.mu.Unlock()
	return p
}

func TestBridgeRegistrationRecords(t *testing.T) {
	b, _ := newTestBridge(t)

	for i := 0; i < 3; i++ {
		p := &fakePeer{addr: fmt.Sprintf("peer-%d", i)}
		p.onSend = func([]byte) { b.PeerSent(p, nil) }
		if err := b.PeerConnected(p); err != nil {
			t.Fatalf("PeerConnected failed: %v", err)
		}
		b.PeerReady(p)

		want := fmt.Sprintf("%d\r", i)
		if got := p.records(); len(got) != 1 || got[0] != want {
			t.Errorf("peer %d registration = %q, want [%q]", i, got, want)
		}
	}
}

func TestBridgeRoutedDeliveryScenario(t *testing.T) {
	b, fd := newTestBridge(t)
	peers := []*fakePeer{
		attachPeer(t, b, "p0"),
		attachPeer(t, b, "p1"),
		attachPeer(t, b, "p2"),
	}

	fd.feed(t, []byte("*02hello\r"))

	waitFor(t, func() bool {
		recs := peers[2].records()
		return len(recs) == 1 && recs[0] == "hello\n"
	}, "session 2 never received the routed record")

	time.Sleep(20 * time.Millisecond)
	for _, i := range []int{0, 1} {
		if got := peers[i].records(); len(got) != 0 {
			t.Errorf("peer %d received %q, want nothing", i, got)
		}
	}
}

func TestBridgeBroadcastScenario(t *testing.T) {
	b, fd := newTestBridge(t)
	peers := []*fakePeer{
		attachPeer(t, b, "p0"),
		attachPeer(t, b, "p1"),
		attachPeer(t, b, "p2"),
	}

	fd.feed(t, []byte("hi\n"))

	for i, p := range peers {
		waitFor(t, func() bool {
			recs := p.records()
			return len(recs) == 1 && recs[0] == "hi\n"
		}, fmt.Sprintf("peer %d never received the broadcast", i))
	}
}

func TestBridgePeerDataEchoedWithCRLF(t *testing.T) {
	b, fd := newTestBridge(t)
	p := attachPeer(t, b, "p0")

	b.PeerData(p, []byte("pong\r"))

	if got := fd.txLog(); len(got) != 1 || got[0] != "pong\r\n" {
		t.Errorf("serial echo = %q, want [pong\\r\\n]", got)
	}
	if got := p.records(); len(got) != 0 {
		t.Errorf("unmarked peer data was routed back: %q", got)
	}
}

func TestBridgePeerDataChunking(t *testing.T) {
	b, fd := newTestBridge(t)
	p := attachPeer(t, b, "p0")

	// Capacity 20 leaves 19 bytes per record: 45 bytes make three chunks.
	b.PeerData(p, bytes.Repeat([]byte("a"), 45))

	want := []string{
		strings.Repeat("a", 19),
		strings.Repeat("a", 19),
		strings.Repeat("a", 7),
	}
	if got := fd.txLog(); len(got) != 1 || got[0] != want[0] {
		t.Fatalf("txLog = %q, want first chunk started", got)
	}
	fd.completeTx(t)
	fd.completeTx(t)

	got := fd.txLog()
	if len(got) != 3 {
		t.Fatalf("txLog = %q, want 3 chunks", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBridgePeerToPeerRouting(t *testing.T) {
	b, fd := newTestBridge(t)
	a := attachPeer(t, b, "pa")
	c := attachPeer(t, b, "pc")

	b.PeerData(a, []byte("*01sup\r"))

	if got := c.records(); len(got) != 1 || got[0] != "sup\r\n" {
		t.Errorf("peer 1 received %q, want [sup\\r\\n]", got)
	}
	if got := a.records(); len(got) != 0 {
		t.Errorf("sender received its own record: %q", got)
	}
	// The serial line sees the record unstripped.
	if got := fd.txLog(); len(got) != 1 || got[0] != "*01sup\r\n" {
		t.Errorf("serial echo = %q, want [*01sup\\r\\n]", got)
	}
}

func TestBridgeRejectsBeyondCapacity(t *testing.T) {
	b, _ := newTestBridge(t, WithMaxSessions(1))
	attachPeer(t, b, "p0")

	p := &fakePeer{addr: "p1"}
	if err := b.PeerConnected(p); !errors.Is(err, ErrRegistryFull) {
		t.Errorf("PeerConnected on full registry = %v, want ErrRegistryFull", err)
	}
}

func TestBridgeSessionLifecycle(t *testing.T) {
	b, _ := newTestBridge(t)
	p0 := attachPeer(t, b, "p0")
	attachPeer(t, b, "p1")

	if infos := b.Sessions(); len(infos) != 2 {
		t.Fatalf("Sessions() = %d entries, want 2", len(infos))
	}

	b.PeerClosed(p0, nil)
	infos := b.Sessions()
	if len(infos) != 1 || infos[0].Index != 1 {
		t.Fatalf("Sessions() after close = %+v, want only slot 1", infos)
	}

	// A duplicate close notification is absorbed.
	b.PeerClosed(p0, nil)

	// The freed slot is reused by the next peer.
	attachPeer(t, b, "p2")
	infos = b.Sessions()
	if len(infos) != 2 || infos[0].Index != 0 || infos[0].Addr != "p2" {
		t.Fatalf("Sessions() after reattach = %+v, want p2 in slot 0", infos)
	}
}

func TestBridgePeerDataDropsWhenArenaDry(t *testing.T) {
	b, fd := newTestBridge(t, WithArenaSlots(3))
	p := attachPeer(t, b, "p0")

	// One record is armed for receive, leaving two. A 60-byte blob needs
	// four records, so the tail is dropped after the second chunk.
	b.PeerData(p, bytes.Repeat([]byte("z"), 60))

	fd.completeTx(t)
	if got := fd.txLog(); len(got) != 2 {
		t.Fatalf("txLog = %d chunks, want 2 (remainder dropped)", len(got))
	}
	fd.completeTx(t)

	// The bridge keeps working once records free up.
	fd.feed(t, []byte("ok\n"))
	waitFor(t, func() bool {
		recs := p.records()
		return len(recs) == 1 && recs[0] == "ok\n"
	}, "bridge did not recover after arena exhaustion")
}

func TestBridgeTapObservesActivity(t *testing.T) {
	var mu sync.Mutex
	var kinds []TapKind
	tap := func(ev TapEvent) {
		mu.Lock()
		kinds = append(kinds, ev.Kind)
		mu.Unlock()
	}
	hasKind := func(k TapKind) bool {
		mu.Lock()
		defer mu.Unlock()
		for _, got := range kinds {
			if got == k {
				return true
			}
		}
		return false
	}

	b, fd := newTestBridge(t, WithTap(tap))
	p := attachPeer(t, b, "p0")

	fd.feed(t, []byte("go\n"))
	waitFor(t, func() bool { return hasKind(TapSerialRecord) && hasKind(TapDeliver) },
		"serial record activity never reached the tap")

	b.PeerData(p, []byte("x\r"))
	if !hasKind(TapPeerData) || !hasKind(TapSerialOut) {
		t.Error("peer data activity never reached the tap")
	}
	if !hasKind(TapSessionUp) {
		t.Error("session attach never reached the tap")
	}

	b.PeerClosed(p, nil)
	waitFor(t, func() bool { return hasKind(TapSessionDown) },
		"session close never reached the tap")
}

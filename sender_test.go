package sermux

import (
	"errors"
	"testing"
	"time"
)

var errTestLink = errors.New("link unavailable")

func newSenderSession(t *testing.T, p *fakePeer) *Session {
	t.Helper()
	reg := NewRegistry(2)
	s, err := reg.Allocate(p)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	return s
}

func TestSenderWaitsForCompletion(t *testing.T) {
	s := NewSender(500 * time.Millisecond)
	p := &fakePeer{addr: "a"}
	p.onSend = func([]byte) {
		go func() {
			time.Sleep(10 * time.Millisecond)
			s.Complete()
		}()
	}
	sess := newSenderSession(t, p)

	start := time.Now()
	if err := s.Send(sess, []byte("x\n")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if time.Since(start) >= 500*time.Millisecond {
		t.Error("Send waited for the full window despite completion")
	}
}

func TestSenderTimeout(t *testing.T) {
	s := NewSender(30 * time.Millisecond)
	sess := newSenderSession(t, &fakePeer{addr: "a"})

	start := time.Now()
	err := s.Send(sess, []byte("x\n"))
	if !errors.Is(err, ErrSendTimeout) {
		t.Fatalf("Send = %v, want ErrSendTimeout", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("Send returned after %v, want at least the 30ms window", elapsed)
	}
}

func TestSenderLinkErrorSkipsWait(t *testing.T) {
	s := NewSender(time.Second)
	sess := newSenderSession(t, &fakePeer{addr: "a", sendErr: errTestLink})

	start := time.Now()
	err := s.Send(sess, []byte("x\n"))
	if !errors.Is(err, errTestLink) {
		t.Fatalf("Send = %v, want wrapped link error", err)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Error("Send waited for confirmation of a refused write")
	}
}

func TestSenderLateCompletionBanksCredit(t *testing.T) {
	s := NewSender(20 * time.Millisecond)
	sess := newSenderSession(t, &fakePeer{addr: "a"})

	if err := s.Send(sess, []byte("x\n")); !errors.Is(err, ErrSendTimeout) {
		t.Fatalf("first Send = %v, want ErrSendTimeout", err)
	}

	// The confirmation lands after its window; the banked credit lets the
	// next send through immediately, matching semaphore semantics.
	s.Complete()
	start := time.Now()
	if err := s.Send(sess, []byte("y\n")); err != nil {
		t.Fatalf("second Send = %v, want nil", err)
	}
	if time.Since(start) > 10*time.Millisecond {
		t.Error("second Send did not consume the banked credit")
	}
}

func TestSenderCompleteNeverBlocks(t *testing.T) {
	s := NewSender(time.Second)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			s.Complete()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Complete blocked")
	}
}

func TestSenderCountsDeliveredRecords(t *testing.T) {
	s := NewSender(100 * time.Millisecond)
	p := &fakePeer{addr: "a"}
	p.onSend = func([]byte) { s.Complete() }
	sess := newSenderSession(t, p)

	if err := s.Send(sess, []byte("abc\n")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if got := sess.txRecords.Load(); got != 1 {
		t.Errorf("txRecords = %d, want 1", got)
	}
	if got := sess.txBytes.Load(); got != 4 {
		t.Errorf("txBytes = %d, want 4", got)
	}
}

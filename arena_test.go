package sermux

import (
	"bytes"
	"errors"
	"testing"
)

func TestArenaAcquireRelease(t *testing.T) {
	a := NewArena(2, 8)

	r1, err := a.Acquire()
	if err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}
	r2, err := a.Acquire()
	if err != nil {
		t.Fatalf("second Acquire failed: %v", err)
	}
	if _, err := a.Acquire(); !errors.Is(err, ErrNoBuffers) {
		t.Errorf("third Acquire = %v, want ErrNoBuffers", err)
	}
	if free := a.Free(); free != 0 {
		t.Errorf("Free() = %d, want 0", free)
	}

	a.Release(r1)
	if free := a.Free(); free != 1 {
		t.Errorf("Free() after release = %d, want 1", free)
	}
	r3, err := a.Acquire()
	if err != nil {
		t.Fatalf("Acquire after release failed: %v", err)
	}
	if r3.Len() != 0 {
		t.Errorf("reacquired record Len() = %d, want 0", r3.Len())
	}
	a.Release(r2)
	a.Release(r3)
	if free := a.Free(); free != 2 {
		t.Errorf("Free() after releasing all = %d, want 2", free)
	}
}

func TestArenaDoubleReleaseIgnored(t *testing.T) {
	a := NewArena(3, 8)
	r, _ := a.Acquire()
	a.Release(r)
	a.Release(r)
	a.Release(nil)
	if free := a.Free(); free != 3 {
		t.Errorf("Free() = %d, want 3", free)
	}
}

func TestArenaForeignReleaseIgnored(t *testing.T) {
	a := NewArena(2, 8)
	other := NewArena(2, 8)
	r, _ := other.Acquire()
	a.Release(r)
	if free := a.Free(); free != 2 {
		t.Errorf("Free() = %d, want 2", free)
	}
}

func TestRecordAppend(t *testing.T) {
	a := NewArena(1, 8)
	r, _ := a.Acquire()

	if n := r.Append([]byte("abcde")); n != 5 {
		t.Fatalf("Append = %d, want 5", n)
	}
	if got := r.Bytes(); !bytes.Equal(got, []byte("abcde")) {
		t.Errorf("Bytes() = %q, want %q", got, "abcde")
	}
	if len(r.Tail()) != 3 {
		t.Errorf("Tail() length = %d, want 3", len(r.Tail()))
	}

	// Overflowing append copies only what fits.
	if n := r.Append([]byte("fghij")); n != 3 {
		t.Errorf("overflow Append = %d, want 3", n)
	}
	if r.Len() != r.Cap() {
		t.Errorf("Len() = %d, want capacity %d", r.Len(), r.Cap())
	}
	if r.AppendByte('x') {
		t.Error("AppendByte on a full record = true, want false")
	}
}

func TestRecordTailAdvance(t *testing.T) {
	a := NewArena(1, 8)
	r, _ := a.Acquire()

	copy(r.Tail(), "ab")
	r.Advance(2)
	copy(r.Tail(), "cd")
	r.Advance(2)
	if got := r.Bytes(); !bytes.Equal(got, []byte("abcd")) {
		t.Errorf("Bytes() = %q, want %q", got, "abcd")
	}
	if !r.AppendByte('\n') {
		t.Error("AppendByte = false, want true")
	}
	if got := string(r.Bytes()); got != "abcd\n" {
		t.Errorf("Bytes() = %q, want %q", got, "abcd\n")
	}
}

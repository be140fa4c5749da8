package sermux

import (
	"fmt"
	"time"
)

// Sender serializes every outbound wireless write behind a single
// completion slot. One write is in flight across all peers at any time;
// the next starts only after the transport confirms the previous one or
// the confirmation window expires. This deliberately trades throughput for
// bounded transport queueing and strict per-session ordering.
type Sender struct {
	timeout time.Duration
	done    chan struct{}
}

// NewSender creates a sender with the given confirmation window.
func NewSender(timeout time.Duration) *Sender {
	return &Sender{
		timeout: timeout,
		done:    make(chan struct{}, 1),
	}
}

// Send writes payload to the session's peer and waits for the completion
// signal. A write the link refuses outright returns immediately with the
// link error; a write that is accepted but never confirmed returns
// ErrSendTimeout after the window and is abandoned, never retried.
func (s *Sender) Send(sess *Session, payload []byte) error {
	if err := sess.Peer().Send(payload); err != nil {
		return fmt.Errorf("session %d link send: %w", sess.Index(), err)
	}
	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	select {
	case <-s.done:
		sess.noteTx(len(payload))
		return nil
	case <-timer.C:
		return fmt.Errorf("session %d: %w", sess.Index(), ErrSendTimeout)
	}
}

// Complete releases the in-flight slot. Invoked from the link's sent
// callback and never blocks. Completing with no waiter banks one credit,
// so a confirmation that arrives after its send timed out lets the next
// send proceed immediately.
func (s *Sender) Complete() {
	select {
	case s.done <- struct{}{}:
	default:
	}
}

package sermux

// Peer is one connected wireless remote, produced by a link listener and
// consumed by the bridge through the session registry.
type Peer interface {
	// Addr returns a stable identifier for the remote (a BLE address, an
	// ip:port, a pipe name). It is the registry handle for the session.
	Addr() string

	// Name returns the display name the peer announced, or "".
	Name() string

	// Send starts an outbound write. Completion is reported asynchronously
	// through Handler.PeerSent. The slice must not be retained after the
	// call returns.
	Send(p []byte) error

	Close() error
}

// Handler receives link lifecycle and data callbacks; the Bridge implements
// it. Links invoke callbacks from their own goroutines and must never call
// PeerClosed synchronously from inside a Send, or teardown can deadlock
// against a borrowed session slot.
type Handler interface {
	// PeerConnected reports an established session. Returning an error
	// rejects the peer and the link closes it without further callbacks.
	PeerConnected(p Peer) error

	// PeerReady reports that the application data channel is usable. The
	// bridge answers with the address registration record.
	PeerReady(p Peer)

	// PeerData delivers inbound bytes. The slice is only valid for the
	// duration of the call.
	PeerData(p Peer, data []byte)

	// PeerSent reports completion of the oldest outstanding Send.
	PeerSent(p Peer, err error)

	// PeerClosed reports that the peer is gone, with the terminal error if
	// the link failed rather than closed cleanly.
	PeerClosed(p Peer, err error)
}

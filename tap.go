package sermux

import "time"

// TapKind classifies a bridge activity observation.
type TapKind int

const (
	// TapSerialRecord is a completed inbound record from the serial line.
	TapSerialRecord TapKind = iota
	// TapSerialOut is a record handed to the serial transmitter.
	TapSerialOut
	// TapPeerData is a raw inbound blob from a peer, before reassembly.
	TapPeerData
	// TapDeliver is a record delivered to one session.
	TapDeliver
	// TapSessionUp is a session entering the registry.
	TapSessionUp
	// TapSessionDown is a session leaving the registry.
	TapSessionDown
)

func (k TapKind) String() string {
	switch k {
	case TapSerialRecord:
		return "serial-record"
	case TapSerialOut:
		return "serial-out"
	case TapPeerData:
		return "peer-data"
	case TapDeliver:
		return "deliver"
	case TapSessionUp:
		return "session-up"
	case TapSessionDown:
		return "session-down"
	default:
		return "unknown"
	}
}

// TapEvent is a non-blocking observation of bridge activity, consumed by
// the interactive console and by tests. Data is a copy and safe to retain.
type TapEvent struct {
	Kind TapKind
	Addr int    // session slot, -1 when not applicable
	Peer string // peer handle, "" when not applicable
	Data []byte
	Err  error
	At   time.Time
}

// TapFunc receives tap events on bridge goroutines and must not block.
type TapFunc func(TapEvent)

func tapEmit(tap TapFunc, kind TapKind, addr int, peer string, data []byte, err error) {
	if tap == nil {
		return
	}
	var cp []byte
	if len(data) > 0 {
		cp = append([]byte(nil), data...)
	}
	tap(TapEvent{Kind: kind, Addr: addr, Peer: peer, Data: cp, Err: err, At: time.Now()})
}

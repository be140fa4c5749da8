package link

import (
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Version is the stream wire protocol revision. Bumped on incompatible
// frame or hello changes.
const Version = 1

// Hello is the opening frame of every stream connection. The peer
// announces itself before any record flows; BLE peers are exempt since
// the GATT service discovery already identifies them.
type Hello struct {
	Version uint8  `cbor:"v"`
	Name    string `cbor:"name,omitempty"`
}

var helloEnc = mustEncMode()

func mustEncMode() cbor.EncMode {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

// SendHello writes the opening frame.
func SendHello(w io.Writer, name string) error {
	b, err := helloEnc.Marshal(Hello{Version: Version, Name: name})
	if err != nil {
		return fmt.Errorf("encoding hello: %w", err)
	}
	return WriteFrame(w, b)
}

type deadlineReader interface {
	SetReadDeadline(t time.Time) error
}

// AwaitHello reads and validates the opening frame. The timeout applies
// when the transport supports read deadlines; all the stream transports
// here do.
func AwaitHello(r io.Reader, timeout time.Duration, maxFrame int) (Hello, error) {
	if dr, ok := r.(deadlineReader); ok && timeout > 0 {
		_ = dr.SetReadDeadline(time.Now().Add(timeout))
		defer func() { _ = dr.SetReadDeadline(time.Time{}) }()
	}
	b, err := ReadFrame(r, maxFrame)
	if err != nil {
		return Hello{}, fmt.Errorf("reading hello: %w", err)
	}
	var h Hello
	if err := cbor.Unmarshal(b, &h); err != nil {
		return Hello{}, fmt.Errorf("decoding hello: %w", err)
	}
	if h.Version != Version {
		return Hello{}, fmt.Errorf("%w: peer speaks v%d, this side speaks v%d",
			ErrVersionMismatch, h.Version, Version)
	}
	return h, nil
}

package link

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Stream transports exchange length-prefixed frames: a 4-byte little
// endian payload length followed by the payload. Frame boundaries carry
// the record boundaries of the bridge across byte-stream transports.

// WriteFrame writes one frame.
func WriteFrame(w io.Writer, p []byte) error {
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(p)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(p)
	return err
}

// ReadFrame reads one frame, rejecting payloads larger than max.
func ReadFrame(r io.Reader, max int) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(hdr[:])
	if int(n) > max {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooBig, n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

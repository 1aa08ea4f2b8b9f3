// Package framing implements the length-prefixed message framing this
// codebase uses elsewhere for stream-oriented protocols: a 4-byte
// big-endian length prefix followed by the payload.
package framing

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single frame's payload, guarding a reader against
// an unbounded allocation from a corrupt or hostile length prefix.
const MaxFrameSize = 4 << 20 // 4 MiB

// WriteFrame writes a length-prefixed frame containing data.
func WriteFrame(w io.Writer, data []byte) error {
	if len(data) > MaxFrameSize {
		return fmt.Errorf("framing: frame of %d bytes exceeds max %d", len(data), MaxFrameSize)
	}
	var lengthBytes [4]byte
	binary.BigEndian.PutUint32(lengthBytes[:], uint32(len(data)))
	if _, err := w.Write(lengthBytes[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// ReadFrame reads one length-prefixed frame from r.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lengthBytes [4]byte
	if _, err := io.ReadFull(r, lengthBytes[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lengthBytes[:])
	if length > MaxFrameSize {
		return nil, fmt.Errorf("framing: declared frame size %d exceeds max %d", length, MaxFrameSize)
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}

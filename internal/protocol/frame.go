// Package protocol implements the Lantern wire format: length-prefixed UTF-8
// text frames and the bracket-verb messages carried inside them.
//
// A frame on the wire is a 4-byte big-endian payload length followed by that
// many bytes of UTF-8 text. The codec knows nothing about chat semantics.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/dmitrijs2005/lantern/internal/common"
)

// MaxFrameBytes is the hard cap on a single frame payload. A declared length
// above this is treated as a fatal stream error, never allocated.
const MaxFrameBytes = 10 * 1024 * 1024

// Conn wraps a net.Conn with frame encoding and decoding. A mutex serializes
// concurrent writers so interleaved broadcast and direct replies cannot
// corrupt the stream. Reads are expected from a single goroutine (the
// connection worker owns the receive loop).
type Conn struct {
	nc  net.Conn
	wmu sync.Mutex
}

func NewConn(nc net.Conn) *Conn {
	return &Conn{nc: nc}
}

// WriteFrame encodes text as a single length-prefixed frame and writes it.
// Any write error means the peer is gone as far as the caller is concerned.
func (c *Conn) WriteFrame(text string) error {
	payload := []byte(text)
	if len(payload) > MaxFrameBytes {
		return fmt.Errorf("%w: %d bytes", common.ErrFrameTooLarge, len(payload))
	}

	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(payload)))
	copy(buf[4:], payload)

	c.wmu.Lock()
	defer c.wmu.Unlock()

	if _, err := c.nc.Write(buf); err != nil {
		return fmt.Errorf("%w: %v", common.ErrStreamClosed, err)
	}
	return nil
}

// ReadFrame blocks until a full frame arrives and returns its text.
// It returns common.ErrStreamClosed when the peer closes the stream and
// common.ErrFrameTooLarge when the declared length exceeds MaxFrameBytes;
// both are fatal, the caller must close the connection.
func (c *Conn) ReadFrame() (string, error) {
	var header [4]byte
	if _, err := io.ReadFull(c.nc, header[:]); err != nil {
		return "", streamErr(err)
	}

	length := binary.BigEndian.Uint32(header[:])
	if length > MaxFrameBytes {
		return "", fmt.Errorf("%w: declared %d bytes", common.ErrFrameTooLarge, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(c.nc, payload); err != nil {
		return "", streamErr(err)
	}
	return string(payload), nil
}

func (c *Conn) Close() error {
	return c.nc.Close()
}

// RemoteAddr returns the peer address, used for logging.
func (c *Conn) RemoteAddr() string {
	return c.nc.RemoteAddr().String()
}

func streamErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return common.ErrStreamClosed
	}
	return fmt.Errorf("%w: %v", common.ErrStreamClosed, err)
}

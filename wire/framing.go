package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/wykurz/rcp-sub001/fserr"
)

// MaxMessageSize bounds a single frame's payload, guarding against a
// corrupt or adversarial length prefix causing an unbounded allocation.
const MaxMessageSize = 64 << 20 // 64 MiB

// WriteHello sends the fixed stream preamble.
func WriteHello(w io.Writer) error {
	_, err := io.WriteString(w, HelloStream)
	if err != nil {
		return fserr.Transport("write-hello", "", err)
	}
	return nil
}

// ReadHello reads and validates the stream preamble.
func ReadHello(r io.Reader) error {
	buf := make([]byte, len(HelloStream))
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.EOF {
			// closed before its first frame: as clean as a close at a
			// frame boundary.
			return io.EOF
		}
		return fserr.Transport("read-hello", "", err)
	}
	if string(buf) != HelloStream {
		return fserr.Protocol("read-hello", "", fmt.Errorf("unexpected preamble %q", buf))
	}
	return nil
}

// WriteMessage CBOR-encodes m and writes it as one 4-byte-big-endian
// length-prefixed frame.
func WriteMessage(w io.Writer, m *Message) error {
	payload, err := cbor.Marshal(m)
	if err != nil {
		return fserr.Protocol("encode", "", err)
	}
	if len(payload) > MaxMessageSize {
		return fserr.Protocol("encode", "", fmt.Errorf("message of %d bytes exceeds MaxMessageSize", len(payload)))
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fserr.Transport("write-frame-len", "", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fserr.Transport("write-frame-body", "", err)
	}
	return nil
}

// ReadMessage reads one 4-byte-big-endian length-prefixed frame and
// CBOR-decodes it into a Message. A decode failure is a Protocol error:
// per spec.md §7, it poisons only the owning stream, not the whole
// connection.
func ReadMessage(r io.Reader) (*Message, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.EOF {
			// clean close at a frame boundary: the stream is done, not broken.
			return nil, io.EOF
		}
		return nil, fserr.Transport("read-frame-len", "", err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxMessageSize {
		return nil, fserr.Protocol("read-frame-len", "", fmt.Errorf("frame of %d bytes exceeds MaxMessageSize", n))
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fserr.Transport("read-frame-body", "", err)
	}
	var m Message
	if err := cbor.Unmarshal(payload, &m); err != nil {
		return nil, fserr.Protocol("decode", "", err)
	}
	return &m, nil
}

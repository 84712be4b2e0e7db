package wire

import "io"

// SendStream wraps an io.Writer (one side of a transport.Conn stream)
// with the HELLO_STREAM preamble and framed message writes. The preamble
// is sent lazily, on the first WriteMessage call, so constructing a
// SendStream never blocks or fails on its own.
//
// Grounded on rcpd/src/streams.rs's SendStream, which likewise defers the
// hello handshake to the first real send.
type SendStream struct {
	w         io.Writer
	helloSent bool
}

// NewSendStream wraps w.
func NewSendStream(w io.Writer) *SendStream { return &SendStream{w: w} }

// WriteMessage sends m, writing the hello preamble first if this is the
// stream's first message.
func (s *SendStream) WriteMessage(m *Message) error {
	if !s.helloSent {
		if err := WriteHello(s.w); err != nil {
			return err
		}
		s.helloSent = true
	}
	return WriteMessage(s.w, m)
}

// RecvStream wraps an io.Reader, validating the HELLO_STREAM preamble
// before the first message is read.
type RecvStream struct {
	r             io.Reader
	helloReceived bool
}

// NewRecvStream wraps r.
func NewRecvStream(r io.Reader) *RecvStream { return &RecvStream{r: r} }

// ReadMessage reads the next message, first consuming and validating the
// hello preamble if this is the stream's first read. Returns io.EOF once
// the peer has cleanly closed the stream at a frame boundary.
func (s *RecvStream) ReadMessage() (*Message, error) {
	if !s.helloReceived {
		if err := ReadHello(s.r); err != nil {
			return nil, err
		}
		s.helloReceived = true
	}
	return ReadMessage(s.r)
}

// Reader exposes the underlying byte stream, for reading the raw file
// content that immediately follows a File FsObject frame.
func (s *RecvStream) Reader() io.Reader { return s.r }

// Writer exposes the underlying byte stream, for writing the raw file
// content that immediately follows a File FsObject frame.
func (s *SendStream) Writer() io.Writer { return s.w }

package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Message is a typed wire message. Implementations marshal their own
// payload; the codec owns the frame header.
type Message interface {
	Symbol() int64
	MarshalPayload() ([]byte, error)
	UnmarshalPayload(data []byte) error
}

// UnknownMessage carries a frame whose type symbol has no registered
// factory. It is reported to the owning service rather than treated as
// a framing failure; the service decides whether to disconnect.
type UnknownMessage struct {
	TypeSymbol int64
	Payload    []byte
}

func (m *UnknownMessage) Symbol() int64 { return m.TypeSymbol }

func (m *UnknownMessage) MarshalPayload() ([]byte, error) { return m.Payload, nil }

func (m *UnknownMessage) UnmarshalPayload(data []byte) error {
	m.Payload = append([]byte(nil), data...)
	return nil
}

// factories maps message type symbols to constructors. Populated at
// init time by messages.go; append-only thereafter.
var factories = map[int64]func() Message{}

// register binds a type symbol to a message constructor.
func register(symbol int64, factory func() Message) {
	if _, ok := factories[symbol]; ok {
		panic(fmt.Sprintf("duplicate message symbol 0x%X", symbol))
	}
	factories[symbol] = factory
}

// New returns a fresh message value for a type symbol, or nil if the
// symbol is unknown.
func New(symbol int64) Message {
	if factory, ok := factories[symbol]; ok {
		return factory()
	}
	return nil
}

// TypeName returns a readable name for a message type symbol, for
// logging and diagnostics.
func TypeName(symbol int64) string {
	if factory, ok := factories[symbol]; ok {
		return fmt.Sprintf("%T", factory())
	}
	return fmt.Sprintf("unknown(0x%X)", symbol)
}

// Encode serializes a message into a single wire frame.
func Encode(msg Message) ([]byte, error) {
	payload, err := msg.MarshalPayload()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload for 0x%X: %w", msg.Symbol(), err)
	}
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("payload too large: %d bytes (max %d)", len(payload), MaxPayloadSize)
	}

	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize+len(payload)))
	binary.Write(buf, binary.LittleEndian, FrameMagic)
	binary.Write(buf, binary.LittleEndian, msg.Symbol())
	binary.Write(buf, binary.LittleEndian, uint64(len(payload)))
	buf.Write(payload)
	return buf.Bytes(), nil
}

// Decoder frames an incremental byte stream into typed messages.
// Feed appends raw connection bytes; Next yields fully-framed messages
// in arrival order, returning (nil, nil) when more bytes are needed.
// The decoder is restartable across arbitrary split points.
type Decoder struct {
	buf bytes.Buffer
}

// Feed appends raw bytes from the connection.
func (d *Decoder) Feed(p []byte) {
	d.buf.Write(p)
}

// Buffered returns the number of bytes awaiting framing.
func (d *Decoder) Buffered() int {
	return d.buf.Len()
}

// Next returns the next complete message, (nil, nil) if the buffer does
// not yet hold a complete frame, or a *FramingError on stream desync.
func (d *Decoder) Next() (Message, error) {
	if d.buf.Len() < HeaderSize {
		return nil, nil
	}

	header := d.buf.Bytes()[:HeaderSize]
	magic := binary.LittleEndian.Uint64(header[0:8])
	if magic != FrameMagic {
		return nil, &FramingError{Reason: fmt.Sprintf("bad magic 0x%016X", magic)}
	}

	symbol := int64(binary.LittleEndian.Uint64(header[8:16]))
	length := binary.LittleEndian.Uint64(header[16:24])
	if length > MaxPayloadSize {
		return nil, &FramingError{Reason: fmt.Sprintf("payload length %d exceeds limit", length)}
	}

	if uint64(d.buf.Len()) < HeaderSize+length {
		return nil, nil
	}

	// Consume the frame.
	frame := make([]byte, HeaderSize+length)
	io.ReadFull(&d.buf, frame)
	payload := frame[HeaderSize:]

	msg := New(symbol)
	if msg == nil {
		unknown := &UnknownMessage{TypeSymbol: symbol}
		unknown.UnmarshalPayload(payload)
		return unknown, nil
	}
	if err := msg.UnmarshalPayload(payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", TypeName(symbol), err)
	}
	return msg, nil
}

// fieldWriter builds message payloads in little-endian order. The
// first field error sticks and is reported by Done.
type fieldWriter struct {
	buf bytes.Buffer
	err error
}

func (w *fieldWriter) Uint8(v uint8)   { w.buf.WriteByte(v) }
func (w *fieldWriter) Uint16(v uint16) { binary.Write(&w.buf, binary.LittleEndian, v) }
func (w *fieldWriter) Uint64(v uint64) { binary.Write(&w.buf, binary.LittleEndian, v) }
func (w *fieldWriter) Int16(v int16)   { binary.Write(&w.buf, binary.LittleEndian, v) }
func (w *fieldWriter) Int64(v int64)   { binary.Write(&w.buf, binary.LittleEndian, v) }

func (w *fieldWriter) Bool(v bool) {
	if v {
		w.buf.WriteByte(1)
	} else {
		w.buf.WriteByte(0)
	}
}

// String writes a 2-byte length prefix followed by the raw bytes.
func (w *fieldWriter) String(s string) {
	data := []byte(s)
	if len(data) > 0xFFFF {
		if w.err == nil {
			w.err = fmt.Errorf("string field too long: %d bytes (max %d)", len(data), 0xFFFF)
		}
		return
	}
	binary.Write(&w.buf, binary.LittleEndian, uint16(len(data)))
	w.buf.Write(data)
}

// Bytes writes a 4-byte length prefix followed by the raw bytes.
func (w *fieldWriter) Bytes(p []byte) {
	binary.Write(&w.buf, binary.LittleEndian, uint32(len(p)))
	w.buf.Write(p)
}

func (w *fieldWriter) Done() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	return w.buf.Bytes(), nil
}

// fieldReader parses message payloads written by fieldWriter.
type fieldReader struct {
	r *bytes.Reader
}

func newFieldReader(data []byte) *fieldReader {
	return &fieldReader{r: bytes.NewReader(data)}
}

func (r *fieldReader) Uint8() (uint8, error) {
	return r.r.ReadByte()
}

func (r *fieldReader) Uint16() (uint16, error) {
	var v uint16
	err := binary.Read(r.r, binary.LittleEndian, &v)
	return v, err
}

func (r *fieldReader) Uint64() (uint64, error) {
	var v uint64
	err := binary.Read(r.r, binary.LittleEndian, &v)
	return v, err
}

func (r *fieldReader) Int16() (int16, error) {
	var v int16
	err := binary.Read(r.r, binary.LittleEndian, &v)
	return v, err
}

func (r *fieldReader) Int64() (int64, error) {
	var v int64
	err := binary.Read(r.r, binary.LittleEndian, &v)
	return v, err
}

func (r *fieldReader) Bool() (bool, error) {
	b, err := r.r.ReadByte()
	return b == 1, err
}

func (r *fieldReader) String() (string, error) {
	length, err := r.Uint16()
	if err != nil {
		return "", err
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func (r *fieldReader) Bytes() ([]byte, error) {
	var length uint32
	if err := binary.Read(r.r, binary.LittleEndian, &length); err != nil {
		return nil, err
	}
	if uint64(length) > MaxPayloadSize {
		return nil, fmt.Errorf("byte field length %d exceeds limit", length)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

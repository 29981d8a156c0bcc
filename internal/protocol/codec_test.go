package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func encodeOrFail(t *testing.T, msg Message) []byte {
	t.Helper()
	data, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	return data
}

func TestDecoder_SingleFrame(t *testing.T) {
	frame := encodeOrFail(t, &LoginRequest{
		UserID:      "OVR-ORG-3963667097037078",
		DisplayName: "arena_ghost",
		AuthToken:   "t0ken",
	})

	var d Decoder
	d.Feed(frame)

	msg, err := d.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	req, ok := msg.(*LoginRequest)
	if !ok {
		t.Fatalf("expected *LoginRequest, got %T", msg)
	}
	if req.UserID != "OVR-ORG-3963667097037078" || req.DisplayName != "arena_ghost" {
		t.Errorf("round trip mismatch: %+v", req)
	}

	if msg, err := d.Next(); msg != nil || err != nil {
		t.Errorf("expected empty decoder, got %v, %v", msg, err)
	}
}

func TestDecoder_PartialReads(t *testing.T) {
	first := encodeOrFail(t, &FindSessionRequest{
		VersionLock:  42,
		LobbyType:    0,
		RegionSymbol: 7,
		Channel:      "na-east",
		Team:         1,
	})
	second := encodeOrFail(t, &SessionLockNotify{Locked: true})
	stream := append(append([]byte{}, first...), second...)

	// Feed the stream one byte at a time; the decoder must yield both
	// messages, in order, regardless of split points.
	var d Decoder
	var got []Message
	for _, b := range stream {
		d.Feed([]byte{b})
		for {
			msg, err := d.Next()
			if err != nil {
				t.Fatalf("Next failed mid-stream: %v", err)
			}
			if msg == nil {
				break
			}
			got = append(got, msg)
		}
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got))
	}
	if _, ok := got[0].(*FindSessionRequest); !ok {
		t.Errorf("first message is %T, want *FindSessionRequest", got[0])
	}
	if lock, ok := got[1].(*SessionLockNotify); !ok || !lock.Locked {
		t.Errorf("second message is %T (%+v), want locked *SessionLockNotify", got[1], got[1])
	}
	if d.Buffered() != 0 {
		t.Errorf("decoder retained %d stray bytes", d.Buffered())
	}
}

func TestDecoder_MultipleFramesOneFeed(t *testing.T) {
	var stream []byte
	for i := 0; i < 5; i++ {
		stream = append(stream, encodeOrFail(t, &PlayerLeaveNotify{SlotID: "slot"})...)
	}

	var d Decoder
	d.Feed(stream)

	count := 0
	for {
		msg, err := d.Next()
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if msg == nil {
			break
		}
		count++
	}
	if count != 5 {
		t.Errorf("expected 5 messages from one feed, got %d", count)
	}
}

func TestDecoder_UnknownSymbol(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, FrameMagic)
	binary.Write(&buf, binary.LittleEndian, int64(0x7EAC0FFEE))
	binary.Write(&buf, binary.LittleEndian, uint64(3))
	buf.Write([]byte{1, 2, 3})

	var d Decoder
	d.Feed(buf.Bytes())

	msg, err := d.Next()
	if err != nil {
		t.Fatalf("unknown symbol must not be a decode error, got %v", err)
	}
	unknown, ok := msg.(*UnknownMessage)
	if !ok {
		t.Fatalf("expected *UnknownMessage, got %T", msg)
	}
	if unknown.TypeSymbol != 0x7EAC0FFEE || !bytes.Equal(unknown.Payload, []byte{1, 2, 3}) {
		t.Errorf("unknown message mismatch: %+v", unknown)
	}
}

func TestDecoder_BadMagic(t *testing.T) {
	var d Decoder
	d.Feed(bytes.Repeat([]byte{0xAA}, HeaderSize))

	_, err := d.Next()
	var framingErr *FramingError
	if !errors.As(err, &framingErr) {
		t.Fatalf("expected *FramingError, got %v", err)
	}
}

func TestDecoder_OversizedLength(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, FrameMagic)
	binary.Write(&buf, binary.LittleEndian, SymLoginRequest)
	binary.Write(&buf, binary.LittleEndian, uint64(MaxPayloadSize+1))

	var d Decoder
	d.Feed(buf.Bytes())

	_, err := d.Next()
	var framingErr *FramingError
	if !errors.As(err, &framingErr) {
		t.Fatalf("expected *FramingError for oversized payload, got %v", err)
	}
}

func TestEncode_OversizedStringField(t *testing.T) {
	long := string(bytes.Repeat([]byte{'x'}, 0x10000))
	if _, err := Encode(&LoginRequest{UserID: long}); err == nil {
		t.Fatal("expected encode error for a string field over 64 KiB")
	}

	// The boundary value still round-trips intact.
	max := string(bytes.Repeat([]byte{'y'}, 0xFFFF))
	frame := encodeOrFail(t, &LoginRequest{UserID: max})

	var d Decoder
	d.Feed(frame)
	msg, err := d.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if req := msg.(*LoginRequest); req.UserID != max {
		t.Errorf("boundary string altered: len=%d", len(req.UserID))
	}
}

func TestMessages_RegistrationRoundTrip(t *testing.T) {
	in := &RegistrationRequest{
		ServerID:        0xDEAD1234,
		InternalAddress: "10.4.1.9",
		Port:            6792,
		RegionSymbol:    -8574989332239157648,
		VersionLock:     0x6BB7D7F9,
	}

	var d Decoder
	d.Feed(encodeOrFail(t, in))
	msg, err := d.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	out, ok := msg.(*RegistrationRequest)
	if !ok {
		t.Fatalf("expected *RegistrationRequest, got %T", msg)
	}
	if *out != *in {
		t.Errorf("round trip mismatch:\n in: %+v\nout: %+v", in, out)
	}
}

func TestMessages_SessionStartNegativeTarget(t *testing.T) {
	in := &SessionStartNotify{
		SessionID:      "0f2b8a1c-9f33-4c8e-91f2-54b7c1d0aa01",
		LobbyType:      1,
		LevelSymbol:    99,
		GameTypeSymbol: 301,
		Channel:        "social-lobby",
		PlayerLimit:    12,
		ActiveTarget:   -1,
	}

	var d Decoder
	d.Feed(encodeOrFail(t, in))
	msg, err := d.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	out := msg.(*SessionStartNotify)
	if out.ActiveTarget != -1 {
		t.Errorf("ActiveTarget = %d, want -1", out.ActiveTarget)
	}
	if *out != *in {
		t.Errorf("round trip mismatch:\n in: %+v\nout: %+v", in, out)
	}
}

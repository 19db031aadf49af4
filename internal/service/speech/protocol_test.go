package speech

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeAudioFrame(t *testing.T) {
	frame := NewAudioFrame([]byte("pcm-chunk"), 7, false, CompressNone)

	decoded, err := DecodeFrame(bytes.NewReader(EncodeFrame(frame)))
	if err != nil {
		t.Fatalf("DecodeFrame err: %v", err)
	}
	if decoded.Header.Type != FrameClientAudio {
		t.Fatalf("unexpected type %d", decoded.Header.Type)
	}
	if decoded.Sequence != 7 || decoded.IsLast() {
		t.Fatalf("unexpected sequence state: seq=%d last=%v", decoded.Sequence, decoded.IsLast())
	}
	if string(decoded.Payload) != "pcm-chunk" {
		t.Fatalf("unexpected payload %q", decoded.Payload)
	}
}

func TestLastAudioFrameNegatesSequence(t *testing.T) {
	frame := NewAudioFrame(nil, 5, true, CompressGzip)
	if frame.Sequence != -5 {
		t.Fatalf("expected -5, got %d", frame.Sequence)
	}

	decoded, err := DecodeFrame(bytes.NewReader(EncodeFrame(frame)))
	if err != nil {
		t.Fatalf("DecodeFrame err: %v", err)
	}
	if !decoded.IsLast() || decoded.Sequence != -5 {
		t.Fatalf("expected last frame with -5, got last=%v seq=%d", decoded.IsLast(), decoded.Sequence)
	}
	if decoded.Header.Compression != CompressGzip {
		t.Fatalf("compression flag lost")
	}
}

func TestConfigFrameHasNoSequence(t *testing.T) {
	raw := EncodeFrame(NewConfigFrame([]byte(`{}`), CompressNone))
	// header(4) + size(4) + payload(2)
	if len(raw) != 10 {
		t.Fatalf("unexpected encoded length %d", len(raw))
	}
	if raw[0] != 0x11 || raw[1] != 0x10 || raw[2] != 0x10 {
		t.Fatalf("unexpected header bytes % x", raw[:4])
	}
}

func TestDecodeErrorFrame(t *testing.T) {
	frame := &Frame{
		Header:    newFrameHeader(FrameServerError, FlagNoSequence, SerializeJSON, CompressNone),
		ErrorCode: 45000001,
		Payload:   []byte("bad request"),
	}

	decoded, err := DecodeFrame(bytes.NewReader(EncodeFrame(frame)))
	if err != nil {
		t.Fatalf("DecodeFrame err: %v", err)
	}
	if decoded.ErrorCode != 45000001 || string(decoded.Payload) != "bad request" {
		t.Fatalf("unexpected error frame %+v", decoded)
	}
}

func TestDecodeFrameRejectsBadInput(t *testing.T) {
	cases := map[string][]byte{
		"short header":  {0x11, 0x10},
		"bad version":   {0x21, 0x10, 0x10, 0x00, 0, 0, 0, 0},
		"short payload": {0x11, 0x10, 0x10, 0x00, 0, 0, 0, 9, 'a'},
	}
	for name, raw := range cases {
		if _, err := DecodeFrame(bytes.NewReader(raw)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestCompressionRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("brake noise "), 50)

	compressed, err := compressPayload(data, CompressGzip)
	if err != nil {
		t.Fatalf("compress err: %v", err)
	}
	if len(compressed) >= len(data) {
		t.Fatalf("expected gzip to shrink repetitive payload")
	}
	restored, err := decompressPayload(compressed, CompressGzip)
	if err != nil {
		t.Fatalf("decompress err: %v", err)
	}
	if !bytes.Equal(restored, data) {
		t.Fatal("payload mismatch after round trip")
	}

	if _, err := compressPayload(data, Compression(9)); err == nil {
		t.Fatal("expected error for unknown compression")
	}
}

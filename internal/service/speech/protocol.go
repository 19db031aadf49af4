package speech

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// frameVersion is the only binary protocol version the ASR gateway speaks.
const frameVersion = 0b0001

// FrameType 二进制帧类型
type FrameType uint8

const (
	FrameClientConfig FrameType = 0b0001 // 首帧：JSON 识别参数
	FrameClientAudio  FrameType = 0b0010 // 音频分包
	FrameServerResult FrameType = 0b1001 // 识别结果
	FrameServerAck    FrameType = 0b1011
	FrameServerError  FrameType = 0b1111
)

// FrameFlags 描述 header 之后是否携带序号以及是否为最后一包。
type FrameFlags uint8

const (
	FlagNoSequence       FrameFlags = 0b0000
	FlagSequence         FrameFlags = 0b0001
	FlagLastNoSequence   FrameFlags = 0b0010
	FlagLastWithSequence FrameFlags = 0b0011
)

// Serialization of the frame payload.
type Serialization uint8

const (
	SerializeRaw  Serialization = 0b0000
	SerializeJSON Serialization = 0b0001
)

// Compression of the frame payload.
type Compression uint8

const (
	CompressNone Compression = 0b0000
	CompressGzip Compression = 0b0001
)

// FrameHeader is the fixed four-byte prefix of every frame.
type FrameHeader struct {
	Version       uint8
	Size          uint8 // header length in 4-byte words
	Type          FrameType
	Flags         FrameFlags
	Serialization Serialization
	Compression   Compression
	Reserved      uint8
}

// Frame is one decoded protocol message.
type Frame struct {
	Header    FrameHeader
	Sequence  int32
	ErrorCode uint32
	Payload   []byte
}

func newFrameHeader(kind FrameType, flags FrameFlags, serialization Serialization, compression Compression) FrameHeader {
	return FrameHeader{
		Version:       frameVersion,
		Size:          1,
		Type:          kind,
		Flags:         flags,
		Serialization: serialization,
		Compression:   compression,
	}
}

func (h FrameHeader) encode() [4]byte {
	return [4]byte{
		h.Version<<4 | h.Size,
		uint8(h.Type)<<4 | uint8(h.Flags),
		uint8(h.Serialization)<<4 | uint8(h.Compression),
		h.Reserved,
	}
}

func decodeFrameHeader(raw [4]byte) (FrameHeader, error) {
	h := FrameHeader{
		Version:       raw[0] >> 4,
		Size:          raw[0] & 0x0F,
		Type:          FrameType(raw[1] >> 4),
		Flags:         FrameFlags(raw[1] & 0x0F),
		Serialization: Serialization(raw[2] >> 4),
		Compression:   Compression(raw[2] & 0x0F),
		Reserved:      raw[3],
	}
	if h.Version != frameVersion {
		return FrameHeader{}, fmt.Errorf("unsupported frame version: %d", h.Version)
	}
	if h.Size == 0 {
		return FrameHeader{}, fmt.Errorf("invalid header size 0")
	}
	return h, nil
}

func (f *Frame) hasSequence() bool {
	switch f.Header.Flags & 0b0011 {
	case FlagSequence, FlagLastWithSequence:
		return true
	default:
		return false
	}
}

// IsLast reports whether the frame closes the stream.
func (f *Frame) IsLast() bool {
	switch f.Header.Flags & 0b0011 {
	case FlagLastNoSequence, FlagLastWithSequence:
		return true
	default:
		return false
	}
}

// EncodeFrame serialises a frame: header, optional sequence, payload size,
// payload. All integers are big-endian.
func EncodeFrame(f *Frame) []byte {
	var buf bytes.Buffer
	header := f.Header.encode()
	buf.Write(header[:])

	if f.hasSequence() {
		_ = binary.Write(&buf, binary.BigEndian, f.Sequence)
	}
	if f.Header.Type == FrameServerError {
		_ = binary.Write(&buf, binary.BigEndian, f.ErrorCode)
	}
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(f.Payload)))
	buf.Write(f.Payload)

	return buf.Bytes()
}

// DecodeFrame parses one frame from r.
func DecodeFrame(r io.Reader) (*Frame, error) {
	var raw [4]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return nil, fmt.Errorf("read frame header: %w", err)
	}
	header, err := decodeFrameHeader(raw)
	if err != nil {
		return nil, err
	}

	// header extensions are skipped, nothing in them is used
	if extra := int(header.Size)*4 - 4; extra > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(extra)); err != nil {
			return nil, fmt.Errorf("read header extension: %w", err)
		}
	}

	frame := &Frame{Header: header}
	if frame.hasSequence() {
		if err := binary.Read(r, binary.BigEndian, &frame.Sequence); err != nil {
			return nil, fmt.Errorf("read sequence: %w", err)
		}
	}
	if header.Type == FrameServerError {
		if err := binary.Read(r, binary.BigEndian, &frame.ErrorCode); err != nil {
			return nil, fmt.Errorf("read error code: %w", err)
		}
	}

	var size uint32
	if err := binary.Read(r, binary.BigEndian, &size); err != nil {
		return nil, fmt.Errorf("read payload size: %w", err)
	}
	if size > 0 {
		frame.Payload = make([]byte, size)
		if _, err := io.ReadFull(r, frame.Payload); err != nil {
			return nil, fmt.Errorf("read payload (%d bytes): %w", size, err)
		}
	}
	return frame, nil
}

// NewConfigFrame builds the first client frame carrying the JSON parameters.
func NewConfigFrame(payload []byte, compression Compression) *Frame {
	return &Frame{
		Header:  newFrameHeader(FrameClientConfig, FlagNoSequence, SerializeJSON, compression),
		Payload: payload,
	}
}

// NewAudioFrame builds an audio chunk frame. The last chunk carries the
// negated sequence number.
func NewAudioFrame(chunk []byte, sequence int32, last bool, compression Compression) *Frame {
	flags := FlagSequence
	if last {
		flags = FlagLastWithSequence
		sequence = -sequence
	}
	return &Frame{
		Header:   newFrameHeader(FrameClientAudio, flags, SerializeRaw, compression),
		Sequence: sequence,
		Payload:  chunk,
	}
}

package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	speechmodel "github.com/zhouzirui/vehicle-assist/backend/internal/model/speech"
)

// fakeASRGateway reads the config frame and every audio frame, then replies
// with the given server frame.
func fakeASRGateway(t *testing.T, reply func() *Frame) (*httptest.Server, <-chan []byte) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	received := make(chan []byte, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-App-Key") != "app" || r.Header.Get("X-Api-Access-Key") != "token" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var gotAudio bytes.Buffer
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			frame, err := DecodeFrame(bytes.NewReader(data))
			if err != nil {
				return
			}
			if frame.Header.Type == FrameClientAudio {
				chunk, _ := decompressPayload(frame.Payload, frame.Header.Compression)
				gotAudio.Write(chunk)
				if frame.IsLast() {
					break
				}
			}
		}
		received <- gotAudio.Bytes()
		_ = conn.WriteMessage(websocket.BinaryMessage, EncodeFrame(reply()))
	}))
	return server, received
}

func resultFrame(t *testing.T, text string) *Frame {
	t.Helper()
	body, _ := json.Marshal(map[string]any{
		"result":     map[string]any{"text": text},
		"audio_info": map[string]any{"duration": 1200},
	})
	payload, err := compressPayload(body, CompressGzip)
	if err != nil {
		t.Fatalf("compress err: %v", err)
	}
	return &Frame{
		Header:   newFrameHeader(FrameServerResult, FlagLastWithSequence, SerializeJSON, CompressGzip),
		Sequence: -3,
		Payload:  payload,
	}
}

func newTestASR(endpoint string) *VolcengineASR {
	client := NewVolcengineASR(&speechmodel.ASRConfig{
		AppID:       "app",
		AccessToken: "token",
		Endpoint:    endpoint,
		Timeout:     5,
	})
	client.chunkInterval = 0
	return client
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestVolcengineASRTranscribe(t *testing.T) {
	server, received := fakeASRGateway(t, func() *Frame { return resultFrame(t, "brakes squeal at low speed") })
	defer server.Close()

	audio := bytes.Repeat([]byte{0x01}, asrChunkBytes*2+100)
	got, err := newTestASR(wsURL(server)).Transcribe(context.Background(), speechmodel.Audio{SessionID: "s1", Data: audio})
	if err != nil {
		t.Fatalf("Transcribe err: %v", err)
	}
	if got.Text != "brakes squeal at low speed" || got.Duration != 1200 {
		t.Fatalf("unexpected transcript %+v", got)
	}
	if gotAudio := <-received; !bytes.Equal(gotAudio, audio) {
		t.Fatalf("gateway received %d bytes, want %d", len(gotAudio), len(audio))
	}
}

func TestVolcengineASREmptyTranscriptFails(t *testing.T) {
	server, _ := fakeASRGateway(t, func() *Frame { return resultFrame(t, "  ") })
	defer server.Close()

	_, err := newTestASR(wsURL(server)).Transcribe(context.Background(), speechmodel.Audio{SessionID: "s1", Data: []byte{1}})
	if !errors.Is(err, ErrTranscription) {
		t.Fatalf("expected ErrTranscription, got %v", err)
	}
}

func TestVolcengineASRServerError(t *testing.T) {
	server, _ := fakeASRGateway(t, func() *Frame {
		return &Frame{
			Header:    newFrameHeader(FrameServerError, FlagNoSequence, SerializeJSON, CompressNone),
			ErrorCode: 45000081,
			Payload:   []byte("quota exceeded"),
		}
	})
	defer server.Close()

	_, err := newTestASR(wsURL(server)).Transcribe(context.Background(), speechmodel.Audio{SessionID: "s1", Data: []byte{1}})
	if !errors.Is(err, ErrTranscription) || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("expected wrapped gateway error, got %v", err)
	}
}

func TestVolcengineASRRequiresCredentials(t *testing.T) {
	client := NewVolcengineASR(&speechmodel.ASRConfig{})
	_, err := client.Transcribe(context.Background(), speechmodel.Audio{Data: []byte{1}})
	if !errors.Is(err, ErrTranscription) {
		t.Fatalf("expected ErrTranscription, got %v", err)
	}
}

func TestVolcengineASRRejectsEmptyAudio(t *testing.T) {
	_, err := newTestASR("ws://127.0.0.1:1").Transcribe(context.Background(), speechmodel.Audio{})
	if !errors.Is(err, ErrTranscription) {
		t.Fatalf("expected ErrTranscription, got %v", err)
	}
}

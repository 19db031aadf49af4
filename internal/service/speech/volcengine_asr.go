package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zhouzirui/vehicle-assist/backend/internal/model/speech"
)

const (
	defaultASREndpoint   = "wss://openspeech.bytedance.com/api/v3/sauc/bigmodel_nostream"
	defaultASRSampleRate = 16000
	// 16kHz, 16bit, mono: 200ms of audio per chunk
	asrChunkBytes = 6400
)

// VolcengineASR 火山引擎大模型流式识别客户端，实现 Transcriber。
type VolcengineASR struct {
	config        *speech.ASRConfig
	dialer        *websocket.Dialer
	chunkInterval time.Duration
}

type asrRequest struct {
	User struct {
		UID string `json:"uid,omitempty"`
	} `json:"user"`
	Audio struct {
		Language string `json:"language,omitempty"`
		Format   string `json:"format"`
		Codec    string `json:"codec,omitempty"`
		Rate     int    `json:"rate,omitempty"`
		Bits     int    `json:"bits,omitempty"`
		Channel  int    `json:"channel,omitempty"`
	} `json:"audio"`
	Request struct {
		ModelName      string `json:"model_name"`
		EnableITN      bool   `json:"enable_itn,omitempty"`
		EnablePunc     bool   `json:"enable_punc,omitempty"`
		ShowUtterances bool   `json:"show_utterances,omitempty"`
		ResultType     string `json:"result_type,omitempty"`
		EndWindowSize  int    `json:"end_window_size,omitempty"`
	} `json:"request"`
}

type asrUtterance struct {
	Text      string `json:"text"`
	StartTime int64  `json:"start_time"`
	EndTime   int64  `json:"end_time"`
	Definite  bool   `json:"definite"`
}

type asrResult struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Result  struct {
		Text       string         `json:"text"`
		Utterances []asrUtterance `json:"utterances,omitempty"`
	} `json:"result"`
	AudioInfo struct {
		Duration int64 `json:"duration"`
	} `json:"audio_info"`
}

// NewVolcengineASR 创建识别客户端
func NewVolcengineASR(config *speech.ASRConfig) *VolcengineASR {
	return &VolcengineASR{
		config: config,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 30 * time.Second,
		},
		chunkInterval: 200 * time.Millisecond,
	}
}

// Transcribe streams the capture to the recognition gateway and waits for the
// final result.
func (c *VolcengineASR) Transcribe(ctx context.Context, audio speech.Audio) (speech.Transcript, error) {
	transcript, err := c.transcribe(ctx, audio)
	if err != nil {
		return speech.Transcript{}, fmt.Errorf("%w: %w", ErrTranscription, err)
	}
	return transcript, nil
}

func (c *VolcengineASR) transcribe(ctx context.Context, audio speech.Audio) (speech.Transcript, error) {
	if len(audio.Data) == 0 {
		return speech.Transcript{}, fmt.Errorf("no audio data to send")
	}

	appID, token, err := c.config.Credentials()
	if err != nil {
		return speech.Transcript{}, err
	}

	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(c.config.Timeout)*time.Second)
		defer cancel()
	}

	header := http.Header{}
	header.Set("X-Api-App-Key", appID)
	header.Set("X-Api-Access-Key", token)
	resourceID := "volc.bigasr.sauc.duration"
	if c.config.ConcurrentMode {
		resourceID = "volc.bigasr.sauc.concurrent"
	}
	header.Set("X-Api-Resource-Id", resourceID)
	header.Set("X-Api-Connect-Id", audio.SessionID)

	endpoint := c.config.Endpoint
	if endpoint == "" {
		endpoint = defaultASREndpoint
	}

	conn, resp, err := c.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return speech.Transcript{}, fmt.Errorf("connect to asr gateway: %w", err)
	}
	defer conn.Close()

	if logID := resp.Header.Get("X-Tt-Logid"); logID != "" {
		log.Printf("[asr] connected session=%s logid=%s", audio.SessionID, logID)
	}

	payload, err := json.Marshal(c.buildRequest(audio))
	if err != nil {
		return speech.Transcript{}, fmt.Errorf("marshal asr request: %w", err)
	}
	compressed, err := compressPayload(payload, CompressGzip)
	if err != nil {
		return speech.Transcript{}, err
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, EncodeFrame(NewConfigFrame(compressed, CompressGzip))); err != nil {
		return speech.Transcript{}, fmt.Errorf("send asr request: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// unblock the reader when the context ends first
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	resultCh := make(chan speech.Transcript, 1)
	recvErrCh := make(chan error, 1)
	go func() {
		result, err := c.receive(conn, audio.SessionID)
		if err != nil {
			recvErrCh <- err
			return
		}
		resultCh <- result
	}()

	sendErrCh := make(chan error, 1)
	go func() {
		sendErrCh <- c.sendAudio(ctx, conn, audio.Data)
	}()

	for {
		select {
		case err := <-sendErrCh:
			if err != nil {
				return speech.Transcript{}, fmt.Errorf("send audio: %w", err)
			}
			sendErrCh = nil
		case result := <-resultCh:
			return result, nil
		case err := <-recvErrCh:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return speech.Transcript{}, ctxErr
			}
			return speech.Transcript{}, err
		case <-ctx.Done():
			return speech.Transcript{}, ctx.Err()
		}
	}
}

func (c *VolcengineASR) buildRequest(audio speech.Audio) *asrRequest {
	req := &asrRequest{}
	req.User.UID = audio.SessionID

	req.Audio.Format = audio.Format
	if req.Audio.Format == "" {
		req.Audio.Format = "wav"
	}
	req.Audio.Language = audio.Language
	if req.Audio.Language == "" {
		req.Audio.Language = c.config.Language
	}
	req.Audio.Codec = "raw"
	req.Audio.Rate = c.config.SampleRate
	if req.Audio.Rate <= 0 {
		req.Audio.Rate = defaultASRSampleRate
	}
	req.Audio.Bits = 16
	req.Audio.Channel = 1

	req.Request.ModelName = c.config.Model
	if req.Request.ModelName == "" {
		req.Request.ModelName = "bigmodel"
	}
	req.Request.EnableITN = true
	req.Request.EnablePunc = true
	req.Request.ShowUtterances = true
	req.Request.ResultType = "full"
	req.Request.EndWindowSize = 800
	return req
}

func (c *VolcengineASR) sendAudio(ctx context.Context, conn *websocket.Conn, data []byte) error {
	// sequence 1 belongs to the config frame
	sequence := int32(2)

	for offset := 0; offset < len(data); offset += asrChunkBytes {
		end := min(offset+asrChunkBytes, len(data))
		last := end == len(data)

		chunk, err := compressPayload(data[offset:end], CompressGzip)
		if err != nil {
			return err
		}
		frame := NewAudioFrame(chunk, sequence, last, CompressGzip)
		if err := conn.WriteMessage(websocket.BinaryMessage, EncodeFrame(frame)); err != nil {
			return err
		}
		sequence++

		if last {
			return nil
		}
		if err := sleepContext(ctx, c.chunkInterval); err != nil {
			return err
		}
	}
	return nil
}

func (c *VolcengineASR) receive(conn *websocket.Conn, sessionID string) (speech.Transcript, error) {
	var (
		finalText string
		duration  int64
	)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return speech.Transcript{}, fmt.Errorf("read asr response: %w", err)
		}

		frame, err := DecodeFrame(bytes.NewReader(data))
		if err != nil {
			return speech.Transcript{}, fmt.Errorf("decode asr frame: %w", err)
		}

		switch frame.Header.Type {
		case FrameServerError:
			payload, _ := decompressPayload(frame.Payload, frame.Header.Compression)
			return speech.Transcript{}, fmt.Errorf("asr error %d: %s", frame.ErrorCode, string(payload))

		case FrameServerResult:
			payload, err := decompressPayload(frame.Payload, frame.Header.Compression)
			if err != nil {
				return speech.Transcript{}, err
			}

			var result asrResult
			if err := json.Unmarshal(payload, &result); err != nil {
				log.Printf("[asr] skip malformed result session=%s: %v", sessionID, err)
				continue
			}
			if result.Code != 0 && result.Code != 20000000 {
				return speech.Transcript{}, fmt.Errorf("asr api error %d: %s", result.Code, result.Message)
			}

			text := result.Result.Text
			if text == "" {
				text = joinUtterances(result.Result.Utterances)
			}
			if text != "" {
				finalText = text
			}
			if result.AudioInfo.Duration > 0 {
				duration = result.AudioInfo.Duration
			}

			if frame.IsLast() {
				if strings.TrimSpace(finalText) == "" {
					return speech.Transcript{}, fmt.Errorf("empty transcript")
				}
				return speech.Transcript{
					SessionID:  sessionID,
					Text:       finalText,
					Confidence: 0.95,
					Duration:   duration,
					RequestID:  sessionID,
					CreatedAt:  time.Now().UTC(),
				}, nil
			}
		}
	}
}

func joinUtterances(utterances []asrUtterance) string {
	parts := make([]string, 0, len(utterances))
	for _, u := range utterances {
		if text := strings.TrimSpace(u.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

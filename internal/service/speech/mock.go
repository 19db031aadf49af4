package speech

import (
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"time"

	"github.com/zhouzirui/vehicle-assist/backend/internal/model/speech"
)

// DefaultMockLatency is the simulated recognition time of MockTranscriber.
const DefaultMockLatency = 2 * time.Second

var mockTranscriptions = []string{
	"My car's engine is making a strange rattling noise when I start it in the morning",
	"The brake pedal feels spongy and the car takes longer to stop than usual",
	"AC is not cooling properly and making weird sounds",
	"Strange vibration in steering wheel at high speeds",
	"Engine light came on yesterday and the car feels sluggish",
}

// MockTranscriptions returns the sentences MockTranscriber picks from.
func MockTranscriptions() []string {
	return append([]string(nil), mockTranscriptions...)
}

// MockTranscriber ignores the audio and returns one canned sentence after a
// fixed latency.
type MockTranscriber struct {
	latency time.Duration
	pick    func(n int) int
}

// NewMockTranscriber creates a stand-in transcriber. pick selects an index in
// [0,n); nil means uniform random.
func NewMockTranscriber(latency time.Duration, pick func(n int) int) *MockTranscriber {
	if latency < 0 {
		latency = 0
	}
	if pick == nil {
		pick = rand.IntN
	}
	return &MockTranscriber{latency: latency, pick: pick}
}

// Transcribe waits for the configured latency, then returns a canned sentence.
func (m *MockTranscriber) Transcribe(ctx context.Context, audio speech.Audio) (speech.Transcript, error) {
	if err := sleepContext(ctx, m.latency); err != nil {
		return speech.Transcript{}, fmt.Errorf("%w: %w", ErrTranscription, err)
	}

	text := mockTranscriptions[m.pick(len(mockTranscriptions))]
	log.Printf("[asr] mock transcription session=%s bytes=%d", audio.SessionID, len(audio.Data))

	return speech.Transcript{
		SessionID:  audio.SessionID,
		Text:       text,
		Confidence: 1,
		Duration:   m.latency.Milliseconds(),
		CreatedAt:  time.Now().UTC(),
	}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

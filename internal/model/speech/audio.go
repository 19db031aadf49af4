package speech

import "time"

// Audio is one finished capture handed to a transcriber.
type Audio struct {
	SessionID string `json:"sessionId"`
	Data      []byte `json:"-"`
	Format    string `json:"format"`   // wav, webm, mp3, pcm ...
	Language  string `json:"language"` // en-IN, hi-IN, zh-CN ...
}

// Transcript is the text recognised from an Audio capture.
type Transcript struct {
	SessionID  string    `json:"sessionId"`
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	Duration   int64     `json:"duration"` // milliseconds
	RequestID  string    `json:"requestId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

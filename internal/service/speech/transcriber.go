package speech

import (
	"context"
	"errors"

	"github.com/zhouzirui/vehicle-assist/backend/internal/model/speech"
)

// ErrTranscription marks every failure of the speech-to-text collaborator.
var ErrTranscription = errors.New("transcription failed")

// Transcriber turns a finished audio capture into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio speech.Audio) (speech.Transcript, error)
}

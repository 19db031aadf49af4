package intake

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/zhouzirui/vehicle-assist/backend/internal/model/issue"
	"github.com/zhouzirui/vehicle-assist/backend/internal/model/speech"
	"github.com/zhouzirui/vehicle-assist/backend/internal/service/classify"
	issueservice "github.com/zhouzirui/vehicle-assist/backend/internal/service/issue"
	speechservice "github.com/zhouzirui/vehicle-assist/backend/internal/service/speech"
)

var (
	ErrSessionNotFound  = errors.New("intake session not found")
	ErrSessionClosed    = errors.New("intake session closed")
	ErrBusy             = errors.New("another operation is in progress")
	ErrNotRecording     = errors.New("session is not recording")
	ErrEmptyDescription = errors.New("issue description is empty")
	ErrInvalidTag       = errors.New("unknown issue tag")
	ErrUnknownVehicle   = errors.New("unknown vehicle model")
)

// State of an intake session.
type State string

const (
	StateIdle       State = "idle"
	StateRecording  State = "recording"
	StateProcessing State = "processing"
	StateReviewing  State = "reviewing"
	StateSubmitting State = "submitting"
)

// Deps are the collaborators every session talks to.
type Deps struct {
	Microphone  speechservice.Microphone
	Transcriber speechservice.Transcriber
	Classifier  classify.Classifier
	Submitter   issueservice.Submitter
	AudioFormat string
	Language    string
	Now         func() time.Time
}

// Snapshot is a read-only copy of a session.
type Snapshot struct {
	ID            string            `json:"id"`
	VehicleModel  string            `json:"vehicleModel"`
	State         State             `json:"state"`
	Draft         issue.Draft       `json:"draft"`
	Suggestion    *issue.Suggestion `json:"suggestion,omitempty"`
	LastError     string            `json:"lastError,omitempty"`
	LastSubmitted *issue.Record     `json:"lastSubmitted,omitempty"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// Session is one issue intake form. At most one long operation (recording,
// processing, submitting) is in flight at any time.
type Session struct {
	id           string
	vehicleModel string
	deps         Deps

	mu            sync.Mutex
	state         State
	draft         issue.Draft
	suggestion    *issue.Suggestion
	capture       speechservice.Capture
	lastErr       string
	lastSubmitted *issue.Record
	updatedAt     time.Time
	lastActive    time.Time
	recordPrior   State
	closed        bool
	subscribers   map[int]chan Snapshot
	nextSubID     int

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSession creates an idle session for vehicleModel.
func NewSession(id, vehicleModel string, deps Deps) *Session {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.AudioFormat == "" {
		deps.AudioFormat = "wav"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:           id,
		vehicleModel: vehicleModel,
		deps:         deps,
		state:        StateIdle,
		updatedAt:    deps.Now().UTC(),
		lastActive:   deps.Now().UTC(),
		subscribers:  make(map[int]chan Snapshot),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Snapshot returns the current session view.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// SetText replaces the description text. The current suggestion is kept.
func (s *Session) SetText(text string) (Snapshot, error) {
	return s.UpdateDraft(&text, nil)
}

// SelectTag attaches one of the quick tags to the draft; "" clears it.
func (s *Session) SelectTag(tag string) (Snapshot, error) {
	return s.UpdateDraft(nil, &tag)
}

// UpdateDraft applies a text and/or tag change atomically: nothing is
// modified unless both values are acceptable.
func (s *Session) UpdateDraft(text, tag *string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.editableLocked(); err != nil {
		return s.snapshotLocked(), err
	}
	if tag != nil && *tag != "" && !issue.IsCommonTag(*tag) {
		return s.snapshotLocked(), fmt.Errorf("%w: %q", ErrInvalidTag, *tag)
	}
	if text == nil && tag == nil {
		return s.snapshotLocked(), nil
	}
	if text != nil {
		s.draft.Text = *text
	}
	if tag != nil {
		s.draft.Category = *tag
	}
	s.touchLocked()
	return s.snapshotLocked(), nil
}

// StartRecording acquires a capture stream from the microphone.
func (s *Session) StartRecording(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	if err := s.editableLocked(); err != nil {
		defer s.mu.Unlock()
		return s.snapshotLocked(), err
	}
	prior := s.state
	s.state = StateRecording
	s.lastErr = ""
	s.touchLocked()
	s.mu.Unlock()

	capture, err := s.deps.Microphone.Acquire(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		if !errors.Is(err, speechservice.ErrMicrophoneDenied) {
			err = fmt.Errorf("%w: %w", speechservice.ErrMicrophoneDenied, err)
		}
		if !s.closed {
			s.state = prior
			s.lastErr = err.Error()
			s.touchLocked()
		}
		log.Printf("[intake] microphone unavailable session=%s: %v", s.id, err)
		return s.snapshotLocked(), err
	}
	if s.closed {
		capture.Release()
		return s.snapshotLocked(), ErrSessionClosed
	}

	s.capture = capture
	s.recordPrior = prior
	log.Printf("[intake] recording started session=%s", s.id)
	return s.snapshotLocked(), nil
}

// AppendAudio feeds a chunk of captured audio while recording.
func (s *Session) AppendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if s.state != StateRecording || s.capture == nil {
		return ErrNotRecording
	}
	s.lastActive = s.deps.Now().UTC()
	_, err := s.capture.Write(chunk)
	return err
}

// AbortRecording drops the capture without transcribing it and returns the
// session to the state it was in before recording started.
func (s *Session) AbortRecording() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return s.snapshotLocked(), ErrSessionClosed
	}
	if s.state != StateRecording || s.capture == nil {
		return s.snapshotLocked(), ErrNotRecording
	}
	s.capture.Release()
	s.capture = nil
	s.state = s.recordPrior
	s.touchLocked()
	log.Printf("[intake] recording aborted session=%s", s.id)
	return s.snapshotLocked(), nil
}

// Closed reports whether the session has been torn down.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// idleSince returns the last activity time and whether anyone is subscribed.
func (s *Session) idleSince() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive, len(s.subscribers) > 0
}

// StopRecording releases the capture, transcribes it and classifies the
// transcript. The capture is released exactly once, whatever happens next.
func (s *Session) StopRecording(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	if s.closed {
		defer s.mu.Unlock()
		return s.snapshotLocked(), ErrSessionClosed
	}
	if s.state != StateRecording || s.capture == nil {
		defer s.mu.Unlock()
		return s.snapshotLocked(), ErrNotRecording
	}
	capture := s.capture
	s.capture = nil
	s.state = StateProcessing
	s.draft.TranscriptionPending = true
	s.touchLocked()
	s.mu.Unlock()

	data := capture.Release()

	opCtx, done := s.operationContext(ctx)
	defer done()

	transcript, err := s.deps.Transcriber.Transcribe(opCtx, speech.Audio{
		SessionID: s.id,
		Data:      data,
		Format:    s.deps.AudioFormat,
		Language:  s.deps.Language,
	})
	if err != nil {
		if !errors.Is(err, speechservice.ErrTranscription) {
			err = fmt.Errorf("%w: %w", speechservice.ErrTranscription, err)
		}
		log.Printf("[intake] transcription failed session=%s: %v", s.id, err)

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return s.snapshotLocked(), ErrSessionClosed
		}
		s.draft.TranscriptionPending = false
		s.state = StateIdle
		s.lastErr = err.Error()
		s.touchLocked()
		return s.snapshotLocked(), err
	}

	s.mu.Lock()
	if s.closed {
		defer s.mu.Unlock()
		return s.snapshotLocked(), ErrSessionClosed
	}
	s.draft.Text = transcript.Text
	s.draft.TranscriptionPending = false
	s.touchLocked()
	s.mu.Unlock()

	return s.classify(opCtx, transcript.Text)
}

// Classify runs the classifier over the typed description.
func (s *Session) Classify(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	if err := s.editableLocked(); err != nil {
		defer s.mu.Unlock()
		return s.snapshotLocked(), err
	}
	text := strings.TrimSpace(s.draft.Text)
	if text == "" {
		defer s.mu.Unlock()
		return s.snapshotLocked(), ErrEmptyDescription
	}
	s.state = StateProcessing
	s.lastErr = ""
	s.touchLocked()
	s.mu.Unlock()

	opCtx, done := s.operationContext(ctx)
	defer done()

	return s.classify(opCtx, text)
}

// classify expects the session to be in StateProcessing.
func (s *Session) classify(ctx context.Context, text string) (Snapshot, error) {
	suggestion, err := s.deps.Classifier.Classify(ctx, text, s.vehicleModel)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.snapshotLocked(), ErrSessionClosed
	}

	if err != nil {
		if !errors.Is(err, classify.ErrClassification) {
			err = fmt.Errorf("%w: %w", classify.ErrClassification, err)
		}
		log.Printf("[intake] classification failed session=%s: %v", s.id, err)
		s.suggestion = nil
		s.state = StateIdle
		s.lastErr = err.Error()
		s.touchLocked()
		return s.snapshotLocked(), err
	}

	// replaces any previous suggestion wholesale
	s.suggestion = suggestion.Clone()
	s.state = StateReviewing
	s.lastErr = ""
	s.touchLocked()
	log.Printf("[intake] suggestion ready session=%s category=%s severity=%s", s.id, suggestion.Category, suggestion.Severity)
	return s.snapshotLocked(), nil
}

// Submit composes the issue record and sends it once. On success the draft
// and suggestion are cleared; on failure they are kept.
func (s *Session) Submit(ctx context.Context) (issue.Record, Snapshot, error) {
	s.mu.Lock()
	if err := s.editableLocked(); err != nil {
		defer s.mu.Unlock()
		return issue.Record{}, s.snapshotLocked(), err
	}
	if strings.TrimSpace(s.draft.Text) == "" {
		defer s.mu.Unlock()
		return issue.Record{}, s.snapshotLocked(), ErrEmptyDescription
	}
	prior := s.state
	record := issue.ComposeRecord(s.draft, s.suggestion, s.vehicleModel, s.deps.Now().UTC())
	s.state = StateSubmitting
	s.lastErr = ""
	s.touchLocked()
	s.mu.Unlock()

	opCtx, done := s.operationContext(ctx)
	defer done()

	stored, err := s.deps.Submitter.Submit(opCtx, record)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stored, s.snapshotLocked(), ErrSessionClosed
	}

	if err != nil {
		if !errors.Is(err, issueservice.ErrSubmission) {
			err = fmt.Errorf("%w: %w", issueservice.ErrSubmission, err)
		}
		log.Printf("[intake] submission failed session=%s: %v", s.id, err)
		s.state = prior
		s.lastErr = err.Error()
		s.touchLocked()
		return issue.Record{}, s.snapshotLocked(), err
	}

	s.draft = issue.Draft{}
	s.suggestion = nil
	s.state = StateIdle
	s.lastSubmitted = &stored
	s.touchLocked()
	log.Printf("[intake] issue submitted session=%s id=%s", s.id, stored.ID)
	return stored, s.snapshotLocked(), nil
}

// Subscribe streams snapshots after every change. The channel is closed when
// the session closes or cancel is called.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Snapshot, 8)
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if sub, ok := s.subscribers[id]; ok {
				delete(s.subscribers, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

// Close cancels in-flight work and releases a held capture stream.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.cancel()

	if s.capture != nil {
		s.capture.Release()
		s.capture = nil
	}
	for id, sub := range s.subscribers {
		delete(s.subscribers, id)
		close(sub)
	}
	log.Printf("[intake] session closed session=%s", s.id)
}

// operationContext derives a context that ends with the caller's ctx or
// with the session, whichever comes first.
func (s *Session) operationContext(ctx context.Context) (context.Context, func()) {
	opCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return opCtx, func() {
		stop()
		cancel()
	}
}

func (s *Session) editableLocked() error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.state != StateIdle && s.state != StateReviewing {
		return ErrBusy
	}
	return nil
}

func (s *Session) touchLocked() {
	s.updatedAt = s.deps.Now().UTC()
	s.lastActive = s.updatedAt

	snap := s.snapshotLocked()
	for id, sub := range s.subscribers {
		select {
		case sub <- snap:
		default:
			log.Printf("[intake] dropping slow subscriber session=%s sub=%d", s.id, id)
			delete(s.subscribers, id)
			close(sub)
		}
	}
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:           s.id,
		VehicleModel: s.vehicleModel,
		State:        s.state,
		Draft:        s.draft,
		Suggestion:   s.suggestion.Clone(),
		LastError:    s.lastErr,
		UpdatedAt:    s.updatedAt,
	}
	if s.lastSubmitted != nil {
		record := *s.lastSubmitted
		record.SuggestedActions = append([]string{}, s.lastSubmitted.SuggestedActions...)
		snap.LastSubmitted = &record
	}
	return snap
}

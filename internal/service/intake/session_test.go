package intake

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zhouzirui/vehicle-assist/backend/internal/model/issue"
	"github.com/zhouzirui/vehicle-assist/backend/internal/model/speech"
	"github.com/zhouzirui/vehicle-assist/backend/internal/service/classify"
	issueservice "github.com/zhouzirui/vehicle-assist/backend/internal/service/issue"
	speechservice "github.com/zhouzirui/vehicle-assist/backend/internal/service/speech"
)

type countingCapture struct {
	mu       sync.Mutex
	data     []byte
	releases int
}

func (c *countingCapture) Write(chunk []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = append(c.data, chunk...)
	return len(chunk), nil
}

func (c *countingCapture) Release() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releases++
	return append([]byte(nil), c.data...)
}

func (c *countingCapture) Releases() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.releases
}

type fakeMicrophone struct {
	mu       sync.Mutex
	deny     bool
	captures []*countingCapture
}

func (m *fakeMicrophone) Acquire(ctx context.Context) (speechservice.Capture, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deny {
		return nil, speechservice.ErrMicrophoneDenied
	}
	capture := &countingCapture{}
	m.captures = append(m.captures, capture)
	return capture, nil
}

func (m *fakeMicrophone) last() *countingCapture {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.captures[len(m.captures)-1]
}

type fakeTranscriber struct {
	text    string
	err     error
	started chan struct{}
	block   bool

	mu  sync.Mutex
	got []byte
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audio speech.Audio) (speech.Transcript, error) {
	f.mu.Lock()
	f.got = append([]byte(nil), audio.Data...)
	f.mu.Unlock()

	if f.started != nil {
		close(f.started)
	}
	if f.block {
		<-ctx.Done()
		return speech.Transcript{}, ctx.Err()
	}
	if f.err != nil {
		return speech.Transcript{}, f.err
	}
	return speech.Transcript{SessionID: audio.SessionID, Text: f.text}, nil
}

type fakeClassifier struct {
	mu      sync.Mutex
	results []issue.Suggestion
	err     error
	calls   int
	texts   []string
}

func (f *fakeClassifier) Classify(ctx context.Context, text, vehicleModel string) (issue.Suggestion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.texts = append(f.texts, text)
	if f.err != nil {
		return issue.Suggestion{}, f.err
	}
	result := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return result, nil
}

type fakeSubmitter struct {
	mu      sync.Mutex
	err     error
	records []issue.Record
}

func (f *fakeSubmitter) Submit(ctx context.Context, record issue.Record) (issue.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, record)
	if f.err != nil {
		return issue.Record{}, f.err
	}
	record.ID = "issue-1"
	return record, nil
}

type fixture struct {
	mic         *fakeMicrophone
	transcriber *fakeTranscriber
	classifier  *fakeClassifier
	submitter   *fakeSubmitter
	session     *Session
}

var (
	brakeSuggestion = issue.Suggestion{
		FormattedIssue:   "Nexon - Brake pedal feels spongy",
		Category:         issue.CategoryBrakes,
		Severity:         issue.SeverityHigh,
		SuggestedActions: []string{"Stop driving"},
	}
	engineSuggestion = issue.Suggestion{
		FormattedIssue:   "Nexon - Engine rattles",
		Category:         issue.CategoryEngine,
		Severity:         issue.SeverityMedium,
		SuggestedActions: []string{"Book service"},
	}
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		mic:         &fakeMicrophone{},
		transcriber: &fakeTranscriber{text: "brake pedal feels spongy"},
		classifier:  &fakeClassifier{results: []issue.Suggestion{brakeSuggestion}},
		submitter:   &fakeSubmitter{},
	}
	f.session = NewSession("s1", "Nexon", Deps{
		Microphone:  f.mic,
		Transcriber: f.transcriber,
		Classifier:  f.classifier,
		Submitter:   f.submitter,
		Now:         func() time.Time { return time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC) },
	})
	t.Cleanup(f.session.Close)
	return f
}

func TestRecordingFlowProducesSuggestion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	snap, err := f.session.StartRecording(ctx)
	if err != nil {
		t.Fatalf("StartRecording err: %v", err)
	}
	if snap.State != StateRecording {
		t.Fatalf("expected recording, got %s", snap.State)
	}
	if err := f.session.AppendAudio([]byte("abc")); err != nil {
		t.Fatalf("AppendAudio err: %v", err)
	}

	snap, err = f.session.StopRecording(ctx)
	if err != nil {
		t.Fatalf("StopRecording err: %v", err)
	}
	if snap.State != StateReviewing {
		t.Fatalf("expected reviewing, got %s", snap.State)
	}
	if snap.Draft.Text != "brake pedal feels spongy" || snap.Draft.TranscriptionPending {
		t.Fatalf("unexpected draft %+v", snap.Draft)
	}
	if snap.Suggestion == nil || snap.Suggestion.Category != issue.CategoryBrakes {
		t.Fatalf("unexpected suggestion %+v", snap.Suggestion)
	}
	if got := f.mic.last().Releases(); got != 1 {
		t.Fatalf("expected capture released once, got %d", got)
	}
	f.transcriber.mu.Lock()
	defer f.transcriber.mu.Unlock()
	if string(f.transcriber.got) != "abc" {
		t.Fatalf("transcriber got %q", f.transcriber.got)
	}
}

func TestTranscriptionFailureReleasesCaptureOnce(t *testing.T) {
	f := newFixture(t)
	f.transcriber.err = errors.New("gateway down")
	ctx := context.Background()

	if _, err := f.session.SetText("typed before recording"); err != nil {
		t.Fatalf("SetText err: %v", err)
	}
	if _, err := f.session.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording err: %v", err)
	}

	snap, err := f.session.StopRecording(ctx)
	if !errors.Is(err, speechservice.ErrTranscription) {
		t.Fatalf("expected ErrTranscription, got %v", err)
	}
	if snap.State != StateIdle {
		t.Fatalf("expected idle, got %s", snap.State)
	}
	if snap.Draft.Text != "typed before recording" || snap.Draft.TranscriptionPending {
		t.Fatalf("draft must be unchanged, got %+v", snap.Draft)
	}
	if got := f.mic.last().Releases(); got != 1 {
		t.Fatalf("expected capture released once, got %d", got)
	}
	if f.classifier.calls != 0 {
		t.Fatalf("classifier must not run after failed transcription")
	}

	// a second stop must not release again
	if _, err := f.session.StopRecording(ctx); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("expected ErrNotRecording, got %v", err)
	}
	if got := f.mic.last().Releases(); got != 1 {
		t.Fatalf("expected capture released once, got %d", got)
	}
}

func TestClassificationFailureKeepsTranscript(t *testing.T) {
	f := newFixture(t)
	f.classifier.err = errors.New("model offline")
	ctx := context.Background()

	f.session.StartRecording(ctx)
	snap, err := f.session.StopRecording(ctx)
	if !errors.Is(err, classify.ErrClassification) {
		t.Fatalf("expected ErrClassification, got %v", err)
	}
	if snap.State != StateIdle || snap.Suggestion != nil {
		t.Fatalf("expected idle without suggestion, got %+v", snap)
	}
	if snap.Draft.Text != "brake pedal feels spongy" {
		t.Fatalf("transcribed text should be kept, got %q", snap.Draft.Text)
	}
}

func TestMicrophoneDeniedStaysIdle(t *testing.T) {
	f := newFixture(t)
	f.mic.deny = true

	snap, err := f.session.StartRecording(context.Background())
	if !errors.Is(err, speechservice.ErrMicrophoneDenied) {
		t.Fatalf("expected ErrMicrophoneDenied, got %v", err)
	}
	if snap.State != StateIdle || snap.LastError == "" {
		t.Fatalf("expected idle with error, got %+v", snap)
	}
}

func TestSecondClassificationReplacesSuggestion(t *testing.T) {
	f := newFixture(t)
	f.classifier.results = []issue.Suggestion{brakeSuggestion, engineSuggestion}
	ctx := context.Background()

	f.session.SetText("brake pedal feels spongy")
	if _, err := f.session.Classify(ctx); err != nil {
		t.Fatalf("Classify err: %v", err)
	}

	f.session.SetText("engine rattles")
	snap, err := f.session.Classify(ctx)
	if err != nil {
		t.Fatalf("Classify err: %v", err)
	}
	if snap.Suggestion.Category != issue.CategoryEngine || len(snap.Suggestion.SuggestedActions) != 1 || snap.Suggestion.SuggestedActions[0] != "Book service" {
		t.Fatalf("suggestion was not replaced wholesale: %+v", snap.Suggestion)
	}
}

func TestClassifyRequiresText(t *testing.T) {
	f := newFixture(t)
	f.session.SetText("   ")

	if _, err := f.session.Classify(context.Background()); !errors.Is(err, ErrEmptyDescription) {
		t.Fatalf("expected ErrEmptyDescription, got %v", err)
	}
	if f.classifier.calls != 0 {
		t.Fatal("classifier must not run for empty text")
	}
}

func TestSubmitWithoutSuggestionUsesFallbacks(t *testing.T) {
	f := newFixture(t)
	f.session.SetText("oil spots under the car")
	f.session.SelectTag("Oil leak")

	record, snap, err := f.session.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit err: %v", err)
	}
	sent := f.submitter.records[0]
	if sent.Description != "oil spots under the car" || sent.Category != "Oil leak" || sent.Severity != issue.SeverityMedium {
		t.Fatalf("unexpected fallback record %+v", sent)
	}
	if sent.SuggestedActions == nil || len(sent.SuggestedActions) != 0 {
		t.Fatalf("expected empty actions, got %#v", sent.SuggestedActions)
	}
	if sent.Status != issue.StatusOpen || sent.VehicleModel != "Nexon" {
		t.Fatalf("unexpected record metadata %+v", sent)
	}
	if record.ID != "issue-1" {
		t.Fatalf("expected persisted record, got %+v", record)
	}
	if snap.State != StateIdle || snap.Draft != (issue.Draft{}) || snap.Suggestion != nil {
		t.Fatalf("expected draft reset, got %+v", snap)
	}
	if snap.LastSubmitted == nil || snap.LastSubmitted.ID != "issue-1" {
		t.Fatalf("expected last submitted record, got %+v", snap.LastSubmitted)
	}
}

func TestSubmitWithSuggestionUsesIt(t *testing.T) {
	f := newFixture(t)
	f.session.SetText("brake pedal feels spongy")
	f.session.SelectTag("Engine noise")
	f.session.Classify(context.Background())

	if _, _, err := f.session.Submit(context.Background()); err != nil {
		t.Fatalf("Submit err: %v", err)
	}
	sent := f.submitter.records[0]
	if sent.Description != brakeSuggestion.FormattedIssue || sent.Category != issue.CategoryBrakes || sent.Severity != issue.SeverityHigh {
		t.Fatalf("suggestion not used: %+v", sent)
	}
}

func TestSubmitFailureKeepsDraft(t *testing.T) {
	f := newFixture(t)
	f.submitter.err = errors.New("status 500")
	f.session.SetText("battery drains overnight")
	f.session.Classify(context.Background())

	_, snap, err := f.session.Submit(context.Background())
	if !errors.Is(err, issueservice.ErrSubmission) {
		t.Fatalf("expected ErrSubmission, got %v", err)
	}
	if snap.State != StateReviewing || snap.Draft.Text != "battery drains overnight" || snap.Suggestion == nil {
		t.Fatalf("draft should be retained, got %+v", snap)
	}
	if len(f.submitter.records) != 1 {
		t.Fatalf("expected exactly one attempt, got %d", len(f.submitter.records))
	}
}

func TestSubmitRequiresText(t *testing.T) {
	f := newFixture(t)
	if _, _, err := f.session.Submit(context.Background()); !errors.Is(err, ErrEmptyDescription) {
		t.Fatalf("expected ErrEmptyDescription, got %v", err)
	}
}

func TestSelectTagValidation(t *testing.T) {
	f := newFixture(t)
	if _, err := f.session.SelectTag("Flux capacitor"); !errors.Is(err, ErrInvalidTag) {
		t.Fatalf("expected ErrInvalidTag, got %v", err)
	}
	snap, err := f.session.SelectTag("Tire wear")
	if err != nil || snap.Draft.Category != "Tire wear" {
		t.Fatalf("SelectTag err=%v draft=%+v", err, snap.Draft)
	}
	if snap, _ := f.session.SelectTag(""); snap.Draft.Category != "" {
		t.Fatalf("expected tag cleared")
	}
}

func TestUpdateDraftLeavesDraftUntouchedOnBadTag(t *testing.T) {
	f := newFixture(t)
	f.session.SetText("original text")

	text, tag := "replacement text", "Flux capacitor"
	snap, err := f.session.UpdateDraft(&text, &tag)
	if !errors.Is(err, ErrInvalidTag) {
		t.Fatalf("expected ErrInvalidTag, got %v", err)
	}
	if snap.Draft.Text != "original text" || snap.Draft.Category != "" {
		t.Fatalf("draft modified by rejected update: %+v", snap.Draft)
	}

	tag = "Oil leak"
	snap, err = f.session.UpdateDraft(&text, &tag)
	if err != nil {
		t.Fatalf("UpdateDraft err: %v", err)
	}
	if snap.Draft.Text != "replacement text" || snap.Draft.Category != "Oil leak" {
		t.Fatalf("unexpected draft %+v", snap.Draft)
	}
}

func TestAbortRecordingReleasesCapture(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.session.AbortRecording(); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("expected ErrNotRecording, got %v", err)
	}

	f.session.SetText("typed first")
	if _, err := f.session.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording err: %v", err)
	}
	f.session.AppendAudio([]byte("partial"))

	snap, err := f.session.AbortRecording()
	if err != nil {
		t.Fatalf("AbortRecording err: %v", err)
	}
	if snap.State != StateIdle || snap.Draft.Text != "typed first" {
		t.Fatalf("unexpected snapshot after abort %+v", snap)
	}
	if got := f.mic.last().Releases(); got != 1 {
		t.Fatalf("expected capture released once, got %d", got)
	}
	f.transcriber.mu.Lock()
	got := f.transcriber.got
	f.transcriber.mu.Unlock()
	if got != nil {
		t.Fatalf("aborted audio must not be transcribed, got %q", got)
	}

	// the session stays usable
	if _, err := f.session.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording after abort err: %v", err)
	}
}

func TestClosedReportsTeardown(t *testing.T) {
	f := newFixture(t)
	if f.session.Closed() {
		t.Fatal("new session reported closed")
	}
	f.session.Close()
	if !f.session.Closed() {
		t.Fatal("expected session closed")
	}
	if _, err := f.session.AbortRecording(); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

func TestOperationsRejectedWhileProcessing(t *testing.T) {
	f := newFixture(t)
	f.transcriber.block = true
	f.transcriber.started = make(chan struct{})
	ctx := context.Background()

	f.session.StartRecording(ctx)
	if _, err := f.session.StartRecording(ctx); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy while recording, got %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.session.StopRecording(ctx)
		done <- err
	}()
	<-f.transcriber.started

	if snap := f.session.Snapshot(); snap.State != StateProcessing || !snap.Draft.TranscriptionPending {
		t.Fatalf("expected processing with pending transcription, got %+v", snap)
	}
	if _, err := f.session.SetText("x"); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy for SetText, got %v", err)
	}
	if _, err := f.session.Classify(ctx); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy for Classify, got %v", err)
	}
	if _, _, err := f.session.Submit(ctx); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy for Submit, got %v", err)
	}
	if _, err := f.session.StartRecording(ctx); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy for StartRecording, got %v", err)
	}

	f.session.Close()
	select {
	case err := <-done:
		if !errors.Is(err, ErrSessionClosed) {
			t.Fatalf("expected ErrSessionClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("close did not cancel the in-flight transcription")
	}
	if got := f.mic.last().Releases(); got != 1 {
		t.Fatalf("expected capture released once, got %d", got)
	}
}

func TestCloseReleasesActiveCapture(t *testing.T) {
	f := newFixture(t)
	f.session.StartRecording(context.Background())
	f.session.AppendAudio([]byte("partial"))

	f.session.Close()
	f.session.Close()

	if got := f.mic.last().Releases(); got != 1 {
		t.Fatalf("expected capture released once, got %d", got)
	}
	if err := f.session.AppendAudio([]byte("late")); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

func TestSubscribeReceivesStateChanges(t *testing.T) {
	f := newFixture(t)
	updates, cancel := f.session.Subscribe()
	defer cancel()

	f.session.SetText("engine rattles")
	select {
	case snap := <-updates:
		if snap.Draft.Text != "engine rattles" {
			t.Fatalf("unexpected snapshot %+v", snap)
		}
	case <-time.After(time.Second):
		t.Fatal("no update received")
	}

	f.session.Close()
	for range updates {
	}
}

func TestRecordingWithBufferMicrophone(t *testing.T) {
	mic := speechservice.NewBufferMicrophone(1, 0)
	session := NewSession("s2", "Tiago", Deps{
		Microphone:  mic,
		Transcriber: speechservice.NewMockTranscriber(0, func(int) int { return 0 }),
		Classifier:  classify.NewRuleClassifier(),
		Submitter:   issueservice.NewStoreSubmitter(issueservice.NewMemoryRepository()),
	})
	defer session.Close()
	ctx := context.Background()

	if _, err := session.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording err: %v", err)
	}
	if mic.Active() != 1 {
		t.Fatalf("expected one active capture")
	}
	snap, err := session.StopRecording(ctx)
	if err != nil {
		t.Fatalf("StopRecording err: %v", err)
	}
	if mic.Active() != 0 {
		t.Fatalf("capture not released")
	}
	if snap.Suggestion == nil || snap.Suggestion.Category != issue.CategoryEngine {
		t.Fatalf("unexpected suggestion %+v", snap.Suggestion)
	}

	record, _, err := session.Submit(ctx)
	if err != nil {
		t.Fatalf("Submit err: %v", err)
	}
	if record.ID == "" || record.Description != classify.FormatIssue("Tiago", speechservice.MockTranscriptions()[0]) {
		t.Fatalf("unexpected stored record %+v", record)
	}
}

package chat

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/vehicle-assist/backend/internal/analysis/rules"
	"github.com/zhouzirui/vehicle-assist/backend/internal/model/chat"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrEmptyMessage    = errors.New("message text is empty")
	ErrReplyPending    = errors.New("assistant reply still pending")
	ErrServiceClosed   = errors.New("chat service closed")
)

// DefaultReplyDelay is the simulated latency before a canned reply lands.
const DefaultReplyDelay = 1500 * time.Millisecond

// Option customises a Service.
type Option func(*Service)

// WithReplyDelay overrides the simulated reply latency.
func WithReplyDelay(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.replyDelay = d
		}
	}
}

// WithResponder swaps the reply selector, mainly for tests.
func WithResponder(fn func(string) string) Option {
	return func(s *Service) {
		if fn != nil {
			s.respond = fn
		}
	}
}

type conversation struct {
	session     chat.Session
	state       chat.State
	messages    []chat.Message
	subscribers map[int]chan chat.Message
	nextSubID   int
	lastActive  time.Time
	ctx         context.Context
	cancel      context.CancelFunc
}

// Service owns every chat conversation. Each conversation is an independent
// idle / awaiting-reply state machine.
type Service struct {
	mu            sync.RWMutex
	conversations map[string]*conversation
	replyDelay    time.Duration
	respond       func(string) string
	closed        bool
	wg            sync.WaitGroup
}

// NewService bootstraps the in-memory chat service.
func NewService(opts ...Option) *Service {
	s := &Service{
		conversations: make(map[string]*conversation),
		replyDelay:    DefaultReplyDelay,
		respond:       rules.SelectChatReply,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSession provisions a conversation seeded with the assistant greeting.
func (s *Service) CreateSession(_ context.Context) (chat.Snapshot, error) {
	now := time.Now().UTC()
	ctx, cancel := context.WithCancel(context.Background())
	conv := &conversation{
		session: chat.Session{
			ID:        uuid.NewString(),
			CreatedAt: now,
		},
		state: chat.StateIdle,
		messages: []chat.Message{{
			ID:        uuid.NewString(),
			Text:      rules.Greeting,
			Sender:    chat.SenderBot,
			Timestamp: now,
		}},
		subscribers: make(map[int]chan chat.Message),
		lastActive:  now,
		ctx:         ctx,
		cancel:      cancel,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		cancel()
		return chat.Snapshot{}, ErrServiceClosed
	}
	s.conversations[conv.session.ID] = conv
	return conv.snapshot(), nil
}

// Send appends the user's message and schedules the canned reply. It is
// rejected while a previous reply is still pending.
func (s *Service) Send(_ context.Context, sessionID, text string) (chat.Message, error) {
	if strings.TrimSpace(text) == "" {
		return chat.Message{}, ErrEmptyMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[sessionID]
	if !ok {
		return chat.Message{}, ErrSessionNotFound
	}
	if conv.state == chat.StateAwaitingReply {
		return chat.Message{}, ErrReplyPending
	}

	userMsg := chat.Message{
		ID:        uuid.NewString(),
		Text:      text,
		Sender:    chat.SenderUser,
		Timestamp: time.Now().UTC(),
	}
	conv.append(userMsg)
	conv.state = chat.StateAwaitingReply

	reply := s.respond(text)
	s.wg.Add(1)
	go s.deliverReply(conv, reply)

	return userMsg, nil
}

func (s *Service) deliverReply(conv *conversation, reply string) {
	defer s.wg.Done()

	timer := time.NewTimer(s.replyDelay)
	defer timer.Stop()

	select {
	case <-conv.ctx.Done():
		return
	case <-timer.C:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// the conversation may have been closed while the timer fired
	if conv.ctx.Err() != nil {
		return
	}

	conv.append(chat.Message{
		ID:        uuid.NewString(),
		Text:      reply,
		Sender:    chat.SenderBot,
		Timestamp: time.Now().UTC(),
	})
	conv.state = chat.StateIdle
	log.Printf("[chat] reply delivered session=%s messages=%d", conv.session.ID, len(conv.messages))
}

// GetSession retrieves a conversation snapshot.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[sessionID]
	if !ok {
		return chat.Snapshot{}, ErrSessionNotFound
	}
	return conv.snapshot(), nil
}

// LoadTranscript returns stored messages for the provided session.
func (s *Service) LoadTranscript(_ context.Context, sessionID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	copied := make([]chat.Message, len(conv.messages))
	copy(copied, conv.messages)
	return copied, nil
}

// Subscribe streams messages appended after the call. The returned cancel
// func must be called to release the subscription; the channel is closed
// when the conversation ends.
func (s *Service) Subscribe(sessionID string) (<-chan chat.Message, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[sessionID]
	if !ok {
		return nil, nil, ErrSessionNotFound
	}

	id := conv.nextSubID
	conv.nextSubID++
	ch := make(chan chat.Message, 16)
	conv.subscribers[id] = ch

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if sub, ok := conv.subscribers[id]; ok {
				delete(conv.subscribers, id)
				close(sub)
			}
		})
	}
	return ch, unsubscribe, nil
}

// CloseSession tears a conversation down, dropping any pending reply.
func (s *Service) CloseSession(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	conv.close()
	delete(s.conversations, sessionID)
	return nil
}

// SweepIdle closes conversations with no subscribers and no new message for
// ttl. A conversation awaiting a reply is never swept.
func (s *Service) SweepIdle(now time.Time, ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	closed := 0
	for id, conv := range s.conversations {
		if len(conv.subscribers) > 0 || conv.state == chat.StateAwaitingReply {
			continue
		}
		if now.Sub(conv.lastActive) <= ttl {
			continue
		}
		conv.close()
		delete(s.conversations, id)
		log.Printf("[chat] expired idle session=%s", id)
		closed++
	}
	return closed
}

// RunIdleSweeper calls SweepIdle periodically until ctx ends.
func (s *Service) RunIdleSweeper(ctx context.Context, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(max(ttl/4, time.Second))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepIdle(time.Now().UTC(), ttl)
		}
	}
}

// Close ends every conversation and waits for pending reply goroutines.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	for id, conv := range s.conversations {
		conv.close()
		delete(s.conversations, id)
	}
	s.mu.Unlock()

	s.wg.Wait()
}

func (c *conversation) append(msg chat.Message) {
	c.messages = append(c.messages, msg)
	c.lastActive = msg.Timestamp
	for id, sub := range c.subscribers {
		select {
		case sub <- msg:
		default:
			log.Printf("[chat] dropping slow subscriber session=%s sub=%d", c.session.ID, id)
			delete(c.subscribers, id)
			close(sub)
		}
	}
}

func (c *conversation) close() {
	c.cancel()
	for id, sub := range c.subscribers {
		delete(c.subscribers, id)
		close(sub)
	}
}

func (c *conversation) snapshot() chat.Snapshot {
	messages := make([]chat.Message, len(c.messages))
	copy(messages, c.messages)
	return chat.Snapshot{
		Session:  c.session,
		State:    c.state,
		Messages: messages,
	}
}

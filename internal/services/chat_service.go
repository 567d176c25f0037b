package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"

	"chatflow/internal/models"
	"chatflow/pkg/logger"

	"golang.org/x/sync/errgroup"
)

var (
	ErrFetchFailed      = errors.New("failed to load message history")
	ErrConnectionFailed = errors.New("failed to open live connection")
	ErrConnectionLost   = errors.New("live connection lost")
	ErrServerRejected   = errors.New("server rejected message")
	ErrNotConnected     = errors.New("not connected")
	ErrEmptyMessage     = errors.New("message is empty")
	ErrNoConversation   = errors.New("no conversation selected")
)

type HistoryLoader interface {
	GetMessages(ctx context.Context, conversationID string) ([]models.Message, error)
}

// Transport is the live connection. onFrame and onClose run on the
// transport's reader goroutine; onClose is not called after Close.
type Transport interface {
	Connect(ctx context.Context, conversationID, token string, onFrame func([]byte), onClose func(error)) error
	Send(text string) error
	Close() error
}

type ConversationNotifier interface {
	NotifyNewMessage(msg models.Message)
}

type Credentials interface {
	Token() string
}

// ChatService keeps the message list and presence of the active
// conversation in sync with the history endpoint and the live stream.
type ChatService struct {
	history   HistoryLoader
	transport Transport
	creds     Credentials
	notifier  ConversationNotifier

	mu        sync.Mutex
	state     State
	epoch     uint64
	cancel    context.CancelFunc
	ready     chan struct{}
	readyDone bool
	lost      bool
	onChange  func(State)
	onError   func(error)
}

func NewChatService(history HistoryLoader, transport Transport, creds Credentials, notifier ConversationNotifier) *ChatService {
	ready := make(chan struct{})
	close(ready)
	return &ChatService{
		history:   history,
		transport: transport,
		creds:     creds,
		notifier:  notifier,
		state:     State{Online: NewPresenceSet()},
		ready:     ready,
		readyDone: true,
	}
}

// OnChange registers fn to receive every new state. fn runs outside the
// service lock and may call back into the service.
func (s *ChatService) OnChange(fn func(State)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// OnError registers fn to receive fetch, connection and server errors.
func (s *ChatService) OnError(fn func(error)) {
	s.mu.Lock()
	s.onError = fn
	s.mu.Unlock()
}

func (s *ChatService) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Ready returns a channel that is closed once the latest Initialize has
// settled: the conversation went live and OnChange saw it, or it was
// superseded.
func (s *ChatService) Ready() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Initialize switches the service to conversationID. The previous
// connection is released and state is cleared before anything for the new
// conversation is processed. History and the live connection are loaded in
// the background; Ready reports when both attempts finished.
func (s *ChatService) Initialize(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return ErrNoConversation
	}

	s.mu.Lock()
	epoch := s.resetLocked(State{
		ConversationID: conversationID,
		Phase:          PhaseLoading,
		Online:         NewPresenceSet(),
	})
	loadCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.ready = make(chan struct{})
	s.readyDone = false
	token := ""
	if s.creds != nil {
		token = s.creds.Token()
	}
	st, onChange := s.state, s.onChange
	s.mu.Unlock()

	if err := s.transport.Close(); err != nil {
		logger.Warn("Failed to release previous connection: %v", err)
	}
	emit(onChange, st)

	logger.Debug("Loading conversation %s", conversationID)

	go func() {
		var g errgroup.Group
		g.Go(func() error { return s.loadHistory(loadCtx, epoch, conversationID) })
		g.Go(func() error { return s.connect(loadCtx, epoch, conversationID, token) })
		if err := g.Wait(); err != nil {
			logger.Debug("Conversation %s went live with errors: %v", conversationID, err)
		}
		s.goLive(epoch)
	}()

	return nil
}

// Teardown releases the connection and returns to Idle. It is safe to call
// when nothing is open.
func (s *ChatService) Teardown() {
	s.mu.Lock()
	s.resetLocked(State{Online: NewPresenceSet()})
	st, onChange := s.state, s.onChange
	s.mu.Unlock()

	if err := s.transport.Close(); err != nil {
		logger.Warn("Failed to close connection: %v", err)
	}
	emit(onChange, st)
}

// ApplySnapshot replaces the message list with history fetched for
// conversationID. It reports false and changes nothing when conversationID
// is not the active conversation.
func (s *ChatService) ApplySnapshot(conversationID string, messages []models.Message) bool {
	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()
	return s.applySnapshot(epoch, conversationID, messages)
}

// ApplyEvent folds one live event into the active conversation.
func (s *ChatService) ApplyEvent(ev models.Event) {
	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()
	s.applyEvent(epoch, ev)
}

// View returns the messages matching query. The sequence reads the state
// at the time of the call and can be iterated any number of times.
func (s *ChatService) View(query string) iter.Seq[models.Message] {
	s.mu.Lock()
	messages := s.state.Messages
	s.mu.Unlock()
	return FilterMessages(messages, query)
}

// Send writes text to the live connection. The caller keeps its draft when
// an error is returned.
func (s *ChatService) Send(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	connected := s.state.Connected
	s.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}

	if err := s.transport.Send(text); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func (s *ChatService) loadHistory(ctx context.Context, epoch uint64, conversationID string) error {
	messages, err := s.history.GetMessages(ctx, conversationID)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		err = fmt.Errorf("%w: %v", ErrFetchFailed, err)
		logger.Error("Failed to load history for %s: %v", conversationID, err)
		s.report(epoch, err)
		return err
	}
	s.applySnapshot(epoch, conversationID, messages)
	return nil
}

func (s *ChatService) connect(ctx context.Context, epoch uint64, conversationID, token string) error {
	err := s.transport.Connect(ctx, conversationID, token,
		func(data []byte) { s.handleFrame(epoch, data) },
		func(err error) { s.handleClose(epoch, err) },
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		err = fmt.Errorf("%w: %v", ErrConnectionFailed, err)
		logger.Error("Failed to connect to %s: %v", conversationID, err)
		s.report(epoch, err)
		return err
	}

	s.mu.Lock()
	if epoch != s.epoch || s.lost {
		s.mu.Unlock()
		return nil
	}
	s.state.Connected = true
	st, onChange := s.state, s.onChange
	s.mu.Unlock()

	emit(onChange, st)
	return nil
}

func (s *ChatService) handleFrame(epoch uint64, data []byte) {
	ev, err := models.ParseEvent(data)
	if err != nil {
		logger.Debug("Dropping frame: %v", err)
		return
	}
	s.applyEvent(epoch, ev)
}

func (s *ChatService) handleClose(epoch uint64, cause error) {
	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return
	}
	s.lost = true
	s.state.Connected = false
	s.state.Online = NewPresenceSet()
	st, onChange, onError := s.state, s.onChange, s.onError
	s.mu.Unlock()

	emit(onChange, st)
	if onError != nil {
		onError(fmt.Errorf("%w: %v", ErrConnectionLost, cause))
	}
}

func (s *ChatService) applySnapshot(epoch uint64, conversationID string, messages []models.Message) bool {
	s.mu.Lock()
	if epoch != s.epoch || s.state.Phase == PhaseIdle || s.state.ConversationID != conversationID {
		s.mu.Unlock()
		logger.Debug("Discarding history for inactive conversation %s", conversationID)
		return false
	}
	s.state = MergeSnapshot(s.state, messages)
	st, onChange := s.state, s.onChange
	s.mu.Unlock()

	emit(onChange, st)
	return true
}

func (s *ChatService) applyEvent(epoch uint64, ev models.Event) {
	s.mu.Lock()
	if epoch != s.epoch || s.state.Phase == PhaseIdle {
		s.mu.Unlock()
		return
	}

	if e, ok := ev.(models.ServerError); ok {
		onError := s.onError
		s.mu.Unlock()
		logger.Warn("Server error: %s", e.Content)
		if onError != nil {
			onError(fmt.Errorf("%w: %s", ErrServerRejected, e.Content))
		}
		return
	}

	next, forward := Reduce(s.state, ev)
	s.state = next
	st, onChange := s.state, s.onChange
	s.mu.Unlock()

	if forward != nil {
		if s.notifier != nil {
			s.notifier.NotifyNewMessage(*forward)
		}
		return
	}
	emit(onChange, st)
}

func (s *ChatService) goLive(epoch uint64) {
	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return
	}
	s.state.Phase = PhaseLive
	st, onChange := s.state, s.onChange
	s.mu.Unlock()

	logger.Debug("Conversation %s is live", st.ConversationID)
	emit(onChange, st)

	s.mu.Lock()
	if epoch == s.epoch {
		s.closeReadyLocked()
	}
	s.mu.Unlock()
}

func (s *ChatService) report(epoch uint64, err error) {
	s.mu.Lock()
	current := epoch == s.epoch
	onError := s.onError
	s.mu.Unlock()

	if current && onError != nil {
		onError(err)
	}
}

// resetLocked invalidates every callback of the previous generation and
// installs st. It returns the new generation.
func (s *ChatService) resetLocked(st State) uint64 {
	s.epoch++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.closeReadyLocked()
	s.lost = false
	s.state = st
	return s.epoch
}

func (s *ChatService) closeReadyLocked() {
	if !s.readyDone {
		close(s.ready)
		s.readyDone = true
	}
}

func emit(fn func(State), st State) {
	if fn != nil {
		fn(st)
	}
}

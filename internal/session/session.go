// Package session runs one conversation loop per active user: poll for the
// user's next message, run the assistant, persist the response, repeat.
// Each session is an isolated failure domain owned by the supervisor.
package session

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/firebase/genkit/go/ai"

	"github.com/weftworks/loombot/internal/log"
)

// DefaultPollInterval is the delay between message polls.
const DefaultPollInterval = 500 * time.Millisecond

// Runner processes one user turn. *agent.Assistant satisfies it.
type Runner interface {
	Run(ctx context.Context, input string, history []*ai.Message) string
}

// MessageSource is polled for the user's next unprocessed message.
// ok is false when no new message is waiting.
type MessageSource interface {
	FetchLatest(ctx context.Context, userID string) (message string, ok bool, err error)
}

// ResponseSink receives assistant responses for persistence and delivery.
type ResponseSink interface {
	Deliver(ctx context.Context, userID, response string) error
}

// Config carries a session's dependencies.
type Config struct {
	UserID       string
	Assistant    Runner
	Source       MessageSource
	Sink         ResponseSink
	Logger       log.Logger
	HistoryLimit int           // in messages (0 = DefaultHistoryLimit)
	PollInterval time.Duration // 0 = DefaultPollInterval
}

// Session owns one user's conversation loop and its bounded history.
type Session struct {
	userID       string
	assistant    Runner
	source       MessageSource
	sink         ResponseSink
	history      *History
	pollInterval time.Duration
	logger       log.Logger
}

// New creates a Session for one user.
func New(cfg Config) (*Session, error) {
	if cfg.UserID == "" {
		return nil, errors.New("session: user id is required")
	}
	if cfg.Assistant == nil {
		return nil, errors.New("session: assistant is required")
	}
	if cfg.Source == nil {
		return nil, errors.New("session: message source is required")
	}
	if cfg.Sink == nil {
		return nil, errors.New("session: response sink is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Session{
		userID:       cfg.UserID,
		assistant:    cfg.Assistant,
		source:       cfg.Source,
		sink:         cfg.Sink,
		history:      NewHistory(cfg.HistoryLimit),
		pollInterval: pollInterval,
		logger:       cfg.Logger.With("component", "session", "user_id", cfg.UserID),
	}, nil
}

// UserID returns the owning user's identifier.
func (s *Session) UserID() string {
	return s.userID
}

// History exposes the session's conversation window, mainly for tests.
func (s *Session) History() *History {
	return s.history
}

// Run executes the conversation loop until the context is canceled or the
// loop fails. Panics are recovered and returned as errors so a broken
// session never takes the process down with it.
func (s *Session) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("session for user %s panicked: %v\n%s", s.userID, r, debug.Stack())
			s.logger.Error("session panicked", "panic", r)
		}
	}()

	s.logger.Info("session started")

	for {
		message, err := s.waitForMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				s.logger.Info("session stopped")
				return nil
			}
			return fmt.Errorf("session for user %s: %w", s.userID, err)
		}

		// The assistant converts every turn failure into apology text, so a
		// bad turn costs one answer, never the session.
		response := s.assistant.Run(ctx, message, s.history.Messages())

		s.history.Add(message, response)

		if err := s.sink.Deliver(ctx, s.userID, response); err != nil {
			s.logger.Error("failed to deliver response", "error", err)
		}
	}
}

// waitForMessage polls the source until a new message arrives or the
// context ends. Source errors are logged and retried at the poll interval:
// a transient database hiccup should not kill the session.
func (s *Session) waitForMessage(ctx context.Context) (string, error) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		message, ok, err := s.source.FetchLatest(ctx, s.userID)
		if err != nil {
			if ctx.Err() != nil {
				return "", context.Canceled
			}
			s.logger.Warn("message poll failed", "error", err)
		} else if ok {
			return message, nil
		}

		select {
		case <-ctx.Done():
			return "", context.Canceled
		case <-ticker.C:
		}
	}
}

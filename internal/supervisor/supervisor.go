// Package supervisor discovers active users and keeps exactly one running
// session per user. Sessions are separate failure domains: a crashed
// session is reaped and the user becomes eligible for a fresh one on a
// later poll.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/weftworks/loombot/internal/log"
)

// DefaultPollInterval is the delay between user directory polls.
const DefaultPollInterval = 60 * time.Second

// UserDirectory enumerates the users currently eligible for a session.
type UserDirectory interface {
	ActiveUsers(ctx context.Context) ([]string, error)
}

// SessionRunner is one user's conversation loop. *session.Session satisfies it.
type SessionRunner interface {
	Run(ctx context.Context) error
}

// Factory builds the session for a newly discovered user.
type Factory func(userID string) (SessionRunner, error)

// Config carries the supervisor's dependencies.
type Config struct {
	Directory    UserDirectory
	NewSession   Factory
	Logger       log.Logger
	PollInterval time.Duration // 0 = DefaultPollInterval
}

// running tracks one live session goroutine.
type running struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Supervisor owns the active session set. The set is mutated only from the
// supervisor's own loop; the mutex covers reads from Active() in tests and
// health checks.
type Supervisor struct {
	directory    UserDirectory
	newSession   Factory
	pollInterval time.Duration
	logger       log.Logger

	mu     sync.Mutex
	active map[string]*running
	wg     sync.WaitGroup
}

// New creates a Supervisor.
func New(cfg Config) (*Supervisor, error) {
	if cfg.Directory == nil {
		return nil, errors.New("supervisor: user directory is required")
	}
	if cfg.NewSession == nil {
		return nil, errors.New("supervisor: session factory is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Supervisor{
		directory:    cfg.Directory,
		newSession:   cfg.NewSession,
		pollInterval: pollInterval,
		logger:       cfg.Logger.With("component", "supervisor"),
		active:       make(map[string]*running),
	}, nil
}

// Run reconciles sessions against the user directory until the context is
// canceled, then stops every session and waits for them to finish. The
// loop itself never dies on a poll error.
func (s *Supervisor) Run(ctx context.Context) error {
	s.logger.Info("supervisor started", "poll_interval", s.pollInterval)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		if err := s.reconcile(ctx); err != nil {
			s.logger.Error("reconcile failed", "error", err)
		}

		select {
		case <-ctx.Done():
			s.shutdown()
			s.logger.Info("supervisor stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// reconcile performs one poll cycle: reap finished sessions, then spawn
// sessions for newly discovered users.
func (s *Supervisor) reconcile(ctx context.Context) error {
	s.reap()

	users, err := s.directory.ActiveUsers(ctx)
	if err != nil {
		return fmt.Errorf("enumerate users: %w", err)
	}

	current := make(map[string]bool, len(users))
	for _, userID := range users {
		current[userID] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for userID := range current {
		if _, ok := s.active[userID]; ok {
			continue
		}
		if err := s.spawnLocked(ctx, userID); err != nil {
			s.logger.Error("failed to start session", "user_id", userID, "error", err)
		}
	}

	return nil
}

// spawnLocked starts one session goroutine. Caller holds s.mu.
func (s *Supervisor) spawnLocked(ctx context.Context, userID string) error {
	sess, err := s.newSession(userID)
	if err != nil {
		return fmt.Errorf("build session for user %s: %w", userID, err)
	}

	sessCtx, cancel := context.WithCancel(ctx)
	r := &running{cancel: cancel, done: make(chan struct{})}
	s.active[userID] = r

	s.logger.Info("starting session", "user_id", userID)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(r.done)
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("session goroutine panicked",
					"user_id", userID, "panic", rec, "stack", string(debug.Stack()))
			}
		}()

		if err := sess.Run(sessCtx); err != nil {
			s.logger.Error("session terminated with error", "user_id", userID, "error", err)
		}
	}()

	return nil
}

// reap removes bookkeeping for sessions whose goroutine has ended. The
// user stays eligible for a fresh session on the next poll if the
// directory still lists them.
func (s *Supervisor) reap() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for userID, r := range s.active {
		select {
		case <-r.done:
			r.cancel()
			delete(s.active, userID)
			s.logger.Info("session reaped", "user_id", userID)
		default:
		}
	}
}

// shutdown cancels every session and waits for the goroutines to exit.
func (s *Supervisor) shutdown() {
	s.mu.Lock()
	for _, r := range s.active {
		r.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	s.active = make(map[string]*running)
	s.mu.Unlock()
}

// Active returns the user ids with a live session, for observability.
func (s *Supervisor) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make([]string, 0, len(s.active))
	for userID := range s.active {
		users = append(users, userID)
	}
	return users
}

package services

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/ch2church/worship-storyboard/internal/errors"
	"github.com/ch2church/worship-storyboard/internal/models"
)

// UserInfo identifies who is editing.
type UserInfo struct {
	Name     string `json:"user_name"`
	Position string `json:"position"`
	Role     string `json:"role"`
}

// Session is one person's working context. It owns the Submission being
// edited; every mutation goes through SessionService so only one request
// touches it at a time.
type Session struct {
	ID           string
	User         UserInfo
	CanEdit      bool
	Submission   *models.Submission
	SubmissionID string
	CreatedAt    time.Time
	LastSeen     time.Time
}

// SessionService keeps sessions in memory.
type SessionService struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	locks    *LockManager
	ttl      time.Duration
	now      func() time.Time
}

// NewSessionService drops sessions unused for longer than ttl.
func NewSessionService(ttl time.Duration) *SessionService {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &SessionService{
		sessions: make(map[string]*Session),
		locks:    NewLockManager(ttl),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Create opens a session with an empty storyboard for today.
func (s *SessionService) Create(user UserInfo, canEdit bool) *Session {
	now := s.now()
	sub := models.NewSubmission(now)
	sub.UserName = user.Name
	sub.Position = user.Position
	sub.Role = user.Role

	sess := &Session{
		ID:         uuid.NewString(),
		User:       user,
		CanEdit:    canEdit,
		Submission: sub,
		CreatedAt:  now,
		LastSeen:   now,
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	return sess
}

func (s *SessionService) lookup(id string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, apperrors.NewUnauthorizedError(fmt.Sprintf("session %s not found or expired", id), nil)
	}
	return sess, nil
}

// Update runs fn with exclusive access to the session.
func (s *SessionService) Update(id string, fn func(*Session) error) error {
	sess, err := s.lookup(id)
	if err != nil {
		return err
	}
	return s.locks.ExecuteWithLock(id, func() error {
		sess.LastSeen = s.now()
		return fn(sess)
	})
}

// Edit is Update for editors only.
func (s *SessionService) Edit(id string, fn func(*Session) error) error {
	return s.Update(id, func(sess *Session) error {
		if !sess.CanEdit {
			return apperrors.NewForbiddenError("read-only access: editing requires the editor role", nil)
		}
		return fn(sess)
	})
}

// View runs fn with shared access; fn must not mutate the session.
func (s *SessionService) View(id string, fn func(*Session) error) error {
	sess, err := s.lookup(id)
	if err != nil {
		return err
	}
	return s.locks.ExecuteWithReadLock(id, func() error {
		return fn(sess)
	})
}

// Delete ends a session.
func (s *SessionService) Delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Count reports open sessions.
func (s *SessionService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// CleanupExpired removes sessions idle past the TTL and returns how many.
func (s *SessionService) CleanupExpired() int {
	cutoff := s.now().Add(-s.ttl)
	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	removed := 0
	for _, id := range ids {
		_ = s.View(id, func(sess *Session) error {
			if sess.LastSeen.Before(cutoff) {
				s.Delete(id)
				removed++
			}
			return nil
		})
	}
	return removed
}

// Close stops background work.
func (s *SessionService) Close() {
	s.locks.Stop()
}

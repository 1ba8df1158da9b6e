package services

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ch2church/worship-storyboard/internal/errors"
	"github.com/ch2church/worship-storyboard/internal/models"
)

func TestSessionLifecycle(t *testing.T) {
	svc := NewSessionService(time.Hour)
	defer svc.Close()
	clock := time.Date(2024, 6, 9, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }

	editor := svc.Create(UserInfo{Name: "김 목사", Position: "담임목사", Role: "교역자"}, true)
	viewer := svc.Create(UserInfo{Name: "박 집사", Position: "미디어부", Role: "미디어부"}, false)
	assert.NotEqual(t, editor.ID, viewer.ID)
	assert.Equal(t, 2, svc.Count())
	assert.Equal(t, "김 목사", editor.Submission.UserName)
	assert.Equal(t, models.DateOnly(clock), editor.Submission.WorshipDate)

	err := svc.Edit(editor.ID, func(s *Session) error {
		s.Submission.AddMaterial().SetText("창 1:1")
		return nil
	})
	require.NoError(t, err)

	err = svc.Edit(viewer.ID, func(s *Session) error {
		t.Fatal("viewer edit must not run")
		return nil
	})
	assert.True(t, apperrors.IsForbiddenError(err))

	var materials int
	require.NoError(t, svc.View(viewer.ID, func(s *Session) error {
		materials = len(s.Submission.Materials)
		return nil
	}))
	assert.Zero(t, materials)

	err = svc.Update("missing", func(*Session) error { return nil })
	assert.True(t, apperrors.IsUnauthorizedError(err))

	svc.Delete(viewer.ID)
	assert.Equal(t, 1, svc.Count())
}

func TestSessionCleanupExpired(t *testing.T) {
	svc := NewSessionService(time.Hour)
	defer svc.Close()
	clock := time.Date(2024, 6, 9, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }

	stale := svc.Create(UserInfo{Name: "a"}, true)
	clock = clock.Add(50 * time.Minute)
	fresh := svc.Create(UserInfo{Name: "b"}, true)

	clock = clock.Add(20 * time.Minute)
	assert.Equal(t, 1, svc.CleanupExpired())
	assert.Equal(t, 1, svc.Count())

	assert.True(t, apperrors.IsUnauthorizedError(svc.View(stale.ID, func(*Session) error { return nil })))
	require.NoError(t, svc.Update(fresh.ID, func(*Session) error { return nil }))

	// touching the session keeps it alive
	clock = clock.Add(50 * time.Minute)
	assert.Zero(t, svc.CleanupExpired())
}

func TestSessionUpdatesAreSerialized(t *testing.T) {
	svc := NewSessionService(time.Hour)
	defer svc.Close()
	sess := svc.Create(UserInfo{Name: "kim"}, true)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = svc.Edit(sess.ID, func(s *Session) error {
				s.Submission.AddMaterial()
				return nil
			})
		}()
	}
	wg.Wait()

	require.NoError(t, svc.View(sess.ID, func(s *Session) error {
		assert.Len(t, s.Submission.Materials, 50)
		return nil
	}))
}

func TestLockManagerCleanup(t *testing.T) {
	lm := NewLockManager(time.Minute)
	defer lm.Stop()

	require.NoError(t, lm.ExecuteWithLock("a", func() error { return nil }))
	require.NoError(t, lm.ExecuteWithReadLock("b", func() error { return nil }))
	assert.Equal(t, 2, lm.Len())

	assert.Zero(t, lm.cleanupUnusedLocks(time.Now()))

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error)
	go func() {
		done <- lm.ExecuteWithLock("b", func() error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	// "b" is in use, only "a" can go
	assert.Equal(t, 1, lm.cleanupUnusedLocks(time.Now().Add(2*time.Minute)))
	assert.Equal(t, 1, lm.Len())

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, lm.cleanupUnusedLocks(time.Now().Add(2*time.Minute)))
	assert.Zero(t, lm.Len())
}

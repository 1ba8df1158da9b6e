// internal/services/lock_manager.go
package services

import (
	"sync"
	"time"
)

// LockManager hands out one RWMutex per key and forgets idle ones.
type LockManager struct {
	locks      map[string]*LockInfo
	globalLock sync.Mutex
	idleTTL    time.Duration
	stop       chan struct{}
	stopOnce   sync.Once
}

// LockInfo wraps a key's mutex with usage bookkeeping.
type LockInfo struct {
	Mutex    sync.RWMutex
	LastUsed time.Time
	refs     int
}

// NewLockManager starts a cleaner that drops locks idle for longer than idleTTL.
func NewLockManager(idleTTL time.Duration) *LockManager {
	if idleTTL <= 0 {
		idleTTL = 30 * time.Minute
	}
	lm := &LockManager{
		locks:   make(map[string]*LockInfo),
		idleTTL: idleTTL,
		stop:    make(chan struct{}),
	}
	go lm.cleanupLoop()
	return lm
}

func (lm *LockManager) acquire(key string) *LockInfo {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()

	info, ok := lm.locks[key]
	if !ok {
		info = &LockInfo{}
		lm.locks[key] = info
	}
	info.refs++
	info.LastUsed = time.Now()
	return info
}

func (lm *LockManager) release(info *LockInfo) {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()
	info.refs--
	info.LastUsed = time.Now()
}

// ExecuteWithLock runs fn holding key's write lock.
func (lm *LockManager) ExecuteWithLock(key string, fn func() error) error {
	info := lm.acquire(key)
	defer lm.release(info)

	info.Mutex.Lock()
	defer info.Mutex.Unlock()
	return fn()
}

// ExecuteWithReadLock runs fn holding key's read lock.
func (lm *LockManager) ExecuteWithReadLock(key string, fn func() error) error {
	info := lm.acquire(key)
	defer lm.release(info)

	info.Mutex.RLock()
	defer info.Mutex.RUnlock()
	return fn()
}

// Len reports how many keys currently have a lock.
func (lm *LockManager) Len() int {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()
	return len(lm.locks)
}

// Stop ends the cleaner.
func (lm *LockManager) Stop() {
	lm.stopOnce.Do(func() { close(lm.stop) })
}

func (lm *LockManager) cleanupLoop() {
	ticker := time.NewTicker(lm.idleTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-lm.stop:
			return
		case <-ticker.C:
			lm.cleanupUnusedLocks(time.Now())
		}
	}
}

// cleanupUnusedLocks drops locks nobody holds or waits on that have been
// idle past the TTL.
func (lm *LockManager) cleanupUnusedLocks(now time.Time) int {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()

	removed := 0
	for key, info := range lm.locks {
		if info.refs == 0 && now.Sub(info.LastUsed) > lm.idleTTL {
			delete(lm.locks, key)
			removed++
		}
	}
	return removed
}

// internal/services/stats_service.go
package services

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ch2church/worship-storyboard/internal/utils"
)

// Activity events counted by StatsService.
const (
	EventDraftSaved = "draft_saved"
	EventSubmitted  = "submitted"
	EventExported   = "exported"
	EventLogin      = "login"
)

const dailyRetention = 90

// ActivityStats is the persisted activity summary.
type ActivityStats struct {
	Today       map[string]int            `json:"today"`
	Daily       map[string]map[string]int `json:"daily"`
	Monthly     map[string]map[string]int `json:"monthly"`
	LastUpdated time.Time                 `json:"last_updated"`
}

// StatsService keeps per-day and per-month activity counts in
// <dir>/activity_stats.json. Writes are batched.
type StatsService struct {
	statsFile    string
	mutex        sync.Mutex
	cachedStats  *ActivityStats
	isDirty      bool
	lastSaveTime time.Time
	saveInterval time.Duration
	stop         chan struct{}
	stopOnce     sync.Once
	now          func() time.Time
	logger       *utils.Logger
}

// NewStatsService loads or creates the stats file under dir and starts the
// periodic flush.
func NewStatsService(dir string, saveInterval time.Duration) (*StatsService, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create stats directory: %w", err)
	}
	if saveInterval <= 0 {
		saveInterval = 30 * time.Second
	}
	s := &StatsService{
		statsFile:    filepath.Join(dir, "activity_stats.json"),
		saveInterval: saveInterval,
		stop:         make(chan struct{}),
		now:          time.Now,
		logger:       utils.GetLogger(),
	}

	stats, err := s.loadStats()
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("stats file unreadable, starting fresh", map[string]interface{}{"file": s.statsFile, "error": err.Error()})
		}
		stats = newActivityStats()
	}
	s.cachedStats = stats

	go s.periodicSave()
	return s, nil
}

func newActivityStats() *ActivityStats {
	return &ActivityStats{
		Daily:   make(map[string]map[string]int),
		Monthly: make(map[string]map[string]int),
	}
}

func (s *StatsService) loadStats() (*ActivityStats, error) {
	data, err := os.ReadFile(s.statsFile)
	if err != nil {
		return nil, err
	}
	stats := newActivityStats()
	if err := json.Unmarshal(data, stats); err != nil {
		return nil, fmt.Errorf("parse stats: %w", err)
	}
	if stats.Daily == nil {
		stats.Daily = make(map[string]map[string]int)
	}
	if stats.Monthly == nil {
		stats.Monthly = make(map[string]map[string]int)
	}
	return stats, nil
}

func (s *StatsService) saveStats() error {
	data, err := json.MarshalIndent(s.cachedStats, "", "  ")
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	tempFile := s.statsFile + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("write stats: %w", err)
	}
	if err := os.Rename(tempFile, s.statsFile); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("replace stats: %w", err)
	}
	s.isDirty = false
	s.lastSaveTime = s.now()
	return nil
}

// Record counts one event. A nil service ignores it.
func (s *StatsService) Record(event string) error {
	if s == nil {
		return nil
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := s.now()
	day := now.Format("2006-01-02")
	month := now.Format("2006-01")
	bump(s.cachedStats.Daily, day, event)
	bump(s.cachedStats.Monthly, month, event)
	s.cachedStats.LastUpdated = now
	s.isDirty = true
	s.pruneDaily(now)

	if now.Sub(s.lastSaveTime) > s.saveInterval {
		return s.saveStats()
	}
	return nil
}

func bump(set map[string]map[string]int, period, event string) {
	counts, ok := set[period]
	if !ok {
		counts = make(map[string]int)
		set[period] = counts
	}
	counts[event]++
}

func (s *StatsService) pruneDaily(now time.Time) {
	if len(s.cachedStats.Daily) <= dailyRetention {
		return
	}
	cutoff := now.AddDate(0, 0, -dailyRetention).Format("2006-01-02")
	for day := range s.cachedStats.Daily {
		if day < cutoff {
			delete(s.cachedStats.Daily, day)
		}
	}
}

// Snapshot returns a deep copy with Today filled for the current date.
func (s *StatsService) Snapshot() *ActivityStats {
	if s == nil {
		return nil
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()

	out := &ActivityStats{
		Today:       copyCounts(s.cachedStats.Daily[s.now().Format("2006-01-02")]),
		Daily:       make(map[string]map[string]int, len(s.cachedStats.Daily)),
		Monthly:     make(map[string]map[string]int, len(s.cachedStats.Monthly)),
		LastUpdated: s.cachedStats.LastUpdated,
	}
	for k, v := range s.cachedStats.Daily {
		out.Daily[k] = copyCounts(v)
	}
	for k, v := range s.cachedStats.Monthly {
		out.Monthly[k] = copyCounts(v)
	}
	return out
}

// RecentDays lists the dates with activity, newest first.
func (s *StatsService) RecentDays() []string {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	days := make([]string, 0, len(s.cachedStats.Daily))
	for day := range s.cachedStats.Daily {
		days = append(days, day)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(days)))
	return days
}

func copyCounts(original map[string]int) map[string]int {
	out := make(map[string]int, len(original))
	maps.Copy(out, original)
	return out
}

// Flush writes pending counts now.
func (s *StatsService) Flush() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if !s.isDirty {
		return nil
	}
	return s.saveStats()
}

func (s *StatsService) periodicSave() {
	ticker := time.NewTicker(s.saveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if err := s.Flush(); err != nil {
				s.logger.Warn("periodic stats save failed", map[string]interface{}{"error": err.Error()})
			}
		}
	}
}

// Close stops the flush loop and saves pending counts.
func (s *StatsService) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return s.Flush()
}

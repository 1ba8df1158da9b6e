package services

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsRecordAndReload(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStatsService(dir, time.Hour)
	require.NoError(t, err)

	day := time.Date(2024, 6, 9, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return day }

	// first record saves immediately, later ones are batched
	require.NoError(t, s.Record(EventDraftSaved))
	require.NoError(t, s.Record(EventSubmitted))
	require.NoError(t, s.Record(EventSubmitted))

	snap := s.Snapshot()
	assert.Equal(t, map[string]int{EventDraftSaved: 1, EventSubmitted: 2}, snap.Today)
	assert.Equal(t, 2, snap.Monthly["2024-06"][EventSubmitted])

	snap.Today[EventSubmitted] = 99
	assert.Equal(t, 2, s.Snapshot().Today[EventSubmitted])

	require.NoError(t, s.Close())

	data, err := os.ReadFile(filepath.Join(dir, "activity_stats.json"))
	require.NoError(t, err)
	var saved ActivityStats
	require.NoError(t, json.Unmarshal(data, &saved))
	assert.Equal(t, 2, saved.Daily["2024-06-09"][EventSubmitted])

	reloaded, err := NewStatsService(dir, time.Hour)
	require.NoError(t, err)
	defer reloaded.Close()
	assert.Equal(t, []string{"2024-06-09"}, reloaded.RecentDays())
	assert.Equal(t, 1, reloaded.Snapshot().Monthly["2024-06"][EventDraftSaved])
}

func TestStatsPrunesOldDays(t *testing.T) {
	s, err := NewStatsService(t.TempDir(), time.Hour)
	require.NoError(t, err)
	defer s.Close()

	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i <= dailyRetention+5; i++ {
		d := start.AddDate(0, 0, i)
		s.now = func() time.Time { return d }
		require.NoError(t, s.Record(EventExported))
	}

	days := s.RecentDays()
	assert.LessOrEqual(t, len(days), dailyRetention+1)
	assert.NotContains(t, days, "2024-01-01")
	assert.Equal(t, 31, s.Snapshot().Monthly["2024-01"][EventExported])
}

func TestStatsCorruptFileStartsFresh(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "activity_stats.json"), []byte("{nope"), 0644))

	s, err := NewStatsService(dir, time.Hour)
	require.NoError(t, err)
	defer s.Close()
	assert.Empty(t, s.RecentDays())
}

func TestNilStatsIgnoresEvents(t *testing.T) {
	var s *StatsService
	assert.NoError(t, s.Record(EventLogin))
	assert.Nil(t, s.Snapshot())
}

package connectors

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/hydra/internal/database"
	"github.com/aristath/hydra/internal/domain"
	"github.com/aristath/hydra/internal/marketdata"
)

func writeEventsFile(t *testing.T, dir string, events []calendarEvent) string {
	t.Helper()
	path := filepath.Join(dir, "events.json")
	data, err := json.Marshal(events)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func floatPtr(v float64) *float64 { return &v }

func TestUpcoming_FiltersPastAndBeyondHorizon(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	path := writeEventsFile(t, dir, []calendarEvent{
		{Symbol: "SPY", Name: "past", When: now.Add(-time.Hour), Weight: 1},
		{Symbol: "SPY", Name: "soon", When: now.Add(2 * time.Hour), Weight: 1},
		{Symbol: "SPY", Name: "far", When: now.Add(48 * time.Hour), Weight: 1},
	})

	cal := NewEconCalendar(path, zerolog.Nop(), marketdata.New(), nil)
	upcoming := cal.Upcoming(24)

	require.Len(t, upcoming, 1)
	assert.Equal(t, "soon", upcoming[0].Name)
}

func TestPoll_RecordsSurpriseOnceEventCrossesIntoRecentBand(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	path := writeEventsFile(t, dir, []calendarEvent{
		{
			Symbol: "SPY", Name: "cpi", When: now.Add(-40 * time.Minute), Weight: 1,
			Actual: floatPtr(3.2), Consensus: floatPtr(3.0),
		},
	})

	db, err := database.New(filepath.Join(dir, "event_surprises.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cal := NewEconCalendar(path, zerolog.Nop(), marketdata.New(), db)
	cal.Poll(nil)

	surprises := cal.RecentSurprises(10)
	require.Len(t, surprises, 1)
	assert.Equal(t, "cpi", surprises[0].EventName)
	assert.Equal(t, domain.SurpriseBeat, surprises[0].Direction)

	cal.Poll(nil)
	surprises = cal.RecentSurprises(10)
	assert.Len(t, surprises, 1, "second poll must not re-record the same event")
}

func TestClassifySurprise_Bands(t *testing.T) {
	pct, dir := domain.ClassifySurprise(3.2, 3.0)
	assert.InDelta(t, 0.0667, pct, 0.001)
	assert.Equal(t, domain.SurpriseBeat, dir)

	_, dir = domain.ClassifySurprise(2.8, 3.0)
	assert.Equal(t, domain.SurpriseMiss, dir)

	_, dir = domain.ClassifySurprise(3.01, 3.0)
	assert.Equal(t, domain.SurpriseInline, dir)
}

package signalstore

import (
	"testing"
	"time"

	"github.com/aristath/hydra/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sig(id string, priority domain.Priority, strength float64, ttlHours float64) domain.Signal {
	return domain.Signal{
		ID:         id,
		Category:   domain.CategoryCrypto,
		Priority:   priority,
		Strength:   strength,
		DetectedAt: time.Now(),
		TTLHours:   ttlHours,
		Reliability: 1.0,
		Direction:  1.0,
	}
}

func TestAdd_DedupesByID(t *testing.T) {
	s := New()
	require.True(t, s.Add(sig("a", domain.PriorityHigh, 0.5, 24)))
	require.False(t, s.Add(sig("a", domain.PriorityHigh, 0.9, 24)))
	assert.Equal(t, 1, s.Len())
}

func TestActive_SortedByPriorityThenStrength(t *testing.T) {
	s := New()
	s.Add(sig("low-strong", domain.PriorityLow, 0.9, 24))
	s.Add(sig("crit-weak", domain.PriorityCritical, 0.1, 24))
	s.Add(sig("high-strong", domain.PriorityHigh, 0.8, 24))
	s.Add(sig("high-weak", domain.PriorityHigh, 0.2, 24))

	active := s.Active(nil, nil)
	require.Len(t, active, 4)
	assert.Equal(t, "crit-weak", active[0].ID)
	assert.Equal(t, "high-strong", active[1].ID)
	assert.Equal(t, "high-weak", active[2].ID)
	assert.Equal(t, "low-strong", active[3].ID)
}

func TestActive_ExcludesExpired(t *testing.T) {
	s := New()
	expired := sig("old", domain.PriorityHigh, 0.5, 1)
	expired.DetectedAt = time.Now().Add(-2 * time.Hour)
	s.Add(expired)
	s.Add(sig("new", domain.PriorityHigh, 0.5, 24))

	active := s.Active(nil, nil)
	require.Len(t, active, 1)
	assert.Equal(t, "new", active[0].ID)
}

func TestActive_FiltersByCategoryAndMinPriority(t *testing.T) {
	s := New()
	crypto := sig("c1", domain.PriorityMedium, 0.5, 24)
	macro := sig("m1", domain.PriorityMedium, 0.5, 24)
	macro.Category = domain.CategoryMacro
	s.Add(crypto)
	s.Add(macro)

	cat := domain.CategoryMacro
	active := s.Active(&cat, nil)
	require.Len(t, active, 1)
	assert.Equal(t, "m1", active[0].ID)

	minP := domain.PriorityHigh
	active = s.Active(nil, &minP)
	assert.Len(t, active, 0) // both are MEDIUM, below HIGH threshold
}

func TestSummaryOf_CountsAndAverages(t *testing.T) {
	s := New()
	a := sig("a", domain.PriorityHigh, 0.5, 24)
	a.Direction = 1
	a.Reliability = 1
	a.Category = domain.CategoryCrypto
	b := sig("b", domain.PriorityLow, 0.5, 24)
	b.Direction = -1
	b.Reliability = 0.5
	b.Category = domain.CategoryCrypto
	s.Add(a)
	s.Add(b)

	sum := s.SummaryOf()
	assert.Equal(t, 2, sum.Total)
	assert.Equal(t, 1, sum.ByPriority[domain.PriorityHigh])
	assert.Equal(t, 1, sum.ByPriority[domain.PriorityLow])
	expected := (1*0.5*1 + -1*0.5*0.5) / 2
	assert.InDelta(t, expected, sum.AvgCompositeByAssetClass["crypto"], 1e-9)
}

func TestAtMostOneLiveSignalPerID(t *testing.T) {
	s := New()
	for i := 0; i < 10; i++ {
		s.Add(sig("same-id", domain.PriorityMedium, float64(i)/10, 24))
	}
	assert.Equal(t, 1, s.Len())
}

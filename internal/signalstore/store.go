// Package signalstore holds the live set of typed Signals: deduplicated by id, expired by TTL,
// and queryable sorted by priority then strength.
package signalstore

import (
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/hydra/internal/domain"
)

const ringCapacity = 1000

// Store is the process-wide Signal Store. Single writer per poll cycle, many concurrent readers.
type Store struct {
	mu sync.RWMutex

	live map[string]domain.Signal // id -> Signal, live only

	ring      []domain.Signal // bounded secondary ring of the last 1000 signals seen
	ringNext  int
	ringFull  bool
}

// New creates an empty Signal Store.
func New() *Store {
	return &Store{
		live: make(map[string]domain.Signal),
		ring: make([]domain.Signal, ringCapacity),
	}
}

// Add inserts a Signal if no live Signal shares its id; otherwise it is ignored. Also expires
// any Signals whose TTL has elapsed, per SPEC_FULL.md §4.4.
func (s *Store) Add(sig domain.Signal) (inserted bool) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireLocked(now)

	if _, exists := s.live[sig.ID]; exists {
		return false
	}

	s.live[sig.ID] = sig
	s.ring[s.ringNext] = sig
	s.ringNext = (s.ringNext + 1) % ringCapacity
	if s.ringNext == 0 {
		s.ringFull = true
	}
	return true
}

// AddBatch inserts multiple Signals and returns the count actually inserted (new ids only).
func (s *Store) AddBatch(sigs []domain.Signal) int {
	inserted := 0
	for _, sig := range sigs {
		if s.Add(sig) {
			inserted++
		}
	}
	return inserted
}

// expireLocked removes every live Signal whose TTL has elapsed. Caller must hold s.mu.
func (s *Store) expireLocked(now time.Time) {
	for id, sig := range s.live {
		if sig.Expired(now) {
			delete(s.live, id)
		}
	}
}

// Expire runs an explicit expiry sweep without requiring a new Signal to be added.
func (s *Store) Expire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked(time.Now())
}

// Active returns the current live Signals, optionally filtered by category and minimum
// priority, sorted by (priority asc, strength desc).
func (s *Store) Active(category *domain.Category, minPriority *domain.Priority) []domain.Signal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	out := make([]domain.Signal, 0, len(s.live))
	for _, sig := range s.live {
		if sig.Expired(now) {
			continue
		}
		if category != nil && sig.Category != *category {
			continue
		}
		if minPriority != nil && sig.Priority.Rank() > minPriority.Rank() {
			continue
		}
		out = append(out, sig)
	}

	sort.Slice(out, func(i, j int) bool {
		ri, rj := out[i].Priority.Rank(), out[j].Priority.Rank()
		if ri != rj {
			return ri < rj
		}
		return out[i].Strength > out[j].Strength
	})

	return out
}

// Summary is the signal store's aggregate view: counts per priority, per category, and average
// composite per broad asset class.
type Summary struct {
	Total           int                        `json:"total"`
	ByPriority      map[domain.Priority]int    `json:"by_priority"`
	ByCategory      map[domain.Category]int    `json:"by_category"`
	AvgCompositeByAssetClass map[string]float64 `json:"avg_composite_by_asset_class"`
}

var assetClasses = map[domain.Category]string{
	domain.CategoryCrypto: "crypto",
	domain.CategoryMetals: "metals",
	domain.CategoryMacro:  "macro",
}

// SummaryOf computes the Signal Store's current summary view.
func (s *Store) SummaryOf() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	sum := Summary{
		ByPriority:               make(map[domain.Priority]int),
		ByCategory:               make(map[domain.Category]int),
		AvgCompositeByAssetClass: make(map[string]float64),
	}

	totals := make(map[string]float64)
	counts := make(map[string]int)

	for _, sig := range s.live {
		if sig.Expired(now) {
			continue
		}
		sum.Total++
		sum.ByPriority[sig.Priority]++
		sum.ByCategory[sig.Category]++

		if class, ok := assetClasses[sig.Category]; ok {
			totals[class] += sig.Composite()
			counts[class]++
		}
	}

	for class, total := range totals {
		if counts[class] > 0 {
			sum.AvgCompositeByAssetClass[class] = total / float64(counts[class])
		}
	}

	return sum
}

// RecentRing returns up to n of the most recently seen Signals (live or expired), most recent
// first, from the bounded introspection ring.
func (s *Store) RecentRing(n int) []domain.Signal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	size := s.ringNext
	if s.ringFull {
		size = ringCapacity
	}
	if n > size {
		n = size
	}

	out := make([]domain.Signal, 0, n)
	idx := s.ringNext
	for i := 0; i < n; i++ {
		idx = (idx - 1 + ringCapacity) % ringCapacity
		out = append(out, s.ring[idx])
	}
	return out
}

// snapshotFile is the on-disk shape written by SaveSnapshot: a compact msgpack encoding of every
// live Signal, tagged with a fresh id so two snapshots from the same process are never confused.
type snapshotFile struct {
	ID      string          `msgpack:"id"`
	SavedAt time.Time       `msgpack:"saved_at"`
	Signals []domain.Signal `msgpack:"signals"`
}

// SaveSnapshot persists every live Signal to path in msgpack form, so a restart does not discard
// signals whose TTL has not yet elapsed. Binary-compact rather than JSON: this file is written on
// every graceful shutdown and can grow to the full ring capacity.
func (s *Store) SaveSnapshot(path string) error {
	s.mu.RLock()
	signals := make([]domain.Signal, 0, len(s.live))
	for _, sig := range s.live {
		signals = append(signals, sig)
	}
	s.mu.RUnlock()

	snap := snapshotFile{ID: uuid.NewString(), SavedAt: time.Now(), Signals: signals}
	data, err := msgpack.Marshal(snap)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadSnapshot restores live Signals from a prior SaveSnapshot call. A missing file is not an
// error: a fresh data directory simply starts with an empty store. Signals already expired by
// the time they are loaded are dropped by the first Add/Expire call, not here.
func (s *Store) LoadSnapshot(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var snap snapshotFile
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sig := range snap.Signals {
		s.live[sig.ID] = sig
	}
	return nil
}

// Len returns the current count of live (non-expired) Signals.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := time.Now()
	count := 0
	for _, sig := range s.live {
		if !sig.Expired(now) {
			count++
		}
	}
	return count
}

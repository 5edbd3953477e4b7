package scoring

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aristath/hydra/internal/domain"
)

// WeightStore holds the process-wide Weights singleton. The Calibrator replaces the whole map
// atomically (snapshot-and-replace, per SPEC_FULL.md §5); the Scorer only ever reads a copy.
type WeightStore struct {
	mu   sync.RWMutex
	w    domain.Weights
	path string
	log  zerolog.Logger
}

// NewWeightStore loads weights from path if present, else seeds domain.DefaultWeights() and
// writes them out.
func NewWeightStore(path string, log zerolog.Logger) *WeightStore {
	s := &WeightStore{path: path, log: log.With().Str("component", "weights").Logger()}

	loaded, err := loadWeights(path)
	if err != nil {
		s.log.Warn().Err(err).Msg("could not load blowup_weights.json, seeding defaults")
		loaded = domain.DefaultWeights()
		if werr := saveWeights(path, loaded); werr != nil {
			s.log.Error().Err(werr).Msg("failed to persist default weights")
		}
	}
	s.w = loaded
	return s
}

func loadWeights(path string) (domain.Weights, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var w domain.Weights
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return w, nil
}

func saveWeights(path string, w domain.Weights) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Current returns a cloned snapshot of the active weights.
func (s *WeightStore) Current() domain.Weights {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.w.Clone()
}

// Replace atomically swaps in new weights and persists them to disk.
func (s *WeightStore) Replace(w domain.Weights) error {
	cloned := w.Clone()
	if err := saveWeights(s.path, cloned); err != nil {
		return err
	}
	s.mu.Lock()
	s.w = cloned
	s.mu.Unlock()
	s.log.Info().Interface("weights", cloned).Msg("weights replaced")
	return nil
}

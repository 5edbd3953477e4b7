package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/aristath/hydra/internal/database"
	"github.com/rs/zerolog"
)

// HealthCheckJob performs SQLite integrity checks and WAL checkpoint monitoring across the stores
// passed in HealthCheckConfig. cmd/server/main.go neither constructs nor schedules it; it runs
// only when Run is called.
type HealthCheckJob struct {
	log zerolog.Logger
	mu  sync.Mutex

	databases map[string]*database.DB
}

// HealthCheckConfig holds configuration for the health check job.
type HealthCheckConfig struct {
	Log       zerolog.Logger
	Databases map[string]*database.DB // keyed by logical name, e.g. "blowup_history"
}

// NewHealthCheckJob creates a new health check job.
func NewHealthCheckJob(cfg HealthCheckConfig) *HealthCheckJob {
	return &HealthCheckJob{
		log:       cfg.Log.With().Str("job", "health_check").Logger(),
		databases: cfg.Databases,
	}
}

// Name returns the job name.
func (j *HealthCheckJob) Name() string {
	return "health_check"
}

// Run executes the health check. A single process owns all state, so a simple mutex is enough
// to prevent overlapping runs — no distributed lock manager is needed.
func (j *HealthCheckJob) Run() error {
	if !j.mu.TryLock() {
		j.log.Warn().Msg("health check already running, skipping")
		return nil
	}
	defer j.mu.Unlock()

	j.log.Info().Msg("starting health check")
	start := time.Now()

	if err := j.checkIntegrity(); err != nil {
		j.log.Error().Err(err).Msg("database integrity check failed")
		return err
	}

	j.checkWALCheckpoints()

	j.log.Info().Dur("duration", time.Since(start)).Msg("health check completed")
	return nil
}

func (j *HealthCheckJob) checkIntegrity() error {
	for name, db := range j.databases {
		if db == nil {
			continue
		}
		var result string
		if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
			return fmt.Errorf("integrity check for %s: %w", name, err)
		}
		if result != "ok" {
			return fmt.Errorf("database %s failed integrity check: %s", name, result)
		}
		j.log.Debug().Str("database", name).Msg("integrity OK")
	}
	return nil
}

func (j *HealthCheckJob) checkWALCheckpoints() {
	for name, db := range j.databases {
		if db == nil {
			continue
		}
		var mode, busy, logFrames, checkpointed int
		if err := db.QueryRow("PRAGMA wal_checkpoint(PASSIVE)").Scan(&mode, &busy, &logFrames, &checkpointed); err != nil {
			j.log.Warn().Err(err).Str("database", name).Msg("failed to check WAL checkpoint")
			continue
		}
		if logFrames > 1000 {
			j.log.Warn().Str("database", name).Int("wal_frames", logFrames).Msg("WAL file is large, checkpoint may be needed")
		}
	}
}

// Package calibration implements the Calibrator: accumulates TradeFeedback and BlowupAccuracy
// rows in trade_feedback.db, and runs a daily calibrate() procedure that derives new component
// weights from per-trigger F1 scores, gated on a minimum sample size and a minimum weight-delta
// before persisting. Grounded on original_source/backend/weight_calibrator.py.
package calibration

import (
	"database/sql"
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/hydra/internal/database"
	"github.com/aristath/hydra/internal/domain"
	"github.com/aristath/hydra/internal/scoring"
)

// Thresholds mirror weight_calibrator.py's MIN_TRADES_FOR_CALIBRATION and the 10%-delta
// persistence gate.
const (
	minTradesForCalibration = 20
	persistDeltaThreshold   = 0.10
	precisionScoreGate      = 60
	recallMoveGatePct       = 0.8
)

// Calibrator owns trade_feedback.db and reads/replaces the process-wide Weights singleton.
type Calibrator struct {
	db      *database.DB
	weights *scoring.WeightStore
	log     zerolog.Logger
}

// New wires a Calibrator against trade_feedback.db and the scorer's WeightStore.
func New(db *database.DB, weights *scoring.WeightStore, log zerolog.Logger) *Calibrator {
	c := &Calibrator{db: db, weights: weights, log: log.With().Str("component", "calibrator").Logger()}
	if db != nil {
		if err := c.migrate(); err != nil {
			c.log.Error().Err(err).Msg("failed to migrate trade_feedback schema")
		}
	}
	return c
}

func (c *Calibrator) migrate() error {
	_, err := c.db.Exec(`
		CREATE TABLE IF NOT EXISTS trade_feedback (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			trade_id TEXT UNIQUE,
			ticker TEXT,
			direction TEXT,
			mode TEXT,
			entry_time TEXT,
			exit_time TEXT,
			pnl_percent REAL,
			conviction INTEGER,
			blowup_score INTEGER,
			blowup_direction TEXT,
			triggers TEXT,
			regime TEXT,
			created_at TEXT
		);
		CREATE TABLE IF NOT EXISTS calibration_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			date TEXT UNIQUE,
			total_trades INTEGER,
			win_rate REAL,
			avg_pnl REAL,
			precision_ REAL,
			recall_ REAL,
			direction_accuracy REAL,
			old_weights TEXT,
			new_weights TEXT,
			notes TEXT
		);
		CREATE TABLE IF NOT EXISTS blowup_accuracy (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			blowup_score INTEGER,
			spy_move_30min REAL,
			direction_predicted TEXT,
			direction_actual TEXT,
			triggers TEXT
		);
	`)
	return err
}

// RecordTrade upserts a trade outcome for use by the next calibration run.
func (c *Calibrator) RecordTrade(t domain.TradeFeedback) error {
	if c.db == nil {
		return nil
	}
	triggersJSON, err := json.Marshal(t.SnapshotTriggers)
	if err != nil {
		return err
	}
	_, err = c.db.Exec(`
		INSERT INTO trade_feedback
		(trade_id, ticker, direction, mode, entry_time, exit_time, pnl_percent, conviction,
		 blowup_score, blowup_direction, triggers, regime, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(trade_id) DO UPDATE SET
			pnl_percent=excluded.pnl_percent, exit_time=excluded.exit_time
	`, t.TradeID, t.Ticker, string(t.Direction), string(t.Mode),
		t.EntryAt.UTC().Format(time.RFC3339), t.ExitAt.UTC().Format(time.RFC3339), t.RealizedPnLPct,
		t.Conviction, t.SnapshotScore, string(t.SnapshotDirection), string(triggersJSON),
		string(t.SnapshotRegime), time.Now().UTC().Format(time.RFC3339))
	return err
}

// RecordBlowupAccuracy logs one blowup-score-vs-realized-move observation for overall
// precision/recall tracking, independent of any individual trade.
func (c *Calibrator) RecordBlowupAccuracy(a domain.BlowupAccuracy) error {
	if c.db == nil {
		return nil
	}
	triggersJSON, err := json.Marshal(a.Triggers)
	if err != nil {
		return err
	}
	_, err = c.db.Exec(`
		INSERT INTO blowup_accuracy (ts, blowup_score, spy_move_30min, direction_predicted, direction_actual, triggers)
		VALUES (?, ?, ?, ?, ?, ?)
	`, a.Timestamp.UTC().Format(time.RFC3339), a.Score, a.Move30MinPct,
		string(a.PredictedDirection), string(a.ActualDirection), string(triggersJSON))
	return err
}

type feedbackRow struct {
	direction        domain.TradeDirection
	pnlPercent       float64
	blowupDirection  domain.Direction
	triggers         []string
}

func (c *Calibrator) loadBlowupTrades() ([]feedbackRow, error) {
	rows, err := c.db.Query(`
		SELECT direction, pnl_percent, blowup_direction, triggers
		FROM trade_feedback WHERE mode = ?
	`, string(domain.FeedbackModeBlowup))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []feedbackRow
	for rows.Next() {
		var r feedbackRow
		var direction, blowupDirection string
		var triggersJSON string
		if err := rows.Scan(&direction, &r.pnlPercent, &blowupDirection, &triggersJSON); err != nil {
			return nil, err
		}
		r.direction = domain.TradeDirection(direction)
		r.blowupDirection = domain.Direction(blowupDirection)
		_ = json.Unmarshal([]byte(triggersJSON), &r.triggers)
		out = append(out, r)
	}
	return out, rows.Err()
}

type accuracyRow struct {
	score int
	move  float64
}

func (c *Calibrator) loadAccuracyRows() ([]accuracyRow, error) {
	rows, err := c.db.Query(`SELECT blowup_score, spy_move_30min FROM blowup_accuracy WHERE spy_move_30min IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []accuracyRow
	for rows.Next() {
		var r accuracyRow
		var move sql.NullFloat64
		if err := rows.Scan(&r.score, &move); err != nil {
			return nil, err
		}
		if !move.Valid {
			continue
		}
		r.move = move.Float64
		out = append(out, r)
	}
	return out, rows.Err()
}

// Calibrate runs the daily calibration procedure (weight_calibrator.py's calibrate()). It is
// idempotent: repeated calls with unchanged underlying data recompute and re-evaluate the same
// gate, and only ever persist when the aggregate weight delta exceeds persistDeltaThreshold.
func (c *Calibrator) Calibrate() (domain.CalibrationResult, error) {
	trades, err := c.loadBlowupTrades()
	if err != nil {
		return domain.CalibrationResult{}, err
	}

	if len(trades) < minTradesForCalibration {
		c.log.Info().Int("trades", len(trades)).Msg("calibration skipped: below minimum trade count")
		return domain.CalibrationResult{Status: "skipped", Notes: []string{"insufficient trade history"}}, nil
	}

	type triggerAgg struct {
		wins, total int
		totalPnL    float64
	}
	triggerStats := make(map[string]*triggerAgg)
	var totalWins int
	var totalPnL float64

	for _, t := range trades {
		isWin := t.pnlPercent > 0
		if isWin {
			totalWins++
		}
		totalPnL += t.pnlPercent
		for _, trigger := range t.triggers {
			name := trigger
			if idx := strings.Index(trigger, ":"); idx >= 0 {
				name = trigger[:idx]
			}
			agg, ok := triggerStats[name]
			if !ok {
				agg = &triggerAgg{}
				triggerStats[name] = agg
			}
			agg.total++
			agg.totalPnL += t.pnlPercent
			if isWin {
				agg.wins++
			}
		}
	}

	perTrigger := make([]domain.TriggerStats, 0, len(triggerStats))
	for name, agg := range triggerStats {
		if agg.total == 0 {
			continue
		}
		precision := float64(agg.wins) / float64(agg.total)
		recall := float64(agg.wins) / float64(maxInt(1, totalWins))
		f1 := 0.0
		if precision+recall > 0 {
			f1 = 2 * (precision * recall) / (precision + recall)
		}
		perTrigger = append(perTrigger, domain.TriggerStats{
			Trigger:   name,
			Wins:      agg.wins,
			Total:     agg.total,
			TotalPnL:  round2(agg.totalPnL),
			Precision: round3(precision),
			Recall:    round3(recall),
			F1:        round3(f1),
		})
	}

	oldWeights := c.weights.Current()
	newWeights := oldWeights.Clone()

	var totalF1 float64
	for _, tp := range perTrigger {
		totalF1 += tp.F1
	}
	if totalF1 > 0 {
		for _, tp := range perTrigger {
			name := domain.ComponentName(tp.Trigger)
			if _, known := oldWeights[name]; known {
				newWeights[name] = round3(tp.F1 / totalF1)
			}
		}
		sum := newWeights.Sum()
		if sum > 0 {
			for k, v := range newWeights {
				newWeights[k] = v / sum
			}
		}
	}

	var directionCorrect, directionTotal int
	for _, t := range trades {
		if t.blowupDirection != domain.DirectionBullish && t.blowupDirection != domain.DirectionBearish {
			continue
		}
		directionTotal++
		bullishWin := t.blowupDirection == domain.DirectionBullish && t.direction == domain.TradeDirectionCall && t.pnlPercent > 0
		bearishWin := t.blowupDirection == domain.DirectionBearish && t.direction == domain.TradeDirectionPut && t.pnlPercent > 0
		if bullishWin || bearishWin {
			directionCorrect++
		}
	}
	directionAccuracy := ratio(directionCorrect, directionTotal)

	accuracyRows, err := c.loadAccuracyRows()
	if err != nil {
		return domain.CalibrationResult{}, err
	}
	var highScoreCorrect, highScoreTotal, bigMoveDetected, bigMoveTotal int
	for _, r := range accuracyRows {
		if r.score > precisionScoreGate {
			highScoreTotal++
			if math.Abs(r.move) > recallMoveGatePct {
				highScoreCorrect++
			}
		}
		if math.Abs(r.move) > recallMoveGatePct {
			bigMoveTotal++
			if r.score > precisionScoreGate {
				bigMoveDetected++
			}
		}
	}
	precision := ratio(highScoreCorrect, highScoreTotal)
	recall := ratio(bigMoveDetected, bigMoveTotal)

	var notes []string
	for _, tp := range perTrigger {
		switch {
		case tp.F1 > 0.5:
			notes = append(notes, tp.Trigger+": strong predictor")
		case tp.F1 < 0.2:
			notes = append(notes, tp.Trigger+": weak predictor")
		}
	}
	if directionAccuracy < 0.55 {
		notes = append(notes, "direction accuracy below 55%, demoting direction confidence")
	}

	result := domain.CalibrationResult{
		Status:            "ok",
		OldWeights:        oldWeights,
		NewWeights:        newWeights,
		PerTrigger:        perTrigger,
		DirectionAccuracy: round3(directionAccuracy),
		OverallPrecision:  round3(precision),
		OverallRecall:     round3(recall),
		Notes:             notes,
	}

	var delta float64
	for k := range oldWeights {
		delta += math.Abs(newWeights[k] - oldWeights[k])
	}
	if delta > persistDeltaThreshold {
		if err := c.weights.Replace(newWeights); err != nil {
			c.log.Error().Err(err).Msg("failed to persist calibrated weights")
		} else {
			result.Persisted = true
			c.log.Info().Float64("delta", delta).Msg("calibration: weights updated")
		}
	} else {
		c.log.Info().Float64("delta", delta).Msg("calibration: weights unchanged, below persistence threshold")
	}

	if err := c.logCalibration(result, len(trades), ratio(totalWins, len(trades)), totalPnL/float64(len(trades))); err != nil {
		c.log.Error().Err(err).Msg("failed to write calibration_log")
	}

	return result, nil
}

func (c *Calibrator) logCalibration(result domain.CalibrationResult, totalTrades int, winRate, avgPnL float64) error {
	if c.db == nil {
		return nil
	}
	oldJSON, err := json.Marshal(result.OldWeights)
	if err != nil {
		return err
	}
	newJSON, err := json.Marshal(result.NewWeights)
	if err != nil {
		return err
	}
	notesJSON, err := json.Marshal(result.Notes)
	if err != nil {
		return err
	}
	_, err = c.db.Exec(`
		INSERT OR REPLACE INTO calibration_log
		(date, total_trades, win_rate, avg_pnl, precision_, recall_, direction_accuracy, old_weights, new_weights, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, time.Now().UTC().Format("2006-01-02"), totalTrades, round3(winRate), round2(avgPnL),
		result.OverallPrecision, result.OverallRecall, result.DirectionAccuracy,
		string(oldJSON), string(newJSON), string(notesJSON))
	return err
}

// Stats reports aggregate trade performance over the last `days` days, mirroring
// weight_calibrator.py's get_trade_stats.
func (c *Calibrator) Stats(days int) (domain.CalibrationStats, error) {
	if c.db == nil {
		return domain.CalibrationStats{}, nil
	}
	cutoff := time.Now().AddDate(0, 0, -days).UTC().Format(time.RFC3339)
	row := c.db.QueryRow(`
		SELECT COUNT(*),
		       SUM(CASE WHEN pnl_percent > 0 THEN 1 ELSE 0 END),
		       AVG(pnl_percent),
		       COUNT(CASE WHEN mode = ? THEN 1 END)
		FROM trade_feedback WHERE created_at > ?
	`, string(domain.FeedbackModeBlowup), cutoff)

	var total, wins, blowupTrades sql.NullInt64
	var avgPnL sql.NullFloat64
	if err := row.Scan(&total, &wins, &avgPnL, &blowupTrades); err != nil {
		return domain.CalibrationStats{}, err
	}

	return domain.CalibrationStats{
		TotalTrades:  int(total.Int64),
		Wins:         int(wins.Int64),
		WinRate:      ratio(int(wins.Int64), int(total.Int64)),
		AvgPnL:       avgPnL.Float64,
		BlowupTrades: int(blowupTrades.Int64),
	}, nil
}

func ratio(num, denom int) float64 {
	if denom == 0 {
		return 0
	}
	return float64(num) / float64(denom)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round3(v float64) float64 { return math.Round(v*1000) / 1000 }

// Name reports the calibrator's identifier. Calibrator has no Run method; the daily 16:30
// weekday calibration job is an adapter that calls Calibrate.
func (c *Calibrator) Name() string { return "calibrator" }

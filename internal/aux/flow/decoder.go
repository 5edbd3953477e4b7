// Package flow implements the Options-Flow subsystem: aggregate call/put premium and sweep
// counts, LLM-assisted institutional-bias classification with a deterministic fallback, and a
// conviction rule, per SPEC_FULL.md §4.9. Grounded on original_source/backend/flow_decoder.py.
package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/hydra/internal/database"
	"github.com/aristath/hydra/internal/domain"
	"github.com/aristath/hydra/internal/llm"
)

// Thresholds mirror flow_decoder.py's MIN_PREMIUM_SWEEP and SWEEP_CONDITIONS.
const (
	minPremiumSweep = 50_000
)

var sweepConditions = map[int]bool{12: true, 37: true}

const systemPrompt = `You are an institutional options flow analyst. Your job is to classify market sentiment based on options trading data.

Rules:
- Sweeps indicate URGENCY - someone needs to fill immediately
- Call premium > Put premium by 2x+ = AGGRESSIVELY_BULLISH
- Put premium > Call premium by 2x+ = AGGRESSIVELY_BEARISH
- 1.5x-2x difference = MODERATELY bullish/bearish
- Within 1.5x = NEUTRAL
- Large single trades ($1M+) are significant
- Consider the CONTEXT - high VIX environment changes interpretation

Always respond with valid JSON only, no explanations.`

// Decoder classifies a batch of raw option trades into an institutional bias, holding the
// latest snapshot for lock-free aggregator reads.
type Decoder struct {
	bedrock  *llm.Client
	db       *database.DB
	log      zerolog.Logger
	snapshot atomic.Pointer[domain.FlowSnapshot]
}

// New wires a Decoder against a (possibly unavailable) Bedrock client and flow_history.db.
func New(bedrock *llm.Client, db *database.DB, log zerolog.Logger) *Decoder {
	d := &Decoder{bedrock: bedrock, db: db, log: log.With().Str("component", "flow").Logger()}
	def := domain.DefaultFlowSnapshot()
	d.snapshot.Store(&def)
	if db != nil {
		if err := d.migrate(); err != nil {
			d.log.Error().Err(err).Msg("failed to migrate flow_history schema")
		}
	}
	return d
}

func (d *Decoder) migrate() error {
	_, err := d.db.Exec(`
		CREATE TABLE IF NOT EXISTS flow_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			symbol TEXT NOT NULL,
			call_premium REAL,
			put_premium REAL,
			institutional_bias TEXT,
			confidence REAL,
			reasoning TEXT
		);
	`)
	return err
}

// Latest returns the most recently published snapshot, substituting the typed default when no
// batch has been classified yet.
func (d *Decoder) Latest() domain.FlowSnapshot {
	return *d.snapshot.Load()
}

type flowAggregate struct {
	callPremium, putPremium       float64
	callSweeps, putSweeps         int
	largestTrade                  domain.RawTrade
	largestPremium                float64
	total                          int
}

func aggregate(trades []domain.RawTrade) flowAggregate {
	var agg flowAggregate
	for _, t := range trades {
		premium := t.Price * t.Size * 100
		if premium < minPremiumSweep {
			continue
		}
		isSweep := sweepConditions[t.ConditionCode]
		if t.IsCall {
			agg.callPremium += premium
			if isSweep {
				agg.callSweeps++
			}
		} else {
			agg.putPremium += premium
			if isSweep {
				agg.putSweeps++
			}
		}
		if premium > agg.largestPremium {
			agg.largestPremium = premium
			agg.largestTrade = t
		}
	}
	agg.total = len(trades)
	return agg
}

// Update classifies one batch of recent raw option trades for a ticker, publishes, and persists
// the resulting snapshot. ctx bounds the optional LLM round trip.
func (d *Decoder) Update(ctx context.Context, symbol string, trades []domain.RawTrade) domain.FlowSnapshot {
	agg := aggregate(trades)
	bias, confidence, reasoning, usedLLM := d.classify(ctx, symbol, agg)

	snap := domain.FlowSnapshot{
		Timestamp:    time.Now(),
		Symbol:       symbol,
		CallPremium:  round0(agg.callPremium),
		PutPremium:   round0(agg.putPremium),
		SweepCount:   agg.callSweeps + agg.putSweeps,
		CallSweeps:   agg.callSweeps,
		PutSweeps:    agg.putSweeps,
		LargestTrade: agg.largestPremium,
		Bias:         bias,
		Confidence:   confidence,
		Reasoning:    reasoning,
		UsedLLM:      usedLLM,
	}

	d.snapshot.Store(&snap)
	if d.db != nil {
		if err := d.persist(snap); err != nil {
			d.log.Error().Err(err).Msg("failed to persist flow tick")
		}
	}
	return snap
}

func (d *Decoder) persist(snap domain.FlowSnapshot) error {
	_, err := d.db.Exec(
		`INSERT INTO flow_history (ts, symbol, call_premium, put_premium, institutional_bias, confidence, reasoning)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snap.Timestamp.UTC().Format(time.RFC3339), snap.Symbol, snap.CallPremium, snap.PutPremium,
		string(snap.Bias), snap.Confidence, snap.Reasoning,
	)
	return err
}

type haikuClassification struct {
	InstitutionalBias string  `json:"institutional_bias"`
	Confidence         float64 `json:"confidence"`
	Reasoning          string  `json:"reasoning"`
}

func (d *Decoder) classify(ctx context.Context, symbol string, agg flowAggregate) (domain.InstitutionalBias, float64, string, bool) {
	if d.bedrock == nil || !d.bedrock.IsAvailable() {
		bias, confidence, reasoning := ruleBasedClassification(agg)
		return bias, confidence, reasoning, false
	}

	prompt := fmt.Sprintf(`Analyze this options flow for %s:

Call Premium: $%.0f
Put Premium: $%.0f
Call Sweeps: %d
Put Sweeps: %d
Total Trades: %d

Respond with JSON:
{
  "institutional_bias": "AGGRESSIVELY_BULLISH" | "MODERATELY_BULLISH" | "NEUTRAL" | "MODERATELY_BEARISH" | "AGGRESSIVELY_BEARISH",
  "confidence": 0-100,
  "reasoning": "one sentence explanation"
}`, symbol, agg.callPremium, agg.putPremium, agg.callSweeps, agg.putSweeps, agg.total)

	resp := d.bedrock.InvokeClaudeHaiku(ctx, systemPrompt, prompt)
	if !resp.Success {
		bias, confidence, reasoning := ruleBasedClassification(agg)
		return bias, confidence, reasoning, false
	}

	var parsed haikuClassification
	if err := json.Unmarshal([]byte(resp.Content), &parsed); err != nil {
		d.log.Warn().Err(err).Str("content", resp.Content).Msg("failed to parse haiku classification")
		bias, confidence, reasoning := ruleBasedClassification(agg)
		return bias, confidence, reasoning, false
	}

	return domain.InstitutionalBias(parsed.InstitutionalBias), parsed.Confidence / 100, parsed.Reasoning, true
}

// ruleBasedClassification implements flow_decoder.py's _rule_based_classification fallback.
func ruleBasedClassification(agg flowAggregate) (domain.InstitutionalBias, float64, string) {
	if agg.callPremium == 0 && agg.putPremium == 0 {
		return domain.BiasNeutral, 0.5, "no significant flow"
	}

	ratio := 10.0
	if agg.putPremium > 0 {
		ratio = agg.callPremium / agg.putPremium
	}

	var bias domain.InstitutionalBias
	var confidence float64
	switch {
	case ratio > 2.5:
		bias = domain.BiasAggressivelyBullish
		confidence = math.Min(0.95, 0.70+(ratio-2)*0.10)
	case ratio > 1.5:
		bias = domain.BiasModeratelyBullish
		confidence = 0.70
	case ratio < 0.4:
		bias = domain.BiasAggressivelyBearish
		confidence = math.Min(0.95, 0.70+(1/ratio-2)*0.10)
	case ratio < 0.67:
		bias = domain.BiasModeratelyBearish
		confidence = 0.70
	default:
		bias = domain.BiasNeutral
		confidence = 0.60
	}
	return bias, confidence, fmt.Sprintf("call/put ratio: %.2f", ratio)
}

func round0(v float64) float64 { return math.Round(v) }

// ConvictionModifier implements the options-flow conviction rule (SPEC_FULL.md §4.9): ±10 for
// aggressive agreement with tradeDirection, ±5 for moderate, reversed for conflict, plus ±5 when
// the dominant sweep direction aligns.
func (d *Decoder) ConvictionModifier(tradeDirection domain.Direction) domain.ConvictionResult {
	snap := d.Latest()
	var modifier int
	var reasons []string

	bullishBias := snap.Bias == domain.BiasAggressivelyBullish || snap.Bias == domain.BiasModeratelyBullish
	bearishBias := snap.Bias == domain.BiasAggressivelyBearish || snap.Bias == domain.BiasModeratelyBearish
	aggressive := strings.HasPrefix(string(snap.Bias), "AGGRESSIVELY")

	switch tradeDirection {
	case domain.DirectionBullish:
		switch {
		case bullishBias:
			if aggressive {
				modifier += 10
			} else {
				modifier += 5
			}
			reasons = append(reasons, fmt.Sprintf("flow aligns: %s", snap.Bias))
		case bearishBias:
			if aggressive {
				modifier -= 10
			} else {
				modifier -= 5
			}
			reasons = append(reasons, fmt.Sprintf("flow conflicts: %s", snap.Bias))
		}
		if snap.CallSweeps > snap.PutSweeps*2 {
			modifier += 5
			reasons = append(reasons, fmt.Sprintf("call sweeps dominant (%d vs %d)", snap.CallSweeps, snap.PutSweeps))
		}
	case domain.DirectionBearish:
		switch {
		case bearishBias:
			if aggressive {
				modifier += 10
			} else {
				modifier += 5
			}
			reasons = append(reasons, fmt.Sprintf("flow aligns: %s", snap.Bias))
		case bullishBias:
			if aggressive {
				modifier -= 10
			} else {
				modifier -= 5
			}
			reasons = append(reasons, fmt.Sprintf("flow conflicts: %s", snap.Bias))
		}
		if snap.PutSweeps > snap.CallSweeps*2 {
			modifier += 5
			reasons = append(reasons, fmt.Sprintf("put sweeps dominant (%d vs %d)", snap.PutSweeps, snap.CallSweeps))
		}
	}

	return domain.ConvictionResult{Modifier: modifier, Reasons: reasons}
}

// Name reports the subsystem's identifier. Decoder has no Run method and is not itself a
// scheduler.Job; the scheduled flow job is an adapter that calls Update.
func (d *Decoder) Name() string { return "flow" }

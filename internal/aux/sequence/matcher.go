// Package sequence implements the Sequence-Matcher subsystem: a durable store of daily market
// fingerprints, nearest-neighbor similarity search (embeddings with a rule-based fallback), and
// an LLM-assisted (with statistical fallback) outcome analysis, per SPEC_FULL.md §4.11. Grounded
// on original_source/backend/sequence_matcher.py.
package sequence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/hydra/internal/database"
	"github.com/aristath/hydra/internal/domain"
	"github.com/aristath/hydra/internal/llm"
)

const (
	historyDays     = 60
	topKCandidates  = 5
	ruleMaxScore    = 7.0
)

const novaSystemPrompt = `You are a quantitative trading analyst. Analyze historical market patterns to predict likely outcomes.

Given current market conditions and similar historical sequences, determine:
1. Most likely direction (BULLISH/BEARISH/NEUTRAL)
2. Expected magnitude of move
3. Confidence level based on pattern consistency

Be concise and data-driven. Focus on pattern recurrence and outcome distribution.`

// Matcher persists DailyFingerprints and answers nearest-neighbor similarity queries against
// them, with an optional Bedrock client for embeddings and Nova Pro analysis.
type Matcher struct {
	db      *database.DB
	bedrock *llm.Client
	log     zerolog.Logger
}

// New wires a Matcher against sequence_vectors.db and a (possibly unavailable) Bedrock client.
func New(db *database.DB, bedrock *llm.Client, log zerolog.Logger) *Matcher {
	m := &Matcher{db: db, bedrock: bedrock, log: log.With().Str("component", "sequence").Logger()}
	if db != nil {
		if err := m.migrate(); err != nil {
			m.log.Error().Err(err).Msg("failed to migrate sequence_vectors schema")
		}
	}
	return m
}

func (m *Matcher) migrate() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS daily_fingerprints (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			date TEXT UNIQUE NOT NULL,
			gex_regime TEXT,
			flow_bias TEXT,
			dark_pool_bias TEXT,
			vix REAL,
			spy_change_pct REAL,
			spy_range_pct REAL,
			blowup_score INTEGER,
			outcome REAL,
			embedding TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_fingerprints_date ON daily_fingerprints(date);
	`)
	return err
}

// RecordDay upserts a day's fingerprint, embedding it with Bedrock when available.
func (m *Matcher) RecordDay(ctx context.Context, fp domain.Fingerprint) error {
	if m.bedrock != nil && m.bedrock.IsAvailable() {
		fp.Embedding = m.bedrock.Embed(ctx, fp.ToText())
	}
	if m.db == nil {
		return nil
	}

	var embeddingJSON sql.NullString
	if len(fp.Embedding) > 0 {
		b, err := json.Marshal(fp.Embedding)
		if err != nil {
			return err
		}
		embeddingJSON = sql.NullString{String: string(b), Valid: true}
	}

	_, err := m.db.Exec(`
		INSERT INTO daily_fingerprints
		(date, gex_regime, flow_bias, dark_pool_bias, vix, spy_change_pct, spy_range_pct, blowup_score, outcome, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			gex_regime=excluded.gex_regime, flow_bias=excluded.flow_bias, dark_pool_bias=excluded.dark_pool_bias,
			vix=excluded.vix, spy_change_pct=excluded.spy_change_pct, spy_range_pct=excluded.spy_range_pct,
			blowup_score=excluded.blowup_score, outcome=excluded.outcome, embedding=excluded.embedding
	`, fp.Date, string(fp.GEXRegime), string(fp.FlowBias), string(fp.DarkPoolBias), fp.VIX,
		fp.SPYChangePct, fp.SPYRangePct, fp.BlowupScore, nullableFloat(fp.Outcome), embeddingJSON)
	return err
}

// UpdateOutcome sets the next-day outcome for a previously recorded fingerprint.
func (m *Matcher) UpdateOutcome(date string, outcome float64) error {
	if m.db == nil {
		return nil
	}
	_, err := m.db.Exec(`UPDATE daily_fingerprints SET outcome = ? WHERE date = ?`, outcome, date)
	return err
}

func nullableFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

// loadHistory returns fingerprints from the last historyDays days.
func (m *Matcher) loadHistory() ([]domain.Fingerprint, error) {
	if m.db == nil {
		return nil, nil
	}
	cutoff := time.Now().AddDate(0, 0, -historyDays).Format("2006-01-02")
	rows, err := m.db.Query(`
		SELECT date, gex_regime, flow_bias, dark_pool_bias, vix, spy_change_pct, spy_range_pct, blowup_score, outcome, embedding
		FROM daily_fingerprints WHERE date >= ? ORDER BY date DESC
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Fingerprint
	for rows.Next() {
		var fp domain.Fingerprint
		var outcome sql.NullFloat64
		var embedding sql.NullString
		if err := rows.Scan(&fp.Date, &fp.GEXRegime, &fp.FlowBias, &fp.DarkPoolBias, &fp.VIX,
			&fp.SPYChangePct, &fp.SPYRangePct, &fp.BlowupScore, &outcome, &embedding); err != nil {
			return nil, err
		}
		if outcome.Valid {
			v := outcome.Float64
			fp.Outcome = &v
		}
		if embedding.Valid {
			_ = json.Unmarshal([]byte(embedding.String), &fp.Embedding)
		}
		out = append(out, fp)
	}
	return out, rows.Err()
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// ruleBasedSimilarity implements sequence_matcher.py's _rule_based_similarity weighted
// field-agreement fallback.
func ruleBasedSimilarity(a, b domain.Fingerprint) float64 {
	var score float64

	if a.GEXRegime == b.GEXRegime {
		score += 1.5
	}

	switch {
	case a.FlowBias == b.FlowBias:
		score += 1.5
	case strings.Contains(string(a.FlowBias), "BULLISH") && strings.Contains(string(b.FlowBias), "BULLISH"):
		score += 0.75
	case strings.Contains(string(a.FlowBias), "BEARISH") && strings.Contains(string(b.FlowBias), "BEARISH"):
		score += 0.75
	}

	vixDiff := math.Abs(a.VIX - b.VIX)
	switch {
	case vixDiff < 2:
		score += 1.0
	case vixDiff < 5:
		score += 0.5
	}

	if (a.SPYChangePct > 0 && b.SPYChangePct > 0) || (a.SPYChangePct < 0 && b.SPYChangePct < 0) {
		score += 1.0
	}

	if math.Abs(a.SPYRangePct-b.SPYRangePct) < 0.5 {
		score += 0.5
	}

	blowupDiff := math.Abs(float64(a.BlowupScore - b.BlowupScore))
	switch {
	case blowupDiff < 10:
		score += 1.0
	case blowupDiff < 20:
		score += 0.5
	}

	if a.DarkPoolBias == b.DarkPoolBias {
		score += 0.5
	}

	return score / ruleMaxScore
}

// FindSimilar builds a fingerprint from current, ranks stored history by similarity (embeddings
// when available, rule-based otherwise), and returns the top-k entries with a known outcome.
func (m *Matcher) FindSimilar(ctx context.Context, current domain.Fingerprint, k int) ([]domain.SimilarSequence, error) {
	if k <= 0 {
		k = topKCandidates
	}

	var currentEmbedding []float32
	if m.bedrock != nil && m.bedrock.IsAvailable() {
		currentEmbedding = m.bedrock.Embed(ctx, current.ToText())
	}

	history, err := m.loadHistory()
	if err != nil {
		return nil, err
	}

	matches := make([]domain.SimilarSequence, 0, len(history))
	for _, fp := range history {
		if fp.Outcome == nil {
			continue
		}
		var similarity float64
		if len(fp.Embedding) > 0 && len(currentEmbedding) > 0 {
			similarity = cosineSimilarity(currentEmbedding, fp.Embedding)
		} else {
			similarity = ruleBasedSimilarity(current, fp)
		}
		matches = append(matches, domain.SimilarSequence{Fingerprint: fp, Similarity: round4(similarity)})
	}

	sortBySimilarityDesc(matches)
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func sortBySimilarityDesc(matches []domain.SimilarSequence) {
	for i := 1; i < len(matches); i++ {
		for j := i; j > 0 && matches[j].Similarity > matches[j-1].Similarity; j-- {
			matches[j], matches[j-1] = matches[j-1], matches[j]
		}
	}
}

type novaResult struct {
	PredictedDirection string  `json:"predicted_direction"`
	Confidence         float64 `json:"confidence"`
	KeyPattern         string  `json:"key_pattern"`
}

// Analyze runs FindSimilar against current, then requests an LLM analysis of the candidate set;
// on any LLM failure it falls back to a purely statistical summary.
func (m *Matcher) Analyze(ctx context.Context, current domain.Fingerprint) (domain.SequenceAnalysis, error) {
	matches, err := m.FindSimilar(ctx, current, topKCandidates)
	if err != nil {
		return domain.SequenceAnalysis{}, err
	}
	if len(matches) == 0 {
		return domain.SequenceAnalysis{Matches: []domain.SimilarSequence{}, WinRate: 0.5, Summary: "no similar sequences found"}, nil
	}

	var sum float64
	var bullish int
	for _, match := range matches {
		sum += *match.Fingerprint.Outcome
		if *match.Fingerprint.Outcome > 0.1 {
			bullish++
		}
	}
	avgOutcome := sum / float64(len(matches))
	winRate := float64(bullish) / float64(len(matches))

	direction, confidence, summary, usedLLM := m.classifyWithNova(ctx, current, matches, avgOutcome)

	return domain.SequenceAnalysis{
		Timestamp: time.Now(),
		Matches:   matches,
		WinRate:   round2(winRate),
		Summary:   fmt.Sprintf("%s (predicted %s, %.0f%% confidence)", summary, direction, confidence*100),
		UsedLLM:   usedLLM,
	}, nil
}

func (m *Matcher) classifyWithNova(ctx context.Context, current domain.Fingerprint, matches []domain.SimilarSequence, avgOutcome float64) (string, float64, string, bool) {
	fallbackDirection := statisticalDirection(avgOutcome)
	if m.bedrock == nil || !m.bedrock.IsAvailable() {
		return fallbackDirection, statisticalConfidence(avgOutcome), fmt.Sprintf("pattern match based on %d similar days, avg outcome %+.2f%%", len(matches), avgOutcome), false
	}

	var sb strings.Builder
	for _, s := range matches {
		fmt.Fprintf(&sb, "- %s: similarity %.2f, outcome %+.2f%%\n", s.Fingerprint.Date, s.Similarity, *s.Fingerprint.Outcome)
	}
	prompt := fmt.Sprintf("Current market conditions:\n%s\n\nMost similar historical sequences:\n%s\nBased on these %d similar historical patterns, respond with JSON: {\"predicted_direction\":\"BULLISH\"|\"BEARISH\"|\"NEUTRAL\",\"confidence\":0-100,\"key_pattern\":\"one sentence\"}",
		current.ToText(), sb.String(), len(matches))

	resp := m.bedrock.InvokeNovaPro(ctx, novaSystemPrompt, prompt)
	if !resp.Success {
		return fallbackDirection, statisticalConfidence(avgOutcome), fmt.Sprintf("nova unavailable: %v", resp.Err), false
	}

	var parsed novaResult
	if err := json.Unmarshal([]byte(resp.Content), &parsed); err != nil {
		return fallbackDirection, statisticalConfidence(avgOutcome), resp.Content, false
	}
	return parsed.PredictedDirection, parsed.Confidence / 100, parsed.KeyPattern, true
}

func statisticalDirection(avgOutcome float64) string {
	switch {
	case avgOutcome > 0.1:
		return "BULLISH"
	case avgOutcome < -0.1:
		return "BEARISH"
	default:
		return "NEUTRAL"
	}
}

func statisticalConfidence(avgOutcome float64) float64 {
	return math.Min(1.0, 0.5+math.Abs(avgOutcome)*0.10)
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round4(v float64) float64 { return math.Round(v*10000) / 10000 }

// ConvictionModifier implements the sequence-matcher conviction rule (SPEC_FULL.md §4.11): +15/
// +8 when the historical win rate in tradeDirection is >=0.70/0.60; -10 when <=0.40.
func (m *Matcher) ConvictionModifier(ctx context.Context, tradeDirection domain.Direction, current domain.Fingerprint) domain.ConvictionResult {
	matches, err := m.FindSimilar(ctx, current, topKCandidates)
	if err != nil || len(matches) == 0 {
		return domain.ConvictionResult{Modifier: 0, Reasons: nil}
	}

	var aligned int
	for _, s := range matches {
		outcome := *s.Fingerprint.Outcome
		if (tradeDirection == domain.DirectionBullish && outcome > 0) || (tradeDirection == domain.DirectionBearish && outcome < 0) {
			aligned++
		}
	}
	winRate := float64(aligned) / float64(len(matches))

	var modifier int
	var reasons []string
	switch {
	case winRate >= 0.70:
		modifier = 15
		reasons = append(reasons, fmt.Sprintf("historical win rate %.0f%% for %s", winRate*100, tradeDirection))
	case winRate >= 0.60:
		modifier = 8
		reasons = append(reasons, fmt.Sprintf("historical win rate %.0f%% for %s", winRate*100, tradeDirection))
	case winRate <= 0.40:
		modifier = -10
		reasons = append(reasons, fmt.Sprintf("historical win rate only %.0f%% for %s", winRate*100, tradeDirection))
	}

	return domain.ConvictionResult{Modifier: modifier, Reasons: reasons}
}

// Name reports the subsystem's identifier. Matcher has no Run method and no scheduled job:
// RecordDay and UpdateOutcome run only when a caller invokes them.
func (m *Matcher) Name() string { return "sequence" }

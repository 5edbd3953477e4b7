package domain

import "time"

// GEXStrike is one strike's aggregated gamma exposure, charm, and vanna.
type GEXStrike struct {
	Strike    float64 `json:"strike"`
	GEX       float64 `json:"gex"`
	CharmPerHour float64 `json:"charm_per_hour"`
	Vanna     float64 `json:"vanna"`
}

// GEXLevel is one key strike surfaced as support, resistance, or a magnet.
type GEXLevel struct {
	Strike float64 `json:"strike"`
	GEX    float64 `json:"gex"`
	Kind   string  `json:"kind"` // support, resistance, magnet
}

// GEXSnapshot is the gamma-exposure subsystem's latest published state.
type GEXSnapshot struct {
	Timestamp      time.Time   `json:"timestamp"`
	Symbol         string      `json:"symbol"`
	Spot           float64     `json:"spot"`
	TotalGEX       float64     `json:"total_gex"`
	CallGEX        float64     `json:"call_gex"`
	PutGEX         float64     `json:"put_gex"`
	GEXByStrike    []GEXStrike `json:"gex_by_strike"`
	FlipPoint      float64     `json:"flip_point"`
	Regime         GEXRegime   `json:"regime"`
	KeyLevels      []GEXLevel  `json:"key_levels"`
	CharmPerHour   float64     `json:"charm_per_hour"`
	RefreshSeconds int         `json:"refresh_seconds"`
}

// DefaultGEXSnapshot is substituted by the aggregator when no gamma snapshot is yet available.
func DefaultGEXSnapshot() GEXSnapshot {
	return GEXSnapshot{Regime: GEXRegimeUnknown, GEXByStrike: []GEXStrike{}, KeyLevels: []GEXLevel{}}
}

// FlowSnapshot is the options-flow subsystem's latest published state.
type FlowSnapshot struct {
	Timestamp     time.Time          `json:"timestamp"`
	Symbol        string             `json:"symbol"`
	CallPremium   float64            `json:"call_premium"`
	PutPremium    float64            `json:"put_premium"`
	SweepCount    int                `json:"sweep_count"`
	CallSweeps    int                `json:"call_sweeps"`
	PutSweeps     int                `json:"put_sweeps"`
	LargestTrade  float64            `json:"largest_trade"`
	Bias          InstitutionalBias  `json:"institutional_bias"`
	Confidence    float64            `json:"confidence"`
	Reasoning     string             `json:"reasoning"`
	UsedLLM       bool               `json:"used_llm"`
}

// DefaultFlowSnapshot is substituted by the aggregator when no flow snapshot is yet available.
func DefaultFlowSnapshot() FlowSnapshot {
	return FlowSnapshot{Bias: BiasNeutral}
}

// DarkPoolCluster is one price-clustered aggregation of dark-pool prints.
type DarkPoolCluster struct {
	Price      float64         `json:"price"`
	Volume     float64         `json:"volume"`
	Notional   float64         `json:"notional"`
	TradeCount int             `json:"trade_count"`
	BuyVolume  float64         `json:"buy_volume"`
	SellVolume float64         `json:"sell_volume"`
	Strength   ClusterStrength `json:"strength"`
}

// DarkPoolSnapshot is the dark-pool subsystem's latest published state.
type DarkPoolSnapshot struct {
	Timestamp  time.Time         `json:"timestamp"`
	Symbol     string            `json:"symbol"`
	Clusters   []DarkPoolCluster `json:"clusters"`
	Support    *DarkPoolCluster  `json:"support,omitempty"`
	Resistance *DarkPoolCluster  `json:"resistance,omitempty"`
	BuyVolume  float64           `json:"buy_volume"`
	SellVolume float64           `json:"sell_volume"`
}

// DefaultDarkPoolSnapshot is substituted by the aggregator when no snapshot is yet available.
func DefaultDarkPoolSnapshot() DarkPoolSnapshot {
	return DarkPoolSnapshot{Clusters: []DarkPoolCluster{}}
}

// SimilarSequence is one historical Fingerprint returned by find_similar, with its match score.
type SimilarSequence struct {
	Fingerprint Fingerprint `json:"fingerprint"`
	Similarity  float64     `json:"similarity"`
}

// SequenceAnalysis is the sequence-matcher subsystem's analyze() output.
type SequenceAnalysis struct {
	Timestamp     time.Time         `json:"timestamp"`
	Matches       []SimilarSequence `json:"matches"`
	WinRate       float64           `json:"win_rate"`
	Summary       string            `json:"summary"`
	UsedLLM       bool              `json:"used_llm"`
}

// DefaultSequenceAnalysis is substituted by the aggregator when no analysis is yet available.
func DefaultSequenceAnalysis() SequenceAnalysis {
	return SequenceAnalysis{Matches: []SimilarSequence{}}
}

// ConvictionResult is the aggregator's conviction() output: an integer modifier in roughly
// [-40, +40] plus the textual reason contributed by each subsystem rule that fired.
type ConvictionResult struct {
	Modifier int      `json:"modifier"`
	Reasons  []string `json:"reasons"`
}

// IntelligenceSnapshot is the aggregator's always-answerable master snapshot: the latest
// BlowupResult plus the latest snapshot from each auxiliary subsystem.
type IntelligenceSnapshot struct {
	Timestamp        time.Time        `json:"timestamp"`
	Blowup           BlowupResult     `json:"blowup"`
	GEX              GEXSnapshot      `json:"gex"`
	Flow             FlowSnapshot     `json:"flow"`
	DarkPool         DarkPoolSnapshot `json:"dark_pool"`
	Sequence         SequenceAnalysis `json:"sequence"`
	ComponentsHealthy int             `json:"components_healthy"`
	ComponentsTotal   int             `json:"components_total"`
}

// Package aggregator implements the Intelligence Aggregator: an always-answerable, O(1) snapshot
// combining the scorer's latest BlowupResult with each auxiliary subsystem's latest state, plus
// conviction(), which composes the four subsystems' conviction rules into one modifier. Grounded
// on original_source/backend/predator_intelligence.py and the teacher's events.Manager "owns
// nothing, only reports" posture (trader-go/internal/events/manager.go).
package aggregator

import (
	"context"
	"time"

	"github.com/aristath/hydra/internal/aux/darkpool"
	"github.com/aristath/hydra/internal/aux/flow"
	"github.com/aristath/hydra/internal/aux/gamma"
	"github.com/aristath/hydra/internal/aux/sequence"
	"github.com/aristath/hydra/internal/domain"
)

// scorer is the subset of *scoring.Scorer the aggregator depends on.
type scorer interface {
	Latest() domain.BlowupResult
}

// Aggregator holds read-only references to the scorer and each auxiliary subsystem; it owns no
// state of its own, only reports what they have already published.
type Aggregator struct {
	scorer   scorer
	gex      *gamma.Engine
	flow     *flow.Decoder
	darkpool *darkpool.Mapper
	sequence *sequence.Matcher
}

// New wires an Aggregator over the already-constructed scorer and auxiliary subsystems.
func New(sc scorer, gex *gamma.Engine, fl *flow.Decoder, dp *darkpool.Mapper, seq *sequence.Matcher) *Aggregator {
	return &Aggregator{scorer: sc, gex: gex, flow: fl, darkpool: dp, sequence: seq}
}

// Snapshot composes the latest state from every subsystem into one IntelligenceSnapshot. The
// scorer, gamma, flow and dark-pool reads are lock-free atomic-pointer loads that never block on
// an in-flight update. The sequence part is not: when a matcher is wired and the scorer has
// published a result, Snapshot runs Matcher.Analyze synchronously, which queries
// sequence_vectors.db and, with Bedrock available, makes embedding and analysis calls.
func (a *Aggregator) Snapshot(ctx context.Context) domain.IntelligenceSnapshot {
	blowup := a.scorer.Latest()

	var healthy int
	for _, c := range blowup.Components {
		if c.Healthy {
			healthy++
		}
	}

	gexSnap := domain.DefaultGEXSnapshot()
	if a.gex != nil {
		gexSnap = a.gex.Latest()
	}
	flowSnap := domain.DefaultFlowSnapshot()
	if a.flow != nil {
		flowSnap = a.flow.Latest()
	}
	dpSnap := domain.DefaultDarkPoolSnapshot()
	if a.darkpool != nil {
		dpSnap = a.darkpool.Latest()
	}
	seqAnalysis := domain.DefaultSequenceAnalysis()
	if a.sequence != nil {
		if current, ok := a.currentFingerprint(blowup, gexSnap, flowSnap, dpSnap); ok {
			if analysis, err := a.sequence.Analyze(ctx, current); err == nil {
				seqAnalysis = analysis
			}
		}
	}

	return domain.IntelligenceSnapshot{
		Timestamp:         time.Now(),
		Blowup:            blowup,
		GEX:               gexSnap,
		Flow:              flowSnap,
		DarkPool:          dpSnap,
		Sequence:          seqAnalysis,
		ComponentsHealthy: healthy,
		ComponentsTotal:   len(blowup.Components),
	}
}

// Analyze runs the sequence-matcher subsystem against the current market fingerprint built from
// the scorer's and auxiliaries' latest published state.
func (a *Aggregator) Analyze(ctx context.Context) (domain.SequenceAnalysis, error) {
	if a.sequence == nil {
		return domain.DefaultSequenceAnalysis(), nil
	}
	blowup := a.scorer.Latest()
	gexSnap := domain.DefaultGEXSnapshot()
	if a.gex != nil {
		gexSnap = a.gex.Latest()
	}
	flowSnap := domain.DefaultFlowSnapshot()
	if a.flow != nil {
		flowSnap = a.flow.Latest()
	}
	dpSnap := domain.DefaultDarkPoolSnapshot()
	if a.darkpool != nil {
		dpSnap = a.darkpool.Latest()
	}
	current, ok := a.currentFingerprint(blowup, gexSnap, flowSnap, dpSnap)
	if !ok {
		return domain.DefaultSequenceAnalysis(), nil
	}
	return a.sequence.Analyze(ctx, current)
}

// currentFingerprint builds today's partial fingerprint from already-published subsystem state,
// for use as the sequence matcher's similarity query point. The VIX and SPY change/range fields
// are always left at their zero value; that only weakens the rule-based similarity score, it
// never errors.
func (a *Aggregator) currentFingerprint(blowup domain.BlowupResult, gex domain.GEXSnapshot, fl domain.FlowSnapshot, dp domain.DarkPoolSnapshot) (domain.Fingerprint, bool) {
	if blowup.Timestamp.IsZero() {
		return domain.Fingerprint{}, false
	}
	dpBias := domain.TradeSideUnknown
	switch {
	case dp.BuyVolume > dp.SellVolume*1.5:
		dpBias = domain.TradeSideBuy
	case dp.SellVolume > dp.BuyVolume*1.5:
		dpBias = domain.TradeSideSell
	}
	return domain.Fingerprint{
		Date:         blowup.Timestamp.UTC().Format("2006-01-02"),
		GEXRegime:    gex.Regime,
		FlowBias:     fl.Bias,
		DarkPoolBias: dpBias,
		BlowupScore:  blowup.Probability,
	}, true
}

// Conviction composes the four subsystems' conviction rules (§4.8-§4.11) into one modifier and
// reason list for a proposed trade. With every subsystem still at its typed default (no snapshot
// published yet), each subrule fires nothing, so the result is exactly {0, nil}.
func (a *Aggregator) Conviction(ctx context.Context, direction domain.Direction, entry, stop, target float64) domain.ConvictionResult {
	var total domain.ConvictionResult

	if a.gex != nil {
		r := a.gex.ConvictionModifier(time.Now())
		total.Modifier += r.Modifier
		total.Reasons = append(total.Reasons, r.Reasons...)
	}
	if a.flow != nil {
		r := a.flow.ConvictionModifier(direction)
		total.Modifier += r.Modifier
		total.Reasons = append(total.Reasons, r.Reasons...)
	}
	if a.darkpool != nil {
		r := a.darkpool.ConvictionModifier(entry, stop, target)
		total.Modifier += r.Modifier
		total.Reasons = append(total.Reasons, r.Reasons...)
	}
	if a.sequence != nil {
		blowup := a.scorer.Latest()
		gexSnap := domain.DefaultGEXSnapshot()
		if a.gex != nil {
			gexSnap = a.gex.Latest()
		}
		flowSnap := domain.DefaultFlowSnapshot()
		if a.flow != nil {
			flowSnap = a.flow.Latest()
		}
		dpSnap := domain.DefaultDarkPoolSnapshot()
		if a.darkpool != nil {
			dpSnap = a.darkpool.Latest()
		}
		if current, ok := a.currentFingerprint(blowup, gexSnap, flowSnap, dpSnap); ok {
			r := a.sequence.ConvictionModifier(ctx, direction, current)
			total.Modifier += r.Modifier
			total.Reasons = append(total.Reasons, r.Reasons...)
		}
	}

	return total
}

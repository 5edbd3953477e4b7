package connectors

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/hydra/internal/domain"
	"github.com/aristath/hydra/internal/httpfetch"
)

// CMEMarginAdvisories scrapes the CME's public margin-change advisory page, matching by keyword
// for futures margin increases (a classic stress precursor).
type CMEMarginAdvisories struct {
	Base
	deps
}

var marginIncreaseRE = regexp.MustCompile(`(?i)margin (?:requirement|rate)s? (?:will\s+)?increase`)

func NewCMEMarginAdvisories(fetch *httpfetch.Fetcher, log zerolog.Logger) *CMEMarginAdvisories {
	return &CMEMarginAdvisories{
		Base: NewBase("cme_margin_advisories", domain.CategoryStructural, 240*time.Minute, 0.6),
		deps: newDeps(fetch, log, "cme_margin_advisories"),
	}
}

func (c *CMEMarginAdvisories) Poll(ctx context.Context) []domain.Signal {
	body, ok := c.fetch.GetText("https://www.cmegroup.com/notices/margins.html", nil, nil)
	c.MarkPolled(time.Now(), ok)
	if !ok || !marginIncreaseRE.MatchString(body) {
		return nil
	}
	return []domain.Signal{{
		ID:               domain.SignalID(c.Name(), time.Now().Format("2006-01-02")),
		Name:             "CME margin increase advisory",
		Source:           c.Name(),
		Category:         domain.CategoryStructural,
		Priority:         domain.PriorityLow,
		Direction:        -1.0,
		Strength:         0.4,
		Description:      "CME margin notice page mentions an upcoming margin-rate increase.",
		AffectedSymbols:  []string{"ES", "NQ"},
		TradeImplication: "Margin hikes force deleveraging of the most crowded futures positions.",
		DetectedAt:       time.Now(),
		TTLHours:         72,
		Reliability:      c.Reliability(),
	}}
}

// ShanghaiGoldPremium scrapes the Shanghai Gold Exchange premium over the international spot
// price, a standard physical-demand tell for gold.
type ShanghaiGoldPremium struct {
	Base
	deps
}

var sgePremiumRE = regexp.MustCompile(`premium[^0-9\-]*(-?\d+(?:\.\d+)?)`)

func NewShanghaiGoldPremium(fetch *httpfetch.Fetcher, log zerolog.Logger) *ShanghaiGoldPremium {
	return &ShanghaiGoldPremium{
		Base: NewBase("shanghai_gold_premium", domain.CategoryMetals, 60*time.Minute, 0.65),
		deps: newDeps(fetch, log, "shanghai_gold_premium"),
	}
}

func (c *ShanghaiGoldPremium) Poll(ctx context.Context) []domain.Signal {
	body, ok := c.fetch.GetText("https://www.sge.com.cn/en/DataStatistics", nil, nil)
	c.MarkPolled(time.Now(), ok)
	if !ok {
		return nil
	}
	match := sgePremiumRE.FindStringSubmatch(body)
	if len(match) < 2 {
		return nil
	}
	premium, err := strconv.ParseFloat(match[1], 64)
	if err != nil || math.Abs(premium) < 15 {
		return nil
	}
	direction := 1.0
	if premium < 0 {
		direction = -1.0
	}
	return []domain.Signal{{
		ID:               domain.SignalID(c.Name(), time.Now().Format("2006-01-02")),
		Name:             "Shanghai gold premium extreme",
		Source:           c.Name(),
		Category:         domain.CategoryMetals,
		Priority:         domain.PriorityLow,
		Direction:        direction,
		Strength:         math.Min(1.0, math.Abs(premium)/40),
		Description:      fmt.Sprintf("Shanghai gold premium at $%.1f/oz over spot", premium),
		AffectedSymbols:  []string{"GLD"},
		TradeImplication: "Sustained premium spikes reflect physical demand strength independent of paper-market flow.",
		DetectedAt:       time.Now(),
		TTLHours:         48,
		Reliability:      c.Reliability(),
	}}
}

// GovShutdownTracker scrapes Congress.gov's continuing-resolution status page for shutdown-risk
// keywords ahead of a funding deadline.
type GovShutdownTracker struct {
	Base
	deps
}

var shutdownRiskRE = regexp.MustCompile(`(?i)(lapse in appropriations|government shutdown|funding deadline)`)

func NewGovShutdownTracker(fetch *httpfetch.Fetcher, log zerolog.Logger) *GovShutdownTracker {
	return &GovShutdownTracker{
		Base: NewBase("gov_shutdown_tracker", domain.CategoryGeopolitical, 240*time.Minute, 0.55),
		deps: newDeps(fetch, log, "gov_shutdown_tracker"),
	}
}

func (c *GovShutdownTracker) Poll(ctx context.Context) []domain.Signal {
	body, ok := c.fetch.GetText("https://www.congress.gov/search?q=continuing+resolution", nil, nil)
	c.MarkPolled(time.Now(), ok)
	if !ok || !shutdownRiskRE.MatchString(body) {
		return nil
	}
	return []domain.Signal{{
		ID:               domain.SignalID(c.Name(), time.Now().Format("2006-01-02")),
		Name:             "Government shutdown risk",
		Source:           c.Name(),
		Category:         domain.CategoryGeopolitical,
		Priority:         domain.PriorityLow,
		Direction:        -1.0,
		Strength:         0.3,
		Description:      "Congressional tracker mentions shutdown/funding-deadline risk.",
		AffectedSymbols:  []string{"SPY"},
		TradeImplication: "Shutdown risk delays data releases and adds macro uncertainty premium.",
		DetectedAt:       time.Now(),
		TTLHours:         72,
		Reliability:      c.Reliability(),
	}}
}

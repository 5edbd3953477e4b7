package connectors

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/hydra/internal/domain"
	"github.com/aristath/hydra/internal/httpfetch"
)

// predictionKeywords gates Polymarket's open-market scan to macro/rates/recession questions
// relevant to the scorer's domain.
var predictionKeywords = []string{"recession", "rate cut", "rate hike", "fed", "cpi", "shutdown"}

// Polymarket polls open prediction markets filtered by keyword, emitting low-priority signals
// carrying the raw implied probability.
type Polymarket struct {
	Base
	deps
}

func NewPolymarket(fetch *httpfetch.Fetcher, log zerolog.Logger) *Polymarket {
	return &Polymarket{
		Base: NewBase("polymarket", domain.CategoryMacro, 60*time.Minute, 0.5),
		deps: newDeps(fetch, log, "polymarket"),
	}
}

type polymarketResp []struct {
	Slug        string  `json:"slug"`
	Question    string  `json:"question"`
	LastPrice   float64 `json:"lastTradePrice"`
	EndDate     string  `json:"endDate"`
}

func (c *Polymarket) Poll(ctx context.Context) []domain.Signal {
	var resp polymarketResp
	ok := c.fetch.GetJSON("https://gamma-api.polymarket.com/markets", url.Values{"active": {"true"}, "limit": {"100"}}, nil, &resp)
	c.MarkPolled(time.Now(), ok)
	if !ok {
		return nil
	}

	var signals []domain.Signal
	for _, m := range resp {
		lowered := strings.ToLower(m.Question)
		matched := false
		for _, kw := range predictionKeywords {
			if strings.Contains(lowered, kw) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		signals = append(signals, domain.Signal{
			ID:               domain.SignalID(c.Name(), m.Slug),
			Name:             "Prediction market odds",
			Source:           c.Name(),
			Category:         domain.CategoryMacro,
			Priority:         domain.PriorityLow,
			Direction:        0,
			Strength:         0.2,
			Description:      fmt.Sprintf("%q trading at %.0f%% implied probability", m.Question, m.LastPrice*100),
			AffectedSymbols:  []string{"SPY"},
			TradeImplication: "Prediction-market odds are a fast, crowd-sourced read on macro event outcomes.",
			RawPayload:       map[string]any{"probability": m.LastPrice, "end_date": m.EndDate},
			DetectedAt:       time.Now(),
			TTLHours:         24,
			Reliability:      c.Reliability(),
		})
	}
	return signals
}

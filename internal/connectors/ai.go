package connectors

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/hydra/internal/domain"
	"github.com/aristath/hydra/internal/httpfetch"
)

// aiLabOrgs is the fixed watchlist of frontier-lab GitHub organizations.
var aiLabOrgs = []string{"openai", "anthropics", "google-deepmind", "meta-llama", "mistralai"}

// GitHubAILabRepos polls each lab's public repo list for a burst of new-repo creation, a loose
// proxy for a pending model/product release.
type GitHubAILabRepos struct {
	Base
	deps
	hist map[string]int
}

func NewGitHubAILabRepos(fetch *httpfetch.Fetcher, log zerolog.Logger) *GitHubAILabRepos {
	return &GitHubAILabRepos{
		Base: NewBase("github_ai_lab_repos", domain.CategoryAIDisruption, 120*time.Minute, 0.5),
		deps: newDeps(fetch, log, "github_ai_lab_repos"),
		hist: make(map[string]int),
	}
}

type githubReposResp []struct {
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

func (c *GitHubAILabRepos) Poll(ctx context.Context) []domain.Signal {
	now := time.Now()
	var signals []domain.Signal
	ok := true
	for _, org := range aiLabOrgs {
		var repos githubReposResp
		got := c.fetch.GetJSON(fmt.Sprintf("https://api.github.com/orgs/%s/repos", org),
			url.Values{"sort": {"created"}, "direction": {"desc"}, "per_page": {"10"}}, nil, &repos)
		if !got {
			ok = false
			continue
		}

		recent := 0
		for _, r := range repos {
			created, err := time.Parse(time.RFC3339, r.CreatedAt)
			if err == nil && now.Sub(created) < 7*24*time.Hour {
				recent++
			}
		}
		prevRecent := c.hist[org]
		c.hist[org] = recent
		if recent < 3 || recent <= prevRecent {
			continue
		}
		signals = append(signals, domain.Signal{
			ID:               domain.SignalID(c.Name(), org, now.Format("2006-01-02")),
			Name:             "AI lab repo creation burst",
			Source:           c.Name(),
			Category:         domain.CategoryAIDisruption,
			Priority:         domain.PriorityLow,
			Direction:        0,
			Strength:         math.Min(1.0, float64(recent)/8),
			Description:      fmt.Sprintf("%s created %d new public repos in the last week", org, recent),
			AffectedSymbols:  []string{"NVDA"},
			TradeImplication: "Repo bursts often precede a model or tooling release announcement.",
			DetectedAt:       now,
			TTLHours:         72,
			Reliability:      c.Reliability(),
		})
	}
	c.MarkPolled(now, ok)
	return signals
}

// aiKeywords gates HackerNewsTrends' front-page scan to AI-disruption-relevant stories.
var aiKeywords = []string{"openai", "anthropic", "gpt-", "gemini", "claude", "llm", "agi"}

// HackerNewsTrends polls the Hacker News front page for a concentration of AI-related stories,
// a crude attention/hype proxy.
type HackerNewsTrends struct {
	Base
	deps
}

func NewHackerNewsTrends(fetch *httpfetch.Fetcher, log zerolog.Logger) *HackerNewsTrends {
	return &HackerNewsTrends{
		Base: NewBase("hackernews_trends", domain.CategoryAIDisruption, 60*time.Minute, 0.4),
		deps: newDeps(fetch, log, "hackernews_trends"),
	}
}

func (c *HackerNewsTrends) Poll(ctx context.Context) []domain.Signal {
	var ids []int
	ok := c.fetch.GetJSON("https://hacker-news.firebaseio.com/v0/topstories.json", nil, nil, &ids)
	c.MarkPolled(time.Now(), ok)
	if !ok {
		return nil
	}
	if len(ids) > 30 {
		ids = ids[:30]
	}

	aiCount := 0
	for _, id := range ids {
		var item struct {
			Title string `json:"title"`
		}
		if !c.fetch.GetJSON(fmt.Sprintf("https://hacker-news.firebaseio.com/v0/item/%d.json", id), nil, nil, &item) {
			continue
		}
		lowered := strings.ToLower(item.Title)
		for _, kw := range aiKeywords {
			if strings.Contains(lowered, kw) {
				aiCount++
				break
			}
		}
	}

	if aiCount < 8 {
		return nil
	}
	return []domain.Signal{{
		ID:               domain.SignalID(c.Name(), time.Now().Format("2006-01-02T15")),
		Name:             "AI story concentration on Hacker News",
		Source:           c.Name(),
		Category:         domain.CategoryAIDisruption,
		Priority:         domain.PriorityLow,
		Direction:        0,
		Strength:         math.Min(1.0, float64(aiCount)/20),
		Description:      fmt.Sprintf("%d of the top 30 HN stories mention frontier AI topics", aiCount),
		AffectedSymbols:  []string{"NVDA"},
		TradeImplication: "Elevated AI attention correlates with short-term semiconductor and mega-cap momentum.",
		DetectedAt:       time.Now(),
		TTLHours:         12,
		Reliability:      c.Reliability(),
	}}
}

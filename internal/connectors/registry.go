package connectors

// SourceEntry is one row of the static data-source registry exposed at /api/sources. It is a
// display table independent of which connectors are actually wired up and polling live — see
// DESIGN.md's Open Question decision on this split.
type SourceEntry struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	API      string `json:"api"`
	Cost     string `json:"cost"`
	Status   string `json:"status"` // IMPLEMENTED or PLANNED
	Category string `json:"category"`
	Poll     string `json:"poll"`
	Signal   string `json:"signal"`
}

// DataSourceRegistry mirrors the 37-entry catalog recovered from
// original_source/backend/hydra_signal_detection.py's DATA_SOURCE_REGISTRY, grouped by category.
var DataSourceRegistry = []SourceEntry{
	// Crypto (8)
	{1, "Binance Funding Rates", "fapi.binance.com/fundingRate", "FREE", "IMPLEMENTED", "crypto", "5min", "Overleveraged positioning -> fade the crowd"},
	{2, "Binance Open Interest", "fapi.binance.com/openInterest", "FREE", "IMPLEMENTED", "crypto", "5min", "OI cascade detection, leverage buildup warning"},
	{3, "CoinGlass Liquidations", "open-api.coinglass.com", "FREE", "IMPLEMENTED", "crypto", "15min", "Mass liquidation events, heatmap clusters"},
	{4, "BTC ETF Flows (Farside)", "farside.co.uk/bitcoin-etf-flow", "FREE", "IMPLEMENTED", "crypto", "1hr", "Institutional buying/selling pressure"},
	{5, "Whale Alert", "api.whale-alert.io", "FREE", "IMPLEMENTED", "crypto", "10min", "Large exchange deposits (sell) / withdrawals (accumulate)"},
	{6, "Token Unlocks", "token.unlocks.app", "FREE", "IMPLEMENTED", "crypto", "4hr", "Predictable supply floods -> short before unlock"},
	{7, "Deribit Options Vol Surface", "deribit.com/api/v2", "FREE", "IMPLEMENTED", "crypto", "30min", "Crypto options skew, IV term structure"},
	{8, "Glassnode On-Chain", "api.glassnode.com", "FREE*", "IMPLEMENTED", "crypto", "1hr", "Exchange reserves, SOPR, MVRV ratio"},

	// Macro (8)
	{9, "FRED API", "api.stlouisfed.org/fred", "FREE", "IMPLEMENTED", "macro", "1hr", "JOLTS, claims, yield curve, credit spreads"},
	{10, "BLS Economic Calendar", "bls.gov/schedule", "FREE", "IMPLEMENTED", "macro", "5min", "NFP, CPI release countdown with pre-event alerts"},
	{11, "Treasury Auction Results", "api.fiscaldata.treasury.gov", "FREE", "IMPLEMENTED", "macro", "4hr", "Weak bid-to-cover = yields spike, sell TLT"},
	{12, "Cleveland Fed CPI Nowcast", "clevelandfed.org/indicators", "FREE", "PLANNED", "macro", "daily", "Real-time CPI estimate before official release"},
	{13, "ISM Manufacturing PMI", "ismworld.org (via FRED)", "FREE", "IMPLEMENTED", "macro", "4hr", "ISM Prices Paid leads CPI by 2-3 months"},
	{14, "ADP Employment", "adpemploymentreport.com", "FREE", "PLANNED", "macro", "monthly", "Leads NFP"},
	{15, "Challenger Layoff Data", "challengergray.com", "FREE", "IMPLEMENTED", "macro", "1day", "Elevated job-cut announcements lead softer labor prints"},
	{16, "Fed Funds Futures", "cmegroup.com/fedwatch", "FREE", "PLANNED", "macro", "1hr", "Rate cut probability for next meeting"},

	// Metals (5)
	{17, "CME Margin Advisories", "cmegroup.com/advisories (scrape)", "FREE", "IMPLEMENTED", "metals", "4hr", "Margin hike precedes forced deleveraging"},
	{18, "Shanghai Gold Premium", "sge.com.cn (scrape)", "FREE", "IMPLEMENTED", "metals", "1hr", "Premium = Chinese demand strong. Discount = demand collapsed"},
	{19, "COMEX Inventory Data", "cmegroup.com/delivery", "FREE", "PLANNED", "metals", "daily", "Physical inventory drawdowns = supply tightness"},
	{20, "World Gold Council Flows", "gold.org/goldhub", "FREE", "PLANNED", "metals", "weekly", "Central bank buying data, ETF flows"},
	{21, "Silver Institute Demand", "silverinstitute.org", "FREE", "PLANNED", "metals", "monthly", "Industrial demand vs paper crash divergence"},

	// AI Disruption (5)
	{22, "GitHub AI Lab Repos", "api.github.com/orgs/*/repos", "FREE", "IMPLEMENTED", "ai", "2hr", "New enterprise AI releases from frontier labs"},
	{23, "Hacker News Trends", "hacker-news.firebaseio.com", "FREE", "IMPLEMENTED", "ai", "1hr", "AI narrative velocity -- trends ahead of mainstream"},
	{24, "Product Hunt", "api.producthunt.com", "FREE", "PLANNED", "ai", "2hr", "New AI product launches trending"},
	{25, "SEC EDGAR Filings", "efts.sec.gov/LATEST/search-index", "FREE", "PLANNED", "ai", "6hr", "Insider selling in SaaS companies post-AI launch"},
	{26, "Glassdoor/LinkedIn Layoffs", "scrape layoff trackers", "FREE", "PLANNED", "ai", "daily", "Real-time layoff signals"},

	// Volatility & Options (4)
	{27, "CBOE VIX Data", "cboe.com / yahoo finance ^VIX", "FREE", "IMPLEMENTED", "options", "5min", "VIX level, term structure"},
	{28, "SpotGamma GEX Levels", "spotgamma.com (free tier)", "FREE", "PLANNED", "options", "daily", "GEX flip point -- above = mean-reverting, below = trending"},
	{29, "Unusual Whales Flow", "unusualwhales.com/api", "$20/mo", "IMPLEMENTED", "options", "10min", "Unusual options activity, dark pool prints, sweep alerts"},
	{30, "CBOE SKEW Index", "cboe.com/skew", "FREE", "IMPLEMENTED", "options", "15min", "Tail risk pricing -- high SKEW = market fears a crash"},

	// Prediction Markets (2)
	{31, "Polymarket", "gamma-api.polymarket.com", "FREE", "IMPLEMENTED", "prediction", "1hr", "Crowd-sourced probabilities vs options-implied"},
	{32, "Kalshi", "trading-api.kalshi.com", "FREE", "PLANNED", "prediction", "2hr", "Regulated prediction market odds on economic events"},

	// Cross-Asset (3)
	{33, "Copper Futures (HG)", "Yahoo Finance / CME", "FREE", "IMPLEMENTED", "cross", "30min", "Copper leads equities; breakdown precedes SPY weakness"},
	{34, "Credit Spreads (HYG/LQD)", "Yahoo Finance HYG LQD ratio", "FREE", "IMPLEMENTED", "cross", "30min", "Widening credit = risk-off approaching"},
	{35, "DXY Dollar Index", "Yahoo Finance DX-Y.NYB", "FREE", "IMPLEMENTED", "cross", "15min", "Dollar strength pressures commodities, EM, crypto, gold"},

	// Exotic / Alternative (2)
	{36, "Solar ETF (TAN) as Silver Proxy", "Yahoo Finance TAN", "FREE", "IMPLEMENTED", "alternative", "30min", "TAN rallying = solar/silver industrial demand rising"},
	{37, "Gov Shutdown Tracker", "scrape congress.gov / news", "FREE", "IMPLEMENTED", "structural", "4hr", "Data delays = information vacuum = vol expansion"},
}

// SourceStats summarizes the registry for /api/sources and /api/dashboard.
type SourceStats struct {
	Total       int `json:"total"`
	Implemented int `json:"implemented"`
	Planned     int `json:"planned"`
	Free        int `json:"free"`
}

// Stats computes the registry summary counts.
func Stats() SourceStats {
	var s SourceStats
	s.Total = len(DataSourceRegistry)
	for _, e := range DataSourceRegistry {
		if e.Status == "IMPLEMENTED" {
			s.Implemented++
		} else {
			s.Planned++
		}
		if len(e.Cost) >= 4 && e.Cost[:4] == "FREE" {
			s.Free++
		}
	}
	return s
}

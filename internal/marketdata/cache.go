// Package marketdata holds the small set of cross-cutting market readings the eight component
// fetchers consume. Quote and macro connectors populate it as they poll; fetchers only read a
// snapshot, so a scorer tick never itself performs network I/O (SPEC_FULL.md §4.5, §5).
package marketdata

import (
	"sync"
	"time"
)

// Snapshot is an immutable copy of the cache's current readings.
type Snapshot struct {
	VIXOpen        float64
	VIXClose       float64
	VIXChangePct   float64
	VIXHealthy     bool

	SPYVolumeRatio float64 // prior-day volume / 20-day average volume
	SPYRangePct    float64 // prior-day (high-low)/close
	SPYChangePct   float64
	SPYHealthy     bool

	TLTChangePct float64
	GLDChangePct float64
	CrossAssetHealthy bool

	FundingRate   float64 // perpetual funding rate, fraction (e.g. 0.0006)
	OIDeltaPct    float64 // fractional change in open interest since prior sample (e.g. -0.03)
	CryptoHealthy bool

	NextEventMinutes float64 // minutes until the next scheduled event; negative if none known
	EventHealthy     bool

	SectorChangesPct []float64 // prior-day % change for the 5 tracked sector ETFs
	BreadthHealthy   bool

	Updated time.Time
}

// Cache is the process-wide, mutex-guarded store of the latest market readings.
type Cache struct {
	mu sync.RWMutex
	s  Snapshot
}

// New creates an empty Cache. All Healthy flags start false so fetchers correctly report
// raw=0, healthy=false until a connector has populated the relevant reading.
func New() *Cache {
	return &Cache{s: Snapshot{NextEventMinutes: -1}}
}

// Snapshot returns a copy of the current readings.
func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := c.s
	out.SectorChangesPct = append([]float64(nil), c.s.SectorChangesPct...)
	return out
}

// SetVIX records the latest VIX daily reading.
func (c *Cache) SetVIX(open, close, changePct float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s.VIXOpen = open
	c.s.VIXClose = close
	c.s.VIXChangePct = changePct
	c.s.VIXHealthy = true
	c.s.Updated = time.Now()
}

// SetSPY records the latest SPY daily reading.
func (c *Cache) SetSPY(volumeRatio, rangePct, changePct float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s.SPYVolumeRatio = volumeRatio
	c.s.SPYRangePct = rangePct
	c.s.SPYChangePct = changePct
	c.s.SPYHealthy = true
	c.s.Updated = time.Now()
}

// SetCrossAsset records the latest TLT/GLD daily change percentages.
func (c *Cache) SetCrossAsset(tltChangePct, gldChangePct float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s.TLTChangePct = tltChangePct
	c.s.GLDChangePct = gldChangePct
	c.s.CrossAssetHealthy = true
	c.s.Updated = time.Now()
}

// SetCrypto records the latest perpetual funding rate and open-interest delta.
func (c *Cache) SetCrypto(fundingRate, oiDeltaPct float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s.FundingRate = fundingRate
	c.s.OIDeltaPct = oiDeltaPct
	c.s.CryptoHealthy = true
	c.s.Updated = time.Now()
}

// SetNextEvent records the minutes until the next scheduled calendar event.
func (c *Cache) SetNextEvent(minutesUntil float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s.NextEventMinutes = minutesUntil
	c.s.EventHealthy = true
	c.s.Updated = time.Now()
}

// SetBreadth records the prior-day % change for the tracked sector ETFs.
func (c *Cache) SetBreadth(changesPct []float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s.SectorChangesPct = append([]float64(nil), changesPct...)
	c.s.BreadthHealthy = true
	c.s.Updated = time.Now()
}

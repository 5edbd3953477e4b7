package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/hydra/internal/aggregator"
	"github.com/aristath/hydra/internal/calibration"
	"github.com/aristath/hydra/internal/connectors"
	"github.com/aristath/hydra/internal/database"
	"github.com/aristath/hydra/internal/domain"
	"github.com/aristath/hydra/internal/events"
	"github.com/aristath/hydra/internal/marketdata"
	"github.com/aristath/hydra/internal/scanner"
	"github.com/aristath/hydra/internal/scoring"
	"github.com/aristath/hydra/internal/signalstore"
)

// newTestServer wires a Server over throwaway SQLite-backed collaborators, mirroring
// cmd/server/main.go's wiring but scoped to a single t.TempDir() and with no connector roster.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	log := zerolog.Nop()

	blowupDB, err := database.New(filepath.Join(dir, "blowup_history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { blowupDB.Close() })

	feedbackDB, err := database.New(filepath.Join(dir, "trade_feedback.db"))
	require.NoError(t, err)
	t.Cleanup(func() { feedbackDB.Close() })

	em := events.NewManager(log)
	cache := marketdata.New()
	store := signalstore.New()
	weights := scoring.NewWeightStore(filepath.Join(dir, "blowup_weights.json"), log)
	sc := scoring.New(weights, cache, blowupDB, em, log)
	cal := calibration.New(feedbackDB, weights, log)
	agg := aggregator.New(sc, nil, nil, nil, nil)
	scn := scanner.New([]connectors.Connector{}, store, em, log)

	return New(Config{
		Port:       0,
		DevMode:    true,
		Log:        log,
		Store:      store,
		Scanner:    scn,
		Scorer:     sc,
		Weights:    weights,
		Aggregator: agg,
		Calibrator: cal,
		Events:     em,
	})
}

func TestHandleHealth_ReportsHealthyWithEmptyStore(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(0), body["active_signals"])
}

func TestHandleSignals_ReturnsEmptyListAndSummary(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/signals", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	signals, ok := body["signals"].([]interface{})
	require.True(t, ok)
	assert.Empty(t, signals)
}

func TestHandleScan_WithEmptyRoster_ReportsZeroNewSignals(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/scan", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(0), body["new_signals"])
}

func TestHandleConviction_InvalidBody_Returns400(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/conviction", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleConviction_ValidBody_ReturnsZeroModifierWithNoSubsystems(t *testing.T) {
	s := newTestServer(t)

	payload := `{"trade_direction":"BULLISH","entry":100,"stop":95,"target":110}`
	req := httptest.NewRequest(http.MethodPost, "/api/conviction", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(0), body["modifier"])
}

func TestHandleTradeResult_MissingTradeID_Returns400(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/trade-result", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleTradeResult_Valid_RecordsAndReturnsOK(t *testing.T) {
	s := newTestServer(t)

	payload := `{"trade_id":"t-1","ticker":"SPY","direction":"CALL","mode":"BLOWUP","realized_pnl_pct":1.5}`
	req := httptest.NewRequest(http.MethodPost, "/api/trade-result", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "t-1", body["trade_id"])
	assert.Equal(t, true, body["recorded"])
}

func TestHandleCalibrationWeights_ReturnsDefaultWeightOrder(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/calibration/weights", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	order, ok := body["order"].([]interface{})
	require.True(t, ok)
	assert.Len(t, order, len(domain.ComponentOrder))
}

func TestHandleGEX_NoSubsystemWired_ReturnsTypedDefault(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/gex", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got domain.GEXSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, domain.GEXRegimeUnknown, got.Regime)
	assert.Empty(t, got.GEXByStrike)
	assert.Empty(t, got.KeyLevels)
}

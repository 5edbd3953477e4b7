package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/hydra/internal/connectors"
	"github.com/aristath/hydra/internal/domain"
)

// handleHealth reports liveness, uptime, process memory, and the connector roster's health
// bookkeeping.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var states []domain.ConnectorState
	if s.scanner != nil {
		states = s.scanner.ConnectorStates()
	}
	healthy := 0
	for _, st := range states {
		if st.Healthy() {
			healthy++
		}
	}

	memStats := map[string]interface{}{}
	if vm, err := mem.VirtualMemory(); err == nil {
		memStats["used_percent"] = vm.UsedPercent
		memStats["used_mb"] = vm.Used / 1024 / 1024
		memStats["total_mb"] = vm.Total / 1024 / 1024
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":             "healthy",
		"uptime_seconds":     time.Since(s.startedAt).Seconds(),
		"connectors_total":   len(states),
		"connectors_healthy": healthy,
		"active_signals":     s.store.Len(),
		"memory":             memStats,
	})
}

// handleSignals handles GET /api/signals?category=&priority=
func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	var category *domain.Category
	if v := r.URL.Query().Get("category"); v != "" {
		c := domain.Category(v)
		category = &c
	}
	var priority *domain.Priority
	if v := r.URL.Query().Get("priority"); v != "" {
		p := domain.Priority(v)
		priority = &p
	}

	signals := s.store.Active(category, priority)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"signals": signals,
		"summary": s.store.SummaryOf(),
	})
}

// handleSignalsSummary handles GET /api/signals/summary
func (s *Server) handleSignalsSummary(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.store.SummaryOf())
}

// handleSources handles GET /api/sources
func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"sources": connectors.DataSourceRegistry,
		"stats":   connectors.Stats(),
	})
}

// handleDashboard handles GET /api/dashboard: a single composite payload for a landing view.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"summary": s.store.SummaryOf(),
		"signals": s.store.Active(nil, nil),
		"sources": connectors.Stats(),
		"blowup":  s.scorer.Latest(),
	})
}

// handleScan handles POST /api/scan: forces an immediate poll cycle outside the scheduler tick.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	newSignals, totalActive := s.scanner.Scan(r.Context())
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"new_signals":  newSignals,
		"total_active": totalActive,
	})
}

// handleBlowup handles GET /api/blowup: the scorer's latest published result, or a freshly
// computed one if the scorer has never ticked.
func (s *Server) handleBlowup(w http.ResponseWriter, r *http.Request) {
	result := s.scorer.Latest()
	if result.Timestamp.IsZero() {
		result = s.scorer.Tick()
	}
	s.writeJSON(w, http.StatusOK, result)
}

// handleBlowupHistory handles GET /api/blowup/history?count=
func (s *Server) handleBlowupHistory(w http.ResponseWriter, r *http.Request) {
	count := 50
	if v := r.URL.Query().Get("count"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			count = n
		}
	}
	history := s.scorer.History(count)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"scores": history,
		"count":  len(history),
	})
}

// handleEvents handles GET /api/events?hours=
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	hours := 24.0
	if v := r.URL.Query().Get("hours"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			hours = f
		}
	}
	var upcoming []connectors.UpcomingEvent
	var surprises []domain.EventSurprise
	if s.calendar != nil {
		upcoming = s.calendar.Upcoming(hours)
		surprises = s.calendar.RecentSurprises(20)
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"events":    upcoming,
		"count":     len(upcoming),
		"surprises": surprises,
	})
}

// handleIntelligence handles GET /api/intelligence and /api/predator: the aggregator's composite
// snapshot, which is defined to never error — on any internal failure it reports typed defaults.
func (s *Server) handleIntelligence(w http.ResponseWriter, r *http.Request) {
	snap := s.aggregator.Snapshot(r.Context())
	s.writeJSON(w, http.StatusOK, snap)
}

// handleGEX handles GET /api/gex
func (s *Server) handleGEX(w http.ResponseWriter, r *http.Request) {
	if s.gex == nil {
		s.writeJSON(w, http.StatusOK, domain.DefaultGEXSnapshot())
		return
	}
	s.writeJSON(w, http.StatusOK, s.gex.Latest())
}

// handleFlow handles GET /api/flow
func (s *Server) handleFlow(w http.ResponseWriter, r *http.Request) {
	if s.flow == nil {
		s.writeJSON(w, http.StatusOK, domain.DefaultFlowSnapshot())
		return
	}
	s.writeJSON(w, http.StatusOK, s.flow.Latest())
}

// handleDarkPool handles GET /api/darkpool
func (s *Server) handleDarkPool(w http.ResponseWriter, r *http.Request) {
	if s.darkpool == nil {
		s.writeJSON(w, http.StatusOK, domain.DefaultDarkPoolSnapshot())
		return
	}
	s.writeJSON(w, http.StatusOK, s.darkpool.Latest())
}

type sequenceAnalyzeRequest struct {
	TradeDirection string `json:"trade_direction"`
}

// handleSequenceAnalyze handles POST /api/sequence/analyze
func (s *Server) handleSequenceAnalyze(w http.ResponseWriter, r *http.Request) {
	var req sequenceAnalyzeRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	analysis, err := s.aggregator.Analyze(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, analysis)
}

type convictionRequest struct {
	TradeDirection string  `json:"trade_direction"`
	Entry          float64 `json:"entry"`
	Stop           float64 `json:"stop"`
	Target         float64 `json:"target"`
}

// handleConviction handles POST /api/conviction
func (s *Server) handleConviction(w http.ResponseWriter, r *http.Request) {
	var req convictionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	direction := domain.DirectionBullish
	if req.TradeDirection == string(domain.DirectionBearish) {
		direction = domain.DirectionBearish
	}

	result := s.aggregator.Conviction(r.Context(), direction, req.Entry, req.Stop, req.Target)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"modifier": result.Modifier,
		"reasons":  result.Reasons,
	})
}

// handleTradeResult handles POST /api/trade-result
func (s *Server) handleTradeResult(w http.ResponseWriter, r *http.Request) {
	var feedback domain.TradeFeedback
	if err := json.NewDecoder(r.Body).Decode(&feedback); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if feedback.TradeID == "" {
		s.writeError(w, http.StatusBadRequest, "trade_id is required")
		return
	}

	if err := s.calibrator.RecordTrade(feedback); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"trade_id": feedback.TradeID,
		"recorded": true,
	})
}

// handleCalibrationStats handles GET /api/calibration/stats?days=
func (s *Server) handleCalibrationStats(w http.ResponseWriter, r *http.Request) {
	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			days = n
		}
	}
	stats, err := s.calibrator.Stats(days)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

// handleCalibrationWeights handles GET /api/calibration/weights
func (s *Server) handleCalibrationWeights(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"weights": s.weights.Current(),
		"order":   domain.ComponentOrder,
	})
}

// handleCalibrationRun handles POST /api/calibration/run
func (s *Server) handleCalibrationRun(w http.ResponseWriter, r *http.Request) {
	result, err := s.calibrator.Calibrate()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("failed to encode JSON response")
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

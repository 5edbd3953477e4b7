package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/hydra/internal/aggregator"
	"github.com/aristath/hydra/internal/aux/darkpool"
	"github.com/aristath/hydra/internal/aux/flow"
	"github.com/aristath/hydra/internal/aux/gamma"
	"github.com/aristath/hydra/internal/aux/sequence"
	"github.com/aristath/hydra/internal/calibration"
	"github.com/aristath/hydra/internal/config"
	"github.com/aristath/hydra/internal/connectors"
	"github.com/aristath/hydra/internal/database"
	"github.com/aristath/hydra/internal/domain"
	"github.com/aristath/hydra/internal/events"
	"github.com/aristath/hydra/internal/httpfetch"
	"github.com/aristath/hydra/internal/llm"
	"github.com/aristath/hydra/internal/marketdata"
	"github.com/aristath/hydra/internal/scanner"
	"github.com/aristath/hydra/internal/scheduler"
	"github.com/aristath/hydra/internal/scoring"
	"github.com/aristath/hydra/internal/server"
	"github.com/aristath/hydra/internal/signalstore"
	"github.com/aristath/hydra/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info", Pretty: true})
		fallback.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})
	log.Info().Msg("starting HYDRA")

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatal().Err(err).Msg("failed to create data directory")
	}

	blowupDB, err := database.New(filepath.Join(cfg.DataDir, "blowup_history.db"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open blowup_history.db")
	}
	defer blowupDB.Close()

	gexDB, err := database.New(filepath.Join(cfg.DataDir, "gex_history.db"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open gex_history.db")
	}
	defer gexDB.Close()

	flowDB, err := database.New(filepath.Join(cfg.DataDir, "flow_history.db"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open flow_history.db")
	}
	defer flowDB.Close()

	darkpoolDB, err := database.New(filepath.Join(cfg.DataDir, "dark_pool_levels.db"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open dark_pool_levels.db")
	}
	defer darkpoolDB.Close()

	sequenceDB, err := database.New(filepath.Join(cfg.DataDir, "sequence_vectors.db"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open sequence_vectors.db")
	}
	defer sequenceDB.Close()

	feedbackDB, err := database.New(filepath.Join(cfg.DataDir, "trade_feedback.db"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open trade_feedback.db")
	}
	defer feedbackDB.Close()

	eventSurprisesDB, err := database.New(filepath.Join(cfg.DataDir, "event_surprises.db"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open event_surprises.db")
	}
	defer eventSurprisesDB.Close()

	em := events.NewManager(log)
	cache := marketdata.New()
	store := signalstore.New()
	fetcher := httpfetch.New(log, httpfetch.DefaultTimeout, httpfetch.DefaultCacheWindow)

	signalSnapshotPath := filepath.Join(cfg.DataDir, "signals.snapshot")
	if err := store.LoadSnapshot(signalSnapshotPath); err != nil {
		log.Warn().Err(err).Msg("failed to load signal snapshot, starting with an empty store")
	}

	weights := scoring.NewWeightStore(filepath.Join(cfg.DataDir, "blowup_weights.json"), log)
	scorer := scoring.New(weights, cache, blowupDB, em, log)

	var bedrock *llm.Client
	if cfg.HasBedrock() {
		bedrock = llm.New(context.Background(), cfg.AWSRegion, log)
	}

	gexEngine := gamma.New(gexDB, log)
	flowDecoder := flow.New(bedrock, flowDB, log)
	darkpoolMapper := darkpool.New(darkpoolDB, log)
	sequenceMatcher := sequence.New(sequenceDB, bedrock, log)

	agg := aggregator.New(scorer, gexEngine, flowDecoder, darkpoolMapper, sequenceMatcher)
	calibrator := calibration.New(feedbackDB, weights, log)

	calendar := connectors.NewEconCalendar(filepath.Join(cfg.DataDir, "events.json"), log, cache, eventSurprisesDB)

	roster := []connectors.Connector{
		calendar,

		// Crypto
		connectors.NewBinanceFundingRate(fetcher, log, cache),
		connectors.NewBinanceOpenInterest(fetcher, log, cache),
		connectors.NewCoinglassLiquidations(fetcher, log),
		connectors.NewBTCETFFlow(fetcher, log),
		connectors.NewWhaleAlert(fetcher, log, cfg.WhaleAlertAPIKey),
		connectors.NewTokenUnlocks(fetcher, log),
		connectors.NewDeribitOptionsSkew(fetcher, log),
		connectors.NewGlassnodeOnChain(fetcher, log, cfg.GlassnodeAPIKey),

		// Macro
		connectors.NewFREDSeries(fetcher, log, cfg.FREDAPIKey),
		connectors.NewTreasuryAuctionResults(fetcher, log),
		connectors.NewISMManufacturingPMI(fetcher, log),
		connectors.NewChallengerLayoffs(fetcher, log),

		// Metals / scrape
		connectors.NewCMEMarginAdvisories(fetcher, log),
		connectors.NewShanghaiGoldPremium(fetcher, log),
		connectors.NewGovShutdownTracker(fetcher, log),

		// AI disruption
		connectors.NewGitHubAILabRepos(fetcher, log),
		connectors.NewHackerNewsTrends(fetcher, log),

		// Options / volatility / flow
		connectors.NewUnusualWhalesFlow(fetcher, log, cfg.UnusualWhalesAPIKey),
		connectors.NewVIXQuote(fetcher, log, cache),
		connectors.NewSKEWQuote(fetcher, log),

		// Prediction markets
		connectors.NewPolymarket(fetcher, log),

		// Cross-asset / sector / quotes
		connectors.NewCopperFutures(fetcher, log),
		connectors.NewCreditSpread(fetcher, log),
		connectors.NewDXYQuote(fetcher, log),
		connectors.NewTANQuote(fetcher, log),
		connectors.NewSPYQuote(fetcher, log, cache),
		connectors.NewTLTQuote(fetcher, log, cache),
		connectors.NewGLDQuote(fetcher, log, cache),
		connectors.NewSectorBreadth(fetcher, log, cache),
	}

	sc := scanner.New(roster, store, em, log)

	sched := scheduler.New(log)
	sched.Start()
	defer sched.Stop()

	if err := registerJobs(sched, sc, scorer, calibrator, gexEngine, flowDecoder, darkpoolMapper, log); err != nil {
		log.Fatal().Err(err).Msg("failed to register background jobs")
	}

	srv := server.New(server.Config{
		Port:       cfg.Port,
		DevMode:    cfg.DevMode,
		Log:        log,
		Store:      store,
		Scanner:    sc,
		Scorer:     scorer,
		Weights:    weights,
		Aggregator: agg,
		Calibrator: calibrator,
		GEX:        gexEngine,
		Flow:       flowDecoder,
		DarkPool:   darkpoolMapper,
		Calendar:   calendar,
		Events:     em,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("HYDRA started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down HYDRA...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	if err := store.SaveSnapshot(signalSnapshotPath); err != nil {
		log.Error().Err(err).Msg("failed to save signal snapshot")
	}

	log.Info().Msg("HYDRA stopped")
}

// registerJobs wires all six logical workers onto their scheduled cadences (SPEC_FULL.md §5).
// gamma/flow/darkpool have no live options/trade-tape feed wired yet, so their jobs poll with an
// empty batch on every tick — this keeps Update() on the hot path (gex_history and flow_history
// get one degraded row per tick; dark_pool_levels gets none, as an empty batch has no clusters)
// instead of dead code reachable only from tests, ready to carry a real feed the moment one exists.
func registerJobs(sched *scheduler.Scheduler, sc *scanner.Scanner, sr *scoring.Scorer, cal *calibration.Calibrator, gex *gamma.Engine, fl *flow.Decoder, dp *darkpool.Mapper, log zerolog.Logger) error {
	if err := sched.AddJob("0 * * * * *", sc); err != nil {
		return err
	}
	if err := sched.AddJob("0 * * * * *", sr); err != nil {
		return err
	}
	if err := sched.AddJob("0 30 16 * * MON-FRI", calibratorJob{cal, log}); err != nil {
		return err
	}
	if err := sched.AddJob("0 * * * * *", gammaJob{gex}); err != nil {
		return err
	}
	if err := sched.AddJob("0 */2 * * * *", flowJob{fl}); err != nil {
		return err
	}
	if err := sched.AddJob("0 */5 * * * *", darkpoolJob{dp}); err != nil {
		return err
	}
	return nil
}

// gammaJob adapts gamma.Engine.Update to the scheduler.Job interface. The job runs once a minute;
// GEX's own adaptive cadence (Engine.RefreshSeconds) is reported in each snapshot but does not
// change this schedule.
type gammaJob struct {
	engine *gamma.Engine
}

func (j gammaJob) Name() string { return "gamma" }

func (j gammaJob) Run() error {
	j.engine.Update("SPY", 0, nil, time.Now())
	return nil
}

// flowJob adapts flow.Decoder.Update to the scheduler.Job interface.
type flowJob struct {
	decoder *flow.Decoder
}

func (j flowJob) Name() string { return "flow" }

func (j flowJob) Run() error {
	j.decoder.Update(context.Background(), "SPY", nil)
	return nil
}

// darkpoolJob adapts darkpool.Mapper.Update to the scheduler.Job interface.
type darkpoolJob struct {
	mapper *darkpool.Mapper
}

func (j darkpoolJob) Name() string { return "darkpool" }

func (j darkpoolJob) Run() error {
	j.mapper.Update("SPY", 0, nil, domain.NBBO{})
	return nil
}

// calibratorJob adapts calibration.Calibrator.Calibrate to the scheduler.Job interface, since
// Calibrate returns a result the scheduler's Run() contract has no room for.
type calibratorJob struct {
	calibrator *calibration.Calibrator
	log        zerolog.Logger
}

func (j calibratorJob) Name() string { return "calibrator" }

func (j calibratorJob) Run() error {
	result, err := j.calibrator.Calibrate()
	if err != nil {
		return err
	}
	j.log.Info().Str("status", result.Status).Bool("persisted", result.Persisted).Msg("calibration run complete")
	return nil
}

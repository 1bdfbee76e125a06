package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/veriloglab/judge-backend/internal/broadcast"
	"github.com/veriloglab/judge-backend/internal/config"
	"github.com/veriloglab/judge-backend/internal/database"
	"github.com/veriloglab/judge-backend/internal/events"
	"github.com/veriloglab/judge-backend/internal/handler"
	"github.com/veriloglab/judge-backend/internal/logger"
	"github.com/veriloglab/judge-backend/internal/metrics"
	"github.com/veriloglab/judge-backend/internal/middleware"
	"github.com/veriloglab/judge-backend/internal/repository"
	"github.com/veriloglab/judge-backend/internal/router"
	"github.com/veriloglab/judge-backend/internal/sandbox"
	"github.com/veriloglab/judge-backend/internal/scoring"
	"github.com/veriloglab/judge-backend/internal/service"
	"github.com/veriloglab/judge-backend/internal/validator"
	"github.com/veriloglab/judge-backend/internal/verdict"
	"github.com/veriloglab/judge-backend/internal/worker"
)

const hubBuffer = 64

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Int("judge_workers", cfg.JudgeWorkers).
		Msg("Starting HDL judge")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Metrics ───────────────────────────────────────────────────────
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	problemRepo := repository.NewProblemRepository(pool)
	stageRepo := repository.NewStageRepository(pool)
	submissionRepo := repository.NewSubmissionRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	contestRepo := repository.NewContestRepository(pool)
	participantRepo := repository.NewParticipantRepository(pool)

	// ─── Sandbox ───────────────────────────────────────────────────────
	flags, err := sandbox.SplitFlags(cfg.IverilogFlags)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid IVERILOG_FLAGS")
	}
	runner, err := sandbox.NewRunner(sandbox.Options{
		Toolchain:       sandbox.Toolchain{CompilerPath: cfg.IverilogPath, SimulatorPath: cfg.VVPPath},
		CompilerFlags:   flags,
		ScratchDir:      cfg.ScratchDir,
		Workers:         cfg.JudgeWorkers,
		QueueTimeout:    cfg.JudgeQueueTimeout,
		CompileTimeout:  cfg.CompileTimeout,
		SimulateTimeout: cfg.SimulateTimeout,
		MaxOutputBytes:  cfg.MaxOutputBytes,
		MaxTraceBytes:   cfg.MaxTraceBytes,
		FailureMarker:   cfg.FailureMarker,
	}, m, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare sandbox")
	}

	// ─── Live Updates ──────────────────────────────────────────────────
	hub := broadcast.NewHub(hubBuffer, m, log)
	broadcaster := broadcast.NewRedisBroadcaster(hub, rdb, log)
	if err := broadcaster.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to subscribe to live channels")
	}
	defer broadcaster.Close()

	// ─── Event Stream (optional) ───────────────────────────────────────
	publishers := []scoring.Publisher{broadcaster}
	var judged service.JudgedPublisher
	var announcer worker.StatusAnnouncer
	if len(cfg.KafkaBrokers) > 0 {
		producer := events.NewProducer(cfg.KafkaBrokers, events.Topics{
			Judged:      cfg.KafkaTopicJudged,
			Leaderboard: cfg.KafkaTopicLeaderboard,
			Contest:     cfg.KafkaTopicContest,
		}, m, log)
		defer producer.Close()
		publishers = append(publishers, producer)
		judged = producer
		announcer = producer
		log.Info().Strs("brokers", cfg.KafkaBrokers).Msg("Kafka producer enabled")
	}

	// ─── Initialize Services ──────────────────────────────────────────
	engine := scoring.NewEngine(participantRepo, contestRepo, m, log, publishers...)
	authService := service.NewAuthService(cfg)
	submissionService := service.NewSubmissionService(service.SubmissionDeps{
		Judge:       runner,
		Classifier:  verdict.New(cfg.FailureMarker),
		Problems:    problemRepo,
		Submissions: submissionRepo,
		Users:       userRepo,
		Scores:      engine,
		Reconcile:   worker.NewRedisReconcileQueue(rdb),
		Publisher:   judged,
		Metrics:     m,
	}, log)
	simulationService := service.NewSimulationService(runner, problemRepo, stageRepo, log)
	contestService := service.NewContestService(contestRepo, participantRepo, problemRepo, userRepo, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Health: handler.NewHealthHandler(map[string]handler.HealthCheck{
			"postgres": pool.Ping,
			"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		}, log),
		Submission: handler.NewSubmissionHandler(submissionService, log),
		Simulation: handler.NewSimulationHandler(simulationService, log),
		Contest:    handler.NewContestHandler(contestService, log),
		WS:         handler.NewWSHandler(hub, contestService, m, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	workers, workerCtx := errgroup.WithContext(workerCtx)

	reconcileWorker := worker.NewReconcileWorker(rdb, engine, contestRepo, log)
	contestClock := worker.NewContestClock(contestRepo, broadcaster, announcer, cfg.ContestTickInterval, log)

	workers.Go(func() error { reconcileWorker.Start(workerCtx); return nil })
	workers.Go(func() error { contestClock.Start(workerCtx); return nil })

	// ─── Setup Router ──────────────────────────────────────────────────
	limiterStop := make(chan struct{})
	judgeLimiter := middleware.NewRateLimiter(cfg.SubmitRateLimit, time.Minute, limiterStop)
	r := router.SetupRouter(authService, handlers, cfg, reg, judgeLimiter)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests. In-flight judgings finish first.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.CompileTimeout+cfg.SimulateTimeout+5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	close(limiterStop)

	// 2. Stop background workers and wait for them to return.
	workerCancel()
	if err := workers.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker exited with error")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}

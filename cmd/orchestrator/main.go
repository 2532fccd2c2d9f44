// Command orchestrator runs daovoter's core pipeline: the chain scanner
// (C3), the analysis job bus sweeper (C4), and the vote executor (C5)
// against a single Redis instance, Postgres database, and EVM RPC
// endpoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"daovoter/internal/chain"
	"daovoter/internal/config"
	"daovoter/internal/contracts"
	"daovoter/internal/cursorstore"
	"daovoter/internal/executor"
	"daovoter/internal/logging"
	"daovoter/internal/queue"
	"daovoter/internal/relstore"
	"daovoter/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("orchestrator: %v", err)
	}
}

func run() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "config.yaml", "path to orchestrator config")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.Setup("daovoter-orchestrator", cfg.Environment, cfg.LogFile)

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "daovoter-orchestrator",
		Environment: cfg.Environment,
		Endpoint:    cfg.OTELEndpoint,
		Insecure:    true,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() { _ = redisClient.Close() }()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = redisClient.Ping(pingCtx).Err()
	cancel()
	if err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := relstore.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	ethDialCtx, cancel := context.WithTimeout(context.Background(), cfg.RPCDeadline.Duration)
	ethClient, err := ethclient.DialContext(ethDialCtx, cfg.RPCURL)
	cancel()
	if err != nil {
		return fmt.Errorf("dial rpc: %w", err)
	}
	defer ethClient.Close()

	store := relstore.New(db)
	cursor := cursorstore.New(redisClient)
	jobBus := queue.New(redisClient)
	votingAgent := contracts.NewVotingAgent(common.HexToAddress(cfg.VotingAgentAddress), ethClient)

	scannerID := strings.TrimSpace(os.Getenv("DAOVOTER_SCANNER_ID"))
	if scannerID == "" {
		scannerID = uuid.NewString()
	}

	// Historical catch-up can issue many FilterLogs windows back to back;
	// pace them against the RPC provider's budget rather than firing as
	// fast as the loop allows.
	const rpcCallsPerSecond = 20
	pacedClient := chain.NewRateLimitedClient(ethClient, rpcCallsPerSecond, 4)

	scanner, err := chain.New(chain.Config{
		ScannerID:       scannerID,
		GovernorAddress: common.HexToAddress(cfg.DAOGovernorAddress),
		VotingAgent:     common.HexToAddress(cfg.VotingAgentAddress),
		ChainID:         cfg.ChainID,
		StartBlock:      cfg.StartBlock,
		WindowSize:      cfg.MaxBlockBatch,
		ReconnectDelay:  cfg.ReconnectDelay.Duration,
	}, pacedClient, cursor, store, jobBus, logger)
	if err != nil {
		return fmt.Errorf("build scanner: %w", err)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// errgroup.WithContext cancels gctx, and therefore every goroutine
	// below it, the moment any one of them returns a non-nil error.
	g, gctx := errgroup.WithContext(rootCtx)

	g.Go(func() error { return scanner.Run(gctx) })
	g.Go(func() error {
		jobBus.RunSweeper(gctx, cfg.JobStallTimeout.Duration, logger)
		return nil
	})

	if cfg.VotingEnabled() {
		signer, err := executor.NewSigner(cfg.BackendPrivateKey, big.NewInt(cfg.ChainID))
		if err != nil {
			return fmt.Errorf("load backend signer: %w", err)
		}

		voteExecutor, err := executor.New(executor.Config{Concurrency: int64(cfg.ExecutorConcurrency)}, store, votingAgent, ethClient, signer, logger)
		if err != nil {
			return fmt.Errorf("build executor: %w", err)
		}

		sub := cursor.SubscribeAnalysisEvents(gctx)
		defer func() { _ = sub.Close() }()

		g.Go(func() error { return voteExecutor.Run(gctx, sub) })

		logger.Info("vote executor started", "signer", signer.Address().Hex())
	} else {
		logger.Warn("backend_private_key not set; running scanner and queue only, votes will not be cast")
	}

	router := chi.NewRouter()
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      otelhttp.NewHandler(router, "daovoter-orchestrator"),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g.Go(func() error {
		logger.Info("listening", "addr", cfg.ListenAddress)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace.Duration)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

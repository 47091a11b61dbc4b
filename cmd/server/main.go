package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"stakeflow/internal/api"
	"stakeflow/internal/blockchain/evm"
	"stakeflow/internal/config"
	"stakeflow/internal/database"
	"stakeflow/internal/models"
	"stakeflow/internal/service"
	"stakeflow/internal/worker"
)

func main() {
	// Initialize logger
	logger, err := initLogger()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting stakeflow transaction sink")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	if err := cfg.ValidateServer(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	logger.Info("Configuration loaded",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("db_host", cfg.Database.Host),
		zap.String("network", cfg.Network.Name),
		zap.Bool("chain_access", cfg.Network.RPCEndpoint != ""))

	// Connect to database
	db, err := database.Connect(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	logger.Info("Database connected successfully")

	if err := database.RunMigrations(db); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	logger.Info("Database migrations applied successfully")

	if cfg.Server.SeedProtocolOptions {
		options := seedOptions(cfg.Network.Name)
		if err := db.ReplaceProtocolOptions(context.Background(), cfg.Network.Name, options); err != nil {
			logger.Fatal("Failed to seed protocol options", zap.Error(err))
		}
		logger.Info("Seeded protocol options", zap.Int("count", len(options)))
	}

	// Chain access is optional: without it fee previews and verification are disabled
	var (
		gateway   *evm.Gateway
		feeSource service.FeeSource
	)
	if cfg.Network.RPCEndpoint != "" {
		client, err := evm.NewClient(cfg.Network.RPCEndpoint, "", logger)
		if err != nil {
			logger.Fatal("Failed to create EVM client", zap.Error(err))
		}
		gateway, err = evm.NewGateway(client, &cfg.Network, logger)
		if err != nil {
			logger.Fatal("Failed to create chain gateway", zap.Error(err))
		}
		defer gateway.Close()
		feeSource = gateway
	}

	// Initialize services
	transactionService := service.NewTransactionService(db, cfg, logger)
	feeService := service.NewFeeService(feeSource, &cfg.Network, logger)

	logger.Info("Services initialized")

	// Initialize API handlers
	apiHandler := api.NewHandler(transactionService, feeService, cfg.Network.Name, logger)
	router := api.SetupRouter(apiHandler, cfg.Server.AllowedOrigins, logger)

	// Create HTTP server
	serverAddr := fmt.Sprintf(":%d", cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start HTTP server in goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server",
			zap.String("addr", serverAddr))
		serverErrors <- httpServer.ListenAndServe()
	}()

	// Start verification workers
	var workerManager *worker.WorkerManager
	if gateway != nil {
		verifier := service.NewVerificationService(db, gateway, common.HexToAddress(cfg.Network.RouterAddress), logger)
		workerManager = worker.NewWorkerManager(verifier, cfg.Verifier.PollInterval, service.VerificationBatch, logger)
		workerManager.Start()
		logger.Info("Verification workers started")
	} else {
		logger.Warn("RPC_ENDPOINT not set, record verification disabled")
	}

	logger.Info("Service initialized successfully",
		zap.String("status", "ready"),
		zap.Int("port", cfg.Server.Port))

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Wait for interrupt signal or server error
	select {
	case err := <-serverErrors:
		logger.Fatal("HTTP server error", zap.Error(err))
	case sig := <-quit:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	}

	logger.Info("Shutting down service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Shutdown workers first
	if workerManager != nil {
		if err := workerManager.Shutdown(10 * time.Second); err != nil {
			logger.Error("Worker shutdown error", zap.Error(err))
		}
	}

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
		httpServer.Close()
	} else {
		logger.Info("HTTP server stopped gracefully")
	}

	logger.Info("Service stopped successfully")
}

// seedOptions returns the built-in protocol options of a network
func seedOptions(network string) []models.ProtocolOption {
	var options []models.ProtocolOption
	for _, o := range database.DefaultProtocolOptions() {
		if o.Network == network {
			options = append(options, o)
		}
	}
	return options
}

func initLogger() (*zap.Logger, error) {
	env := os.Getenv("ENV")
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

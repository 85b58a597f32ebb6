package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/omex-energy/omex/pkg/coordinator"
	"github.com/omex-energy/omex/pkg/db"
	"github.com/omex-energy/omex/pkg/jobstore"
	"github.com/omex-energy/omex/pkg/kv"
	"github.com/omex-energy/omex/pkg/oapi"
	"github.com/omex-energy/omex/pkg/oapi/config"
	"github.com/omex-energy/omex/pkg/oapi/routes"
	"github.com/omex-energy/omex/pkg/olog"
	"github.com/omex-energy/omex/pkg/orchestrator"
	"github.com/omex-energy/omex/pkg/workflow"
)

// runCmd starts the HTTP server.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the omex REST service",
	Run:   run,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func run(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.ValidateEnv()
	if err != nil {
		log.Fatalf("❌ %v\n", err)
	}

	cfg.Print(log.Printf)

	logger := olog.New(olog.ParseLevel(cfg.LogLevel), nil)

	database, err := db.New(ctx, db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	})
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	defer database.Close()

	var cache kv.Store
	if cfg.ValkeyAddr != "" {
		cache, err = kv.NewValkeyStore(kv.ValkeyConfig{
			Addr:     cfg.ValkeyAddr,
			Password: cfg.ValkeyPassword,
			DB:       cfg.ValkeyDB,
		})
		if err != nil {
			logger.Fatalf("failed to connect to valkey: %v", err)
		}
	} else {
		cache = kv.NewMemoryStore()
	}
	defer cache.Close()

	// The execution engine is an external collaborator; this deployment
	// runs against the simulated backend.
	orch := orchestrator.NewLocal(logger, time.Duration(cfg.OrchestratorStepDelayMS)*time.Millisecond)

	store := jobstore.New(database, logger)
	catalog := workflow.DefaultCatalog()
	coord := coordinator.New(store, catalog, orch, logger,
		coordinator.WithSchemaCache(cache, time.Duration(cfg.SchemaCacheTTL)*time.Second))

	api := oapi.NewApi()
	routes.RegisterAPI(api.Api, coord)

	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{Addr: addr, Handler: api.Router}

	logger.Info("🚀 omex starting", "addr", addr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatalf("server error: %v", err)
	}
	logger.Info("omex stopped")
}

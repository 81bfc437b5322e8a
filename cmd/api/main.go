package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Pranjal0410/real-estate-project-sub000/internal/config"
	"github.com/Pranjal0410/real-estate-project-sub000/internal/database"
	"github.com/Pranjal0410/real-estate-project-sub000/internal/logger"
	"github.com/Pranjal0410/real-estate-project-sub000/internal/reference"
	"github.com/Pranjal0410/real-estate-project-sub000/internal/server"
	"github.com/Pranjal0410/real-estate-project-sub000/internal/services"
)

// @title           Property Ledger API
// @version         1.0
// @description     Fractional real-estate investment ledger: portfolios, holdings and buy, sell and transfer transactions.
// @termsOfService  http://swagger.io/terms/

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Initialize logger (use ENV var if available, default to development)
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	log := logger.Get()

	appConfig, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if appConfig.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	dbManager, err := database.NewManager(database.NewConfig(appConfig))
	if err != nil {
		return fmt.Errorf("failed to create database manager: %w", err)
	}
	defer func() {
		if err := dbManager.Close(); err != nil {
			log.Warnf("database close error: %v", err)
		}
	}()

	if err := dbManager.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	refs := reference.NewGenerator(0)
	seedCtx, cancelSeed := context.WithTimeout(context.Background(), 10*time.Second)
	err = services.SeedReferences(seedCtx, dbManager.DB(), refs)
	cancelSeed()
	if err != nil {
		return fmt.Errorf("failed to seed transaction references: %w", err)
	}

	router := server.NewRouter(appConfig, server.NewServices(dbManager.DB(), appConfig, refs))

	srv := &http.Server{
		Addr:              ":" + appConfig.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting property ledger server on port %s", appConfig.Port)
		log.Infof("Swagger documentation available at http://localhost:%s/swagger/index.html", appConfig.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutdown requested, draining in-flight requests")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

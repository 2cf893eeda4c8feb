package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/sigefi/budget-approval/internal"
	"github.com/sigefi/budget-approval/internal/auth"
	authPostgres "github.com/sigefi/budget-approval/internal/auth/postgres"
	budgetPostgres "github.com/sigefi/budget-approval/internal/budget/postgres"
	"github.com/sigefi/budget-approval/internal/demande"
	demandePostgres "github.com/sigefi/budget-approval/internal/demande/postgres"
	"github.com/sigefi/budget-approval/internal/journal"
	journalPostgres "github.com/sigefi/budget-approval/internal/journal/postgres"
	"github.com/sigefi/budget-approval/internal/transport/rest"
	"github.com/sigefi/budget-approval/internal/transport/swagger"
	"github.com/sigefi/budget-approval/pkg/logger"
	"github.com/spf13/cobra"
	gormPostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

func startHTTPServer() {
	cfg, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Logging.Format)
	log := logger.L()

	sqlxDB, err := initDB(cfg.Database)
	if err != nil {
		log.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}

	gormDB, err := gorm.Open(gormPostgres.New(gormPostgres.Config{Conn: sqlxDB.DB}), &gorm.Config{})
	if err != nil {
		log.Error("failed to open orm handle", "error", err)
		os.Exit(1)
	}

	if err := swagger.ValidateSpec("./api/openapi.yml"); err != nil {
		log.Error("openapi spec check failed", "error", err)
		os.Exit(1)
	}

	threshold, err := cfg.Workflow.DAFThresholdAmount()
	if err != nil {
		log.Error("invalid workflow config", "error", err)
		os.Exit(1)
	}

	userRepo := authPostgres.NewUserRepository(gormDB)
	authMiddleware := auth.NewMiddleware(userRepo, []byte(cfg.Security.JWTSecret))

	signatures := demande.NewSignatureStore(cfg.Security.SignatureDir, cfg.Server.BaseURL+"/uploads/signatures")
	demandeStore := demandePostgres.NewStore(gormDB)
	budgetRepo := budgetPostgres.NewBudgetRepository(gormDB)
	engine := demande.NewEngine(demandeStore, budgetRepo, signatures, threshold, log)
	demandeHandler := demande.NewHandler(engine)

	journalRepo := journalPostgres.NewJournalRepository(gormDB)
	journalService := journal.NewService(journalRepo, log)
	journalHandler := journal.NewHandler(journalService)

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, sqlxDB.DB, authMiddleware, demandeHandler, journalHandler, cfg.Server.AllowedOrigins, log)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Info("starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		log.Info("received signal, shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Error("server shutdown error", "error", err)
		}
		if err := sqlxDB.Close(); err != nil {
			log.Error("database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			log.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}

	log.Info("server stopped")
}

// initDB opens and verifies the database connection.
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

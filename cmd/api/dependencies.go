package main

import (
	"fmt"
	"log/slog"
	"time"

	accountstore "github.com/centavohq/centavo/internal/domain/account"
	"github.com/centavohq/centavo/internal/domain/categorization"
	categorystore "github.com/centavohq/centavo/internal/domain/category"
	importhandler "github.com/centavohq/centavo/internal/domain/import/handler"
	importrepo "github.com/centavohq/centavo/internal/domain/import/repository"
	importservice "github.com/centavohq/centavo/internal/domain/import/service"
	merchantstore "github.com/centavohq/centavo/internal/domain/merchant"
	"github.com/centavohq/centavo/internal/domain/rules"
	tagstore "github.com/centavohq/centavo/internal/domain/tag"
	"github.com/centavohq/centavo/internal/domain/transaction"

	"github.com/centavohq/centavo/pkg/auth"
	"github.com/centavohq/centavo/pkg/config"
	"github.com/centavohq/centavo/pkg/cron"
	"github.com/centavohq/centavo/pkg/db"
	"github.com/centavohq/centavo/pkg/metrics"
	"github.com/centavohq/centavo/pkg/storage"

	"go.opentelemetry.io/otel"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	DB     *db.DB
	Logger *slog.Logger

	// Repositories
	ImportRepo      importrepo.ImportRepository
	TransactionRepo transaction.Repository
	RuleRepo        rules.Repository
	PatternRepo     categorization.Repository
	AccountStore    accountstore.Store
	CategoryStore   *categorystore.PostgresStore
	TagStore        *tagstore.PostgresStore
	MerchantStore   *merchantstore.PostgresStore

	// Services
	AuthService   *auth.Service
	ImportService *importservice.ImportService
	RuleEngine    *rules.Engine
	Categorizer   *categorization.Service
	RuleService   *rules.RuleService
	FileStorage   storage.Storage
	Metrics       *metrics.Metrics
	Scheduler     *cron.Scheduler

	// Handlers
	ImportHandler *importhandler.ImportHandler
	RulesHandler  *rules.Handler
}

// InitDependencies initializes all application dependencies
func InitDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}
	if err := deps.initRepositories(); err != nil {
		return nil, fmt.Errorf("failed to init repositories: %w", err)
	}
	if err := deps.initServices(); err != nil {
		return nil, fmt.Errorf("failed to init services: %w", err)
	}
	if err := deps.initHandlers(); err != nil {
		return nil, fmt.Errorf("failed to init handlers: %w", err)
	}

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase initializes the database connection and runs migrations
func (d *Dependencies) initDatabase() error {
	database, err := db.New(db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}
	d.DB = database

	if err := d.DB.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

// initRepositories initializes all repository layer dependencies
func (d *Dependencies) initRepositories() error {
	d.ImportRepo = importrepo.NewPostgresImportRepository(d.DB.Pool)
	d.TransactionRepo = transaction.NewPostgresRepository(d.DB.Pool)
	d.RuleRepo = rules.NewPostgresRuleRepository(d.DB.Pool)
	d.PatternRepo = categorization.NewPostgresRepository(d.DB.Pool)
	d.AccountStore = accountstore.NewPostgresStore(d.DB.Pool)
	d.CategoryStore = categorystore.NewPostgresStore(d.DB.Pool)
	d.TagStore = tagstore.NewPostgresStore(d.DB.Pool)
	d.MerchantStore = merchantstore.NewPostgresStore(d.DB.Pool)

	d.Logger.Info("repositories initialized")
	return nil
}

// initServices initializes all service layer dependencies
func (d *Dependencies) initServices() error {
	d.AuthService = auth.NewService(d.Config.Auth.JWTSecret, d.Config.Auth.TokenExpiry)
	d.Metrics = metrics.New()

	fileStorage, err := storage.New(&storage.Config{BasePath: d.Config.Storage.BasePath})
	if err != nil {
		return fmt.Errorf("failed to init file storage: %w", err)
	}
	d.FileStorage = fileStorage

	// Rule engine feeding the import pipeline
	d.RuleEngine = rules.NewEngine(d.RuleRepo, d.TagStore, d.CategoryStore, d.Logger)
	d.RuleService = rules.NewRuleService(d.RuleRepo, d.Logger)
	d.Categorizer = categorization.NewService(d.PatternRepo, d.Logger)

	d.ImportService = importservice.NewImportService(
		d.ImportRepo,
		d.AccountStore,
		d.TransactionRepo,
		d.FileStorage,
		d.Metrics,
		d.Logger,
	).
		WithRulePipeline(d.RuleEngine).
		WithMerchantResolver(d.MerchantStore).
		WithCategorizer(d.Categorizer).
		WithTracer(otel.Tracer("centavo/import"))

	// Background reaper for imports stuck in processing
	d.Scheduler = cron.NewScheduler(d.ImportRepo, d.Config.Import.StuckJobAge, d.Logger)

	d.Logger.Info("services initialized")
	return nil
}

// initHandlers initializes all handler dependencies
func (d *Dependencies) initHandlers() error {
	d.ImportHandler = importhandler.NewImportHandler(d.ImportService, d.Logger)
	d.RulesHandler = rules.NewHandler(d.RuleService, d.Logger)

	d.Logger.Info("handlers initialized")
	return nil
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.Scheduler != nil {
		<-d.Scheduler.Stop().Done()
	}
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Info("cleanup completed")
}

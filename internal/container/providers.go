package container

import (
	"context"
	"fmt"

	"github.com/garyjia/hr-requests/internal/application/dispatcher"
	"github.com/garyjia/hr-requests/internal/application/permission"
	"github.com/garyjia/hr-requests/internal/application/port"
	"github.com/garyjia/hr-requests/internal/application/request"
	"github.com/garyjia/hr-requests/internal/application/service"
	"github.com/garyjia/hr-requests/internal/application/workflow"
	"github.com/garyjia/hr-requests/internal/infrastructure/export"
	"github.com/garyjia/hr-requests/internal/infrastructure/external/redisstream"
	"github.com/garyjia/hr-requests/internal/infrastructure/persistence/dbtx"
	"github.com/garyjia/hr-requests/internal/infrastructure/persistence/repository"
	"github.com/garyjia/hr-requests/internal/infrastructure/seed"
	"github.com/garyjia/hr-requests/internal/infrastructure/worker"
	"github.com/garyjia/hr-requests/migrations"
	"github.com/garyjia/hr-requests/pkg/database"
	"github.com/garyjia/hr-requests/pkg/utils"
	"go.uber.org/zap"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	DB             *database.DB
	TransactionMgr *dbtx.DB
}

// ApplicationBundle groups the application services.
type ApplicationBundle struct {
	Workflows     workflow.Store
	Permissions   permission.Resolver
	Requests      request.Engine
	Notifications service.NotificationService
	Inbox         service.InboxService
}

// ProvideDatabase opens the database and runs the embedded migrations
// for its dialect when AutoMigrate is set.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(database.Config{
		Driver:          cfg.Driver,
		Path:            cfg.Path,
		DSN:             cfg.DSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		fsys, dir := migrations.FS(db.Dialect())
		applied, err := database.NewMigrator(db, logger).RunMigrations(fsys, dir)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		logger.Info("Migrations checked", zap.Int("applied", applied), zap.String("dialect", string(db.Dialect())))
	}

	return &DatabaseBundle{
		DB:             db,
		TransactionMgr: dbtx.New(db, logger),
	}, nil
}

// ProvideRepositories creates all repositories over the transaction-aware handle.
func ProvideRepositories(db *dbtx.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Step:         repository.NewStepRepository(db, logger),
		Workflow:     repository.NewWorkflowRepository(db, logger),
		Request:      repository.NewRequestRepository(db, logger),
		StatusLog:    repository.NewStatusLogRepository(db, logger),
		Permission:   repository.NewPermissionRepository(db, logger),
		Reference:    repository.NewReferenceRepository(db, logger),
		User:         repository.NewUserRepository(db, logger),
		Notification: repository.NewNotificationRepository(db, logger),
	}, nil
}

// ProvidePublisher connects to the notification stream.
// It returns nil when Redis is disabled.
func ProvidePublisher(ctx context.Context, cfg *RedisConfig, logger *zap.Logger) (*redisstream.Publisher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if !cfg.Enabled {
		logger.Info("Redis disabled, notifications stay in the inbox")
		return nil, nil
	}

	streamCfg := redisstream.Config{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		Stream:   cfg.Stream,
		MaxLen:   cfg.MaxLen,
	}
	publisher := redisstream.NewPublisher(redisstream.NewClient(streamCfg), streamCfg, logger)

	if err := publisher.Ping(ctx); err != nil {
		publisher.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return publisher, nil
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(cfg *NotificationConfig, logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("notification config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(utils.NewKVLogger(logger.Named("dispatcher"))),
		dispatcher.WithHandlerTimeout(cfg.HandlerTimeout),
	), nil
}

// ApplicationDeps holds dependencies for ProvideApplication.
type ApplicationDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Dispatcher dispatcher.Dispatcher
	Config     *Config
	Logger     *zap.Logger
}

// ProvideApplication wires the workflow store, permission resolver, request
// engine and notification services, and subscribes notifications to the dispatcher.
func ProvideApplication(deps *ApplicationDeps) (*ApplicationBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("application deps are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if deps.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	repos := deps.Repos
	cfg := deps.Config
	logger := utils.NewKVLogger(deps.Logger)

	store := workflow.NewStore(
		repos.Workflow,
		repos.Step,
		deps.TxManager,
		workflow.WithCacheExpiry(cfg.Workflow.CacheExpiry),
		workflow.WithLogger(utils.NewKVLogger(deps.Logger.Named("workflow"))),
	)

	resolver := permission.NewResolver(repos.Permission, repos.Reference, deps.TxManager,
		utils.NewKVLogger(deps.Logger.Named("permission")))

	exporter := export.NewXLSXExporter(repos.Reference, repos.User, cfg.Request.Location, deps.Logger.Named("export"))

	engine := request.NewEngine(
		repos.Request,
		repos.StatusLog,
		repos.Step,
		repos.Reference,
		store,
		resolver,
		deps.TxManager,
		utils.NewKVLogger(deps.Logger.Named("request")),
		request.WithDispatcher(deps.Dispatcher),
		request.WithExporter(exporter),
		request.WithLocation(cfg.Request.Location),
		request.WithTerminalSteps(cfg.Workflow.TerminalSteps),
		request.WithProtocolAttempts(cfg.Request.ProtocolAttempts),
	)

	notifications := service.NewNotificationService(store, repos.User, repos.Reference, repos.Notification,
		utils.NewKVLogger(deps.Logger.Named("notification")))
	notifications.Register(deps.Dispatcher)

	return &ApplicationBundle{
		Workflows:     store,
		Permissions:   resolver,
		Requests:      engine,
		Notifications: notifications,
		Inbox:         service.NewInboxService(repos.Notification, logger),
	}, nil
}

// ProvideSeed creates the steps and workflows of the seed file that are missing.
// Definitions already in the database are left as administrators last saved them.
func ProvideSeed(ctx context.Context, path string, repos *RepositoryBundle, store workflow.DefinitionStore, txManager port.TransactionManager, logger *zap.Logger) error {
	if path == "" {
		return nil
	}

	f, err := seed.LoadFile(path)
	if err != nil {
		return err
	}

	res, err := seed.NewSeeder(repos.Step, repos.Workflow, store, txManager, logger.Named("seed")).ApplyMissing(ctx, f)
	if err != nil {
		return fmt.Errorf("failed to apply seed file %s: %w", path, err)
	}

	logger.Info("Seed file applied",
		zap.String("path", path),
		zap.Int("steps_created", res.StepsCreated),
		zap.Int("steps_updated", res.StepsUpdated),
		zap.Int("workflows_created", res.WorkflowsCreated),
		zap.Int("workflows_updated", res.WorkflowsUpdated))
	return nil
}

// WorkerDeps holds dependencies for ProvideWorkers.
type WorkerDeps struct {
	Repos     *RepositoryBundle
	Publisher port.NotificationPublisher
	Config    *NotificationConfig
	Logger    *zap.Logger
}

// ProvideWorkers creates the background workers. Without a publisher
// no relay is registered.
func ProvideWorkers(deps *WorkerDeps) (*worker.Manager, error) {
	if deps == nil {
		return nil, fmt.Errorf("worker deps are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.Config == nil {
		return nil, fmt.Errorf("notification config is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	manager := worker.NewManager(deps.Logger)

	if deps.Publisher != nil {
		manager.Register(worker.NewNotificationRelay(worker.RelayConfig{
			PollInterval:   deps.Config.RelayPollInterval,
			BatchSize:      deps.Config.RelayBatchSize,
			MaxAttempts:    deps.Config.RelayMaxAttempts,
			PublishTimeout: deps.Config.PublishTimeout,
		}, deps.Repos.Notification, deps.Publisher, deps.Logger.Named("relay")))
	}

	return manager, nil
}

package app

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/zed-io/fineract-sub004/client"
	"github.com/zed-io/fineract-sub004/internal/db"
	"github.com/zed-io/fineract-sub004/internal/lock"
	"github.com/zed-io/fineract-sub004/internal/message_broaker"
	"github.com/zed-io/fineract-sub004/internal/store"
	"github.com/zed-io/fineract-sub004/internal/store/memory"
	"github.com/zed-io/fineract-sub004/internal/store/postgres"
	"github.com/zed-io/fineract-sub004/types/config"
	"go.uber.org/zap"
)

// Container holds all application dependencies. It is the single source of truth
// for dependency injection and ensures connections and services are created once.
type Container struct {
	Config *config.SchedulerConfig
	Logger *zap.Logger

	// Storage connections (created once, shared by all stores)
	DB    *sql.DB
	Redis redis.UniversalClient

	JobStore       store.JobStore
	ExecutionStore store.JobExecutionStore

	// Infrastructure
	LockManager   lock.DistributedLockManager
	AdvisoryLock  lock.AdvisoryLock
	MessageBroker message_broaker.MessageBroker

	Registry   *config.WorkerRegistry
	Executor   *client.Executor
	Scheduler  *client.Scheduler
	JobManager *client.JobManager
}

// NewContainer creates and wires all dependencies. Single entry point for DI.
// Call this once per application lifecycle.
// Pass optional WithDB, WithRedis, WithMessageBroker to inject connections for testing.
func NewContainer(cfg *config.SchedulerConfig, opts ...ContainerOption) (*Container, error) {
	opt := &containerConfig{}
	for _, o := range opts {
		o(opt)
	}

	logger := opt.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("node_id", cfg.NodeID))

	c := &Container{
		Config: cfg,
		Logger: logger,
		DB:     opt.db,
		Redis:  opt.redis,
	}

	if err := c.initStores(); err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	if err := c.initLockManager(); err != nil {
		return nil, fmt.Errorf("init lock manager: %w", err)
	}
	if err := c.initMessageBroker(opt.broker); err != nil {
		return nil, fmt.Errorf("init message broker: %w", err)
	}

	c.Registry = config.NewWorkerRegistry()
	for _, w := range cfg.Workers {
		if err := c.Registry.Register(w); err != nil {
			return nil, err
		}
	}

	executorOpts := []client.ExecutorOption{client.WithExecutorLogger(logger.Named("executor"))}
	if c.MessageBroker != nil {
		executorOpts = append(executorOpts, client.WithEventBroker(c.MessageBroker))
	}
	c.Executor = client.NewExecutor(c.JobStore, c.ExecutionStore, c.LockManager, c.Registry, cfg, executorOpts...)
	c.Scheduler = client.NewScheduler(c.JobStore, c.LockManager, c.Executor, cfg,
		client.WithSchedulerLogger(logger.Named("scheduler")))
	c.JobManager = client.NewJobManager(c.JobStore, c.ExecutionStore, c.Registry, c.Executor, c.Scheduler, cfg,
		client.WithManagerLogger(logger.Named("manager")),
		client.WithManagerBroker(c.MessageBroker),
	)

	return c, nil
}

func (c *Container) initStores() error {
	switch c.Config.StorageDriver {
	case config.Postgres:
		if c.DB == nil {
			database, err := openPostgresDB(c.Config.PostgresConfig.ConnectionUrl)
			if err != nil {
				return err
			}
			c.DB = database
		}
		c.JobStore = postgres.NewPostgresJobStore(c.DB)
		c.ExecutionStore = postgres.NewPostgresJobExecutionStore(c.DB)
		c.AdvisoryLock = lock.NewPostgresAdvisoryLock(c.DB)
	case config.Memory:
		memoryStore := memory.NewStore()
		c.JobStore = memoryStore
		c.ExecutionStore = memoryStore
	default:
		return fmt.Errorf("unsupported storage driver: %v", c.Config.StorageDriver)
	}
	return nil
}

func (c *Container) initLockManager() error {
	switch c.Config.LockDriver {
	case config.PostgresLock:
		if c.DB == nil {
			return fmt.Errorf("lock driver %s requires the postgres storage driver", c.Config.LockDriver)
		}
		c.LockManager = lock.NewPostgresDistributedLockManager(c.DB)
	case config.RedisLock:
		if c.Redis == nil {
			c.Redis = redis.NewClient(&redis.Options{
				Addr:     c.Config.RedisConfig.Address,
				Password: c.Config.RedisConfig.Password,
				DB:       c.Config.RedisConfig.DB,
			})
		}
		c.LockManager = lock.NewRedisDistributedLockManager(c.Redis, c.Config.RedisConfig.KeyPrefix)
	case config.MemoryLock:
		memoryStore, ok := c.JobStore.(*memory.Store)
		if !ok {
			return fmt.Errorf("lock driver %s requires the memory storage driver", c.Config.LockDriver)
		}
		c.LockManager = memoryStore
	default:
		return fmt.Errorf("unsupported lock driver: %v", c.Config.LockDriver)
	}
	return nil
}

func (c *Container) initMessageBroker(injected message_broaker.MessageBroker) error {
	if injected != nil {
		c.MessageBroker = injected
		return nil
	}
	if !c.Config.PublishEvents {
		return nil
	}
	switch c.Config.MQDriver {
	case config.RabbitMQ:
		broker, err := message_broaker.NewRabbitMQ(
			c.Config.RabbitMQConfig.URL,
			c.Config.RabbitMQConfig.Exchange,
			c.Config.RabbitMQConfig.Queue,
		)
		if err != nil {
			return err
		}
		c.MessageBroker = broker
		return nil
	}
	return fmt.Errorf("unsupported message queue driver: %v", c.Config.MQDriver)
}

// InitSchema creates the tables when the Postgres storage driver is in use.
func (c *Container) InitSchema(ctx context.Context) error {
	if c.Config.StorageDriver != config.Postgres {
		return nil
	}
	return db.Init(ctx, c.DB, c.AdvisoryLock, c.Logger.Named("db"))
}

func openPostgresDB(connectionURL string) (*sql.DB, error) {
	database, err := sql.Open("postgres", connectionURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	database.SetMaxOpenConns(25)
	database.SetMaxIdleConns(5)
	return database, nil
}

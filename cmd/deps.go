package cmd

import (
	"context"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/frahmantamala/recurpay/internal"
	"github.com/frahmantamala/recurpay/internal/authority"
	"github.com/frahmantamala/recurpay/internal/billing"
	billingPostgres "github.com/frahmantamala/recurpay/internal/billing/postgres"
	"github.com/frahmantamala/recurpay/internal/catalog"
	catalogPostgres "github.com/frahmantamala/recurpay/internal/catalog/postgres"
	"github.com/frahmantamala/recurpay/internal/chain/rpc"
	"github.com/frahmantamala/recurpay/internal/core/events"
	"github.com/frahmantamala/recurpay/internal/delegation"
	"github.com/frahmantamala/recurpay/internal/organization"
	orgPostgres "github.com/frahmantamala/recurpay/internal/organization/postgres"
	"github.com/frahmantamala/recurpay/internal/revenue"
	revenuePostgres "github.com/frahmantamala/recurpay/internal/revenue/postgres"
	"github.com/frahmantamala/recurpay/internal/session"
	sessionPostgres "github.com/frahmantamala/recurpay/internal/session/postgres"
	"github.com/frahmantamala/recurpay/internal/settlement"
	settlementPostgres "github.com/frahmantamala/recurpay/internal/settlement/postgres"
	"github.com/frahmantamala/recurpay/internal/subscription"
	subscriptionPostgres "github.com/frahmantamala/recurpay/internal/subscription/postgres"
	"github.com/frahmantamala/recurpay/internal/webhook"
	webhookPostgres "github.com/frahmantamala/recurpay/internal/webhook/postgres"
	"github.com/frahmantamala/recurpay/pkg/logger"
	"github.com/frahmantamala/recurpay/pkg/redislock"
)

// Dependencies is the fully wired application shared by the server, worker and one-shot commands.
type Dependencies struct {
	Config *internal.Config
	DB     *sqlx.DB
	Gorm   *gorm.DB
	Redis  redis.UniversalClient
	Locker redislock.Locker
	Bus    *events.EventBus
	AMQP   *events.AMQPPublisher
	Logger *slog.Logger

	Authority     *authority.Authority
	Gateway       *rpc.Client
	Organizations *organization.Service
	Catalog       *catalog.Service
	Delegation    *delegation.Manager
	Engine        *settlement.Engine
	Subscriptions *subscription.Service
	Sessions      *session.Service
	Webhooks      *webhook.Dispatcher
	Billing       *billing.Scheduler
	Revenue       *revenue.Service
}

func initializeDependencies(ctx context.Context) (*Dependencies, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.LoggerWrapper()

	db, err := initDB(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gdb, err := initGorm(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	signer, err := authority.Load(cfg.Authority.SecretKey, cfg.Authority.KeypairPath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to load authority key: %w", err)
	}

	deps := &Dependencies{
		Config:    cfg,
		DB:        db,
		Gorm:      gdb,
		Locker:    redislock.Noop{},
		Logger:    log,
		Authority: signer,
	}

	if cfg.Redis.Enabled() {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := internal.WithTimeout(ctx, 0)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			deps.Close()
			_ = client.Close()
			return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Redis.Addr, err)
		}
		deps.Redis = client
		deps.Locker = redislock.New(client, "")
	}

	deps.Bus = events.NewEventBus(logger.Component("events"))
	notifier := events.NewNotifier(deps.Bus)

	deps.Gateway = rpc.NewClient(rpc.Config{
		URL:          cfg.Chain.RPCURL,
		Timeout:      cfg.Chain.Timeout,
		PollInterval: cfg.Chain.PollInterval,
	}, logger.Component("chain"))

	deps.Organizations = organization.NewService(orgPostgres.NewOrganizationRepository(gdb), log)
	deps.Catalog = catalog.NewService(catalogPostgres.NewCatalogRepository(gdb), cfg.Billing.PlatformFee, log)
	deps.Delegation = delegation.NewManager(deps.Gateway, signer, logger.Component("delegation"))

	deps.Engine = settlement.NewEngine(
		settlementPostgres.NewSettlementRepository(gdb),
		deps.Gateway,
		deps.Delegation,
		signer,
		notifier,
		settlement.Config{
			ConfirmAttempts: cfg.Billing.ConfirmAttempts,
			ComputeUnits:    cfg.Billing.ComputeUnits,
		},
		logger.Component("settlement"),
	)

	deps.Subscriptions = subscription.NewService(
		subscriptionPostgres.NewSubscriptionRepository(gdb),
		subscription.Dependencies{
			Plans:         deps.Catalog,
			Organizations: deps.Organizations,
			Delegation:    deps.Delegation,
			Confirmer:     deps.Gateway,
			Executor:      deps.Engine,
			Notifier:      notifier,
		},
		subscription.Config{
			PlatformFee:       cfg.Billing.PlatformFee,
			PlatformFeeWallet: cfg.Billing.PlatformFeeWallet,
			ConfirmAttempts:   cfg.Billing.ConfirmAttempts,
			DefaultMaxCycles:  cfg.Billing.DefaultMaxCycles,
		},
		logger.Component("subscription"),
	)

	deps.Sessions = session.NewService(
		sessionPostgres.NewSessionRepository(gdb),
		deps.Catalog,
		deps.Organizations,
		deps.Gateway,
		signer,
		notifier,
		session.Config{
			PlatformFee:       cfg.Billing.PlatformFee,
			PlatformFeeWallet: cfg.Billing.PlatformFeeWallet,
			TTL:               cfg.Billing.SessionTTL,
			ConfirmAttempts:   cfg.Billing.ConfirmAttempts,
			ComputeUnits:      cfg.Billing.ComputeUnits,
		},
		logger.Component("session"),
	)

	deps.Webhooks = webhook.NewDispatcher(
		webhookPostgres.NewWebhookRepository(gdb),
		deps.Organizations,
		webhook.Config{
			Timeout:    cfg.Webhook.Timeout,
			BatchSize:  cfg.Webhook.BatchSize,
			InterDelay: cfg.Webhook.InterDelay,
			LockTTL:    cfg.Webhook.LockTTL,
		},
		logger.Component("webhook"),
	).WithLocker(deps.Locker)
	// webhook rows are queued before the broker mirror sees the event
	deps.Webhooks.RegisterHandlers(deps.Bus)

	if cfg.AMQP.URL != "" {
		pub, err := events.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, logger.Component("amqp"))
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("failed to connect amqp: %w", err)
		}
		deps.AMQP = pub
		deps.Bus.SubscribeMany(events.MerchantEventTypes, pub.Handler())
	}

	deps.Billing = billing.NewScheduler(
		billingPostgres.NewBillingRepository(gdb),
		deps.Catalog,
		deps.Organizations,
		deps.Engine,
		deps.Locker,
		billing.Config{
			PlatformFeeWallet: cfg.Billing.PlatformFeeWallet,
			BatchLimit:        cfg.Billing.BatchLimit,
			LeaseTTL:          cfg.Billing.LeaseTTL,
			ItemDelay:         cfg.Billing.ItemDelay,
			OrganizationDelay: cfg.Billing.OrganizationDelay,
			LockTTL:           cfg.Billing.LockTTL,
		},
		logger.Component("billing"),
	)

	deps.Revenue = revenue.NewService(revenuePostgres.NewRevenueRepository(db), log)

	return deps, nil
}

// Close releases every connection the dependencies own. Safe on a partially built value.
func (d *Dependencies) Close() {
	if d.AMQP != nil {
		d.AMQP.Close()
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error("redis close error", "error", err)
		}
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			d.Logger.Error("database close error", "error", err)
		}
	}
}

func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.GetDSN())
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

// initGorm shares the sqlx pool with gorm so both see the same connection limits.
func initGorm(db *sqlx.DB) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{Conn: db.DB}), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	})
}

// Package server wires the ledger gateway, the mirror store and the services
// together and runs the HTTP API and the reconcile loop until shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/poapgate/internal/dbx"
	"github.com/dmitrijs2005/poapgate/internal/eligibility"
	"github.com/dmitrijs2005/poapgate/internal/ledger"
	"github.com/dmitrijs2005/poapgate/internal/logging"
	"github.com/dmitrijs2005/poapgate/internal/metrics"
	"github.com/dmitrijs2005/poapgate/internal/server/auth"
	"github.com/dmitrijs2005/poapgate/internal/server/config"
	"github.com/dmitrijs2005/poapgate/internal/server/httpserver"
	"github.com/dmitrijs2005/poapgate/internal/server/milestones"
	"github.com/dmitrijs2005/poapgate/internal/server/mirror"
	"github.com/dmitrijs2005/poapgate/internal/server/notify"
	"github.com/dmitrijs2005/poapgate/internal/server/repositories/memory"
	"github.com/dmitrijs2005/poapgate/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/poapgate/internal/server/services"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// Components is the fully wired object graph. The server and the admin CLI
// both build it with Open.
type Components struct {
	Config   *config.Config
	Logger   logging.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	DB    *sql.DB
	Repos repomanager.RepositoryManager
	Redis *redis.Client

	Gateway    *ledger.Gateway
	Contracts  *ledger.Contracts
	Oracle     *eligibility.Oracle
	Mirror     *mirror.Client
	Engine     *milestones.Engine
	Reconciler *services.Reconciler

	Auth     *services.AuthService
	Intents  *services.IntentService
	Accounts *services.AccountService
	Platform *services.PlatformService
	Artwork  *services.ArtworkService
}

// sqlOpen is a seam for tests.
var sqlOpen = sql.Open

// Open connects the stores and builds every component. Migrations are applied
// when migrate is set. An empty DatabaseDSN selects the in-process store,
// which starts with the built-in milestone definitions.
func Open(ctx context.Context, cfg *config.Config, logger logging.Logger, migrate bool) (_ *Components, err error) {
	if logger == nil {
		logger = logging.Nop()
	}
	c := &Components{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	c.Registry = prometheus.NewRegistry()
	c.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	c.Metrics = metrics.New(c.Registry)

	var (
		conn dbx.DBTX
		tx   dbx.Transactor
	)
	if cfg.DatabaseDSN == "" {
		logger.Warn(ctx, "no database configured, using the in-process store")
		st := memory.NewStore()
		c.Repos, conn, tx = st, st.Conn(), st
	} else {
		db, err := sqlOpen("pgx", cfg.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}
		c.DB = db
		if err := db.PingContext(ctx); err != nil {
			return nil, fmt.Errorf("db ping: %w", err)
		}
		c.Repos, conn, tx = repomanager.NewPostgresRepositoryManager(), db, dbx.NewSQLTransactor(db)
		if migrate {
			if err := c.Repos.RunMigrations(ctx, db); err != nil {
				return nil, fmt.Errorf("migrations: %w", err)
			}
		}
	}

	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis url: %w", err)
		}
		c.Redis = redis.NewClient(opt)
	}

	var stream notify.Stream
	if strings.EqualFold(cfg.NotifyBackend, config.NotifyRedis) && c.Redis != nil {
		stream = notify.NewRedisStream(c.Redis, notify.DefaultStreamKey, logger)
	} else {
		stream = notify.NewHub(notify.DefaultBacklog)
	}

	poap, err := ledger.ParseContractID(cfg.POAPContract)
	if err != nil {
		return nil, fmt.Errorf("poap contract: %w", err)
	}
	voting, err := ledger.ParseContractID(cfg.VotingContract)
	if err != nil {
		return nil, fmt.Errorf("voting contract: %w", err)
	}

	c.Gateway = ledger.New(cfg.LedgerAPIURL,
		ledger.WithTimeout(cfg.LedgerTimeout),
		ledger.WithLogger(logger),
		ledger.WithMetrics(c.Metrics))
	c.Contracts = ledger.NewContracts(c.Gateway, poap, voting)
	c.Oracle = eligibility.NewOracle(c.Contracts, logger, c.Metrics)
	c.Mirror = mirror.New(conn, tx, c.Repos, stream, logger)
	c.Engine = milestones.NewEngine(c.Mirror, logger, c.Metrics)
	if c.DB == nil {
		defs, err := milestones.DefaultDefinitions()
		if err != nil {
			return nil, err
		}
		if err := milestones.Seed(ctx, c.Mirror, defs); err != nil {
			return nil, fmt.Errorf("seeding milestones: %w", err)
		}
	}
	c.Reconciler = services.NewReconciler(c.Mirror, c.Gateway, voting, logger, c.Metrics)

	var nonces auth.NonceStore = auth.NewMemoryNonceStore()
	if c.Redis != nil {
		nonces = auth.NewRedisNonceStore(c.Redis)
	}

	c.Auth = services.NewAuthService(nonces, cfg)
	c.Intents = services.NewIntentService(c.Mirror, c.Oracle, c.Contracts, c.Gateway, c.Engine, c.Reconciler, logger, c.Metrics)
	c.Accounts = services.NewAccountService(c.Mirror, c.Contracts, c.Engine, logger)
	c.Platform = services.NewPlatformService(c.Mirror, c.Contracts, logger)
	c.Artwork = services.NewArtworkService(cfg)

	return c, nil
}

// Close releases the database and Redis connections.
func (c *Components) Close() error {
	var errs []error
	if c.Redis != nil {
		errs = append(errs, c.Redis.Close())
	}
	if c.DB != nil {
		errs = append(errs, c.DB.Close())
	}
	return errors.Join(errs...)
}

type App struct {
	config     *config.Config
	logger     logging.Logger
	components *Components
	http       *httpserver.HTTPServer
}

func NewApp(ctx context.Context, cfg *config.Config, logger logging.Logger) (*App, error) {
	c, err := Open(ctx, cfg, logger, true)
	if err != nil {
		return nil, err
	}

	opts := httpserver.Options{AllowedOrigins: cfg.AllowedOrigins}
	if cfg.MetricsEnabled {
		opts.Metrics = promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{Registry: c.Registry})
	}

	hs := httpserver.New(cfg.HTTPAddr, c.Logger, httpserver.Services{
		Auth:     c.Auth,
		Intents:  c.Intents,
		Platform: c.Platform,
		Accounts: c.Accounts,
		Artwork:  c.Artwork,
		Feed:     c.Mirror,
	}, opts)

	return &App{config: cfg, logger: c.Logger, components: c, http: hs}, nil
}

// Run serves until ctx is cancelled or a component fails.
func (app *App) Run(ctx context.Context) error {
	app.logger.Info(ctx, "Starting app...")
	defer func() {
		if err := app.components.Close(); err != nil {
			app.logger.Error(ctx, "closing connections", "error", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.http.Run(gctx)
	})
	g.Go(func() error {
		app.components.Reconciler.Loop(gctx, app.config.ReconcileInterval)
		return nil
	})

	err := g.Wait()
	app.logger.Info(ctx, "App stopped")
	return err
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	goutils "github.com/jkaninda/go-utils"

	"github.com/jkaninda/shellguide/internal/config"
	"github.com/jkaninda/shellguide/internal/executor"
	"github.com/jkaninda/shellguide/internal/lesson"
	"github.com/jkaninda/shellguide/internal/observability"
	"github.com/jkaninda/shellguide/internal/security"
	"github.com/jkaninda/shellguide/internal/session"
	"github.com/jkaninda/shellguide/internal/storage"
	pgstore "github.com/jkaninda/shellguide/internal/storage/postgres"
	sqlitestore "github.com/jkaninda/shellguide/internal/storage/sqlite"
	"github.com/jkaninda/shellguide/internal/workspace"
)

// SharedComponents holds the subsystems every subcommand that runs learner
// commands needs. Built once by initShared, torn down by Cleanup.
type SharedComponents struct {
	Config    *config.Config
	Logger    *slog.Logger
	Workspace *workspace.Workspace
	Store     storage.Store // nil when storage.driver=none.

	Obs      *observability.Observability // nil = observability disabled.
	Security *security.Manager
	Catalog  *lesson.Catalog
	Runner   executor.Runner

	cleanups []func()
}

// Cleanup runs all deferred cleanup functions in reverse order.
func (sc *SharedComponents) Cleanup() {
	for i := len(sc.cleanups) - 1; i >= 0; i-- {
		sc.cleanups[i]()
	}
}

func (sc *SharedComponents) addCleanup(fn func()) {
	sc.cleanups = append(sc.cleanups, fn)
}

// loadConfig reads the config file, falling back to defaults when it does
// not exist. SHELLGUIDE_CONFIG overrides --config.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadOrDefault(goutils.Env("SHELLGUIDE_CONFIG", configPath))
	if err != nil {
		return nil, nil, err
	}
	return cfg, newLogger(cfg), nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Logging.SlogLevel()}
	if strings.EqualFold(cfg.Logging.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// initShared performs the initialization common to all session-running
// subcommands. Callers must call sc.Cleanup() when done.
func initShared(cfg *config.Config, logger *slog.Logger) (*SharedComponents, error) {
	sc := &SharedComponents{
		Config: cfg,
		Logger: logger,
	}

	// Workspace.
	ws, err := initWorkspace(cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing workspace: %w", err)
	}
	sc.Workspace = ws
	logger.Debug("workspace initialized", slog.String("root", ws.Root))

	// Ensure data directory exists.
	dataDir := cfg.ResolvedDataDir()
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("creating data directory %s: %w", dataDir, err)
	}

	// Observability.
	obs, err := observability.New(cfg.Observability, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing observability: %w", err)
	}
	sc.Obs = obs
	sc.addCleanup(func() {
		if obs != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			obs.Shutdown(shutdownCtx)
		}
	})
	if obs != nil {
		logger.Debug("observability initialized",
			slog.Bool("metrics", obs.Metrics != nil),
			slog.Bool("tracing", obs.Tracer != nil),
			slog.Bool("anomaly", obs.Anomaly != nil),
		)
	}

	// Storage (SQLite default, PostgreSQL optional, none for ephemeral runs).
	store, err := initStore(cfg, logger)
	if err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	if store != nil {
		sc.Store = store
		sc.addCleanup(func() {
			if err := store.Close(); err != nil {
				logger.Error("closing store", slog.String("error", err.Error()))
			}
		})
		if err := store.Migrate(context.Background()); err != nil {
			sc.Cleanup()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
		logger.Debug("storage initialized", slog.String("driver", store.Driver()))
	}

	// Curriculum.
	dirs := append(append([]string(nil), cfg.Lessons.Dirs...), ws.LessonsDir())
	catalog, err := lesson.LoadCatalog(dirs, cfg.Lessons.SkipBuiltin, logger)
	if err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("loading lessons: %w", err)
	}
	sc.Catalog = catalog
	logger.Debug("curriculum loaded", slog.Int("lessons", catalog.Len()))

	// Security.
	secMgr, err := initSecurity(cfg, store, logger)
	if err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("initializing security: %w", err)
	}
	sc.Security = secMgr
	sc.addCleanup(func() {
		if err := secMgr.Close(); err != nil {
			logger.Error("closing audit log", slog.String("error", err.Error()))
		}
	})

	// Executor.
	var runner executor.Runner = executor.New(executor.Config{
		Timeout:        cfg.Sandbox.Timeout(),
		MaxOutputBytes: cfg.Sandbox.OutputLimit(),
		Policy:         secMgr,
	}, logger)
	if obs != nil && (obs.Metrics != nil || obs.Tracer != nil) {
		runner = observability.NewInstrumentedRunner(runner, obs.Metrics, obs.TracerOrNil())
	}
	sc.Runner = runner

	return sc, nil
}

// sessionConfig returns the configuration of a new session of learner.
func (sc *SharedComponents) sessionConfig(learner string) session.Config {
	cfg := session.Config{
		Learner:    learner,
		SandboxDir: sc.Workspace.SandboxDir(),
		Catalog:    sc.Catalog,
		Runner:     sc.Runner,
		Auditor:    sc.Security,
	}
	if sc.Store != nil {
		cfg.Ledger = sc.Store.Ledger()
		cfg.Progress = sc.Store.Progress()
	}
	if sc.Obs != nil && (sc.Obs.Metrics != nil || sc.Obs.Anomaly != nil) {
		cfg.Observer = observability.NewSessionObserver(sc.Obs.Metrics, sc.Obs.Anomaly)
	}
	return cfg
}

// restoreTracker returns a tracker holding the stored progress of learner.
func (sc *SharedComponents) restoreTracker(ctx context.Context, learner string) (*lesson.Tracker, error) {
	tracker := lesson.NewTracker(sc.Catalog)
	if sc.Store == nil {
		return tracker, nil
	}
	statuses, err := sc.Store.Progress().LoadProgress(ctx, learner)
	if err != nil {
		return nil, fmt.Errorf("loading progress: %w", err)
	}
	tracker.Restore(statuses)
	return tracker, nil
}

func initWorkspace(cfg *config.Config) (*workspace.Workspace, error) {
	root := cfg.Workspace
	if root == "" {
		return workspace.Default()
	}
	return workspace.New(root)
}

// initStore creates the storage backend from config. It returns a nil
// store for the "none" driver.
func initStore(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	driver := cfg.StorageDriverName()

	switch driver {
	case storage.DriverPostgres:
		return initPostgresStore(cfg, logger)
	case storage.DriverSQLite:
		return initSQLiteStore(cfg, logger)
	case storage.DriverNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %q", driver)
	}
}

func initSQLiteStore(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	journalMode := "wal"
	if cfg.Storage != nil && cfg.Storage.SQLite.JournalMode != "" {
		journalMode = cfg.Storage.SQLite.JournalMode
	}
	return sqlitestore.Open(sqlitestore.Config{
		Path:        cfg.DatabasePath(),
		JournalMode: journalMode,
	}, logger)
}

func initPostgresStore(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	if cfg.Storage == nil || cfg.Storage.Postgres.DSN == "" {
		return nil, fmt.Errorf("postgres DSN is required (set storage.postgres.dsn or SHELLGUIDE_DB_DSN)")
	}
	pg := cfg.Storage.Postgres
	pgDB, err := pgstore.Open(pgstore.Config{
		DSN:             pg.DSN,
		MaxOpenConns:    pg.MaxOpenConns,
		MaxIdleConns:    pg.MaxIdleConns,
		ConnMaxLifetime: time.Duration(pg.ConnMaxLifetimeS) * time.Second,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	return pgstore.NewStore(pgDB), nil
}

// initSecurity builds the command policy and the audit sinks: the JSONL
// file unless auditing is disabled, plus the database when one is open.
func initSecurity(cfg *config.Config, store storage.Store, logger *slog.Logger) (*security.Manager, error) {
	policy := security.NewCommandPolicy(cfg.Sandbox.AllowedCommands, cfg.Sandbox.DeniedCommands, logger)

	var auditors []security.Auditor
	if path := cfg.AuditLogPath(); path != "" {
		fileAudit, err := security.NewAuditLogger(path, logger)
		if err != nil {
			return nil, err
		}
		auditors = append(auditors, fileAudit)
	}
	if store != nil {
		auditors = append(auditors, security.NewStoreAuditLogger(store.Audit(), logger))
	}

	logger.Debug("security initialized",
		slog.Int("allowed", len(cfg.Sandbox.AllowedCommands)),
		slog.Int("denied", len(cfg.Sandbox.DeniedCommands)),
		slog.Int("auditors", len(auditors)),
	)
	return security.NewManager(policy, logger, auditors...), nil
}

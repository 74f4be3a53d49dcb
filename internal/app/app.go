// Package app composes each stage with fx. A stage module takes the store
// lock, opens and migrates the snapshot, runs the stage once and shuts the
// application down with the stage's exit code.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/matheus3301/grouparchive/internal/config"
	"github.com/matheus3301/grouparchive/internal/lock"
	"github.com/matheus3301/grouparchive/internal/logging"
	"github.com/matheus3301/grouparchive/internal/metrics"
	"github.com/matheus3301/grouparchive/internal/paths"
	"github.com/matheus3301/grouparchive/internal/store"
	"github.com/valyala/fasthttp"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Settings holds what both stages resolve from flags before wiring.
type Settings struct {
	Command     string
	LogPath     string // optional; empty = paths.LogPath(Command)
	ConfigPath  string // optional; resolved with paths.ResolveConfig
	Database    string // overrides the config file when set
	MetricsFile string

	Dial fasthttp.DialFunc // optional override for testing
}

// Outcome records how the stage ended. Populate it to read the error
// after the app has stopped.
type Outcome struct {
	mu  sync.Mutex
	err error
}

func newOutcome() *Outcome {
	return &Outcome{}
}

func (o *Outcome) set(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.err = err
}

// Err returns the stage error, or nil if it succeeded or never ran.
func (o *Outcome) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

func common(s Settings) fx.Option {
	return fx.Options(
		fx.Supply(s),
		fx.WithLogger(EventLogger),
		fx.Provide(
			provideLogger,
			provideConfig,
			provideLock,
			provideStore,
			metrics.New,
			newOutcome,
		),
	)
}

func provideLogger(s Settings) (*zap.Logger, error) {
	logPath := s.LogPath
	if logPath == "" {
		logPath = paths.LogPath(s.Command)
	}
	return logging.New(logPath, s.Command)
}

// EventLogger sends fx lifecycle events to the log file only.
func EventLogger(logger *zap.Logger) fxevent.Logger {
	l := &fxevent.ZapLogger{Logger: logger.Named("fx")}
	l.UseLogLevel(zapcore.DebugLevel)
	return l
}

func provideConfig(s Settings, logger *zap.Logger) (*config.Config, error) {
	path := paths.ResolveConfig(s.ConfigPath)
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if s.Database != "" {
		cfg.Database = s.Database
	}
	logger.Debug("config loaded", zap.String("path", path), zap.String("database", cfg.Database))
	return cfg, nil
}

func provideLock(s Settings, cfg *config.Config, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring store lock", zap.String("path", lock.PathFor(cfg.Database)))
	l, err := lock.Acquire(cfg.Database, s.Command)
	if err != nil {
		return nil, err
	}
	logger.Info("store lock acquired")
	return l, nil
}

// The lock parameter orders construction: the store is never opened
// without it.
func provideStore(cfg *config.Config, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	db, err := store.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", cfg.Database))
	return db, nil
}

type stageDeps struct {
	fx.In

	Lifecycle  fx.Lifecycle
	Shutdowner fx.Shutdowner
	Settings   Settings
	Lock       *lock.Lock
	DB         *store.DB
	Metrics    *metrics.Metrics
	Outcome    *Outcome
	Logger     *zap.Logger
}

// registerStage runs the stage in the background once the app has
// started. The stage context is canceled on stop, so an interrupt
// unwinds a cooldown or an in-flight request.
func registerStage(d stageDeps, run func(ctx context.Context) error) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	d.Lifecycle.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				defer close(done)
				err := run(ctx)
				d.Outcome.set(err)
				code := 0
				if err != nil {
					d.Logger.Error("stage failed", zap.Error(err))
					code = 1
				}
				if err := d.Shutdowner.Shutdown(fx.ExitCode(code)); err != nil {
					d.Logger.Debug("shutdown already in progress", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
				d.Logger.Warn("stage did not stop before the deadline")
			}
			if d.Settings.MetricsFile != "" {
				if err := d.Metrics.WriteFile(d.Settings.MetricsFile); err != nil {
					d.Logger.Warn("error writing metrics", zap.Error(err))
				}
			}
			if err := d.DB.Close(); err != nil {
				d.Logger.Warn("error closing store", zap.Error(err))
			}
			if err := d.Lock.Release(); err != nil {
				d.Logger.Warn("error releasing lock", zap.Error(err))
			}
			d.Logger.Info("stopped")
			_ = d.Logger.Sync()
			return nil
		},
	})
}

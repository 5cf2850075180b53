//go:build linux

package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/xiaqy71/myWebServer/config"
	"github.com/xiaqy71/myWebServer/core"
	"github.com/xiaqy71/myWebServer/core/http"
	"github.com/xiaqy71/myWebServer/logger"
	"github.com/xiaqy71/myWebServer/store"
)

// App owns the logger, the credential store and the engine.
type App struct {
	cfg    *config.Config
	log    *logger.Logger
	pool   *store.Pool
	engine *core.Engine
}

// New builds every component from cfg. The database must be reachable.
func New(cfg *config.Config) (*App, error) {
	log, err := newLogger(cfg.Log, cfg.LogLevel())
	if err != nil {
		return nil, fmt.Errorf("init log: %w", err)
	}

	db, err := store.OpenMySQL(store.MySQLOptions{
		Host:     cfg.MySQL.Host,
		Port:     cfg.MySQL.Port,
		User:     cfg.MySQL.User,
		Password: cfg.MySQL.Password,
		Database: cfg.MySQL.Database,
	})
	if err != nil {
		log.Close()
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := store.NewPool(ctx, db, cfg.MySQL.ConnPoolNum)
	if err != nil {
		db.Close()
		log.Errorf("MySQL init error: %v", err)
		log.Close()
		return nil, err
	}
	log.Infof("SqlConnPool num: %d", cfg.MySQL.ConnPoolNum)

	return NewWithStore(cfg, log, pool, store.NewCredentialStore(pool))
}

// NewWithStore builds the engine around an already opened store. The App
// takes ownership of pool, which may be nil, and of log.
func NewWithStore(cfg *config.Config, log *logger.Logger, pool *store.Pool, verifier http.Verifier) (*App, error) {
	engine, err := core.NewEngine(core.Options{
		Port:           cfg.Server.Port,
		TrigMode:       cfg.Server.TrigMode,
		Timeout:        time.Duration(cfg.Server.TimeoutMS) * time.Millisecond,
		OptLinger:      cfg.Server.OptLinger,
		ThreadNum:      cfg.Server.ThreadNum,
		SrcDir:         cfg.Server.SrcDir,
		MaxConnections: cfg.Server.MaxConnections,
	}, log, verifier)
	if err != nil {
		if pool != nil {
			pool.Close()
		}
		log.Close()
		return nil, err
	}

	return &App{
		cfg:    cfg,
		log:    log,
		pool:   pool,
		engine: engine,
	}, nil
}

func newLogger(cfg config.LogConfig, level logger.Level) (*logger.Logger, error) {
	if !cfg.Open {
		return logger.Nop(), nil
	}
	return logger.New(logger.Options{
		Dir:       cfg.Dir,
		Level:     level,
		QueueSize: cfg.QueueSize,
	})
}

// Engine returns the underlying engine.
func (a *App) Engine() *core.Engine {
	return a.engine
}

// Logger returns the application log.
func (a *App) Logger() *logger.Logger {
	return a.log
}

// Run serves until SIGINT or SIGTERM, then shuts down gracefully and
// releases every resource.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext serves until ctx is done.
func (a *App) RunContext(ctx context.Context) error {
	defer a.Close()

	if err := a.engine.Listen(); err != nil {
		a.log.Errorf("Server init error: %v", err)
		return err
	}

	served := make(chan error, 1)
	go func() { served <- a.engine.Serve() }()

	var err error
	select {
	case <-ctx.Done():
		a.log.Infof("Shutting down: %v", context.Cause(ctx))
		a.engine.Shutdown()
		err = <-served
	case err = <-served:
		a.engine.Shutdown()
	}
	if stats, jerr := a.engine.Stats().JSON(); jerr == nil {
		a.log.Infof("Final stats: %s", stats)
	}
	if errors.Is(err, core.ErrServerClosed) {
		err = nil
	}
	return err
}

// Close releases the store, closing its database, and flushes the log. It does not stop a
// running engine.
func (a *App) Close() error {
	var errs []error
	if a.pool != nil {
		errs = append(errs, a.pool.Close())
		a.pool = nil
	}
	if a.log != nil {
		errs = append(errs, a.log.Close())
	}
	return errors.Join(errs...)
}

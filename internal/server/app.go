// Package server initializes and runs the bizledger HTTP server: it opens
// the database, applies migrations, wires services and handles graceful
// shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/bizledger/internal/logging"
	"github.com/dmitrijs2005/bizledger/internal/server/config"
	"github.com/dmitrijs2005/bizledger/internal/server/httpapi"
	"github.com/dmitrijs2005/bizledger/internal/server/reconcile"
	"github.com/dmitrijs2005/bizledger/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/bizledger/internal/server/services"
	_ "github.com/jackc/pgx/v5/stdlib"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	http   *httpapi.Server
}

// openDB is a seam for tests.
var openDB = func(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	db, err := openDB(c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	sink, err := newSink(ctx, c, logger)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("reconciliation sink error: %w", err)
	}

	creds := services.NewCredentialService(db, rm, c, nil, logger)
	us, err := services.NewUserService(db, rm, creds, c, logger)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("user service error: %w", err)
	}
	ords := services.NewOrderService(db, rm, sink, c, nil, logger)

	return &App{
		config: c,
		logger: logger,
		db:     db,
		http:   httpapi.NewServer(c, us, ords, logger),
	}, nil
}

// newSink journals to the log, and also to S3 when configured.
func newSink(ctx context.Context, c *config.Config, logger logging.Logger) (reconcile.Sink, error) {
	logSink := reconcile.NewLogSink(logger)
	if !c.ReconcileToS3 {
		return logSink, nil
	}

	s3Sink, err := reconcile.NewS3Sink(ctx, reconcile.S3Options{
		RootUser:     c.S3RootUser,
		RootPassword: c.S3RootPassword,
		Bucket:       c.S3Bucket,
		Region:       c.S3Region,
		BaseEndpoint: c.S3BaseEndpoint,
	})
	if err != nil {
		return nil, err
	}
	return reconcile.MultiSink{logSink, s3Sink}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.http.Run(ctx); err != nil {
		app.logger.Error(ctx, "http server error", "error", err)
		cancelFunc()
	}
}

// Run serves until a termination signal arrives or ctx is cancelled.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "order_mode", app.config.OrderMode)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}

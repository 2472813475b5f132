// Package server wires configuration, storage, services, the scheduler and
// the HTTP API into a runnable application and handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/richmiles/in-the-event-of-my-death/internal/alerting"
	"github.com/richmiles/in-the-event-of-my-death/internal/blobstore"
	"github.com/richmiles/in-the-event-of-my-death/internal/logging"
	"github.com/richmiles/in-the-event-of-my-death/internal/server/config"
	"github.com/richmiles/in-the-event-of-my-death/internal/server/httpapi"
	"github.com/richmiles/in-the-event-of-my-death/internal/server/jobs"
	"github.com/richmiles/in-the-event-of-my-death/internal/server/repositories/repomanager"
	"github.com/richmiles/in-the-event-of-my-death/internal/server/services"
)

type App struct {
	config    *config.Config
	logger    logging.Logger
	db        *sql.DB
	http      *httpapi.Server
	scheduler *jobs.Scheduler
}

// openDB is a seam for tests.
var openDB = func(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

func newBlobStore(ctx context.Context, c *config.Config) (blobstore.Store, error) {
	return blobstore.NewS3Store(ctx, blobstore.S3Options{
		Region:   c.S3Region,
		User:     c.S3RootUser,
		Password: c.S3RootPassword,
		Bucket:   c.S3Bucket,
		Endpoint: c.S3BaseEndpoint,
	})
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	db, err := openDB(c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	opts := []services.Option{services.WithLogger(logger)}
	if c.ObjectStorageEnabled {
		store, err := newBlobStore(ctx, c)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("blob store init error: %w", err)
		}
		opts = append(opts, services.WithBlobStore(store))
	}

	challenges := services.NewChallengeService(db, rm, c, opts...)
	tokens := services.NewCapabilityTokenService(db, rm, c, opts...)
	secrets := services.NewSecretService(db, rm, c, challenges, tokens, opts...)

	alerts := alerting.NewNotifier(c.AlertWebhookURL, c.AlertCooldown, logger)
	feedback := alerting.NewNotifier(c.FeedbackWebhookURL, 0, logger)

	return &App{
		config: c,
		logger: logger,
		db:     db,
		http: httpapi.NewServer(c, logger, httpapi.Services{
			Challenges: challenges,
			Tokens:     tokens,
			Secrets:    secrets,
		}, alerts, feedback),
		scheduler: jobs.NewScheduler(secrets, challenges, alerts, c.CleanupInterval, logger),
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves HTTP and runs the scheduler until a signal arrives or the
// HTTP server fails, then waits for both to stop and closes the database.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")
	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.http.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.scheduler.Run(ctx)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}

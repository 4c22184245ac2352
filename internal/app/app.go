package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"coursepay/internal/config"
	"coursepay/internal/database"
	"coursepay/internal/metrics"
	"coursepay/internal/provider"
	"coursepay/internal/repo"
	"coursepay/internal/server"
	"coursepay/internal/service"
	"coursepay/internal/worker"
)

// App wires the whole service together: storage, provider registry,
// flows, reconciliation worker and HTTP server.
type App struct {
	cfg config.Config
	log *slog.Logger

	db         *sql.DB
	httpServer *http.Server
	reconciler *worker.ReconciliationWorker

	workerCancel context.CancelFunc
}

func New(cfg config.Config, log *slog.Logger) (*App, error) {
	metrics.Register()

	db, err := database.NewPostgres(cfg.Postgres)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(context.Background(), db); err != nil {
		return nil, err
	}

	courseRepo := repo.NewCourseRepo(db)
	enrollmentRepo := repo.NewEnrollmentRepo(db)
	purchaseRepo := repo.NewPurchaseRepo(db)
	settingsRepo := repo.NewSettingsRepo(db)

	registry := provider.DefaultRegistry(settingsRepo)

	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, log)
	fulfillmentSvc := service.NewFulfillmentService(purchaseRepo, enrollmentRepo, enrollmentSvc, log)
	checkoutSvc := service.NewCheckoutService(
		courseRepo, enrollmentRepo, purchaseRepo, registry, enrollmentSvc,
		cfg.App.ProviderTimeout, log,
	)
	webhookSvc := service.NewWebhookService(registry, purchaseRepo, fulfillmentSvc, log)

	reconciler := worker.NewReconciliationWorker(purchaseRepo, registry, fulfillmentSvc, worker.Config{
		Interval:      cfg.App.Reconcile.Interval,
		StuckAfter:    cfg.App.Reconcile.StuckAfter,
		BatchLimit:    cfg.App.Reconcile.BatchLimit,
		RetryAttempts: cfg.App.Reconcile.RetryAttempts,
		RetryDelay:    cfg.App.Reconcile.RetryDelay,
		RetryMaxDelay: cfg.App.Reconcile.RetryMaxDelay,
	}, log)

	srv := server.New(checkoutSvc, webhookSvc, db, log)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler: srv.Handler(cfg.HTTP, cfg.Env),
	}

	return &App{
		cfg:        cfg,
		log:        log,
		db:         db,
		httpServer: httpServer,
		reconciler: reconciler,
	}, nil
}

// Run starts the reconciliation worker and serves HTTP until Shutdown.
func (a *App) Run() error {
	workerCtx, cancel := context.WithCancel(context.Background())
	a.workerCancel = cancel
	go a.reconciler.Run(workerCtx)

	a.log.Info("http server listening", slog.String("addr", a.httpServer.Addr))
	if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	if a.workerCancel != nil {
		a.workerCancel()
	}
	if err := a.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	return a.db.Close()
}

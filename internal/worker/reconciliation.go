package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/avast/retry-go"

	"coursepay/internal/domain"
	"coursepay/internal/provider"
	"coursepay/internal/repo"
	"coursepay/internal/service"
)

// Config bounds one reconciliation sweep.
type Config struct {
	Interval   time.Duration
	StuckAfter time.Duration
	BatchLimit int

	RetryAttempts uint
	RetryDelay    time.Duration
	RetryMaxDelay time.Duration
}

// ReconciliationWorker resolves purchases stuck in INITIATED: the webhook
// never arrived, the buyer abandoned the hosted checkout, or the initiate
// call failed after the row was created. It asks the provider for the
// truth and applies the same conditional transitions as the webhook path.
type ReconciliationWorker struct {
	purchases   repo.PurchaseRepo
	registry    *provider.Registry
	fulfillment *service.FulfillmentService
	cfg         Config
	log         *slog.Logger
}

func NewReconciliationWorker(
	purchases repo.PurchaseRepo,
	registry *provider.Registry,
	fulfillment *service.FulfillmentService,
	cfg Config,
	log *slog.Logger,
) *ReconciliationWorker {
	return &ReconciliationWorker{
		purchases:   purchases,
		registry:    registry,
		fulfillment: fulfillment,
		cfg:         cfg,
		log:         log,
	}
}

func (w *ReconciliationWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	w.log.Info("reconciliation worker started",
		slog.Duration("interval", w.cfg.Interval),
		slog.Duration("stuck_after", w.cfg.StuckAfter),
	)

	for {
		select {
		case <-ctx.Done():
			w.log.Info("reconciliation worker stopped")
			return
		case <-ticker.C:
			if err := w.Sweep(ctx); err != nil {
				w.log.Error("reconciliation sweep failed", slog.Any("error", err))
			}
		}
	}
}

// Sweep runs one reconciliation pass.
func (w *ReconciliationWorker) Sweep(ctx context.Context) error {
	stuck, err := w.purchases.FindStuck(ctx, w.cfg.StuckAfter, w.cfg.BatchLimit)
	if err != nil {
		return err
	}
	if len(stuck) == 0 {
		return nil
	}

	w.log.Info("reconciling stuck purchases", slog.Int("count", len(stuck)))

	for i := range stuck {
		p := &stuck[i]
		if err := w.reconcile(ctx, p); err != nil {
			// Leave it for the next sweep.
			w.log.Warn("failed to reconcile purchase",
				slog.String("purchase_id", p.ID.String()),
				slog.Any("error", err),
			)
		}
	}
	return nil
}

func (w *ReconciliationWorker) reconcile(ctx context.Context, p *domain.Purchase) error {
	// No provider ref means initiation died before the provider answered.
	// Nothing can ever confirm this row, so close it out.
	if p.ProviderRef == "" {
		w.log.Info("failing abandoned purchase without provider ref",
			slog.String("purchase_id", p.ID.String()),
		)
		return w.fulfillment.ConfirmFailure(ctx, p)
	}

	prov, err := w.registry.Resolve(ctx, p.TenantID)
	if err != nil {
		return err
	}
	checker, ok := prov.(provider.StatusChecker)
	if !ok {
		w.log.Warn("provider cannot report checkout status",
			slog.String("provider", prov.Name()),
		)
		return nil
	}

	var paid bool
	err = retry.Do(
		func() error {
			var cerr error
			paid, cerr = checker.CheckStatus(ctx, p.ProviderRef)
			return cerr
		},
		retry.Attempts(w.cfg.RetryAttempts),
		retry.Delay(w.cfg.RetryDelay),
		retry.MaxDelay(w.cfg.RetryMaxDelay),
		retry.Context(ctx),
	)
	if err != nil {
		return err
	}

	if paid {
		// The missed-webhook case: money moved, enrollment did not.
		w.log.Info("recovering paid purchase missed by webhook",
			slog.String("purchase_id", p.ID.String()),
		)
		_, err = w.fulfillment.ConfirmSuccess(ctx, p, "reconciliation")
		return err
	}

	return w.fulfillment.ConfirmFailure(ctx, p)
}

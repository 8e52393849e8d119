package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pinksky/orderflow/internal/clock"
	"github.com/pinksky/orderflow/internal/observability/metrics"
	paymentdomain "github.com/pinksky/orderflow/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	JobExpireCheckouts       = "expire_checkouts"
	JobReconcileStalePayment = "reconcile_stale_payments"
)

var ErrInvalidConfig = errors.New("scheduler: missing dependency")

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Payments    paymentdomain.Service
	PaymentRepo paymentdomain.Repository
	Config      Config                `optional:"true"`
	Metrics     *metrics.OrderMetrics `optional:"true"`
}

// Scheduler sweeps payments that no customer action will ever finish:
// direct checkouts abandoned before reaching the gateway, and opened gateway
// checkouts whose callback never arrived.
type Scheduler struct {
	db          *gorm.DB
	log         *zap.Logger
	cfg         Config
	genID       *snowflake.Node
	clock       clock.Clock
	payments    paymentdomain.Service
	paymentRepo paymentdomain.Repository
	metrics     *metrics.OrderMetrics
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil || p.Payments == nil || p.PaymentRepo == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:          p.DB,
		log:         p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:         p.Config.withDefaults(),
		genID:       p.GenID,
		clock:       p.Clock,
		payments:    p.Payments,
		paymentRepo: p.PaymentRepo,
		metrics:     p.Metrics,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	fn func(ctx context.Context) error,
) error {
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
	}

	err := fn(ctx)
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// A deadline is a soft stop; the next tick picks up where this one left off.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.logger(ctx).Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", s.cfg.JobTimeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{JobExpireCheckouts, s.ExpireCheckoutsJob},
		{JobReconcileStalePayment, s.ReconcileStalePaymentsJob},
	}

	for _, job := range jobs {
		if s.isJobEnabled(job.Name) {
			err = errors.Join(err, s.runJob(parent, job.Name, job.Run))
		}
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// No list means every job runs.
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// ExpireCheckoutsJob cancels direct checkouts that were never sent to the
// gateway within the checkout TTL.
func (s *Scheduler) ExpireCheckoutsJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobExpireCheckouts, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	opened := false
	filter := paymentdomain.StaleFilter{
		Before:    s.clock.Now().Add(-s.cfg.CheckoutTTL),
		OrderType: paymentdomain.OrderTypeCart,
		Opened:    &opened,
		Limit:     s.cfg.BatchSize,
	}

	var jobErr error
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		batch, err := s.paymentRepo.ListStale(ctx, s.db, filter)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			break
		}

		for _, payment := range batch {
			filter.AfterID = payment.ID
			err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				return s.payments.MarkCancelled(ctx, tx, payment.ID)
			})
			if err != nil {
				if errors.Is(err, paymentdomain.ErrPaymentNotPending) {
					continue
				}
				jobErr = errors.Join(jobErr, err)
				s.metrics.RecordHousekeeping(JobExpireCheckouts, metrics.OutcomeError)
				s.logPaymentError(ctx, run, "scheduler.checkout.expire.failed", payment.ID.String(), err)
				continue
			}
			run.AddProcessed(1)
			s.metrics.RecordHousekeeping(JobExpireCheckouts, metrics.OutcomeCancelled)
			s.logger(ctx).Info("checkout expired",
				zap.String("payment_id", payment.ID.String()),
				zap.Time("created_at", payment.CreatedAt),
			)
		}
	}

	return jobErr
}

// ReconcileStalePaymentsJob asks the gateway about opened payments whose
// callback never came back. Paid ones are settled as if the callback had
// arrived; the rest are cancelled.
func (s *Scheduler) ReconcileStalePaymentsJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobReconcileStalePayment, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	opened := true
	filter := paymentdomain.StaleFilter{
		Before: s.clock.Now().Add(-s.cfg.StalePaymentAfter),
		Opened: &opened,
		Limit:  s.cfg.BatchSize,
	}

	var jobErr error
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		batch, err := s.paymentRepo.ListStale(ctx, s.db, filter)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			break
		}

		for _, payment := range batch {
			filter.AfterID = payment.ID
			if payment.FormSessionID == nil {
				continue
			}
			result, err := s.payments.Callback(ctx, payment.ID.String(), paymentdomain.CallbackCancelled)
			switch {
			case err == nil:
			case errors.Is(err, paymentdomain.ErrCallbackInProgress),
				errors.Is(err, paymentdomain.ErrPaymentNotPending):
				continue
			case errors.Is(err, paymentdomain.ErrUnderpaid):
				run.AddProcessed(1)
				s.metrics.RecordHousekeeping(JobReconcileStalePayment, metrics.OutcomeUnderpaid)
				s.logger(ctx).Warn("stale payment underpaid", zap.String("payment_id", payment.ID.String()))
				continue
			default:
				jobErr = errors.Join(jobErr, err)
				s.metrics.RecordHousekeeping(JobReconcileStalePayment, metrics.OutcomeError)
				s.logPaymentError(ctx, run, "scheduler.payment.reconcile.failed", payment.ID.String(), err)
				continue
			}

			run.AddProcessed(1)
			outcome := metrics.OutcomeCancelled
			switch {
			case result.Duplicate:
				outcome = metrics.OutcomeDuplicate
			case result.Status == paymentdomain.StatusSuccessful:
				outcome = metrics.OutcomeSucceeded
			}
			s.metrics.RecordHousekeeping(JobReconcileStalePayment, outcome)
			s.logger(ctx).Info("stale payment reconciled",
				zap.String("payment_id", payment.ID.String()),
				zap.String("status", string(result.Status)),
			)
		}
	}

	return jobErr
}

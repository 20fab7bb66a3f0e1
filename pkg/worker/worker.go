// Package worker runs the reminder loop: a periodic scan that queues due
// reminders and a consumer that drains the queue into a mailer.
package worker

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/civisight/portal/pkg/cache"
	"github.com/civisight/portal/pkg/observability"
	"github.com/civisight/portal/pkg/services"
)

const sentKeyPrefix = "reminder:sent:"

// Reminders is what the worker needs from services.ReminderService.
type Reminders interface {
	SendDue(ctx context.Context, now time.Time) (int, error)
	Drain(ctx context.Context, mailer services.Mailer) (int, error)
}

// Config tunes the loops.
type Config struct {
	ScanInterval   time.Duration
	IdempotencyTTL time.Duration
	// ErrorBackoff is the pause after a failed drain.
	ErrorBackoff time.Duration
}

// Worker runs the scan and drain loops.
type Worker struct {
	reminders Reminders
	mailer    services.Mailer
	cfg       Config
	logger    observability.Logger
	metrics   observability.MetricsClient
	now       func() time.Time
}

// New creates a worker. With a non-nil cache the mailer is wrapped so a
// redelivered reminder is not sent twice.
func New(reminders Reminders, mailer services.Mailer, c cache.Cache, cfg Config, logger observability.Logger, metrics observability.MetricsClient) *Worker {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = time.Hour
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 24 * time.Hour
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = 5 * time.Second
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoOpMetricsClient()
	}
	if c != nil {
		mailer = &IdempotentMailer{next: mailer, cache: c, ttl: cfg.IdempotencyTTL, logger: logger}
	}
	return &Worker{reminders: reminders, mailer: mailer, cfg: cfg, logger: logger, metrics: metrics, now: time.Now}
}

// Run blocks until ctx is done or a loop fails.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.scanLoop(ctx) })
	g.Go(func() error { return w.drainLoop(ctx) })
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ScanOnce queues every due reminder.
func (w *Worker) ScanOnce(ctx context.Context) {
	queued, err := w.reminders.SendDue(ctx, w.now().UTC())
	if err != nil {
		w.logger.Error("Reminder scan failed", map[string]interface{}{"error": err.Error()})
		return
	}
	if queued > 0 {
		w.logger.Info("Queued reminders", map[string]interface{}{"count": queued})
	}
}

func (w *Worker) scanLoop(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.ScanInterval)
	defer ticker.Stop()

	w.ScanOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.ScanOnce(ctx)
		}
	}
}

func (w *Worker) drainLoop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		delivered, err := w.reminders.Drain(ctx, w.mailer)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Warn("Reminder drain failed", map[string]interface{}{"error": err.Error()})
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.cfg.ErrorBackoff):
			}
			continue
		}
		if delivered > 0 {
			w.metrics.RecordGauge("reminders_delivered_last_batch", float64(delivered), nil)
		}
	}
}

// IdempotentMailer records delivered reminder ids in the cache and skips
// ones already sent.
type IdempotentMailer struct {
	next   services.Mailer
	cache  cache.Cache
	ttl    time.Duration
	logger observability.Logger
}

func (m *IdempotentMailer) Send(ctx context.Context, email services.ReminderEmail) (string, error) {
	key := sentKeyPrefix + email.ReminderID
	var messageID string
	err := m.cache.Get(ctx, key, &messageID)
	if err == nil {
		m.logger.Debug("Reminder already sent", map[string]interface{}{"reminder_id": email.ReminderID})
		return messageID, nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		m.logger.Warn("Idempotency lookup failed", map[string]interface{}{"reminder_id": email.ReminderID, "error": err.Error()})
	}

	messageID, err = m.next.Send(ctx, email)
	if err != nil {
		return "", err
	}
	if err := m.cache.Set(ctx, key, messageID, m.ttl); err != nil {
		m.logger.Warn("Failed to record sent reminder", map[string]interface{}{"reminder_id": email.ReminderID, "error": err.Error()})
	}
	return messageID, nil
}

package notification

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/pinksky/orderflow/internal/clock"
	"github.com/pinksky/orderflow/internal/notification/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultTimeout = 30 * time.Second
	adminFanout    = 4
)

// Dispatcher delivers events to every sink on a background goroutine. The
// caller's context only contributes values; cancellation is dropped.
type Dispatcher struct {
	log     *zap.Logger
	clock   clock.Clock
	admins  []domain.Recipient
	sinks   []domain.Sink
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewDispatcher(log *zap.Logger, c clock.Clock, adminEmails []string, timeout time.Duration, sinks ...domain.Sink) *Dispatcher {
	if c == nil {
		c = clock.SystemClock{}
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	admins := make([]domain.Recipient, 0, len(adminEmails))
	for _, e := range adminEmails {
		if e = strings.TrimSpace(e); e != "" {
			admins = append(admins, domain.Recipient{Email: e})
		}
	}
	return &Dispatcher{
		log:     log.Named("notification.dispatcher"),
		clock:   c,
		admins:  admins,
		sinks:   sinks,
		timeout: timeout,
	}
}

func (d *Dispatcher) Notify(ctx context.Context, to domain.Recipient, event domain.EventType, payload domain.Payload) {
	if strings.TrimSpace(to.Email) == "" {
		d.log.Warn("notification skipped, recipient has no email", zap.String("event", string(event)))
		return
	}
	evt := d.event(to, event, payload)
	d.spawn(ctx, func(ctx context.Context) {
		_ = d.deliver(ctx, evt)
	})
}

func (d *Dispatcher) NotifyAdmins(ctx context.Context, event domain.EventType, payload domain.Payload) {
	if len(d.admins) == 0 {
		d.log.Debug("no admin recipients configured", zap.String("event", string(event)))
		return
	}
	d.spawn(ctx, func(ctx context.Context) {
		var g errgroup.Group
		g.SetLimit(adminFanout)
		for _, admin := range d.admins {
			evt := d.event(admin, event, payload)
			g.Go(func() error {
				return d.deliver(ctx, evt)
			})
		}
		_ = g.Wait()
	})
}

// Wait blocks until every in-flight delivery has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) event(to domain.Recipient, event domain.EventType, payload domain.Payload) domain.Event {
	copied := make(domain.Payload, len(payload))
	for k, v := range payload {
		copied[k] = v
	}
	return domain.Event{
		Type:       event,
		Recipient:  to,
		Payload:    copied,
		OccurredAt: d.clock.Now().UTC(),
	}
}

func (d *Dispatcher) spawn(ctx context.Context, fn func(context.Context)) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.log.Error("notification delivery panicked", zap.Any("panic", r))
			}
		}()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()
		fn(ctx)
	}()
}

func (d *Dispatcher) deliver(ctx context.Context, evt domain.Event) error {
	var errs []error
	for _, sink := range d.sinks {
		if err := sink.Deliver(ctx, evt); err != nil {
			d.log.Error("notification delivery failed",
				zap.String("sink", sink.Name()),
				zap.String("event", string(evt.Type)),
				zap.String("recipient", evt.Recipient.Email),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ domain.Notifier = (*Dispatcher)(nil)

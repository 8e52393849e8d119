package notification

import (
	"context"

	"github.com/pinksky/orderflow/internal/clock"
	"github.com/pinksky/orderflow/internal/config"
	"github.com/pinksky/orderflow/internal/notification/domain"
	"github.com/pinksky/orderflow/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("notification",
	fx.Provide(NewFromConfig),
	fx.Provide(func(d *Dispatcher) domain.Notifier { return d }),
)

func NewFromConfig(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, c clock.Clock, provider email.Provider) *Dispatcher {
	sinks := []domain.Sink{NewEmailSink(provider)}

	var kafkaSink *KafkaSink
	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.Topic != "" {
		kafkaSink = NewKafkaSink(NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic))
		sinks = append(sinks, kafkaSink)
		log.Info("kafka notification sink enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	d := NewDispatcher(log, c, cfg.AdminEmails, 0, sinks...)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			done := make(chan struct{})
			go func() {
				d.Wait()
				close(done)
			}()
			select {
			case <-done:
			case <-ctx.Done():
				log.Warn("shutdown while notifications were still in flight")
			}
			if kafkaSink != nil {
				return kafkaSink.Close()
			}
			return nil
		},
	})
	return d
}

package event

import (
	"context"
	"errors"
	"time"

	"github.com/krobus00/sj-trading/internal/constant"
	"github.com/krobus00/sj-trading/internal/entity"
	"github.com/krobus00/sj-trading/internal/util"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// Publisher sends trading events to JetStream. A nil JetStream context turns every publish into a no-op.
type Publisher struct {
	js nats.JetStreamContext
}

func NewPublisher(js nats.JetStreamContext) *Publisher {
	return &Publisher{js: js}
}

func (p *Publisher) Enabled() bool {
	return p != nil && p.js != nil
}

func (p *Publisher) JetstreamEventInit(ctx context.Context) error {
	if !p.Enabled() {
		return nil
	}

	streamConfig := &nats.StreamConfig{
		Name:      constant.TradingStreamName,
		Subjects:  []string{constant.TradingStreamSubjectAll},
		Retention: nats.LimitsPolicy,
		Storage:   nats.FileStorage,
		MaxAge:    24 * time.Hour,
	}

	stream, err := p.js.StreamInfo(constant.TradingStreamName, nats.Context(ctx))
	if err != nil && !errors.Is(err, nats.ErrStreamNotFound) {
		logrus.Error(err)
		return err
	}

	if stream == nil {
		logrus.Infof("creating stream: %s", constant.TradingStreamName)
		_, err = p.js.AddStream(streamConfig, nats.Context(ctx))
		return err
	}

	logrus.Infof("updating stream: %s", constant.TradingStreamName)
	_, err = p.js.UpdateStream(streamConfig, nats.Context(ctx))
	if err != nil {
		logrus.Error(err)
		return err
	}

	return nil
}

func (p *Publisher) PublishTick(ctx context.Context, tick entity.Tick) error {
	return p.publish(ctx, constant.TradingStreamSubjectTick+"."+util.SubjectToken(tick.Code), tick)
}

func (p *Publisher) PublishOrderEvent(ctx context.Context, evt entity.OrderEvent) error {
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now()
	}
	return p.publish(ctx, constant.TradingStreamSubjectOrder+"."+string(evt.Type), evt)
}

func (p *Publisher) PublishOCOEvent(ctx context.Context, evt entity.OCOEvent) error {
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now()
	}
	return p.publish(ctx, constant.TradingStreamSubjectOCO+"."+string(evt.Type), evt)
}

func (p *Publisher) publish(ctx context.Context, subject string, data any) error {
	if !p.Enabled() {
		return nil
	}

	if err := util.PublishEvent(ctx, p.js, subject, data); err != nil {
		logrus.WithField("subject", subject).Errorf("failed to publish event: %v", err)
		return err
	}

	return nil
}

package outbox

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type deliverer struct {
	sink Sink
	cfg  Config
}

func (d deliverer) deliver(ctx context.Context, record Record, path string) (err error) {
	ctx, span := d.cfg.Tracer.Start(ctx, "outbox.deliver",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("outbox.id", record.ID.String()),
			attribute.String("outbox.channel", record.Channel),
			attribute.String("outbox.path", path),
			attribute.Int("outbox.retry_count", record.RetryCount),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	channel, err := d.sink.Resolve(ctx, record.Channel)
	if err != nil {
		if !errors.Is(err, ErrChannelResolution) {
			err = fmt.Errorf("%w: %s: %w", ErrChannelResolution, record.Channel, err)
		}

		return err
	}

	sendCtx := ctx
	cancel := func() {}
	if d.cfg.SendTimeout > 0 {
		sendCtx, cancel = context.WithTimeout(ctx, d.cfg.SendTimeout)
	}
	defer cancel()

	if err := channel.Send(sendCtx, NewEnvelope(record)); err != nil {
		if !errors.Is(err, ErrSend) {
			err = fmt.Errorf("%w: %s: %w", ErrSend, record.Channel, err)
		}

		return err
	}

	return nil
}

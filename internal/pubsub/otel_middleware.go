package pubsub

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// messageSpan starts a span named "pubsub.<operation>.<topic>" carrying the
// messaging attributes of msg.
func messageSpan(tracer trace.Tracer, operation, topic string, msg *message.Message) (context.Context, trace.Span) {
	ctx := msg.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return tracer.Start(ctx, "pubsub."+operation+"."+topic,
		trace.WithSpanKind(spanKind(operation)),
		trace.WithAttributes(
			attribute.String("messaging.system", "watermill"),
			attribute.String("messaging.operation", operation),
			attribute.String("messaging.destination", topic),
			attribute.String("messaging.message_id", msg.UUID),
			attribute.String("connection.id", msg.Metadata.Get(metaKeyConnectionID)),
			attribute.Int("messaging.message_payload_size_bytes", len(msg.Payload)),
		),
	)
}

func spanKind(operation string) trace.SpanKind {
	if operation == "publish" {
		return trace.SpanKindProducer
	}
	return trace.SpanKindConsumer
}

func recordFailure(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// TracingMiddleware returns a watermill handler middleware that runs every
// handled message inside a "process" span.
func TracingMiddleware(tracer trace.Tracer) func(message.HandlerFunc) message.HandlerFunc {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			spanCtx, span := messageSpan(tracer, "process", msg.Metadata.Get(metaKeyTopic), msg)
			defer span.End()

			msg.SetContext(spanCtx)

			produced, err := h(msg)
			if err != nil {
				recordFailure(span, err)
				return nil, err
			}
			span.SetAttributes(attribute.Int("messaging.messages_produced", len(produced)))
			return produced, nil
		}
	}
}

// PublisherTracingMiddleware wraps a publisher so every published message
// gets a "publish" span.
type PublisherTracingMiddleware struct {
	publisher message.Publisher
	tracer    trace.Tracer
}

// NewPublisherTracingMiddleware creates a new publisher with tracing middleware
func NewPublisherTracingMiddleware(publisher message.Publisher, tracer trace.Tracer) *PublisherTracingMiddleware {
	return &PublisherTracingMiddleware{
		publisher: publisher,
		tracer:    tracer,
	}
}

// Publish wraps the publish operation with tracing
func (p *PublisherTracingMiddleware) Publish(topic string, messages ...*message.Message) error {
	spans := make([]trace.Span, 0, len(messages))
	for _, msg := range messages {
		spanCtx, span := messageSpan(p.tracer, "publish", topic, msg)
		msg.SetContext(spanCtx)
		spans = append(spans, span)
	}

	err := p.publisher.Publish(topic, messages...)
	for _, span := range spans {
		if err != nil {
			recordFailure(span, err)
		}
		span.End()
	}
	return err
}

// Close closes the underlying publisher
func (p *PublisherTracingMiddleware) Close() error {
	return p.publisher.Close()
}

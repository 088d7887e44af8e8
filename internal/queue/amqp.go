package queue

import (
	"context"
	"log"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/streadway/amqp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"
	"go.opentelemetry.io/otel/trace"
)

// AMQPQueue maps topics onto durable RabbitMQ queues on the default
// exchange.
type AMQPQueue struct {
	conn   *amqp.Connection
	mu     sync.Mutex // guards ch; amqp.Channel is not safe for concurrent publishes
	ch     *amqp.Channel
	logger *log.Logger
}

func NewAMQPQueue(url string, logger *log.Logger) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "connect to RabbitMQ")
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "open channel")
	}

	notifyClose := conn.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		for err := range notifyClose {
			logger.Printf("RabbitMQ connection closed: %v", err)
		}
	}()

	return &AMQPQueue{conn: conn, ch: ch, logger: logger}, nil
}

func (q *AMQPQueue) declare(ch *amqp.Channel, topic string) error {
	_, err := ch.QueueDeclare(
		topic, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	return errors.Wrapf(err, "declare queue %s", topic)
}

func (q *AMQPQueue) Publish(ctx context.Context, topic string, body []byte) error {
	ctx, span := otel.Tracer("crm-sms-fallback").Start(ctx, "Publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			semconv.MessagingSystemKey.String("rabbitmq"),
			semconv.MessagingDestinationKey.String(topic),
		),
	)
	defer span.End()

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	headers := amqp.Table{}
	for k, v := range carrier {
		headers[k] = v
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.declare(q.ch, topic); err != nil {
		span.RecordError(err)
		return err
	}
	err := q.ch.Publish("", topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Headers:      headers,
		Body:         body,
	})
	if err != nil {
		span.RecordError(err)
		return errors.Wrapf(err, "publish to %s", topic)
	}
	return nil
}

// Subscribe consumes topic on its own channel with manual acks. A failed
// message is requeued once; a failed redelivery is dropped.
func (q *AMQPQueue) Subscribe(topic string, handler Handler) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return errors.Wrap(err, "open consumer channel")
	}
	if err := q.declare(ch, topic); err != nil {
		ch.Close()
		return err
	}
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		return errors.Wrap(err, "set prefetch")
	}
	deliveries, err := ch.Consume(
		topic,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		return errors.Wrapf(err, "consume %s", topic)
	}

	go func() {
		for d := range deliveries {
			q.handle(topic, d, handler)
		}
		q.logger.Printf("%s: delivery channel closed", topic)
	}()
	return nil
}

func (q *AMQPQueue) handle(topic string, d amqp.Delivery, handler Handler) {
	carrier := propagation.MapCarrier{}
	for k, v := range d.Headers {
		if s, ok := v.(string); ok {
			carrier[k] = s
		}
	}
	ctx := otel.GetTextMapPropagator().Extract(context.Background(), carrier)

	if err := handler(ctx, d.Body); err != nil {
		requeue := !d.Redelivered
		q.logger.Printf("%s: handler failed (redelivered=%t, requeue=%t): %v", topic, d.Redelivered, requeue, err)
		if nerr := d.Nack(false, requeue); nerr != nil {
			q.logger.Printf("%s: nack: %v", topic, nerr)
		}
		return
	}
	if err := d.Ack(false); err != nil {
		q.logger.Printf("%s: ack: %v", topic, err)
	}
}

// Close closes the publish channel and the connection, which also stops
// every consumer.
func (q *AMQPQueue) Close() error {
	var result *multierror.Error
	q.mu.Lock()
	if err := q.ch.Close(); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "close channel"))
	}
	q.mu.Unlock()
	if err := q.conn.Close(); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "close connection"))
	}
	return result.ErrorOrNil()
}

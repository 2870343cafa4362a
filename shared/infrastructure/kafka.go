package infrastructure

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"github.com/neocommercepay/commerce-system/shared/apperrors"
	"github.com/neocommercepay/commerce-system/shared/events"
	"github.com/neocommercepay/commerce-system/shared/models"
)

var (
	_ events.Publisher  = (*KafkaPublisher)(nil)
	_ events.Subscriber = (*KafkaSubscriber)(nil)
)

const headerCorrelationID = "correlation_id"

// ParseBrokers splits a comma separated broker list.
func ParseBrokers(csv string) []string {
	brokers := []string{}
	for _, b := range strings.Split(csv, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes each event to the Kafka topic of the same name,
// keyed by aggregate id so that one aggregate's events share a partition.
type KafkaPublisher struct {
	writer kafkaWriter
}

func NewKafkaPublisher(brokers []string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, evts ...*events.Event) error {
	if len(evts) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(evts))
	for _, event := range evts {
		value, err := event.ToJSON()
		if err != nil {
			return apperrors.Invalid(err, "marshal event")
		}
		msgs = append(msgs, kafka.Message{
			Topic: event.Topic.String(),
			Key:   []byte(event.Key()),
			Value: value,
			Time:  event.Timestamp.UTC(),
			Headers: []kafka.Header{
				{Key: headerCorrelationID, Value: []byte(event.CorrelationID)},
			},
		})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return apperrors.Transient(err, "write to kafka")
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSubscriber consumes with a Kafka consumer group. A message's offset is
// committed only after the handler succeeded or the message was
// dead-lettered; transient failures are retried in place, which holds back
// the partition and so keeps per-key order.
type KafkaSubscriber struct {
	brokers       []string
	deadLetters   events.Publisher
	maxDeliveries int
	retryInterval time.Duration
	logger        *slog.Logger
	newReader     func(group string, topics []string) kafkaReader
}

func NewKafkaSubscriber(brokers []string, deadLetters events.Publisher, maxDeliveries int, retryInterval time.Duration, logger *slog.Logger) *KafkaSubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	s := &KafkaSubscriber{
		brokers:       brokers,
		deadLetters:   deadLetters,
		maxDeliveries: maxDeliveries,
		retryInterval: retryInterval,
		logger:        logger,
	}
	s.newReader = s.groupReader
	return s
}

func (s *KafkaSubscriber) groupReader(group string, topics []string) kafkaReader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     s.brokers,
		GroupID:     group,
		GroupTopics: topics,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     time.Second,
	})
}

// Subscribe implements events.Subscriber. Topics must be concrete names.
func (s *KafkaSubscriber) Subscribe(ctx context.Context, group string, topics []events.Topic, handler events.EventHandler) error {
	names := make([]string, len(topics))
	for i, t := range topics {
		names[i] = t.String()
	}

	reader := s.newReader(group, names)
	defer reader.Close()

	c := newConsumer(group, topics, handler, s.deadLetters, s.maxDeliveries, s.logger)
	s.logger.InfoContext(ctx, "kafka subscriber started",
		slog.String("consumer_group", group),
		slog.Any("topics", names))

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.ErrorContext(ctx, "kafka fetch failed", slog.String("error", err.Error()))
			sleep(ctx, s.retryInterval)
			continue
		}

		if !s.process(ctx, c, msg) {
			return nil
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "commit kafka offset")
		}
	}
}

// process delivers msg until it may be committed. It returns false only when
// ctx ended first.
func (s *KafkaSubscriber) process(ctx context.Context, c *consumer, msg kafka.Message) bool {
	event, decodeErr := events.FromJSON(msg.Value)
	if decodeErr == nil && event.Topic == "" {
		event.Topic = events.Topic(msg.Topic)
	}

	for deliveries := 1; ; deliveries++ {
		var ack bool
		if decodeErr != nil {
			undecodable := &events.Event{
				ID:    models.ID(msg.Topic + "/" + string(msg.Key)),
				Topic: events.Topic(msg.Topic),
				Data:  msg.Value,
			}
			ack = c.settle(ctx, undecodable, apperrors.Invalid(decodeErr, "decode kafka message"), deliveries)
		} else {
			ack = c.consume(ctx, event, deliveries)
		}
		if ack {
			return true
		}

		wait := s.retryInterval * time.Duration(deliveries)
		if wait > time.Minute {
			wait = time.Minute
		}
		sleep(ctx, wait)
		if ctx.Err() != nil {
			return false
		}
	}
}

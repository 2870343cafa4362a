package infrastructure

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/neocommercepay/commerce-system/shared/events"
)

var _ events.Subscriber = (*SQSSubscriber)(nil)

// SQSSubscriber implements events.Subscriber with one SQS queue per consumer
// group. Dead letters go through deadLetters, normally the SNS publisher, so
// they land on "<group>-dlq".
type SQSSubscriber struct {
	client      SQSAPI
	queueURLs   map[string]string
	deadLetters events.Publisher
	opts        []SQSSubscriberOption
	logger      *slog.Logger
}

// NewSQSSubscriber creates a subscriber. queueURLs maps consumer group to queue URL.
func NewSQSSubscriber(client SQSAPI, queueURLs map[string]string, deadLetters events.Publisher, logger *slog.Logger, opts ...SQSSubscriberOption) *SQSSubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQSSubscriber{
		client:      client,
		queueURLs:   queueURLs,
		deadLetters: deadLetters,
		opts:        opts,
		logger:      logger,
	}
}

// Subscribe implements events.Subscriber. It blocks until ctx is cancelled.
func (s *SQSSubscriber) Subscribe(ctx context.Context, group string, topics []events.Topic, handler events.EventHandler) error {
	queueURL, ok := s.queueURLs[group]
	if !ok || queueURL == "" {
		return errors.Errorf("no SQS queue configured for consumer group %q", group)
	}

	options := defaultSQSOptions()
	for _, opt := range s.opts {
		opt(options)
	}

	c := newConsumer(group, topics, handler, s.deadLetters, options.maxReceiveCount, s.logger)
	s.logger.InfoContext(ctx, "sqs subscriber started",
		slog.String("consumer_group", group),
		slog.String("queue_url", queueURL))

	return newSQSEventSubscriber(s.client, queueURL, c, options).Run(ctx)
}

package infrastructure

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/pkg/errors"

	"github.com/neocommercepay/commerce-system/shared/apperrors"
	"github.com/neocommercepay/commerce-system/shared/events"
	"github.com/neocommercepay/commerce-system/shared/models"
)

// SQSAPI is the subset of the SQS client the subscriber needs.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

type sqsMessage struct {
	Message types.Message
	Event   *events.Event
	Ack     bool
}

// SQSEventSubscriber drains one consumer-group queue. Readers receive
// messages, workers run the handler, cleaners delete acknowledged messages
// and push back the visibility of the rest so they are redelivered later.
type SQSEventSubscriber struct {
	inboundMessages  chan *sqsMessage
	outboundMessages chan *sqsMessage
	options          *sqsSubscriberOptions

	client   SQSAPI
	queueURL string
	consumer *consumer
	logger   *slog.Logger
}

type sqsSubscriberOptions struct {
	workers                    int32
	readers                    int32
	cleaners                   int32
	maxNumberOfMessages        int32
	waitTimeSeconds            int32
	visibilityTimeout          int32
	sleepTimeAfterEmptyReceive time.Duration
	sleepTimeAfterError        time.Duration
	receiveCountRange          int32
	visibilityTimeoutOffset    int32
	maxVisibilityTimeout       int32
	maxReceiveCount            int
}

type SQSSubscriberOption func(*sqsSubscriberOptions)

func WithWorkers(workers int32) SQSSubscriberOption {
	return func(o *sqsSubscriberOptions) {
		o.workers = workers
	}
}

// WithReaders sets how many goroutines poll the queue. Values below one are ignored.
func WithReaders(readers int32) SQSSubscriberOption {
	return func(o *sqsSubscriberOptions) {
		if readers > 0 {
			o.readers = readers
		}
	}
}

func WithVisibilityTimeout(timeout int32) SQSSubscriberOption {
	return func(o *sqsSubscriberOptions) {
		o.visibilityTimeout = timeout
	}
}

// WithMaxReceiveCount sets after how many receives a transiently failing
// message is dead-lettered.
func WithMaxReceiveCount(n int) SQSSubscriberOption {
	return func(o *sqsSubscriberOptions) {
		o.maxReceiveCount = n
	}
}

// WithWaitTime sets the long-poll wait and the pause after an empty receive.
func WithWaitTime(seconds int32, sleepAfterEmpty time.Duration) SQSSubscriberOption {
	return func(o *sqsSubscriberOptions) {
		o.waitTimeSeconds = seconds
		o.sleepTimeAfterEmptyReceive = sleepAfterEmpty
	}
}

func defaultSQSOptions() *sqsSubscriberOptions {
	return &sqsSubscriberOptions{
		workers:                    10,
		readers:                    1,
		cleaners:                   2,
		maxNumberOfMessages:        5,
		waitTimeSeconds:            15,
		visibilityTimeout:          30,
		sleepTimeAfterEmptyReceive: time.Second,
		sleepTimeAfterError:        5 * time.Second,
		receiveCountRange:          3,
		visibilityTimeoutOffset:    30,
		maxVisibilityTimeout:       900,
		maxReceiveCount:            5,
	}
}

func newSQSEventSubscriber(client SQSAPI, queueURL string, c *consumer, options *sqsSubscriberOptions) *SQSEventSubscriber {
	return &SQSEventSubscriber{
		client:           client,
		queueURL:         queueURL,
		consumer:         c,
		logger:           c.logger.With(slog.String("queue_url", queueURL)),
		inboundMessages:  make(chan *sqsMessage, options.maxNumberOfMessages*2),
		outboundMessages: make(chan *sqsMessage, options.maxNumberOfMessages*2),
		options:          options,
	}
}

// Run blocks until ctx is cancelled and every goroutine has returned.
func (s *SQSEventSubscriber) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	start := func(n int32, fn func(context.Context)) {
		for i := int32(0); i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				fn(ctx)
			}()
		}
	}

	start(s.options.workers, s.startWorker)
	start(s.options.readers, s.startReader)
	start(s.options.cleaners, s.startCleaner)

	wg.Wait()
	return nil
}

func (s *SQSEventSubscriber) startWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case message := <-s.inboundMessages:
			s.handle(ctx, message)
		}
	}
}

func (s *SQSEventSubscriber) startReader(ctx context.Context) {
	for ctx.Err() == nil {
		if err := s.read(ctx); err != nil && ctx.Err() == nil {
			s.logger.ErrorContext(ctx, "sqs receive failed", slog.String("error", err.Error()))
			sleep(ctx, s.options.sleepTimeAfterError)
		}
	}
}

func (s *SQSEventSubscriber) startCleaner(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case message := <-s.outboundMessages:
			if err := s.clean(ctx, message); err != nil {
				s.logger.ErrorContext(ctx, "sqs clean failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (s *SQSEventSubscriber) read(ctx context.Context) error {
	output, err := s.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(s.queueURL),
		MaxNumberOfMessages: s.options.maxNumberOfMessages,
		WaitTimeSeconds:     s.options.waitTimeSeconds,
		VisibilityTimeout:   s.options.visibilityTimeout,
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameApproximateReceiveCount,
		},
		MessageAttributeNames: []string{"All"},
	})
	if err != nil {
		return errors.Wrap(err, "failed to receive message from SQS")
	}

	if len(output.Messages) == 0 {
		sleep(ctx, s.options.sleepTimeAfterEmptyReceive)
		return nil
	}

	for _, message := range output.Messages {
		select {
		case s.inboundMessages <- &sqsMessage{Message: message}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

func (s *SQSEventSubscriber) handle(ctx context.Context, message *sqsMessage) {
	deliveries := receiveCount(message.Message)

	event, err := decodeSQSBody(aws.ToString(message.Message.Body))
	switch {
	case err != nil:
		event = &events.Event{
			ID:    models.ID(aws.ToString(message.Message.MessageId)),
			Topic: events.Topic("undecodable"),
			Data:  []byte(aws.ToString(message.Message.Body)),
		}
		message.Ack = s.consumer.settle(ctx, event, apperrors.Invalid(err, "decode sqs message"), deliveries)
	case !s.consumer.wants(event):
		message.Ack = true
	default:
		message.Ack = s.consumer.consume(ctx, event, deliveries)
	}
	message.Event = event

	select {
	case s.outboundMessages <- message:
	case <-ctx.Done():
	}
}

func (s *SQSEventSubscriber) clean(ctx context.Context, message *sqsMessage) error {
	if message.Ack {
		_, err := s.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      aws.String(s.queueURL),
			ReceiptHandle: message.Message.ReceiptHandle,
		})
		return errors.Wrap(err, "failed to delete message from SQS")
	}

	receives := int32(receiveCount(message.Message))
	visibilityTimeout := s.options.visibilityTimeout
	visibilityTimeout += (receives / s.options.receiveCountRange) * s.options.visibilityTimeoutOffset
	if visibilityTimeout > s.options.maxVisibilityTimeout {
		visibilityTimeout = s.options.maxVisibilityTimeout
	}

	_, err := s.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(s.queueURL),
		ReceiptHandle:     message.Message.ReceiptHandle,
		VisibilityTimeout: visibilityTimeout,
	})
	return errors.Wrap(err, "failed to extend visibility timeout")
}

// snsNotification is the envelope SNS wraps messages in when the
// subscription does not use raw message delivery.
type snsNotification struct {
	Type    string `json:"Type"`
	Message string `json:"Message"`
}

func decodeSQSBody(body string) (*events.Event, error) {
	var notification snsNotification
	if err := json.Unmarshal([]byte(body), &notification); err == nil && notification.Type == "Notification" {
		body = notification.Message
	}
	event, err := events.FromJSON([]byte(body))
	if err != nil {
		return nil, err
	}
	if event.Topic == "" {
		return nil, errors.New("message has no topic")
	}
	return event, nil
}

func receiveCount(message types.Message) int {
	n, err := strconv.Atoi(message.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)])
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

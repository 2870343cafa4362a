package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/neocommercepay/commerce-system/shared/apperrors"
	"github.com/neocommercepay/commerce-system/shared/events"
	"github.com/neocommercepay/commerce-system/shared/models"
)

type snsClientMock struct {
	mock.Mock
}

func (m *snsClientMock) PublishBatch(ctx context.Context, params *sns.PublishBatchInput, _ ...func(*sns.Options)) (*sns.PublishBatchOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*sns.PublishBatchOutput)
	return out, args.Error(1)
}

type sqsClientMock struct {
	mock.Mock
}

func (m *sqsClientMock) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*sqs.ReceiveMessageOutput)
	return out, args.Error(1)
}

func (m *sqsClientMock) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	args := m.Called(ctx, params)
	return &sqs.DeleteMessageOutput{}, args.Error(0)
}

func (m *sqsClientMock) ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, _ ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error) {
	args := m.Called(ctx, params)
	return &sqs.ChangeMessageVisibilityOutput{}, args.Error(0)
}

// capturePublisher records what was dead-lettered.
type capturePublisher struct {
	events []*events.Event
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, evts ...*events.Event) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, evts...)
	return nil
}

func TestSNSEventPublisher_Publish(t *testing.T) {
	t.Run("fifo topic sets group and deduplication ids", func(t *testing.T) {
		client := &snsClientMock{}
		publisher := NewSNSEventPublisher(client, "arn:aws:sns:us-east-1:000000000000:commerce-events.fifo")
		orderID := models.GenerateUUID()
		event := newOrderCreated(orderID)

		client.On("PublishBatch", mock.Anything, mock.MatchedBy(func(in *sns.PublishBatchInput) bool {
			require.Len(t, in.PublishBatchRequestEntries, 1)
			entry := in.PublishBatchRequestEntries[0]
			decoded, err := events.FromJSON([]byte(aws.ToString(entry.Message)))
			require.NoError(t, err)
			return aws.ToString(entry.MessageGroupId) == orderID.String() &&
				aws.ToString(entry.MessageDeduplicationId) == event.ID.String() &&
				aws.ToString(entry.MessageAttributes[AttrTopic].StringValue) == "order.created" &&
				aws.ToString(entry.MessageAttributes[AttrCorrelationID].StringValue) == "corr-1" &&
				decoded.ID == event.ID
		})).Return(&sns.PublishBatchOutput{}, nil).Once()

		require.NoError(t, publisher.Publish(context.Background(), event))
		client.AssertExpectations(t)
	})

	t.Run("splits into batches of ten", func(t *testing.T) {
		client := &snsClientMock{}
		publisher := NewSNSEventPublisher(client, "arn:aws:sns:us-east-1:000000000000:commerce-events")
		client.On("PublishBatch", mock.Anything, mock.Anything).Return(&sns.PublishBatchOutput{}, nil).Twice()

		evts := make([]*events.Event, 12)
		for i := range evts {
			evts[i] = newOrderCreated(models.GenerateUUID())
		}

		require.NoError(t, publisher.Publish(context.Background(), evts...))
		client.AssertNumberOfCalls(t, "PublishBatch", 2)
	})

	t.Run("rejected entries are a transient error", func(t *testing.T) {
		client := &snsClientMock{}
		publisher := NewSNSEventPublisher(client, "arn:aws:sns:us-east-1:000000000000:commerce-events")
		event := newOrderCreated(models.GenerateUUID())
		client.On("PublishBatch", mock.Anything, mock.Anything).Return(&sns.PublishBatchOutput{
			Failed: []snstypes.BatchResultErrorEntry{{Id: aws.String(event.ID.String()), Message: aws.String("throttled")}},
		}, nil).Once()

		err := publisher.Publish(context.Background(), event)

		require.Error(t, err)
		assert.True(t, apperrors.IsRetryable(err))
		assert.Contains(t, err.Error(), "throttled")
	})
}

func sqsMessageFor(t *testing.T, event *events.Event, receiveCount int, wrapInSNS bool) sqstypes.Message {
	body, err := event.ToJSON()
	require.NoError(t, err)
	if wrapInSNS {
		body, err = json.Marshal(snsNotification{Type: "Notification", Message: string(body)})
		require.NoError(t, err)
	}
	return sqstypes.Message{
		MessageId:     aws.String("msg-1"),
		ReceiptHandle: aws.String("rh-1"),
		Body:          aws.String(string(body)),
		Attributes: map[string]string{
			string(sqstypes.MessageSystemAttributeNameApproximateReceiveCount): fmt.Sprint(receiveCount),
		},
	}
}

func TestSQSEventSubscriber_HandleAndClean(t *testing.T) {
	tests := []struct {
		name           string
		handlerErr     error
		receiveCount   int
		wrapInSNS      bool
		wantDelete     bool
		wantDeadLetter bool
	}{
		{name: "success deletes", receiveCount: 1, wantDelete: true},
		{name: "sns envelope is unwrapped", receiveCount: 1, wrapInSNS: true, wantDelete: true},
		{name: "transient failure extends visibility", handlerErr: errors.New("timeout"), receiveCount: 1},
		{name: "permanent failure is dead-lettered then deleted", handlerErr: apperrors.Invalid(errors.New("bad"), "decode"), receiveCount: 1, wantDelete: true, wantDeadLetter: true},
		{name: "max receives dead-letters transient failure", handlerErr: errors.New("timeout"), receiveCount: 5, wantDelete: true, wantDeadLetter: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &sqsClientMock{}
			dlq := &capturePublisher{}
			handled := 0
			c := newConsumer("order-service", []events.Topic{events.TopicOrderCreated}, events.EventHandlerFunc(
				func(ctx context.Context, e *events.Event) error {
					handled++
					return tt.handlerErr
				}), dlq, 5, nil)
			options := defaultSQSOptions()
			subscriber := newSQSEventSubscriber(client, "http://localhost:4566/queue/order-service", c, options)

			if tt.wantDelete {
				client.On("DeleteMessage", mock.Anything, mock.MatchedBy(func(in *sqs.DeleteMessageInput) bool {
					return aws.ToString(in.ReceiptHandle) == "rh-1"
				})).Return(nil).Once()
			} else {
				client.On("ChangeMessageVisibility", mock.Anything, mock.Anything).Return(nil).Once()
			}

			message := &sqsMessage{Message: sqsMessageFor(t, newOrderCreated(models.GenerateUUID()), tt.receiveCount, tt.wrapInSNS)}
			subscriber.handle(context.Background(), message)
			require.NoError(t, subscriber.clean(context.Background(), <-subscriber.outboundMessages))

			assert.Equal(t, 1, handled)
			assert.Equal(t, tt.wantDeadLetter, len(dlq.events) == 1)
			client.AssertExpectations(t)
		})
	}
}

func TestSQSEventSubscriber_UndecodableBodyIsDeadLettered(t *testing.T) {
	client := &sqsClientMock{}
	dlq := &capturePublisher{}
	c := newConsumer("payment-service", []events.Topic{events.TopicOrderCreated}, events.EventHandlerFunc(
		func(ctx context.Context, e *events.Event) error {
			t.Fatal("handler must not run")
			return nil
		}), dlq, 5, nil)
	subscriber := newSQSEventSubscriber(client, "queue", c, defaultSQSOptions())
	client.On("DeleteMessage", mock.Anything, mock.Anything).Return(nil).Once()

	message := &sqsMessage{Message: sqstypes.Message{
		MessageId:     aws.String("msg-9"),
		ReceiptHandle: aws.String("rh-9"),
		Body:          aws.String("{not json"),
	}}
	subscriber.handle(context.Background(), message)
	require.NoError(t, subscriber.clean(context.Background(), <-subscriber.outboundMessages))

	require.Len(t, dlq.events, 1)
	assert.Equal(t, events.Topic("payment-service-dlq"), dlq.events[0].Topic)
	assert.Equal(t, "invalid", dlq.events[0].Metadata[events.MetaErrorKind])
}

func TestSQSEventSubscriber_DeadLetterFailureKeepsMessage(t *testing.T) {
	client := &sqsClientMock{}
	dlq := &capturePublisher{err: errors.New("sns down")}
	c := newConsumer("order-service", []events.Topic{events.TopicOrderCreated}, events.EventHandlerFunc(
		func(ctx context.Context, e *events.Event) error {
			return apperrors.NotFound("order_not_found", "missing")
		}), dlq, 5, nil)
	subscriber := newSQSEventSubscriber(client, "queue", c, defaultSQSOptions())
	client.On("ChangeMessageVisibility", mock.Anything, mock.Anything).Return(nil).Once()

	subscriber.handle(context.Background(), &sqsMessage{Message: sqsMessageFor(t, newOrderCreated(models.GenerateUUID()), 1, false)})
	require.NoError(t, subscriber.clean(context.Background(), <-subscriber.outboundMessages))

	client.AssertNotCalled(t, "DeleteMessage", mock.Anything, mock.Anything)
}

func TestSQSSubscriber_RequiresQueueForGroup(t *testing.T) {
	subscriber := NewSQSSubscriber(&sqsClientMock{}, map[string]string{}, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := subscriber.Subscribe(ctx, "order-service", []events.Topic{events.TopicPaymentCompleted}, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "order-service")
}

func TestSQSSubscriberOptions(t *testing.T) {
	options := defaultSQSOptions()
	for _, opt := range []SQSSubscriberOption{WithWorkers(4), WithReaders(2), WithReaders(0), WithMaxReceiveCount(7)} {
		opt(options)
	}

	assert.Equal(t, int32(4), options.workers)
	assert.Equal(t, int32(2), options.readers)
	assert.Equal(t, 7, options.maxReceiveCount)
}

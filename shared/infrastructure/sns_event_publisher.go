package infrastructure

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/neocommercepay/commerce-system/shared/apperrors"
	"github.com/neocommercepay/commerce-system/shared/events"
)

var _ events.Publisher = (*SNSEventPublisher)(nil)

const maxBatchSize = 10

// Message attribute names set on every SNS message. Queue subscriptions
// filter on AttrTopic.
const (
	AttrTopic         = "topic"
	AttrCorrelationID = "correlation_id"
)

// SNSAPI is the subset of the SNS client the publisher needs.
type SNSAPI interface {
	PublishBatch(ctx context.Context, params *sns.PublishBatchInput, optFns ...func(*sns.Options)) (*sns.PublishBatchOutput, error)
}

// SNSEventPublisher publishes every topic to one SNS topic; consumer queues
// subscribe with a filter policy on the "topic" attribute. On a FIFO topic
// the aggregate id is the message group, which keeps per-key ordering.
type SNSEventPublisher struct {
	client   SNSAPI
	topicArn string
	fifo     bool
}

// NewSNSEventPublisher creates a new SNSEventPublisher
func NewSNSEventPublisher(client SNSAPI, topicArn string) *SNSEventPublisher {
	return &SNSEventPublisher{
		client:   client,
		topicArn: topicArn,
		fifo:     strings.HasSuffix(topicArn, ".fifo"),
	}
}

// Publish publishes events to SNS in batches of ten. Events sharing a key
// stay in the same batch order.
func (p *SNSEventPublisher) Publish(ctx context.Context, evts ...*events.Event) error {
	if len(evts) == 0 {
		return nil
	}

	gr, ctx := errgroup.WithContext(ctx)
	for _, eventBatch := range splitToChunks(evts, maxBatchSize) {
		gr.Go(func() error {
			return p.batchPublish(ctx, eventBatch)
		})
	}

	return gr.Wait()
}

func (p *SNSEventPublisher) batchPublish(ctx context.Context, batch []*events.Event) error {
	requests := make([]types.PublishBatchRequestEntry, len(batch))

	for i, event := range batch {
		body, err := event.ToJSON()
		if err != nil {
			return apperrors.Invalid(err, "marshal event")
		}

		attrs := map[string]types.MessageAttributeValue{
			AttrTopic: stringAttribute(event.Topic.String()),
		}
		if event.CorrelationID != "" {
			attrs[AttrCorrelationID] = stringAttribute(event.CorrelationID)
		}
		for k, v := range event.Metadata {
			attrs[k] = stringAttribute(v)
		}

		entry := types.PublishBatchRequestEntry{
			Id:                aws.String(event.ID.String()),
			Message:           aws.String(string(body)),
			MessageAttributes: attrs,
		}
		if p.fifo {
			entry.MessageGroupId = aws.String(event.Key())
			entry.MessageDeduplicationId = aws.String(event.ID.String())
		}
		requests[i] = entry
	}

	res, err := p.client.PublishBatch(ctx, &sns.PublishBatchInput{
		TopicArn:                   aws.String(p.topicArn),
		PublishBatchRequestEntries: requests,
	})
	if err != nil {
		return apperrors.Transient(err, "publish batch to SNS")
	}

	if len(res.Failed) > 0 {
		failed := make([]string, 0, len(res.Failed))
		for _, entry := range res.Failed {
			failed = append(failed, aws.ToString(entry.Id)+": "+aws.ToString(entry.Message))
		}
		return apperrors.Transient(errors.Errorf("rejected entries [%s]", strings.Join(failed, "; ")), "publish batch to SNS")
	}

	return nil
}

func stringAttribute(v string) types.MessageAttributeValue {
	return types.MessageAttributeValue{
		DataType:    aws.String("String"),
		StringValue: aws.String(v),
	}
}

// splitToChunks splits slice into chunks of specified size
func splitToChunks[T any](slice []T, chunkSize int) [][]T {
	var chunks [][]T
	for i := 0; i < len(slice); i += chunkSize {
		end := i + chunkSize
		if end > len(slice) {
			end = len(slice)
		}
		chunks = append(chunks, slice[i:end])
	}
	return chunks
}

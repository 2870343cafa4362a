package infrastructure

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/pkg/errors"
)

// AWSSettings locate the broker. Endpoint is set for LocalStack.
type AWSSettings struct {
	Region   string
	Endpoint string
}

// LoadAWSConfig loads the default credential chain for the given region.
func LoadAWSConfig(ctx context.Context, settings AWSSettings) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if settings.Region != "" {
		opts = append(opts, config.WithRegion(settings.Region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, errors.Wrap(err, "failed to load AWS config")
	}
	return cfg, nil
}

// NewSNSClient creates an SNS client, honouring a custom endpoint.
func NewSNSClient(cfg aws.Config, settings AWSSettings) *sns.Client {
	return sns.NewFromConfig(cfg, func(o *sns.Options) {
		if settings.Endpoint != "" {
			o.BaseEndpoint = aws.String(settings.Endpoint)
		}
	})
}

// NewSQSClient creates an SQS client, honouring a custom endpoint.
func NewSQSClient(cfg aws.Config, settings AWSSettings) *sqs.Client {
	return sqs.NewFromConfig(cfg, func(o *sqs.Options) {
		if settings.Endpoint != "" {
			o.BaseEndpoint = aws.String(settings.Endpoint)
		}
	})
}

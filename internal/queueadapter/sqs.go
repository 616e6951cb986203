package queueadapter

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/relaycore/bulkmailer/internal/domain"
)

// SQSConfig configures the production Queue Adapter backend. Grounded on
// pkg/storage/s3.go's config/credentials wiring, extended from S3 to SQS:
// same SDK family, same optional-static-credentials pattern.
type SQSConfig struct {
	Region          string
	QueueURL        string
	DeadLetterURL   string
	AccessKey       string
	SecretKey       string
	VisibilityTimeoutSeconds int32
}

// SQSAdapter implements Adapter against Amazon SQS. ReceiptHandle maps to
// SendRequest.ReceiptToken; VisibilityTimeout is set at queue-creation time
// (or overridden per-receive) and governs retryable redelivery; the
// DeadLetterURL is SQS's redrive-policy dead-letter queue.
type SQSAdapter struct {
	client        *sqs.Client
	queueURL      string
	deadLetterURL string
	visibility    int32
}

// NewSQSAdapter builds an SQSAdapter, loading AWS credentials from the
// static keys in cfg if present, falling back to the default credential
// chain otherwise.
func NewSQSAdapter(ctx context.Context, cfg SQSConfig) (*SQSAdapter, error) {
	if cfg.QueueURL == "" {
		return nil, fmt.Errorf("sqs queue url is required")
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &SQSAdapter{
		client:        sqs.NewFromConfig(awsCfg),
		queueURL:      cfg.QueueURL,
		deadLetterURL: cfg.DeadLetterURL,
		visibility:    cfg.VisibilityTimeoutSeconds,
	}, nil
}

func (a *SQSAdapter) Fetch(ctx context.Context, max int, waitSeconds int) ([]Message, error) {
	input := &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(a.queueURL),
		MaxNumberOfMessages:   int32(clampFetch(max)),
		WaitTimeSeconds:       int32(clampWait(waitSeconds)),
		MessageAttributeNames: []string{"All"},
	}
	if a.visibility > 0 {
		input.VisibilityTimeout = a.visibility
	}

	out, err := a.client.ReceiveMessage(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("sqs receive: %w", err)
	}

	messages := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		attrs := make(map[string]string, len(m.MessageAttributes))
		for k, v := range m.MessageAttributes {
			if v.StringValue != nil {
				attrs[k] = *v.StringValue
			}
		}
		messages = append(messages, Message{
			Body:           aws.ToString(m.Body),
			Attributes:     attrs,
			ReceiptToken:   aws.ToString(m.ReceiptHandle),
			QueueMessageID: aws.ToString(m.MessageId),
		})
	}
	return messages, nil
}

func (a *SQSAdapter) Ack(ctx context.Context, receiptToken string) error {
	_, err := a.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(a.queueURL),
		ReceiptHandle: aws.String(receiptToken),
	})
	if err != nil {
		return fmt.Errorf("sqs delete: %w", err)
	}
	return nil
}

func (a *SQSAdapter) DeadLetter(ctx context.Context, body string, attributes map[string]string) error {
	if a.deadLetterURL == "" {
		return fmt.Errorf("sqs dead-letter queue url not configured")
	}

	attrs := make(map[string]types.MessageAttributeValue, len(attributes))
	for k, v := range attributes {
		attrs[k] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(v),
		}
	}

	_, err := a.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(a.deadLetterURL),
		MessageBody:       aws.String(body),
		MessageAttributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("sqs dead-letter send: %w", err)
	}
	return nil
}

func (a *SQSAdapter) Parse(msg Message) (*domain.SendRequest, error) {
	return parseMessage(msg)
}

// QueueDepth reports SQS's eventually-consistent approximate message count.
func (a *SQSAdapter) QueueDepth(ctx context.Context) (int64, error) {
	out, err := a.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(a.queueURL),
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameApproximateNumberOfMessages},
	})
	if err != nil {
		return 0, fmt.Errorf("sqs get queue attributes: %w", err)
	}
	raw := out.Attributes[string(types.QueueAttributeNameApproximateNumberOfMessages)]
	var depth int64
	fmt.Sscanf(raw, "%d", &depth)
	return depth, nil
}

package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"ads-stream-alerts/internal/config"
)

// SQS service limits.
const (
	sqsMaxMessages = 10
	sqsMaxWait     = 20 * time.Second
)

// SQSAPI is the subset of the SQS client used by the queue.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQS reads the stream subscription queue.
type SQS struct {
	client            SQSAPI
	queueURL          string
	visibilityTimeout int32
}

// NewSQS builds an SQS queue from the default AWS credential chain.
func NewSQS(ctx context.Context, cfg config.SQSConfig) (*SQS, error) {
	if cfg.QueueURL == "" {
		return nil, fmt.Errorf("queue.sqs.queue_url is required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewSQSWithClient(client, cfg.QueueURL, cfg.VisibilityTimeout), nil
}

// NewSQSWithClient wraps an existing client.
func NewSQSWithClient(client SQSAPI, queueURL string, visibilityTimeout int32) *SQS {
	return &SQS{client: client, queueURL: queueURL, visibilityTimeout: visibilityTimeout}
}

// Receive long-polls for up to max messages.
func (q *SQS) Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error) {
	if max <= 0 || max > sqsMaxMessages {
		max = sqsMaxMessages
	}
	if wait > sqsMaxWait {
		wait = sqsMaxWait
	}
	if wait < 0 {
		wait = 0
	}

	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(q.queueURL),
		MaxNumberOfMessages:   int32(max),
		WaitTimeSeconds:       int32(wait / time.Second),
		VisibilityTimeout:     q.visibilityTimeout,
		MessageAttributeNames: []string{"All"},
	})
	if err != nil {
		return nil, fmt.Errorf("receive sqs messages: %w", err)
	}

	msgs := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		msgs = append(msgs, Message{
			ID:      aws.ToString(m.MessageId),
			Receipt: aws.ToString(m.ReceiptHandle),
			Body:    []byte(aws.ToString(m.Body)),
		})
	}
	return msgs, nil
}

// Delete removes a message by receipt handle.
func (q *SQS) Delete(ctx context.Context, receipt string) error {
	if _, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(receipt),
	}); err != nil {
		return fmt.Errorf("delete sqs message: %w", err)
	}
	return nil
}

// Send publishes a message body.
func (q *SQS) Send(ctx context.Context, body []byte) error {
	if _, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
	}); err != nil {
		return fmt.Errorf("send sqs message: %w", err)
	}
	return nil
}

// Close is a no-op; the SDK client holds no long-lived connections.
func (q *SQS) Close() error { return nil }

var _ Queue = (*SQS)(nil)

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/civisight/portal/pkg/observability"
)

// SQSAPI is the subset of the SQS client the queue uses.
type SQSAPI interface {
	SendMessage(ctx context.Context, input *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, input *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, input *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSConfig configures the SQS queue. Type "memory" selects MemoryQueue.
type SQSConfig struct {
	Type              string `mapstructure:"type"`
	Region            string `mapstructure:"region"`
	QueueName         string `mapstructure:"queue_name"`
	QueueURL          string `mapstructure:"queue_url"`
	Endpoint          string `mapstructure:"endpoint"`
	UseLocalStack     bool   `mapstructure:"use_localstack"`
	AccessKey         string `mapstructure:"access_key"`
	SecretKey         string `mapstructure:"secret_key"`
	WaitSeconds       int32  `mapstructure:"wait_seconds"`
	MaxMessages       int32  `mapstructure:"max_messages"`
	VisibilityTimeout int32  `mapstructure:"visibility_timeout"`
}

// SQSClient implements Queue on Amazon SQS or LocalStack.
type SQSClient struct {
	api      SQSAPI
	queueURL string
	cfg      SQSConfig
	logger   observability.Logger
}

// New returns the Queue selected by cfg.Type.
func New(ctx context.Context, cfg SQSConfig, logger observability.Logger) (Queue, error) {
	if cfg.Type == "memory" {
		return NewMemoryQueue(), nil
	}
	return NewSQSClient(ctx, cfg, logger)
}

// NewSQSClient loads AWS configuration and builds the client. LocalStack
// runs use static credentials and a derived queue URL.
func NewSQSClient(ctx context.Context, cfg SQSConfig, logger observability.Logger) (*SQSClient, error) {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.UseLocalStack {
		if cfg.Endpoint == "" {
			cfg.Endpoint = "http://localhost:4566"
		}
		key, secret := cfg.AccessKey, cfg.SecretKey
		if key == "" {
			key, secret = "test", "test"
		}
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(key, secret, "")))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, awsconfig.WithBaseEndpoint(cfg.Endpoint))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	queueURL := cfg.QueueURL
	if queueURL == "" && cfg.UseLocalStack {
		queueURL = localStackQueueURL(cfg.Endpoint, cfg.QueueName)
	}
	if queueURL == "" {
		return nil, fmt.Errorf("sqs queue url is required")
	}

	logger.Info("SQS queue configured", map[string]interface{}{
		"region":     cfg.Region,
		"queue_url":  queueURL,
		"localstack": cfg.UseLocalStack,
	})

	c := NewSQSClientWithAPI(sqs.NewFromConfig(awsCfg), queueURL, logger)
	c.cfg = cfg
	return c, nil
}

// NewSQSClientWithAPI wraps an existing SQS API, mainly for tests.
func NewSQSClientWithAPI(api SQSAPI, queueURL string, logger observability.Logger) *SQSClient {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &SQSClient{api: api, queueURL: queueURL, logger: logger}
}

func (c *SQSClient) Enqueue(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	out, err := c.api.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(c.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"kind": {DataType: aws.String("String"), StringValue: aws.String(msg.Kind)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	c.logger.Debug("Message enqueued", map[string]interface{}{
		"id":         msg.ID,
		"kind":       msg.Kind,
		"message_id": aws.ToString(out.MessageId),
	})
	return nil
}

func (c *SQSClient) Receive(ctx context.Context, max int32, waitSeconds int32) ([]Message, []string, error) {
	if max <= 0 {
		max = 1
	}
	if max > 10 {
		max = 10
	}
	input := &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: max,
		WaitTimeSeconds:     waitSeconds,
	}
	if c.cfg.VisibilityTimeout > 0 {
		input.VisibilityTimeout = c.cfg.VisibilityTimeout
	}
	out, err := c.api.ReceiveMessage(ctx, input)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to receive messages: %w", err)
	}

	msgs := make([]Message, 0, len(out.Messages))
	receipts := make([]string, 0, len(out.Messages))
	for _, m := range out.Messages {
		var msg Message
		if err := json.Unmarshal([]byte(aws.ToString(m.Body)), &msg); err != nil {
			// Undecodable bodies are dropped so they do not block the queue.
			c.logger.Warn("Dropping malformed message", map[string]interface{}{
				"message_id": aws.ToString(m.MessageId),
				"error":      err.Error(),
			})
			_ = c.Delete(ctx, aws.ToString(m.ReceiptHandle))
			continue
		}
		msgs = append(msgs, msg)
		receipts = append(receipts, aws.ToString(m.ReceiptHandle))
	}
	return msgs, receipts, nil
}

func (c *SQSClient) Delete(ctx context.Context, receipt string) error {
	_, err := c.api.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: aws.String(receipt),
	})
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

// localStackQueueURL follows LocalStack's account-less URL layout.
func localStackQueueURL(endpoint, queueName string) string {
	if queueName == "" {
		return ""
	}
	return strings.TrimSuffix(endpoint, "/") + "/000000000000/" + queueName
}

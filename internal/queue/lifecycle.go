// Package queue publishes subscription lifecycle events to SQS for
// downstream consumers.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"vega/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// LifecyclePublisher sends LifecycleEvents to a single queue. Messages carry
// the event type and user id as attributes so subscribers can filter
// without decoding the body.
type LifecyclePublisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
	now      func() time.Time
}

// NewLifecyclePublisher creates a publisher for queueURL.
func NewLifecyclePublisher(client SQSSender, queueURL string, logger *slog.Logger) *LifecyclePublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LifecyclePublisher{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
		now:      time.Now,
	}
}

// Publish fills in EventID, OccurredAt and TraceID when unset and sends
// the event.
func (p *LifecyclePublisher) Publish(ctx context.Context, event types.LifecycleEvent) error {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = p.now().UTC()
	}
	if event.TraceID == "" {
		event.TraceID = types.GetRequestID(ctx)
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal LifecycleEvent: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"event_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(event.Type)),
			},
			"user_id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(event.UserID),
			},
		},
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("queue: failed to send %s to %s: %w", event.Type, p.queueURL, err)
	}

	p.logger.InfoContext(ctx, "lifecycle event sent",
		"event_id", event.EventID,
		"type", string(event.Type),
		"user_id", event.UserID,
		"subscription_id", event.SubscriptionID,
	)
	return nil
}

// NopPublisher drops events. Used when no queue is configured.
type NopPublisher struct{}

// Publish implements the publisher contract by doing nothing.
func (NopPublisher) Publish(context.Context, types.LifecycleEvent) error { return nil }

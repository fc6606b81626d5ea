package aws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// NotificationIntent is the outbox message enqueued by the API once an
// order is committed and consumed by the email worker.
type NotificationIntent struct {
	OrderID        string `json:"order_id"`
	OrderToken     string `json:"order_token"`
	IdempotencyKey string `json:"idempotency_key"`
	CorrelationID  string `json:"correlation_id,omitempty"`
}

// Publisher wraps an SQS client and the notification queue URL.
type Publisher struct {
	SQS      SQSAPI
	QueueURL string
}

// NewPublisher returns a Publisher bound to a queue URL.
func NewPublisher(sqsClient SQSAPI, queueURL string) *Publisher {
	return &Publisher{
		SQS:      sqsClient,
		QueueURL: queueURL,
	}
}

// PublishNotification enqueues a confirmation-email intent. The order token
// and idempotency key ride along as message attributes for tracing.
func (p *Publisher) PublishNotification(ctx context.Context, intent NotificationIntent) error {
	body, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("marshal intent: %w", err)
	}
	bodyStr := string(body)

	input := &sqs.SendMessageInput{
		QueueUrl:    &p.QueueURL,
		MessageBody: &bodyStr,
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"order_id": {
				DataType:    awsString("String"),
				StringValue: &intent.OrderID,
			},
			"idempotency_key": {
				DataType:    awsString("String"),
				StringValue: &intent.IdempotencyKey,
			},
		},
	}
	if intent.CorrelationID != "" {
		input.MessageAttributes["correlation_id"] = sqstypes.MessageAttributeValue{
			DataType:    awsString("String"),
			StringValue: &intent.CorrelationID,
		}
	}

	if _, err := p.SQS.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// awsString helper
func awsString(s string) *string { return &s }

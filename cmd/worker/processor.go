package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/aws/aws-lambda-go/events"

	internalaws "github.com/komugi/bakery-checkout/internal/aws"
	"github.com/komugi/bakery-checkout/internal/notify"
	"github.com/komugi/bakery-checkout/internal/orders"
)

// Processor consumes notification intents and delivers confirmation emails.
// Delivery is at-least-once from SQS; the notification_status transitions
// on the order make the effect exactly-once.
type Processor struct {
	orderStore *orders.Store
	mailer     *notify.Client
	metrics    *internalaws.MetricsRecorder
}

// NewProcessor creates a worker processor with its collaborators injected.
func NewProcessor(orderStore *orders.Store, mailer *notify.Client, metrics *internalaws.MetricsRecorder) *Processor {
	return &Processor{
		orderStore: orderStore,
		mailer:     mailer,
		metrics:    metrics,
	}
}

// Handle receives an SQS batch event and processes each message.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) error {
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			// Return error: Lambda will retry. After enough failures the
			// message lands in the DLQ.
			log.Printf("worker error: %v", err)
			return err
		}
	}
	return nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var intent internalaws.NotificationIntent
	if err := json.Unmarshal([]byte(rec.Body), &intent); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}

	log.Printf("[worker] received order=%s token=%s corr=%s",
		intent.OrderID, intent.OrderToken, intent.CorrelationID)

	order, err := p.orderStore.Get(ctx, intent.OrderID)
	if err != nil {
		return fmt.Errorf("failed to fetch order: %w", err)
	}
	if order == nil {
		// Should never happen: intents are enqueued after the commit.
		return fmt.Errorf("order not found: %s", intent.OrderID)
	}

	// Claim the notification: PENDING -> SENDING. A mismatch means another
	// delivery already handled (or is handling) this order.
	err = p.orderStore.UpdateNotificationStatus(ctx, intent.OrderID, orders.NotificationPending, orders.NotificationSending)
	if errors.Is(err, orders.ErrStatusMismatch) {
		current, _ := p.orderStore.Get(ctx, intent.OrderID)
		if current == nil {
			return fmt.Errorf("order vanished: %s", intent.OrderID)
		}
		switch current.NotificationStatus {
		case orders.NotificationSent:
			log.Printf("[worker] notification already sent for order=%s", intent.OrderID)
			return nil
		case orders.NotificationSending:
			log.Printf("[worker] duplicate delivery for order=%s", intent.OrderID)
			return nil
		case orders.NotificationFailed:
			return fmt.Errorf("order=%s notification is already FAILED", intent.OrderID)
		default:
			return fmt.Errorf("unexpected notification status for order=%s: %s", intent.OrderID, current.NotificationStatus)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to claim notification: %w", err)
	}

	lines, err := p.orderStore.GetLines(ctx, intent.OrderID)
	if err != nil {
		p.release(ctx, intent.OrderID)
		return fmt.Errorf("failed to fetch order lines: %w", err)
	}

	summary := notify.OrderSummary{
		OrderID:       order.OrderID,
		OrderToken:    order.OrderToken,
		Name:          order.Name,
		Email:         order.Email,
		Phone:         order.Phone,
		Address:       order.Address,
		PaymentMethod: order.PaymentMethod,
		TotalAmount:   order.Amount,
	}
	for _, ln := range lines {
		summary.Items = append(summary.Items, notify.Item{
			Name:     ln.ProductName,
			Price:    ln.Price,
			Quantity: ln.Quantity,
		})
	}

	if err := p.mailer.SendOrderConfirmation(ctx, summary); err != nil {
		_ = p.orderStore.IncrementAttempts(ctx, intent.OrderID)
		p.release(ctx, intent.OrderID)
		p.metrics.Count(ctx, internalaws.MetricNotificationErrors, 1, order.PaymentMethod)
		return fmt.Errorf("send confirmation for order=%s: %w", intent.OrderID, err)
	}

	if err := p.orderStore.UpdateNotificationStatus(ctx, intent.OrderID, orders.NotificationSending, orders.NotificationSent); err != nil {
		return fmt.Errorf("failed to mark notification sent: %w", err)
	}

	p.metrics.Count(ctx, internalaws.MetricNotificationsSent, 1, order.PaymentMethod)
	log.Printf("[worker] confirmation sent for order=%s", intent.OrderID)
	return nil
}

// release puts a claimed notification back to PENDING so a retry can pick
// it up. Best-effort: if it fails the SENDING row is recovered on the next
// status inspection.
func (p *Processor) release(ctx context.Context, orderID string) {
	if err := p.orderStore.UpdateNotificationStatus(ctx, orderID, orders.NotificationSending, orders.NotificationPending); err != nil {
		log.Printf("[worker] release notification claim for order=%s: %v", orderID, err)
	}
}

package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	internalaws "github.com/komugi/bakery-checkout/internal/aws"
	"github.com/komugi/bakery-checkout/internal/notify"
	"github.com/komugi/bakery-checkout/internal/orders"
)

func main() {
	clients, err := internalaws.NewAWSClients(context.Background())
	if err != nil {
		log.Fatalf("failed to init aws clients: %v", err)
	}

	orderStore := orders.NewStore(clients.DynamoDB, os.Getenv("ORDERS_TABLE"), os.Getenv("ORDER_LINES_TABLE"))
	mailer := notify.NewClient(nil, os.Getenv("RESEND_ENDPOINT"), os.Getenv("RESEND_API_KEY"), os.Getenv("EMAIL_FROM"))
	metrics := internalaws.NewMetricsRecorder(clients.CloudWatch, envOr("METRICS_NAMESPACE", "BakeryCheckout"))

	processor := NewProcessor(orderStore, mailer, metrics)

	// If RUN_LOCAL=true, simulate a single SQS event for local testing.
	if os.Getenv("RUN_LOCAL") == "true" {
		testBody := os.Getenv("LOCAL_SQS_BODY")
		if testBody == "" {
			testBody = `{"order_id":"local-order-1","order_token":"LOCALTOKEN01","idempotency_key":"local-key-1"}`
		}
		event := events.SQSEvent{
			Records: []events.SQSMessage{
				{Body: testBody},
			},
		}
		if err := processor.Handle(context.Background(), event); err != nil {
			log.Fatalf("local handler error: %v", err)
		}
		return
	}

	lambda.Start(processor.Handle)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Package staging persists the checkout snapshot handed from the checkout
// form to the workflow engine. The store is a serialization boundary only:
// flows read the snapshot once on entry and the engine deletes it on a
// successful terminal transition.
package staging

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/komugi/bakery-checkout/internal/aws"
	"github.com/komugi/bakery-checkout/internal/cart"
	"github.com/komugi/bakery-checkout/internal/orders"
)

// Stage keys, one per checkout path.
const (
	KeyPickup       = "pickup_order_data"
	KeyDelivery     = "delivery_order_data"
	KeyPickupOnline = "pickup_online_order_data"
)

// CustomerInfo is the contact/delivery info collected once per checkout.
type CustomerInfo struct {
	Name         string `dynamodbav:"name" json:"name"`
	Email        string `dynamodbav:"email" json:"email"`
	Phone        string `dynamodbav:"phone" json:"phone"`
	Address      string `dynamodbav:"address" json:"address"`
	Instructions string `dynamodbav:"instructions,omitempty" json:"instructions,omitempty"`
}

// StagedCheckout is the immutable snapshot staged between checkout steps.
type StagedCheckout struct {
	StagingKey  string             `dynamodbav:"staging_key"` // PK: <session>#<stage key>
	SessionID   string             `dynamodbav:"session_id"`
	StageKey    string             `dynamodbav:"stage_key"`
	Customer    CustomerInfo       `dynamodbav:"customer"`
	Lines       []cart.Line        `dynamodbav:"lines"`
	Fulfillment orders.Fulfillment `dynamodbav:"fulfillment"`
	Total       int64              `dynamodbav:"total"` // incl. delivery charge
	CreatedAt   time.Time          `dynamodbav:"created_at"`
	ExpiresAt   int64              `dynamodbav:"expires_at"` // TTL epoch seconds
}

// Store persists staged checkouts in DynamoDB with a TTL.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	ttlWindow time.Duration
	nowFunc   func() time.Time
}

// NewStore returns a Store. ttlWindow bounds how long an abandoned
// checkout lingers before DynamoDB TTL reaps it.
func NewStore(client aws.DynamoDBAPI, tableName string, ttlWindow time.Duration) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		ttlWindow: ttlWindow,
		nowFunc:   time.Now,
	}
}

func stagingKey(sessionID, stageKey string) string {
	return sessionID + "#" + stageKey
}

// Put stages a snapshot under session+stage, overwriting any previous one.
func (s *Store) Put(ctx context.Context, sessionID, stageKey string, staged StagedCheckout) error {
	now := s.nowFunc()
	staged.StagingKey = stagingKey(sessionID, stageKey)
	staged.SessionID = sessionID
	staged.StageKey = stageKey
	staged.CreatedAt = now
	staged.ExpiresAt = now.Add(s.ttlWindow).Unix()

	item, err := attributevalue.MarshalMap(staged)
	if err != nil {
		return fmt.Errorf("marshal staged checkout: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put staged checkout: %w", err)
	}
	return nil
}

// Get loads the snapshot for session+stage. Returns (nil, nil) when absent,
// which flows treat as the redirect-to-catalog terminal.
func (s *Store) Get(ctx context.Context, sessionID, stageKey string) (*StagedCheckout, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"staging_key": &types.AttributeValueMemberS{Value: stagingKey(sessionID, stageKey)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get staged checkout: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var staged StagedCheckout
	if err := attributevalue.UnmarshalMap(out.Item, &staged); err != nil {
		return nil, fmt.Errorf("unmarshal staged checkout: %w", err)
	}
	return &staged, nil
}

// Delete removes the snapshot. No-op if absent.
func (s *Store) Delete(ctx context.Context, sessionID, stageKey string) error {
	_, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"staging_key": &types.AttributeValueMemberS{Value: stagingKey(sessionID, stageKey)},
		},
	})
	if err != nil {
		return fmt.Errorf("delete staged checkout: %w", err)
	}
	return nil
}

// Restage moves a snapshot to a different stage key, e.g. from the pickup
// payment-selection step to the pickup-online proof step.
func (s *Store) Restage(ctx context.Context, sessionID, fromKey, toKey string, mutate func(*StagedCheckout)) (*StagedCheckout, error) {
	staged, err := s.Get(ctx, sessionID, fromKey)
	if err != nil {
		return nil, err
	}
	if staged == nil {
		return nil, nil
	}
	if mutate != nil {
		mutate(staged)
	}
	if err := s.Put(ctx, sessionID, toKey, *staged); err != nil {
		return nil, err
	}
	if err := s.Delete(ctx, sessionID, fromKey); err != nil {
		return nil, err
	}
	reloaded := *staged
	reloaded.StageKey = toKey
	reloaded.StagingKey = stagingKey(sessionID, toKey)
	return &reloaded, nil
}

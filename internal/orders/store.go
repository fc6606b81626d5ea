package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/komugi/bakery-checkout/internal/aws"
)

// TokenIndex is the GSI that resolves an order token to its order.
const TokenIndex = "order_token-index"

var (
	// ErrIdempotencyConflict means the submit transaction was canceled
	// because the idempotency key already exists.
	ErrIdempotencyConflict = errors.New("idempotency key already exists")

	// ErrStatusMismatch means a conditional status transition failed.
	ErrStatusMismatch = errors.New("status mismatch/conditional failed")
)

// Store encapsulates operations on the orders and order-lines tables.
type Store struct {
	client    aws.DynamoDBAPI
	ordersTbl string
	linesTbl  string
	nowFunc   func() time.Time
}

// NewStore creates a new orders Store.
func NewStore(client aws.DynamoDBAPI, ordersTable, linesTable string) *Store {
	return &Store{
		client:    client,
		ordersTbl: ordersTable,
		linesTbl:  linesTable,
		nowFunc:   time.Now,
	}
}

// Submit atomically creates the idempotency record, the order header and
// every order line in a single TransactWriteItems call. A failure leaves no
// partial order behind: either all rows land or none do.
//
// idempotencyItem must carry an idempotency_key attribute; a TTL is added
// when missing. Returns ErrIdempotencyConflict when the key already exists.
func (s *Store) Submit(ctx context.Context, idempotencyTable string, idempotencyItem interface{}, order Order, lines []Line, ttlWindow time.Duration) error {
	idempMap, err := attributevalue.MarshalMap(idempotencyItem)
	if err != nil {
		return fmt.Errorf("marshal idempotency item: %w", err)
	}
	if _, ok := idempMap["expires_at"]; !ok && ttlWindow > 0 {
		expires := s.nowFunc().Add(ttlWindow).Unix()
		idempMap["expires_at"] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expires)}
	}

	now := s.nowFunc()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	if order.NotificationStatus == "" {
		order.NotificationStatus = NotificationPending
	}

	orderMap, err := attributevalue.MarshalMap(order)
	if err != nil {
		return fmt.Errorf("marshal order item: %w", err)
	}

	transactItems := []types.TransactWriteItem{
		{
			Put: &types.Put{
				TableName:           &idempotencyTable,
				Item:                idempMap,
				ConditionExpression: awsString("attribute_not_exists(idempotency_key)"),
			},
		},
		{
			Put: &types.Put{
				TableName:           &s.ordersTbl,
				Item:                orderMap,
				ConditionExpression: awsString("attribute_not_exists(order_id)"),
			},
		},
	}

	for i, ln := range lines {
		ln.OrderID = order.OrderID
		ln.LineNo = i + 1
		lineMap, err := attributevalue.MarshalMap(ln)
		if err != nil {
			return fmt.Errorf("marshal line %d: %w", i+1, err)
		}
		transactItems = append(transactItems, types.TransactWriteItem{
			Put: &types.Put{
				TableName: &s.linesTbl,
				Item:      lineMap,
			},
		})
	}

	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems: transactItems,
	})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			return fmt.Errorf("%w: %v", ErrIdempotencyConflict, err)
		}
		return fmt.Errorf("transact write: %w", err)
	}
	return nil
}

// Get fetches an order by order_id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.ordersTbl,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// GetByToken resolves an order through the token GSI.
// Returns (nil, nil) if the token matches nothing.
func (s *Store) GetByToken(ctx context.Context, token string) (*Order, error) {
	idx := TokenIndex
	out, err := s.client.Query(ctx, &dyn.QueryInput{
		TableName:              &s.ordersTbl,
		IndexName:              &idx,
		KeyConditionExpression: awsString("order_token = :t"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t": &types.AttributeValueMemberS{Value: token},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("query token index: %w", err)
	}
	if len(out.Items) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Items[0], &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// GetLines fetches the order lines in line_no order.
func (s *Store) GetLines(ctx context.Context, orderID string) ([]Line, error) {
	out, err := s.client.Query(ctx, &dyn.QueryInput{
		TableName:              &s.linesTbl,
		KeyConditionExpression: awsString("order_id = :o"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":o": &types.AttributeValueMemberS{Value: orderID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("query lines: %w", err)
	}
	lines := make([]Line, 0, len(out.Items))
	for _, item := range out.Items {
		var ln Line
		if err := attributevalue.UnmarshalMap(item, &ln); err != nil {
			return nil, fmt.Errorf("unmarshal line: %w", err)
		}
		lines = append(lines, ln)
	}
	return lines, nil
}

// SubmitProof patches the existing order with the uploaded proof: sets
// payment_status=paid, the proof URL and the submission timestamp. The
// transition is conditional on pending_verification so a stale resume
// cannot clobber a verified or expired order. Returns ErrStatusMismatch
// when the condition fails.
func (s *Store) SubmitProof(ctx context.Context, orderID, proofURL string, submittedAt time.Time) error {
	now := s.nowFunc()
	input := &dyn.UpdateItemInput{
		TableName: &s.ordersTbl,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		UpdateExpression:         awsString("SET #s = :paid, payment_proof_url = :pu, payment_proof_submitted_at = :pt, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{"#s": "payment_status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":paid":     &types.AttributeValueMemberS{Value: PaymentStatusPaid},
			":pu":       &types.AttributeValueMemberS{Value: proofURL},
			":pt":       &types.AttributeValueMemberS{Value: submittedAt.Format(time.RFC3339)},
			":ua":       &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
			":expected": &types.AttributeValueMemberS{Value: PaymentStatusPendingVerification},
		},
		ConditionExpression: awsString("#s = :expected"),
	}
	_, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return ErrStatusMismatch
		}
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// UpdateNotificationStatus conditionally moves notification_status from
// expected to newStatus. Returns ErrStatusMismatch when the order is not in
// the expected state, which the worker uses to swallow duplicate deliveries.
func (s *Store) UpdateNotificationStatus(ctx context.Context, orderID, expectedStatus, newStatus string) error {
	now := s.nowFunc()
	input := &dyn.UpdateItemInput{
		TableName: &s.ordersTbl,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		UpdateExpression:         awsString("SET #n = :new, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{"#n": "notification_status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":new":      &types.AttributeValueMemberS{Value: newStatus},
			":ua":       &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
			":expected": &types.AttributeValueMemberS{Value: expectedStatus},
		},
		ConditionExpression: awsString("#n = :expected"),
	}
	_, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return ErrStatusMismatch
		}
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// IncrementAttempts increases the delivery attempts counter by 1.
func (s *Store) IncrementAttempts(ctx context.Context, orderID string) error {
	now := s.nowFunc()
	input := &dyn.UpdateItemInput{
		TableName: &s.ordersTbl,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		UpdateExpression: awsString("SET attempts = if_not_exists(attempts, :zero) + :inc, updated_at = :ua"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":zero": &types.AttributeValueMemberN{Value: "0"},
			":inc":  &types.AttributeValueMemberN{Value: "1"},
			":ua":   &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	}
	_, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		return fmt.Errorf("increment attempts: %w", err)
	}
	return nil
}

func awsString(s string) *string { return &s }

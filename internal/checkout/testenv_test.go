package checkout

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	internalaws "github.com/komugi/bakery-checkout/internal/aws"
	"github.com/komugi/bakery-checkout/internal/idempotency"
	"github.com/komugi/bakery-checkout/internal/orders"
	"github.com/komugi/bakery-checkout/internal/proofs"
	"github.com/komugi/bakery-checkout/internal/staging"
)

// memDynamo is an in-memory multi-table DynamoDB fake shared by the engine
// tests. It implements just the calls the real stores issue.
type memDynamo struct {
	mu     sync.Mutex
	tables map[string]map[string]map[string]types.AttributeValue
}

func newMemDynamo() *memDynamo {
	return &memDynamo{tables: map[string]map[string]map[string]types.AttributeValue{}}
}

func (m *memDynamo) ensureTable(tbl string) {
	if _, ok := m.tables[tbl]; !ok {
		m.tables[tbl] = map[string]map[string]types.AttributeValue{}
	}
}

func memPK(item map[string]types.AttributeValue) (string, error) {
	if v, ok := item["line_no"]; ok {
		no := v.(*types.AttributeValueMemberN).Value
		return item["order_id"].(*types.AttributeValueMemberS).Value + "#" + no, nil
	}
	for _, attr := range []string{"idempotency_key", "staging_key", "order_id"} {
		if v, ok := item[attr]; ok {
			return v.(*types.AttributeValueMemberS).Value, nil
		}
	}
	return "", errors.New("no primary key in item")
}

func (m *memDynamo) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	table := *params.TableName
	m.ensureTable(table)
	pk, err := memPK(params.Item)
	if err != nil {
		return nil, err
	}
	if params.ConditionExpression != nil && strings.HasPrefix(*params.ConditionExpression, "attribute_not_exists") {
		if _, exists := m.tables[table][pk]; exists {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	m.tables[table][pk] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *memDynamo) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	table := *params.TableName
	m.ensureTable(table)
	pk, err := memPK(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.tables[table][pk]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *memDynamo) DeleteItem(ctx context.Context, params *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	table := *params.TableName
	m.ensureTable(table)
	pk, err := memPK(params.Key)
	if err != nil {
		return nil, err
	}
	delete(m.tables[table], pk)
	return &dyn.DeleteItemOutput{}, nil
}

func (m *memDynamo) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	table := *params.TableName
	m.ensureTable(table)
	pk, err := memPK(params.Key)
	if err != nil {
		return nil, err
	}
	item, exists := m.tables[table][pk]
	if !exists {
		return nil, errors.New("item not found")
	}
	if params.ConditionExpression != nil && strings.HasSuffix(*params.ConditionExpression, "= :expected") {
		var attr string
		for alias, name := range params.ExpressionAttributeNames {
			if strings.HasPrefix(*params.ConditionExpression, alias) {
				attr = name
			}
		}
		expected := params.ExpressionAttributeValues[":expected"].(*types.AttributeValueMemberS).Value
		curr, ok := item[attr].(*types.AttributeValueMemberS)
		if !ok || curr.Value != expected {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	if v, ok := params.ExpressionAttributeValues[":new"]; ok {
		item[params.ExpressionAttributeNames["#n"]] = v
	}
	if v, ok := params.ExpressionAttributeValues[":paid"]; ok {
		item["payment_status"] = v
	}
	if v, ok := params.ExpressionAttributeValues[":pu"]; ok {
		item["payment_proof_url"] = v
	}
	if v, ok := params.ExpressionAttributeValues[":pt"]; ok {
		item["payment_proof_submitted_at"] = v
	}
	if v, ok := params.ExpressionAttributeValues[":ua"]; ok {
		item["updated_at"] = v
	}
	m.tables[table][pk] = item
	return &dyn.UpdateItemOutput{Attributes: item}, nil
}

func (m *memDynamo) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	table := *params.TableName
	m.ensureTable(table)

	var attr, want string
	switch *params.KeyConditionExpression {
	case "order_token = :t":
		attr = "order_token"
		want = params.ExpressionAttributeValues[":t"].(*types.AttributeValueMemberS).Value
	case "order_id = :o":
		attr = "order_id"
		want = params.ExpressionAttributeValues[":o"].(*types.AttributeValueMemberS).Value
	default:
		return nil, fmt.Errorf("unsupported key condition: %s", *params.KeyConditionExpression)
	}

	var keys []string
	for pk, item := range m.tables[table] {
		if v, ok := item[attr].(*types.AttributeValueMemberS); ok && v.Value == want {
			keys = append(keys, pk)
		}
	}
	sort.Strings(keys)
	out := &dyn.QueryOutput{}
	for _, pk := range keys {
		out.Items = append(out.Items, m.tables[table][pk])
	}
	return out, nil
}

func (m *memDynamo) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range params.TransactItems {
		p := it.Put
		if p == nil {
			continue
		}
		if p.ConditionExpression != nil && strings.HasPrefix(*p.ConditionExpression, "attribute_not_exists") {
			table := *p.TableName
			m.ensureTable(table)
			pk, err := memPK(p.Item)
			if err != nil {
				return nil, err
			}
			if _, exists := m.tables[table][pk]; exists {
				return nil, &types.TransactionCanceledException{}
			}
		}
	}
	for _, it := range params.TransactItems {
		p := it.Put
		if p == nil {
			continue
		}
		table := *p.TableName
		m.ensureTable(table)
		pk, err := memPK(p.Item)
		if err != nil {
			return nil, err
		}
		m.tables[table][pk] = p.Item
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

// fakeSQS records every message body sent to the outbox.
type fakeSQS struct {
	mu     sync.Mutex
	bodies []string
	err    error
}

func (f *fakeSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.bodies = append(f.bodies, *params.MessageBody)
	return &sqs.SendMessageOutput{}, nil
}

func (f *fakeSQS) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.bodies))
	copy(out, f.bodies)
	return out
}

// fakeS3 records uploaded keys.
type fakeS3 struct {
	mu   sync.Mutex
	keys []string
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if params.Body != nil {
		io.Copy(io.Discard, params.Body)
	}
	f.keys = append(f.keys, *params.Key)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) uploads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.keys)
}

// fakeCloudWatch accepts and drops every datum.
type fakeCloudWatch struct{}

func (fakeCloudWatch) PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	return &cloudwatch.PutMetricDataOutput{}, nil
}

// testEnv bundles an engine over the in-memory fakes with deterministic
// time, ids and tokens.
type testEnv struct {
	db      *memDynamo
	sqs     *fakeSQS
	s3      *fakeS3
	engine  *Engine
	orders  *orders.Store
	staging *staging.Store
	now     time.Time
}

func newTestEnv() *testEnv {
	db := newMemDynamo()
	sq := &fakeSQS{}
	st := &fakeS3{}

	ordersStore := orders.NewStore(db, "orders", "order-lines")
	idempStore := idempotency.NewStore(db, "idempotency", 48*time.Hour)
	stagingStore := staging.NewStore(db, "staging", time.Hour)

	env := &testEnv{
		db:      db,
		sqs:     sq,
		s3:      st,
		orders:  ordersStore,
		staging: stagingStore,
		now:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	eng := NewEngine(Config{
		Orders:           ordersStore,
		Idempotency:      idempStore,
		Staging:          stagingStore,
		Uploader:         proofs.NewUploader(st, "proof-bucket", "https://proof-bucket.s3.amazonaws.com"),
		Outbox:           internalaws.NewPublisher(sq, "https://sqs.example.com/notifications"),
		Metrics:          internalaws.NewMetricsRecorder(fakeCloudWatch{}, "BakeryCheckoutTest"),
		IdempotencyTable: "idempotency",
		TTLWindow:        48 * time.Hour,
	})
	eng.nowFunc = func() time.Time { return env.now }
	idSeq, tokSeq := 0, 0
	eng.newID = func() string {
		idSeq++
		return fmt.Sprintf("order-%d", idSeq)
	}
	eng.newTok = func() string {
		tokSeq++
		return fmt.Sprintf("TOK%09d", tokSeq)
	}
	env.engine = eng
	return env
}

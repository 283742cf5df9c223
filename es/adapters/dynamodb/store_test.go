package dynamostore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getpup/pupstream/es"
	"github.com/getpup/pupstream/es/eventstore"
	"github.com/getpup/pupstream/es/store"
	"github.com/getpup/pupstream/es/store/storetest"
)

// fakeDynamo evaluates the handful of expressions the store issues.
type fakeDynamo struct {
	mu       sync.Mutex
	items    map[string]map[string]types.AttributeValue
	pageSize int
	tables   []string
	txErr    error
	queries  int

	// consistent records ConsistentRead of every GetItem and Query.
	consistent []bool
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: map[string]map[string]types.AttributeValue{}, pageSize: 2}
}

func itemKey(key map[string]types.AttributeValue) string {
	pk := key[attrPartitionKey].(*types.AttributeValueMemberS).Value
	id := key[attrID].(*types.AttributeValueMemberS).Value
	return pk + "\x00" + id
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.consistent = append(f.consistent, aws.ToBool(in.ConsistentRead))
	return &dynamodb.GetItemOutput{Item: f.items[itemKey(in.Key)]}, nil
}

func (f *fakeDynamo) check(expr *string, values map[string]types.AttributeValue, current map[string]types.AttributeValue) bool {
	switch aws.ToString(expr) {
	case "":
		return true
	case "attribute_not_exists(#id)":
		return current == nil
	case "#token = :token":
		if current == nil {
			return false
		}
		return current[attrToken].(*types.AttributeValueMemberS).Value == values[":token"].(*types.AttributeValueMemberS).Value
	default:
		panic("unexpected condition " + aws.ToString(expr))
	}
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.txErr != nil {
		err := f.txErr
		f.txErr = nil
		return nil, err
	}

	reasons := make([]types.CancellationReason, len(in.TransactItems))
	failed := false
	for i, ti := range in.TransactItems {
		reasons[i].Code = aws.String("None")
		var ok bool
		switch {
		case ti.Put != nil:
			ok = f.check(ti.Put.ConditionExpression, ti.Put.ExpressionAttributeValues, f.items[itemKey(ti.Put.Item)])
		case ti.ConditionCheck != nil:
			ok = f.check(ti.ConditionCheck.ConditionExpression, ti.ConditionCheck.ExpressionAttributeValues, f.items[itemKey(ti.ConditionCheck.Key)])
		}
		if !ok {
			reasons[i].Code = aws.String(reasonConditionalCheckFailed)
			failed = true
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             aws.String("Transaction cancelled"),
			CancellationReasons: reasons,
		}
	}
	for _, ti := range in.TransactItems {
		if ti.Put != nil {
			f.items[itemKey(ti.Put.Item)] = ti.Put.Item
		}
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	f.consistent = append(f.consistent, aws.ToBool(in.ConsistentRead))

	v := in.ExpressionAttributeValues
	pk := v[":pk"].(*types.AttributeValueMemberS).Value
	prefix := v[":prefix"].(*types.AttributeValueMemberS).Value
	lo, _ := strconv.ParseInt(v[":min"].(*types.AttributeValueMemberN).Value, 10, 64)
	hi, _ := strconv.ParseInt(v[":max"].(*types.AttributeValueMemberN).Value, 10, 64)

	var keys []string
	for k := range f.items {
		if strings.HasPrefix(k, pk+"\x00"+prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if in.ExclusiveStartKey != nil {
		start := itemKey(in.ExclusiveStartKey)
		i := sort.SearchStrings(keys, start)
		if i < len(keys) && keys[i] == start {
			i++
		}
		keys = keys[i:]
	}

	out := &dynamodb.QueryOutput{}
	if len(keys) > f.pageSize {
		keys = keys[:f.pageSize]
		last := f.items[keys[len(keys)-1]]
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			attrPartitionKey: last[attrPartitionKey],
			attrID:           last[attrID],
		}
	}
	for _, k := range keys {
		item := f.items[k]
		ver, _ := strconv.ParseInt(item[attrVersion].(*types.AttributeValueMemberN).Value, 10, 64)
		if ver >= lo && ver <= hi {
			out.Items = append(out.Items, item)
		}
	}
	return out, nil
}

func (f *fakeDynamo) CreateTable(_ context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tables {
		if t == aws.ToString(in.TableName) {
			return nil, &types.ResourceInUseException{Message: aws.String("table exists")}
		}
	}
	f.tables = append(f.tables, aws.ToString(in.TableName))
	return &dynamodb.CreateTableOutput{}, nil
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.DocumentStore {
		return NewStore(newFakeDynamo(), DefaultStoreConfig())
	})
}

func TestStoreConfig_ReadConsistency(t *testing.T) {
	tests := []struct {
		name   string
		config StoreConfig
		want   bool
	}{
		{"zero value", StoreConfig{}, true},
		{"default", DefaultStoreConfig(), true},
		{"eventual", NewStoreConfig(WithEventualConsistency()), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			fake := newFakeDynamo()
			s := NewStore(fake, tt.config)

			_, _, err := s.PointRead(ctx, "s", "s")
			require.NoError(t, err)
			_, err = s.RangeQuery(ctx, store.RangeQuery{PartitionKey: "s", StreamID: "s", MaxVersion: store.MaxVersion})
			require.NoError(t, err)
			assert.Equal(t, []bool{tt.want, tt.want}, fake.consistent)
		})
	}
}

func TestCreateTable_Idempotent(t *testing.T) {
	fake := newFakeDynamo()
	s := NewStore(fake, NewStoreConfig(WithTable("orders")))
	require.NoError(t, s.CreateTable(context.Background()))
	require.NoError(t, s.CreateTable(context.Background()))
	assert.Equal(t, []string{"orders"}, fake.tables)
}

func TestBuildTransaction(t *testing.T) {
	s := NewStore(newFakeDynamo(), DefaultStoreConfig())

	t.Run("condition on header put", func(t *testing.T) {
		docs := []es.Document{
			es.NewEventDocument("s", "p", 2, nil, es.Payload{Type: "E"}),
			es.NewHeaderDocument("s", "p", 2, nil),
		}
		in, err := s.buildTransaction("p", store.MustMatch("s", "tok"), docs)
		require.NoError(t, err)
		require.Len(t, in.TransactItems, 2)
		assert.Equal(t, "attribute_not_exists(#id)", aws.ToString(in.TransactItems[0].Put.ConditionExpression))
		assert.Equal(t, "#token = :token", aws.ToString(in.TransactItems[1].Put.ConditionExpression))
	})

	t.Run("condition check when header is not written", func(t *testing.T) {
		docs := []es.Document{es.NewSnapshotDocument("s", "p", 2, es.Payload{Type: "S"}, nil)}
		in, err := s.buildTransaction("p", store.MustMatch("s", "tok"), docs)
		require.NoError(t, err)
		require.Len(t, in.TransactItems, 2)
		assert.Nil(t, in.TransactItems[0].Put.ConditionExpression)
		require.NotNil(t, in.TransactItems[1].ConditionCheck)
		assert.Equal(t, "#token = :token", aws.ToString(in.TransactItems[1].ConditionCheck.ConditionExpression))
	})

	t.Run("too many items", func(t *testing.T) {
		docs := make([]es.Document, 0, MaxBatchSize+1)
		for v := int64(1); v <= MaxBatchSize; v++ {
			docs = append(docs, es.NewEventDocument("s", "p", v, nil, es.Payload{Type: "E"}))
		}
		docs = append(docs, es.NewHeaderDocument("s", "p", MaxBatchSize, nil))
		_, err := s.buildTransaction("p", store.MustBeAbsent("s"), docs)
		assert.Error(t, err)
	})
}

func TestRangeQuery_Paginates(t *testing.T) {
	fake := newFakeDynamo()
	s := NewStore(fake, DefaultStoreConfig())
	st := eventstore.New(s, eventstore.DefaultStoreConfig())

	events := make([]es.EventData, 7)
	for i := range events {
		events[i] = es.EventData{Body: es.Payload{Type: "E", Data: []byte(fmt.Sprint(i))}}
	}
	_, err := st.Append(context.Background(), "s", es.NoStream(), events)
	require.NoError(t, err)

	fake.queries = 0
	docs, err := s.RangeQuery(context.Background(), store.RangeQuery{PartitionKey: "s", StreamID: "s", MinVersion: 3, MaxVersion: store.MaxVersion})
	require.NoError(t, err)
	assert.Len(t, docs, 5)
	assert.Greater(t, fake.queries, 1)
}

func TestClassify(t *testing.T) {
	canceled := func(codes ...string) error {
		reasons := make([]types.CancellationReason, len(codes))
		for i, c := range codes {
			reasons[i].Code = aws.String(c)
		}
		return &types.TransactionCanceledException{Message: aws.String("cancelled"), CancellationReasons: reasons}
	}

	tests := []struct {
		name      string
		err       error
		conflict  bool
		transient bool
	}{
		{name: "condition failed", err: canceled("None", reasonConditionalCheckFailed), conflict: true},
		{name: "transaction conflict", err: canceled(reasonTransactionConflict, "None"), transient: true},
		{name: "throttled transaction", err: canceled(reasonThrottling), transient: true},
		{name: "validation", err: canceled("ValidationError")},
		{name: "throughput", err: &types.ProvisionedThroughputExceededException{}, transient: true},
		{name: "request limit", err: &types.RequestLimitExceeded{}, transient: true},
		{name: "internal", err: &types.InternalServerError{}, transient: true},
		{name: "throttling api error", err: &smithy.GenericAPIError{Code: "ThrottlingException"}, transient: true},
		{name: "other api error", err: &smithy.GenericAPIError{Code: "AccessDeniedException"}},
		{name: "plain", err: errors.New("boom")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			assert.Equal(t, tt.conflict, errors.Is(got, store.ErrOptimisticConcurrency))
			assert.Equal(t, tt.transient, store.IsTransient(got))
		})
	}
	assert.NoError(t, classify(nil))
}

func TestTransientTransactionIsRetried(t *testing.T) {
	fake := newFakeDynamo()
	fake.txErr = &types.TransactionCanceledException{
		Message:             aws.String("cancelled"),
		CancellationReasons: []types.CancellationReason{{Code: aws.String(reasonTransactionConflict)}},
	}
	st := eventstore.New(NewStore(fake, DefaultStoreConfig()), eventstore.DefaultStoreConfig())

	v, err := st.Append(context.Background(), "s", es.NoStream(), []es.EventData{{Body: es.Payload{Type: "E"}}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestItemRoundTrip(t *testing.T) {
	d := es.NewSnapshotDocument("s", "p", 4, es.Payload{Type: "State", Data: []byte{0, 1, 2}}, es.NewPayload("M", nil))
	got, err := decodeItem(encodeItem(&d, "tok"))
	require.NoError(t, err)
	assert.Equal(t, "tok", got.Token)
	assert.Equal(t, d.ID, got.ID)
	assert.True(t, d.Data.Equal(got.Data))
	require.NotNil(t, got.Metadata)
	assert.Equal(t, "M", got.Metadata.Type)

	_, err = decodeItem(map[string]types.AttributeValue{
		attrPartitionKey: &types.AttributeValueMemberS{Value: "p"},
		attrID:           &types.AttributeValueMemberS{Value: "s~1"},
	})
	assert.Error(t, err)
}

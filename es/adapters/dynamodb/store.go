// Package dynamostore provides an Amazon DynamoDB document store for the event store.
//
// All documents live in one table keyed by the partition key (hash key "pk")
// and the document id (range key "id"). Batch writes are a single
// TransactWriteItems call: the condition document carries a condition
// expression on its token, event documents require attribute_not_exists,
// and headers and snapshots are plain puts.
//
// Stream ids never contain the id separator, so every event and snapshot id of
// a stream starts with "<stream>~". Range queries use that prefix as the key
// condition and filter on version.
package dynamostore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/getpup/pupstream/es"
	"github.com/getpup/pupstream/es/store"
)

// MaxBatchSize is the largest number of items a DynamoDB transaction accepts.
const MaxBatchSize = 100

const (
	attrPartitionKey = "pk"
	attrID           = "id"
	attrStreamID     = "stream_id"
	attrType         = "doc_type"
	attrVersion      = "version"
	attrToken        = "token"
	attrMetadataType = "metadata_type"
	attrMetadata     = "metadata"
	attrPayloadType  = "payload_type"
	attrPayload      = "payload"
)

// API is the subset of the DynamoDB client the store uses.
// *dynamodb.Client satisfies it.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// StoreConfig contains configuration for the DynamoDB document store.
type StoreConfig struct {
	// Logger is an optional logger for observability.
	// If nil, logging is disabled.
	Logger es.Logger

	// Table is the name of the documents table.
	Table string

	// EventuallyConsistent switches point reads and queries to eventually
	// consistent reads. A stale header read turns an append into a conflict.
	EventuallyConsistent bool

	// NewToken generates concurrency tokens. Defaults to random UUIDs.
	NewToken func() string
}

// DefaultTable is the table used when StoreConfig.Table is empty.
const DefaultTable = "stream_documents"

// DefaultStoreConfig returns the default configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Table: DefaultTable,
	}
}

// StoreOption is a functional option for configuring a Store.
type StoreOption func(*StoreConfig)

// WithLogger sets a logger for the store.
func WithLogger(logger es.Logger) StoreOption {
	return func(c *StoreConfig) {
		c.Logger = logger
	}
}

// WithTable sets a custom table name.
func WithTable(table string) StoreOption {
	return func(c *StoreConfig) {
		c.Table = table
	}
}

// WithEventualConsistency switches reads to eventually consistent.
func WithEventualConsistency() StoreOption {
	return func(c *StoreConfig) {
		c.EventuallyConsistent = true
	}
}

// NewStoreConfig creates a new store configuration with functional options.
func NewStoreConfig(opts ...StoreOption) StoreConfig {
	config := DefaultStoreConfig()
	for _, opt := range opts {
		opt(&config)
	}
	return config
}

// Store is a DynamoDB-backed store.DocumentStore.
type Store struct {
	client   API
	logger   es.Logger
	newToken func() string
	table    string
	config   StoreConfig
}

var _ store.DocumentStore = (*Store)(nil)

// NewStore creates a DynamoDB document store.
func NewStore(client API, config StoreConfig) *Store {
	newToken := config.NewToken
	if newToken == nil {
		newToken = uuid.NewString
	}
	if config.Table == "" {
		config.Table = DefaultTable
	}
	return &Store{
		client:   client,
		logger:   es.LoggerOrNoOp(config.Logger),
		newToken: newToken,
		table:    config.Table,
		config:   config,
	}
}

// CreateTable creates the documents table with on-demand billing.
// An existing table is not an error.
func (s *Store) CreateTable(ctx context.Context) error {
	_, err := s.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(s.table),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(attrPartitionKey), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(attrID), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(attrPartitionKey), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(attrID), KeyType: types.KeyTypeRange},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	var inUse *types.ResourceInUseException
	if errors.As(err, &inUse) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create table %s: %w", s.table, classify(err))
	}
	return nil
}

func keyOf(partitionKey, id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrPartitionKey: &types.AttributeValueMemberS{Value: partitionKey},
		attrID:           &types.AttributeValueMemberS{Value: id},
	}
}

// PointRead implements store.DocumentStore.
func (s *Store) PointRead(ctx context.Context, partitionKey, id string) (es.Document, bool, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            keyOf(partitionKey, id),
		ConsistentRead: aws.Bool(!s.config.EventuallyConsistent),
	})
	if err != nil {
		return es.Document{}, false, fmt.Errorf("get item %q: %w", id, classify(err))
	}
	if len(out.Item) == 0 {
		return es.Document{}, false, nil
	}
	d, err := decodeItem(out.Item)
	if err != nil {
		return es.Document{}, false, err
	}
	return d, true, nil
}

// ConditionalBatchWrite implements store.DocumentStore.
func (s *Store) ConditionalBatchWrite(ctx context.Context, partitionKey string, cond store.Condition, docs []es.Document) error {
	if err := store.ValidateBatch(partitionKey, docs); err != nil {
		return err
	}
	input, err := s.buildTransaction(partitionKey, cond, docs)
	if err != nil {
		return err
	}
	if _, err := s.client.TransactWriteItems(ctx, input); err != nil {
		return classify(err)
	}
	s.logger.Debug(ctx, "transaction committed",
		"partition_key", partitionKey,
		"item_count", len(input.TransactItems))
	return nil
}

// buildTransaction maps a batch to transaction items. The condition document
// gets its condition on its own put, or a ConditionCheck when the batch does
// not write it, since a transaction may touch an item only once.
func (s *Store) buildTransaction(partitionKey string, cond store.Condition, docs []es.Document) (*dynamodb.TransactWriteItemsInput, error) {
	items := make([]types.TransactWriteItem, 0, len(docs)+1)
	condWritten := false
	for i := range docs {
		d := &docs[i]
		put := &types.Put{
			TableName: aws.String(s.table),
			Item:      encodeItem(d, s.newToken()),
		}
		switch {
		case d.ID == cond.DocumentID:
			condWritten = true
			applyCondition(put, cond)
		case d.Type == es.DocumentTypeEvent:
			put.ConditionExpression = aws.String("attribute_not_exists(#id)")
			put.ExpressionAttributeNames = map[string]string{"#id": attrID}
		}
		items = append(items, types.TransactWriteItem{Put: put})
	}
	if !condWritten {
		check := &types.ConditionCheck{
			TableName: aws.String(s.table),
			Key:       keyOf(partitionKey, cond.DocumentID),
		}
		expr, names, values := conditionExpression(cond)
		check.ConditionExpression = expr
		check.ExpressionAttributeNames = names
		check.ExpressionAttributeValues = values
		items = append(items, types.TransactWriteItem{ConditionCheck: check})
	}
	if len(items) > MaxBatchSize {
		return nil, fmt.Errorf("batch of %d items exceeds the DynamoDB transaction limit of %d", len(items), MaxBatchSize)
	}
	return &dynamodb.TransactWriteItemsInput{TransactItems: items}, nil
}

func applyCondition(put *types.Put, cond store.Condition) {
	put.ConditionExpression, put.ExpressionAttributeNames, put.ExpressionAttributeValues = conditionExpression(cond)
}

func conditionExpression(cond store.Condition) (*string, map[string]string, map[string]types.AttributeValue) {
	if cond.Token == "" {
		return aws.String("attribute_not_exists(#id)"), map[string]string{"#id": attrID}, nil
	}
	return aws.String("#token = :token"),
		map[string]string{"#token": attrToken},
		map[string]types.AttributeValue{":token": &types.AttributeValueMemberS{Value: cond.Token}}
}

// RangeQuery implements store.DocumentStore.
func (s *Store) RangeQuery(ctx context.Context, q store.RangeQuery) ([]es.Document, error) {
	if q.MaxVersion < q.MinVersion {
		return nil, nil
	}
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		ConsistentRead:         aws.Bool(!s.config.EventuallyConsistent),
		KeyConditionExpression: aws.String("#pk = :pk AND begins_with(#id, :prefix)"),
		FilterExpression:       aws.String("#version BETWEEN :min AND :max"),
		ExpressionAttributeNames: map[string]string{
			"#pk":      attrPartitionKey,
			"#id":      attrID,
			"#version": attrVersion,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: q.PartitionKey},
			":prefix": &types.AttributeValueMemberS{Value: q.StreamID + es.Separator},
			":min":    &types.AttributeValueMemberN{Value: strconv.FormatInt(q.MinVersion, 10)},
			":max":    &types.AttributeValueMemberN{Value: strconv.FormatInt(q.MaxVersion, 10)},
		},
	}

	var docs []es.Document
	for {
		out, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("query stream %q: %w", q.StreamID, classify(err))
		}
		for _, item := range out.Items {
			d, err := decodeItem(item)
			if err != nil {
				return nil, err
			}
			if q.Contains(&d) {
				docs = append(docs, d)
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			return docs, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

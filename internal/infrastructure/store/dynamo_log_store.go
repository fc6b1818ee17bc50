package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/example/storefront-orders/internal/domain/order"
)

// DynamoPutter is the subset of the DynamoDB client used by DynamoLogStore.
type DynamoPutter interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoLogStore appends audit entries to a DynamoDB table.
// Entries are streamed to Kinesis Data Streams via the table's Kinesis integration.
type DynamoLogStore struct {
	client    DynamoPutter
	tableName string
}

// dynamoLogEntry represents the DynamoDB item structure
type dynamoLogEntry struct {
	ID        string `dynamodbav:"id"`
	Event     string `dynamodbav:"event"`
	OrderID   string `dynamodbav:"order_id,omitempty"`
	Payload   string `dynamodbav:"payload"`
	CreatedAt string `dynamodbav:"created_at"`
}

func NewDynamoLogStore(client DynamoPutter, tableName string) *DynamoLogStore {
	return &DynamoLogStore{client: client, tableName: tableName}
}

// NewDynamoClient builds a client from the default AWS credential chain.
func NewDynamoClient(ctx context.Context) (*dynamodb.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg), nil
}

func (s *DynamoLogStore) Append(ctx context.Context, entry order.LogEntry) error {
	item := dynamoLogEntry{
		ID:        entry.ID,
		Event:     entry.Event,
		Payload:   string(entry.Payload),
		CreatedAt: entry.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if p, err := order.DecodePayload(entry.Payload); err == nil {
		item.OrderID = p.OrderID
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal log entry: %w", err)
	}

	// Entries are immutable; a retried append with the same id keeps the first.
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	var exists *types.ConditionalCheckFailedException
	if errors.As(err, &exists) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to put log entry: %w", err)
	}
	return nil
}

// Package dynamo implements the relational store on a single DynamoDB table.
//
// Key scheme: every entity lives under PK "<KIND>#<id>" with SK "METADATA".
// Comments live under their post's partition with SK
// "COMMENT#<level>#<parent>#<created>", so a single query returns them
// sorted by level then parent id, the order the comment-tree builder
// requires. A global secondary index on the comment id resolves a comment
// back to its post.
package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"curio-backend/internal/auth"
	"curio-backend/internal/config"
)

const (
	skMetadata    = "METADATA"
	commentPrefix = "COMMENT#"

	// batchGetLimit is DynamoDB's BatchGetItem ceiling.
	batchGetLimit = 100
)

func userKey(id uuid.UUID) string     { return "USER#" + id.String() }
func tagKey(id uuid.UUID) string      { return "TAG#" + id.String() }
func postKey(id uuid.UUID) string     { return "POST#" + id.String() }
func objectKey(id uuid.UUID) string   { return "OBJECT#" + id.String() }
func commentKey(id uuid.UUID) string  { return commentPrefix + id.String() }
func sessionKey(d auth.Digest) string { return "SESSION#" + d.String() }

// API is the slice of the DynamoDB client the store uses. Tests substitute a
// fake.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Store reads entity rows from DynamoDB.
type Store struct {
	client API
	table  string
	index  string
}

// New creates a store over an existing client.
func New(client API, table, index string) *Store {
	return &Store{client: client, table: table, index: index}
}

// NewClient builds a DynamoDB client from configuration. A configured
// endpoint overrides the AWS default, for local development.
func NewClient(ctx context.Context, cfg config.Database) (*dynamodb.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

func metadataKey(pk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: skMetadata},
	}
}

// getItem reads one metadata item. A nil result with a nil error means the
// item does not exist.
func getItem[T any](ctx context.Context, s *Store, pk string) (*T, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       metadataKey(pk),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", pk, err)
	}
	if out.Item == nil {
		return nil, nil
	}

	var item T
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", pk, err)
	}
	return &item, nil
}

// batchGet reads metadata items for the given partition keys, returning them
// in request order and skipping keys that do not exist.
func batchGet[T any](ctx context.Context, s *Store, pks []string) ([]T, error) {
	found := make(map[string]map[string]types.AttributeValue, len(pks))

	for start := 0; start < len(pks); start += batchGetLimit {
		end := min(start+batchGetLimit, len(pks))

		keys := make([]map[string]types.AttributeValue, 0, end-start)
		for _, pk := range pks[start:end] {
			keys = append(keys, metadataKey(pk))
		}

		for len(keys) > 0 {
			out, err := s.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
				RequestItems: map[string]types.KeysAndAttributes{
					s.table: {Keys: keys},
				},
			})
			if err != nil {
				return nil, fmt.Errorf("failed to batch read: %w", err)
			}

			for _, item := range out.Responses[s.table] {
				if pk, ok := item["PK"].(*types.AttributeValueMemberS); ok {
					found[pk.Value] = item
				}
			}

			keys = out.UnprocessedKeys[s.table].Keys
		}
	}

	result := make([]T, 0, len(found))
	for _, pk := range pks {
		item, ok := found[pk]
		if !ok {
			continue
		}

		var row T
		if err := attributevalue.UnmarshalMap(item, &row); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", pk, err)
		}
		result = append(result, row)
	}
	return result, nil
}

// queryPartition returns every item in a partition whose sort key starts
// with prefix, in sort-key order, following pagination.
func (s *Store) queryPartition(ctx context.Context, pk, prefix string) ([]map[string]types.AttributeValue, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(pk)).
		And(expression.KeyBeginsWith(expression.Key("SK"), prefix))

	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	var items []map[string]types.AttributeValue
	var startKey map[string]types.AttributeValue

	for {
		out, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(s.table),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to query %s: %w", pk, err)
		}

		items = append(items, out.Items...)

		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return items, nil
}

// Package dynamodb provides a blobstore.Store backed by a DynamoDB
// table. Section records compress well below the 400 KB item limit, so
// one record maps to one item; no secondary blob storage is needed.
//
// Table schema:
//   - Partition key: world (string) - the store's world identifier
//   - Sort key: pos (string) - the section record key
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name lodgo-sections \
//	  --attribute-definitions AttributeName=world,AttributeType=S AttributeName=pos,AttributeType=S \
//	  --key-schema AttributeName=world,KeyType=HASH AttributeName=pos,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
package dynamodb

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/lodgo/blobstore"
)

// Client is the interface for the DynamoDB operations the store uses.
type Client interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Store implements blobstore.Store on a DynamoDB table.
type Store struct {
	client Client
	table  string
	world  string
}

// NewStore creates a DynamoDB-backed store. world is the partition key
// value isolating one world's records within the table.
func NewStore(client Client, tableName, world string) *Store {
	return &Store{client: client, table: tableName, world: world}
}

func (s *Store) itemKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"world": &types.AttributeValueMemberS{Value: s.world},
		"pos":   &types.AttributeValueMemberS{Value: key},
	}
}

// Load returns the record stored under key.
func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            s.itemKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, blobstore.ErrNotFound
	}
	record, ok := out.Item["record"].(*types.AttributeValueMemberB)
	if !ok {
		return nil, blobstore.ErrNotFound
	}
	return record.Value, nil
}

// Put stores the record under key.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	item := s.itemKey(key)
	item["record"] = &types.AttributeValueMemberB{Value: data}
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	return err
}

// Has reports whether a record exists under key.
func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:                aws.String(s.table),
		Key:                      s.itemKey(key),
		ConsistentRead:           aws.Bool(true),
		ProjectionExpression:     aws.String("#p"),
		ExpressionAttributeNames: map[string]string{"#p": "pos"},
	})
	if err != nil {
		return false, err
	}
	return out.Item != nil, nil
}

// Delete removes the record under key.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       s.itemKey(key),
	})
	return err
}

// DeleteAll removes every record of the store's world.
func (s *Store) DeleteAll(ctx context.Context) error {
	keys, err := s.List(ctx)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := s.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// List returns every stored key of the store's world.
func (s *Store) List(ctx context.Context) ([]string, error) {
	var keys []string
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.table),
			KeyConditionExpression: aws.String("#w = :w"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":w": &types.AttributeValueMemberS{Value: s.world},
			},
			ProjectionExpression:     aws.String("#p"),
			ExpressionAttributeNames: map[string]string{"#w": "world", "#p": "pos"},
			ExclusiveStartKey:        startKey,
		})
		if err != nil {
			return nil, err
		}
		for _, item := range out.Items {
			if attr, ok := item["pos"].(*types.AttributeValueMemberS); ok {
				keys = append(keys, attr.Value)
			}
		}
		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return keys, nil
}

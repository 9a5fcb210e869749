package dynamodb

import (
	"context"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/lodgo/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockClient is an in-memory DynamoDB mock for testing.
type mockClient struct {
	mu    sync.RWMutex
	items map[string]map[string]types.AttributeValue // world:pos -> item
}

func newMockClient() *mockClient {
	return &mockClient{items: make(map[string]map[string]types.AttributeValue)}
}

func itemID(item map[string]types.AttributeValue) string {
	world := item["world"].(*types.AttributeValueMemberS).Value
	pos := item["pos"].(*types.AttributeValueMemberS).Value
	return world + ":" + pos
}

func (m *mockClient) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.items[itemID(params.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (m *mockClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items[itemID(params.Item)] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockClient) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.items, itemID(params.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func (m *mockClient) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	world := params.ExpressionAttributeValues[":w"].(*types.AttributeValueMemberS).Value
	var items []map[string]types.AttributeValue
	for _, item := range m.items {
		if item["world"].(*types.AttributeValueMemberS).Value == world {
			items = append(items, item)
		}
	}
	return &dynamodb.QueryOutput{Items: items}, nil
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newMockClient(), "lodgo-sections", "overworld")

	require.NoError(t, store.Put(ctx, "6@0,0", []byte("record-a")))
	require.NoError(t, store.Put(ctx, "7@1,-2", []byte("record-b")))

	data, err := store.Load(ctx, "6@0,0")
	require.NoError(t, err)
	assert.Equal(t, []byte("record-a"), data)

	ok, err := store.Has(ctx, "7@1,-2")
	require.NoError(t, err)
	assert.True(t, ok)

	keys, err := store.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"6@0,0", "7@1,-2"}, keys)
}

func TestStoreLoadMissing(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newMockClient(), "lodgo-sections", "overworld")

	_, err := store.Load(ctx, "6@0,0")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	ok, err := store.Has(ctx, "6@0,0")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newMockClient(), "lodgo-sections", "overworld")

	require.NoError(t, store.Put(ctx, "6@0,0", []byte("record")))
	require.NoError(t, store.Delete(ctx, "6@0,0"))

	_, err := store.Load(ctx, "6@0,0")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestStoreWorldsAreIsolated(t *testing.T) {
	ctx := context.Background()
	client := newMockClient()
	overworld := NewStore(client, "lodgo-sections", "overworld")
	nether := NewStore(client, "lodgo-sections", "nether")

	require.NoError(t, overworld.Put(ctx, "6@0,0", []byte("grass")))
	require.NoError(t, nether.Put(ctx, "6@0,0", []byte("netherrack")))

	data, err := nether.Load(ctx, "6@0,0")
	require.NoError(t, err)
	assert.Equal(t, []byte("netherrack"), data)

	require.NoError(t, overworld.DeleteAll(ctx))
	keys, err := nether.List(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}

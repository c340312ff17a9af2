package dynamodb

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/felixgeelhaar/robotflow/domain/cache"
)

// batchSize is the BatchWriteItem request limit.
const batchSize = 25

// cacheItem represents a cache entry in DynamoDB.
type cacheItem struct {
	Key       string `dynamodbav:"key"`
	Value     []byte `dynamodbav:"value"`
	ExpiresAt int64  `dynamodbav:"expires_at,omitempty"`
}

// Cache is a DynamoDB-backed implementation of cache.Cache. DynamoDB
// removes expired items lazily, so Get also checks expires_at.
type Cache struct {
	api          API
	tableName    string
	queryTimeout time.Duration
	now          func() time.Time
	hits         atomic.Int64
	misses       atomic.Int64
}

// NewCache creates a cache on a connected client.
func NewCache(client *Client) *Cache {
	return NewCacheFromAPI(client.client, client.config)
}

// NewCacheFromAPI creates a cache on any implementation of API.
func NewCacheFromAPI(api API, cfg Config) *Cache {
	if cfg.TableName == "" {
		cfg.TableName = DefaultConfig().TableName
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultConfig().QueryTimeout
	}
	return &Cache{
		api:          api,
		tableName:    cfg.TableName,
		queryTimeout: cfg.QueryTimeout,
		now:          time.Now,
	}
}

func itemKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"key": &types.AttributeValueMemberS{Value: key},
	}
}

// Get retrieves a cached value by key.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	result, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            itemKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, false, wrapError(err)
	}
	if result.Item == nil {
		c.misses.Add(1)
		return nil, false, nil
	}

	var item cacheItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, false, err
	}

	if item.ExpiresAt > 0 && c.now().Unix() >= item.ExpiresAt {
		c.misses.Add(1)
		_, _ = c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(c.tableName),
			Key:       itemKey(key),
		})
		return nil, false, nil
	}

	c.hits.Add(1)
	return item.Value, true, nil
}

// Set stores a value. A zero ttl means no expiration.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return cache.ErrInvalidKey
	}

	item := cacheItem{Key: key, Value: value}
	if ttl > 0 {
		item.ExpiresAt = c.now().Add(ttl).Unix()
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	if _, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      av,
	}); err != nil {
		return wrapError(err)
	}
	return nil
}

// Delete removes a cached entry by key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	if _, err := c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.tableName),
		Key:       itemKey(key),
	}); err != nil {
		return wrapError(err)
	}
	return nil
}

// Clear scans the table and deletes every entry in batches.
func (c *Cache) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	var lastKey map[string]types.AttributeValue
	for {
		result, err := c.api.Scan(ctx, &dynamodb.ScanInput{
			TableName:                aws.String(c.tableName),
			ExclusiveStartKey:        lastKey,
			ProjectionExpression:     aws.String("#k"),
			ExpressionAttributeNames: map[string]string{"#k": "key"},
		})
		if err != nil {
			return wrapError(err)
		}

		for i := 0; i < len(result.Items); i += batchSize {
			end := min(i+batchSize, len(result.Items))
			requests := make([]types.WriteRequest, 0, end-i)
			for _, item := range result.Items[i:end] {
				requests = append(requests, types.WriteRequest{
					DeleteRequest: &types.DeleteRequest{
						Key: map[string]types.AttributeValue{"key": item["key"]},
					},
				})
			}
			if _, err := c.api.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: map[string][]types.WriteRequest{c.tableName: requests},
			}); err != nil {
				return wrapError(err)
			}
		}

		if result.LastEvaluatedKey == nil {
			return nil
		}
		lastKey = result.LastEvaluatedKey
	}
}

// Stats returns hit and miss counts. Size is not tracked for DynamoDB.
func (c *Cache) Stats() cache.Stats {
	return cache.Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
}

func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(cache.ErrOperationTimeout, err)
	}
	var throughputExceeded *types.ProvisionedThroughputExceededException
	if errors.As(err, &throughputExceeded) {
		return errors.Join(cache.ErrOperationTimeout, err)
	}
	return err
}

var (
	_ cache.Cache         = (*Cache)(nil)
	_ cache.StatsProvider = (*Cache)(nil)
)

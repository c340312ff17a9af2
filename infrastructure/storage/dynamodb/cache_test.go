package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/felixgeelhaar/robotflow/domain/cache"
)

// fakeAPI is an in-memory table keyed by the "key" attribute. Scan pages
// hold at most pageSize items.
type fakeAPI struct {
	mu       sync.Mutex
	items    map[string]map[string]types.AttributeValue
	pageSize int
	batches  int
	err      error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{items: make(map[string]map[string]types.AttributeValue), pageSize: 40}
}

func keyOf(m map[string]types.AttributeValue) string {
	return m["key"].(*types.AttributeValueMemberS).Value
}

func (f *fakeAPI) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &dynamodb.GetItemOutput{Item: f.items[keyOf(in.Key)]}, nil
}

func (f *fakeAPI) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.items[keyOf(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeAPI) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, keyOf(in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeAPI) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &dynamodb.ScanOutput{}
	for k := range f.items {
		if len(out.Items) == f.pageSize {
			out.LastEvaluatedKey = map[string]types.AttributeValue{"key": &types.AttributeValueMemberS{Value: k}}
			break
		}
		out.Items = append(out.Items, map[string]types.AttributeValue{"key": &types.AttributeValueMemberS{Value: k}})
	}
	return out, nil
}

func (f *fakeAPI) BatchWriteItem(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches++
	for _, reqs := range in.RequestItems {
		if len(reqs) > batchSize {
			return nil, fmt.Errorf("batch of %d requests", len(reqs))
		}
		for _, r := range reqs {
			delete(f.items, keyOf(r.DeleteRequest.Key))
		}
	}
	return &dynamodb.BatchWriteItemOutput{}, nil
}

func TestCache_SetGetDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := NewCacheFromAPI(newFakeAPI(), Config{})

	if _, ok, err := c.Get(ctx, "kg:positions"); ok || err != nil {
		t.Fatalf("Get() on empty table = %v, %v", ok, err)
	}
	if err := c.Set(ctx, "kg:positions", []byte(`["Home"]`), 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, ok, err := c.Get(ctx, "kg:positions")
	if err != nil || !ok || string(got) != `["Home"]` {
		t.Fatalf("Get() = %q, %v, %v", got, ok, err)
	}
	if err := c.Delete(ctx, "kg:positions"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok, _ := c.Get(ctx, "kg:positions"); ok {
		t.Error("Get() after Delete found the entry")
	}

	if stats := c.Stats(); stats.Hits != 1 || stats.Misses != 2 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestCache_Expiry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	api := newFakeAPI()
	c := NewCacheFromAPI(api, Config{})
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	if err := c.Set(ctx, "kg:tools", []byte("[]"), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, ok, _ := c.Get(ctx, "kg:tools"); !ok {
		t.Fatal("Get() before expiry missed")
	}

	now = now.Add(2 * time.Minute)
	if _, ok, _ := c.Get(ctx, "kg:tools"); ok {
		t.Error("Get() after expiry hit")
	}
	if len(api.items) != 0 {
		t.Errorf("expired item not deleted, %d items left", len(api.items))
	}
}

func TestCache_Clear(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	api := newFakeAPI()
	c := NewCacheFromAPI(api, Config{})

	for i := 0; i < 60; i++ {
		if err := c.Set(ctx, fmt.Sprintf("kg:path:%d", i), []byte("x"), 0); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
	}
	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if len(api.items) != 0 {
		t.Errorf("%d items left after Clear", len(api.items))
	}
	if api.batches < 3 {
		t.Errorf("batches = %d, want at least 3 for 60 items", api.batches)
	}
}

func TestCache_Errors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	api := newFakeAPI()
	c := NewCacheFromAPI(api, Config{})

	if err := c.Set(ctx, "", []byte("x"), 0); !errors.Is(err, cache.ErrInvalidKey) {
		t.Errorf("Set(\"\") error = %v, want ErrInvalidKey", err)
	}

	api.err = &types.ProvisionedThroughputExceededException{}
	if _, _, err := c.Get(ctx, "k"); !errors.Is(err, cache.ErrOperationTimeout) {
		t.Errorf("Get() error = %v, want ErrOperationTimeout", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, _, err := c.Get(cancelled, "k"); !errors.Is(err, context.Canceled) {
		t.Errorf("Get() error = %v, want context.Canceled", err)
	}
	if err := c.Clear(cancelled); !errors.Is(err, context.Canceled) {
		t.Errorf("Clear() error = %v, want context.Canceled", err)
	}
}

func TestConfigOptions(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	for _, opt := range []ConfigOption{WithRegion("eu-central-1"), WithEndpoint("http://127.0.0.1:8000"), WithTableName(""), WithTableName("cell7_cache")} {
		opt(&cfg)
	}
	if cfg.Region != "eu-central-1" || cfg.Endpoint != "http://127.0.0.1:8000" || cfg.TableName != "cell7_cache" {
		t.Errorf("config = %+v", cfg)
	}
}

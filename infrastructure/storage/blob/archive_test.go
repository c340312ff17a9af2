package blob

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/felixgeelhaar/robotflow/domain/sequence"
)

func TestNewArchive_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewArchive(Config{Bucket: "b"}); err == nil {
		t.Error("expected error without client")
	}
	if _, err := NewArchive(Config{Client: NewMemoryClient()}); err == nil {
		t.Error("expected error without bucket")
	}
}

func TestArchive_PutGet(t *testing.T) {
	t.Parallel()

	client := NewMemoryClient()
	a, err := NewArchive(Config{Client: client, Bucket: "cell", Prefix: "line-2"})
	if err != nil {
		t.Fatalf("NewArchive() error = %v", err)
	}
	ctx := context.Background()
	body := []byte("RobotSequence:\n  name: Sequence_1234abcd\n")

	uri, err := a.Put(ctx, "1234abcd-run", body)
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if uri != "mem://cell/line-2/sequences/1234abcd-run.yaml" {
		t.Errorf("Put() uri = %s", uri)
	}

	got, err := a.Get(ctx, "1234abcd-run")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != string(body) {
		t.Errorf("Get() = %q", got)
	}
	if client.Len() != 1 {
		t.Errorf("objects = %d, want 1", client.Len())
	}
}

func TestArchive_Errors(t *testing.T) {
	t.Parallel()

	a, _ := NewArchive(Config{Client: NewMemoryClient(), Bucket: "cell"})
	ctx := context.Background()

	if _, err := a.Get(ctx, "missing"); !errors.Is(err, sequence.ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := a.Put(ctx, "", nil); !errors.Is(err, sequence.ErrInvalidRunID) {
		t.Errorf("Put(\"\") error = %v", err)
	}
	if _, err := a.Get(ctx, ""); !errors.Is(err, sequence.ErrInvalidRunID) {
		t.Errorf("Get(\"\") error = %v", err)
	}
}

func TestNotFoundDetection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		fn   func(error) bool
		want bool
	}{
		{"s3 no such key", fmt.Errorf("get: %w", &types.NoSuchKey{}), isS3NotFound, true},
		{"s3 not found", &types.NotFound{}, isS3NotFound, true},
		{"s3 other", errors.New("AccessDenied"), isS3NotFound, false},
		{"azure 404", &azcore.ResponseError{StatusCode: 404}, isAzureNotFound, true},
		{"azure 403", &azcore.ResponseError{StatusCode: 403}, isAzureNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.fn(tt.err); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewAzureClient_RequiresAccount(t *testing.T) {
	t.Parallel()

	if _, err := NewAzureClient(AzureConfig{}); err == nil {
		t.Error("expected error without account or connection string")
	}
}

func TestNewS3Client_StaticCredentials(t *testing.T) {
	t.Parallel()

	c, err := NewS3Client(context.Background(), S3Config{
		Region:          "eu-central-1",
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "secret",
		Endpoint:        "http://127.0.0.1:9000",
	})
	if err != nil {
		t.Fatalf("NewS3Client() error = %v", err)
	}
	if c.Name() != "s3" {
		t.Errorf("Name() = %s", c.Name())
	}
}

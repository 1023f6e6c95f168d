package s3blob

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
)

func TestNewValidates(t *testing.T) {
	ctx := context.Background()
	_, err := New(ctx, ClientConfig{Region: "us-east-1"})
	require.ErrorContains(t, err, "bucket")
	_, err = New(ctx, ClientConfig{Bucket: "b"})
	require.ErrorContains(t, err, "region")
	_, err = New(ctx, ClientConfig{Bucket: "b", Region: "us-east-1", AccessKey: "only"})
	require.ErrorContains(t, err, "together")

	c, err := New(ctx, ClientConfig{Bucket: "b", Region: "us-east-1", Endpoint: "minio:9000", Prefix: "/prod/"})
	require.NoError(t, err)
	require.Equal(t, "b", c.Bucket())
	require.Equal(t, "prod/archive/auctions/2026-09.jsonl", c.Key("/archive/auctions/2026-09.jsonl"))
	require.Equal(t, "archive/auctions/2026-09.jsonl", c.Path("prod/archive/auctions/2026-09.jsonl"))
}

func TestEndpointURL(t *testing.T) {
	require.Equal(t, "", endpointURL("", true))
	require.Equal(t, "https://e2.example", endpointURL("e2.example", true))
	require.Equal(t, "http://minio:9000", endpointURL("minio:9000", false))
	require.Equal(t, "http://localhost:9000", endpointURL("http://localhost:9000", true))
	require.Equal(t, "", keyPrefix(" / "))
}

func TestNotFound(t *testing.T) {
	require.ErrorIs(t, notFound(&types.NoSuchKey{}), domain.ErrNotFound)
	require.ErrorIs(t, notFound(&types.NotFound{}), domain.ErrNotFound)
	other := errors.New("access denied")
	require.Equal(t, other, notFound(other))
}

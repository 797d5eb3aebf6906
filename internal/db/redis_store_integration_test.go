//go:build integration

package db

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func TestRedisStoreIntegration(t *testing.T) {
	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	testcontainers.CleanupContainer(t, container)

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)

	st := NewRedisStore(client, "greenprint-test:")
	require.NoError(t, st.Health(ctx))
	exerciseStore(t, st)

	ns := Namespace(st, ProfilePrefix("u1"))
	require.NoError(t, ns.Set(ctx, "user", []byte(`{}`)))
	raw, err := client.Get(ctx, "greenprint-test:profile:u1:user").Result()
	require.NoError(t, err)
	require.Equal(t, `{}`, raw)
	require.NoError(t, st.Close())

	viaOpen, err := Open(ctx, Options{Driver: DriverRedis, RedisURL: url})
	require.NoError(t, err)
	require.NoError(t, viaOpen.Close())
}

package redis

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "z-novel-context/pkg/errors"
)

func TestSnapshotStore_Key(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{prefix: "", want: "ctx:session:abc"},
		{prefix: "novel:sess", want: "novel:sess:abc"},
		{prefix: "novel:sess:", want: "novel:sess:abc"},
	}
	for _, tt := range tests {
		s := NewSnapshotStore(nil, tt.prefix)
		assert.Equal(t, tt.want, s.key("abc"))
	}
}

func TestIsNil(t *testing.T) {
	assert.True(t, IsNil(goredis.Nil))
	assert.False(t, IsNil(nil))
	assert.False(t, IsNil(context.Canceled))
}

func TestSnapshotStore_UnreachableServer(t *testing.T) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })
	s := NewSnapshotStore(NewClientFromRedis(rdb), "test")

	_, err := s.Load(context.Background(), "sess")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrCache)

	err = s.Save(context.Background(), "sess", []byte("{}"), time.Minute)
	assert.ErrorIs(t, err, apperrors.ErrCache)
}

func TestClient_HealthCheckUnreachable(t *testing.T) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	c := NewClientFromRedis(rdb)
	t.Cleanup(func() { _ = c.Close() })

	assert.Same(t, rdb, c.Redis())
	err := c.HealthCheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "health check failed")
	assert.Zero(t, c.Redis().PoolStats().TotalConns)
}

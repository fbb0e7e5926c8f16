package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisStore_Errors(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	t.Run("invalid url", func(t *testing.T) {
		_, err := NewRedisStore(ctx, "redis://localhost:notaport", DefaultRedisKey, 10)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse redis url")
	})

	t.Run("unreachable server", func(t *testing.T) {
		_, err := NewRedisStore(ctx, "127.0.0.1:1", DefaultRedisKey, 10)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ping redis at 127.0.0.1:1")
	})
}

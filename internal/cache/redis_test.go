package cache

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/BradenHooton/folio-auth/internal/config"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	client, err := NewRedisClient(context.Background(), config.RedisConfig{Addr: mr.Addr()}, logger)
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, Pinger{Client: client}.Ping(context.Background()))

	mr.Close()
	assert.Error(t, Pinger{Client: client}.Ping(context.Background()))
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := NewRedisClient(context.Background(), config.RedisConfig{Addr: addr}, logger)
	assert.Error(t, err)
}

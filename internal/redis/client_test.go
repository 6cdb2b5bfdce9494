package redisclient

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewClient(context.Background(), Options{Addr: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Ping(context.Background()).Err())
}

func TestNewClientUnreachable(t *testing.T) {
	_, err := NewClient(context.Background(), Options{
		Addr:        "127.0.0.1:1",
		PingTimeout: 200 * time.Millisecond,
	})
	require.Error(t, err)
}

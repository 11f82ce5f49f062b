package streams

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestConnectVerifiesStreams(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	client, err := Connect(ctx, "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, Ping(ctx, client))
	require.False(t, mr.Exists(healthStream), "bootstrap entry is cleaned up")

	// Consumer groups are never created.
	_, err = mr.XAdd(healthStream, "*", []string{"kind", "leftover"})
	require.NoError(t, err)
	again, err := Connect(ctx, "redis://"+mr.Addr())
	require.NoError(t, err)
	require.NoError(t, again.Close())
}

func TestConnectRejectsBadURL(t *testing.T) {
	_, err := Connect(context.Background(), "http://not-redis")
	require.Error(t, err)
}

func TestConnectFailsWhenUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := Connect(context.Background(), "redis://"+addr)
	require.Error(t, err)
	require.Error(t, Ping(context.Background(), nil))
}

func TestVerifyStreamOpsToleratesExistingEntries(t *testing.T) {
	mr := miniredis.RunT(t)
	for i := 0; i < 5; i++ {
		_, err := mr.XAdd(healthStream, "*", []string{"kind", "old"})
		require.NoError(t, err)
	}
	client, err := Connect(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	require.NoError(t, client.Close())
	require.False(t, mr.Exists(healthStream))
}

package syncclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mysql"
)

func TestFixtureTransportIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	mysqlContainer, err := mysql.Run(ctx, "mysql:8.0",
		mysql.WithDatabase("testdb"),
		mysql.WithUsername("root"),
		mysql.WithPassword("testpass"),
	)
	require.NoError(t, err, "failed to start MySQL container")
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(mysqlContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := mysqlContainer.ConnectionString(ctx, "parseTime=true")
	require.NoError(t, err)

	transport, err := Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = transport.Close() })

	require.NoError(t, transport.EnsureSchema(ctx))
	require.NoError(t, transport.Upload(ctx, "library.realm", 1, []byte("snapshot-v1")))

	version, payload, err := transport.FetchLatest(ctx, "library.realm")
	require.NoError(t, err)
	require.Equal(t, uint64(1), version)
	require.Equal(t, []byte("snapshot-v1"), payload)

	require.NoError(t, transport.Upload(ctx, "library.realm", 2, []byte("snapshot-v2")))
	version, payload, err = transport.FetchLatest(ctx, "library.realm")
	require.NoError(t, err)
	require.Equal(t, uint64(2), version)
	require.Equal(t, []byte("snapshot-v2"), payload)
}

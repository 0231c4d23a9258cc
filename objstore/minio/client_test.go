package minio

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/spirit-labs/strata/objstore"
	"github.com/stretchr/testify/require"
	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"
)

// Needs docker - set STRATA_MINIO_INTEGRATION to run
func TestMinio(t *testing.T) {
	if os.Getenv("STRATA_MINIO_INTEGRATION") == "" {
		t.Skip("set STRATA_MINIO_INTEGRATION to run the minio integration tests")
	}
	cfg, container := startMinio(t)
	defer func() {
		err := container.Terminate(context.Background())
		require.NoError(t, err)
	}()
	client := NewMinioClient(cfg)
	err := client.Start()
	require.NoError(t, err)
	for i := 0; i < objstore.NumTestBuckets; i++ {
		err = client.MakeBucket(context.Background(), fmt.Sprintf("%s%.2d", objstore.TestBucketPrefix, i))
		require.NoError(t, err)
	}
	objstore.TestApi(t, client)
}

func startMinio(t *testing.T) (Conf, *tcminio.MinioContainer) {
	ctx := context.Background()
	container, err := tcminio.Run(ctx, "minio/minio:RELEASE.2024-08-26T15-33-07Z",
		tcminio.WithUsername("minioadmin"), tcminio.WithPassword("minioadmin"))
	require.NoError(t, err)
	ip, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "9000")
	require.NoError(t, err)
	return Conf{
		Endpoint:  fmt.Sprintf("%s:%d", ip, port.Int()),
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
	}, container
}

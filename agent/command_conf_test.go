package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInvalidPollTimeout(t *testing.T) {
	conf := CommandConf{}
	conf.CommitIntervalMs = 100
	conf.RetryIntervalMs = 100
	conf.PollTimeoutMs = 0
	_, err := CreateConfFromCommandConf(conf)
	require.Error(t, err)
	require.Equal(t, "invalid value for poll-timeout-ms must be >= 1 ms", err.Error())

	conf.PollTimeoutMs = -1
	_, err = CreateConfFromCommandConf(conf)
	require.Error(t, err)
	require.Equal(t, "invalid value for poll-timeout-ms must be >= 1 ms", err.Error())
}

func TestInvalidCommitInterval(t *testing.T) {
	conf := CommandConf{}
	conf.PollTimeoutMs = 100
	conf.RetryIntervalMs = 100
	conf.CommitIntervalMs = 0
	_, err := CreateConfFromCommandConf(conf)
	require.Error(t, err)
	require.Equal(t, "invalid value for commit-interval-ms must be >= 1 ms", err.Error())

	conf.CommitIntervalMs = -1
	_, err = CreateConfFromCommandConf(conf)
	require.Error(t, err)
	require.Equal(t, "invalid value for commit-interval-ms must be >= 1 ms", err.Error())
}

func TestInvalidRetryInterval(t *testing.T) {
	conf := CommandConf{}
	conf.PollTimeoutMs = 100
	conf.CommitIntervalMs = 100
	conf.RetryIntervalMs = 0
	_, err := CreateConfFromCommandConf(conf)
	require.Error(t, err)
	require.Equal(t, "invalid value for retry-interval-ms must be >= 1 ms", err.Error())
}

func TestInvalidMaxFileOpenTime(t *testing.T) {
	conf := CommandConf{}
	conf.PollTimeoutMs = 100
	conf.CommitIntervalMs = 100
	conf.RetryIntervalMs = 100
	conf.MaxFileOpenTimeMs = -1
	_, err := CreateConfFromCommandConf(conf)
	require.Error(t, err)
	require.Equal(t, "invalid value for max-file-open-time-ms must be >= 0 ms", err.Error())
}

func TestCreateConfFromCommandConf(t *testing.T) {
	commandConf := CommandConf{
		Topics:            "payments, orders,",
		BootstrapServers:  "broker1:9092,broker2:9092",
		KafkaClientType:   ConfluentClientType,
		ObjStoreType:      MinioObjectStoreType,
		ObjStoreEndpoint:  "minio1:9000",
		ObjStoreUsername:  "user",
		ObjStorePassword:  "secret",
		Bucket:            "sink-bucket",
		DataPrefix:        "topics",
		FileFormat:        "parquet",
		Compression:       "zstd",
		PartitionerType:   "time",
		TimePathFormat:    "date=2006-01-02",
		MaxRecordsPerFile: 5000,
		MaxFileSize:       64 * 1024 * 1024,
		MaxFileOpenTimeMs: 60000,
		NoFlushOnShutdown: true,
		PollTimeoutMs:     200,
		MaxPollMessages:   500,
		CommitIntervalMs:  1000,
		RetryIntervalMs:   2000,
		MetricsBind:       "localhost:9102",
		MetricsEnabled:    true,
	}
	conf, err := CreateConfFromCommandConf(commandConf)
	require.NoError(t, err)
	require.NoError(t, conf.Validate())

	require.Equal(t, 2, len(conf.SinkConfs))
	require.Equal(t, "payments", conf.SinkConfs[0].TopicName)
	require.Equal(t, "orders", conf.SinkConfs[1].TopicName)
	for _, sinkConf := range conf.SinkConfs {
		require.Equal(t, "sink-bucket", sinkConf.BucketName)
		require.Equal(t, "parquet", sinkConf.FileFormat)
		require.Equal(t, "zstd", sinkConf.Compression)
		require.Equal(t, "time", sinkConf.PartitionerType)
		require.Equal(t, "date=2006-01-02", sinkConf.TimePathFormat)
		require.Equal(t, 5000, sinkConf.MaxRecordsPerFile)
		require.Equal(t, int64(64*1024*1024), sinkConf.MaxFileSize)
		require.Equal(t, time.Minute, sinkConf.MaxFileOpenTime)
		require.False(t, sinkConf.FlushOnShutdown)
	}
	require.Equal(t, 200*time.Millisecond, conf.ConsumerConf.PollTimeout)
	require.Equal(t, 500, conf.ConsumerConf.MaxPollMessages)
	require.Equal(t, time.Second, conf.ConsumerConf.CommitInterval)
	require.Equal(t, 2*time.Second, conf.ConsumerConf.RetryInterval)
	require.Equal(t, "broker1:9092,broker2:9092", conf.KafkaProps["bootstrap.servers"])
	require.Equal(t, "minio1:9000", conf.MinioConf.Endpoint)
	require.Equal(t, "user", conf.MinioConf.AccessKey)
	require.Equal(t, "secret", conf.MinioConf.SecretKey)
	require.True(t, conf.MetricsEnabled)
}

func TestBootstrapServersNotOverridden(t *testing.T) {
	commandConf := CommandConf{
		Topics:           "payments",
		Bucket:           "sink-bucket",
		BootstrapServers: "broker1:9092",
		KafkaProperties:  map[string]string{"bootstrap.servers": "other:9092", "fetch.min.bytes": "1024"},
		PollTimeoutMs:    100,
		CommitIntervalMs: 100,
		RetryIntervalMs:  100,
	}
	conf, err := CreateConfFromCommandConf(commandConf)
	require.NoError(t, err)
	require.Equal(t, "other:9092", conf.KafkaProps["bootstrap.servers"])
	require.Equal(t, "1024", conf.KafkaProps["fetch.min.bytes"])
}

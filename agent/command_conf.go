package agent

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spirit-labs/strata/objstore/minio"
	"github.com/spirit-labs/strata/sink"
)

// CommandConf is the agent configuration as specified on the command line or in an HCL config file.
// The same sink settings apply to every topic in the list, use the programmatic Conf to configure
// sinks per topic
type CommandConf struct {
	Topics                 string            `help:"comma separated list of topics to sink" required:""`
	BootstrapServers       string            `help:"comma separated list of kafka brokers to consume from" default:"localhost:9092"`
	KafkaClientType        string            `help:"kafka client to consume with, one of confluent, load" default:"confluent"`
	KafkaProperties        map[string]string `help:"additional properties passed through to the kafka client"`
	ObjStoreType           string            `help:"object store the sink writes to, one of dev, minio" default:"minio"`
	ObjStoreEndpoint       string            `help:"address of the object store server" default:"127.0.0.1:9000"`
	ObjStoreUsername       string            `help:"username to connect to the object store with" default:"minioadmin"`
	ObjStorePassword       string            `help:"password to connect to the object store with" default:"minioadmin"`
	ObjStoreSecure         bool              `help:"if true connect to the object store over tls"`
	Bucket                 string            `help:"name of the bucket output files are written to" required:""`
	DataPrefix             string            `help:"prefix prepended to every object key" default:"topics"`
	FileFormat             string            `help:"format of the output files, one of csv, json, parquet, avro, raw" default:"json"`
	Compression            string            `help:"compression applied to output files, one of none, gzip, snappy, lz4, zstd" default:"none"`
	PartitionerType        string            `help:"how records are split into file paths, one of default, time, field" default:"default"`
	TimePathFormat         string            `help:"go time layout for the file path with the time partitioner" default:"date=2006-01-02/hour=15"`
	PartitionField         string            `help:"json field the file path is taken from with the field partitioner"`
	MaxRecordsPerFile      int               `help:"number of records after which a file is rotated" default:"1000"`
	MaxFileSize            int64             `help:"size in bytes after which a file is rotated, 0 disables" default:"0"`
	MaxFileOpenTimeMs      int               `help:"time in ms after which an open file is rotated, 0 disables" default:"0"`
	NoFlushOnShutdown      bool              `help:"if true do not flush buffered records to the store on shutdown"`
	PollTimeoutMs          int               `help:"timeout in ms for a single kafka poll" default:"100"`
	MaxPollMessages        int               `help:"maximum number of messages fetched in a single poll" default:"1000"`
	CommitIntervalMs       int               `help:"interval in ms at which consumed offsets are committed back to kafka" default:"5000"`
	RetryIntervalMs        int               `help:"pause in ms before retrying after a transient failure" default:"5000"`
	MetricsBind            string            `help:"address the prometheus exposition server listens on" default:"localhost:9102"`
	MetricsEnabled         bool              `help:"if true serve prometheus metrics"`
}

func CreateConfFromCommandConf(commandConf CommandConf) (Conf, error) {
	if commandConf.PollTimeoutMs < 1 {
		return Conf{}, errors.Errorf("invalid value for poll-timeout-ms must be >= 1 ms")
	}
	if commandConf.CommitIntervalMs < 1 {
		return Conf{}, errors.Errorf("invalid value for commit-interval-ms must be >= 1 ms")
	}
	if commandConf.RetryIntervalMs < 1 {
		return Conf{}, errors.Errorf("invalid value for retry-interval-ms must be >= 1 ms")
	}
	if commandConf.MaxFileOpenTimeMs < 0 {
		return Conf{}, errors.Errorf("invalid value for max-file-open-time-ms must be >= 0 ms")
	}
	conf := NewConf()
	for _, topicName := range strings.Split(commandConf.Topics, ",") {
		topicName = strings.TrimSpace(topicName)
		if topicName == "" {
			continue
		}
		sinkConf := sink.NewConf()
		sinkConf.TopicName = topicName
		sinkConf.BucketName = commandConf.Bucket
		sinkConf.DataPrefix = commandConf.DataPrefix
		sinkConf.FileFormat = commandConf.FileFormat
		sinkConf.Compression = commandConf.Compression
		sinkConf.PartitionerType = commandConf.PartitionerType
		sinkConf.TimePathFormat = commandConf.TimePathFormat
		sinkConf.PartitionField = commandConf.PartitionField
		sinkConf.MaxRecordsPerFile = commandConf.MaxRecordsPerFile
		sinkConf.MaxFileSize = commandConf.MaxFileSize
		sinkConf.MaxFileOpenTime = time.Duration(commandConf.MaxFileOpenTimeMs) * time.Millisecond
		sinkConf.FlushOnShutdown = !commandConf.NoFlushOnShutdown
		conf.SinkConfs = append(conf.SinkConfs, sinkConf)
	}
	conf.ConsumerConf.PollTimeout = time.Duration(commandConf.PollTimeoutMs) * time.Millisecond
	conf.ConsumerConf.MaxPollMessages = commandConf.MaxPollMessages
	conf.ConsumerConf.CommitInterval = time.Duration(commandConf.CommitIntervalMs) * time.Millisecond
	conf.ConsumerConf.RetryInterval = time.Duration(commandConf.RetryIntervalMs) * time.Millisecond
	conf.KafkaClientType = commandConf.KafkaClientType
	conf.KafkaProps = map[string]string{}
	for name, value := range commandConf.KafkaProperties {
		conf.KafkaProps[name] = value
	}
	if _, ok := conf.KafkaProps["bootstrap.servers"]; !ok {
		conf.KafkaProps["bootstrap.servers"] = commandConf.BootstrapServers
	}
	conf.ObjStoreType = commandConf.ObjStoreType
	conf.MinioConf = minio.Conf{
		Endpoint:  commandConf.ObjStoreEndpoint,
		AccessKey: commandConf.ObjStoreUsername,
		SecretKey: commandConf.ObjStorePassword,
		Secure:    commandConf.ObjStoreSecure,
	}
	conf.MetricsBind = commandConf.MetricsBind
	conf.MetricsEnabled = commandConf.MetricsEnabled
	return conf, nil
}

func CreateAgentFromCommandConf(commandConf CommandConf) (*Agent, error) {
	conf, err := CreateConfFromCommandConf(commandConf)
	if err != nil {
		return nil, err
	}
	return NewAgent(conf)
}

package sink

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfDefaults(t *testing.T) {
	conf := NewConf()
	require.Equal(t, DefaultDataPrefix, conf.DataPrefix)
	require.Equal(t, DefaultFileFormat, conf.FileFormat)
	require.Equal(t, DefaultCompression, conf.Compression)
	require.Equal(t, DefaultPartitionerType, conf.PartitionerType)
	require.Equal(t, DefaultTimePathFormat, conf.TimePathFormat)
	require.Equal(t, DefaultMaxRecordsPerFile, conf.MaxRecordsPerFile)
	require.Equal(t, int64(DefaultMaxFileSize), conf.MaxFileSize)
	require.Equal(t, time.Duration(DefaultMaxFileOpenTime), conf.MaxFileOpenTime)
	require.True(t, conf.FlushOnShutdown)
}

func TestValidateMissingNames(t *testing.T) {
	invalidConfTest(t, "configuration error: topic name must be specified", func(conf *Conf) {
		conf.TopicName = ""
	})
	invalidConfTest(t, "configuration error: bucket name must be specified", func(conf *Conf) {
		conf.BucketName = ""
	})
	invalidConfTest(t, "configuration error: data prefix must be specified", func(conf *Conf) {
		conf.DataPrefix = ""
	})
}

func TestValidateInvalidFormat(t *testing.T) {
	invalidConfTest(t, "configuration error: invalid file format: orc", func(conf *Conf) {
		conf.FileFormat = "orc"
	})
	invalidConfTest(t, "configuration error: invalid file format: ", func(conf *Conf) {
		conf.FileFormat = ""
	})
}

func TestValidateInvalidCompression(t *testing.T) {
	invalidConfTest(t, "configuration error: invalid compression: brotli", func(conf *Conf) {
		conf.Compression = "brotli"
	})
}

func TestValidateIncompatibleCompression(t *testing.T) {
	invalidConfTest(t, "configuration error: lz4 compression is not supported with parquet format",
		func(conf *Conf) {
			conf.FileFormat = "parquet"
			conf.Compression = "lz4"
		})
	invalidConfTest(t, "configuration error: zstd compression is not supported with avro format",
		func(conf *Conf) {
			conf.FileFormat = "avro"
			conf.Compression = "zstd"
		})
}

func TestValidateInvalidPartitioner(t *testing.T) {
	invalidConfTest(t, "configuration error: invalid partitioner type: hash", func(conf *Conf) {
		conf.PartitionerType = "hash"
	})
	invalidConfTest(t, "configuration error: time path format must be specified with the time partitioner",
		func(conf *Conf) {
			conf.PartitionerType = "time"
			conf.TimePathFormat = ""
		})
	invalidConfTest(t, "configuration error: partition field must be specified with the field partitioner",
		func(conf *Conf) {
			conf.PartitionerType = "field"
		})
}

func TestValidateRotationThresholds(t *testing.T) {
	invalidConfTest(t, "configuration error: max records per file must be at least 1", func(conf *Conf) {
		conf.MaxRecordsPerFile = 0
	})
	invalidConfTest(t, "configuration error: max file size cannot be negative", func(conf *Conf) {
		conf.MaxFileSize = -1
	})
	invalidConfTest(t, "configuration error: max file open time cannot be negative", func(conf *Conf) {
		conf.MaxFileOpenTime = -1 * time.Second
	})
}

func TestValidateAcceptsSupportedCombinations(t *testing.T) {
	validConfTest(t, func(conf *Conf) {
		conf.FileFormat = "json"
		conf.Compression = "gzip"
	})
	validConfTest(t, func(conf *Conf) {
		conf.FileFormat = "csv"
		conf.Compression = "snappy"
	})
	validConfTest(t, func(conf *Conf) {
		conf.FileFormat = "parquet"
		conf.Compression = "zstd"
	})
	validConfTest(t, func(conf *Conf) {
		conf.FileFormat = "avro"
		conf.Compression = "snappy"
	})
	validConfTest(t, func(conf *Conf) {
		conf.FileFormat = "raw"
		conf.Compression = "zstd"
	})
	validConfTest(t, func(conf *Conf) {
		conf.PartitionerType = "field"
		conf.PartitionField = "currency"
	})
}

func invalidConfTest(t *testing.T, expectedErrMsg string, setter func(conf *Conf)) {
	t.Helper()
	conf := testConf()
	setter(&conf)
	err := conf.Validate()
	require.Error(t, err)
	require.Equal(t, expectedErrMsg, err.Error())
	serr, ok := AsError(err)
	require.True(t, ok)
	require.Equal(t, KindConfiguration, serr.Kind)
}

func validConfTest(t *testing.T, setter func(conf *Conf)) {
	t.Helper()
	conf := testConf()
	setter(&conf)
	require.NoError(t, conf.Validate())
}

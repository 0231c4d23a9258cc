package sink

import (
	"time"

	"github.com/spirit-labs/strata/compress"
	"github.com/spirit-labs/strata/format"
	"github.com/spirit-labs/strata/partitioner"
)

type Conf struct {
	TopicName         string
	BucketName        string
	DataPrefix        string
	FileFormat        string
	Compression       string
	PartitionerType   string
	TimePathFormat    string
	PartitionField    string
	MaxRecordsPerFile int
	MaxFileSize       int64
	MaxFileOpenTime   time.Duration
	FlushOnShutdown   bool
}

func NewConf() Conf {
	return Conf{
		DataPrefix:        DefaultDataPrefix,
		FileFormat:        DefaultFileFormat,
		Compression:       DefaultCompression,
		PartitionerType:   DefaultPartitionerType,
		TimePathFormat:    DefaultTimePathFormat,
		MaxRecordsPerFile: DefaultMaxRecordsPerFile,
		MaxFileSize:       DefaultMaxFileSize,
		MaxFileOpenTime:   DefaultMaxFileOpenTime,
		FlushOnShutdown:   true,
	}
}

func (c *Conf) Validate() error {
	if c.TopicName == "" {
		return NewConfigurationError("topic name must be specified")
	}
	if c.BucketName == "" {
		return NewConfigurationError("bucket name must be specified")
	}
	if c.DataPrefix == "" {
		return NewConfigurationError("data prefix must be specified")
	}
	formatType := format.FromString(c.FileFormat)
	if formatType == format.TypeUnknown {
		return NewConfigurationError("invalid file format: %s", c.FileFormat)
	}
	compression := compress.FromString(c.Compression)
	if compression == compress.CompressionTypeUnknown {
		return NewConfigurationError("invalid compression: %s", c.Compression)
	}
	if err := format.CheckCompression(formatType, compression); err != nil {
		return NewConfigurationError("%s", err.Error())
	}
	partitionerType := partitioner.FromString(c.PartitionerType)
	if partitionerType == partitioner.TypeUnknown {
		return NewConfigurationError("invalid partitioner type: %s", c.PartitionerType)
	}
	if partitionerType == partitioner.TypeTime && c.TimePathFormat == "" {
		return NewConfigurationError("time path format must be specified with the time partitioner")
	}
	if partitionerType == partitioner.TypeField && c.PartitionField == "" {
		return NewConfigurationError("partition field must be specified with the field partitioner")
	}
	if c.MaxRecordsPerFile < 1 {
		return NewConfigurationError("max records per file must be at least 1")
	}
	if c.MaxFileSize < 0 {
		return NewConfigurationError("max file size cannot be negative")
	}
	if c.MaxFileOpenTime < 0 {
		return NewConfigurationError("max file open time cannot be negative")
	}
	return nil
}

const (
	DefaultDataPrefix        = "topics"
	DefaultFileFormat        = "json"
	DefaultCompression       = "none"
	DefaultPartitionerType   = "default"
	DefaultTimePathFormat    = "date=2006-01-02/hour=15"
	DefaultMaxRecordsPerFile = 1000
	DefaultMaxFileSize       = 0
	DefaultMaxFileOpenTime   = 0
)

package partitioner

import (
	"encoding/base64"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spirit-labs/strata/record"
)

type Type byte

const (
	TypeUnknown Type = 0
	TypeDefault Type = 1
	TypeTime    Type = 2
	TypeField   Type = 3
)

func FromString(str string) Type {
	switch str {
	case "default":
		return TypeDefault
	case "time":
		return TypeTime
	case "field":
		return TypeField
	default:
		return TypeUnknown
	}
}

func (t Type) String() string {
	switch t {
	case TypeDefault:
		return "default"
	case TypeTime:
		return "time"
	case TypeField:
		return "field"
	case TypeUnknown:
		return "unknown"
	default:
		panic("unknown partitioner type")
	}
}

// Partitioner computes the directory path that a record's file is written under, relative to the configured
// data prefix. The path always starts with the topic name so files for a topic can be found by listing the
// topic's prefix
type Partitioner interface {
	Path(topic string, partition int32, rec *record.Record) (string, error)
}

// New creates a partitioner of the given type. pathFormat is the time layout used by the time partitioner
// and fieldName is the record field used by the field partitioner
func New(partitionerType Type, pathFormat string, fieldName string) (Partitioner, error) {
	switch partitionerType {
	case TypeDefault:
		return &DefaultPartitioner{}, nil
	case TypeTime:
		if pathFormat == "" {
			return nil, errors.Errorf("path format must be specified for the time partitioner")
		}
		return &TimePartitioner{PathFormat: pathFormat}, nil
	case TypeField:
		if fieldName == "" {
			return nil, errors.Errorf("field name must be specified for the field partitioner")
		}
		return &FieldPartitioner{FieldName: fieldName}, nil
	default:
		return nil, errors.Errorf("unexpected partitioner type: %d", partitionerType)
	}
}

// DefaultPartitioner lays files out by topic and partition
type DefaultPartitioner struct {
}

func (p *DefaultPartitioner) Path(topic string, partition int32, _ *record.Record) (string, error) {
	return fmt.Sprintf("%s/partition=%d", topic, partition), nil
}

// TimePartitioner lays files out by the record timestamp, rendered in UTC with a Go time layout,
// e.g. "date=2006-01-02/hour=15"
type TimePartitioner struct {
	PathFormat string
}

func (p *TimePartitioner) Path(topic string, _ int32, rec *record.Record) (string, error) {
	return fmt.Sprintf("%s/%s", topic, rec.Timestamp.UTC().Format(p.PathFormat)), nil
}

// FieldPartitioner lays files out by the value of a record field. Records without the field cannot be
// partitioned and are rejected
type FieldPartitioner struct {
	FieldName string
}

func (p *FieldPartitioner) Path(topic string, _ int32, rec *record.Record) (string, error) {
	value := rec.Get(p.FieldName)
	if value == nil {
		return "", errors.Errorf("record has no value for partition field %s", p.FieldName)
	}
	return fmt.Sprintf("%s/%s=%s", topic, p.FieldName, renderPathValue(value)), nil
}

func renderPathValue(value any) string {
	switch v := value.(type) {
	case bool:
		return strconv.FormatBool(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case string:
		return v
	case []byte:
		return base64.URLEncoding.EncodeToString(v)
	default:
		panic("unknown field value type")
	}
}

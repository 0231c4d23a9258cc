package record

import (
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spirit-labs/strata/common"
	"github.com/tidwall/gjson"
)

// BytesSchema is the schema of records created from opaque message bytes. It has a single bytes field
// named "value"
var BytesSchema = NewSchema([]Field{{Name: "value", Type: TypeBytes}})

// Record is a single message value in canonical form, as consumed by the format writers. Values are aligned
// with Schema - values[i] holds the value for field i. Raw holds the message value as it arrived off the wire
type Record struct {
	Schema    *Schema
	Values    []any
	Raw       []byte
	Timestamp time.Time
}

// Get returns the value of the named field, or nil if the record has no such field
func (r *Record) Get(name string) any {
	idx := r.Schema.FieldIndex(name)
	if idx == -1 {
		return nil
	}
	return r.Values[idx]
}

// FromJSON parses data as a JSON object and returns a record with one field per top level key, fields in
// name order so records from producers that order keys differently get the same schema. Null valued keys are
// omitted. Nested objects and arrays are retained as their raw JSON text, typed as strings. Numbers without
// a fraction or exponent are typed as ints, all other numbers as floats
func FromJSON(data []byte, timestamp time.Time) (*Record, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.Errorf("message value is not valid JSON")
	}
	parsed := gjson.ParseBytes(data)
	if !parsed.IsObject() {
		return nil, errors.Errorf("message value is not a JSON object")
	}
	var names []string
	results := map[string]gjson.Result{}
	parsed.ForEach(func(key, value gjson.Result) bool {
		if value.Type == gjson.Null {
			return true
		}
		name := key.String()
		if _, exists := results[name]; !exists {
			names = append(names, name)
		}
		results[name] = value
		return true
	})
	sort.Strings(names)
	fields := make([]Field, len(names))
	values := make([]any, len(names))
	for i, name := range names {
		res := results[name]
		switch res.Type {
		case gjson.False, gjson.True:
			fields[i] = Field{Name: name, Type: TypeBool}
			values[i] = res.Bool()
		case gjson.Number:
			if isIntegral(res.Raw) {
				fields[i] = Field{Name: name, Type: TypeInt}
				values[i] = res.Int()
			} else {
				fields[i] = Field{Name: name, Type: TypeFloat}
				values[i] = res.Float()
			}
		case gjson.String:
			fields[i] = Field{Name: name, Type: TypeString}
			values[i] = res.String()
		case gjson.JSON:
			fields[i] = Field{Name: name, Type: TypeString}
			values[i] = res.Raw
		default:
			return nil, errors.Errorf("unexpected JSON value for key %s: %s", name, res.Raw)
		}
	}
	return &Record{
		Schema:    NewSchema(fields),
		Values:    values,
		Raw:       common.ByteSliceCopy(data),
		Timestamp: timestamp,
	}, nil
}

func isIntegral(raw string) bool {
	return !strings.ContainsAny(raw, ".eE")
}

// FromBytes returns a record holding the message value as a single opaque bytes field
func FromBytes(data []byte, timestamp time.Time) *Record {
	value := common.ByteSliceCopy(data)
	return &Record{
		Schema:    BytesSchema,
		Values:    []any{value},
		Raw:       value,
		Timestamp: timestamp,
	}
}

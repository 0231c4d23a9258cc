package record

import (
	"strings"
)

type FieldType int

const (
	TypeBool FieldType = iota + 1
	TypeInt
	TypeFloat
	TypeString
	TypeBytes
)

func (t FieldType) String() string {
	switch t {
	case TypeBool:
		return "bool"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeString:
		return "string"
	case TypeBytes:
		return "bytes"
	default:
		panic("unknown field type")
	}
}

type Field struct {
	Name string
	Type FieldType
}

// Schema is an ordered set of named, typed fields. Field order is significant, it determines column order
// in columnar output
type Schema struct {
	fields []Field
	index  map[string]int
}

func NewSchema(fields []Field) *Schema {
	index := make(map[string]int, len(fields))
	for i, f := range fields {
		if _, exists := index[f.Name]; exists {
			panic("duplicate field name in schema: " + f.Name)
		}
		index[f.Name] = i
	}
	return &Schema{fields: fields, index: index}
}

func (s *Schema) Fields() []Field {
	return s.fields
}

func (s *Schema) NumFields() int {
	return len(s.fields)
}

// FieldIndex returns the position of the named field in the schema, or -1 if there is no such field
func (s *Schema) FieldIndex(name string) int {
	idx, ok := s.index[name]
	if !ok {
		return -1
	}
	return idx
}

func (s *Schema) Equal(other *Schema) bool {
	if other == nil || len(s.fields) != len(other.fields) {
		return false
	}
	for i, f := range s.fields {
		if other.fields[i] != f {
			return false
		}
	}
	return true
}

func (s *Schema) String() string {
	var sb strings.Builder
	for i, f := range s.fields {
		if i > 0 {
			sb.WriteRune(',')
		}
		sb.WriteString(f.Name)
		sb.WriteRune(':')
		sb.WriteString(f.Type.String())
	}
	return sb.String()
}

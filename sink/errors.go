package sink

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies sink errors by how the caller must recover from them
type Kind int

const (
	// KindConfiguration means the sink is misconfigured. Fatal at startup, never retried
	KindConfiguration Kind = iota + 1
	// KindStorage means an object store operation failed. Buffered data is preserved and the caller
	// retries the same batch
	KindStorage
	// KindFormat means a record could not be encoded, e.g. its schema does not match the open file.
	// Buffered data for the affected partitions is suspect and must be rolled back
	KindFormat
	// KindOrdering means a record offset went backwards. The affected partitions must be rolled back
	// and replayed from their committed offsets
	KindOrdering
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindStorage:
		return "storage"
	case KindFormat:
		return "format"
	case KindOrdering:
		return "ordering"
	default:
		return "unknown"
	}
}

// Error is the error type returned by sink operations. It carries the partitions the failure affects
// and, via RollBack, whether their buffered data must be discarded and replayed
type Error struct {
	Kind       Kind
	Msg        string
	Cause      error
	Partitions []TopicPartition
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.String())
	sb.WriteString(" error: ")
	sb.WriteString(e.Msg)
	if len(e.Partitions) > 0 {
		parts := make([]string, len(e.Partitions))
		for i, tp := range e.Partitions {
			parts[i] = tp.String()
		}
		sb.WriteString(" (partitions: ")
		sb.WriteString(strings.Join(parts, ", "))
		sb.WriteString(")")
	}
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// RollBack returns true if buffered data for the affected partitions is suspect and the caller must
// discard it and replay from the last committed offsets
func (e *Error) RollBack() bool {
	return e.Kind == KindFormat || e.Kind == KindOrdering
}

func NewError(kind Kind, msg string, cause error, partitions ...TopicPartition) *Error {
	return &Error{
		Kind:       kind,
		Msg:        msg,
		Cause:      cause,
		Partitions: partitions,
	}
}

func NewConfigurationError(format string, args ...interface{}) *Error {
	return &Error{
		Kind: KindConfiguration,
		Msg:  fmt.Sprintf(format, args...),
	}
}

// AsError returns the sink Error in err's chain, if there is one
func AsError(err error) (*Error, bool) {
	var serr *Error
	if errors.As(err, &serr) {
		return serr, true
	}
	return nil, false
}

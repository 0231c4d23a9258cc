package common

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	log "github.com/spirit-labs/strata/logger"
)

func NewStrataErrorf(errorCode ErrCode, msgFormat string, args ...interface{}) StrataError {
	msg := fmt.Sprintf(msgFormat, args...)
	return NewStrataError(errorCode, msg)
}

func NewStrataError(errorCode ErrCode, msg string) StrataError {
	return StrataError{Code: errorCode, Msg: msg}
}

func NewInternalError(err error) StrataError {
	// With an internal error we log the original error with a reference and we only pass the reference back to the
	// caller, as we don't want to expose internals in user facing messages
	ref := fmt.Sprintf("strata-internal-err-reference-%s", uuid.New().String())
	log.Errorf("internal error with reference %s: %v", ref, err)
	return NewStrataErrorf(InternalError, "an internal error has occurred - please search logs for reference: %s", ref)
}

func IsStrataErrorWithCode(err error, code ErrCode) bool {
	var perr StrataError
	if errors.As(err, &perr) {
		if perr.Code == code {
			return true
		}
	}
	return false
}

func IsUnavailableError(err error) bool {
	return IsStrataErrorWithCode(err, Unavailable)
}

type StrataError struct {
	Code ErrCode
	Msg  string
}

func (u StrataError) Error() string {
	return u.Msg
}

type ErrCode int

const (
	Unavailable ErrCode = iota + 2000
	ShutdownError
	InvalidConfiguration ErrCode = iota + 3000
	InternalError        ErrCode = iota + 5000
)

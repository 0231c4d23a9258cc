package consumer

import (
	"time"

	"github.com/pkg/errors"
)

type Conf struct {
	PollTimeout     time.Duration
	MaxPollMessages int
	CommitInterval  time.Duration
	RetryInterval   time.Duration
}

func NewConf() Conf {
	return Conf{
		PollTimeout:     DefaultPollTimeout,
		MaxPollMessages: DefaultMaxPollMessages,
		CommitInterval:  DefaultCommitInterval,
		RetryInterval:   DefaultRetryInterval,
	}
}

func (c *Conf) Validate() error {
	if c.PollTimeout < 1*time.Millisecond {
		return errors.Errorf("invalid value for poll timeout must be >= 1 ms")
	}
	if c.MaxPollMessages < 1 {
		return errors.Errorf("invalid value for max poll messages must be >= 1")
	}
	if c.CommitInterval < 1*time.Millisecond {
		return errors.Errorf("invalid value for commit interval must be >= 1 ms")
	}
	if c.RetryInterval < 1*time.Millisecond {
		return errors.Errorf("invalid value for retry interval must be >= 1 ms")
	}
	return nil
}

const (
	DefaultPollTimeout     = 100 * time.Millisecond
	DefaultMaxPollMessages = 1000
	DefaultCommitInterval  = 5 * time.Second
	DefaultRetryInterval   = 5 * time.Second
)

package consumer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfDefaults(t *testing.T) {
	conf := NewConf()
	require.NoError(t, conf.Validate())
	require.Equal(t, DefaultPollTimeout, conf.PollTimeout)
	require.Equal(t, DefaultMaxPollMessages, conf.MaxPollMessages)
	require.Equal(t, DefaultCommitInterval, conf.CommitInterval)
	require.Equal(t, DefaultRetryInterval, conf.RetryInterval)
}

func TestConfValidate(t *testing.T) {
	invalidConfTest(t, "invalid value for poll timeout must be >= 1 ms", func(conf *Conf) {
		conf.PollTimeout = 0
	})
	invalidConfTest(t, "invalid value for poll timeout must be >= 1 ms", func(conf *Conf) {
		conf.PollTimeout = -1 * time.Second
	})
	invalidConfTest(t, "invalid value for max poll messages must be >= 1", func(conf *Conf) {
		conf.MaxPollMessages = 0
	})
	invalidConfTest(t, "invalid value for commit interval must be >= 1 ms", func(conf *Conf) {
		conf.CommitInterval = 100 * time.Microsecond
	})
	invalidConfTest(t, "invalid value for retry interval must be >= 1 ms", func(conf *Conf) {
		conf.RetryInterval = 0
	})
}

func invalidConfTest(t *testing.T, expectedErrMsg string, setter func(conf *Conf)) {
	t.Helper()
	conf := NewConf()
	setter(&conf)
	err := conf.Validate()
	require.Error(t, err)
	require.Equal(t, expectedErrMsg, err.Error())
}

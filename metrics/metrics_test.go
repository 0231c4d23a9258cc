package metrics

import (
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/spirit-labs/strata/testutils"
	"github.com/stretchr/testify/require"
)

func TestServerServesRegisteredMetrics(t *testing.T) {
	address := fmt.Sprintf("localhost:%d", testutils.PortProvider.GetPort(t))
	server := NewServer(address, false)
	require.NoError(t, server.Start())
	defer func() {
		require.NoError(t, server.Stop())
	}()

	SinkRecordsWritten.WithLabelValues("payments").Inc()

	var body string
	testutils.WaitUntil(t, func() (bool, error) {
		resp, err := http.Get(fmt.Sprintf("http://%s/metrics", address))
		if err != nil {
			// server may not be listening yet
			return false, nil
		}
		defer func() {
			_ = resp.Body.Close()
		}()
		if resp.StatusCode != http.StatusOK {
			return false, nil
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return false, err
		}
		body = string(data)
		return true, nil
	})
	require.Contains(t, body, "strata_sink_records_written_total")
}

func TestDummyServerDoesNotListen(t *testing.T) {
	server := NewServer("", true)
	require.NoError(t, server.Start())
	require.NoError(t, server.Stop())
}

package observability

import (
	"testing"
	"time"

	"github.com/danmuck/tether/internal/testutil/testlog"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("tetherctl", "GET", "/healthz", 200, 12*time.Millisecond)
	RecordConnectIntent("connect")
	RecordConnectIntent("reconnect")
	RecordDecodeError()
	RecordTerminalFailure("retries_exhausted")
	RecordBackoffDelay(500 * time.Millisecond)
	RecordRelayConnection()
	RecordRelayMessage("inbound")
}

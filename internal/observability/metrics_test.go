package observability

import (
	"testing"
	"time"

	"github.com/danmuck/fixgate/internal/testutil/testlog"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("fixacceptor", "GET", "/health", 200, 12*time.Millisecond)
	RecordMessage("FIX.4.2:A->B", "out", "0")
	RecordResendRequest("FIX.4.2:A->B", "out")
	RecordSequenceReset("FIX.4.2:A->B", "in", true)
	RecordReject("FIX.4.2:A->B", "out")
	RecordHeartbeat("FIX.4.2:A->B", "in")
	RecordTestRequest("FIX.4.2:A->B")
	RecordTermination("FIX.4.2:A->B", "clean")
}

func TestRecordMessageCountsByLabels(t *testing.T) {
	testlog.Start(t)
	before := testutil.ToFloat64(sessionMessages.WithLabelValues("FIX.4.4:X->Y", "in", "D"))
	RecordMessage("FIX.4.4:X->Y", "in", "D")
	RecordMessage("FIX.4.4:X->Y", "in", "D")
	after := testutil.ToFloat64(sessionMessages.WithLabelValues("FIX.4.4:X->Y", "in", "D"))
	if after-before != 2 {
		t.Fatalf("messages delta=%v", after-before)
	}
}

func TestSessionActiveGauge(t *testing.T) {
	testlog.Start(t)
	before := testutil.ToFloat64(sessionsActive)
	SessionActive(true)
	SessionActive(true)
	SessionActive(false)
	if got := testutil.ToFloat64(sessionsActive) - before; got != 1 {
		t.Fatalf("active delta=%v", got)
	}
}

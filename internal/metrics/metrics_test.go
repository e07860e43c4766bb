package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordProbeStrategy(t *testing.T) {
	before := testutil.ToFloat64(ProbeStrategyTotal.WithLabelValues("frames", "ok"))
	RecordProbeStrategy("frames", true)
	RecordProbeStrategy("frames", false)
	assert.Equal(t, before+1, testutil.ToFloat64(ProbeStrategyTotal.WithLabelValues("frames", "ok")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(ProbeStrategyTotal.WithLabelValues("frames", "failed")), 1.0)
}

func TestRecordInvocation(t *testing.T) {
	before := testutil.ToFloat64(InvocationsTotal.WithLabelValues("image", "timeout"))
	RecordInvocation("image", "timeout", 2*time.Second)
	assert.Equal(t, before+1, testutil.ToFloat64(InvocationsTotal.WithLabelValues("image", "timeout")))
}

func TestRecordRequest(t *testing.T) {
	before := testutil.ToFloat64(RequestsTotal.WithLabelValues("video", "ok"))
	RecordRequest("video", "ok", 2, 980, 1000)
	assert.Equal(t, before+1, testutil.ToFloat64(RequestsTotal.WithLabelValues("video", "ok")))
}

func TestWriteTextfile(t *testing.T) {
	RecordKill("SIGTERM")
	path := filepath.Join(t.TempDir(), "sizefit.prom")
	require.NoError(t, WriteTextfile(path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(b)
	assert.True(t, strings.Contains(text, "sizefit_process_kills_total"), "missing kill counter:\n%s", text)
	assert.True(t, strings.Contains(text, `signal="SIGTERM"`))
}

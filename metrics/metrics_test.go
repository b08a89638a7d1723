package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func value(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()

	var out dto.Metric
	require.NoError(t, m.Write(&out))
	switch {
	case out.Counter != nil:
		return out.Counter.GetValue()
	case out.Gauge != nil:
		return out.Gauge.GetValue()
	}
	t.Fatalf("unsupported metric %v", m.Desc())
	return 0
}

func TestRecordHelpers(t *testing.T) {
	before := value(t, RiskDecisions.WithLabelValues("allowed"))
	RecordRiskDecision("")
	assert.Equal(t, before+1, value(t, RiskDecisions.WithLabelValues("allowed")))

	before = value(t, NotificationsSent.WithLabelValues("tp_hit", "failed"))
	RecordNotification("tp_hit", false)
	assert.Equal(t, before+1, value(t, NotificationsSent.WithLabelValues("tp_hit", "failed")))

	before = value(t, InstructionsReaped)
	RecordReaped(0)
	RecordReaped(3)
	assert.Equal(t, before+3, value(t, InstructionsReaped))

	UpdateQuality(map[string]int{"good": 4})
	assert.Equal(t, 4.0, value(t, ConnectionsByQuality.WithLabelValues("good")))
}

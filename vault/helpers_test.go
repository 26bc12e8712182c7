package vault

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/tuneinsight/healthvault/engine"
)

// operationCount sums the operation counter of op over all statuses.
func operationCount(t *testing.T, m *engine.Metrics, op string) int {
	var total float64
	for _, status := range []string{"ok", "not_initialized", "malformed_input", "insufficient_operands", "operand_limit", "internal"} {
		var metric dto.Metric
		require.NoError(t, m.Operations.WithLabelValues(op, status).Write(&metric))
		total += metric.GetCounter().GetValue()
	}
	return int(total)
}

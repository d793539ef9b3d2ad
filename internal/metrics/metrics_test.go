package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters_Increment(t *testing.T) {
	CyclesTotal.Reset()
	ObjectsProcessedTotal.Reset()

	CyclesTotal.WithLabelValues("success").Inc()
	ObjectsProcessedTotal.WithLabelValues("failure").Inc()
	ObjectsProcessedTotal.WithLabelValues("failure").Inc()

	assert.Equal(t, float64(1), testutil.ToFloat64(CyclesTotal.WithLabelValues("success")))
	assert.Equal(t, float64(2), testutil.ToFloat64(ObjectsProcessedTotal.WithLabelValues("failure")))
}

package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveStage(t *testing.T) {
	before := testutil.CollectAndCount(StageDuration)
	ObserveStage("telemetry_test", time.Now().Add(-time.Millisecond))
	assert.Equal(t, before+1, testutil.CollectAndCount(StageDuration))
}

func TestCounters(t *testing.T) {
	Predictions.WithLabelValues("test", "ok").Inc()
	Predictions.WithLabelValues("test", "ok").Inc()
	assert.Equal(t, 2.0, testutil.ToFloat64(Predictions.WithLabelValues("test", "ok")))

	ModelF1.WithLabelValues("current").Set(0.75)
	assert.Equal(t, 0.75, testutil.ToFloat64(ModelF1.WithLabelValues("current")))
}

package instrument

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSpanRecordsOnce(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	ctx := WithInstrumenter(context.Background(), m)

	_, span := GetInstrumenter(ctx).StartSpan(ctx, "engine", "bulk.execute")
	span.SetEntity("competition")
	span.SetStatus("error")
	span.End()
	span.End()

	got := testutil.ToFloat64(m.OperationsTotal.WithLabelValues("engine", "bulk.execute", "competition", "error"))
	assert.Equal(t, 1.0, got)
}

func TestCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.CountMutation("event", "scalar", 4)
	m.CountImport("post", "created", 9, true)
	m.CountImport("post", "failed", 0, true)

	assert.Equal(t, 4.0, testutil.ToFloat64(m.MutatedRecords.WithLabelValues("event", "scalar")))
	assert.Equal(t, 9.0, testutil.ToFloat64(m.ImportItems.WithLabelValues("post", "created", "true")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ImportItems))
}

func TestMissingInstrumenterIsNoop(t *testing.T) {
	inst := GetInstrumenter(context.Background())
	_, ok := inst.(*NoopInstrumenter)
	assert.True(t, ok)
}

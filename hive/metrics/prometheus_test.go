package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestPrometheusSinkRecordsGaugesAndCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := NewPrometheusSink(reg)

	sink.SetInflightTasks(3)
	sink.SetQueueDepth(7)
	sink.IncTasksRetried()
	sink.IncMergeConflicts()
	sink.IncBackpressureEvents()
	sink.ObserveStepLatency(0.25)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		byName[f.GetName()] = f
	}

	if g := byName["hive_inflight_tasks"]; g == nil || g.Metric[0].GetGauge().GetValue() != 3 {
		t.Fatalf("expected hive_inflight_tasks=3, got %v", byName["hive_inflight_tasks"])
	}
	if g := byName["hive_queue_depth"]; g == nil || g.Metric[0].GetGauge().GetValue() != 7 {
		t.Fatalf("expected hive_queue_depth=7, got %v", byName["hive_queue_depth"])
	}
	if c := byName["hive_tasks_retried_total"]; c == nil || c.Metric[0].GetCounter().GetValue() != 1 {
		t.Fatalf("expected hive_tasks_retried_total=1, got %v", byName["hive_tasks_retried_total"])
	}
}

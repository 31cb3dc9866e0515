package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestTaskQueueDepthGauge(t *testing.T) {
	TaskQueueDepth.Set(3)
	if got := testutil.ToFloat64(TaskQueueDepth); got != 3 {
		t.Fatalf("got %v, want 3", got)
	}
}

func TestTasksProcessedCounter(t *testing.T) {
	before := testutil.ToFloat64(TasksProcessedTotal.WithLabelValues("servlet", "ok"))
	TasksProcessedTotal.WithLabelValues("servlet", "ok").Inc()
	after := testutil.ToFloat64(TasksProcessedTotal.WithLabelValues("servlet", "ok"))
	if after != before+1 {
		t.Fatalf("got %v, want %v", after, before+1)
	}
}

package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"gorm.io/gorm"
)

func TestClassifyPipelineErrorReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "deadline",
			err:  context.DeadlineExceeded,
			want: PipelineErrorReasonDeadlineExceeded,
		},
		{
			name: "unique_violation",
			err:  gorm.ErrDuplicatedKey,
			want: PipelineErrorReasonUniqueViolation,
		},
		{
			name: "pg_error",
			err:  &pgconn.PgError{Code: "55P03"},
			want: PipelineErrorReasonDB,
		},
		{
			name: "unknown",
			err:  errors.New("boom"),
			want: PipelineErrorReasonUnknown,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyPipelineErrorReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestAddItemsProcessed(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newPipelineMetrics(registry, Config{
		ServiceName: "marketpulse",
		Environment: "test",
	})

	metrics.AddItemsProcessed(PipelineReanalysis, 3)

	got := testutil.ToFloat64(metrics.itemsProcessed.WithLabelValues(PipelineReanalysis))
	if got != 3 {
		t.Fatalf("expected processed count 3, got %v", got)
	}
}

func TestConstLabelsOnGatheredFamilies(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newPipelineMetrics(registry, Config{
		ServiceName: "marketpulse",
		Environment: "test",
	})
	metrics.IncRun(PipelineDiscovery)

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	var runFamily *dto.MetricFamily
	for _, family := range families {
		if family.GetName() == "marketpulse_pipeline_runs_total" {
			runFamily = family
			break
		}
	}
	if runFamily == nil {
		t.Fatalf("expected pipeline run family to be registered")
	}

	labels := map[string]string{}
	for _, pair := range runFamily.GetMetric()[0].GetLabel() {
		labels[pair.GetName()] = pair.GetValue()
	}
	if labels["service"] != "marketpulse" || labels["env"] != "test" {
		t.Fatalf("expected service/env const labels, got %v", labels)
	}
	if labels["pipeline"] != PipelineDiscovery {
		t.Fatalf("expected pipeline label %q, got %v", PipelineDiscovery, labels)
	}
}

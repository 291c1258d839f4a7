package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCountersInitialized(t *testing.T) {
	Init()

	if SubmissionsAccepted == nil {
		t.Error("SubmissionsAccepted counter not initialized")
	}
	if SubmissionsRejected == nil {
		t.Error("SubmissionsRejected counter not initialized")
	}
	if SubmissionsRetried == nil {
		t.Error("SubmissionsRetried counter not initialized")
	}
	if WeeksPublished == nil {
		t.Error("WeeksPublished counter not initialized")
	}
	if SubmitDuration == nil {
		t.Error("SubmitDuration histogram not initialized")
	}
	if LeaderboardDuration == nil {
		t.Error("LeaderboardDuration histogram not initialized")
	}
}

func TestRetryCacheSizeGauge(t *testing.T) {
	Init()

	sizes := []int{0, 5, 50, 0}
	for _, n := range sizes {
		SetRetryCacheSize(n)
		// Should not panic
	}
}

func TestTimeFuncRecordsObservation(t *testing.T) {
	Init()

	testHistogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_duration_seconds",
		Help:    "Test duration",
		Buckets: prometheus.DefBuckets,
	})
	prometheus.MustRegister(testHistogram)
	defer prometheus.Unregister(testHistogram)

	executed := false
	duration := TimeFunc(testHistogram, func() {
		time.Sleep(10 * time.Millisecond)
		executed = true
	})

	if !executed {
		t.Error("TimeFunc did not execute provided function")
	}
	if duration < 10*time.Millisecond {
		t.Errorf("TimeFunc duration = %v, want >= 10ms", duration)
	}

	metric := &dto.Metric{}
	if err := testHistogram.Write(metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Histogram == nil {
		t.Fatal("Histogram metric is nil")
	}
	if *metric.Histogram.SampleCount == 0 {
		t.Error("TimeFunc did not record observation in histogram")
	}
}

func TestCorrelation(t *testing.T) {
	ctx := context.Background()
	if got := GetCorrelation(ctx); got != "" {
		t.Errorf("GetCorrelation on empty context = %q", got)
	}
	ctx = WithCorrelation(ctx, "corr-123")
	if got := GetCorrelation(ctx); got != "corr-123" {
		t.Errorf("GetCorrelation = %q, want corr-123", got)
	}
	if LoggerWithCorr(ctx) == nil {
		t.Error("LoggerWithCorr returned nil")
	}
}

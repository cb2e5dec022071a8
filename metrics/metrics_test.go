package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/rushteam/homeprice/core"
	"github.com/rushteam/homeprice/pipeline"
)

func TestOutcome(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "ok"},
		{"not loaded", &core.PredictionError{Err: core.ErrModelNotLoaded}, "not_loaded"},
		{"missing", &core.PredictionError{Err: core.ArtifactMissing("models/encoders.json", nil)}, "artifact"},
		{"corrupt", core.ArtifactCorrupt("models/model.json", "bad tree"), "artifact"},
		{"scoring", &core.PredictionError{Err: &core.ScoringError{Start: 0, End: 2, Err: errors.New("boom")}}, "scoring"},
		{"other", fmt.Errorf("record 3: %w", errors.New("not finite")), "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := outcome(tt.err); got != tt.want {
				t.Errorf("outcome() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCollectorObservePrediction(t *testing.T) {
	c := NewCollector()
	before := testutil.ToFloat64(PredictRecords.WithLabelValues("outlier"))
	beforeOK := testutil.ToFloat64(PredictCalls.WithLabelValues("ok"))

	p := &core.Prediction{
		Results: []core.PredictionResult{{Index: 0}, {Index: 2}},
		Skipped: []core.SkippedRecord{{Index: 1, Kind: core.SkipOutlier}},
	}
	c.ObservePrediction(3, p, nil)

	if got := testutil.ToFloat64(PredictRecords.WithLabelValues("outlier")) - before; got != 1 {
		t.Errorf("outlier records delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(PredictCalls.WithLabelValues("ok")) - beforeOK; got != 1 {
		t.Errorf("ok calls delta = %v, want 1", got)
	}
}

func TestCollectorMonitor(t *testing.T) {
	c := NewCollector()
	ctx := context.Background()
	before := testutil.ToFloat64(SkippedRecords.WithLabelValues("invalid", "bedrooms"))
	c.RecordSkipped(ctx, core.SkipInvalid, "bedrooms")
	c.RecordFallback(ctx, "zipcode_unseen")
	c.RecordSubstitution(ctx, "sqft_lot")
	if got := testutil.ToFloat64(SkippedRecords.WithLabelValues("invalid", "bedrooms")) - before; got != 1 {
		t.Errorf("skipped delta = %v", got)
	}
}

func TestCollectorObserveReload(t *testing.T) {
	c := NewCollector()
	c.ObserveReload("v1", nil)
	c.ObserveReload("v2", nil)
	if got := testutil.ToFloat64(ModelInfo.WithLabelValues("v2")); got != 1 {
		t.Errorf("model info v2 = %v", got)
	}
	if n := testutil.CollectAndCount(ModelInfo); n != 1 {
		t.Errorf("model info series = %d, want 1", n)
	}
	before := testutil.ToFloat64(Reloads.WithLabelValues("error"))
	c.ObserveReload("", core.ErrArtifactMissing)
	if got := testutil.ToFloat64(Reloads.WithLabelValues("error")) - before; got != 1 {
		t.Errorf("reload errors delta = %v", got)
	}
	c.ObserveStage(pipeline.KindScore, 5*time.Millisecond)
}

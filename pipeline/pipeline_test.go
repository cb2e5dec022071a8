package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sync"
	"testing"

	"github.com/rushteam/homeprice/core"
	"github.com/rushteam/homeprice/feature"
	"github.com/rushteam/homeprice/model"
	"github.com/rushteam/homeprice/pipeline/pipelinetest"
	"github.com/rushteam/homeprice/store"
)

const testPrefix = "models"

func newTestPipeline(t *testing.T, opts Options, popts ...Option) (*Pipeline, *store.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemoryStore()
	if err := pipelinetest.WriteArtifacts(ctx, s, testPrefix, "v1"); err != nil {
		t.Fatalf("WriteArtifacts: %v", err)
	}
	loader, err := NewArtifactLoader(s, feature.ArtifactLocation{Prefix: testPrefix}, opts)
	if err != nil {
		t.Fatalf("NewArtifactLoader: %v", err)
	}
	p := New(loader, popts...)
	if err := p.Reload(ctx); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	return p, s
}

func TestPredictFullSchema(t *testing.T) {
	p, _ := newTestPipeline(t, Options{ExpectedFeatures: 25})

	pred, err := p.Predict(context.Background(), []core.RawRecord{pipelinetest.Record("1", nil)})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if len(pred.Results) != 1 || len(pred.Skipped) != 0 {
		t.Fatalf("got %d results, %d skipped", len(pred.Results), len(pred.Skipped))
	}
	r := pred.Results[0]
	if math.Abs(r.Predicted-pipelinetest.ExpectedPrediction) > 1e-6 {
		t.Errorf("Predicted = %v, want %v", r.Predicted, pipelinetest.ExpectedPrediction)
	}
	if r.ID != "1" || r.Index != 0 {
		t.Errorf("identity = (%d, %q)", r.Index, r.ID)
	}
	if r.Actual == nil || *r.Actual != 700000 {
		t.Errorf("Actual = %v", r.Actual)
	}
	if len(r.Substituted) != 0 || len(r.Fallbacks) != 0 {
		t.Errorf("unexpected substituted=%v fallbacks=%v", r.Substituted, r.Fallbacks)
	}
}

func TestPredictSkipsMissingBedrooms(t *testing.T) {
	p, _ := newTestPipeline(t, Options{})

	records := []core.RawRecord{
		pipelinetest.Record("ok", nil),
		pipelinetest.Record("bad", func(m map[string]any) { delete(m, "bedrooms") }),
	}
	pred, err := p.Predict(context.Background(), records)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if len(pred.Results) != 1 || len(pred.Skipped) != 1 {
		t.Fatalf("got %d results, %d skipped", len(pred.Results), len(pred.Skipped))
	}
	skip := pred.Skipped[0]
	if skip.Index != 1 || skip.ID != "bad" || skip.Kind != core.SkipInvalid || skip.Field != "bedrooms" {
		t.Errorf("skipped = %+v", skip)
	}
	if pred.Results[0].ID != "ok" {
		t.Errorf("result id = %q", pred.Results[0].ID)
	}
}

func TestPredictMissingArtifact(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	if err := pipelinetest.WriteArtifacts(ctx, s, testPrefix, "v1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, store.JoinKey(testPrefix, feature.DefaultEncodersKey)); err != nil {
		t.Fatal(err)
	}
	loader, err := NewArtifactLoader(s, feature.ArtifactLocation{Prefix: testPrefix}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	p := New(loader)
	if err := p.Reload(ctx); !errors.Is(err, core.ErrArtifactMissing) {
		t.Fatalf("Reload err = %v, want ErrArtifactMissing", err)
	}

	pred, err := p.Predict(ctx, []core.RawRecord{pipelinetest.Record("1", nil)})
	if pred != nil {
		t.Errorf("expected no partial result, got %+v", pred)
	}
	var perr *core.PredictionError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %T %v, want *core.PredictionError", err, err)
	}
	if !errors.Is(err, core.ErrArtifactMissing) {
		t.Errorf("err = %v, want ErrArtifactMissing", err)
	}
}

func TestPredictCorruptArtifact(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	if err := pipelinetest.WriteArtifacts(ctx, s, testPrefix, "v1"); err != nil {
		t.Fatal(err)
	}
	key := store.JoinKey(testPrefix, model.DefaultModelKey)
	if err := s.Set(ctx, key, []byte(`{"type":"linear","version":"v1","coefficients":{"no_such_feature":1}}`)); err != nil {
		t.Fatal(err)
	}
	loader, err := NewArtifactLoader(s, feature.ArtifactLocation{Prefix: testPrefix}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	p := New(loader)
	if err := p.Reload(ctx); !errors.Is(err, core.ErrArtifactCorrupt) {
		t.Fatalf("Reload err = %v, want ErrArtifactCorrupt", err)
	}
	if _, err := p.Predict(ctx, nil); !errors.Is(err, core.ErrArtifactCorrupt) {
		t.Errorf("Predict err = %v, want ErrArtifactCorrupt", err)
	}
}

func TestPredictNotLoaded(t *testing.T) {
	p := New(nil)
	_, err := p.Predict(context.Background(), []core.RawRecord{pipelinetest.Record("1", nil)})
	if !errors.Is(err, core.ErrModelNotLoaded) {
		t.Fatalf("err = %v, want ErrModelNotLoaded", err)
	}
	h := p.Health()
	if h.Status != StatusUnhealthy || h.ModelLoaded || h.NFeaturesExpected != 0 {
		t.Errorf("health = %+v", h)
	}
}

func TestPredictCountAndOrder(t *testing.T) {
	p, _ := newTestPipeline(t, Options{})

	var records []core.RawRecord
	for i := 0; i < 12; i++ {
		id := fmt.Sprintf("r%d", i)
		switch i % 3 {
		case 1:
			records = append(records, pipelinetest.Record(id, func(m map[string]any) { m["sqft_living"] = "n/a" }))
		default:
			sqft := 1000.0 + float64(i)*100
			records = append(records, pipelinetest.Record(id, func(m map[string]any) { m["sqft_living"] = sqft }))
		}
	}
	pred, err := p.Predict(context.Background(), records)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if got := len(pred.Results) + len(pred.Skipped); got != len(records) {
		t.Fatalf("results+skipped = %d, want %d", got, len(records))
	}
	if len(pred.Skipped) != 4 {
		t.Errorf("skipped = %d, want 4", len(pred.Skipped))
	}
	last := -1
	for _, r := range pred.Results {
		if r.Index <= last {
			t.Fatalf("results out of order: %d after %d", r.Index, last)
		}
		if r.ID != fmt.Sprintf("r%d", r.Index) {
			t.Errorf("result %d has id %q", r.Index, r.ID)
		}
		last = r.Index
	}
	// sqft_living 越大预测越高，顺序保留时预测值严格递增
	for i := 1; i < len(pred.Results); i++ {
		if pred.Results[i].Predicted <= pred.Results[i-1].Predicted {
			t.Errorf("prediction %d not increasing", i)
		}
	}
}

func TestPredictIdempotent(t *testing.T) {
	p, _ := newTestPipeline(t, Options{})
	records := []core.RawRecord{
		pipelinetest.Record("a", nil),
		pipelinetest.Record("b", func(m map[string]any) { m["zipcode"] = "11111"; delete(m, "city_full") }),
		pipelinetest.Record("c", func(m map[string]any) { m["date"] = "not a date" }),
	}
	first, err := p.Predict(context.Background(), records)
	if err != nil {
		t.Fatal(err)
	}
	second, err := p.Predict(context.Background(), records)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("predictions differ:\n%+v\n%+v", first, second)
	}
}

func TestPredictUnseenZipcode(t *testing.T) {
	p, _ := newTestPipeline(t, Options{})
	rec := pipelinetest.Record("x", func(m map[string]any) {
		m["zipcode"] = "11111"
		delete(m, "city_full")
	})
	pred, err := p.Predict(context.Background(), []core.RawRecord{rec})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if len(pred.Results) != 1 {
		t.Fatalf("results = %d, want 1", len(pred.Results))
	}
	r := pred.Results[0]
	want := []string{"zipcode_unseen", feature.FallbackRegionUnresolve}
	if !reflect.DeepEqual(r.Fallbacks, want) {
		t.Errorf("fallbacks = %v, want %v", r.Fallbacks, want)
	}
	// zipcode_freq -> 0, city_full_encoded -> 全局均值
	expected := pipelinetest.ExpectedPrediction - 0.25*10000 - 600000*0.5 + pipelinetest.GlobalMean*0.5
	if math.Abs(r.Predicted-expected) > 1e-6 {
		t.Errorf("Predicted = %v, want %v", r.Predicted, expected)
	}
}

func TestPredictDateSentinelStillPredicts(t *testing.T) {
	p, _ := newTestPipeline(t, Options{Transform: feature.TransformOptions{DateSentinel: -1}})
	rec := pipelinetest.Record("d", func(m map[string]any) { m["date"] = "yesterday" })
	pred, err := p.Predict(context.Background(), []core.RawRecord{rec})
	if err != nil {
		t.Fatal(err)
	}
	if len(pred.Results) != 1 || len(pred.Skipped) != 0 {
		t.Fatalf("got %d results, %d skipped", len(pred.Results), len(pred.Skipped))
	}
	if !reflect.DeepEqual(pred.Results[0].Fallbacks, []string{feature.FallbackDateSentinel}) {
		t.Errorf("fallbacks = %v", pred.Results[0].Fallbacks)
	}
}

// widthRecorder 记录每次打分收到的向量宽度
type widthRecorder struct {
	mu     sync.Mutex
	widths []int
	fail   bool
}

func (w *widthRecorder) Name() string { return "width-recorder" }

func (w *widthRecorder) PredictBatch(ctx context.Context, vectors [][]float64) ([]float64, error) {
	if w.fail {
		return nil, errors.New("boom")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]float64, len(vectors))
	for i, v := range vectors {
		w.widths = append(w.widths, len(v))
		out[i] = 1
	}
	return out, nil
}

func swapTestSnapshot(t *testing.T, p *Pipeline, r model.Regressor) {
	t.Helper()
	es, err := feature.NewEncoderStore(pipelinetest.Schema("v1"), pipelinetest.Encoders("v1"), pipelinetest.Regions(), nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	snap, err := NewSnapshot(es, &model.Model{Regressor: r, Type: "test", Version: "v1"}, nil, Options{BatchSize: 2})
	if err != nil {
		t.Fatal(err)
	}
	p.Swap(snap)
}

func TestPredictVectorWidth(t *testing.T) {
	p := New(nil)
	rec := &widthRecorder{}
	swapTestSnapshot(t, p, rec)

	records := []core.RawRecord{
		pipelinetest.Record("full", nil),
		pipelinetest.Record("sparse", func(m map[string]any) {
			for _, k := range []string{"floors", "view", "lat", "long", "inventory", "date"} {
				delete(m, k)
			}
		}),
		pipelinetest.Record("extra", func(m map[string]any) { m["garage_spaces"] = 2.0 }),
	}
	pred, err := p.Predict(context.Background(), records)
	if err != nil {
		t.Fatal(err)
	}
	if len(pred.Results) != 3 {
		t.Fatalf("results = %d", len(pred.Results))
	}
	for _, w := range rec.widths {
		if w != len(pipelinetest.Columns) {
			t.Errorf("vector width = %d, want %d", w, len(pipelinetest.Columns))
		}
	}
	want := []string{"floors", "view", "lat", "long", "inventory"}
	if got := pred.Results[1].Substituted; !reflect.DeepEqual(got, want) {
		t.Errorf("substituted = %v, want %v", got, want)
	}
}

func TestPredictScoringFailureMapsRecordRange(t *testing.T) {
	p := New(nil)
	swapTestSnapshot(t, p, &widthRecorder{fail: true})

	records := []core.RawRecord{
		pipelinetest.Record("bad", func(m map[string]any) { delete(m, "zipcode") }),
		pipelinetest.Record("a", nil),
		pipelinetest.Record("b", nil),
	}
	pred, err := p.Predict(context.Background(), records)
	if pred != nil {
		t.Fatalf("expected no partial result")
	}
	var se *core.ScoringError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want ScoringError", err)
	}
	if se.Start != 1 || se.End != 3 {
		t.Errorf("range = [%d, %d), want [1, 3)", se.Start, se.End)
	}
}

func TestPredictOutlierSkipped(t *testing.T) {
	min := 1.0
	p, _ := newTestPipeline(t, Options{Outliers: feature.OutlierConfig{
		Enabled: true,
		Ranges:  map[string]feature.Range{"bedrooms": {Min: &min}},
		Rules:   []string{"sqft_living <= 0.0"},
	}})
	records := []core.RawRecord{
		pipelinetest.Record("zero-sqft", func(m map[string]any) { m["sqft_living"] = 0.0 }),
		pipelinetest.Record("no-bedrooms", func(m map[string]any) { m["bedrooms"] = 0.0 }),
		pipelinetest.Record("ok", nil),
	}
	pred, err := p.Predict(context.Background(), records)
	if err != nil {
		t.Fatal(err)
	}
	if pred.CountSkipped(core.SkipOutlier) != 2 || len(pred.Results) != 1 {
		t.Fatalf("results=%d skipped=%+v", len(pred.Results), pred.Skipped)
	}
	if pred.Skipped[0].Reason != "outlier: sqft_living <= 0.0" {
		t.Errorf("reason = %q", pred.Skipped[0].Reason)
	}
}

func TestPredictRecordsMonitor(t *testing.T) {
	mon := feature.NewMemoryMonitor()
	p, _ := newTestPipeline(t, Options{}, WithMonitor(mon))
	records := []core.RawRecord{
		pipelinetest.Record("a", func(m map[string]any) { m["zipcode"] = "11111" }),
		pipelinetest.Record("b", func(m map[string]any) { delete(m, "inventory") }),
		pipelinetest.Record("c", func(m map[string]any) { m["bathrooms"] = nil }),
	}
	if _, err := p.Predict(context.Background(), records); err != nil {
		t.Fatal(err)
	}
	stats := mon.Stats()
	if stats.Fallbacks["zipcode_unseen"] != 1 {
		t.Errorf("fallbacks = %v", stats.Fallbacks)
	}
	if stats.Substitutions["inventory"] != 1 {
		t.Errorf("substitutions = %v", stats.Substitutions)
	}
	if stats.Skipped["invalid:bathrooms"] != 1 {
		t.Errorf("skipped = %v", stats.Skipped)
	}
}

func TestReloadFailureKeepsSnapshot(t *testing.T) {
	ctx := context.Background()
	p, s := newTestPipeline(t, Options{})
	before := p.Snapshot()

	if err := s.Delete(ctx, store.JoinKey(testPrefix, model.DefaultModelKey)); err != nil {
		t.Fatal(err)
	}
	if err := p.Reload(ctx); !errors.Is(err, core.ErrArtifactMissing) {
		t.Fatalf("Reload err = %v", err)
	}
	if p.Snapshot() != before {
		t.Fatal("snapshot replaced after failed reload")
	}
	if _, err := p.Predict(ctx, []core.RawRecord{pipelinetest.Record("1", nil)}); err != nil {
		t.Errorf("Predict after failed reload: %v", err)
	}
	h := p.Health()
	if h.Status != StatusHealthy || !h.ModelLoaded || h.LastError == "" {
		t.Errorf("health = %+v", h)
	}
}

func TestHealth(t *testing.T) {
	p, _ := newTestPipeline(t, Options{})
	h := p.Health()
	if h.Status != StatusHealthy || !h.ModelLoaded {
		t.Fatalf("health = %+v", h)
	}
	if h.NFeaturesExpected != 25 || h.ModelVersion != "v1" || h.ModelType != model.TypeLinear {
		t.Errorf("health = %+v", h)
	}
	if h.Service != ServiceName || h.LoadedAt == nil || h.LastError != "" {
		t.Errorf("health = %+v", h)
	}
}

func TestExpectedFeaturesMismatch(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	if err := pipelinetest.WriteArtifacts(ctx, s, testPrefix, "v1"); err != nil {
		t.Fatal(err)
	}
	loader, err := NewArtifactLoader(s, feature.ArtifactLocation{Prefix: testPrefix}, Options{ExpectedFeatures: 24})
	if err != nil {
		t.Fatal(err)
	}
	if err := New(loader).Reload(ctx); !errors.Is(err, core.ErrArtifactCorrupt) {
		t.Errorf("err = %v, want ErrArtifactCorrupt", err)
	}
}

func TestConcurrentPredictDuringReload(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestPipeline(t, Options{})
	records := []core.RawRecord{pipelinetest.Record("1", nil), pipelinetest.Record("2", nil)}

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			pred, err := p.Predict(ctx, records)
			if err == nil && len(pred.Results) != 2 {
				err = fmt.Errorf("results = %d", len(pred.Results))
			}
			errs <- err
		}()
		go func() {
			defer wg.Done()
			errs <- p.Reload(ctx)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Error(err)
		}
	}
}

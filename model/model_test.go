package model

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/rushteam/homeprice/core"
	"github.com/rushteam/homeprice/feature"
	"github.com/rushteam/homeprice/store"
)

var testColumns = []string{"bedrooms", "bathrooms", "sqft_living"}

func testSchema() *feature.Schema {
	return &feature.Schema{FeatureColumns: testColumns, FeatureCount: 3, ModelVersion: "v1"}
}

func leaf(id int, v float64) *TreeNode { return &TreeNode{NodeID: id, Leaf: &v} }

func TestLinearModel(t *testing.T) {
	m, err := NewLinearModel(100, map[string]float64{"bedrooms": 10, "sqft_living": 2}, testColumns)
	if err != nil {
		t.Fatalf("NewLinearModel: %v", err)
	}
	got, err := m.PredictBatch(context.Background(), [][]float64{{3, 2, 1000}, {0, 0, 0}})
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != 2130 || got[1] != 100 {
		t.Errorf("PredictBatch = %v", got)
	}
	if _, err := m.PredictBatch(context.Background(), [][]float64{{1}}); err == nil {
		t.Error("short vector should fail")
	}
	if _, err := NewLinearModel(0, map[string]float64{"garage": 1}, testColumns); err == nil {
		t.Error("unknown coefficient should fail")
	}
}

func TestGBDTModel(t *testing.T) {
	// sqft_living < 1500 ? 1.0 : (f0 < 4 ? 2.0 : 3.0)
	tree := &TreeNode{
		NodeID: 0, Split: "sqft_living", SplitCondition: 1500, Yes: 1, No: 2, Missing: 1,
		Children: []*TreeNode{
			leaf(1, 1),
			{NodeID: 2, Split: "f0", SplitCondition: 4, Yes: 3, No: 4, Missing: 4,
				Children: []*TreeNode{leaf(3, 2), leaf(4, 3)}},
		},
	}
	m, err := NewGBDTModel(0.5, []*TreeNode{tree, {NodeID: 0, Leaf: ptr(10)}}, testColumns)
	if err != nil {
		t.Fatalf("NewGBDTModel: %v", err)
	}
	if m.Trees() != 2 {
		t.Errorf("Trees = %d", m.Trees())
	}
	got, err := m.PredictBatch(context.Background(), [][]float64{
		{3, 2, 1000},
		{3, 2, 2000},
		{5, 2, 2000},
		{3, 2, math.NaN()},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{11.5, 12.5, 13.5, 11.5}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("row %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func ptr(v float64) *float64 { return &v }

func TestGBDTModelInvalid(t *testing.T) {
	tests := []struct {
		name  string
		trees []*TreeNode
	}{
		{"no trees", nil},
		{"unknown split", []*TreeNode{{NodeID: 0, Split: "garage", Yes: 1, No: 2, Missing: 1, Children: []*TreeNode{leaf(1, 1), leaf(2, 2)}}}},
		{"split index out of range", []*TreeNode{{NodeID: 0, Split: "f9", Yes: 1, No: 2, Missing: 1, Children: []*TreeNode{leaf(1, 1), leaf(2, 2)}}}},
		{"missing child", []*TreeNode{{NodeID: 0, Split: "f0", Yes: 1, No: 5, Missing: 1, Children: []*TreeNode{leaf(1, 1)}}}},
		{"cycle", []*TreeNode{{NodeID: 0, Split: "f0", Yes: 0, No: 1, Missing: 1, Children: []*TreeNode{leaf(1, 1)}}}},
		{"root not zero", []*TreeNode{leaf(3, 1)}},
		{"duplicate id", []*TreeNode{{NodeID: 0, Split: "f0", Yes: 1, No: 1, Missing: 1, Children: []*TreeNode{leaf(1, 1), leaf(1, 2)}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewGBDTModel(0, tt.trees, testColumns); err == nil {
				t.Error("want error")
			}
		})
	}
}

func TestTargetTransform(t *testing.T) {
	if got := TransformLog1p.Inverse(math.Log1p(500000)); math.Abs(got-500000) > 1e-6 {
		t.Errorf("log1p inverse = %v", got)
	}
	if got := TransformNone.Inverse(3); got != 3 {
		t.Errorf("identity = %v", got)
	}
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	s.Set(ctx, "m/linear.json", []byte(`{"type":"linear","version":"v1","intercept":1,"coefficients":{"bedrooms":2}}`))
	s.Set(ctx, "m/gbdt.json", []byte(`{"type":"gbdt","trees":[{"nodeid":0,"split":"bedrooms","split_condition":3,"yes":1,"no":2,"missing":1,"children":[{"nodeid":1,"leaf":0.5},{"nodeid":2,"leaf":1.5}]}]}`))
	s.Set(ctx, "m/garbage.json", []byte(`not json`))
	s.Set(ctx, "m/unknown.json", []byte(`{"type":"svm"}`))
	s.Set(ctx, "m/notype.json", []byte(`{"version":"v1"}`))
	s.Set(ctx, "m/version.json", []byte(`{"type":"linear","version":"v2","coefficients":{}}`))
	s.Set(ctx, "m/nocoef.json", []byte(`{"type":"linear"}`))
	s.Set(ctx, "m/transform.json", []byte(`{"type":"linear","coefficients":{},"target_transform":"sqrt"}`))
	s.Set(ctx, "m/rpc.json", []byte(`{"type":"rpc"}`))

	m, err := Load(ctx, s, "m/linear.json", testSchema(), LoadOptions{})
	if err != nil {
		t.Fatalf("Load linear: %v", err)
	}
	if m.Type != TypeLinear || m.Version != "v1" {
		t.Errorf("model = %+v", m)
	}
	g, err := Load(ctx, s, "m/gbdt.json", testSchema(), LoadOptions{})
	if err != nil {
		t.Fatalf("Load gbdt: %v", err)
	}
	if g.Version != "v1" {
		t.Errorf("version should default to schema version, got %q", g.Version)
	}
	r, err := Load(ctx, s, "m/rpc.json", testSchema(), LoadOptions{RPC: RPCOptions{Endpoint: "http://127.0.0.1:1/predict"}})
	if err != nil {
		t.Fatalf("Load rpc with configured endpoint: %v", err)
	}
	if r.Regressor.Name() != "rpc" {
		t.Errorf("Regressor = %s", r.Regressor.Name())
	}

	for _, key := range []string{"m/absent.json", "m/garbage.json"} {
		if _, err := Load(ctx, s, key, testSchema(), LoadOptions{}); !core.IsArtifactMissing(err) {
			t.Errorf("Load(%s): want missing, got %v", key, err)
		}
	}
	for _, key := range []string{"m/unknown.json", "m/notype.json", "m/version.json", "m/nocoef.json", "m/transform.json", "m/rpc.json"} {
		if _, err := Load(ctx, s, key, testSchema(), LoadOptions{}); !core.IsArtifactCorrupt(err) {
			t.Errorf("Load(%s): want corrupt, got %v", key, err)
		}
	}
}

type stubRegressor struct {
	fn    func(batch [][]float64) ([]float64, error)
	calls int
}

func (s *stubRegressor) Name() string { return "stub" }

func (s *stubRegressor) PredictBatch(ctx context.Context, vectors [][]float64) ([]float64, error) {
	s.calls++
	return s.fn(vectors)
}

func sumRegressor() *stubRegressor {
	return &stubRegressor{fn: func(batch [][]float64) ([]float64, error) {
		out := make([]float64, len(batch))
		for i, v := range batch {
			for _, x := range v {
				out[i] += x
			}
		}
		return out, nil
	}}
}

func vectors(n int) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		out[i] = []float64{float64(i), 0, 0}
	}
	return out
}

func TestEngineScore(t *testing.T) {
	reg := sumRegressor()
	e, err := NewEngine(&Model{Regressor: reg, Version: "v1"}, 3, 4)
	if err != nil {
		t.Fatal(err)
	}
	got, err := e.Score(context.Background(), vectors(10))
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if len(got) != 10 {
		t.Fatalf("len = %d", len(got))
	}
	for i, v := range got {
		if v != float64(i) {
			t.Errorf("row %d = %v, order not preserved", i, v)
		}
	}
	if reg.calls != 3 {
		t.Errorf("calls = %d, want 3 mini-batches", reg.calls)
	}
	if empty, err := e.Score(context.Background(), nil); err != nil || len(empty) != 0 {
		t.Errorf("empty input = %v, %v", empty, err)
	}
}

func TestEngineScoreErrors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		reg        *stubRegressor
		transform  TargetTransform
		in         [][]float64
		start, end int
	}{
		{
			name:  "wrong width",
			reg:   sumRegressor(),
			in:    [][]float64{{1, 2, 3}, {1, 2}},
			start: 1, end: 2,
		},
		{
			name: "model error in second batch",
			reg: &stubRegressor{fn: func(b [][]float64) ([]float64, error) {
				if b[0][0] >= 4 {
					return nil, errors.New("boom")
				}
				return make([]float64, len(b)), nil
			}},
			in:    vectors(6),
			start: 4, end: 6,
		},
		{
			name:  "panic",
			reg:   &stubRegressor{fn: func(b [][]float64) ([]float64, error) { panic("index out of range") }},
			in:    vectors(2),
			start: 0, end: 2,
		},
		{
			name:  "short output",
			reg:   &stubRegressor{fn: func(b [][]float64) ([]float64, error) { return []float64{1}, nil }},
			in:    vectors(2),
			start: 0, end: 2,
		},
		{
			name: "non-finite output",
			reg: &stubRegressor{fn: func(b [][]float64) ([]float64, error) {
				return []float64{1, math.Inf(1)}, nil
			}},
			in:    vectors(2),
			start: 1, end: 2,
		},
		{
			name:      "overflow after inverse transform",
			reg:       &stubRegressor{fn: func(b [][]float64) ([]float64, error) { return []float64{1e6}, nil }},
			transform: TransformLog1p,
			in:        vectors(1),
			start:     0, end: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewEngine(&Model{Regressor: tt.reg, Transform: tt.transform}, 3, 4)
			if err != nil {
				t.Fatal(err)
			}
			got, err := e.Score(ctx, tt.in)
			if got != nil {
				t.Errorf("partial results returned: %v", got)
			}
			var se *core.ScoringError
			if !errors.As(err, &se) {
				t.Fatalf("want ScoringError, got %v", err)
			}
			if se.Start != tt.start || se.End != tt.end {
				t.Errorf("range = [%d,%d), want [%d,%d)", se.Start, se.End, tt.start, tt.end)
			}
		})
	}
}

func TestNewEngineWithoutModel(t *testing.T) {
	if _, err := NewEngine(nil, 3, 0); !errors.Is(err, core.ErrModelNotLoaded) {
		t.Errorf("want ErrModelNotLoaded, got %v", err)
	}
}

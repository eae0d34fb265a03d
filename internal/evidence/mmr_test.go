package evidence

import (
	"reflect"
	"testing"
)

func TestMaximalMarginalRelevance_Bounds(t *testing.T) {
	query := []float32{1, 0}
	candidates := [][]float32{{1, 0}, {0, 1}}

	if got := maximalMarginalRelevance(query, candidates, 0.5, 0); got != nil {
		t.Errorf("k=0 should select nothing, got %v", got)
	}
	if got := maximalMarginalRelevance(query, nil, 0.5, 3); got != nil {
		t.Errorf("no candidates should select nothing, got %v", got)
	}
	if got := maximalMarginalRelevance(query, candidates, 0.5, 10); len(got) != 2 {
		t.Errorf("k beyond pool should select all candidates, got %v", got)
	}
}

func TestMaximalMarginalRelevance_PureRelevance(t *testing.T) {
	// lambda=1 degenerates to plain similarity ranking.
	query := []float32{1, 0, 0}
	candidates := [][]float32{
		{0, 1, 0},       // orthogonal
		{1, 0, 0},       // identical
		{0.9, 0.1, 0.1}, // close
	}

	got := maximalMarginalRelevance(query, candidates, 1.0, 3)
	want := []int{1, 2, 0}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("selection = %v, want %v", got, want)
	}
}

func TestMaximalMarginalRelevance_DiversitySkipsDuplicates(t *testing.T) {
	query := []float32{1, 0, 0}
	candidates := [][]float32{
		{1, 0, 0},        // best match
		{0.999, 0.01, 0}, // near-duplicate of 0
		{0, 1, 0},        // diverse
	}

	got := maximalMarginalRelevance(query, candidates, 0.5, 2)
	want := []int{0, 2}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("selection = %v, want %v (duplicate must lose to diverse)", got, want)
	}
}

func TestMaximalMarginalRelevance_Deterministic(t *testing.T) {
	query := []float32{0.3, 0.7, 0.2}
	candidates := [][]float32{
		{0.3, 0.7, 0.2}, {0.1, 0.9, 0}, {0.5, 0.5, 0.5}, {0, 0, 1}, {0.3, 0.69, 0.21},
	}

	first := maximalMarginalRelevance(query, candidates, 0.5, 3)
	for i := 0; i < 10; i++ {
		if got := maximalMarginalRelevance(query, candidates, 0.5, 3); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d produced %v, first run produced %v", i, got, first)
		}
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"length mismatch", []float32{1, 0}, []float32{1}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cosineSimilarity(tt.a, tt.b)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("cosineSimilarity() = %v, want %v", got, tt.want)
			}
		})
	}
}

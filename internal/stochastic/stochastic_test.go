package stochastic

import (
	"errors"
	"math"
	"testing"
)

func TestNormalSource_Deterministic(t *testing.T) {
	a := NewNormalSource(42)
	b := NewNormalSource(42)

	for i := 0; i < 1000; i++ {
		va, vb := a.Norm(), b.Norm()
		if va != vb {
			t.Fatalf("draw %d diverged: %v vs %v", i, va, vb)
		}
	}
}

func TestNormalSource_DifferentSeedsDiverge(t *testing.T) {
	a := NewNormalSource(1)
	b := NewNormalSource(2)

	same := true
	for i := 0; i < 10; i++ {
		if a.Norm() != b.Norm() {
			same = false
			break
		}
	}
	if same {
		t.Error("different seeds produced identical streams")
	}
}

func TestNormalSource_Moments(t *testing.T) {
	s := NewNormalSource(7)
	const n = 200000

	sum, sumSq := 0.0, 0.0
	for i := 0; i < n; i++ {
		v := s.Norm()
		sum += v
		sumSq += v * v
	}
	mean := sum / n
	variance := sumSq/n - mean*mean

	if math.Abs(mean) > 0.02 {
		t.Errorf("mean %v, want ~0", mean)
	}
	if math.Abs(variance-1) > 0.02 {
		t.Errorf("variance %v, want ~1", variance)
	}
}

func TestCholesky_Identity(t *testing.T) {
	m := [][]float64{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}

	l, err := Cholesky(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range m {
		for j := range m {
			if l[i][j] != m[i][j] {
				t.Errorf("l[%d][%d] = %v, want %v", i, j, l[i][j], m[i][j])
			}
		}
	}
}

func TestCholesky_Reconstructs(t *testing.T) {
	m := [][]float64{
		{1, 0.5},
		{0.5, 1},
	}

	l, err := Cholesky(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// l*lᵀ must reproduce m
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			sum := 0.0
			for k := 0; k < 2; k++ {
				sum += l[i][k] * l[j][k]
			}
			if math.Abs(sum-m[i][j]) > 1e-12 {
				t.Errorf("(l*lT)[%d][%d] = %v, want %v", i, j, sum, m[i][j])
			}
		}
	}
}

func TestCholesky_NotPositiveDefinite(t *testing.T) {
	// Off-diagonal 2.0 is not a valid correlation; factorization must fail.
	m := [][]float64{
		{1, 2},
		{2, 1},
	}

	_, err := Cholesky(m)
	if !errors.Is(err, ErrNotPositiveDefinite) {
		t.Fatalf("expected ErrNotPositiveDefinite, got %v", err)
	}
}

func TestMatVec(t *testing.T) {
	m := [][]float64{
		{1, 2},
		{3, 4},
	}
	v := []float64{5, 6}

	out := MatVec(m, v)
	if out[0] != 17 || out[1] != 39 {
		t.Errorf("got %v, want [17 39]", out)
	}
}

func TestNormCDF(t *testing.T) {
	if got := NormCDF(0); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("NormCDF(0) = %v, want 0.5", got)
	}
	if got := NormCDF(1.96); math.Abs(got-0.975) > 1e-3 {
		t.Errorf("NormCDF(1.96) = %v, want ~0.975", got)
	}
}

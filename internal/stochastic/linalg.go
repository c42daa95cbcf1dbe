package stochastic

import (
	"errors"
	"fmt"
	"math"
)

// ErrNotPositiveDefinite is returned when a correlation matrix admits no
// real Cholesky factor. It indicates an invalid simulation request and
// aborts the whole batch.
var ErrNotPositiveDefinite = errors.New("correlation matrix is not positive definite")

// Cholesky computes the lower-triangular factor L of a symmetric
// positive-definite matrix, with a*aᵀ = input. The input is a dense row-major
// square matrix and is not modified.
func Cholesky(m [][]float64) ([][]float64, error) {
	n := len(m)
	for i, row := range m {
		if len(row) != n {
			return nil, fmt.Errorf("matrix is not square: row %d has %d columns, want %d", i, len(row), n)
		}
	}

	l := make([][]float64, n)
	for i := range l {
		l[i] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			sum := 0.0
			for k := 0; k < j; k++ {
				sum += l[i][k] * l[j][k]
			}
			if i == j {
				d := m[i][i] - sum
				if d <= 0 {
					return nil, ErrNotPositiveDefinite
				}
				l[i][j] = math.Sqrt(d)
			} else {
				l[i][j] = (m[i][j] - sum) / l[j][j]
			}
		}
	}
	return l, nil
}

// MatVec multiplies a square matrix by a vector.
func MatVec(m [][]float64, v []float64) []float64 {
	out := make([]float64, len(m))
	for i, row := range m {
		sum := 0.0
		for j, x := range row {
			sum += x * v[j]
		}
		out[i] = sum
	}
	return out
}

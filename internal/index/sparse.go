package index

import "math"

// SparseVector holds the non-zero cells of a term-weight row.
// Indices are strictly increasing.
type SparseVector struct {
	Indices []int     `json:"i"`
	Values  []float64 `json:"v"`
}

// Len returns the number of non-zero cells.
func (v SparseVector) Len() int { return len(v.Indices) }

// Norm returns the L2 norm.
func (v SparseVector) Norm() float64 {
	sum := 0.0
	for _, x := range v.Values {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// Dot returns the inner product of two sparse vectors.
func (v SparseVector) Dot(o SparseVector) float64 {
	sum := 0.0
	i, j := 0, 0
	for i < len(v.Indices) && j < len(o.Indices) {
		switch {
		case v.Indices[i] == o.Indices[j]:
			sum += v.Values[i] * o.Values[j]
			i++
			j++
		case v.Indices[i] < o.Indices[j]:
			i++
		default:
			j++
		}
	}
	return sum
}

// DotDense returns the inner product with a dense vector.
func (v SparseVector) DotDense(dense []float64) float64 {
	sum := 0.0
	for k, idx := range v.Indices {
		if idx < len(dense) {
			sum += v.Values[k] * dense[idx]
		}
	}
	return sum
}

// Cosine returns the cosine similarity of a and b, 0 when either is empty.
func Cosine(a, b SparseVector) float64 {
	na, nb := a.Norm(), b.Norm()
	if na == 0 || nb == 0 {
		return 0
	}
	return a.Dot(b) / (na * nb)
}

func normalize(v SparseVector) SparseVector {
	n := v.Norm()
	if n == 0 {
		return v
	}
	for i := range v.Values {
		v.Values[i] /= n
	}
	return v
}

package index

import (
	"errors"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/NihalShah4/ai-news-research-recommender/internal/models"
)

// MinMapDocuments is the smallest corpus a 2D map is fit for.
const MinMapDocuments = 3

const (
	mapComponents = 2
	// Sketch width beyond the kept components, and refinement passes.
	oversampling    = 10
	powerIterations = 5
	projectionSeed  = 42
)

var errProjection = errors.New("projection failed")

// Projection is a 2-component truncated SVD of the term matrix together with
// the coordinates of every document.
type Projection struct {
	components [mapComponents][]float64
	coords     []models.Point
}

// FitProjection computes the top two right singular vectors of the term
// matrix by randomized subspace iteration. Every pass touches each non-zero
// cell a constant number of times. It returns nil for fewer than
// MinMapDocuments rows or on numerical failure.
func FitProjection(terms *TermIndex) *Projection {
	n, vocab := terms.Rows(), terms.VocabularySize()
	if n < MinMapDocuments || vocab == 0 {
		return nil
	}
	width := min(mapComponents+oversampling, n, vocab)

	rng := rand.New(rand.NewPCG(projectionSeed, projectionSeed))
	omega := mat.NewDense(vocab, width, nil)
	raw := omega.RawMatrix().Data
	for i := range raw {
		raw[i] = rng.NormFloat64()
	}

	y := mulRows(terms, omega)
	for range powerIterations {
		q, ok := orthonormalize(y)
		if !ok {
			return nil
		}
		z, ok := orthonormalize(mulRowsT(terms, q))
		if !ok {
			return nil
		}
		y = mulRows(terms, z)
	}
	q, ok := orthonormalize(y)
	if !ok {
		return nil
	}

	// The right singular vectors of X are the left singular vectors of
	// (QᵀX)ᵀ = XᵀQ, which is only vocab x width.
	var svd mat.SVD
	if !svd.Factorize(mulRowsT(terms, q), mat.SVDThinU) {
		return nil
	}
	values := svd.Values(nil)
	var u mat.Dense
	svd.UTo(&u)

	p := &Projection{coords: make([]models.Point, n)}
	for c := 0; c < mapComponents; c++ {
		comp := make([]float64, vocab)
		if c < len(values) && values[c] > 1e-12 {
			mat.Col(comp, c, &u)
		}
		flipSign(comp)
		p.components[c] = comp
	}

	for i := 0; i < n; i++ {
		px, py, err := p.project(terms.Row(i))
		if err != nil {
			return nil
		}
		p.coords[i] = models.Point{X: px, Y: py}
	}
	return p
}

// mulRows returns X·m for the n x vocab term matrix X and a vocab x w matrix m.
func mulRows(terms *TermIndex, m *mat.Dense) *mat.Dense {
	_, w := m.Dims()
	in := m.RawMatrix()
	out := mat.NewDense(terms.Rows(), w, nil)
	res := out.RawMatrix()
	for i := 0; i < terms.Rows(); i++ {
		dst := res.Data[i*res.Stride : i*res.Stride+w]
		row := terms.Row(i)
		for k, idx := range row.Indices {
			v := row.Values[k]
			src := in.Data[idx*in.Stride : idx*in.Stride+w]
			for c := range dst {
				dst[c] += v * src[c]
			}
		}
	}
	return out
}

// mulRowsT returns Xᵀ·m for the n x vocab term matrix X and an n x w matrix m.
func mulRowsT(terms *TermIndex, m *mat.Dense) *mat.Dense {
	_, w := m.Dims()
	in := m.RawMatrix()
	out := mat.NewDense(terms.VocabularySize(), w, nil)
	res := out.RawMatrix()
	for i := 0; i < terms.Rows(); i++ {
		src := in.Data[i*in.Stride : i*in.Stride+w]
		row := terms.Row(i)
		for k, idx := range row.Indices {
			v := row.Values[k]
			dst := res.Data[idx*res.Stride : idx*res.Stride+w]
			for c := range dst {
				dst[c] += v * src[c]
			}
		}
	}
	return out
}

// orthonormalize returns an orthonormal basis for the column space of a tall
// matrix, shaped like the input.
func orthonormalize(a *mat.Dense) (*mat.Dense, bool) {
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThinU) {
		return nil, false
	}
	var u mat.Dense
	svd.UTo(&u)
	return &u, true
}

// Project maps a vector from the term space into the 2D map.
func (p *Projection) Project(v SparseVector) (models.Point, error) {
	if p == nil {
		return models.Point{}, errProjection
	}
	x, y, err := p.project(v)
	if err != nil {
		return models.Point{}, err
	}
	return models.Point{X: x, Y: y}, nil
}

// Coord returns the fitted coordinate of document i.
func (p *Projection) Coord(i int) models.Point {
	return p.coords[i]
}

func (p *Projection) project(v SparseVector) (float64, float64, error) {
	x := v.DotDense(p.components[0])
	y := v.DotDense(p.components[1])
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return 0, 0, errProjection
	}
	return x, y, nil
}

// Nearest orders candidate document ids by ascending Euclidean distance to
// point and returns at most k of them. Ties keep candidate order.
func (p *Projection) Nearest(point models.Point, candidates []int, k int) []int {
	order := append([]int(nil), candidates...)
	dist := make(map[int]float64, len(order))
	for _, id := range order {
		c := p.coords[id]
		dist[id] = math.Hypot(c.X-point.X, c.Y-point.Y)
	}
	sort.SliceStable(order, func(a, b int) bool { return dist[order[a]] < dist[order[b]] })
	if k < len(order) {
		order = order[:k]
	}
	return order
}

// flipSign makes the largest-magnitude entry positive so fits are deterministic.
func flipSign(comp []float64) {
	best, at := 0.0, -1
	for i, v := range comp {
		if math.Abs(v) > best {
			best, at = math.Abs(v), i
		}
	}
	if at >= 0 && comp[at] < 0 {
		for i := range comp {
			comp[i] = -comp[i]
		}
	}
}

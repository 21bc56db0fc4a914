package quality

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/halderavik/cbc-design-MCP/design"
)

// SingularFloor is the determinant at or below which X'X counts as singular
const SingularFloor = 1e-10

var logSingularFloor = math.Log(SingularFloor)

// Coder produces effects-coded rows: an attribute with k levels contributes
// k-1 columns, level j < k-1 sets column j to 1 and the last (reference)
// level sets every column of the attribute to -1. No intercept column.
type Coder struct {
	offsets []int
	levels  []int
	params  int
}

// NewCoder builds the coder for a grid
func NewCoder(g design.Grid) *Coder {
	c := &Coder{
		offsets: make([]int, len(g.Attributes)),
		levels:  g.LevelCounts(),
	}
	for i, k := range c.levels {
		c.offsets[i] = c.params
		c.params += k - 1
	}
	return c
}

// Params is the number of columns of X
func (c *Coder) Params() int {
	return c.params
}

// Row writes the coded row of p into dst, allocating when dst is too short
func (c *Coder) Row(p design.Profile, dst []float64) []float64 {
	if len(dst) < c.params {
		dst = make([]float64, c.params)
	}
	dst = dst[:c.params]
	for i := range dst {
		dst[i] = 0
	}
	for attr, lvl := range p {
		k := c.levels[attr]
		off := c.offsets[attr]
		if lvl == k-1 {
			for j := 0; j < k-1; j++ {
				dst[off+j] = -1
			}
		} else {
			dst[off+lvl] = 1
		}
	}
	return dst
}

// Information accumulates X'X over every profile
func (c *Coder) Information(profiles []design.Profile) *mat.SymDense {
	if c.params == 0 {
		return &mat.SymDense{}
	}
	m := mat.NewSymDense(c.params, nil)
	row := make([]float64, c.params)
	for _, p := range profiles {
		c.Row(p, row)
		m.SymRankOne(m, 1, mat.NewVecDense(c.params, row))
	}
	return m
}

// Swap updates m in place for one option changing from one profile to another
func (c *Coder) Swap(m *mat.SymDense, from, to design.Profile) {
	x := c.Row(from, nil)
	m.SymRankOne(m, -1, mat.NewVecDense(c.params, x))
	c.Row(to, x)
	m.SymRankOne(m, 1, mat.NewVecDense(c.params, x))
}

// LogDet returns log det(m), or -Inf when m is singular or the determinant
// falls at or below SingularFloor
func LogDet(m mat.Symmetric) float64 {
	if m.SymmetricDim() == 0 {
		return math.Inf(-1)
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(m); !ok {
		return math.Inf(-1)
	}
	ld := chol.LogDet()
	if math.IsNaN(ld) || ld <= logSingularFloor {
		return math.Inf(-1)
	}
	return ld
}

// IdealLogDet is log det(X'X) of a perfectly balanced orthogonal design
// with n rows: each attribute block is (n/k)(I+J), whose determinant is
// (n/k)^(k-1) * k.
func IdealLogDet(g design.Grid, n int) float64 {
	total := 0.0
	for _, k := range g.LevelCounts() {
		fk := float64(k)
		total += (fk-1)*math.Log(float64(n)/fk) + math.Log(fk)
	}
	return total
}

// DEfficiency normalises a log-determinant against the ideal design,
// (det/det_ideal)^(1/p), clamped to [0, 1]
func DEfficiency(logDet float64, g design.Grid, n int) float64 {
	p := NewCoder(g).Params()
	if p == 0 || n == 0 || math.IsInf(logDet, -1) {
		return 0
	}
	eff := math.Exp((logDet - IdealLogDet(g, n)) / float64(p))
	switch {
	case math.IsNaN(eff) || eff < 0:
		return 0
	case eff > 1:
		return 1
	}
	return eff
}

package solver

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// DampingMode selects how the damping factor of the pseudo-inverse is chosen.
type DampingMode int

const (
	// DampingConstant always applies the configured damping factor.
	DampingConstant DampingMode = iota
	// DampingAuto picks the minimal damping that keeps the solution norm
	// below the configured maximum. Without a right-hand side it degrades
	// to no damping.
	DampingAuto
)

// GeneralizedInverse computes the weighted, damped Moore-Penrose inverse
//
//	M⁺ = √Wc · V · Σ̃ · Uᵀ · √Wr,  Σ̃ᵢ = σᵢ/(σᵢ² + λ²)
//
// of M weighted as Mw = √Wr·M·√Wc, via a thin SVD. Zero-weighted rows and
// columns are eliminated before the decomposition and reinserted as zeros.
type GeneralizedInverse struct {
	mode       DampingMode
	damping    float64
	normMax    float64
	rowWeights []float64
	colWeights []float64

	curDamping   float64
	singularVals []float64
}

// NewGeneralizedInverse returns an undamped, unweighted inverse.
func NewGeneralizedInverse() *GeneralizedInverse {
	return &GeneralizedInverse{mode: DampingConstant}
}

// SetConstantDamping switches to constant damping with the given factor.
func (g *GeneralizedInverse) SetConstantDamping(lambda float64) {
	g.mode = DampingConstant
	g.damping = lambda
}

// SetNormMax switches to automatic damping bounding the solution norm.
func (g *GeneralizedInverse) SetNormMax(normMax float64) {
	g.mode = DampingAuto
	g.normMax = normMax
}

// SetRowWeights sets the per-row weights; nil disables row weighting.
func (g *GeneralizedInverse) SetRowWeights(w []float64) {
	g.rowWeights = w
}

// SetColWeights sets the per-column weights; nil disables column weighting.
func (g *GeneralizedInverse) SetColWeights(w []float64) {
	g.colWeights = w
}

// CurrentDamping returns the damping applied by the last ComputeInverse.
func (g *GeneralizedInverse) CurrentDamping() float64 {
	return g.curDamping
}

// SingularValues returns the singular values of the last weighted matrix.
func (g *GeneralizedInverse) SingularValues() []float64 {
	return g.singularVals
}

// ComputeInverse writes the weighted damped pseudo-inverse of in (m x n)
// into out, which must be pre-sized to n x m.
func (g *GeneralizedInverse) ComputeInverse(in mat.Matrix, out *mat.Dense) error {
	return g.ComputeInverseForRHS(in, nil, out)
}

// ComputeInverseForRHS is ComputeInverse with the right-hand side the
// inverse will be applied to. In automatic mode the damping is chosen from
// the undamped solution norm for exactly this right-hand side; when the norm
// bound is not binding no damping is applied.
func (g *GeneralizedInverse) ComputeInverseForRHS(in mat.Matrix, rhs *mat.VecDense, out *mat.Dense) error {
	m, n := in.Dims()
	or, oc := out.Dims()
	if or != n || oc != m {
		return errors.Errorf("output matrix is %dx%d, expected %dx%d", or, oc, n, m)
	}
	if len(g.rowWeights) > 0 && len(g.rowWeights) != m {
		return errors.Errorf("got %d row weights for a matrix with %d rows", len(g.rowWeights), m)
	}
	if len(g.colWeights) > 0 && len(g.colWeights) != n {
		return errors.Errorf("got %d column weights for a matrix with %d columns", len(g.colWeights), n)
	}
	if rhs != nil && rhs.Len() != m {
		return errors.Errorf("right-hand side has %d entries, expected %d", rhs.Len(), m)
	}

	// eliminate zero-weighted rows and columns
	rowKeep := keepIndices(m, g.rowWeights)
	colKeep := keepIndices(n, g.colWeights)
	mr, nr := len(rowKeep), len(colKeep)
	out.Zero()
	if mr == 0 || nr == 0 {
		g.curDamping = 0
		g.singularVals = g.singularVals[:0]
		return nil
	}

	weighted := mat.NewDense(mr, nr, nil)
	for i, ri := range rowKeep {
		rw := 1.0
		if len(g.rowWeights) > 0 {
			rw = math.Sqrt(g.rowWeights[ri])
		}
		for j, cj := range colKeep {
			cw := 1.0
			if len(g.colWeights) > 0 {
				cw = math.Sqrt(g.colWeights[cj])
			}
			v := in.At(ri, cj)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return errors.Errorf("non-finite entry at (%d,%d) of the input matrix", ri, cj)
			}
			weighted.Set(i, j, rw*v*cw)
		}
	}

	var svd mat.SVD
	if !svd.Factorize(weighted, mat.SVDThin) {
		return errors.New("SVD of the weighted matrix failed to converge")
	}
	sv := svd.Values(nil)
	g.singularVals = sv
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	lambda := g.effectiveDamping(sv, &u, rhs, rowKeep)
	g.curDamping = lambda

	// out = √Wc · V · Σ̃ · Uᵀ · √Wr, written directly into the kept slots
	k := len(sv)
	sigmaInv := make([]float64, k)
	for i, s := range sv {
		if s == 0 && lambda == 0 {
			sigmaInv[i] = 0
			continue
		}
		sigmaInv[i] = s / (s*s + lambda*lambda)
	}
	for i, cj := range colKeep {
		cw := 1.0
		if len(g.colWeights) > 0 {
			cw = math.Sqrt(g.colWeights[cj])
		}
		for j, ri := range rowKeep {
			rw := 1.0
			if len(g.rowWeights) > 0 {
				rw = math.Sqrt(g.rowWeights[ri])
			}
			sum := 0.0
			for l := 0; l < k; l++ {
				sum += v.At(i, l) * sigmaInv[l] * u.At(j, l)
			}
			out.Set(cj, ri, cw*sum*rw)
		}
	}
	return nil
}

// effectiveDamping picks λ for the configured mode.
func (g *GeneralizedInverse) effectiveDamping(sv []float64, u *mat.Dense, rhs *mat.VecDense, rowKeep []int) float64 {
	switch g.mode {
	case DampingConstant:
		return g.damping
	case DampingAuto:
		if rhs == nil || g.normMax <= 0 {
			return 0
		}
		sMin := 0.0
		for _, s := range sv {
			if s > 0 && (sMin == 0 || s < sMin) {
				sMin = s
			}
		}
		if sMin == 0 {
			return 0
		}
		// norm of the undamped minimum-norm solution for this rhs
		norm2 := 0.0
		for l, s := range sv {
			if s == 0 {
				continue
			}
			dot := 0.0
			for j, ri := range rowKeep {
				rw := 1.0
				if len(g.rowWeights) > 0 {
					rw = math.Sqrt(g.rowWeights[ri])
				}
				dot += u.At(j, l) * rw * rhs.AtVec(ri)
			}
			norm2 += (dot / s) * (dot / s)
		}
		norm := math.Sqrt(norm2)
		if norm <= g.normMax {
			return 0
		}
		return sMin * math.Sqrt(norm/g.normMax-1)
	}
	return 0
}

func keepIndices(n int, weights []float64) []int {
	keep := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if len(weights) > 0 && weights[i] == 0 {
			continue
		}
		keep = append(keep, i)
	}
	return keep
}

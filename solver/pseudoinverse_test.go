package solver

import (
	"math"
	"math/rand"
	"testing"

	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func randomMatrix(r, c int, seed int64) *mat.Dense {
	//nolint:gosec
	rng := rand.New(rand.NewSource(seed))
	data := make([]float64, r*c)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	return mat.NewDense(r, c, data)
}

func TestPseudoInverseReconstruction(t *testing.T) {
	inv := NewGeneralizedInverse()
	m := randomMatrix(3, 5, 1)
	out := mat.NewDense(5, 3, nil)
	test.That(t, inv.ComputeInverse(m, out), test.ShouldBeNil)

	// M·M⁺·M ≈ M for a full row rank matrix
	var mm, mmm mat.Dense
	mm.Mul(m, out)
	mmm.Mul(&mm, m)
	for i := 0; i < 3; i++ {
		for j := 0; j < 5; j++ {
			test.That(t, mmm.At(i, j), test.ShouldAlmostEqual, m.At(i, j), 1e-5)
		}
	}
}

func TestPseudoInverseDimensionMismatch(t *testing.T) {
	inv := NewGeneralizedInverse()
	m := randomMatrix(3, 5, 2)
	out := mat.NewDense(3, 5, nil)
	test.That(t, inv.ComputeInverse(m, out), test.ShouldNotBeNil)
}

func TestPseudoInverseNonFiniteInput(t *testing.T) {
	inv := NewGeneralizedInverse()
	m := randomMatrix(2, 2, 3)
	m.Set(0, 1, math.NaN())
	out := mat.NewDense(2, 2, nil)
	test.That(t, inv.ComputeInverse(m, out), test.ShouldNotBeNil)
}

func TestPseudoInverseZeroColumnWeight(t *testing.T) {
	inv := NewGeneralizedInverse()
	inv.SetColWeights([]float64{1, 0, 1, 1})
	m := randomMatrix(3, 4, 4)
	out := mat.NewDense(4, 3, nil)
	test.That(t, inv.ComputeInverse(m, out), test.ShouldBeNil)

	// the zero-weighted column becomes an exactly zero row of the inverse
	for j := 0; j < 3; j++ {
		test.That(t, out.At(1, j), test.ShouldEqual, 0.0)
	}
}

func TestPseudoInverseDampingBoundsNorm(t *testing.T) {
	const lambda = 0.5
	inv := NewGeneralizedInverse()
	inv.SetConstantDamping(lambda)
	m := randomMatrix(4, 4, 5)
	out := mat.NewDense(4, 4, nil)
	test.That(t, inv.ComputeInverse(m, out), test.ShouldBeNil)

	var svd mat.SVD
	test.That(t, svd.Factorize(out, mat.SVDNone), test.ShouldBeTrue)
	values := svd.Values(nil)
	// σ/(σ²+λ²) is at most 1/(2λ), so well within 1/λ
	test.That(t, values[0], test.ShouldBeLessThanOrEqualTo, 1/lambda)
}

func TestPseudoInverseAutoDampingIdempotentWhenNotBinding(t *testing.T) {
	m := randomMatrix(3, 3, 6)
	rhs := mat.NewVecDense(3, []float64{0.01, 0.01, 0.01})

	undamped := NewGeneralizedInverse()
	outUndamped := mat.NewDense(3, 3, nil)
	test.That(t, undamped.ComputeInverse(m, outUndamped), test.ShouldBeNil)

	auto := NewGeneralizedInverse()
	auto.SetNormMax(1e6)
	outAuto := mat.NewDense(3, 3, nil)
	test.That(t, auto.ComputeInverseForRHS(m, rhs, outAuto), test.ShouldBeNil)
	test.That(t, auto.CurrentDamping(), test.ShouldEqual, 0.0)

	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			test.That(t, outAuto.At(i, j), test.ShouldAlmostEqual, outUndamped.At(i, j), 1e-10)
		}
	}
}

func TestPseudoInverseAutoDampingEngages(t *testing.T) {
	// a badly scaled matrix whose minimum-norm solution is enormous
	m := mat.NewDense(2, 2, []float64{1, 0, 0, 1e-8})
	rhs := mat.NewVecDense(2, []float64{1, 1})

	auto := NewGeneralizedInverse()
	auto.SetNormMax(10)
	out := mat.NewDense(2, 2, nil)
	test.That(t, auto.ComputeInverseForRHS(m, rhs, out), test.ShouldBeNil)
	test.That(t, auto.CurrentDamping(), test.ShouldBeGreaterThan, 0.0)

	var x mat.VecDense
	x.MulVec(out, rhs)
	norm := math.Hypot(x.AtVec(0), x.AtVec(1))
	test.That(t, norm, test.ShouldBeLessThanOrEqualTo, 10*1.05)
}

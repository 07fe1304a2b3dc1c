// Package task turns user references and the current robot model state into
// weighted linear forms A·x = y_ref in the decision variables of a scene.
package task

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/wbc/robotmodel"
)

// Task is one objective of the whole-body control problem. The scene drives
// the per-tick protocol: CheckTimeout, Update, then ApplyWeights with the
// scene's joint weights.
type Task interface {
	Config() Config

	// Update recomputes A, y_ref_root and weights_root from the model state.
	Update(model robotmodel.RobotModel) error

	// CheckTimeout latches the timeout flag from the reference age.
	CheckTimeout()

	// ApplyWeights builds the weighted task matrix
	// Aw[i,:] = weights_root[i]·A[i,:]·activation·(1−timeout)·jointWeights.
	// When the activation is zero it also zeroes y_ref and y_ref_root for
	// this tick. The reference stored by SetReference is not cleared: the
	// next Update rebuilds y_ref and y_ref_root from it.
	ApplyWeights(jointWeights []float64) error

	A() *mat.Dense
	Aw() *mat.Dense
	YRef() *mat.VecDense
	YRefRoot() *mat.VecDense
	WeightsRoot() *mat.VecDense

	Activation() float64
	SetActivation(a float64) error
	SetWeights(w []float64) error
	TimedOut() bool

	// Time is when the last reference arrived.
	Time() time.Time
}

// baseTask carries the state and algebra shared by all task types.
type baseTask struct {
	cfg Config
	clk clock.Clock

	a           *mat.Dense
	aw          *mat.Dense
	yRef        *mat.VecDense
	yRefRoot    *mat.VecDense
	weights     *mat.VecDense
	weightsRoot *mat.VecDense
	activation  float64
	timeout     bool
	refTime     time.Time
}

func newBaseTask(cfg Config, nx int, clk clock.Clock) *baseTask {
	ny := cfg.rows()
	t := &baseTask{
		cfg:         cfg,
		clk:         clk,
		a:           mat.NewDense(ny, nx, nil),
		aw:          mat.NewDense(ny, nx, nil),
		yRef:        mat.NewVecDense(ny, nil),
		yRefRoot:    mat.NewVecDense(ny, nil),
		weights:     mat.NewVecDense(ny, nil),
		weightsRoot: mat.NewVecDense(ny, nil),
		activation:  cfg.Activation,
	}
	for i := 0; i < ny; i++ {
		w := 1.0
		if len(cfg.Weights) > 0 {
			w = cfg.Weights[i]
		}
		t.weights.SetVec(i, w)
		t.weightsRoot.SetVec(i, w)
	}
	return t
}

// Config implements Task.
func (t *baseTask) Config() Config { return t.cfg }

// A implements Task.
func (t *baseTask) A() *mat.Dense { return t.a }

// Aw implements Task.
func (t *baseTask) Aw() *mat.Dense { return t.aw }

// YRef implements Task.
func (t *baseTask) YRef() *mat.VecDense { return t.yRef }

// YRefRoot implements Task.
func (t *baseTask) YRefRoot() *mat.VecDense { return t.yRefRoot }

// WeightsRoot implements Task.
func (t *baseTask) WeightsRoot() *mat.VecDense { return t.weightsRoot }

// Activation implements Task.
func (t *baseTask) Activation() float64 { return t.activation }

// SetActivation implements Task.
func (t *baseTask) SetActivation(a float64) error {
	if a < 0 || a > 1 {
		return errors.Errorf("activation %f is outside [0, 1]", a)
	}
	t.activation = a
	return nil
}

// SetWeights implements Task.
func (t *baseTask) SetWeights(w []float64) error {
	if len(w) != t.weights.Len() {
		return errors.Errorf("got %d weights, task has %d rows", len(w), t.weights.Len())
	}
	for i, v := range w {
		if v < 0 {
			return errors.New("task weights must be non-negative")
		}
		t.weights.SetVec(i, v)
	}
	return nil
}

// TimedOut implements Task.
func (t *baseTask) TimedOut() bool { return t.timeout }

// Time implements Task.
func (t *baseTask) Time() time.Time { return t.refTime }

// CheckTimeout implements Task. A task with no timeout configured never
// times out; a task that never received a reference counts as timed out.
func (t *baseTask) CheckTimeout() {
	if t.cfg.TimeoutSeconds <= 0 {
		t.timeout = false
		return
	}
	if t.refTime.IsZero() {
		t.timeout = true
		return
	}
	t.timeout = t.clk.Now().Sub(t.refTime).Seconds() > t.cfg.TimeoutSeconds
}

// markReference stamps the reference clock; this is the sole input of
// CheckTimeout.
func (t *baseTask) markReference() {
	t.refTime = t.clk.Now()
}

// ApplyWeights implements Task.
func (t *baseTask) ApplyWeights(jointWeights []float64) error {
	ny, nx := t.a.Dims()
	if len(jointWeights) != nx {
		return errors.Errorf("got %d joint weights, task has %d columns", len(jointWeights), nx)
	}
	if t.activation == 0 {
		t.yRef.Zero()
		t.yRefRoot.Zero()
	}
	gate := t.activation
	if t.timeout {
		gate = 0
	}
	for i := 0; i < ny; i++ {
		rowScale := t.weightsRoot.AtVec(i) * gate
		for j := 0; j < nx; j++ {
			t.aw.Set(i, j, rowScale*t.a.At(i, j)*jointWeights[j])
		}
	}
	return nil
}

func copyVec(dst *mat.VecDense, src []float64) {
	for i, v := range src {
		dst.SetVec(i, v)
	}
}

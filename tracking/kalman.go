package tracking

import (
	"gonum.org/v1/gonum/mat"
)

// DefaultGravity is the ballistic acceleration applied to the world-frame
// y axis, in world units per second squared.
const DefaultGravity = 9.8

// Default noise and initial-covariance magnitudes.
const (
	processNoise     = 1e-1
	measurementNoise = 1e-5
	initialCovar     = 100 // do not trust the initial guess
)

// Predictor is a per-blob Kalman filter over state [x, y, vx, vy] with a
// constant-velocity transition plus a gravity control input: a projectile
// model, valid only while the tracked object is in free flight.
//
// The filter starts uninitialized; the first Correct call seeds the state
// and it tracks permanently from then on. Predict may be called without a
// following Correct to dead-reckon across a missed measurement.
type Predictor struct {
	x *mat.VecDense // state posterior [x y vx vy]
	p *mat.Dense    // covariance posterior, 4x4

	q *mat.Dense // process noise, 4x4
	r *mat.Dense // measurement noise, 2x2
	h *mat.Dense // measurement matrix, 2x4

	gravity     float64
	initialized bool
}

// NewPredictor returns an uninitialized predictor. Each tracked window
// owns its own Predictor; state and covariance are never shared between
// filters.
func NewPredictor(gravity float64) *Predictor {
	k := &Predictor{
		x:       mat.NewVecDense(4, nil),
		p:       identityScaled(4, initialCovar),
		q:       identityScaled(4, processNoise),
		r:       identityScaled(2, measurementNoise),
		h:       mat.NewDense(2, 4, []float64{1, 0, 0, 0, 0, 1, 0, 0}),
		gravity: gravity,
	}
	return k
}

// Initialized reports whether a measurement has been absorbed yet.
func (k *Predictor) Initialized() bool {
	return k.initialized
}

// State returns the current position estimate.
func (k *Predictor) State() (x, y float64) {
	return k.x.AtVec(0), k.x.AtVec(1)
}

// Velocity returns the current velocity estimate.
func (k *Predictor) Velocity() (vx, vy float64) {
	return k.x.AtVec(2), k.x.AtVec(3)
}

// Predict advances the estimate by dt seconds under the projectile model:
// position gains velocity*dt plus half-gravity*dt^2 in y, velocity gains
// gravity*dt in y. Covariance propagates as A P A' + Q. Returns the prior
// position estimate.
func (k *Predictor) Predict(dt float64) (x, y float64) {
	if !k.initialized {
		return k.State()
	}

	a := mat.NewDense(4, 4, []float64{
		1, 0, dt, 0,
		0, 1, 0, dt,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})

	var xp mat.VecDense
	xp.MulVec(a, k.x)
	xp.SetVec(1, xp.AtVec(1)+0.5*k.gravity*dt*dt)
	xp.SetVec(3, xp.AtVec(3)+k.gravity*dt)
	k.x.CopyVec(&xp)

	var pp mat.Dense
	pp.Product(a, k.p, a.T())
	pp.Add(&pp, k.q)
	k.p.Copy(&pp)

	return k.State()
}

// Correct folds a position measurement into the estimate. The first
// measurement initializes the state with zero velocity; afterwards the
// standard Kalman update runs, and state and covariance are always
// updated together. Returns the posterior position estimate.
func (k *Predictor) Correct(zx, zy float64) (x, y float64) {
	if !k.initialized {
		k.x.SetVec(0, zx)
		k.x.SetVec(1, zy)
		k.x.SetVec(2, 0)
		k.x.SetVec(3, 0)
		k.initialized = true
		return k.State()
	}

	// S = H P H' + R
	var s mat.Dense
	s.Product(k.h, k.p, k.h.T())
	s.Add(&s, k.r)

	// K = P H' S^-1, solved as S K' = H P (P is symmetric).
	var hp mat.Dense
	hp.Mul(k.h, k.p)
	var kt mat.Dense
	if err := kt.Solve(&s, &hp); err != nil {
		// S >= R > 0, so this only fires on NaN state; hold the prior.
		return k.State()
	}
	gain := kt.T() // 4x2

	// x += K (z - H x)
	innov := mat.NewVecDense(2, []float64{zx - k.x.AtVec(0), zy - k.x.AtVec(1)})
	var corr mat.VecDense
	corr.MulVec(gain, innov)
	k.x.AddVec(k.x, &corr)

	// P = (I - K H) P
	var kh mat.Dense
	kh.Mul(gain, k.h)
	ikh := identityScaled(4, 1)
	ikh.Sub(ikh, &kh)
	var pp mat.Dense
	pp.Mul(ikh, k.p)
	k.p.Copy(&pp)

	return k.State()
}

func identityScaled(n int, v float64) *mat.Dense {
	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		d.Set(i, i, v)
	}
	return d
}

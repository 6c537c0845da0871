package tracking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPredictorUninitializedIsInert(t *testing.T) {
	k := NewPredictor(DefaultGravity)
	assert.False(t, k.Initialized())

	x, y := k.Predict(1.0)
	assert.Zero(t, x)
	assert.Zero(t, y)
	assert.False(t, k.Initialized(), "predict alone must not initialize")
}

func TestFirstMeasurementInitializes(t *testing.T) {
	k := NewPredictor(DefaultGravity)

	x, y := k.Correct(3.0, -1.5)
	assert.True(t, k.Initialized())
	assert.Equal(t, 3.0, x)
	assert.Equal(t, -1.5, y)

	vx, vy := k.Velocity()
	assert.Zero(t, vx)
	assert.Zero(t, vy)
}

func TestPredictMatchesProjectileClosedForm(t *testing.T) {
	const g = 9.8
	k := NewPredictor(g)
	k.Correct(0, 0) // y0 = 0, v0 = 0

	// One second of free flight: y = y0 + v0*dt + 0.5*g*dt^2.
	x, y := k.Predict(1.0)
	assert.InDelta(t, 0, x, 1e-9)
	assert.InDelta(t, 0.5*g, y, 1e-9)

	vx, vy := k.Velocity()
	assert.InDelta(t, 0, vx, 1e-9)
	assert.InDelta(t, g, vy, 1e-9)

	// A second step continues the parabola: total y = 0.5*g*(2)^2.
	_, y = k.Predict(1.0)
	assert.InDelta(t, 0.5*g*4, y, 1e-9)
}

func TestCorrectTracksMeasurementsClosely(t *testing.T) {
	k := NewPredictor(DefaultGravity)
	k.Correct(10, 20)

	// With large prior covariance and tiny measurement noise, the update
	// should land essentially on the measurement.
	k.Predict(0.05)
	x, y := k.Correct(10.4, 20.6)
	assert.InDelta(t, 10.4, x, 1e-3)
	assert.InDelta(t, 20.6, y, 1e-3)
}

func TestDeadReckoningAcrossMissedMeasurement(t *testing.T) {
	const g = 9.8
	k := NewPredictor(g)
	k.Correct(5, 0)

	// Miss a frame: prediction alone carries the estimate forward along
	// the ballistic arc.
	x1, y1 := k.Predict(0.5)
	assert.InDelta(t, 5, x1, 1e-9)
	assert.InDelta(t, 0.5*g*0.25, y1, 1e-9)

	// The filter still accepts the next measurement afterwards.
	x2, y2 := k.Correct(5.1, y1+0.1)
	assert.InDelta(t, 5.1, x2, 1e-2)
	assert.InDelta(t, y1+0.1, y2, 1e-2)
}

func TestPredictorsAreIndependent(t *testing.T) {
	a := NewPredictor(DefaultGravity)
	b := NewPredictor(DefaultGravity)

	a.Correct(1, 1)
	a.Predict(1)
	a.Correct(2, 7)

	// b's state and covariance are untouched by a's updates.
	assert.False(t, b.Initialized())
	x, y := b.Correct(100, 200)
	assert.Equal(t, 100.0, x)
	assert.Equal(t, 200.0, y)
}

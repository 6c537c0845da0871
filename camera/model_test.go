package camera

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// testModel returns a model with realistic intrinsics, mild lens
// distortion, and a small rotation about the optical axis.
func testModel(t *testing.T) *Model {
	t.Helper()

	intrinsic := mat.NewDense(3, 3, []float64{
		900, 0, 512,
		0, 905, 510,
		0, 0, 1,
	})
	distortion := []float64{0.08, -0.03, 0.001, 0.0005, 0.002}

	theta := 0.05
	rotation := mat.NewDense(3, 3, []float64{
		math.Cos(theta), -math.Sin(theta), 0,
		math.Sin(theta), math.Cos(theta), 0,
		0, 0, 1,
	})
	translation := mat.NewVecDense(3, []float64{1.5, -2.0, 40.0})

	m, err := NewModel(intrinsic, distortion, rotation, translation)
	require.NoError(t, err)
	return m
}

// identityModel has no distortion and identity extrinsics, so projections
// can be checked against closed-form pinhole math.
func identityModel(t *testing.T) *Model {
	t.Helper()

	intrinsic := mat.NewDense(3, 3, []float64{
		800, 0, 512,
		0, 800, 512,
		0, 0, 1,
	})
	rotation := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	translation := mat.NewVecDense(3, []float64{0, 0, 0})

	m, err := NewModel(intrinsic, []float64{0, 0, 0, 0}, rotation, translation)
	require.NoError(t, err)
	return m
}

func TestNewModelRejectsIncomplete(t *testing.T) {
	intrinsic := mat.NewDense(3, 3, []float64{900, 0, 512, 0, 905, 510, 0, 0, 1})
	rotation := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	translation := mat.NewVecDense(3, []float64{0, 0, 10})

	_, err := NewModel(nil, []float64{0, 0, 0, 0}, rotation, translation)
	assert.ErrorIs(t, err, ErrModelIncomplete)

	_, err = NewModel(intrinsic, nil, rotation, translation)
	assert.ErrorIs(t, err, ErrModelIncomplete)

	_, err = NewModel(intrinsic, []float64{0, 0}, rotation, translation)
	assert.Error(t, err, "short distortion vector must be rejected")

	_, err = NewModel(intrinsic, []float64{0, 0, 0, 0}, mat.NewDense(2, 2, []float64{1, 0, 0, 1}), translation)
	assert.Error(t, err, "wrong rotation shape must be rejected")
}

func TestPixelToWorldIdentityExtrinsics(t *testing.T) {
	m := identityModel(t)

	// Principal point back-projects straight down the optical axis.
	w := m.PixelToWorld(Point2{X: 512, Y: 512}, 2.0)
	assert.InDelta(t, 0, w.X, 1e-9)
	assert.InDelta(t, 0, w.Y, 1e-9)
	assert.InDelta(t, 2.0, w.Z, 1e-9)

	// One focal length to the right of center at unit depth is one unit in x.
	w = m.PixelToWorld(Point2{X: 512 + 800, Y: 512}, 1.0)
	assert.InDelta(t, 1.0, w.X, 1e-9)
	assert.InDelta(t, 0, w.Y, 1e-9)
}

func TestProjectionRoundTrip(t *testing.T) {
	m := testModel(t)

	pixels := []Point2{
		{X: 512, Y: 510},
		{X: 400, Y: 420},
		{X: 640, Y: 600},
		{X: 300, Y: 700},
		{X: 760, Y: 330},
	}
	depths := []float64{5, 20, 40, 120}

	for _, p := range pixels {
		for _, z := range depths {
			w := m.PixelToWorld(p, z)
			back := m.WorldToPixel(w)
			assert.InDelta(t, p.X, back.X, 1e-3, "x round trip at depth %v", z)
			assert.InDelta(t, p.Y, back.Y, 1e-3, "y round trip at depth %v", z)
		}
	}
}

func TestPlaneDepth(t *testing.T) {
	m := testModel(t)
	assert.Equal(t, 40.0, m.PlaneDepth())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	m := testModel(t)
	dir := t.TempDir()

	paths := [4]string{
		filepath.Join(dir, IntrinsicFile),
		filepath.Join(dir, DistortionFile),
		filepath.Join(dir, RotationFile),
		filepath.Join(dir, TranslationFile),
	}
	require.NoError(t, m.Save(paths[0], paths[1], paths[2], paths[3]))

	loaded, err := Load(paths[0], paths[1], paths[2], paths[3])
	require.NoError(t, err)

	// A loaded model must project identically to the one that was saved.
	p := Point2{X: 433, Y: 587}
	want := m.PixelToWorld(p, 40)
	got := loaded.PixelToWorld(p, 40)
	assert.InDelta(t, want.X, got.X, 1e-12)
	assert.InDelta(t, want.Y, got.Y, 1e-12)
	assert.InDelta(t, want.Z, got.Z, 1e-12)
}

func TestLoadMissingFileFails(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(
		filepath.Join(dir, IntrinsicFile),
		filepath.Join(dir, DistortionFile),
		filepath.Join(dir, RotationFile),
		filepath.Join(dir, TranslationFile),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), IntrinsicFile)
}

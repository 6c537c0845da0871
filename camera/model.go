// Package camera holds the calibrated camera model used to convert between
// pixel coordinates and world coordinates. The model is built once, either
// by the calibration package or by loading the persisted matrix files, and
// is read-only for the life of a tracking session.
package camera

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Point2 is a location in the image plane, in pixels.
type Point2 struct {
	X float64
	Y float64
}

// Point3 is a location in the world frame.
type Point3 struct {
	X float64
	Y float64
	Z float64
}

// ErrModelIncomplete is returned when a model is constructed without all
// four calibration components. A partially-initialized model is never
// usable for projection.
var ErrModelIncomplete = errors.New("camera model incomplete: intrinsic, distortion, rotation and translation are all required")

// undistortIterations is the number of fixed-point iterations used to
// invert the distortion polynomial. Five passes keeps the residual well
// below sub-pixel for the lens models this system calibrates.
const undistortIterations = 5

// Model is a calibrated pinhole camera with radial/tangential distortion
// and a rigid world-to-camera transform. Immutable after construction.
type Model struct {
	intrinsic   *mat.Dense    // 3x3: fx 0 cx / 0 fy cy / 0 0 1
	distortion  []float64     // k1 k2 p1 p2 [k3]
	rotation    *mat.Dense    // 3x3 world -> camera
	translation *mat.VecDense // 3x1 world -> camera
}

// NewModel builds a Model from the four calibration components. All
// arguments are copied, so callers may reuse their backing storage.
func NewModel(intrinsic *mat.Dense, distortion []float64, rotation *mat.Dense, translation *mat.VecDense) (*Model, error) {
	if intrinsic == nil || distortion == nil || rotation == nil || translation == nil {
		return nil, ErrModelIncomplete
	}
	if r, c := intrinsic.Dims(); r != 3 || c != 3 {
		return nil, errors.Errorf("intrinsic matrix must be 3x3, got %dx%d", r, c)
	}
	if r, c := rotation.Dims(); r != 3 || c != 3 {
		return nil, errors.Errorf("rotation matrix must be 3x3, got %dx%d", r, c)
	}
	if n := translation.Len(); n != 3 {
		return nil, errors.Errorf("translation vector must have 3 elements, got %d", n)
	}
	if len(distortion) < 4 {
		return nil, errors.Errorf("distortion vector must have at least 4 coefficients, got %d", len(distortion))
	}

	m := &Model{
		intrinsic:   mat.DenseCopyOf(intrinsic),
		distortion:  append([]float64(nil), distortion...),
		rotation:    mat.DenseCopyOf(rotation),
		translation: mat.VecDenseCopyOf(translation),
	}
	return m, nil
}

// PlaneDepth returns the z component of the extrinsic translation. When the
// tracked object moves on the calibration plane, this is the fixed depth to
// supply to PixelToWorld.
func (m *Model) PlaneDepth() float64 {
	return m.translation.AtVec(2)
}

// PixelToWorld back-projects a distorted pixel location into the world
// frame. Monocular back-projection is underdetermined, so the caller must
// supply the known camera-frame depth of the object (e.g. a fixed plane
// assumption). The pixel is undistorted to a normalized ray, scaled by
// depth, and the inverse extrinsic transform is applied.
func (m *Model) PixelToWorld(p Point2, depth float64) Point3 {
	xn, yn := m.undistort(p)

	cam := mat.NewVecDense(3, []float64{xn * depth, yn * depth, depth})
	cam.SubVec(cam, m.translation)

	var w mat.VecDense
	w.MulVec(m.rotation.T(), cam)

	return Point3{X: w.AtVec(0), Y: w.AtVec(1), Z: w.AtVec(2)}
}

// WorldToPixel projects a world point through the extrinsics, distortion
// and intrinsics into pixel coordinates. Inverse of PixelToWorld for points
// in front of the camera.
func (m *Model) WorldToPixel(w Point3) Point2 {
	v := mat.NewVecDense(3, []float64{w.X, w.Y, w.Z})

	var cam mat.VecDense
	cam.MulVec(m.rotation, v)
	cam.AddVec(&cam, m.translation)

	x := cam.AtVec(0) / cam.AtVec(2)
	y := cam.AtVec(1) / cam.AtVec(2)
	xd, yd := m.distort(x, y)

	fx := m.intrinsic.At(0, 0)
	fy := m.intrinsic.At(1, 1)
	cx := m.intrinsic.At(0, 2)
	cy := m.intrinsic.At(1, 2)

	return Point2{X: fx*xd + cx, Y: fy*yd + cy}
}

// coeff returns the i-th distortion coefficient, treating absent trailing
// coefficients as zero.
func (m *Model) coeff(i int) float64 {
	if i >= len(m.distortion) {
		return 0
	}
	return m.distortion[i]
}

// distort applies the radial/tangential distortion polynomial to a
// normalized image coordinate.
func (m *Model) distort(x, y float64) (float64, float64) {
	k1, k2, p1, p2, k3 := m.coeff(0), m.coeff(1), m.coeff(2), m.coeff(3), m.coeff(4)

	r2 := x*x + y*y
	radial := 1 + r2*(k1+r2*(k2+r2*k3))
	xd := x*radial + 2*p1*x*y + p2*(r2+2*x*x)
	yd := y*radial + p1*(r2+2*y*y) + 2*p2*x*y
	return xd, yd
}

// undistort maps a distorted pixel to normalized undistorted coordinates by
// iteratively inverting the distortion polynomial, the same fixed-point
// scheme OpenCV's undistortPoints uses.
func (m *Model) undistort(p Point2) (float64, float64) {
	fx := m.intrinsic.At(0, 0)
	fy := m.intrinsic.At(1, 1)
	cx := m.intrinsic.At(0, 2)
	cy := m.intrinsic.At(1, 2)
	k1, k2, p1, p2, k3 := m.coeff(0), m.coeff(1), m.coeff(2), m.coeff(3), m.coeff(4)

	x0 := (p.X - cx) / fx
	y0 := (p.Y - cy) / fy

	x, y := x0, y0
	for i := 0; i < undistortIterations; i++ {
		r2 := x*x + y*y
		radial := 1 + r2*(k1+r2*(k2+r2*k3))
		dx := 2*p1*x*y + p2*(r2+2*x*x)
		dy := p1*(r2+2*y*y) + 2*p2*x*y
		x = (x0 - dx) / radial
		y = (y0 - dy) / radial
	}
	return x, y
}

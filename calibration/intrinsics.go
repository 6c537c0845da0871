package calibration

import (
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"
)

// ErrInsufficientViews reports that too few chessboard views were
// collected to calibrate. Recoverable: the caller can collect more views
// or abandon calibration without affecting anything else.
var ErrInsufficientViews = errors.New("not enough chessboard views for calibration")

// MinViews is the hard floor for calibration. Three views make the
// problem solvable; ten or more give a trustworthy result.
const MinViews = 3

// Intrinsics is the result of a calibration run.
type Intrinsics struct {
	// Camera 3x3 intrinsic matrix.
	Camera *mat.Dense

	// Distortion coefficients as reported by the solver (k1 k2 p1 p2 k3).
	Distortion []float64

	// RMS is the root-mean-square reprojection error over all views, in
	// pixels. Values near or below 1 indicate a good calibration.
	RMS float64
}

// ComputeIntrinsics runs standard chessboard camera calibration (Zhang's
// method) over the collected views and the sensor's image size.
func ComputeIntrinsics(views []View, imageSize image.Point) (*Intrinsics, error) {
	if len(views) < MinViews {
		return nil, errors.Wrapf(ErrInsufficientViews, "have %d, need at least %d", len(views), MinViews)
	}

	objectPoints := gocv.NewPoints3fVector()
	defer objectPoints.Close()
	imagePoints := gocv.NewPoints2fVector()
	defer imagePoints.Close()

	for _, v := range views {
		world := make([]gocv.Point3f, 0, len(v.World))
		for _, p := range v.World {
			world = append(world, gocv.Point3f{X: float32(p.X), Y: float32(p.Y), Z: float32(p.Z)})
		}
		pixel := make([]gocv.Point2f, 0, len(v.Pixel))
		for _, p := range v.Pixel {
			pixel = append(pixel, gocv.Point2f{X: float32(p.X), Y: float32(p.Y)})
		}
		objectPoints.Append(gocv.NewPoint3fVectorFromPoints(world))
		imagePoints.Append(gocv.NewPoint2fVectorFromPoints(pixel))
	}

	cameraMatrix := gocv.NewMat()
	defer cameraMatrix.Close()
	distCoeffs := gocv.NewMat()
	defer distCoeffs.Close()
	rvecs := gocv.NewMat()
	defer rvecs.Close()
	tvecs := gocv.NewMat()
	defer tvecs.Close()

	rms := gocv.CalibrateCamera(objectPoints, imagePoints, imageSize, &cameraMatrix, &distCoeffs, &rvecs, &tvecs, gocv.CalibFlag(0))

	intrinsic := mat.NewDense(3, 3, nil)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			intrinsic.Set(r, c, cameraMatrix.GetDoubleAt(r, c))
		}
	}

	n := distCoeffs.Rows() * distCoeffs.Cols()
	distortion := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if distCoeffs.Rows() == 1 {
			distortion = append(distortion, distCoeffs.GetDoubleAt(0, i))
		} else {
			distortion = append(distortion, distCoeffs.GetDoubleAt(i, 0))
		}
	}

	return &Intrinsics{Camera: intrinsic, Distortion: distortion, RMS: rms}, nil
}

package calibration

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/JoshMarino/lims-hsv-system/camera"
)

// Sub-pixel refinement parameters, matching the OpenCV defaults this
// system was tuned with: 5x5 search window, 30 iterations or 0.1 epsilon.
const (
	subPixWindow  = 5
	subPixMaxIter = 30
	subPixEpsilon = 0.1
)

// ChessboardFinder locates chessboard inner corners with OpenCV and
// refines them to sub-pixel accuracy.
type ChessboardFinder struct {
	gray gocv.Mat
}

// NewChessboardFinder returns a finder with its own grayscale scratch
// image.
func NewChessboardFinder() *ChessboardFinder {
	return &ChessboardFinder{gray: gocv.NewMat()}
}

// Close releases the scratch storage.
func (f *ChessboardFinder) Close() {
	f.gray.Close()
}

// Find implements CornerFinder. It reports false unless the complete grid
// was detected.
func (f *ChessboardFinder) Find(img gocv.Mat, grid Grid) ([]camera.Point2, bool) {
	src := img
	if img.Channels() > 1 {
		gocv.CvtColor(img, &f.gray, gocv.ColorBGRToGray)
		src = f.gray
	}

	pattern := image.Pt(grid.Cols, grid.Rows)
	corners := gocv.NewMat()
	defer corners.Close()

	found := gocv.FindChessboardCorners(src, pattern, &corners, gocv.CalibCBAdaptiveThresh|gocv.CalibCBNormalizeImage)
	if !found || corners.Rows() != grid.Points() {
		return nil, false
	}

	criteria := gocv.NewTermCriteria(gocv.MaxIter|gocv.EPS, subPixMaxIter, subPixEpsilon)
	gocv.CornerSubPix(src, &corners, image.Pt(subPixWindow, subPixWindow), image.Pt(-1, -1), criteria)

	pts := make([]camera.Point2, 0, grid.Points())
	for i := 0; i < corners.Rows(); i++ {
		v := corners.GetVecfAt(i, 0)
		pts = append(pts, camera.Point2{X: float64(v[0]), Y: float64(v[1])})
	}
	return pts, true
}

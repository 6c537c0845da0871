// Package calibration collects chessboard corner correspondences from a
// video source and computes the camera's intrinsic parameters from them.
// Corner detection and sub-pixel refinement are consumed from OpenCV; the
// package's own job is the collection protocol and the world-coordinate
// assignment.
package calibration

import (
	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/JoshMarino/lims-hsv-system/camera"
)

// Grid describes the chessboard's inner-corner layout.
type Grid struct {
	Rows int
	Cols int
}

// Points returns the number of inner corners.
func (g Grid) Points() int {
	return g.Rows * g.Cols
}

// worldCorners assigns world coordinates to the detected corners.
// findChessboardCorners reports corners in row-major order, so the world
// frame is laid out the same way with unit spacing between neighbors:
// x runs positive left-to-right across columns, y runs negative down the
// rows, and the board plane is z = 0. The origin sits at the first
// detected corner.
func (g Grid) worldCorners() []camera.Point3 {
	pts := make([]camera.Point3, 0, g.Points())
	for i := 0; i < g.Points(); i++ {
		pts = append(pts, camera.Point3{
			X: float64(i % g.Cols),
			Y: -float64(i / g.Cols),
			Z: 0,
		})
	}
	return pts
}

// View is one collected correspondence set: refined pixel corners paired
// with their assigned world coordinates.
type View struct {
	ID    uuid.UUID
	Pixel []camera.Point2
	World []camera.Point3
}

// Source yields successive frames. Read reports false when the source is
// exhausted. *gocv.VideoCapture satisfies it.
type Source interface {
	Read(dst *gocv.Mat) bool
}

// CornerFinder detects a full chessboard in a frame and returns the
// refined corner locations. Implemented by ChessboardFinder over OpenCV;
// tests substitute a stub.
type CornerFinder interface {
	Find(img gocv.Mat, grid Grid) ([]camera.Point2, bool)
}

// Display is an optional live overlay observer. Skippable; not part of
// the collection contract.
type Display interface {
	Show(img gocv.Mat, corners []camera.Point2, found bool)
}

// Prompter supplies keyboard input during collection. WaitKey blocks for
// up to delay milliseconds (forever when zero) and returns the pressed
// key, or a negative value when none.
type Prompter interface {
	WaitKey(delay int) int
}

// Keys understood during collection.
const (
	keyIgnore = 'i' // discard the most recent view and try again
	keyQuit   = 'q' // stop collecting
)

// Collector gathers chessboard views from a source.
type Collector struct {
	Grid   Grid
	Finder CornerFinder

	// Display and Prompter are optional. Without a Prompter the
	// collection is fully automatic and runs to target or exhaustion.
	Display  Display
	Prompter Prompter

	// Interactive lets the operator discard a bad detection ('i') or stop
	// early ('q') after each successful find. Requires a Prompter.
	Interactive bool

	// Discarded accumulates the IDs of views the operator rejected, for
	// end-of-run reporting.
	Discarded []uuid.UUID
}

// Collect gathers up to targetCount views and returns however many were
// actually collected. Callers must compare the result count against the
// request; a short count is not an error here.
func (c *Collector) Collect(src Source, targetCount int) []View {
	img := gocv.NewMat()
	defer img.Close()

	world := c.Grid.worldCorners()
	var views []View

	for len(views) < targetCount {
		if !src.Read(&img) || img.Empty() {
			break
		}

		corners, found := c.Finder.Find(img, c.Grid)
		if found {
			views = append(views, View{ID: uuid.New(), Pixel: corners, World: world})
		}

		if c.Display != nil {
			c.Display.Show(img, corners, found)
		}

		if c.Prompter == nil {
			continue
		}
		if found && c.Interactive {
			// Let the operator inspect the overlay before committing.
			switch c.Prompter.WaitKey(0) {
			case keyIgnore:
				c.Discarded = append(c.Discarded, views[len(views)-1].ID)
				views = views[:len(views)-1]
			case keyQuit:
				return views
			}
		} else if c.Prompter.WaitKey(5) == keyQuit {
			return views
		}
	}
	return views
}

package calibration

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/JoshMarino/lims-hsv-system/camera"
)

// WindowDisplay shows the live detection overlay in an OpenCV window and
// doubles as the Prompter for interactive collection.
type WindowDisplay struct {
	win *gocv.Window
}

// NewWindowDisplay opens the overlay window.
func NewWindowDisplay(title string) *WindowDisplay {
	return &WindowDisplay{win: gocv.NewWindow(title)}
}

// Show draws the detected corners over the frame. Green circles for a
// complete detection, red for a partial or failed one.
func (d *WindowDisplay) Show(img gocv.Mat, corners []camera.Point2, found bool) {
	c := color.RGBA{R: 255, A: 255}
	if found {
		c = color.RGBA{G: 255, A: 255}
	}
	for _, p := range corners {
		gocv.Circle(&img, image.Pt(int(p.X), int(p.Y)), 4, c, 2)
	}
	d.win.IMShow(img)
}

// WaitKey implements Prompter through the window's event loop.
func (d *WindowDisplay) WaitKey(delay int) int {
	return d.win.WaitKey(delay)
}

// Close destroys the window.
func (d *WindowDisplay) Close() error {
	return d.win.Close()
}

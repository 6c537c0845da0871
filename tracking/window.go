// Package tracking implements the closed-loop ROI tracker: per-window
// state, blob location, ballistic motion prediction, and the frame loop
// that ties them to the acquisition and telemetry collaborators.
package tracking

import (
	"image"
	"time"

	"github.com/pkg/errors"

	"github.com/JoshMarino/lims-hsv-system/grab"
)

// Hardware ROI placement constraints. The frame grabber rejects windows
// whose x offset or width is not a multiple of 4, or narrower than 8
// pixels.
const (
	roiAlign    = 4
	minRoiWidth = 8
)

// Window pairs one hardware ROI slot with the software blob box tracked
// inside it.
//
// Two coordinate frames are in play. The "Roi" fields are the hardware
// window in full-sensor pixels, the only parameters the camera can be
// programmed with. The "Blob" fields are the tracked object's bounding
// box measured relative to the window's own origin. The blob box is
// converted to ROI-relative form exactly once, at initialization; every
// per-frame operation afterwards stays in that frame, and full-sensor
// coordinates reappear only when recentering the hardware window and when
// projecting to world coordinates.
type Window struct {
	RoiID int

	// Hardware window, full-sensor pixels.
	RoiX, RoiY int
	RoiW, RoiH int

	// Blob bounding box, ROI-relative. Max edges are exclusive.
	BlobXMin, BlobYMin int
	BlobXMax, BlobYMax int

	// Full sensor dimensions used for clamping.
	SensorW, SensorH int

	// Hardware timing carried with every ROI write.
	FrameTime time.Duration
	Exposure  time.Duration
}

// NewWindow creates a window from an initial best-guess blob location in
// full-sensor coordinates. The hardware ROI is centered on the blob and
// the blob box is converted to the window's own frame.
func NewWindow(roiID int, initialBlob image.Rectangle, roiW, roiH, sensorW, sensorH int, frameTime, exposure time.Duration) (*Window, error) {
	if roiW%roiAlign != 0 || roiW < minRoiWidth {
		return nil, errors.Errorf("roi %d: width %d must be a multiple of %d and at least %d", roiID, roiW, roiAlign, minRoiWidth)
	}
	if roiW > sensorW || roiH > sensorH {
		return nil, errors.Errorf("roi %d: window %dx%d exceeds sensor %dx%d", roiID, roiW, roiH, sensorW, sensorH)
	}
	if initialBlob.Empty() {
		return nil, errors.Errorf("roi %d: empty initial blob box", roiID)
	}

	w := &Window{
		RoiID:     roiID,
		RoiW:      roiW,
		RoiH:      roiH,
		SensorW:   sensorW,
		SensorH:   sensorH,
		FrameTime: frameTime,
		Exposure:  exposure,
	}

	// Center the hardware window on the blob's full-sensor midpoint.
	cx := (initialBlob.Min.X + initialBlob.Max.X) / 2
	cy := (initialBlob.Min.Y + initialBlob.Max.Y) / 2
	w.placeRoi(cx, cy)

	// Convert the blob box into the window's frame. This is the only time
	// the conversion runs; the box stays ROI-relative from here on.
	rel := w.ToRoiRelative(initialBlob.Min)
	w.BlobXMin, w.BlobYMin = rel.X, rel.Y
	rel = w.ToRoiRelative(initialBlob.Max)
	w.BlobXMax, w.BlobYMax = rel.X, rel.Y
	w.clampBlob()

	return w, nil
}

// ToRoiRelative converts a full-sensor point into this window's frame.
// Used at initialization only.
func (w *Window) ToRoiRelative(p image.Point) image.Point {
	return p.Sub(image.Pt(w.RoiX, w.RoiY))
}

// SetBlobBox replaces the blob bounding box. The rectangle is ROI-relative
// with exclusive max edges, as produced by the blob locator.
func (w *Window) SetBlobBox(r image.Rectangle) {
	w.BlobXMin, w.BlobYMin = r.Min.X, r.Min.Y
	w.BlobXMax, w.BlobYMax = r.Max.X, r.Max.Y
	w.clampBlob()
}

// BlobCenter returns the blob midpoint in the window's frame.
func (w *Window) BlobCenter() (float64, float64) {
	return float64(w.BlobXMin+w.BlobXMax) / 2, float64(w.BlobYMin+w.BlobYMax) / 2
}

// FullFrameBlobCenter returns the blob midpoint in full-sensor pixels, the
// coordinate handed to the camera model for world projection.
func (w *Window) FullFrameBlobCenter() (float64, float64) {
	cx, cy := w.BlobCenter()
	return float64(w.RoiX) + cx, float64(w.RoiY) + cy
}

// Recenter recomputes the hardware window so the current blob midpoint
// sits at its center, honoring the alignment constraint and clamping to
// the sensor bounds. The blob box is shifted so it remains ROI-relative to
// the new origin. Reports whether the offset changed.
//
// Idempotent: with no blob motion in between, a second call lands on the
// same offset. The update is buffered state only; nothing reaches the
// hardware until the loop flushes a RoiRequest.
func (w *Window) Recenter() bool {
	cx, cy := w.BlobCenter()
	fullCx := w.RoiX + int(cx)
	fullCy := w.RoiY + int(cy)

	oldX, oldY := w.RoiX, w.RoiY
	w.placeRoi(fullCx, fullCy)

	dx := oldX - w.RoiX
	dy := oldY - w.RoiY
	w.BlobXMin += dx
	w.BlobXMax += dx
	w.BlobYMin += dy
	w.BlobYMax += dy
	w.clampBlob()

	return dx != 0 || dy != 0
}

// RoiRequest builds the buffered hardware write for this window's current
// placement and timing.
func (w *Window) RoiRequest() grab.RoiRequest {
	return grab.RoiRequest{
		RoiID:     w.RoiID,
		OffsetX:   w.RoiX,
		OffsetY:   w.RoiY,
		Width:     w.RoiW,
		Height:    w.RoiH,
		FrameTime: w.FrameTime,
		Exposure:  w.Exposure,
	}
}

// placeRoi positions the hardware window so it is centered on the given
// full-sensor point, snapped down to the alignment grid and clamped so the
// window never leaves the sensor. Tracking degrades gracefully at the
// frame edge instead of erroring.
func (w *Window) placeRoi(cx, cy int) {
	x := cx - w.RoiW/2
	y := cy - w.RoiH/2

	if x < 0 {
		x = 0
	}
	if x > w.SensorW-w.RoiW {
		x = w.SensorW - w.RoiW
	}
	x -= x % roiAlign

	if y < 0 {
		y = 0
	}
	if y > w.SensorH-w.RoiH {
		y = w.SensorH - w.RoiH
	}

	w.RoiX, w.RoiY = x, y
}

// clampBlob keeps the blob box inside the window after shifts at the
// sensor edge.
func (w *Window) clampBlob() {
	if w.BlobXMin < 0 {
		w.BlobXMin = 0
	}
	if w.BlobYMin < 0 {
		w.BlobYMin = 0
	}
	if w.BlobXMax > w.RoiW {
		w.BlobXMax = w.RoiW
	}
	if w.BlobYMax > w.RoiH {
		w.BlobYMax = w.RoiH
	}
	if w.BlobXMax < w.BlobXMin {
		w.BlobXMax = w.BlobXMin
	}
	if w.BlobYMax < w.BlobYMin {
		w.BlobYMax = w.BlobYMin
	}
}

package tracking

import (
	"image"

	"github.com/pkg/errors"

	"github.com/JoshMarino/lims-hsv-system/grab"
)

// ErrNoBlob reports that no foreground pixels survived thresholding and
// erosion. Recoverable: the loop decides whether to hold the previous box
// or dead-reckon.
var ErrNoBlob = errors.New("no blob above threshold")

// Locator finds the blob inside a delivered ROI frame: binarize against a
// threshold, one 3x3 erosion pass to suppress single-pixel noise, then the
// bounding box of the surviving foreground. Scratch storage is reused
// across frames; a Locator is not safe for concurrent use.
//
// Deterministic: a fixed buffer and threshold always produce the same box.
type Locator struct {
	mask []uint8
}

// NewLocator returns a Locator with no scratch storage allocated yet; the
// first Locate sizes it to the frame.
func NewLocator() *Locator {
	return &Locator{}
}

// Locate returns the blob bounding box in the frame's own (ROI-relative)
// coordinates, with exclusive max edges. The frame's pixel buffer is only
// read, never retained.
func (l *Locator) Locate(f grab.Frame, threshold uint8) (image.Rectangle, error) {
	w, h := f.Width, f.Height
	if w <= 0 || h <= 0 {
		return image.Rectangle{}, errors.Errorf("locate: empty frame %dx%d", w, h)
	}

	if cap(l.mask) < w*h {
		l.mask = make([]uint8, w*h)
	}
	mask := l.mask[:w*h]

	// Binarize. Foreground is the bright side of the threshold.
	for y := 0; y < h; y++ {
		row := f.Pix[y*f.Stride : y*f.Stride+w]
		for x, v := range row {
			if v > threshold {
				mask[y*w+x] = 1
			} else {
				mask[y*w+x] = 0
			}
		}
	}

	// One erosion pass with a 3x3 structuring element. A pixel survives
	// only if its full 8-neighborhood is foreground, so border pixels and
	// isolated speckles never do. Survivors are marked with 3, keeping the
	// low bit set, so neighbor tests read pre-erosion values in place.
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			if mask[i] == 0 {
				continue
			}
			if mask[i-1]&1 == 1 && mask[i+1]&1 == 1 &&
				mask[i-w-1]&1 == 1 && mask[i-w]&1 == 1 && mask[i-w+1]&1 == 1 &&
				mask[i+w-1]&1 == 1 && mask[i+w]&1 == 1 && mask[i+w+1]&1 == 1 {
				mask[i] = 3
			}
		}
	}

	// Bounding box of the eroded foreground.
	minX, minY := w, h
	maxX, maxY := -1, -1
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if mask[y*w+x] != 3 {
				continue
			}
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
		}
	}

	if maxX < 0 {
		return image.Rectangle{}, ErrNoBlob
	}
	return image.Rect(minX, minY, maxX+1, maxY+1), nil
}

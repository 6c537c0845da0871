// Package grab defines the boundary to the frame acquisition hardware: a
// grabber delivers tagged ROI-sized frames and accepts buffered ROI
// programming. The proprietary frame-grabber driver lives behind the
// Grabber interface; this package also ships a video-file adapter and a
// scripted test double.
package grab

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// ErrTimeout reports that no frame became ready within the acquisition
// timeout. Recoverable: the caller skips the iteration and retries.
var ErrTimeout = errors.New("frame not ready within timeout")

// HardwareError is a fatal acquisition or ROI-write failure. Desc carries
// the driver's own diagnostic string.
type HardwareError struct {
	Op   string
	Desc string
}

func (e *HardwareError) Error() string {
	return fmt.Sprintf("hardware %s failed: %s", e.Op, e.Desc)
}

// Frame is one tagged acquisition. Pix is lent by the grabber for the
// duration of a single loop iteration and must not be retained past it;
// the next Acquire call may reuse the same backing storage.
type Frame struct {
	RoiID       int    // decoded from the image tag
	ImageNumber uint32 // monotonically increasing per delivered frame
	Timestamp   uint64 // hardware timestamp, microseconds
	OffsetX     int    // delivered ROI origin, full-sensor pixels
	OffsetY     int
	Width       int    // delivered ROI width, pixels
	Height      int    // delivered ROI height, pixels
	Stride      int    // bytes per row in Pix
	Pix         []byte // 8-bit grayscale, borrowed
}

// RoiRequest is a buffered hardware ROI write. The grabber is the only
// consumer; the tracking code is the sole source of truth for placement,
// so the currently-active hardware ROI is never read back.
type RoiRequest struct {
	RoiID     int
	OffsetX   int
	OffsetY   int
	Width     int
	Height    int
	FrameTime time.Duration
	Exposure  time.Duration
}

// Grabber is the acquisition collaborator.
type Grabber interface {
	// AcquireTaggedFrame blocks up to timeout for the next tagged frame.
	// Returns ErrTimeout when no frame is ready, or a *HardwareError on
	// driver failure.
	AcquireTaggedFrame(timeout time.Duration) (Frame, error)

	// WriteRoi programs the hardware window for one ROI slot. Takes effect
	// for the next frame delivered from that slot.
	WriteRoi(req RoiRequest) error

	// LastErrorDescription returns the driver's diagnostic for the most
	// recent failure, or the empty string.
	LastErrorDescription() string
}

// DecodeTag extracts the ROI id from a frame tag. The hardware packs the
// ROI slot into the high 16 bits of the tag word; this is the only place
// that bit layout appears.
func DecodeTag(tag uint32) int {
	return int(tag >> 16)
}

// EncodeTag packs an ROI id into the tag bit layout. Used by test doubles
// and replay adapters to fabricate hardware-shaped tags.
func EncodeTag(roiID int) uint32 {
	return uint32(roiID) << 16
}

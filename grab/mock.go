package grab

import (
	"time"
)

// ScriptedFrame is one step of a ScriptedGrabber's playback. Either Err is
// returned from AcquireTaggedFrame, or a Frame is synthesized from the
// remaining fields.
type ScriptedFrame struct {
	Tag       uint32
	Timestamp uint64
	OffsetX   int
	OffsetY   int
	Width     int
	Height    int
	Pix       []byte
	Err       error

	// ImageNumber overrides the auto-incremented sequence when nonzero,
	// so a script can model frames the hardware dropped.
	ImageNumber uint32
}

// ScriptedGrabber plays back a fixed frame sequence and records every ROI
// write, in order. It implements Grabber for tests and synthetic
// end-to-end scenarios.
type ScriptedGrabber struct {
	Frames    []ScriptedFrame
	RoiWrites []RoiRequest
	WriteErr  error // returned from every WriteRoi when set

	next        int
	imageNumber uint32
	lastErr     string
}

// AcquireTaggedFrame returns the next scripted frame. Once the script is
// exhausted every call reports ErrTimeout, so a caller polling a quit
// signal terminates cleanly rather than hanging.
func (g *ScriptedGrabber) AcquireTaggedFrame(_ time.Duration) (Frame, error) {
	if g.next >= len(g.Frames) {
		g.lastErr = "script exhausted"
		return Frame{}, ErrTimeout
	}
	s := g.Frames[g.next]
	g.next++

	if s.Err != nil {
		g.lastErr = s.Err.Error()
		return Frame{}, s.Err
	}

	if s.ImageNumber != 0 {
		g.imageNumber = s.ImageNumber
	} else {
		g.imageNumber++
	}
	return Frame{
		RoiID:       DecodeTag(s.Tag),
		ImageNumber: g.imageNumber,
		Timestamp:   s.Timestamp,
		OffsetX:     s.OffsetX,
		OffsetY:     s.OffsetY,
		Width:       s.Width,
		Height:      s.Height,
		Stride:      s.Width,
		Pix:         s.Pix,
	}, nil
}

// WriteRoi records the buffered ROI request.
func (g *ScriptedGrabber) WriteRoi(req RoiRequest) error {
	if g.WriteErr != nil {
		g.lastErr = g.WriteErr.Error()
		return g.WriteErr
	}
	g.RoiWrites = append(g.RoiWrites, req)
	return nil
}

// LastErrorDescription returns the most recent failure description.
func (g *ScriptedGrabber) LastErrorDescription() string {
	return g.lastErr
}

// WritesFor returns the recorded ROI writes for one slot, in order.
func (g *ScriptedGrabber) WritesFor(roiID int) []RoiRequest {
	var out []RoiRequest
	for _, w := range g.RoiWrites {
		if w.RoiID == roiID {
			out = append(out, w)
		}
	}
	return out
}

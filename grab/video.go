package grab

import (
	"image"
	"time"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// VideoSource yields successive full-sensor frames. *gocv.VideoCapture
// satisfies it, so recorded footage or a webcam can stand in for the
// high-speed camera during development.
type VideoSource interface {
	Read(m *gocv.Mat) bool
}

// VideoGrabber adapts a VideoSource to the Grabber interface. It emulates
// the hardware's ROI readout: full frames are grabbed, converted to 8-bit
// grayscale, and only the programmed window for the current slot in the
// ROI sequence is copied out and tagged. ROI writes are buffered exactly
// like the real driver: a write takes effect on the next frame for that
// slot.
type VideoGrabber struct {
	src VideoSource
	seq []int

	rois map[int]RoiRequest

	frame gocv.Mat
	gray  gocv.Mat
	buf   []byte

	cursor      int
	imageNumber uint32
	start       time.Time
	lastErr     string
}

// NewVideoGrabber builds a grabber delivering frames for the given ROI
// sequence, round-robin, one ROI per source frame.
func NewVideoGrabber(src VideoSource, seq []int) (*VideoGrabber, error) {
	if len(seq) == 0 {
		return nil, errors.New("video grabber: empty ROI sequence")
	}
	return &VideoGrabber{
		src:   src,
		seq:   append([]int(nil), seq...),
		rois:  make(map[int]RoiRequest),
		frame: gocv.NewMat(),
		gray:  gocv.NewMat(),
		start: time.Now(),
	}, nil
}

// Close releases the scratch image storage.
func (g *VideoGrabber) Close() {
	g.frame.Close()
	g.gray.Close()
}

// WriteRoi buffers the window for one ROI slot, enforcing the same
// placement constraints the camera does.
func (g *VideoGrabber) WriteRoi(req RoiRequest) error {
	if req.OffsetX%4 != 0 || req.Width%4 != 0 || req.Width < 8 {
		g.lastErr = "invalid ROI geometry"
		return &HardwareError{Op: "write roi", Desc: g.lastErr}
	}
	g.rois[req.RoiID] = req
	return nil
}

// AcquireTaggedFrame grabs the next source frame and delivers the
// programmed window for the next ROI slot in the sequence. The returned
// pixel buffer is reused on the following call.
func (g *VideoGrabber) AcquireTaggedFrame(_ time.Duration) (Frame, error) {
	roiID := g.seq[g.cursor%len(g.seq)]
	req, ok := g.rois[roiID]
	if !ok {
		g.lastErr = "roi slot never programmed"
		return Frame{}, &HardwareError{Op: "acquire", Desc: g.lastErr}
	}

	if !g.src.Read(&g.frame) || g.frame.Empty() {
		g.lastErr = "video source exhausted"
		return Frame{}, &HardwareError{Op: "acquire", Desc: g.lastErr}
	}

	if g.frame.Channels() > 1 {
		gocv.CvtColor(g.frame, &g.gray, gocv.ColorBGRToGray)
	} else {
		g.frame.CopyTo(&g.gray)
	}

	data, err := g.gray.DataPtrUint8()
	if err != nil {
		g.lastErr = err.Error()
		return Frame{}, &HardwareError{Op: "acquire", Desc: g.lastErr}
	}

	fullW := g.gray.Cols()
	fullH := g.gray.Rows()
	window := image.Rect(req.OffsetX, req.OffsetY, req.OffsetX+req.Width, req.OffsetY+req.Height)
	if !window.In(image.Rect(0, 0, fullW, fullH)) {
		g.lastErr = "programmed ROI exceeds sensor bounds"
		return Frame{}, &HardwareError{Op: "acquire", Desc: g.lastErr}
	}

	if cap(g.buf) < req.Width*req.Height {
		g.buf = make([]byte, req.Width*req.Height)
	}
	g.buf = g.buf[:req.Width*req.Height]
	for y := 0; y < req.Height; y++ {
		src := data[(req.OffsetY+y)*fullW+req.OffsetX:]
		copy(g.buf[y*req.Width:(y+1)*req.Width], src[:req.Width])
	}

	g.cursor++
	g.imageNumber++
	return Frame{
		RoiID:       DecodeTag(EncodeTag(roiID)),
		ImageNumber: g.imageNumber,
		Timestamp:   uint64(time.Since(g.start).Microseconds()),
		OffsetX:     req.OffsetX,
		OffsetY:     req.OffsetY,
		Width:       req.Width,
		Height:      req.Height,
		Stride:      req.Width,
		Pix:         g.buf,
	}, nil
}

// LastErrorDescription returns the most recent failure description.
func (g *VideoGrabber) LastErrorDescription() string {
	return g.lastErr
}

package tracking

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/JoshMarino/lims-hsv-system/camera"
	"github.com/JoshMarino/lims-hsv-system/comm"
	"github.com/JoshMarino/lims-hsv-system/grab"
)

// Global debug function for the tracking package.
var debugMsgFunc func(component, message string)

// SetDebugFunction allows the main package to provide a debug sink.
func SetDebugFunction(fn func(component, message string)) {
	debugMsgFunc = fn
}

// debugMsg is a wrapper that handles nil checks.
func debugMsg(component, message string) {
	if debugMsgFunc != nil {
		debugMsgFunc(component, message)
	}
}

// RoiRangeError reports a frame tagged for an ROI slot with no configured
// window: a hardware misconfiguration, fatal to the loop.
type RoiRangeError struct {
	RoiID int
}

func (e *RoiRangeError) Error() string {
	return fmt.Sprintf("frame tagged for unconfigured roi %d", e.RoiID)
}

// Config holds the loop's tunables.
type Config struct {
	// Threshold separates blob foreground from background.
	Threshold uint8

	// Depth is the fixed camera-frame depth used for back-projection.
	// Zero selects the camera model's calibration-plane depth.
	Depth float64

	// AcquireTimeout bounds each blocking frame acquisition.
	AcquireTimeout time.Duration

	// UsePredictor enables ballistic Kalman filtering of the emitted
	// world coordinates, and dead-reckoning across missed blobs.
	UsePredictor bool

	// Gravity overrides DefaultGravity when non-zero.
	Gravity float64
}

// Stats accumulates across a run and is reported at exit.
type Stats struct {
	Frames     int           // frames fully processed and emitted
	Misses     int           // frames with no blob above threshold
	Timeouts   int           // acquisitions that timed out and were retried
	LostFrames int           // gaps detected in the image number sequence
	Elapsed    time.Duration // wall time spent inside Run
}

// AverageIteration returns the mean wall time per processed frame.
func (s Stats) AverageIteration() time.Duration {
	if s.Frames == 0 {
		return 0
	}
	return s.Elapsed / time.Duration(s.Frames)
}

// Loop drives the per-frame tracking cycle. It owns every window
// exclusively for its lifetime; all state mutation is single-threaded and
// strictly sequential, so no locking is needed.
type Loop struct {
	grabber grab.Grabber
	emitter comm.Emitter
	model   *camera.Model

	windows    map[int]*Window
	predictors map[int]*Predictor
	locator    *Locator

	cfg   Config
	depth float64

	nextImageNumber uint32
	stats           Stats
}

// NewLoop wires the collaborators and takes ownership of the windows.
func NewLoop(grabber grab.Grabber, emitter comm.Emitter, model *camera.Model, windows []*Window, cfg Config) (*Loop, error) {
	if len(windows) == 0 {
		return nil, errors.New("loop: no tracking windows configured")
	}

	byID := make(map[int]*Window, len(windows))
	for _, w := range windows {
		if _, dup := byID[w.RoiID]; dup {
			return nil, errors.Errorf("loop: duplicate window for roi %d", w.RoiID)
		}
		byID[w.RoiID] = w
	}

	depth := cfg.Depth
	if depth == 0 {
		depth = model.PlaneDepth()
	}

	l := &Loop{
		grabber: grabber,
		emitter: emitter,
		model:   model,
		windows: byID,
		locator: NewLocator(),
		cfg:     cfg,
		depth:   depth,
	}

	if cfg.UsePredictor {
		gravity := cfg.Gravity
		if gravity == 0 {
			gravity = DefaultGravity
		}
		l.predictors = make(map[int]*Predictor, len(windows))
		for id := range byID {
			// Each window gets its own filter with its own covariance.
			l.predictors[id] = NewPredictor(gravity)
		}
	}

	return l, nil
}

// Stats returns the counters accumulated so far.
func (l *Loop) Stats() Stats {
	return l.stats
}

// Run flushes the initial ROI placements and iterates until quit reports
// true or a fatal error occurs. quit is polled once per iteration
// boundary; an in-progress iteration always completes. Recoverable
// conditions (acquire timeout, missing blob) are handled inside the
// iteration and never escape.
func (l *Loop) Run(quit func() bool) (Stats, error) {
	start := time.Now()
	defer func() {
		l.stats.Elapsed = time.Since(start)
	}()

	// Initial two-step commit: placements were computed at window
	// construction, now write them so the first frames are windowed
	// correctly.
	for _, w := range l.windows {
		if err := l.grabber.WriteRoi(w.RoiRequest()); err != nil {
			return l.stats, errors.Wrap(err, "flush initial roi")
		}
	}

	for !quit() {
		if err := l.step(); err != nil {
			return l.stats, err
		}
	}
	return l.stats, nil
}

// step runs one full iteration. Returns nil for both success and
// recoverable skips; any non-nil error is fatal to the loop.
func (l *Loop) step() error {
	frame, err := l.grabber.AcquireTaggedFrame(l.cfg.AcquireTimeout)
	if err != nil {
		if errors.Is(err, grab.ErrTimeout) {
			l.stats.Timeouts++
			debugMsg("LOOP", "acquire timeout, retrying")
			return nil
		}
		return errors.Wrap(err, "acquire tagged frame")
	}

	win, ok := l.windows[frame.RoiID]
	if !ok {
		return &RoiRangeError{RoiID: frame.RoiID}
	}

	if l.nextImageNumber != 0 && frame.ImageNumber > l.nextImageNumber {
		lost := int(frame.ImageNumber - l.nextImageNumber)
		l.stats.LostFrames += lost
		debugMsg("LOOP", fmt.Sprintf("lost %d frame(s) before image %d", lost, frame.ImageNumber))
	}

	// The frame buffer is borrowed for this iteration only. The locator
	// reads it into its own scratch mask and nothing retains it.
	box, err := l.locator.Locate(frame, l.cfg.Threshold)
	measured := err == nil
	switch {
	case measured:
		win.SetBlobBox(box)
	case errors.Is(err, ErrNoBlob):
		// Hold the previous box; the predictor, when enabled, carries the
		// world estimate forward below.
		l.stats.Misses++
		debugMsg("LOOP", fmt.Sprintf("roi %d: no blob above threshold, holding last box", frame.RoiID))
	default:
		return errors.Wrapf(err, "locate blob in roi %d", frame.RoiID)
	}

	// Recenter is buffered state only; the write below is the commit.
	if win.Recenter() {
		debugMsg("LOOP", fmt.Sprintf("roi %d: recentered to (%d,%d)", frame.RoiID, win.RoiX, win.RoiY))
	}
	if err := l.grabber.WriteRoi(win.RoiRequest()); err != nil {
		return errors.Wrapf(err, "write roi %d: %s", frame.RoiID, l.grabber.LastErrorDescription())
	}

	wx, wy := l.project(win, frame.RoiID, measured)

	if err := l.emitter.Send(frame.RoiID, float32(wx), float32(wy), frame.Timestamp); err != nil {
		return errors.Wrapf(err, "emit track for roi %d", frame.RoiID)
	}

	l.stats.Frames++
	l.nextImageNumber = frame.ImageNumber + 1
	return nil
}

// project converts the window's blob center to world coordinates at the
// configured depth, optionally filtered through the window's predictor.
// When the blob was missed and a predictor exists, the estimate is carried
// forward by prediction alone.
func (l *Loop) project(win *Window, roiID int, measured bool) (float64, float64) {
	px, py := win.FullFrameBlobCenter()
	world := l.model.PixelToWorld(camera.Point2{X: px, Y: py}, l.depth)

	pred := l.predictors[roiID]
	if pred == nil {
		return world.X, world.Y
	}

	dt := win.FrameTime.Seconds()
	if !measured && pred.Initialized() {
		return pred.Predict(dt)
	}
	pred.Predict(dt)
	return pred.Correct(world.X, world.Y)
}

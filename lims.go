package main

import (
	"flag"
	"fmt"
	"image"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/JoshMarino/lims-hsv-system/camera"
	"github.com/JoshMarino/lims-hsv-system/comm"
	"github.com/JoshMarino/lims-hsv-system/grab"
	"github.com/JoshMarino/lims-hsv-system/tracking"
)

// Exit codes by failure origin.
const (
	exitConfig   = 2 // bad flags or calibration files
	exitHardware = 3 // camera link or ROI programming failure
	exitRuntime  = 1 // anything else fatal inside the loop
)

var (
	// Command-line flags
	inputStream = flag.String("input", "", "video source standing in for the camera link (required)\n\t\tExample: -input=drop.avi or -input=0 for a live device")
	commPort    = flag.String("comm", "", "serial device for track output (omit to print tracks to stdout)\n\t\tExample: -comm=/dev/ttyUSB0")
	calibDir    = flag.String("calib", ".", "directory holding the four calibration matrix files")
	windowSpec  = flag.String("windows", "0:512,512", "initial blob guesses, one per ROI slot, as id:x,y pairs separated by ';'\n\t\tExample: -windows=\"0:400,300;1:700,650\"")
	debugMode   = flag.Bool("debug", false, "enable per-iteration tracking logs")

	// Acquisition geometry and timing
	threshold = flag.Int("threshold", 254, "blob intensity threshold (0-255)")
	roiBox    = flag.Int("roi-box", 64, "tracking window edge length in pixels")
	sensorW   = flag.Int("sensor-width", 1024, "full sensor width in pixels")
	sensorH   = flag.Int("sensor-height", 1024, "full sensor height in pixels")
	frameTime = flag.Duration("frame-time", 50*time.Millisecond, "per-window frame period")
	exposure  = flag.Duration("exposure", 20*time.Millisecond, "per-window exposure time")
	timeout   = flag.Duration("timeout", 100*time.Millisecond, "frame acquisition timeout")

	// Projection and prediction
	depth      = flag.Float64("depth", 0, "fixed back-projection depth in camera units (0 uses the calibration plane)")
	usePred    = flag.Bool("predict", false, "filter emitted tracks through the ballistic predictor")
	gravityMag = flag.Float64("gravity", 0, "gravity magnitude for the predictor (0 uses the default)")
)

func main() {
	flag.Parse()

	if *inputStream == "" {
		fmt.Fprintln(os.Stderr, "error: -input is required")
		flag.Usage()
		os.Exit(exitConfig)
	}

	os.Exit(run())
}

func run() int {
	model, err := camera.Load(
		filepath.Join(*calibDir, camera.IntrinsicFile),
		filepath.Join(*calibDir, camera.DistortionFile),
		filepath.Join(*calibDir, camera.RotationFile),
		filepath.Join(*calibDir, camera.TranslationFile),
	)
	if err != nil {
		log.Printf("load calibration: %v", err)
		return exitConfig
	}

	windows, err := parseWindows(*windowSpec)
	if err != nil {
		log.Printf("parse -windows: %v", err)
		return exitConfig
	}

	thresh, err := thresholdValue(*threshold)
	if err != nil {
		log.Printf("parse -threshold: %v", err)
		return exitConfig
	}

	capture, err := gocv.OpenVideoCapture(*inputStream)
	if err != nil {
		log.Printf("open video source %q: %v", *inputStream, err)
		return exitHardware
	}
	defer capture.Close()

	seq := make([]int, 0, len(windows))
	for _, w := range windows {
		seq = append(seq, w.RoiID)
	}
	grabber, err := grab.NewVideoGrabber(capture, seq)
	if err != nil {
		log.Printf("grabber: %v", err)
		return exitConfig
	}
	defer grabber.Close()

	emitter, closePort, err := openEmitter(*commPort)
	if err != nil {
		log.Printf("open comm port %q: %v", *commPort, err)
		return exitHardware
	}
	defer closePort()

	if *debugMode {
		tracking.SetDebugFunction(func(component, message string) {
			log.Printf("[%s] %s", component, message)
		})
	}

	loop, err := tracking.NewLoop(grabber, emitter, model, windows, tracking.Config{
		Threshold:      thresh,
		Depth:          *depth,
		AcquireTimeout: *timeout,
		UsePredictor:   *usePred,
		Gravity:        *gravityMag,
	})
	if err != nil {
		log.Printf("configure loop: %v", err)
		return exitConfig
	}

	var stop atomic.Bool
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("signal received, stopping after this iteration")
		stop.Store(true)
	}()

	log.Printf("tracking %d window(s) at threshold %d, depth %.2f", len(windows), *threshold, *depth)
	stats, runErr := loop.Run(stop.Load)

	log.Printf("processed %d frames in %s (avg %s/frame), %d misses, %d timeouts, %d lost",
		stats.Frames, stats.Elapsed.Round(time.Millisecond), stats.AverageIteration(),
		stats.Misses, stats.Timeouts, stats.LostFrames)

	if runErr == nil {
		return 0
	}
	log.Printf("tracking stopped: %v", runErr)

	var rangeErr *tracking.RoiRangeError
	var hwErr *grab.HardwareError
	switch {
	case errors.As(runErr, &rangeErr), errors.As(runErr, &hwErr):
		return exitHardware
	default:
		return exitRuntime
	}
}

// thresholdValue validates the blob threshold flag before it is narrowed
// to a pixel value.
func thresholdValue(v int) (uint8, error) {
	if v < 0 || v > 255 {
		return 0, errors.Errorf("threshold %d out of range 0-255", v)
	}
	return uint8(v), nil
}

// parseWindows builds one tracking window per id:x,y entry. The guess is a
// small square around the given point; the first located blob replaces it.
func parseWindows(arg string) ([]*tracking.Window, error) {
	var windows []*tracking.Window
	for _, entry := range strings.Split(arg, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		idPart, ptPart, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, errors.Errorf("entry %q: want id:x,y", entry)
		}
		xPart, yPart, ok := strings.Cut(ptPart, ",")
		if !ok {
			return nil, errors.Errorf("entry %q: want id:x,y", entry)
		}
		id, err := strconv.Atoi(strings.TrimSpace(idPart))
		if err != nil {
			return nil, errors.Wrapf(err, "entry %q: roi id", entry)
		}
		x, err := strconv.Atoi(strings.TrimSpace(xPart))
		if err != nil {
			return nil, errors.Wrapf(err, "entry %q: x", entry)
		}
		y, err := strconv.Atoi(strings.TrimSpace(yPart))
		if err != nil {
			return nil, errors.Wrapf(err, "entry %q: y", entry)
		}

		guess := image.Rect(x-4, y-4, x+4, y+4)
		w, err := tracking.NewWindow(id, guess, *roiBox, *roiBox, *sensorW, *sensorH, *frameTime, *exposure)
		if err != nil {
			return nil, errors.Wrapf(err, "window for roi %d", id)
		}
		windows = append(windows, w)
	}
	if len(windows) == 0 {
		return nil, errors.New("no windows configured")
	}
	return windows, nil
}

// openEmitter returns the serial emitter for the configured port, or a
// stdout emitter when no port was given.
func openEmitter(path string) (comm.Emitter, func(), error) {
	if path == "" {
		return consoleEmitter{}, func() {}, nil
	}
	port, err := comm.OpenPort(path)
	if err != nil {
		return nil, nil, err
	}
	e := comm.NewSerialEmitter(port)
	return e, func() {
		if cerr := e.Close(); cerr != nil {
			log.Printf("close comm port: %v", cerr)
		}
	}, nil
}

// consoleEmitter prints tracks instead of sending them over serial, for
// bench runs without the downstream controller attached.
type consoleEmitter struct{}

func (consoleEmitter) Send(roiID int, x, y float32, timestamp uint64) error {
	_, err := fmt.Printf("%d,%.4f,%.4f,%d\n", roiID, x, y, timestamp)
	return err
}

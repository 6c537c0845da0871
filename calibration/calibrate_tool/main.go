// Command calibrate_tool collects chessboard views from a camera or video
// file and writes the intrinsic matrix and distortion coefficients to a
// calibration directory for the tracker to load at startup.
package main

import (
	"flag"
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/JoshMarino/lims-hsv-system/calibration"
	"github.com/JoshMarino/lims-hsv-system/camera"
)

var (
	input       = flag.String("input", "0", "video source: device id or file/stream path")
	rows        = flag.Int("rows", 6, "chessboard inner corners per column")
	cols        = flag.Int("cols", 9, "chessboard inner corners per row")
	targetViews = flag.Int("views", 10, "number of chessboard views to collect")
	interactive = flag.Bool("interactive", false, "prompt after each detection ('i' discards it, 'q' stops early)")
	headless    = flag.Bool("headless", false, "collect without the live overlay window")
	outDir      = flag.String("out", ".", "directory for the calibration matrix files")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		log.Fatalf("calibrate: %v", err)
	}
}

func run() error {
	capture, err := gocv.OpenVideoCapture(*input)
	if err != nil {
		return errors.Wrapf(err, "open video source %q", *input)
	}
	defer capture.Close()

	finder := calibration.NewChessboardFinder()
	defer finder.Close()

	collector := &calibration.Collector{
		Grid:        calibration.Grid{Rows: *rows, Cols: *cols},
		Finder:      finder,
		Interactive: *interactive,
	}
	if !*headless {
		display := calibration.NewWindowDisplay("calibration")
		defer display.Close()
		collector.Display = display
		collector.Prompter = display
	}

	// Grab one frame up front so the image size is known for calibration.
	probe := gocv.NewMat()
	defer probe.Close()
	if !capture.Read(&probe) || probe.Empty() {
		return errors.New("video source produced no frames")
	}
	imageSize := image.Pt(probe.Cols(), probe.Rows())

	log.Printf("collecting %d views of a %dx%d chessboard from %s", *targetViews, *rows, *cols, *input)
	views := collector.Collect(capture, *targetViews)
	for _, v := range views {
		log.Printf("view %s: %d corners", v.ID, len(v.Pixel))
	}
	for _, id := range collector.Discarded {
		log.Printf("view %s discarded by operator", id)
	}
	if len(views) < *targetViews {
		log.Printf("short collection: got %d of %d views", len(views), *targetViews)
	}

	result, err := calibration.ComputeIntrinsics(views, imageSize)
	if err != nil {
		return err
	}
	log.Printf("calibrated over %d views, RMS reprojection error %.4f px", len(views), result.RMS)

	intrinsicPath := filepath.Join(*outDir, camera.IntrinsicFile)
	distortionPath := filepath.Join(*outDir, camera.DistortionFile)

	data := make([]float64, 0, 9)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			data = append(data, result.Camera.At(r, c))
		}
	}
	if err := camera.SaveMatrix(intrinsicPath, 3, 3, data); err != nil {
		return err
	}
	if err := camera.SaveMatrix(distortionPath, len(result.Distortion), 1, result.Distortion); err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "wrote %s and %s\n", intrinsicPath, distortionPath)
	return nil
}

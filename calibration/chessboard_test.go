package calibration

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/JoshMarino/lims-hsv-system/camera"
)

// stubSource yields a fixed number of blank frames.
type stubSource struct {
	remaining int
}

func (s *stubSource) Read(dst *gocv.Mat) bool {
	if s.remaining <= 0 {
		return false
	}
	s.remaining--
	tmp := gocv.NewMatWithSize(16, 16, gocv.MatTypeCV8UC1)
	defer tmp.Close()
	tmp.CopyTo(dst)
	return true
}

// stubFinder reports a detection according to a fixed per-frame script.
type stubFinder struct {
	script []bool
	calls  int
}

func (f *stubFinder) Find(_ gocv.Mat, grid Grid) ([]camera.Point2, bool) {
	i := f.calls
	f.calls++
	if i >= len(f.script) || !f.script[i] {
		return nil, false
	}
	pts := make([]camera.Point2, grid.Points())
	for j := range pts {
		pts[j] = camera.Point2{X: float64(10 + j), Y: float64(20 + i)}
	}
	return pts, true
}

// scriptedPrompter plays back key presses.
type scriptedPrompter struct {
	keys []int
	next int
}

func (p *scriptedPrompter) WaitKey(_ int) int {
	if p.next >= len(p.keys) {
		return -1
	}
	k := p.keys[p.next]
	p.next++
	return k
}

func TestWorldCornerAssignment(t *testing.T) {
	g := Grid{Rows: 3, Cols: 4}
	world := g.worldCorners()
	require.Len(t, world, 12)

	// Row-major with unit spacing: x across columns, y negative down rows.
	assert.Equal(t, camera.Point3{X: 0, Y: 0, Z: 0}, world[0])
	assert.Equal(t, camera.Point3{X: 3, Y: 0, Z: 0}, world[3])
	assert.Equal(t, camera.Point3{X: 0, Y: -1, Z: 0}, world[4])
	assert.Equal(t, camera.Point3{X: 3, Y: -2, Z: 0}, world[11])
}

func TestCollectReturnsShortCountWhenSourceRunsOut(t *testing.T) {
	// Ten frames, only two of which ever show a full board. Requesting
	// five views must return exactly two, with no error and no hang.
	finder := &stubFinder{script: []bool{false, true, false, false, true, false, false, false, false, false}}
	c := &Collector{Grid: Grid{Rows: 3, Cols: 4}, Finder: finder}

	views := c.Collect(&stubSource{remaining: 10}, 5)
	assert.Len(t, views, 2)

	// Every view carries the full world assignment and a distinct id.
	for _, v := range views {
		assert.Len(t, v.Pixel, 12)
		assert.Len(t, v.World, 12)
	}
	assert.NotEqual(t, views[0].ID, views[1].ID)
}

func TestCollectStopsAtTarget(t *testing.T) {
	finder := &stubFinder{script: []bool{true, true, true, true, true, true}}
	c := &Collector{Grid: Grid{Rows: 2, Cols: 2}, Finder: finder}

	views := c.Collect(&stubSource{remaining: 6}, 3)
	assert.Len(t, views, 3)
	assert.Equal(t, 3, finder.calls, "collection must stop once the target is reached")
}

func TestCollectInteractiveDiscardAndQuit(t *testing.T) {
	finder := &stubFinder{script: []bool{true, true, true, true}}
	prompter := &scriptedPrompter{keys: []int{keyIgnore, -1, keyQuit}}
	c := &Collector{
		Grid:        Grid{Rows: 2, Cols: 2},
		Finder:      finder,
		Prompter:    prompter,
		Interactive: true,
	}

	views := c.Collect(&stubSource{remaining: 4}, 4)

	// First detection discarded, second kept, third kept then quit.
	assert.Len(t, views, 2)
	assert.Equal(t, 3, finder.calls)

	// The rejected view's id is kept for reporting and never reappears
	// among the collected views.
	require.Len(t, c.Discarded, 1)
	for _, v := range views {
		assert.NotEqual(t, c.Discarded[0], v.ID)
	}
}

func TestCollectNonInteractiveQuitKey(t *testing.T) {
	finder := &stubFinder{script: []bool{false, false, false}}
	prompter := &scriptedPrompter{keys: []int{keyQuit}}
	c := &Collector{Grid: Grid{Rows: 2, Cols: 2}, Finder: finder, Prompter: prompter}

	views := c.Collect(&stubSource{remaining: 3}, 3)
	assert.Empty(t, views)
	assert.Equal(t, 1, finder.calls, "quit must take effect on the first poll")
}

func TestComputeIntrinsicsRequiresMinViews(t *testing.T) {
	g := Grid{Rows: 3, Cols: 4}
	views := []View{
		{Pixel: make([]camera.Point2, g.Points()), World: g.worldCorners()},
		{Pixel: make([]camera.Point2, g.Points()), World: g.worldCorners()},
	}

	_, err := ComputeIntrinsics(views, image.Pt(1024, 1024))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientViews)
}

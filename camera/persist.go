package camera

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Default matrix file names inside a calibration directory.
const (
	IntrinsicFile   = "intrinsics.json"
	DistortionFile  = "distortion.json"
	RotationFile    = "rotation.json"
	TranslationFile = "translation.json"
)

// matrixFile is the on-disk format for one calibration matrix. Row-major.
type matrixFile struct {
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

// SaveMatrix writes one row-major matrix to path.
func SaveMatrix(path string, rows, cols int, data []float64) error {
	if len(data) != rows*cols {
		return errors.Errorf("matrix %s: %d elements does not match %dx%d", path, len(data), rows, cols)
	}
	b, err := json.MarshalIndent(matrixFile{Rows: rows, Cols: cols, Data: data}, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "encode matrix %s", path)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return errors.Wrapf(err, "write matrix %s", path)
	}
	return nil
}

// LoadMatrix reads one row-major matrix from path. A missing or corrupt
// file is an error naming the file; callers treat it as startup-fatal.
func LoadMatrix(path string) (rows, cols int, data []float64, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, nil, errors.Wrapf(err, "read calibration file %s", path)
	}
	var f matrixFile
	if err := json.Unmarshal(b, &f); err != nil {
		return 0, 0, nil, errors.Wrapf(err, "corrupt calibration file %s", path)
	}
	if f.Rows <= 0 || f.Cols <= 0 || len(f.Data) != f.Rows*f.Cols {
		return 0, 0, nil, errors.Errorf("corrupt calibration file %s: %d elements for %dx%d", path, len(f.Data), f.Rows, f.Cols)
	}
	return f.Rows, f.Cols, f.Data, nil
}

// Load assembles a Model from the four matrix files. Each file is loaded
// independently; the first failure aborts with an error naming the file.
func Load(intrinsicPath, distortionPath, rotationPath, translationPath string) (*Model, error) {
	r, c, a, err := LoadMatrix(intrinsicPath)
	if err != nil {
		return nil, err
	}
	if r != 3 || c != 3 {
		return nil, errors.Errorf("intrinsic file %s: expected 3x3, got %dx%d", intrinsicPath, r, c)
	}
	intrinsic := mat.NewDense(3, 3, a)

	_, _, distortion, err := LoadMatrix(distortionPath)
	if err != nil {
		return nil, err
	}

	r, c, a, err = LoadMatrix(rotationPath)
	if err != nil {
		return nil, err
	}
	if r != 3 || c != 3 {
		return nil, errors.Errorf("rotation file %s: expected 3x3, got %dx%d", rotationPath, r, c)
	}
	rotation := mat.NewDense(3, 3, a)

	r, c, a, err = LoadMatrix(translationPath)
	if err != nil {
		return nil, err
	}
	if r*c != 3 {
		return nil, errors.Errorf("translation file %s: expected 3 elements, got %dx%d", translationPath, r, c)
	}
	translation := mat.NewVecDense(3, a)

	return NewModel(intrinsic, distortion, rotation, translation)
}

// Save persists all four model components to the given paths.
func (m *Model) Save(intrinsicPath, distortionPath, rotationPath, translationPath string) error {
	if err := SaveMatrix(intrinsicPath, 3, 3, flatten(m.intrinsic)); err != nil {
		return err
	}
	if err := SaveMatrix(distortionPath, len(m.distortion), 1, append([]float64(nil), m.distortion...)); err != nil {
		return err
	}
	if err := SaveMatrix(rotationPath, 3, 3, flatten(m.rotation)); err != nil {
		return err
	}
	return SaveMatrix(translationPath, 3, 1, []float64{
		m.translation.AtVec(0), m.translation.AtVec(1), m.translation.AtVec(2),
	})
}

func flatten(d *mat.Dense) []float64 {
	rows, cols := d.Dims()
	out := make([]float64, 0, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			out = append(out, d.At(r, c))
		}
	}
	return out
}

package core

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Data is an n×p observation matrix in which every cell carries an explicit
// observed flag. Values of missing cells are meaningless and kept at 0.
type Data struct {
	rows, cols int
	values     []float64 // row-major, len == rows*cols
	observed   []bool    // row-major, len == rows*cols
}

// NewData returns an n×p matrix with every cell missing.
func NewData(rows, cols int) (*Data, error) {
	if rows <= 0 || cols <= 0 {
		return nil, opErrorf("NewData", fmt.Errorf("%dx%d: %w", rows, cols, ErrShape))
	}
	return &Data{
		rows:     rows,
		cols:     cols,
		values:   make([]float64, rows*cols),
		observed: make([]bool, rows*cols),
	}, nil
}

// NewDataFromRows builds a matrix from row slices. NaN cells are marked missing.
// All rows must have the same length.
func NewDataFromRows(rows [][]float64) (*Data, error) {
	if len(rows) == 0 {
		return nil, opErrorf("NewDataFromRows", ErrShape)
	}
	d, err := NewData(len(rows), len(rows[0]))
	if err != nil {
		return nil, opErrorf("NewDataFromRows", err)
	}
	for i, row := range rows {
		if len(row) != d.cols {
			return nil, opErrorf("NewDataFromRows",
				fmt.Errorf("row %d has %d columns, want %d: %w", i, len(row), d.cols, ErrShape))
		}
		for j, v := range row {
			if math.IsNaN(v) {
				continue
			}
			d.values[i*d.cols+j] = v
			d.observed[i*d.cols+j] = true
		}
	}
	return d, nil
}

// NewDataFromDense builds a fully observed matrix from m, except for NaN cells.
func NewDataFromDense(m mat.Matrix) (*Data, error) {
	if m == nil {
		return nil, opErrorf("NewDataFromDense", ErrShape)
	}
	r, c := m.Dims()
	d, err := NewData(r, c)
	if err != nil {
		return nil, opErrorf("NewDataFromDense", err)
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := m.At(i, j); !math.IsNaN(v) {
				d.values[i*c+j] = v
				d.observed[i*c+j] = true
			}
		}
	}
	return d, nil
}

// Dims returns the number of rows and columns.
func (d *Data) Dims() (rows, cols int) { return d.rows, d.cols }

// At returns the value at (i, j) and whether it is observed.
// Out-of-range indices report a missing cell.
func (d *Data) At(i, j int) (float64, bool) {
	if i < 0 || i >= d.rows || j < 0 || j >= d.cols {
		return 0, false
	}
	k := i*d.cols + j
	return d.values[k], d.observed[k]
}

// Observed reports whether (i, j) holds a value.
func (d *Data) Observed(i, j int) bool {
	_, ok := d.At(i, j)
	return ok
}

// Set stores v at (i, j) and marks the cell observed.
// NaN marks the cell missing, mirroring NewDataFromRows.
func (d *Data) Set(i, j int, v float64) error {
	if i < 0 || i >= d.rows || j < 0 || j >= d.cols {
		return opErrorf("Data.Set", fmt.Errorf("(%d,%d) outside %dx%d: %w", i, j, d.rows, d.cols, ErrShape))
	}
	if math.IsNaN(v) {
		return d.SetMissing(i, j)
	}
	k := i*d.cols + j
	d.values[k] = v
	d.observed[k] = true
	return nil
}

// SetMissing marks (i, j) as missing.
func (d *Data) SetMissing(i, j int) error {
	if i < 0 || i >= d.rows || j < 0 || j >= d.cols {
		return opErrorf("Data.SetMissing", fmt.Errorf("(%d,%d) outside %dx%d: %w", i, j, d.rows, d.cols, ErrShape))
	}
	k := i*d.cols + j
	d.values[k] = 0
	d.observed[k] = false
	return nil
}

// Clone returns a deep copy.
func (d *Data) Clone() *Data {
	out := &Data{
		rows:     d.rows,
		cols:     d.cols,
		values:   make([]float64, len(d.values)),
		observed: make([]bool, len(d.observed)),
	}
	copy(out.values, d.values)
	copy(out.observed, d.observed)
	return out
}

// ObservedCount returns the number of observed cells in column j, 0 when j
// is out of range.
func (d *Data) ObservedCount(j int) int {
	if !d.validCol(j) {
		return 0
	}
	n := 0
	for i := 0; i < d.rows; i++ {
		if d.observed[i*d.cols+j] {
			n++
		}
	}
	return n
}

// MissingFraction returns the share of missing cells over the whole matrix.
func (d *Data) MissingFraction() float64 {
	missing := 0
	for _, ok := range d.observed {
		if !ok {
			missing++
		}
	}
	return float64(missing) / float64(len(d.observed))
}

// CoObserved returns the values of columns a and b on the rows where both are
// observed. An out-of-range column has no observed rows.
func (d *Data) CoObserved(a, b int) (xa, xb []float64) {
	if !d.validCol(a) || !d.validCol(b) {
		return nil, nil
	}
	for i := 0; i < d.rows; i++ {
		ka, kb := i*d.cols+a, i*d.cols+b
		if d.observed[ka] && d.observed[kb] {
			xa = append(xa, d.values[ka])
			xb = append(xb, d.values[kb])
		}
	}
	return xa, xb
}

// Dense returns the values as a gonum matrix with missing cells set to NaN.
func (d *Data) Dense() *mat.Dense {
	out := mat.NewDense(d.rows, d.cols, nil)
	for i := 0; i < d.rows; i++ {
		for j := 0; j < d.cols; j++ {
			v, ok := d.At(i, j)
			if !ok {
				v = math.NaN()
			}
			out.Set(i, j, v)
		}
	}
	return out
}

func (d *Data) validCol(j int) bool { return j >= 0 && j < d.cols }

package domain

import (
	"errors"
	"fmt"
)

// ErrShapeMismatch indicates that two grids that must share a shape do not.
// It is fatal: fields of different shapes are not comparable and no partial
// result is produced.
var ErrShapeMismatch = errors.New("grid shape mismatch")

// GridField is a 2D scalar field in row-major order with a validity mask.
// A true mask entry marks the cell invalid; invalid cells may hold any
// placeholder value and never influence numeric results.
type GridField struct {
	Rows, Cols int
	Values     []float64
	Mask       []bool
}

// NewGridField allocates a fully valid zero field of the given shape.
func NewGridField(rows, cols int) GridField {
	return GridField{
		Rows:   rows,
		Cols:   cols,
		Values: make([]float64, rows*cols),
		Mask:   make([]bool, rows*cols),
	}
}

func (g GridField) index(r, c int) int { return r*g.Cols + c }

// At returns the value at (r, c). Callers are expected to stay in bounds.
func (g GridField) At(r, c int) float64 { return g.Values[g.index(r, c)] }

// Valid reports whether the cell at (r, c) holds usable data.
func (g GridField) Valid(r, c int) bool { return !g.Mask[g.index(r, c)] }

// SameShape reports whether g and o cover the same grid.
func (g GridField) SameShape(o GridField) bool {
	return g.Rows == o.Rows && g.Cols == o.Cols
}

// Clone returns a deep copy; the receiver's backing arrays are not shared.
func (g GridField) Clone() GridField {
	out := GridField{
		Rows:   g.Rows,
		Cols:   g.Cols,
		Values: make([]float64, len(g.Values)),
		Mask:   make([]bool, len(g.Mask)),
	}
	copy(out.Values, g.Values)
	copy(out.Mask, g.Mask)
	return out
}

// InvalidCount returns the number of masked cells.
func (g GridField) InvalidCount() int {
	n := 0
	for _, m := range g.Mask {
		if m {
			n++
		}
	}
	return n
}

// CheckShape validates that the field's backing arrays match Rows x Cols.
func (g GridField) CheckShape() error {
	want := g.Rows * g.Cols
	if g.Rows <= 0 || g.Cols <= 0 || len(g.Values) != want || len(g.Mask) != want {
		return fmt.Errorf("grid %dx%d with %d values and %d mask entries: %w",
			g.Rows, g.Cols, len(g.Values), len(g.Mask), ErrShapeMismatch)
	}
	return nil
}

// CombinedMask returns the union of the two fields' invalid regions: a cell is
// excluded if it is invalid in either input. Radar composites from different
// times may have different coverage, and a cell missing on either side of a
// pair must not contribute a gradient or time-difference term to motion
// estimation.
func CombinedMask(a, b GridField) ([]bool, error) {
	if !a.SameShape(b) {
		return nil, fmt.Errorf("combine masks %dx%d vs %dx%d: %w",
			a.Rows, a.Cols, b.Rows, b.Cols, ErrShapeMismatch)
	}
	out := make([]bool, len(a.Mask))
	for i := range out {
		out[i] = a.Mask[i] || b.Mask[i]
	}
	return out, nil
}

// VelocityField holds per-cell motion components in grid cells per time unit,
// row-major, dense (the relaxation stage defines a value everywhere). U is the
// column-direction component, V the row-direction component.
type VelocityField struct {
	Rows, Cols int
	U, V       []float64
}

// NewVelocityField allocates a zero velocity field of the given shape.
func NewVelocityField(rows, cols int) VelocityField {
	return VelocityField{
		Rows: rows,
		Cols: cols,
		U:    make([]float64, rows*cols),
		V:    make([]float64, rows*cols),
	}
}

// SameShape reports whether v and o cover the same grid.
func (v VelocityField) SameShape(o VelocityField) bool {
	return v.Rows == o.Rows && v.Cols == o.Cols
}

package domain

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Defaults for the motion estimation configuration. MinBoxSamples and
// SmoothWeight are the two constants the algorithm description leaves open;
// they are explicit here and tunable through MotionConfig rather than buried
// in the solver.
const (
	DefaultBoxSize       = 30
	DefaultIterations    = 100
	DefaultSmoothWeight  = 1.0
	DefaultMinBoxSamples = 16
)

// MotionConfig tunes the optical-flow solver.
type MotionConfig struct {
	// BoxSize is the edge length, in grid cells, of the square tiles used for
	// local least-squares estimation. Edge tiles are clipped at the domain
	// boundary, never padded.
	BoxSize int

	// Iterations is the fixed number of smoothness relaxation passes. A fixed
	// count keeps cost predictable and results deterministic; it does not
	// guarantee full convergence.
	Iterations int

	// SmoothWeight balances the neighbor average against the anchored local
	// estimate during relaxation. Larger values smooth harder.
	SmoothWeight float64

	// MinBoxSamples is the minimum number of valid constraint cells a box
	// needs before its least-squares fit is trusted.
	MinBoxSamples int
}

func (c MotionConfig) withDefaults() MotionConfig {
	if c.BoxSize <= 0 {
		c.BoxSize = DefaultBoxSize
	}
	if c.Iterations <= 0 {
		c.Iterations = DefaultIterations
	}
	if c.SmoothWeight <= 0 {
		c.SmoothWeight = DefaultSmoothWeight
	}
	if c.MinBoxSamples <= 0 {
		c.MinBoxSamples = DefaultMinBoxSamples
	}
	return c
}

// BoxMotion is the coarse per-box velocity estimate produced by the local
// least-squares stage. Boxes whose fit was degenerate (too few valid cells or
// a singular normal matrix) are marked unreliable and carry no estimate.
type BoxMotion struct {
	Rows, Cols       int // full grid shape
	BoxSize          int
	BoxRows, BoxCols int
	U, V             []float64 // one entry per box, row-major over boxes
	Reliable         []bool
}

func (bm BoxMotion) boxIndex(br, bc int) int { return br*bm.BoxCols + bc }

// DegenerateCount returns the number of boxes without a reliable estimate.
func (bm BoxMotion) DegenerateCount() int {
	n := 0
	for _, ok := range bm.Reliable {
		if !ok {
			n++
		}
	}
	return n
}

// EstimateBoxMotion partitions the domain into BoxSize tiles and solves the
// optical-flow constraint Ix*u + Iy*v + It = 0 per tile by least squares over
// the tile's valid cells. Spatial gradients are central differences of the
// temporal mean of the pair; the temporal difference is later minus earlier.
// A cell contributes a constraint only when it and its four neighbors are
// valid in both inputs, so masked data can never leak into an estimate.
//
// Degenerate tiles are marked unreliable rather than failing the run; the
// relaxation stage fills them from their neighbors.
func EstimateBoxMotion(earlier, later GridField, cfg MotionConfig) (BoxMotion, error) {
	cfg = cfg.withDefaults()
	if err := earlier.CheckShape(); err != nil {
		return BoxMotion{}, fmt.Errorf("estimate box motion: %w", err)
	}
	combined, err := CombinedMask(earlier, later)
	if err != nil {
		return BoxMotion{}, fmt.Errorf("estimate box motion: %w", err)
	}

	rows, cols := earlier.Rows, earlier.Cols
	size := cfg.BoxSize
	boxRows := (rows + size - 1) / size
	boxCols := (cols + size - 1) / size

	bm := BoxMotion{
		Rows:     rows,
		Cols:     cols,
		BoxSize:  size,
		BoxRows:  boxRows,
		BoxCols:  boxCols,
		U:        make([]float64, boxRows*boxCols),
		V:        make([]float64, boxRows*boxCols),
		Reliable: make([]bool, boxRows*boxCols),
	}

	// Temporal mean for gradients; gradients of the mean are centered in time
	// between the two snapshots, matching the temporal difference.
	mean := make([]float64, rows*cols)
	for i := range mean {
		mean[i] = 0.5 * (earlier.Values[i] + later.Values[i])
	}

	valid := func(r, c int) bool {
		return r >= 0 && r < rows && c >= 0 && c < cols && !combined[r*cols+c]
	}

	parallelRows(boxRows, func(br int) {
		for bc := 0; bc < boxCols; bc++ {
			r0, c0 := br*size, bc*size
			r1, c1 := min(r0+size, rows), min(c0+size, cols)

			// Normal equation sums for the 2-unknown system.
			var sxx, sxy, syy, sxt, syt float64
			count := 0
			for r := r0; r < r1; r++ {
				for c := c0; c < c1; c++ {
					if !valid(r, c) || !valid(r-1, c) || !valid(r+1, c) ||
						!valid(r, c-1) || !valid(r, c+1) {
						continue
					}
					ix := 0.5 * (mean[r*cols+c+1] - mean[r*cols+c-1])
					iy := 0.5 * (mean[(r+1)*cols+c] - mean[(r-1)*cols+c])
					it := later.Values[r*cols+c] - earlier.Values[r*cols+c]
					sxx += ix * ix
					sxy += ix * iy
					syy += iy * iy
					sxt += ix * it
					syt += iy * it
					count++
				}
			}

			if count < cfg.MinBoxSamples {
				continue
			}
			u, v, ok := solveNormal(sxx, sxy, syy, sxt, syt)
			if !ok {
				continue
			}
			i := bm.boxIndex(br, bc)
			bm.U[i] = u
			bm.V[i] = v
			bm.Reliable[i] = true
		}
	})

	return bm, nil
}

// solveNormal solves the 2x2 normal equations [sxx sxy; sxy syy]*[u v] =
// [-sxt -syt]. A singular or badly conditioned matrix (the aperture problem:
// all gradients in a tile pointing the same way) reports ok=false.
func solveNormal(sxx, sxy, syy, sxt, syt float64) (u, v float64, ok bool) {
	a := mat.NewDense(2, 2, []float64{sxx, sxy, sxy, syy})
	b := mat.NewVecDense(2, []float64{-sxt, -syt})
	var x mat.VecDense
	if err := x.SolveVec(a, b); err != nil {
		return 0, 0, false
	}
	return x.AtVec(0), x.AtVec(1), true
}

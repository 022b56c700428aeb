package domain

import (
	"fmt"
	"math"
)

// Advect extrapolates source forward by steps time units using first-order
// semi-Lagrangian sampling: each output cell takes the bilinear interpolation
// of source at its backward trajectory origin (r - v*steps, c - u*steps).
// steps is expressed in the velocity field's time unit, so a velocity
// estimated from one snapshot interval advects one interval per unit step.
//
// Cells whose origin falls outside the domain, or whose interpolation
// neighbors are not all valid, are masked in the output and hold zero.
// Extrapolation never fabricates data outside coverage, and a lost cell never
// aborts the advection of the others. Each call is independent; producing
// several lead times means several calls against the same source and
// velocity, without chaining interpolation error between them.
func Advect(source GridField, velocity VelocityField, steps float64) (GridField, error) {
	if err := source.CheckShape(); err != nil {
		return GridField{}, fmt.Errorf("advect: %w", err)
	}
	if source.Rows != velocity.Rows || source.Cols != velocity.Cols {
		return GridField{}, fmt.Errorf("advect: source %dx%d vs velocity %dx%d: %w",
			source.Rows, source.Cols, velocity.Rows, velocity.Cols, ErrShapeMismatch)
	}

	rows, cols := source.Rows, source.Cols
	out := NewGridField(rows, cols)

	parallelRows(rows, func(r int) {
		for c := 0; c < cols; c++ {
			i := r*cols + c
			or := float64(r) - velocity.V[i]*steps
			oc := float64(c) - velocity.U[i]*steps

			if or < 0 || or > float64(rows-1) || oc < 0 || oc > float64(cols-1) {
				out.Mask[i] = true
				continue
			}

			r0 := int(math.Floor(or))
			c0 := int(math.Floor(oc))
			fr := or - float64(r0)
			fc := oc - float64(c0)
			// An origin exactly on a grid line collapses that axis of the
			// interpolation stencil, so zero-weight cells cannot mask the
			// output (and zero velocity stays an identity).
			r1, c1 := r0, c0
			if fr > 0 {
				r1 = r0 + 1
			}
			if fc > 0 {
				c1 = c0 + 1
			}

			if !source.Valid(r0, c0) || !source.Valid(r0, c1) ||
				!source.Valid(r1, c0) || !source.Valid(r1, c1) {
				out.Mask[i] = true
				continue
			}

			out.Values[i] = (1-fr)*(1-fc)*source.At(r0, c0) +
				(1-fr)*fc*source.At(r0, c1) +
				fr*(1-fc)*source.At(r1, c0) +
				fr*fc*source.At(r1, c1)
		}
	})

	return out, nil
}

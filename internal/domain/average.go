package domain

import (
	"errors"
	"fmt"
)

// AverageVelocities combines the velocity estimates from consecutive snapshot
// pairs into a single representative field by elementwise arithmetic mean.
// With three input snapshots this centers the estimate on the newest
// observation; with a single pair it is the identity. All inputs must share a
// shape; a mismatch is fatal and yields no partial output.
func AverageVelocities(fields []VelocityField) (VelocityField, error) {
	if len(fields) == 0 {
		return VelocityField{}, errors.New("average velocities: no input fields")
	}
	first := fields[0]
	for i, f := range fields[1:] {
		if !f.SameShape(first) {
			return VelocityField{}, fmt.Errorf("average velocities: field %d is %dx%d, want %dx%d: %w",
				i+1, f.Rows, f.Cols, first.Rows, first.Cols, ErrShapeMismatch)
		}
	}
	if len(fields) == 1 {
		return first, nil
	}

	out := NewVelocityField(first.Rows, first.Cols)
	inv := 1.0 / float64(len(fields))
	for i := range out.U {
		var su, sv float64
		for _, f := range fields {
			su += f.U[i]
			sv += f.V[i]
		}
		out.U[i] = su * inv
		out.V[i] = sv * inv
	}
	return out, nil
}

// Package domain implements short-term motion estimation and extrapolation
// ("nowcasting") of 2D gridded radar precipitation fields.
//
// # Pipeline
//
// A run takes two or more chronologically ordered snapshots of the same grid
// and produces one extrapolated field per requested lead time:
//
//	pairs of GridFields -> EstimateBoxMotion -> Relax -> AverageVelocities
//	                    -> Advect (once per lead time)
//
// Every stage is a pure function of its inputs and configuration: no stage
// keeps cross-call state, performs I/O, or mutates its inputs. Loading and
// saving gridded files, coordinate metadata, and output naming belong to the
// adapters, not here.
//
// # Motion estimation
//
// Motion between a snapshot pair is solved at two scales. The domain is first
// partitioned into fixed-size square boxes (clipped at the boundary), and each
// box solves the optical-flow constraint
//
//	Ix*u + Iy*v + It = 0
//
// by least squares over its valid cells: a local, rigid, possibly noisy
// estimate. A fixed number of Jacobi relaxation passes then pulls the field
// toward global smoothness while confident local estimates anchor it, filling
// boxes whose fit was degenerate from their neighbors. The relaxation is
// double-buffered: each pass reads the previous iteration and writes a fresh
// buffer, so results do not depend on worker count or update order.
//
// Velocities are expressed in grid cells per snapshot interval. Rescaling to
// physical units from the grid spacing is the caller's concern.
//
// # Masks
//
// Validity masks are propagated conservatively. A cell invalid in either
// snapshot of a pair contributes nothing to motion estimation, and an output
// cell whose backward trajectory leaves coverage, or interpolates through an
// invalid cell, is itself masked. Degenerate box fits and out-of-coverage
// trajectories are recoverable by construction and never abort a run; only
// shape mismatches between grids are fatal.
package domain

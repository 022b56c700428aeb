package domain

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Snapshot is one observed field with its site and observation time.
// GridSpacing is the uniform cell size in meters, carried as metadata only;
// all motion arithmetic stays in grid-cell units.
type Snapshot struct {
	Site        string
	ObservedAt  time.Time
	GridSpacing float64
	Field       GridField
}

// Product is one extrapolated field. ValidTime is ReferenceTime plus LeadTime;
// ReferenceTime is the observation time of the newest input snapshot.
type Product struct {
	Site          string
	ReferenceTime time.Time
	LeadTime      time.Duration
	ValidTime     time.Time
	ProducedAt    time.Time
	GridSpacing   float64
	Field         GridField
}

// ForecastConfig tunes a nowcast run.
type ForecastConfig struct {
	Motion           MotionConfig
	MaxLeadTime      time.Duration
	LeadTimeInterval time.Duration

	// Extrapolate controls whether advection runs after motion estimation.
	// When false, Forecast returns the velocity field and no products.
	Extrapolate bool
}

// LeadTimes returns the ordered sequence interval, 2*interval, ... up to and
// including max. Both arguments must be positive.
func LeadTimes(max, interval time.Duration) ([]time.Duration, error) {
	if max <= 0 || interval <= 0 {
		return nil, fmt.Errorf("lead times: max %v and interval %v must be positive", max, interval)
	}
	var out []time.Duration
	for t := interval; t <= max; t += interval {
		out = append(out, t)
	}
	return out, nil
}

// EstimateMotion runs the full two-scale motion solver for one snapshot pair:
// per-box least squares followed by smoothness relaxation to full resolution.
func EstimateMotion(earlier, later GridField, cfg MotionConfig) (VelocityField, BoxMotion, error) {
	cfg = cfg.withDefaults()
	bm, err := EstimateBoxMotion(earlier, later, cfg)
	if err != nil {
		return VelocityField{}, BoxMotion{}, err
	}
	return bm.Relax(cfg.Iterations, cfg.SmoothWeight), bm, nil
}

// ForecastResult bundles a run's outputs with solver quality counters.
type ForecastResult struct {
	Velocity VelocityField
	Products []Product

	// Box solve outcomes summed over all snapshot pairs.
	BoxesSolved     int
	DegenerateBoxes int
}

// Forecast runs the complete nowcast pipeline: consecutive snapshot pairs
// feed the motion solver, the per-pair velocities are averaged, and the
// newest snapshot is extrapolated once per lead time. Two and three (or more)
// input snapshots go through the same code path; only the number of pairs
// differs.
//
// Velocities are estimated in grid cells per snapshot interval, and lead
// times are converted to interval multiples before advection, so snapshots
// must be evenly spaced in time.
func Forecast(snapshots []Snapshot, cfg ForecastConfig) (ForecastResult, error) {
	if len(snapshots) < 2 {
		return ForecastResult{}, errors.New("forecast: need at least two snapshots")
	}

	ordered := make([]Snapshot, len(snapshots))
	copy(ordered, snapshots)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].ObservedAt.Before(ordered[j].ObservedAt)
	})

	interval := ordered[1].ObservedAt.Sub(ordered[0].ObservedAt)
	if interval <= 0 {
		return ForecastResult{}, errors.New("forecast: snapshots share an observation time")
	}
	for i := 2; i < len(ordered); i++ {
		step := ordered[i].ObservedAt.Sub(ordered[i-1].ObservedAt)
		if step != interval {
			return ForecastResult{}, fmt.Errorf("forecast: uneven snapshot spacing: %v then %v", interval, step)
		}
	}

	var result ForecastResult
	fields := make([]VelocityField, 0, len(ordered)-1)
	for i := 1; i < len(ordered); i++ {
		vel, bm, err := EstimateMotion(ordered[i-1].Field, ordered[i].Field, cfg.Motion)
		if err != nil {
			return ForecastResult{}, fmt.Errorf("forecast pair %d: %w", i-1, err)
		}
		degenerate := bm.DegenerateCount()
		result.DegenerateBoxes += degenerate
		result.BoxesSolved += len(bm.Reliable) - degenerate
		fields = append(fields, vel)
	}
	velocity, err := AverageVelocities(fields)
	if err != nil {
		return ForecastResult{}, fmt.Errorf("forecast: %w", err)
	}
	result.Velocity = velocity

	if !cfg.Extrapolate {
		return result, nil
	}

	leads, err := LeadTimes(cfg.MaxLeadTime, cfg.LeadTimeInterval)
	if err != nil {
		return ForecastResult{}, fmt.Errorf("forecast: %w", err)
	}

	latest := ordered[len(ordered)-1]
	result.Products = make([]Product, 0, len(leads))
	for _, lead := range leads {
		steps := float64(lead) / float64(interval)
		field, err := Advect(latest.Field, velocity, steps)
		if err != nil {
			return ForecastResult{}, fmt.Errorf("forecast lead %v: %w", lead, err)
		}
		result.Products = append(result.Products, Product{
			Site:          latest.Site,
			ReferenceTime: latest.ObservedAt,
			LeadTime:      lead,
			ValidTime:     latest.ObservedAt.Add(lead),
			ProducedAt:    clock.Now(),
			GridSpacing:   latest.GridSpacing,
			Field:         field,
		})
	}
	return result, nil
}

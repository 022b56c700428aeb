// Command gensnap generates synthetic radar snapshot fixtures: a Gaussian
// reflectivity blob translating at a fixed velocity across the grid, with an
// optional masked sector simulating a blocked radar beam. The output feeds the
// nowcast CLI and the Kafka integration tests.
//
// Usage:
//
//	go run ./cmd/gensnap \
//	  -out data/mock -count 3 -rows 120 -cols 120 -u 1.5 -v -0.5
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"path/filepath"
	"time"

	"github.com/couchcryptid/radar-nowcast/internal/adapter/gridfile"
	"github.com/couchcryptid/radar-nowcast/internal/domain"
)

var baseTime = time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	outDir := flag.String("out", "", "output directory for snapshot JSON files")
	site := flag.String("site", "KTLX", "radar site identifier")
	count := flag.Int("count", 3, "number of snapshots to generate")
	rows := flag.Int("rows", 120, "grid rows")
	cols := flag.Int("cols", 120, "grid columns")
	interval := flag.Int("interval", 5, "minutes between snapshots")
	u := flag.Float64("u", 1.5, "blob column velocity in cells per snapshot")
	v := flag.Float64("v", -0.5, "blob row velocity in cells per snapshot")
	sigma := flag.Float64("sigma", 12, "blob standard deviation in cells")
	peak := flag.Float64("peak", 55, "peak reflectivity in dBZ")
	maskSector := flag.Bool("mask-sector", false, "mask a wedge of cells in every snapshot")
	flag.Parse()

	if *outDir == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}
	if *count < 2 {
		return fmt.Errorf("-count must be at least 2, got %d", *count)
	}

	// Start the blob off-center so it stays in frame while translating.
	startR := float64(*rows)/2 - float64(*count-1)**v/2
	startC := float64(*cols)/2 - float64(*count-1)**u/2

	for i := 0; i < *count; i++ {
		observed := baseTime.Add(time.Duration(i**interval) * time.Minute)
		field := blobField(*rows, *cols,
			startR+float64(i)**v,
			startC+float64(i)**u,
			*sigma, *peak)
		if *maskSector {
			maskWedge(&field)
		}

		snap := domain.Snapshot{
			Site:        *site,
			ObservedAt:  observed,
			GridSpacing: 1000,
			Field:       field,
		}

		path := filepath.Join(*outDir, fmt.Sprintf("%s_%s.json", *site, observed.Format("20060102T150405Z")))
		if err := gridfile.WriteSnapshot(path, snap); err != nil {
			return err
		}
		log.Printf("wrote %s (blob at %.1f,%.1f)", path, startR+float64(i)**v, startC+float64(i)**u)
	}

	return nil
}

// blobField builds a grid with a Gaussian bump centered at (cr, cc).
func blobField(rows, cols int, cr, cc, sigma, peak float64) domain.GridField {
	field := domain.NewGridField(rows, cols)
	inv := 1 / (2 * sigma * sigma)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			dr := float64(r) - cr
			dc := float64(c) - cc
			field.Values[r*cols+c] = peak * math.Exp(-(dr*dr+dc*dc)*inv)
		}
	}
	return field
}

// maskWedge invalidates the sector within 30 degrees of due east from the grid
// center, roughly what a blocked beam looks like in a composite.
func maskWedge(field *domain.GridField) {
	cr := float64(field.Rows) / 2
	cc := float64(field.Cols) / 2
	for r := 0; r < field.Rows; r++ {
		for c := 0; c < field.Cols; c++ {
			dr := float64(r) - cr
			dc := float64(c) - cc
			if dc <= 0 {
				continue
			}
			if math.Abs(math.Atan2(dr, dc)) < math.Pi/6 {
				field.Mask[r*field.Cols+c] = true
			}
		}
	}
}

// Command nowcast runs the extrapolation pipeline once over snapshot files on
// disk: it estimates a motion field from two or more radar snapshots and
// writes one product file per lead time.
//
// Usage:
//
//	go run ./cmd/nowcast \
//	  -snapshots ktlx_1200.json,ktlx_1205.json,ktlx_1210.json \
//	  -output-dir out \
//	  -max-lead-time 30 -lead-interval 5
//
// Output files may instead be named explicitly with -outputs; the list must
// then hold exactly one path per lead time.
package main

import (
	"flag"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/radar-nowcast/internal/adapter/gridfile"
	"github.com/couchcryptid/radar-nowcast/internal/config"
	"github.com/couchcryptid/radar-nowcast/internal/domain"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	snapshotList := flag.String("snapshots", "", "comma-separated snapshot JSON files, oldest first or any order")
	outputDir := flag.String("output-dir", "", "directory for product files (named <site>_<reftime>_t+<lead>m.json)")
	outputList := flag.String("outputs", "", "comma-separated product file paths, one per lead time (alternative to -output-dir)")
	maxLead := flag.Int("max-lead-time", 120, "forecast horizon in minutes")
	leadInterval := flag.Int("lead-interval", 15, "minutes between successive products")
	boxSize := flag.Int("box-size", domain.DefaultBoxSize, "motion estimation box size in cells")
	iterations := flag.Int("iterations", domain.DefaultIterations, "smoothness relaxation iterations")
	extrapolate := flag.Bool("extrapolate", true, "produce forecast grids; if false, only report the motion field")
	flag.Parse()

	paths := splitList(*snapshotList)
	if len(paths) < 2 {
		flag.Usage()
		return fmt.Errorf("need at least two -snapshots, got %d", len(paths))
	}

	cfg := domain.ForecastConfig{
		Motion: domain.MotionConfig{
			BoxSize:    *boxSize,
			Iterations: *iterations,
		},
		MaxLeadTime:      time.Duration(*maxLead) * time.Minute,
		LeadTimeInterval: time.Duration(*leadInterval) * time.Minute,
		Extrapolate:      *extrapolate,
	}

	outputs := splitList(*outputList)
	leadCfg := &config.Config{
		MaxLeadTime:      cfg.MaxLeadTime,
		LeadTimeInterval: cfg.LeadTimeInterval,
	}

	// Resolve where products will go before doing any numerical work.
	if *extrapolate {
		switch {
		case len(outputs) > 0 && *outputDir != "":
			return fmt.Errorf("-outputs and -output-dir are mutually exclusive")
		case len(outputs) > 0:
			if err := leadCfg.ValidateOutputCount(len(outputs)); err != nil {
				return err
			}
		case *outputDir == "":
			flag.Usage()
			return fmt.Errorf("one of -output-dir or -outputs is required")
		}
	}

	snaps, err := gridfile.ReadSnapshots(paths)
	if err != nil {
		return err
	}

	result, err := domain.Forecast(snaps, cfg)
	if err != nil {
		return fmt.Errorf("forecast: %w", err)
	}

	log.Printf("motion field: %d boxes solved, %d degenerate",
		result.BoxesSolved, result.DegenerateBoxes)

	for i, product := range result.Products {
		path := filepath.Join(*outputDir, gridfile.ProductFileName(product))
		if len(outputs) > 0 {
			path = outputs[i]
		}
		if err := gridfile.WriteProduct(path, product); err != nil {
			return err
		}
		log.Printf("wrote %s (lead %s, %d/%d cells invalid)",
			path, product.LeadTime, product.Field.InvalidCount(),
			product.Field.Rows*product.Field.Cols)
	}

	if !*extrapolate {
		log.Printf("extrapolation disabled, no products written")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

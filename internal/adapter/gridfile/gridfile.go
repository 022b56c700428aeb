// Package gridfile reads and writes radar snapshots and nowcast products as
// JSON files on disk. It exists for the batch CLI; the service path moves the
// same payloads over Kafka instead.
package gridfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/couchcryptid/radar-nowcast/internal/domain"
)

// ReadSnapshot loads a single snapshot JSON file.
func ReadSnapshot(path string) (domain.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("reading snapshot %s: %w", path, err)
	}
	snap, err := domain.ParseSnapshot(data)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("parsing snapshot %s: %w", path, err)
	}
	return snap, nil
}

// ReadSnapshots loads every path given and returns the snapshots sorted by
// observation time.
func ReadSnapshots(paths []string) ([]domain.Snapshot, error) {
	snaps := make([]domain.Snapshot, 0, len(paths))
	for _, path := range paths {
		snap, err := ReadSnapshot(path)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].ObservedAt.Before(snaps[j].ObservedAt)
	})
	return snaps, nil
}

// WriteSnapshot writes a snapshot to the given path, creating parent
// directories as needed.
func WriteSnapshot(path string, snap domain.Snapshot) error {
	data, err := domain.EncodeSnapshot(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	return writeFile(path, data)
}

// WriteProduct writes a nowcast product to the given path.
func WriteProduct(path string, product domain.Product) error {
	data, err := domain.EncodeProduct(product)
	if err != nil {
		return fmt.Errorf("encoding product: %w", err)
	}
	return writeFile(path, data)
}

// ProductFileName returns the conventional file name for a product:
// <site>_<reference-time>_t+<lead-minutes>m.json.
func ProductFileName(product domain.Product) string {
	return fmt.Sprintf("%s_%s_t+%dm.json",
		product.Site,
		product.ReferenceTime.UTC().Format("20060102T150405Z"),
		int(product.LeadTime.Minutes()))
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

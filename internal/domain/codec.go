package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// snapshotPayload is the JSON wire and file form of a Snapshot. Values are
// row-major; an absent or empty mask means every cell is valid.
type snapshotPayload struct {
	Site        string    `json:"site"`
	ObservedAt  time.Time `json:"observed_at"`
	GridSpacing float64   `json:"grid_spacing_m,omitempty"`
	Rows        int       `json:"rows"`
	Cols        int       `json:"cols"`
	Values      []float64 `json:"values"`
	Mask        []bool    `json:"mask,omitempty"`
}

// productPayload is the JSON wire and file form of a nowcast Product.
type productPayload struct {
	Site          string    `json:"site"`
	ReferenceTime time.Time `json:"reference_time"`
	LeadTimeMin   int       `json:"lead_time_minutes"`
	ValidTime     time.Time `json:"valid_time"`
	ProducedAt    time.Time `json:"produced_at"`
	GridSpacing   float64   `json:"grid_spacing_m,omitempty"`
	Rows          int       `json:"rows"`
	Cols          int       `json:"cols"`
	Values        []float64 `json:"values"`
	Mask          []bool    `json:"mask,omitempty"`
}

// ParseSnapshot deserializes a JSON snapshot, validating that the declared
// shape matches the payload arrays.
func ParseSnapshot(data []byte) (Snapshot, error) {
	var p snapshotPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return Snapshot{}, fmt.Errorf("parse snapshot: %w", err)
	}
	field, err := fieldFromPayload(p.Rows, p.Cols, p.Values, p.Mask)
	if err != nil {
		return Snapshot{}, fmt.Errorf("parse snapshot: %w", err)
	}
	if p.ObservedAt.IsZero() {
		return Snapshot{}, fmt.Errorf("parse snapshot: missing observed_at")
	}
	return Snapshot{
		Site:        p.Site,
		ObservedAt:  p.ObservedAt,
		GridSpacing: p.GridSpacing,
		Field:       field,
	}, nil
}

// EncodeSnapshot serializes a Snapshot to its JSON wire form.
func EncodeSnapshot(s Snapshot) ([]byte, error) {
	data, err := json.Marshal(snapshotPayload{
		Site:        s.Site,
		ObservedAt:  s.ObservedAt,
		GridSpacing: s.GridSpacing,
		Rows:        s.Field.Rows,
		Cols:        s.Field.Cols,
		Values:      s.Field.Values,
		Mask:        maskOrNil(s.Field.Mask),
	})
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// EncodeProduct serializes a nowcast Product to its JSON wire form.
func EncodeProduct(p Product) ([]byte, error) {
	data, err := json.Marshal(productPayload{
		Site:          p.Site,
		ReferenceTime: p.ReferenceTime,
		LeadTimeMin:   int(p.LeadTime / time.Minute),
		ValidTime:     p.ValidTime,
		ProducedAt:    p.ProducedAt,
		GridSpacing:   p.GridSpacing,
		Rows:          p.Field.Rows,
		Cols:          p.Field.Cols,
		Values:        p.Field.Values,
		Mask:          maskOrNil(p.Field.Mask),
	})
	if err != nil {
		return nil, fmt.Errorf("encode product: %w", err)
	}
	return data, nil
}

// ParseProduct deserializes a JSON nowcast product.
func ParseProduct(data []byte) (Product, error) {
	var p productPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return Product{}, fmt.Errorf("parse product: %w", err)
	}
	field, err := fieldFromPayload(p.Rows, p.Cols, p.Values, p.Mask)
	if err != nil {
		return Product{}, fmt.Errorf("parse product: %w", err)
	}
	return Product{
		Site:          p.Site,
		ReferenceTime: p.ReferenceTime,
		LeadTime:      time.Duration(p.LeadTimeMin) * time.Minute,
		ValidTime:     p.ValidTime,
		ProducedAt:    p.ProducedAt,
		GridSpacing:   p.GridSpacing,
		Field:         field,
	}, nil
}

func fieldFromPayload(rows, cols int, values []float64, mask []bool) (GridField, error) {
	if rows <= 0 || cols <= 0 || len(values) != rows*cols {
		return GridField{}, fmt.Errorf("%dx%d grid with %d values: %w",
			rows, cols, len(values), ErrShapeMismatch)
	}
	if mask == nil {
		mask = make([]bool, rows*cols)
	} else if len(mask) != rows*cols {
		return GridField{}, fmt.Errorf("%dx%d grid with %d mask entries: %w",
			rows, cols, len(mask), ErrShapeMismatch)
	}
	return GridField{Rows: rows, Cols: cols, Values: values, Mask: mask}, nil
}

// maskOrNil drops an all-valid mask from the wire form.
func maskOrNil(mask []bool) []bool {
	for _, m := range mask {
		if m {
			return mask
		}
	}
	return nil
}

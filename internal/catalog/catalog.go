// Package catalog holds the read-only seed catalog and samples batches from it.
package catalog

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"

	"github.com/sells-group/shopper-cli/internal/model"
)

// Catalog is an immutable collection of seed records keyed by ID.
type Catalog struct {
	records []model.ProductRecord
	byID    map[string]int
}

// New builds a catalog from records. Records are cloned, so later changes to
// the input slice do not leak in. IDs must be unique and non-empty.
func New(records []model.ProductRecord) (*Catalog, error) {
	c := &Catalog{
		records: make([]model.ProductRecord, 0, len(records)),
		byID:    make(map[string]int, len(records)),
	}
	for i, r := range records {
		if err := checkRecord(r); err != nil {
			return nil, eris.Wrapf(err, "catalog: record %d", i)
		}
		if _, dup := c.byID[r.ID]; dup {
			return nil, eris.Wrapf(model.ErrValidation, "catalog: duplicate id %s", r.ID)
		}
		rec := r.Clone()
		if len(rec.Reviews) > model.MaxReviewSnippets {
			rec.Reviews = rec.Reviews[:model.MaxReviewSnippets]
		}
		c.byID[rec.ID] = len(c.records)
		c.records = append(c.records, rec)
	}
	return c, nil
}

func checkRecord(r model.ProductRecord) error {
	switch {
	case r.ID == "":
		return eris.Wrap(model.ErrValidation, "missing id")
	case r.Category == "":
		return eris.Wrapf(model.ErrValidation, "%s: missing category", r.ID)
	case r.BasePrice <= 0:
		return eris.Wrapf(model.ErrValidation, "%s: base_price must be positive", r.ID)
	case r.Rating < 0 || r.Rating > 5:
		return eris.Wrapf(model.ErrValidation, "%s: rating %.2f out of range", r.ID, r.Rating)
	case r.ReviewCount < 0:
		return eris.Wrapf(model.ErrValidation, "%s: negative review_count", r.ID)
	}
	return nil
}

// Load streams a JSON array of seed records from r.
func Load(ctx context.Context, r io.Reader) (*Catalog, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return nil, eris.Wrap(err, "catalog: read opening token")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, eris.Wrapf(model.ErrValidation, "catalog: expected '[', got %v", tok)
	}

	var records []model.ProductRecord
	for dec.More() {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "catalog: context cancelled")
		}
		var rec model.ProductRecord
		if err := dec.Decode(&rec); err != nil {
			return nil, eris.Wrapf(model.ErrValidation, "catalog: decode record %d: %v", len(records), err)
		}
		records = append(records, rec)
	}
	if _, err := dec.Token(); err != nil {
		return nil, eris.Wrap(err, "catalog: read closing token")
	}

	return New(records)
}

// LoadFile opens path and loads it with Load.
func LoadFile(ctx context.Context, path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return Load(ctx, f)
}

// Len returns the number of records.
func (c *Catalog) Len() int {
	return len(c.records)
}

// Get returns a copy of the record with the given ID.
func (c *Catalog) Get(id string) (model.ProductRecord, bool) {
	i, ok := c.byID[id]
	if !ok {
		return model.ProductRecord{}, false
	}
	return c.records[i].Clone(), true
}

// Has reports whether id is in the catalog.
func (c *Catalog) Has(id string) bool {
	_, ok := c.byID[id]
	return ok
}

// Categories returns the distinct categories, sorted.
func (c *Catalog) Categories() []string {
	seen := make(map[string]struct{})
	for _, r := range c.records {
		seen[r.Category] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for cat := range seen {
		out = append(out, cat)
	}
	sort.Strings(out)
	return out
}

// eligible returns indexes of records matching category. An empty category
// matches everything; matching is case-insensitive.
func (c *Catalog) eligible(category string) []int {
	idx := make([]int, 0, len(c.records))
	if category == "" {
		for i := range c.records {
			idx = append(idx, i)
		}
		return idx
	}
	// A Caser is stateful and must not be shared between goroutines.
	fold := cases.Fold()
	want := fold.String(category)
	for i, r := range c.records {
		if fold.String(r.Category) == want {
			idx = append(idx, i)
		}
	}
	return idx
}

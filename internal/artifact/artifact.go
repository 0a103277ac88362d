// Package artifact seals positioned batches into immutable, uniquely
// identified experimental artifacts and serializes them.
package artifact

import (
	"bytes"
	"encoding/json"
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/shopper-cli/internal/model"
	"github.com/sells-group/shopper-cli/internal/position"
)

// Round2 rounds to two decimal places. It is idempotent.
func Round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// New seals a positioned batch into an artifact with a freshly minted
// identity. Money and rating fields are rounded to two decimals here, at the
// serialization boundary, and nowhere earlier. The products are copied.
func New(src IdentitySource, products []model.ProductSnapshot, mode model.PositionMode, pageSize int) (model.BatchArtifact, error) {
	a := model.BatchArtifact{
		Mode:     mode,
		PageSize: pageSize,
		Products: seal(products),
	}
	if err := Check(a, false); err != nil {
		return model.BatchArtifact{}, err
	}

	ident, err := src.Mint()
	if err != nil {
		return model.BatchArtifact{}, err
	}
	a.ID = ident.ID
	a.CreatedAt = ident.CreatedAt
	return a, nil
}

// Reissue copies a under a new identity. Re-serializing a logical batch
// always yields a new artifact; nothing is overwritten.
func Reissue(src IdentitySource, a model.BatchArtifact) (model.BatchArtifact, error) {
	return New(src, a.Products, a.Mode, a.PageSize)
}

func seal(products []model.ProductSnapshot) []model.ProductSnapshot {
	out := model.CloneSnapshots(products)
	for i := range out {
		p := &out[i]
		p.Price = Round2(p.Price)
		p.Rating = Round2(p.Rating)
		// Empty optional collections are stored as nil, matching their decoded form.
		if len(p.Features) == 0 {
			p.Features = nil
		}
		if len(p.Reviews) == 0 {
			p.Reviews = nil
		}
		if len(p.Attributes) == 0 {
			p.Attributes = nil
		}
	}
	return out
}

// Check validates an artifact's structure: a known mode, a positive page
// size, at least one product, unique non-empty IDs, and positions forming
// the sequence 1..N in order with consistent pages. When requireID is set the
// artifact ID must be present too.
func Check(a model.BatchArtifact, requireID bool) error {
	if requireID && a.ID == "" {
		return eris.Wrap(model.ErrValidation, "artifact: missing batch_id")
	}
	if !a.Mode.Valid() {
		return eris.Wrapf(model.ErrValidation, "artifact: unknown mode %q", a.Mode)
	}
	if a.PageSize <= 0 {
		return eris.Wrapf(model.ErrValidation, "artifact: page size must be positive (got %d)", a.PageSize)
	}
	if len(a.Products) == 0 {
		return eris.Wrap(model.ErrEmptyBatch, "artifact: no products")
	}

	seen := make(map[string]struct{}, len(a.Products))
	for i, p := range a.Products {
		if p.ID == "" {
			return eris.Wrapf(model.ErrValidation, "artifact: product %d: missing id", i)
		}
		if _, dup := seen[p.ID]; dup {
			return eris.Wrapf(model.ErrValidation, "artifact: duplicate product %s", p.ID)
		}
		seen[p.ID] = struct{}{}

		if p.Position == nil || p.Page == nil {
			return eris.Wrapf(model.ErrValidation, "artifact: product %s has no position", p.ID)
		}
		if *p.Position != i+1 {
			return eris.Wrapf(model.ErrValidation, "artifact: product %s at index %d has position %d", p.ID, i, *p.Position)
		}
		if want := position.Page(*p.Position, a.PageSize); *p.Page != want {
			return eris.Wrapf(model.ErrValidation, "artifact: product %s page %d, want %d", p.ID, *p.Page, want)
		}
	}
	return nil
}

// Marshal serializes a as an indented JSON document.
func Marshal(a model.BatchArtifact) ([]byte, error) {
	if err := Check(a, true); err != nil {
		return nil, err
	}
	out := a
	out.Products = seal(a.Products)
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "artifact: marshal")
	}
	return data, nil
}

// Unmarshal parses and validates an artifact document. Unknown fields are
// rejected.
func Unmarshal(data []byte) (model.BatchArtifact, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var a model.BatchArtifact
	if err := dec.Decode(&a); err != nil {
		return model.BatchArtifact{}, eris.Wrapf(model.ErrValidation, "artifact: decode: %v", err)
	}
	if dec.More() {
		return model.BatchArtifact{}, eris.Wrap(model.ErrValidation, "artifact: trailing data")
	}
	for i := range a.Products {
		if a.Products[i].Tags == nil {
			a.Products[i].Tags = []string{}
		}
	}
	if err := Check(a, true); err != nil {
		return model.BatchArtifact{}, err
	}
	return a, nil
}

package mutate

import (
	"encoding/json"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/shopper-cli/internal/model"
)

// Miss records a mutation whose target product is not in the batch. Misses
// are not errors: a plan may name products outside a given sample.
type Miss struct {
	Index int    `json:"index"`
	ID    string `json:"id"`
	Field string `json:"field"`
}

// Result is the output of a mutation pass.
type Result struct {
	Products []model.ProductSnapshot
	Misses   []Miss
}

// Derive builds the unmutated snapshot of a seed record. The price is taken
// from base_price and the experimental tag set starts empty.
func Derive(r model.ProductRecord) model.ProductSnapshot {
	c := r.Clone()
	return model.ProductSnapshot{
		ID:          c.ID,
		Category:    c.Category,
		Title:       c.Title,
		Description: c.Description,
		Store:       c.Store,
		Price:       c.BasePrice,
		Rating:      c.Rating,
		ReviewCount: c.ReviewCount,
		Features:    c.Features,
		Reviews:     c.Reviews,
		Attributes:  c.Attributes,
		Tags:        []string{},
	}
}

// Mutate derives snapshots from batch and applies spec to them. The input is
// never modified. Order of operations is fixed: derive price, multiply,
// targeted overrides in order, tag mutations in order.
func Mutate(batch []model.ProductRecord, spec Spec) (Result, error) {
	if err := spec.Validate(); err != nil {
		return Result{}, err
	}
	snaps := make([]model.ProductSnapshot, len(batch))
	for i, r := range batch {
		snaps[i] = Derive(r)
	}
	return apply(snaps, spec), nil
}

// Apply runs spec over already-derived snapshots and returns new ones.
// Positions and pages are carried through unchanged.
func Apply(batch []model.ProductSnapshot, spec Spec) (Result, error) {
	if err := spec.Validate(); err != nil {
		return Result{}, err
	}
	return apply(model.CloneSnapshots(batch), spec), nil
}

// apply mutates snaps in place; callers pass a private copy.
func apply(snaps []model.ProductSnapshot, spec Spec) Result {
	for i := range snaps {
		snaps[i].Price *= spec.PriceMultiplier
	}

	index := make(map[string]int, len(snaps))
	for i, s := range snaps {
		index[s.ID] = i
	}

	var misses []Miss
	for i, t := range spec.Targets {
		j, ok := index[t.ID]
		if !ok {
			misses = append(misses, Miss{Index: i, ID: t.ID, Field: t.Field})
			continue
		}
		// Validate already accepted this value.
		v, _ := coerce(t.Field, t.Value)
		set(&snaps[j], t.Field, v)
	}

	for i, t := range spec.Tags {
		j, ok := index[t.ID]
		if !ok {
			misses = append(misses, Miss{Index: len(spec.Targets) + i, ID: t.ID, Field: "tags"})
			continue
		}
		switch t.Op {
		case TagAdd:
			if !snaps[j].HasTag(t.Tag) {
				snaps[j].Tags = append(snaps[j].Tags, t.Tag)
			}
		case TagRemove:
			snaps[j].Tags = removeTag(snaps[j].Tags, t.Tag)
		}
	}

	for _, m := range misses {
		zap.L().Warn("mutate: target not in batch",
			zap.String("product_id", m.ID),
			zap.String("field", m.Field),
			zap.Int("index", m.Index),
		)
	}

	return Result{Products: snaps, Misses: misses}
}

func set(s *model.ProductSnapshot, field string, v any) {
	switch field {
	case FieldPrice:
		s.Price = v.(float64)
	case FieldRating:
		s.Rating = v.(float64)
	case FieldReviewCount:
		s.ReviewCount = v.(int)
	case FieldTitle:
		s.Title = v.(string)
	}
}

func removeTag(tags []string, tag string) []string {
	out := tags[:0]
	for _, t := range tags {
		if t != tag {
			out = append(out, t)
		}
	}
	return out
}

// coerce converts a plan value to the Go type of field.
func coerce(field string, value any) (any, error) {
	switch field {
	case FieldPrice:
		f, ok := toFloat(value)
		if !ok || f < 0 || math.IsInf(f, 0) || math.IsNaN(f) {
			return nil, eris.Wrapf(model.ErrInvalidMutation, "price must be a non-negative number (got %v)", value)
		}
		return f, nil
	case FieldRating:
		f, ok := toFloat(value)
		if !ok || math.IsNaN(f) || f < 0 || f > 5 {
			return nil, eris.Wrapf(model.ErrInvalidMutation, "rating must be a number in [0, 5] (got %v)", value)
		}
		return f, nil
	case FieldReviewCount:
		f, ok := toFloat(value)
		if !ok || f < 0 || f != math.Trunc(f) {
			return nil, eris.Wrapf(model.ErrInvalidMutation, "review_count must be a non-negative integer (got %v)", value)
		}
		return int(f), nil
	case FieldTitle:
		s, ok := value.(string)
		if !ok || s == "" {
			return nil, eris.Wrapf(model.ErrInvalidMutation, "title must be a non-empty string (got %v)", value)
		}
		return s, nil
	default:
		return nil, eris.Wrapf(model.ErrInvalidMutation, "unknown field %q", field)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

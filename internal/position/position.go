// Package position ranks a batch under a chosen ordering and injects
// position and page fields.
package position

import (
	"cmp"
	"math/rand/v2"
	"slices"

	"github.com/rotisserie/eris"

	"github.com/sells-group/shopper-cli/internal/model"
)

type options struct {
	pageSize int
	rng      *rand.Rand
}

// Option configures Assign.
type Option func(*options)

// WithPageSize sets the number of results per page. Default 10.
func WithPageSize(n int) Option {
	return func(o *options) { o.pageSize = n }
}

// WithRand sets the shuffle source for random mode. Without it random mode is
// unseeded, which is only appropriate for baseline bias studies.
func WithRand(r *rand.Rand) Option {
	return func(o *options) { o.rng = r }
}

// Assign returns a new batch ordered by mode with 1-indexed global positions
// and pages set. Ties are broken by ascending product ID. The input batch is
// not modified.
func Assign(batch []model.ProductSnapshot, mode model.PositionMode, opts ...Option) ([]model.ProductSnapshot, error) {
	o := options{pageSize: model.DefaultPageSize}
	for _, opt := range opts {
		opt(&o)
	}

	if !mode.Valid() {
		return nil, eris.Wrapf(model.ErrUnknownMode, "position: %q", mode)
	}
	if o.pageSize <= 0 {
		return nil, eris.Wrapf(model.ErrValidation, "position: page size must be positive (got %d)", o.pageSize)
	}
	if len(batch) == 0 {
		return nil, eris.Wrap(model.ErrEmptyBatch, "position: assign")
	}

	ordered := model.CloneSnapshots(batch)

	// Sorting by ID first makes every mode independent of input order.
	slices.SortFunc(ordered, byID)

	switch mode {
	case model.PositionRandom:
		rng := o.rng
		if rng == nil {
			rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		}
		rng.Shuffle(len(ordered), func(i, j int) {
			ordered[i], ordered[j] = ordered[j], ordered[i]
		})
	case model.PositionPriceAsc:
		slices.SortStableFunc(ordered, func(a, b model.ProductSnapshot) int {
			return cmp.Compare(a.Price, b.Price)
		})
	case model.PositionPriceDesc:
		slices.SortStableFunc(ordered, func(a, b model.ProductSnapshot) int {
			return cmp.Compare(b.Price, a.Price)
		})
	case model.PositionRatingDesc:
		slices.SortStableFunc(ordered, func(a, b model.ProductSnapshot) int {
			return cmp.Compare(b.Rating, a.Rating)
		})
	}

	for i := range ordered {
		pos := i + 1
		page := Page(pos, o.pageSize)
		ordered[i].Position = &pos
		ordered[i].Page = &page
	}
	return ordered, nil
}

// Page returns the 1-indexed page holding position.
func Page(position, pageSize int) int {
	return (position-1)/pageSize + 1
}

func byID(a, b model.ProductSnapshot) int {
	return cmp.Compare(a.ID, b.ID)
}

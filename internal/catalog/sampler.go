package catalog

import (
	"math/rand/v2"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/shopper-cli/internal/model"
)

// Sampler draws batches of distinct records from a Catalog.
type Sampler struct {
	catalog *Catalog

	mu  sync.Mutex
	rng *rand.Rand
}

// SamplerOption configures a Sampler.
type SamplerOption func(*Sampler)

// WithRand sets the random source. The sampler takes ownership of r.
func WithRand(r *rand.Rand) SamplerOption {
	return func(s *Sampler) { s.rng = r }
}

// WithSeed makes draws reproducible for a given seed.
func WithSeed(seed uint64) SamplerOption {
	return WithRand(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

// NewSampler returns a sampler over c. Without options it is randomly seeded.
func NewSampler(c *Catalog, opts ...SamplerOption) *Sampler {
	s := &Sampler{catalog: c}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return s
}

// CreateBatch draws size distinct records, optionally restricted to one
// category. It fails with model.ErrInsufficientCatalog rather than return a
// short batch. Draws are independent across calls, so two batches may share
// products.
func (s *Sampler) CreateBatch(size int, category string) ([]model.ProductRecord, error) {
	if size <= 0 {
		return nil, eris.Wrapf(model.ErrValidation, "sampler: size must be positive (got %d)", size)
	}

	pool := s.catalog.eligible(category)
	if len(pool) < size {
		return nil, eris.Wrapf(model.ErrInsufficientCatalog,
			"sampler: want %d records, %d eligible for category %q", size, len(pool), category)
	}

	// Partial Fisher-Yates over the eligible indexes.
	s.mu.Lock()
	for i := 0; i < size; i++ {
		j := i + s.rng.IntN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	s.mu.Unlock()

	out := make([]model.ProductRecord, size)
	for i, idx := range pool[:size] {
		out[i] = s.catalog.records[idx].Clone()
	}

	zap.L().Debug("sampler: batch drawn",
		zap.Int("size", size),
		zap.String("category", category),
		zap.Int("eligible", len(pool)),
	)
	return out, nil
}

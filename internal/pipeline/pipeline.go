// Package pipeline wires the experiment stages together: sampling,
// mutation, positioning, tag injection, sealing and attribution.
package pipeline

import (
	"context"
	"errors"
	"math/rand/v2"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/shopper-cli/internal/artifact"
	"github.com/sells-group/shopper-cli/internal/attribution"
	"github.com/sells-group/shopper-cli/internal/catalog"
	"github.com/sells-group/shopper-cli/internal/decision"
	"github.com/sells-group/shopper-cli/internal/model"
	"github.com/sells-group/shopper-cli/internal/mutate"
	"github.com/sells-group/shopper-cli/internal/position"
	"github.com/sells-group/shopper-cli/internal/store"
)

// TagOptions enables commercial tag injection.
type TagOptions struct {
	Injection mutate.TagPlan
	Limits    mutate.TagPlan
}

// GenerateOptions describes one batch to generate.
type GenerateOptions struct {
	BatchSize int
	PageSize  int
	Mode      model.PositionMode
	Category  string
	Spec      mutate.Spec
	Tags      *TagOptions // nil disables injection
	OutputDir string      // empty skips the artifact file
}

// GenerateResult is one sealed batch and what happened while building it.
type GenerateResult struct {
	Artifact   model.BatchArtifact
	Path       string
	Misses     []mutate.Miss
	Violations []mutate.Violation
}

// Pipeline runs experiment stages against one catalog. A Pipeline draws from
// a single seeded source and is not safe for concurrent use.
type Pipeline struct {
	catalog *catalog.Catalog
	sampler *catalog.Sampler
	rng     *rand.Rand
	ids     artifact.IdentitySource
	store   store.Store
}

// New creates a Pipeline. Given the same seed, catalog and options, the
// sequence of generated batches is identical apart from artifact identity.
// st may be nil when nothing should be persisted.
func New(cat *catalog.Catalog, st store.Store, ids artifact.IdentitySource, seed uint64) *Pipeline {
	if ids == nil {
		ids = artifact.NewMinter(nil, nil)
	}
	return &Pipeline{
		catalog: cat,
		sampler: catalog.NewSampler(cat, catalog.WithSeed(seed)),
		rng:     rand.New(rand.NewPCG(seed^0x5bd1e995, seed)),
		ids:     ids,
		store:   st,
	}
}

// Generate builds, seals and persists one batch.
func (p *Pipeline) Generate(ctx context.Context, opts GenerateOptions) (*GenerateResult, error) {
	log := zap.L().With(
		zap.String("category", opts.Category),
		zap.String("mode", string(opts.Mode)),
		zap.Int("size", opts.BatchSize),
	)
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "pipeline: generate")
	}

	records, err := p.sampler.CreateBatch(opts.BatchSize, opts.Category)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: sample")
	}

	// With injection on, plan tags run after it and win over injected ones.
	spec := opts.Spec
	if opts.Tags != nil {
		spec.Tags = nil
	}
	mutated, err := mutate.Mutate(records, spec)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: mutate")
	}
	res := &GenerateResult{Misses: mutated.Misses}

	positioned, err := position.Assign(mutated.Products, opts.Mode,
		position.WithPageSize(opts.PageSize),
		position.WithRand(p.rng),
	)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: position")
	}

	if opts.Tags != nil {
		muts, err := mutate.InjectTags(positioned, opts.Tags.Injection, p.rng)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: inject tags")
		}
		tagged, err := mutate.Apply(positioned, mutate.Spec{PriceMultiplier: 1, Tags: muts})
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: apply tags")
		}
		planned, err := mutate.Apply(tagged.Products, mutate.Spec{PriceMultiplier: 1, Tags: opts.Spec.Tags})
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: apply plan tags")
		}
		for _, m := range planned.Misses {
			m.Index += len(opts.Spec.Targets)
			res.Misses = append(res.Misses, m)
		}
		positioned = planned.Products
		res.Violations = mutate.ValidateTags(positioned, opts.Tags.Limits)
	}

	a, err := artifact.New(p.ids, positioned, opts.Mode, opts.PageSize)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: seal")
	}
	res.Artifact = a

	if opts.OutputDir != "" {
		path, err := artifact.Save(opts.OutputDir, a)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: save artifact")
		}
		res.Path = path
	}
	if p.store != nil {
		if err := p.store.SaveArtifact(ctx, a); err != nil {
			if res.Path != "" {
				if rmErr := os.Remove(res.Path); rmErr != nil {
					log.Warn("pipeline: remove unstored artifact file", zap.String("path", res.Path), zap.Error(rmErr))
				}
				res.Path = ""
			}
			return nil, eris.Wrap(err, "pipeline: store artifact")
		}
	}

	log.Info("pipeline: batch generated",
		zap.String("batch_id", a.ID),
		zap.Int("misses", len(res.Misses)),
		zap.Int("tag_violations", len(res.Violations)),
	)
	return res, nil
}

// GenerateAll generates one batch per catalog category. Categories with too
// few products are skipped with a warning.
func (p *Pipeline) GenerateAll(ctx context.Context, opts GenerateOptions) ([]GenerateResult, error) {
	var out []GenerateResult
	for _, category := range p.catalog.Categories() {
		o := opts
		o.Category = category
		res, err := p.Generate(ctx, o)
		if errors.Is(err, model.ErrInsufficientCatalog) {
			zap.L().Warn("pipeline: skipping category", zap.String("category", category), zap.Error(err))
			continue
		}
		if err != nil {
			return out, err
		}
		out = append(out, *res)
	}
	return out, nil
}

// ImportDecision parses a decision payload, checks it against its stored
// batch and persists it.
func (p *Pipeline) ImportDecision(ctx context.Context, data []byte) (model.DecisionRecord, error) {
	if p.store == nil {
		return model.DecisionRecord{}, eris.New("pipeline: import decision requires a store")
	}
	rec, err := decision.Parse(data)
	if err != nil {
		return model.DecisionRecord{}, err
	}

	batch, err := p.store.GetArtifact(ctx, rec.BatchID)
	if errors.Is(err, model.ErrNotFound) {
		return model.DecisionRecord{}, eris.Wrapf(model.ErrReferentialIntegrity,
			"pipeline: decision %s references unknown batch %s", rec.ID, rec.BatchID)
	}
	if err != nil {
		return model.DecisionRecord{}, eris.Wrap(err, "pipeline: load batch")
	}
	if err := attribution.CheckDecision(batch, rec); err != nil {
		return model.DecisionRecord{}, err
	}
	if err := p.store.SaveDecision(ctx, rec); err != nil {
		return model.DecisionRecord{}, eris.Wrap(err, "pipeline: save decision")
	}
	zap.L().Info("pipeline: decision imported",
		zap.String("decision_id", rec.ID),
		zap.String("batch_id", rec.BatchID),
		zap.String("provider", rec.Provenance.Provider),
	)
	return rec, nil
}

// Attribute joins every stored decision (or only those of batchID, when set)
// to its batch and replaces the stored attribution rows.
func (p *Pipeline) Attribute(ctx context.Context, batchID string, concurrency int) (attribution.Report, error) {
	if p.store == nil {
		return attribution.Report{}, eris.New("pipeline: attribute requires a store")
	}
	decisions, err := p.store.ListDecisions(ctx, batchID)
	if err != nil {
		return attribution.Report{}, eris.Wrap(err, "pipeline: list decisions")
	}

	batches := make(map[string]model.BatchArtifact)
	for _, rec := range decisions {
		if _, ok := batches[rec.BatchID]; ok {
			continue
		}
		a, err := p.store.GetArtifact(ctx, rec.BatchID)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return attribution.Report{}, eris.Wrap(err, "pipeline: load batch")
		}
		batches[rec.BatchID] = a
	}

	report, err := attribution.AttributeAll(ctx, batches, decisions, concurrency)
	if err != nil {
		return attribution.Report{}, err
	}
	if _, err := p.store.ReplaceAttribution(ctx, report.Rows); err != nil {
		return attribution.Report{}, eris.Wrap(err, "pipeline: store attribution")
	}
	return report, nil
}

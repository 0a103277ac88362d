// Package attribution joins decision records back onto the batches they were
// made against, producing one analysis row per offered product.
package attribution

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/shopper-cli/internal/model"
)

// CheckDecision verifies that rec refers to batch and that every product ID
// it names was actually offered in that batch.
func CheckDecision(batch model.BatchArtifact, rec model.DecisionRecord) error {
	if rec.BatchID != batch.ID {
		return eris.Wrapf(model.ErrReferentialIntegrity,
			"attribution: decision %s references batch %s, not %s", rec.ID, rec.BatchID, batch.ID)
	}
	for _, id := range rec.ConsiderationSet {
		if !batch.Contains(id) {
			return eris.Wrapf(model.ErrReferentialIntegrity,
				"attribution: decision %s considers %s, not offered in batch %s", rec.ID, id, batch.ID)
		}
	}
	if !rec.IsNoPurchase() && !batch.Contains(rec.FinalChoice) {
		return eris.Wrapf(model.ErrReferentialIntegrity,
			"attribution: decision %s chose %s, not offered in batch %s", rec.ID, rec.FinalChoice, batch.ID)
	}
	return nil
}

// Attribute returns one row per product of batch, in batch order. A
// no-purchase decision yields rows with Chosen false throughout.
func Attribute(batch model.BatchArtifact, rec model.DecisionRecord) ([]model.AttributionRow, error) {
	if err := CheckDecision(batch, rec); err != nil {
		return nil, err
	}

	considered := make(map[string]struct{}, len(rec.ConsiderationSet))
	for _, id := range rec.ConsiderationSet {
		considered[id] = struct{}{}
	}

	rows := make([]model.AttributionRow, 0, len(batch.Products))
	for _, p := range batch.Products {
		_, inSet := considered[p.ID]
		row := model.AttributionRow{
			BatchID:         batch.ID,
			DecisionID:      rec.ID,
			Mode:            batch.Mode,
			Provider:        rec.Provenance.Provider,
			Model:           rec.Provenance.Model,
			PromptVersion:   rec.Provenance.PromptVersion,
			DecidedAt:       rec.Provenance.CreatedAt,
			ProductID:       p.ID,
			Category:        p.Category,
			Title:           p.Title,
			Price:           p.Price,
			Rating:          p.Rating,
			ReviewCount:     p.ReviewCount,
			Tags:            model.TagList(append([]string{}, p.Tags...)),
			IsSponsored:     p.HasTag(model.TagSponsored),
			IsBestSeller:    p.HasTag(model.TagBestSeller),
			IsOverallPick:   p.HasTag(model.TagOverallPick),
			InConsideration: inSet,
			Chosen:          !rec.IsNoPurchase() && p.ID == rec.FinalChoice,
		}
		if p.Position != nil {
			pos := *p.Position
			row.Position = &pos
		}
		if p.Page != nil {
			page := *p.Page
			row.Page = &page
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Rejection records a decision that could not be attributed.
type Rejection struct {
	BatchID    string
	DecisionID string
	Err        error
}

// Report is the result of attributing a set of decisions.
type Report struct {
	Rows       []model.AttributionRow
	Rejections []Rejection
}

// AttributeAll attributes every decision against its batch using up to
// concurrency workers. Decisions whose batch is unknown or that fail the
// integrity check are collected as rejections rather than aborting the run.
// Output follows the order of decisions regardless of scheduling.
func AttributeAll(ctx context.Context, batches map[string]model.BatchArtifact, decisions []model.DecisionRecord, concurrency int) (Report, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	log := zap.L().With(zap.String("component", "attribution"))

	perDecision := make([][]model.AttributionRow, len(decisions))
	failures := make([]error, len(decisions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, rec := range decisions {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			batch, ok := batches[rec.BatchID]
			if !ok {
				failures[i] = eris.Wrapf(model.ErrReferentialIntegrity,
					"attribution: decision %s references unknown batch %s", rec.ID, rec.BatchID)
				return nil
			}
			rows, err := Attribute(batch, rec)
			if err != nil {
				failures[i] = err
				return nil
			}
			perDecision[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, eris.Wrap(err, "attribution: attribute all")
	}

	var report Report
	for i, rec := range decisions {
		if failures[i] != nil {
			log.Warn("decision rejected",
				zap.String("decision_id", rec.ID),
				zap.String("batch_id", rec.BatchID),
				zap.Error(failures[i]),
			)
			report.Rejections = append(report.Rejections, Rejection{
				BatchID:    rec.BatchID,
				DecisionID: rec.ID,
				Err:        failures[i],
			})
			continue
		}
		report.Rows = append(report.Rows, perDecision[i]...)
	}

	log.Info("attribution complete",
		zap.Int("decisions", len(decisions)),
		zap.Int("rows", len(report.Rows)),
		zap.Int("rejected", len(report.Rejections)),
	)
	return report, nil
}

// ProviderSummary aggregates the decisions of one provider/model pair.
type ProviderSummary struct {
	Provider         string
	Model            string
	Decisions        int
	NoPurchase       int
	MeanConsidered   float64
	ChosenSponsored  int
	ChosenBestSeller int
	ChosenTopPage    int
}

// Summarize aggregates attribution rows per provider and model, sorted by
// provider then model.
func Summarize(rows []model.AttributionRow) []ProviderSummary {
	type key struct{ provider, model string }
	type acc struct {
		sum        ProviderSummary
		decisions  map[string]struct{}
		chosen     map[string]struct{}
		considered int
	}

	accs := make(map[key]*acc)
	for _, r := range rows {
		k := key{r.Provider, r.Model}
		a, ok := accs[k]
		if !ok {
			a = &acc{
				sum:       ProviderSummary{Provider: r.Provider, Model: r.Model},
				decisions: make(map[string]struct{}),
				chosen:    make(map[string]struct{}),
			}
			accs[k] = a
		}
		a.decisions[r.DecisionID] = struct{}{}
		if r.InConsideration {
			a.considered++
		}
		if r.Chosen {
			a.chosen[r.DecisionID] = struct{}{}
			if r.IsSponsored {
				a.sum.ChosenSponsored++
			}
			if r.IsBestSeller {
				a.sum.ChosenBestSeller++
			}
			if r.Page != nil && *r.Page == 1 {
				a.sum.ChosenTopPage++
			}
		}
	}

	out := make([]ProviderSummary, 0, len(accs))
	for _, a := range accs {
		s := a.sum
		s.Decisions = len(a.decisions)
		s.NoPurchase = s.Decisions - len(a.chosen)
		if s.Decisions > 0 {
			s.MeanConsidered = float64(a.considered) / float64(s.Decisions)
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].Model < out[j].Model
	})
	return out
}

package mutate

import (
	"math/rand/v2"
	"slices"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/shopper-cli/internal/model"
)

// Range is an inclusive [Min, Max] count.
type Range struct {
	Min int `yaml:"min" mapstructure:"min"`
	Max int `yaml:"max" mapstructure:"max"`
}

func (r Range) valid() bool {
	return r.Min >= 0 && r.Max >= r.Min
}

func (r Range) contains(n int) bool {
	return n >= r.Min && n <= r.Max
}

// TagPlan holds one count range per commercial tag.
type TagPlan struct {
	Sponsored   Range `yaml:"sponsored" mapstructure:"sponsored"`
	BestSeller  Range `yaml:"best_seller" mapstructure:"best_seller"`
	OverallPick Range `yaml:"overall_pick" mapstructure:"overall_pick"`
}

// DefaultInjection matches the tag frequencies observed on a 25-product
// results page: 3-5 sponsored, at most one best seller and one overall pick.
func DefaultInjection() TagPlan {
	return TagPlan{
		Sponsored:   Range{Min: 3, Max: 5},
		BestSeller:  Range{Min: 0, Max: 1},
		OverallPick: Range{Min: 0, Max: 1},
	}
}

// DefaultLimits is the tolerance band ValidateTags checks against.
func DefaultLimits() TagPlan {
	return TagPlan{
		Sponsored:   Range{Min: 2, Max: 8},
		BestSeller:  Range{Min: 0, Max: 2},
		OverallPick: Range{Min: 0, Max: 2},
	}
}

func (p TagPlan) ranges() []struct {
	tag string
	r   Range
} {
	return []struct {
		tag string
		r   Range
	}{
		{model.TagSponsored, p.Sponsored},
		{model.TagBestSeller, p.BestSeller},
		{model.TagOverallPick, p.OverallPick},
	}
}

// Validate checks every range is non-negative and ordered.
func (p TagPlan) Validate() error {
	for _, tr := range p.ranges() {
		if !tr.r.valid() {
			return eris.Wrapf(model.ErrInvalidMutation, "mutate: %s range [%d, %d] is invalid", tr.tag, tr.r.Min, tr.r.Max)
		}
	}
	return nil
}

// InjectTags plans commercial tag assignments for batch. The returned
// mutations first clear any commercial tag already present, then add each
// tag to a random subset sized within its range. Pass the result to Apply.
// Selection depends only on rng and the batch's ID set, not its order.
func InjectTags(batch []model.ProductSnapshot, plan TagPlan, rng *rand.Rand) ([]TagMutation, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	ids := make([]string, len(batch))
	for i, s := range batch {
		ids[i] = s.ID
	}
	slices.Sort(ids)

	var muts []TagMutation
	for _, s := range batch {
		for _, tag := range model.CommercialTags() {
			if s.HasTag(tag) {
				muts = append(muts, TagMutation{ID: s.ID, Op: TagRemove, Tag: tag})
			}
		}
	}

	for _, tr := range plan.ranges() {
		n := tr.r.Min + rng.IntN(tr.r.Max-tr.r.Min+1)
		n = min(n, len(ids))
		for _, k := range rng.Perm(len(ids))[:n] {
			muts = append(muts, TagMutation{ID: ids[k], Op: TagAdd, Tag: tr.tag})
		}
	}
	return muts, nil
}

// Violation is a commercial tag whose count falls outside its limits.
type Violation struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
	Min   int    `json:"min"`
	Max   int    `json:"max"`
}

// ValidateTags counts commercial tags in batch and reports every count
// outside limits. It does not fail; the caller decides whether to keep the
// batch.
func ValidateTags(batch []model.ProductSnapshot, limits TagPlan) []Violation {
	counts := make(map[string]int, 3)
	for _, s := range batch {
		for _, t := range s.Tags {
			counts[t]++
		}
	}

	var out []Violation
	for _, tr := range limits.ranges() {
		n := counts[tr.tag]
		if !tr.r.contains(n) {
			out = append(out, Violation{Tag: tr.tag, Count: n, Min: tr.r.Min, Max: tr.r.Max})
			zap.L().Warn("mutate: tag count out of range",
				zap.String("tag", tr.tag),
				zap.Int("count", n),
				zap.Int("min", tr.r.Min),
				zap.Int("max", tr.r.Max),
			)
		}
	}
	return out
}

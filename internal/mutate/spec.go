// Package mutate derives experimental product snapshots from seed records and
// applies deterministic attribute mutations to them.
package mutate

import (
	"math"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/shopper-cli/internal/model"
)

// Mutable snapshot fields addressable by a TargetMutation.
const (
	FieldPrice       = "price"
	FieldRating      = "rating"
	FieldReviewCount = "review_count"
	FieldTitle       = "title"
)

// TagOp is the operation of a TagMutation.
type TagOp string

const (
	TagAdd    TagOp = "add"
	TagRemove TagOp = "remove"
)

// TargetMutation overwrites one field of one product.
type TargetMutation struct {
	ID    string `yaml:"id" json:"id"`
	Field string `yaml:"field" json:"field"`
	Value any    `yaml:"value" json:"value"`
}

// TagMutation adds or removes a tag on one product.
type TagMutation struct {
	ID  string `yaml:"id" json:"id"`
	Op  TagOp  `yaml:"op" json:"op"`
	Tag string `yaml:"tag" json:"tag"`
}

// Spec is an ordered mutation plan. Targets apply after the multiplier and
// tags apply after targets.
type Spec struct {
	PriceMultiplier float64          `yaml:"price_multiplier" json:"price_multiplier"`
	Targets         []TargetMutation `yaml:"targets" json:"targets,omitempty"`
	Tags            []TagMutation    `yaml:"tags" json:"tags,omitempty"`
}

// Identity returns a spec that leaves prices untouched.
func Identity() Spec {
	return Spec{PriceMultiplier: 1.0}
}

// Validate checks the spec without applying it.
func (s Spec) Validate() error {
	if s.PriceMultiplier <= 0 || math.IsNaN(s.PriceMultiplier) || math.IsInf(s.PriceMultiplier, 0) {
		return eris.Wrapf(model.ErrInvalidMutation, "mutate: price multiplier must be positive (got %v)", s.PriceMultiplier)
	}
	for i, t := range s.Targets {
		if t.ID == "" {
			return eris.Wrapf(model.ErrInvalidMutation, "mutate: target %d: missing id", i)
		}
		if _, err := coerce(t.Field, t.Value); err != nil {
			return eris.Wrapf(err, "mutate: target %d (%s)", i, t.ID)
		}
	}
	for i, t := range s.Tags {
		if t.ID == "" || t.Tag == "" {
			return eris.Wrapf(model.ErrInvalidMutation, "mutate: tag %d: id and tag are required", i)
		}
		if t.Op != TagAdd && t.Op != TagRemove {
			return eris.Wrapf(model.ErrInvalidMutation, "mutate: tag %d: unknown op %q", i, t.Op)
		}
	}
	return nil
}

// LoadPlan reads a YAML mutation plan. A missing price_multiplier means 1.0.
func LoadPlan(path string) (Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Spec{}, eris.Wrapf(err, "mutate: read plan %s", path)
	}
	return ParsePlan(data)
}

// ParsePlan decodes a YAML mutation plan.
func ParsePlan(data []byte) (Spec, error) {
	var s Spec
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Spec{}, eris.Wrapf(model.ErrInvalidMutation, "mutate: parse plan: %v", err)
	}
	if s.PriceMultiplier == 0 {
		s.PriceMultiplier = 1.0
	}
	if err := s.Validate(); err != nil {
		return Spec{}, err
	}
	return s, nil
}

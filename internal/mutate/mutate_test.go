package mutate

import (
	"errors"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/shopper-cli/internal/model"
)

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func abcRecords() []model.ProductRecord {
	return []model.ProductRecord{
		{ID: "A", Category: "Mice", Title: "Alpha", BasePrice: 10, Rating: 4.1, ReviewCount: 10, Features: []string{"light"}},
		{ID: "B", Category: "Mice", Title: "Bravo", BasePrice: 20, Rating: 4.5, ReviewCount: 20},
		{ID: "C", Category: "Mice", Title: "Charlie", BasePrice: 30, Rating: 3.9, ReviewCount: 30},
	}
}

func priceOf(t *testing.T, snaps []model.ProductSnapshot, id string) float64 {
	t.Helper()
	for _, s := range snaps {
		if s.ID == id {
			return s.Price
		}
	}
	t.Fatalf("product %s not found", id)
	return 0
}

func TestMutate_TargetOverrideWinsOverMultiplier(t *testing.T) {
	res, err := Mutate(abcRecords(), Spec{
		PriceMultiplier: 1.1,
		Targets:         []TargetMutation{{ID: "B", Field: FieldPrice, Value: 5}},
	})
	require.NoError(t, err)
	require.Empty(t, res.Misses)

	assert.Equal(t, 11.00, round2(priceOf(t, res.Products, "A")))
	assert.Equal(t, 5.00, round2(priceOf(t, res.Products, "B")))
	assert.Equal(t, 33.00, round2(priceOf(t, res.Products, "C")))
}

func TestMutate_Deterministic(t *testing.T) {
	spec := Spec{
		PriceMultiplier: 0.87,
		Targets: []TargetMutation{
			{ID: "A", Field: FieldRating, Value: 3.0},
			{ID: "C", Field: FieldReviewCount, Value: 5000},
		},
		Tags: []TagMutation{{ID: "B", Op: TagAdd, Tag: model.TagSponsored}},
	}

	first, err := Mutate(abcRecords(), spec)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Mutate(abcRecords(), spec)
		require.NoError(t, err)
		assert.Equal(t, first, again)
		for j := range first.Products {
			assert.Equal(t, round2(first.Products[j].Price), round2(again.Products[j].Price))
		}
	}
}

func TestMutate_DoesNotTouchInput(t *testing.T) {
	recs := abcRecords()
	_, err := Mutate(recs, Spec{
		PriceMultiplier: 2,
		Targets:         []TargetMutation{{ID: "A", Field: FieldTitle, Value: "Renamed"}},
	})
	require.NoError(t, err)

	assert.Equal(t, abcRecords(), recs)
}

func TestMutate_PreservesIdentifiers(t *testing.T) {
	res, err := Mutate(abcRecords(), Spec{PriceMultiplier: 3})
	require.NoError(t, err)

	var ids []string
	for _, s := range res.Products {
		ids = append(ids, s.ID)
		assert.NotNil(t, s.Tags)
		assert.Empty(t, s.Tags)
	}
	assert.Equal(t, []string{"A", "B", "C"}, ids)
}

func TestMutate_NoRoundingMidPipeline(t *testing.T) {
	res, err := Mutate([]model.ProductRecord{{ID: "A", Category: "x", BasePrice: 0.015}}, Spec{PriceMultiplier: 1})
	require.NoError(t, err)
	assert.Equal(t, 0.015, res.Products[0].Price)
}

func TestMutate_LastWriterWinsPerField(t *testing.T) {
	res, err := Mutate(abcRecords(), Spec{
		PriceMultiplier: 1,
		Targets: []TargetMutation{
			{ID: "A", Field: FieldPrice, Value: 1.5},
			{ID: "A", Field: FieldPrice, Value: 2.5},
			{ID: "A", Field: FieldRating, Value: 2},
		},
	})
	require.NoError(t, err)
	a := res.Products[0]
	assert.Equal(t, 2.5, a.Price)
	assert.Equal(t, 2.0, a.Rating)
	assert.Equal(t, 20.0, res.Products[1].Price)
}

func TestMutate_MissingTargetIsRecordedNotFatal(t *testing.T) {
	res, err := Mutate(abcRecords(), Spec{
		PriceMultiplier: 1,
		Targets:         []TargetMutation{{ID: "Z", Field: FieldPrice, Value: 1}},
		Tags:            []TagMutation{{ID: "Y", Op: TagAdd, Tag: "x"}},
	})
	require.NoError(t, err)
	require.Len(t, res.Misses, 2)
	assert.Equal(t, Miss{Index: 0, ID: "Z", Field: FieldPrice}, res.Misses[0])
	assert.Equal(t, Miss{Index: 1, ID: "Y", Field: "tags"}, res.Misses[1])
	assert.Len(t, res.Products, 3)
}

func TestMutate_TagSetSemantics(t *testing.T) {
	res, err := Mutate(abcRecords(), Spec{
		PriceMultiplier: 1,
		Tags: []TagMutation{
			{ID: "A", Op: TagAdd, Tag: model.TagSponsored},
			{ID: "A", Op: TagAdd, Tag: model.TagSponsored},
			{ID: "A", Op: TagAdd, Tag: model.TagBestSeller},
			{ID: "A", Op: TagRemove, Tag: model.TagBestSeller},
			{ID: "B", Op: TagRemove, Tag: model.TagOverallPick},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{model.TagSponsored}, res.Products[0].Tags)
	assert.Empty(t, res.Products[1].Tags)
}

func TestMutate_InvalidSpecs(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
	}{
		{"zero multiplier", Spec{}},
		{"negative multiplier", Spec{PriceMultiplier: -1}},
		{"unknown field", Spec{PriceMultiplier: 1, Targets: []TargetMutation{{ID: "A", Field: "color", Value: "red"}}}},
		{"string price", Spec{PriceMultiplier: 1, Targets: []TargetMutation{{ID: "A", Field: FieldPrice, Value: "cheap"}}}},
		{"negative price", Spec{PriceMultiplier: 1, Targets: []TargetMutation{{ID: "A", Field: FieldPrice, Value: -3}}}},
		{"NaN multiplier", Spec{PriceMultiplier: math.NaN()}},
		{"NaN rating", Spec{PriceMultiplier: 1, Targets: []TargetMutation{{ID: "A", Field: FieldRating, Value: math.NaN()}}}},
		{"rating over five", Spec{PriceMultiplier: 1, Targets: []TargetMutation{{ID: "A", Field: FieldRating, Value: 9}}}},
		{"fractional reviews", Spec{PriceMultiplier: 1, Targets: []TargetMutation{{ID: "A", Field: FieldReviewCount, Value: 1.5}}}},
		{"empty title", Spec{PriceMultiplier: 1, Targets: []TargetMutation{{ID: "A", Field: FieldTitle, Value: ""}}}},
		{"missing target id", Spec{PriceMultiplier: 1, Targets: []TargetMutation{{Field: FieldPrice, Value: 1}}}},
		{"bad tag op", Spec{PriceMultiplier: 1, Tags: []TagMutation{{ID: "A", Op: "toggle", Tag: "x"}}}},
		{"empty tag", Spec{PriceMultiplier: 1, Tags: []TagMutation{{ID: "A", Op: TagAdd}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Mutate(abcRecords(), tt.spec)
			require.Error(t, err)
			assert.True(t, errors.Is(err, model.ErrInvalidMutation))
		})
	}
}

func TestApply_CarriesPositionsAndClones(t *testing.T) {
	base, err := Mutate(abcRecords(), Identity())
	require.NoError(t, err)
	pos := 2
	base.Products[0].Position = &pos

	res, err := Apply(base.Products, Spec{
		PriceMultiplier: 2,
		Tags:            []TagMutation{{ID: "A", Op: TagAdd, Tag: model.TagOverallPick}},
	})
	require.NoError(t, err)

	require.NotNil(t, res.Products[0].Position)
	assert.Equal(t, 2, *res.Products[0].Position)
	assert.Equal(t, 20.0, res.Products[0].Price)
	assert.Equal(t, 10.0, base.Products[0].Price)
	assert.Empty(t, base.Products[0].Tags)
}

func TestParsePlan(t *testing.T) {
	plan := `
price_multiplier: 1.25
targets:
  - id: prod_mice_001
    field: price
    value: 5
  - id: prod_mice_002
    field: review_count
    value: 12
tags:
  - id: prod_mice_003
    op: add
    tag: Sponsored
`
	s, err := ParsePlan([]byte(plan))
	require.NoError(t, err)
	assert.Equal(t, 1.25, s.PriceMultiplier)
	require.Len(t, s.Targets, 2)
	assert.Equal(t, FieldReviewCount, s.Targets[1].Field)
	require.Len(t, s.Tags, 1)
	assert.Equal(t, TagAdd, s.Tags[0].Op)
}

func TestParsePlan_DefaultsMultiplier(t *testing.T) {
	s, err := ParsePlan([]byte("targets: []\n"))
	require.NoError(t, err)
	assert.Equal(t, 1.0, s.PriceMultiplier)
}

func TestParsePlan_Invalid(t *testing.T) {
	_, err := ParsePlan([]byte("price_multiplier: [1, 2]"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrInvalidMutation))

	_, err = ParsePlan([]byte("targets:\n  - id: a\n    field: colour\n    value: red\n"))
	assert.True(t, errors.Is(err, model.ErrInvalidMutation))

	_, err = ParsePlan([]byte("targets:\n  - id: a\n    field: rating\n    value: .nan\n"))
	assert.True(t, errors.Is(err, model.ErrInvalidMutation))
}

func TestLoadPlan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte("price_multiplier: 0.9\n"), 0o644))

	s, err := LoadPlan(path)
	require.NoError(t, err)
	assert.Equal(t, 0.9, s.PriceMultiplier)

	_, err = LoadPlan(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func snapshots(n int) []model.ProductSnapshot {
	out := make([]model.ProductSnapshot, n)
	for i := range out {
		out[i] = model.ProductSnapshot{ID: string(rune('a' + i)), Price: float64(i + 1), Tags: []string{}}
	}
	return out
}

func TestInjectTags_CountsWithinPlan(t *testing.T) {
	batch := snapshots(25)
	plan := DefaultInjection()

	for seed := uint64(0); seed < 20; seed++ {
		muts, err := InjectTags(batch, plan, rand.New(rand.NewPCG(seed, 1)))
		require.NoError(t, err)

		res, err := Apply(batch, Spec{PriceMultiplier: 1, Tags: muts})
		require.NoError(t, err)
		assert.Empty(t, res.Misses)
		assert.Empty(t, ValidateTags(res.Products, plan), "seed %d", seed)
	}
}

func TestInjectTags_ReproducibleAndOrderIndependent(t *testing.T) {
	batch := snapshots(10)
	reversed := make([]model.ProductSnapshot, len(batch))
	for i := range batch {
		reversed[len(batch)-1-i] = batch[i]
	}

	a, err := InjectTags(batch, DefaultInjection(), rand.New(rand.NewPCG(5, 5)))
	require.NoError(t, err)
	b, err := InjectTags(reversed, DefaultInjection(), rand.New(rand.NewPCG(5, 5)))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestInjectTags_ClearsPriorCommercialTags(t *testing.T) {
	batch := snapshots(3)
	batch[0].Tags = []string{model.TagSponsored, "Budget"}

	muts, err := InjectTags(batch, TagPlan{}, rand.New(rand.NewPCG(1, 1)))
	require.NoError(t, err)

	res, err := Apply(batch, Spec{PriceMultiplier: 1, Tags: muts})
	require.NoError(t, err)
	assert.Equal(t, []string{"Budget"}, res.Products[0].Tags)
}

func TestInjectTags_SmallBatchCapsCount(t *testing.T) {
	batch := snapshots(2)
	muts, err := InjectTags(batch, TagPlan{Sponsored: Range{Min: 5, Max: 5}}, rand.New(rand.NewPCG(2, 2)))
	require.NoError(t, err)
	assert.Len(t, muts, 2)
}

func TestInjectTags_InvalidPlan(t *testing.T) {
	_, err := InjectTags(snapshots(3), TagPlan{Sponsored: Range{Min: 3, Max: 1}}, rand.New(rand.NewPCG(1, 1)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrInvalidMutation))
}

func TestValidateTags_ReportsViolations(t *testing.T) {
	batch := snapshots(4)
	for i := range batch {
		batch[i].Tags = []string{model.TagBestSeller}
	}

	v := ValidateTags(batch, DefaultLimits())
	require.Len(t, v, 2)
	assert.Equal(t, Violation{Tag: model.TagSponsored, Count: 0, Min: 2, Max: 8}, v[0])
	assert.Equal(t, Violation{Tag: model.TagBestSeller, Count: 4, Min: 0, Max: 2}, v[1])
}

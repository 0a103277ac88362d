package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/shopper-cli/internal/artifact"
	"github.com/sells-group/shopper-cli/internal/attribution"
	"github.com/sells-group/shopper-cli/internal/model"
	"github.com/sells-group/shopper-cli/internal/position"
)

var baseTime = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

// testArtifact builds a sealed artifact whose creation time is offset
// minutes after baseTime.
func testArtifact(t *testing.T, offset int, mode model.PositionMode, ids ...string) model.BatchArtifact {
	t.Helper()
	products := make([]model.ProductSnapshot, len(ids))
	for i, id := range ids {
		products[i] = model.ProductSnapshot{
			ID:          id,
			Category:    "Mice",
			Title:       "Mouse " + id,
			Price:       float64(10 + i),
			Rating:      4.2,
			ReviewCount: 50,
			Tags:        []string{},
		}
	}
	positioned, err := position.Assign(products, mode, position.WithPageSize(2))
	require.NoError(t, err)

	clock := func() time.Time { return baseTime.Add(time.Duration(offset) * time.Minute) }
	a, err := artifact.New(artifact.NewMinter(clock, nil), positioned, mode, 2)
	require.NoError(t, err)
	return a
}

func testDecision(id, batchID, choice string, considered ...string) model.DecisionRecord {
	if considered == nil {
		considered = []string{}
	}
	return model.DecisionRecord{
		ID:               id,
		BatchID:          batchID,
		ConsiderationSet: considered,
		FinalChoice:      choice,
		Reasoning:        "cheapest option",
		Provenance: model.Provenance{
			Provider:  "claude",
			Model:     "claude-sonnet",
			K:         len(considered),
			CreatedAt: baseTime.Add(time.Hour),
		},
	}
}

func testRows(t *testing.T, a model.BatchArtifact, rec model.DecisionRecord) []model.AttributionRow {
	t.Helper()
	rows, err := attribution.Attribute(a, rec)
	require.NoError(t, err)
	return rows
}

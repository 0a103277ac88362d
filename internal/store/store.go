// Package store persists batch artifacts, decision records and derived
// attribution rows. Artifacts and decisions are append-only.
package store

import (
	"context"
	"time"

	"github.com/sells-group/shopper-cli/internal/model"
)

// ArtifactFilter specifies criteria for listing artifacts.
type ArtifactFilter struct {
	Mode   model.PositionMode `json:"mode,omitempty"`
	Limit  int                `json:"limit,omitempty"`
	Offset int                `json:"offset,omitempty"`
}

// ArtifactInfo is the listing view of a stored artifact.
type ArtifactInfo struct {
	ID           string             `json:"batch_id"`
	Mode         model.PositionMode `json:"mode"`
	PageSize     int                `json:"page_size"`
	ProductCount int                `json:"product_count"`
	CreatedAt    time.Time          `json:"created_at"`
}

// Store defines the persistence interface for experiment artifacts.
type Store interface {
	// Artifacts. Saving an existing ID fails with model.ErrDuplicate.
	SaveArtifact(ctx context.Context, a model.BatchArtifact) error
	GetArtifact(ctx context.Context, id string) (model.BatchArtifact, error)
	ListArtifacts(ctx context.Context, filter ArtifactFilter) ([]ArtifactInfo, error)

	// Decisions. The referenced artifact must already be stored.
	SaveDecision(ctx context.Context, rec model.DecisionRecord) error
	ListDecisions(ctx context.Context, batchID string) ([]model.DecisionRecord, error)

	// Attribution rows are derived; existing rows for the same decisions are
	// replaced.
	ReplaceAttribution(ctx context.Context, rows []model.AttributionRow) (int64, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

func infoOf(a model.BatchArtifact) ArtifactInfo {
	return ArtifactInfo{
		ID:           a.ID,
		Mode:         a.Mode,
		PageSize:     a.PageSize,
		ProductCount: len(a.Products),
		CreatedAt:    a.CreatedAt,
	}
}

// decisionIDs returns the distinct decision IDs of rows in first-seen order.
func decisionIDs(rows []model.AttributionRow) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, r := range rows {
		if _, ok := seen[r.DecisionID]; ok {
			continue
		}
		seen[r.DecisionID] = struct{}{}
		ids = append(ids, r.DecisionID)
	}
	return ids
}

// attributionColumns is the column order shared by both backends.
var attributionColumns = []string{
	"batch_id", "decision_id", "product_id", "mode", "provider", "model", "prompt_version",
	"decided_at", "category", "title", "price", "rating", "review_count", "position", "page",
	"tags", "is_sponsored", "is_best_seller", "is_overall_pick", "in_consideration", "chosen",
}

func attributionValues(r model.AttributionRow) []any {
	tags, _ := r.Tags.MarshalText()
	return []any{
		r.BatchID, r.DecisionID, r.ProductID, string(r.Mode), r.Provider, r.Model, r.PromptVersion,
		r.DecidedAt.UTC(), r.Category, r.Title, r.Price, r.Rating, r.ReviewCount, r.Position, r.Page,
		string(tags), r.IsSponsored, r.IsBestSeller, r.IsOverallPick, r.InConsideration, r.Chosen,
	}
}

package model

import "time"

// PositionMode selects the ordering used before rank assignment.
type PositionMode string

const (
	PositionRandom     PositionMode = "random"
	PositionPriceAsc   PositionMode = "price_asc"
	PositionPriceDesc  PositionMode = "price_desc"
	PositionRatingDesc PositionMode = "rating_desc"
)

// PositionModes lists every supported mode.
func PositionModes() []PositionMode {
	return []PositionMode{PositionRandom, PositionPriceAsc, PositionPriceDesc, PositionRatingDesc}
}

// Valid reports whether m is a supported mode.
func (m PositionMode) Valid() bool {
	for _, known := range PositionModes() {
		if m == known {
			return true
		}
	}
	return false
}

// DefaultPageSize mimics a standard results page.
const DefaultPageSize = 10

// Commercial tags injected into experimental batches.
const (
	TagSponsored   = "Sponsored"
	TagBestSeller  = "Best Seller"
	TagOverallPick = "Overall Pick"
)

// CommercialTags lists the injected tags in injection order.
func CommercialTags() []string {
	return []string{TagSponsored, TagBestSeller, TagOverallPick}
}

// BatchArtifact is one immutable experimental batch: a positioned, mutated
// product subset plus the identity it is exchanged under.
type BatchArtifact struct {
	ID        string            `json:"batch_id"`
	Mode      PositionMode      `json:"mode"`
	PageSize  int               `json:"page_size"`
	CreatedAt time.Time         `json:"created_at"`
	Products  []ProductSnapshot `json:"products"`
}

// ProductIDs returns the batch's product identifiers in batch order.
func (b BatchArtifact) ProductIDs() []string {
	ids := make([]string, len(b.Products))
	for i, p := range b.Products {
		ids[i] = p.ID
	}
	return ids
}

// Contains reports whether id is one of the batch's products.
func (b BatchArtifact) Contains(id string) bool {
	for _, p := range b.Products {
		if p.ID == id {
			return true
		}
	}
	return false
}

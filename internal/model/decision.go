package model

import (
	"strings"
	"time"
)

// NoPurchase is the outside-good sentinel a decision-maker returns when none
// of the offered products is chosen.
const NoPurchase = "no_purchase"

// Provenance identifies who produced a decision and under which prompt.
type Provenance struct {
	Provider      string    `json:"provider" validate:"required"`
	Model         string    `json:"model" validate:"required"`
	PromptVersion string    `json:"prompt_version,omitempty"`
	K             int       `json:"k,omitempty" validate:"gte=0"`
	CreatedAt     time.Time `json:"created_at" validate:"required"`
}

// DecisionRecord is one decision-maker's answer for one batch.
type DecisionRecord struct {
	ID               string     `json:"id" validate:"required"`
	BatchID          string     `json:"batch_id" validate:"required"`
	ConsiderationSet []string   `json:"consideration_set" validate:"unique,dive,required"`
	FinalChoice      string     `json:"final_choice" validate:"required"`
	Reasoning        string     `json:"reasoning,omitempty"`
	Provenance       Provenance `json:"provenance"`
}

// IsNoPurchase reports whether the final choice is the outside good.
func (d DecisionRecord) IsNoPurchase() bool {
	return d.FinalChoice == NoPurchase
}

// TagList is a tag set flattened for tabular output.
type TagList []string

// MarshalText joins the tags with '|'.
func (t TagList) MarshalText() ([]byte, error) {
	return []byte(strings.Join(t, "|")), nil
}

// UnmarshalText splits a '|'-joined tag list.
func (t *TagList) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*t = TagList{}
		return nil
	}
	*t = strings.Split(string(b), "|")
	return nil
}

// AttributionRow is one product of one batch as seen by one decision. Rows
// are derived data and can always be rebuilt from the batch and decision.
type AttributionRow struct {
	BatchID         string       `json:"batch_id" csv:"batch_id"`
	DecisionID      string       `json:"decision_id" csv:"decision_id"`
	Mode            PositionMode `json:"mode" csv:"mode"`
	Provider        string       `json:"provider" csv:"provider"`
	Model           string       `json:"model" csv:"model"`
	PromptVersion   string       `json:"prompt_version" csv:"prompt_version"`
	DecidedAt       time.Time    `json:"decided_at" csv:"decided_at"`
	ProductID       string       `json:"product_id" csv:"product_id"`
	Category        string       `json:"category" csv:"category"`
	Title           string       `json:"title" csv:"title"`
	Price           float64      `json:"price" csv:"price"`
	Rating          float64      `json:"rating" csv:"rating"`
	ReviewCount     int          `json:"review_count" csv:"review_count"`
	Position        *int         `json:"position" csv:"position"`
	Page            *int         `json:"page" csv:"page"`
	Tags            TagList      `json:"tags" csv:"tags"`
	IsSponsored     bool         `json:"is_sponsored" csv:"is_sponsored"`
	IsBestSeller    bool         `json:"is_best_seller" csv:"is_best_seller"`
	IsOverallPick   bool         `json:"is_overall_pick" csv:"is_overall_pick"`
	InConsideration bool         `json:"in_consideration" csv:"in_consideration"`
	Chosen          bool         `json:"chosen" csv:"chosen"`
}

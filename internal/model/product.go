package model

// MaxReviewSnippets bounds the review snippets carried per seed record.
const MaxReviewSnippets = 5

// Review is a single review snippet attached to a seed record.
type Review struct {
	Rating       float64 `json:"rating"`
	Title        string  `json:"title"`
	Text         string  `json:"text"`
	Verified     bool    `json:"verified"`
	HelpfulVotes int     `json:"helpful_votes"`
}

// ProductRecord is a seed catalog entry. Records are owned by the catalog and
// are never modified after ingestion; callers receive clones.
type ProductRecord struct {
	ID          string            `json:"id"`
	ParentASIN  string            `json:"parent_asin,omitempty"`
	Category    string            `json:"category"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	BasePrice   float64           `json:"base_price"`
	Rating      float64           `json:"rating"`
	ReviewCount int               `json:"review_count"`
	Features    []string          `json:"features,omitempty"`
	Reviews     []Review          `json:"reviews,omitempty"`
	Store       string            `json:"store,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// Clone returns a deep copy of the record.
func (r ProductRecord) Clone() ProductRecord {
	out := r
	out.Features = cloneStrings(r.Features)
	out.Tags = cloneStrings(r.Tags)
	if r.Reviews != nil {
		out.Reviews = append([]Review(nil), r.Reviews...)
	}
	out.Attributes = cloneAttrs(r.Attributes)
	return out
}

// ProductSnapshot is the experimental form of a product: one seed record plus
// its mutation history. ID is copied from the seed record and is the join key
// back to the catalog.
type ProductSnapshot struct {
	ID          string            `json:"id"`
	Category    string            `json:"category"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Store       string            `json:"store,omitempty"`
	Price       float64           `json:"price"`
	Rating      float64           `json:"rating"`
	ReviewCount int               `json:"review_count"`
	Features    []string          `json:"features,omitempty"`
	Reviews     []Review          `json:"reviews,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	Tags        []string          `json:"tags"`
	Position    *int              `json:"position,omitempty"`
	Page        *int              `json:"page,omitempty"`
}

// Clone returns a deep copy of the snapshot.
func (s ProductSnapshot) Clone() ProductSnapshot {
	out := s
	out.Features = cloneStrings(s.Features)
	if s.Reviews != nil {
		out.Reviews = append([]Review(nil), s.Reviews...)
	}
	out.Attributes = cloneAttrs(s.Attributes)
	out.Tags = cloneStrings(s.Tags)
	if out.Tags == nil {
		out.Tags = []string{}
	}
	if s.Position != nil {
		p := *s.Position
		out.Position = &p
	}
	if s.Page != nil {
		p := *s.Page
		out.Page = &p
	}
	return out
}

// HasTag reports whether the snapshot carries the given tag.
func (s ProductSnapshot) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// CloneSnapshots deep-copies a batch.
func CloneSnapshots(in []ProductSnapshot) []ProductSnapshot {
	out := make([]ProductSnapshot, len(in))
	for i, s := range in {
		out[i] = s.Clone()
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

func cloneAttrs(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

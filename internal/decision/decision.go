// Package decision parses and validates decision records returned by an
// external decision-maker.
package decision

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/shopper-cli/internal/model"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// envelope is the runner output shape: the decision nested under "decision"
// and provenance under "metadata" with a unix timestamp.
type envelope struct {
	ExperimentID string `json:"experiment_id"`
	Decision     *struct {
		ConsiderationSet []string `json:"consideration_set"`
		FinalChoice      string   `json:"final_choice"`
		ReasoningTrace   string   `json:"reasoning_trace"`
	} `json:"decision"`
	Metadata *struct {
		BatchID       string `json:"batch_id"`
		SourceBatch   string `json:"source_batch"`
		Provider      string `json:"provider"`
		Model         string `json:"model"`
		PromptVersion string `json:"prompt_version"`
		Timestamp     int64  `json:"timestamp"`
		K             int    `json:"k"`
	} `json:"metadata"`
}

// Parse decodes a decision payload. Two shapes are accepted: a flat
// DecisionRecord document, or the runner envelope with "decision" and
// "metadata" objects. Markdown code fences around the JSON are stripped.
// Anything else, including unknown fields, fails with model.ErrValidation.
// A record without an ID is assigned a UUIDv7.
func Parse(data []byte) (model.DecisionRecord, error) {
	body := StripFences(string(data))
	if body == "" {
		return model.DecisionRecord{}, eris.Wrap(model.ErrValidation, "decision: empty payload")
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &probe); err != nil {
		return model.DecisionRecord{}, eris.Wrapf(model.ErrValidation, "decision: not a JSON object: %v", err)
	}

	var (
		rec model.DecisionRecord
		err error
	)
	if _, nested := probe["decision"]; nested {
		rec, err = parseEnvelope([]byte(body))
	} else {
		err = decodeStrict([]byte(body), &rec)
	}
	if err != nil {
		return model.DecisionRecord{}, err
	}

	if rec.ID == "" {
		rec.ID = uuid.Must(uuid.NewV7()).String()
	}
	if rec.ConsiderationSet == nil {
		rec.ConsiderationSet = []string{}
	}
	if err := Validate(rec); err != nil {
		return model.DecisionRecord{}, err
	}
	return rec, nil
}

func parseEnvelope(data []byte) (model.DecisionRecord, error) {
	var env envelope
	if err := decodeStrict(data, &env); err != nil {
		return model.DecisionRecord{}, err
	}
	if env.Decision == nil {
		return model.DecisionRecord{}, eris.Wrap(model.ErrValidation, "decision: decision object is null")
	}
	if env.Metadata == nil {
		return model.DecisionRecord{}, eris.Wrap(model.ErrValidation, "decision: missing metadata")
	}

	batchID := env.Metadata.BatchID
	if batchID == "" {
		batchID = BatchIDFromPath(env.Metadata.SourceBatch)
	}
	var created time.Time
	if env.Metadata.Timestamp > 0 {
		created = time.Unix(env.Metadata.Timestamp, 0).UTC()
	}

	return model.DecisionRecord{
		BatchID:          batchID,
		ConsiderationSet: env.Decision.ConsiderationSet,
		FinalChoice:      env.Decision.FinalChoice,
		Reasoning:        env.Decision.ReasoningTrace,
		Provenance: model.Provenance{
			Provider:      env.Metadata.Provider,
			Model:         env.Metadata.Model,
			PromptVersion: env.Metadata.PromptVersion,
			K:             env.Metadata.K,
			CreatedAt:     created,
		},
	}, nil
}

func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return eris.Wrapf(model.ErrValidation, "decision: decode: %v", err)
	}
	if dec.More() {
		return eris.Wrap(model.ErrValidation, "decision: trailing data")
	}
	return nil
}

// Validate checks a record against the decision schema. It does not check
// membership in any batch; see attribution.CheckDecision.
func Validate(rec model.DecisionRecord) error {
	if err := validate.Struct(rec); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Namespace()+":"+fe.Tag())
			}
			return eris.Wrapf(model.ErrValidation, "decision: %s", strings.Join(fields, ", "))
		}
		return eris.Wrapf(model.ErrValidation, "decision: %v", err)
	}
	for _, id := range rec.ConsiderationSet {
		if id == model.NoPurchase {
			return eris.Wrap(model.ErrValidation, "decision: no_purchase cannot be in the consideration set")
		}
	}
	return nil
}

// StripFences removes a surrounding markdown code fence, with or without a
// language tag, and trims whitespace.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "```json"); i >= 0 {
		s = s[i+len("```json"):]
	} else if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+len("```"):]
	} else {
		return s
	}
	if j := strings.Index(s, "```"); j >= 0 {
		s = s[:j]
	}
	return strings.TrimSpace(s)
}

// BatchIDFromPath derives a batch ID from an artifact file path such as
// data/experiments/<batch_id>.json.
func BatchIDFromPath(p string) string {
	if i := strings.LastIndexAny(p, `/\`); i >= 0 {
		p = p[i+1:]
	}
	return strings.TrimSuffix(p, ".json")
}

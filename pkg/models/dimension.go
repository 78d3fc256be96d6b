package models

import "time"

// MergeOutcome is the explicit result variant of an SCD2 merge.
type MergeOutcome string

const (
	// MergeOutcomeNoChange means the incoming snapshot matched the current
	// version on every tracked attribute; nothing was written.
	MergeOutcomeNoChange MergeOutcome = "no_change"
	// MergeOutcomeNewVersion means tracked attributes drifted; the current
	// row was expired and a new current row inserted atomically.
	MergeOutcomeNewVersion MergeOutcome = "new_version"
	// MergeOutcomeNewEntity means the business key had never been seen.
	MergeOutcomeNewEntity MergeOutcome = "new_entity"
)

// MergeResult is returned from a dimension merge.
type MergeResult struct {
	Outcome      MergeOutcome `json:"outcome"`
	BusinessKey  string       `json:"business_key"`
	SurrogateKey int64        `json:"surrogate_key,omitempty"` // zero for NoChange
}

// DimensionSnapshot is an incoming entity state prepared for merging.
// Tracked holds the attributes whose drift creates a new version; the set is
// configuration, not code. Extra holds attributes loaded on first sighting
// only and never compared.
type DimensionSnapshot struct {
	BusinessKey string
	Tracked     map[string]string
	Extra       map[string]any
}

// TrackedEquals reports whether every tracked attribute matches the other
// set by exact string equality. Both directions are checked so an added or
// removed attribute also counts as drift.
func (s DimensionSnapshot) TrackedEquals(other map[string]string) bool {
	if len(s.Tracked) != len(other) {
		return false
	}
	for k, v := range s.Tracked {
		if ov, ok := other[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// DimensionVersion is one historized row of a dimension: a snapshot plus its
// surrogate key and validity window. Exactly one version per business key is
// current at any time; expired versions are never mutated or deleted.
type DimensionVersion struct {
	SurrogateKey   int64             `json:"surrogate_key"`
	BusinessKey    string            `json:"business_key"`
	Tracked        map[string]string `json:"tracked"`
	Extra          map[string]any    `json:"extra,omitempty"`
	EffectiveDate  time.Time         `json:"effective_date"`
	ExpirationDate *time.Time        `json:"expiration_date,omitempty"` // nil while current
	IsCurrent      bool              `json:"is_current"`
}

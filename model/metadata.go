package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"

	"github.com/castrolol/editalgraph/helper"
)

// Metadata represents JSONB metadata stored in PostgreSQL.
// Entity metadata is a free bag keyed by the extractor; the typed
// accessors below decode the known shapes per entity type.
type Metadata map[string]interface{}

// Value implements the driver.Valuer interface for database storage
func (m Metadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

// Scan implements the sql.Scanner interface for database retrieval
func (m *Metadata) Scan(value interface{}) error {
	if value == nil {
		*m = Metadata{}
		return nil
	}

	b, ok := value.([]byte)
	if !ok {
		return helper.NewError("byte assertion", errors.New("type assertion to []byte failed"))
	}

	return json.Unmarshal(b, m)
}

// ObligationDetails is the known metadata shape for obligation entities.
type ObligationDetails struct {
	Party     string `json:"party,omitempty"`
	Frequency string `json:"frequency,omitempty"`
	Deadline  string `json:"deadline,omitempty"`
}

// RequirementDetails is the known metadata shape for requirement and
// mandatory-document entities. Category and RelatedItem also feed the
// composite normalized value built by the unification engine.
type RequirementDetails struct {
	Category    string `json:"category,omitempty"`
	RelatedItem string `json:"related_item,omitempty"`
	Mandatory   bool   `json:"mandatory,omitempty"`
}

// ObligationDetails decodes the obligation shape from the metadata bag.
// Returns false when the bag carries none of the obligation fields.
func (m Metadata) ObligationDetails() (ObligationDetails, bool) {
	var d ObligationDetails
	if !m.decodeInto(&d) {
		return d, false
	}
	return d, d.Party != "" || d.Frequency != "" || d.Deadline != ""
}

// RequirementDetails decodes the requirement shape from the metadata bag.
func (m Metadata) RequirementDetails() (RequirementDetails, bool) {
	var d RequirementDetails
	if !m.decodeInto(&d) {
		return d, false
	}
	return d, d.Category != "" || d.RelatedItem != ""
}

func (m Metadata) decodeInto(dst interface{}) bool {
	if len(m) == 0 {
		return false
	}
	b, err := json.Marshal(m)
	if err != nil {
		return false
	}
	return json.Unmarshal(b, dst) == nil
}

// scanJSONB is the shared sql.Scanner body for the JSONB list types.
func scanJSONB(dst interface{}, value interface{}) error {
	if value == nil {
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return helper.NewError("byte assertion", errors.New("type assertion to []byte failed"))
	}
	return json.Unmarshal(b, dst)
}

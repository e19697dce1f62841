package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EntityType classifies an extracted fact.
type EntityType string

const (
	EntityTypeDeadline             EntityType = "deadline"
	EntityTypeMonetary             EntityType = "monetary"
	EntityTypeDate                 EntityType = "date"
	EntityTypeObligation           EntityType = "obligation"
	EntityTypeRequirement          EntityType = "requirement"
	EntityTypePenalty              EntityType = "penalty"
	EntityTypeSanction             EntityType = "sanction"
	EntityTypeRisk                 EntityType = "risk"
	EntityTypeDeliveryRule         EntityType = "delivery_rule"
	EntityTypeTechnicalCertificate EntityType = "technical_certificate"
	EntityTypeMandatoryDocument    EntityType = "mandatory_document"
	EntityTypeOther                EntityType = "other"
)

// Source is an immutable provenance record for an extracted value.
// Sources are append-only and deduplicated by (page_number, excerpt).
type Source struct {
	PageNumber int     `json:"page_number"`
	Excerpt    string  `json:"excerpt"`
	Confidence float64 `json:"confidence"`
}

// SourceList is the JSONB column type for entity sources.
type SourceList []Source

func (s SourceList) Value() (driver.Value, error) {
	if s == nil {
		s = SourceList{}
	}
	return json.Marshal(s)
}

func (s *SourceList) Scan(value interface{}) error {
	return scanJSONB(s, value)
}

// Contains reports whether a source with the same page and excerpt is
// already present.
func (s SourceList) Contains(src Source) bool {
	for _, existing := range s {
		if existing.PageNumber == src.PageNumber && existing.Excerpt == src.Excerpt {
			return true
		}
	}
	return false
}

// RelatedEntity is a resolved directed reference to another entity.
type RelatedEntity struct {
	TargetRID uuid.UUID `json:"target_rid"`
	Kind      string    `json:"kind"`
}

// RelatedEntityList is the JSONB column type for resolved relationships.
type RelatedEntityList []RelatedEntity

func (r RelatedEntityList) Value() (driver.Value, error) {
	if r == nil {
		r = RelatedEntityList{}
	}
	return json.Marshal(r)
}

func (r *RelatedEntityList) Scan(value interface{}) error {
	return scanJSONB(r, value)
}

// ExtractedEntity is a deduplicated fact extracted from a document.
// (document_rid, semantic_key) is unique: at most one entity exists per
// semantic identity per document.
type ExtractedEntity struct {
	ID              int64             `json:"id"`
	RID             uuid.UUID         `json:"rid"`
	DocumentRID     uuid.UUID         `json:"document_rid"`
	Type            EntityType        `json:"entity_type"`
	SemanticKey     string            `json:"semantic_key"`
	Name            string            `json:"name"`
	RawValue        string            `json:"raw_value"`
	NormalizedValue string            `json:"normalized_value"`
	SectionRID      *uuid.UUID        `json:"section_rid,omitempty"`
	Metadata        Metadata          `json:"metadata,omitempty"`
	Sources         SourceList        `json:"sources"`
	RelatedEntities RelatedEntityList `json:"related_entities,omitempty"`
	Confidence      float64           `json:"confidence"`
	Embedding       []float32         `json:"embedding,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	// Results
	Similarity float64 `json:"similarity,omitempty"`
}

// ConflictResolution is the recorded outcome of a value conflict.
type ConflictResolution string

const (
	ResolutionKeptExisting         ConflictResolution = "kept_existing"
	ResolutionReplacedWithIncoming ConflictResolution = "replaced_with_incoming"
)

// EntityConflict is an immutable audit record written whenever two
// batches disagree on a semantic key's value beyond tolerance.
type EntityConflict struct {
	ID                 int64              `json:"id"`
	DocumentRID        uuid.UUID          `json:"document_rid"`
	SemanticKey        string             `json:"semantic_key"`
	ExistingValue      string             `json:"existing_value"`
	IncomingValue      string             `json:"incoming_value"`
	ExistingConfidence float64            `json:"existing_confidence"`
	IncomingConfidence float64            `json:"incoming_confidence"`
	Resolution         ConflictResolution `json:"resolution"`
	DetectedAt         time.Time          `json:"detected_at"`
}

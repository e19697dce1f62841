package model

import (
	"strings"

	"github.com/google/uuid"
)

// The raw candidate types mirror what the upstream extraction call
// produces per batch. They are untrusted, partially malformed input:
// absent optional fields fall back to documented defaults and never
// abort a batch.

// RelatedKey is a declared reference to another candidate by semantic key.
type RelatedKey struct {
	SemanticKey string `json:"semantic_key"`
	Kind        string `json:"kind"`
}

// RawEntity is one candidate fact from the extractor.
type RawEntity struct {
	Type                EntityType   `json:"type"`
	Name                string       `json:"name"`
	RawValue            string       `json:"raw_value"`
	SemanticKey         string       `json:"semantic_key"`
	Metadata            Metadata     `json:"metadata,omitempty"`
	Confidence          float64      `json:"confidence,omitempty"`
	PageNumber          int          `json:"page_number"`
	SectionRID          *uuid.UUID   `json:"section_rid,omitempty"`
	ExcerptText         string       `json:"excerpt_text,omitempty"`
	RelatedSemanticKeys []RelatedKey `json:"related_semantic_keys,omitempty"`
}

// RawSection is one candidate section declaration from the extractor.
// Sections arrive in arbitrary order; parent links are declared by
// number, not by id.
type RawSection struct {
	Level        SectionLevel `json:"level"`
	Number       string       `json:"number,omitempty"`
	Title        string       `json:"title"`
	ParentNumber string       `json:"parent_number,omitempty"`
	Summary      string       `json:"summary,omitempty"`
	PageNumber   int          `json:"page_number"`
	LineStart    int          `json:"line_start,omitempty"`
	LineEnd      int          `json:"line_end,omitempty"`
}

// RawRelativeRef is a declared anchor for a relative event.
type RawRelativeRef struct {
	AnchorKey string `json:"anchor_key"`
	Offset    int    `json:"offset"`
	Unit      string `json:"unit"`
	Direction string `json:"direction"`
}

// RawTimelineEvent is one candidate event from the extractor.
// DateNormalized is produced upstream by the same date normalizer the
// unification engine uses.
type RawTimelineEvent struct {
	DateRaw               string          `json:"date_raw"`
	DateNormalized        string          `json:"date_normalized,omitempty"`
	DateType              DateType        `json:"date_type"`
	EventType             string          `json:"event_type"`
	Title                 string          `json:"title"`
	Description           string          `json:"description,omitempty"`
	Importance            Importance      `json:"importance,omitempty"`
	LinkedPenaltyKeys     []string        `json:"linked_penalty_keys,omitempty"`
	LinkedRequirementKeys []string        `json:"linked_requirement_keys,omitempty"`
	LinkedObligationKeys  []string        `json:"linked_obligation_keys,omitempty"`
	LinkedRiskKeys        []string        `json:"linked_risk_keys,omitempty"`
	RelativeTo            *RawRelativeRef `json:"relative_to,omitempty"`
	SourceSemanticKey     string          `json:"source_semantic_key,omitempty"`
	Tags                  []string        `json:"tags,omitempty"`
	PageNumber            int             `json:"page_number"`
	Excerpt               string          `json:"excerpt,omitempty"`
	Confidence            float64         `json:"confidence,omitempty"`
}

// RawBatch is one unit of extraction output (one page or page group).
type RawBatch struct {
	Entities []RawEntity        `json:"entities"`
	Sections []RawSection       `json:"sections"`
	Events   []RawTimelineEvent `json:"events"`
}

// ApplyDefaults fills the documented fallbacks for absent optional
// fields so later stages never have to guard against them.
func (b *RawBatch) ApplyDefaults(defaultConfidence float64) {
	for i := range b.Entities {
		e := &b.Entities[i]
		e.SemanticKey = strings.TrimSpace(e.SemanticKey)
		if e.Confidence <= 0 {
			e.Confidence = defaultConfidence
		}
		if e.Metadata == nil {
			e.Metadata = Metadata{}
		}
		if e.Type == "" {
			e.Type = EntityTypeOther
		}
	}
	for i := range b.Sections {
		s := &b.Sections[i]
		s.Number = strings.TrimSpace(s.Number)
		s.ParentNumber = strings.TrimSpace(s.ParentNumber)
	}
	for i := range b.Events {
		e := &b.Events[i]
		if e.Confidence <= 0 {
			e.Confidence = defaultConfidence
		}
		if e.Importance == "" {
			e.Importance = ImportanceMedium
		}
		if e.DateType == "" {
			e.DateType = DateTypeFixed
		}
	}
}

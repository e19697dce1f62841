package model

import "github.com/google/uuid"

// UnifyResult is the outcome of one unification batch. It is always
// returned on success, even when every item was low quality.
type UnifyResult struct {
	Entities          []*ExtractedEntity   `json:"entities"`
	Created           int                  `json:"created"`
	Updated           int                  `json:"updated"`
	Skipped           int                  `json:"skipped"`
	ConflictsResolved int                  `json:"conflicts_resolved"`
	Conflicts         []*EntityConflict    `json:"conflicts"`
	IDMap             map[string]uuid.UUID `json:"-"`
}

// BatchResult aggregates the three pipeline stages for one batch.
type BatchResult struct {
	Unify    *UnifyResult       `json:"unify"`
	Sections []*DocumentSection `json:"sections"`
	Events   []*TimelineEvent   `json:"events"`
}

// StructureStats summarizes a document's section forest.
type StructureStats struct {
	Total    int                  `json:"total"`
	ByLevel  map[SectionLevel]int `json:"by_level"`
	Roots    int                  `json:"roots"`
	MaxDepth int                  `json:"max_depth"`
}

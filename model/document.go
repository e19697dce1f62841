package model

import (
	"time"

	"github.com/google/uuid"
)

// Document represents one procurement document under processing.
// All extracted entities, sections and timeline events are scoped by
// the document RID and are deleted with it.
type Document struct {
	ID        int64     `json:"id"`
	RID       uuid.UUID `json:"rid"`
	Title     string    `json:"title"`
	Source    string    `json:"source,omitempty"`
	Metadata  Metadata  `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

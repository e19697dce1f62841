package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SectionLevel is the declared depth of a document section.
type SectionLevel string

const (
	LevelChapter   SectionLevel = "CHAPTER"
	LevelSection   SectionLevel = "SECTION"
	LevelClause    SectionLevel = "CLAUSE"
	LevelSubclause SectionLevel = "SUBCLAUSE"
	LevelItem      SectionLevel = "ITEM"
)

var levelRanks = map[SectionLevel]int{
	LevelChapter:   1,
	LevelSection:   2,
	LevelClause:    3,
	LevelSubclause: 4,
	LevelItem:      5,
}

// Rank returns the processing rank of the level, CHAPTER=1 through
// ITEM=5. Unknown levels rank after ITEM so they are created last and
// can still attach to any declared parent.
func (l SectionLevel) Rank() int {
	if rank, ok := levelRanks[l]; ok {
		return rank
	}
	return len(levelRanks) + 1
}

// IntList is the JSONB column type for page number sets.
type IntList []int

func (l IntList) Value() (driver.Value, error) {
	if l == nil {
		l = IntList{}
	}
	return json.Marshal(l)
}

func (l *IntList) Scan(value interface{}) error {
	return scanJSONB(l, value)
}

// Contains reports whether the list already holds n.
func (l IntList) Contains(n int) bool {
	for _, v := range l {
		if v == n {
			return true
		}
	}
	return false
}

// DocumentSection is one node of a document's structure forest.
// Parent pointers are acyclic; nodes without a parent are roots.
// Order is the processing-sequence index assigned at creation and is
// never re-sorted.
type DocumentSection struct {
	ID          int64        `json:"id"`
	RID         uuid.UUID    `json:"rid"`
	DocumentRID uuid.UUID    `json:"document_rid"`
	Level       SectionLevel `json:"level"`
	ParentRID   *uuid.UUID   `json:"parent_rid,omitempty"`
	Order       int          `json:"order"`
	Title       string       `json:"title"`
	Number      string       `json:"number,omitempty"`
	Summary     string       `json:"summary,omitempty"`
	SourcePages IntList      `json:"source_pages"`
	CreatedAt   time.Time    `json:"created_at"`
}

// SectionNode is a section with its attached children, as returned by
// the hierarchy tree view.
type SectionNode struct {
	*DocumentSection
	Children []*SectionNode `json:"children"`
}

package structure

import (
	"context"
	"log/slog"
	"sort"

	"github.com/castrolol/editalgraph/database"
	"github.com/castrolol/editalgraph/helper"
	"github.com/castrolol/editalgraph/model"
	"github.com/google/uuid"
)

// Builder assembles a document's section forest from flat, possibly
// out-of-order section declarations and exposes its read views.
type Builder struct {
	sections database.SectionsDBHandlerFunctions
	logger   *slog.Logger
}

// NewBuilder creates a new structure builder
func NewBuilder(sections database.SectionsDBHandlerFunctions, logger *slog.Logger) *Builder {
	return &Builder{
		sections: sections,
		logger:   logger,
	}
}

// ProcessSections creates the sections of one batch. Candidates are
// stable-sorted by level rank so a section can only reference a parent
// that was already created; parent links are resolved through a
// number→RID map fed by this and all previous batches. A parent number
// that does not resolve makes the section a root, silently: that is
// extraction noise, not an error.
func (b *Builder) ProcessSections(ctx context.Context, documentRID uuid.UUID, raws []model.RawSection) ([]*model.DocumentSection, error) {
	if err := ctx.Err(); err != nil {
		return nil, helper.NewError("process sections", err)
	}

	existing, err := b.sections.SelectSectionsByDocument(documentRID)
	if err != nil {
		return nil, helper.NewError("select sections by document", err)
	}

	numberToRID := make(map[string]uuid.UUID, len(existing))
	nextOrder := 0
	for _, section := range existing {
		if section.Number != "" {
			numberToRID[section.Number] = section.RID
		}
		if section.Order >= nextOrder {
			nextOrder = section.Order + 1
		}
	}

	// Stable sort keeps declaration order within a level.
	ordered := make([]model.RawSection, len(raws))
	copy(ordered, raws)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Level.Rank() < ordered[j].Level.Rank()
	})

	var created []*model.DocumentSection
	for i := range ordered {
		raw := &ordered[i]

		section := &model.DocumentSection{
			DocumentRID: documentRID,
			Level:       raw.Level,
			Order:       nextOrder,
			Title:       raw.Title,
			Number:      raw.Number,
			Summary:     raw.Summary,
		}
		if raw.PageNumber > 0 {
			section.SourcePages = model.IntList{raw.PageNumber}
		}
		if raw.ParentNumber != "" {
			if parentRID, ok := numberToRID[raw.ParentNumber]; ok {
				section.ParentRID = &parentRID
			}
		}

		err = b.sections.InsertSection(section)
		if err != nil {
			return nil, helper.NewError("insert section", err)
		}

		nextOrder++
		if section.Number != "" {
			numberToRID[section.Number] = section.RID
		}
		created = append(created, section)
	}

	b.logger.Info("Processed sections",
		slog.String("document", documentRID.String()),
		slog.Int("created", len(created)),
	)

	return created, nil
}

// SectionsByDocument returns the flat view in creation order.
func (b *Builder) SectionsByDocument(documentRID uuid.UUID) ([]*model.DocumentSection, error) {
	sections, err := b.sections.SelectSectionsByDocument(documentRID)
	if err != nil {
		return nil, helper.NewError("select sections by document", err)
	}
	return sections, nil
}

// HierarchyTree assembles the section forest. Assembly is iterative
// over a parent→children index, so documents with thousands of nodes
// cannot overflow the stack.
func (b *Builder) HierarchyTree(documentRID uuid.UUID) ([]*model.SectionNode, error) {
	sections, err := b.sections.SelectSectionsByDocument(documentRID)
	if err != nil {
		return nil, helper.NewError("select sections by document", err)
	}

	nodes := make(map[uuid.UUID]*model.SectionNode, len(sections))
	for _, section := range sections {
		nodes[section.RID] = &model.SectionNode{DocumentSection: section}
	}

	var roots []*model.SectionNode
	for _, section := range sections {
		node := nodes[section.RID]
		if section.ParentRID == nil {
			roots = append(roots, node)
			continue
		}
		parent, ok := nodes[*section.ParentRID]
		if !ok {
			// Parent was deleted or never stored; treat as root.
			roots = append(roots, node)
			continue
		}
		parent.Children = append(parent.Children, node)
	}

	return roots, nil
}

// SectionPath returns the breadcrumb of a section, root first, the
// section itself last.
func (b *Builder) SectionPath(documentRID uuid.UUID, sectionRID uuid.UUID) ([]*model.DocumentSection, error) {
	sections, err := b.sections.SelectSectionsByDocument(documentRID)
	if err != nil {
		return nil, helper.NewError("select sections by document", err)
	}

	byRID := make(map[uuid.UUID]*model.DocumentSection, len(sections))
	for _, section := range sections {
		byRID[section.RID] = section
	}

	current, ok := byRID[sectionRID]
	if !ok {
		return nil, nil
	}

	var path []*model.DocumentSection
	visited := make(map[uuid.UUID]bool)
	for current != nil {
		if visited[current.RID] {
			break
		}
		visited[current.RID] = true
		path = append([]*model.DocumentSection{current}, path...)

		if current.ParentRID == nil {
			break
		}
		current = byRID[*current.ParentRID]
	}

	return path, nil
}

// StructureStats summarizes the forest. Depths are memoized so the
// walk stays O(n) even for deep documents.
func (b *Builder) StructureStats(documentRID uuid.UUID) (*model.StructureStats, error) {
	sections, err := b.sections.SelectSectionsByDocument(documentRID)
	if err != nil {
		return nil, helper.NewError("select sections by document", err)
	}

	stats := &model.StructureStats{
		Total:   len(sections),
		ByLevel: map[model.SectionLevel]int{},
	}

	byRID := make(map[uuid.UUID]*model.DocumentSection, len(sections))
	for _, section := range sections {
		byRID[section.RID] = section
	}

	depths := make(map[uuid.UUID]int, len(sections))
	var depthOf func(section *model.DocumentSection, seen map[uuid.UUID]bool) int
	depthOf = func(section *model.DocumentSection, seen map[uuid.UUID]bool) int {
		if depth, ok := depths[section.RID]; ok {
			return depth
		}
		depth := 1
		if section.ParentRID != nil && !seen[section.RID] {
			seen[section.RID] = true
			if parent, ok := byRID[*section.ParentRID]; ok {
				depth = depthOf(parent, seen) + 1
			}
		}
		depths[section.RID] = depth
		return depth
	}

	for _, section := range sections {
		stats.ByLevel[section.Level]++
		if section.ParentRID == nil {
			stats.Roots++
		}
		depth := depthOf(section, map[uuid.UUID]bool{})
		if depth > stats.MaxDepth {
			stats.MaxDepth = depth
		}
	}

	return stats, nil
}

// UpdateSummary replaces the summary of one section. Summaries are
// only ever mutated through the builder.
func (b *Builder) UpdateSummary(sectionRID uuid.UUID, summary string) error {
	err := b.sections.UpdateSectionSummary(sectionRID, summary)
	if err != nil {
		return helper.NewError("update section summary", err)
	}
	return nil
}

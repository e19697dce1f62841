// Package timeline turns raw event candidates into the date-ordered
// timeline of a document and computes its derived read views.
package timeline

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/castrolol/editalgraph/database"
	"github.com/castrolol/editalgraph/helper"
	"github.com/castrolol/editalgraph/model"
	"github.com/castrolol/editalgraph/normalize"
	"github.com/google/uuid"
)

// Resolver creates timeline events and resolves their semantic links
// against the entity id map of the owning document.
type Resolver struct {
	events database.EventsDBHandlerFunctions
	logger *slog.Logger
}

// NewResolver creates a new timeline resolver
func NewResolver(events database.EventsDBHandlerFunctions, logger *slog.Logger) *Resolver {
	return &Resolver{
		events: events,
		logger: logger,
	}
}

// ProcessEvents creates the events of one batch. Dates are taken from
// the upstream normalized form when present, otherwise re-derived from
// the raw fragment. Linked semantic keys, including the relative
// anchor, are resolved through idMap; a key that does not resolve is
// dropped without blocking creation.
func (r *Resolver) ProcessEvents(ctx context.Context, documentRID uuid.UUID, raws []model.RawTimelineEvent, idMap map[string]uuid.UUID) ([]*model.TimelineEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, helper.NewError("process events", err)
	}

	var created []*model.TimelineEvent
	dropped := 0
	for i := range raws {
		raw := &raws[i]

		phase := model.ClassifyPhase(raw.EventType)
		event := &model.TimelineEvent{
			DocumentRID:        documentRID,
			Date:               parseEventDate(raw),
			DateRaw:            raw.DateRaw,
			DateType:           raw.DateType,
			EventType:          raw.EventType,
			Phase:              phase,
			SemanticOrder:      phase.SemanticOrder(),
			Title:              raw.Title,
			Description:        raw.Description,
			Importance:         raw.Importance,
			LinkedPenalties:    resolveKeys(raw.LinkedPenaltyKeys, idMap, &dropped),
			LinkedRequirements: resolveKeys(raw.LinkedRequirementKeys, idMap, &dropped),
			LinkedObligations:  resolveKeys(raw.LinkedObligationKeys, idMap, &dropped),
			LinkedRisks:        resolveKeys(raw.LinkedRiskKeys, idMap, &dropped),
			Tags:               model.StringList(raw.Tags),
		}
		if raw.PageNumber > 0 {
			event.SourcePages = model.IntList{raw.PageNumber}
		}
		if raw.RelativeTo != nil {
			// An anchor key that does not resolve keeps the declared key
			// with a nil RID so an explicit relink can resolve it later.
			event.RelativeTo = &model.RelativeRef{
				AnchorKey: raw.RelativeTo.AnchorKey,
				Offset:    raw.RelativeTo.Offset,
				Unit:      raw.RelativeTo.Unit,
				Direction: raw.RelativeTo.Direction,
			}
			if anchorRID, ok := idMap[raw.RelativeTo.AnchorKey]; ok {
				event.RelativeTo.AnchorRID = anchorRID
			} else {
				dropped++
			}
		}

		err := r.events.InsertEvent(event)
		if err != nil {
			return nil, helper.NewError("insert event", err)
		}
		created = append(created, event)
	}

	r.logger.Info("Processed timeline events",
		slog.String("document", documentRID.String()),
		slog.Int("created", len(created)),
		slog.Int("droppedLinks", dropped),
	)

	return created, nil
}

// RelinkEvents re-resolves relative anchors whose key was unresolved
// at creation against a fresh id map. Returns how many anchors were
// newly resolved.
func (r *Resolver) RelinkEvents(ctx context.Context, documentRID uuid.UUID, idMap map[string]uuid.UUID) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, helper.NewError("relink events", err)
	}

	events, err := r.events.SelectEventsByDocument(documentRID)
	if err != nil {
		return 0, helper.NewError("select events by document", err)
	}

	resolved := 0
	for _, event := range events {
		if event.RelativeTo == nil || event.RelativeTo.AnchorRID != uuid.Nil {
			continue
		}
		anchorRID, ok := idMap[event.RelativeTo.AnchorKey]
		if !ok {
			continue
		}

		event.RelativeTo.AnchorRID = anchorRID
		err = r.events.UpdateEventLinks(event)
		if err != nil {
			return resolved, helper.NewError("update event links", err)
		}
		resolved++
	}

	if resolved > 0 {
		r.logger.Info("Relinked timeline events",
			slog.String("document", documentRID.String()),
			slog.Int("resolved", resolved),
		)
	}

	return resolved, nil
}

// EventsByDocument returns the stored order: date ascending with
// undated events last, phase order as the tie-break.
func (r *Resolver) EventsByDocument(documentRID uuid.UUID) ([]*model.TimelineEvent, error) {
	events, err := r.events.SelectEventsByDocument(documentRID)
	if err != nil {
		return nil, helper.NewError("select events by document", err)
	}
	return events, nil
}

// Buckets splits a document's events into the three ordering buckets.
// Every event lands in exactly one: relative events with an anchor are
// relative-resolved, dated events carry a concrete date, and the rest,
// including relative events whose anchor never resolved, are
// unresolved and excluded from date-ordered views.
func (r *Resolver) Buckets(documentRID uuid.UUID) (*model.TimelineBuckets, error) {
	events, err := r.events.SelectEventsByDocument(documentRID)
	if err != nil {
		return nil, helper.NewError("select events by document", err)
	}

	buckets := &model.TimelineBuckets{}
	for _, event := range events {
		switch {
		case event.DateType == model.DateTypeRelative && event.RelativeTo != nil && event.RelativeTo.AnchorRID != uuid.Nil:
			buckets.Relative = append(buckets.Relative, event)
		case event.DateType != model.DateTypeRelative && event.Date != nil:
			buckets.Dated = append(buckets.Dated, event)
		default:
			buckets.Unresolved = append(buckets.Unresolved, event)
		}
	}

	return buckets, nil
}

// Sort orders events in place by date ascending with undated events
// last; events sharing a date fall back to the fixed phase order, then
// to insertion order.
func Sort(events []*model.TimelineEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		switch {
		case a.Date == nil && b.Date == nil:
			// fall through to the phase tie-break
		case a.Date == nil:
			return false
		case b.Date == nil:
			return true
		case !a.Date.Equal(*b.Date):
			return a.Date.Before(*b.Date)
		}
		if a.SemanticOrder != b.SemanticOrder {
			return a.SemanticOrder < b.SemanticOrder
		}
		return a.ID < b.ID
	})
}

// Stats aggregates a document's events for the read views. Upcoming
// critical counts critical events dated at or after now.
func (r *Resolver) Stats(documentRID uuid.UUID, now time.Time) (*model.TimelineStats, error) {
	events, err := r.events.SelectEventsByDocument(documentRID)
	if err != nil {
		return nil, helper.NewError("select events by document", err)
	}

	stats := &model.TimelineStats{
		Total:        len(events),
		ByImportance: map[model.Importance]int{},
	}

	tagSet := map[string]bool{}
	for _, event := range events {
		stats.ByImportance[event.Importance]++
		if event.Importance == model.ImportanceCritical && event.Date != nil && !event.Date.Before(now) {
			stats.UpcomingCritical++
		}
		for _, tag := range event.Tags {
			tagSet[tag] = true
		}
	}

	stats.Tags = make([]string, 0, len(tagSet))
	for tag := range tagSet {
		stats.Tags = append(stats.Tags, tag)
	}
	sort.Strings(stats.Tags)

	return stats, nil
}

// Urgency derives the urgency view of one event against its siblings.
// It is computed at read time and never stored.
func Urgency(event *model.TimelineEvent, siblings []*model.TimelineEvent, now time.Time) model.Urgency {
	urgency := model.Urgency{
		HasPenalty: len(event.LinkedPenalties) > 0,
	}

	if event.Date != nil {
		days := int(event.Date.Sub(now).Hours() / 24)
		urgency.DaysUntilDeadline = &days
	}

	for _, sibling := range siblings {
		if sibling.RID == event.RID {
			continue
		}
		if sibling.RelativeTo != nil && sibling.RelativeTo.AnchorRID == event.RID {
			urgency.BlockingForOthers = true
			break
		}
	}

	return urgency
}

// BumpComments increments the comment counter of an event and returns
// the new count.
func (r *Resolver) BumpComments(eventRID uuid.UUID) (int, error) {
	count, err := r.events.BumpEventComments(eventRID)
	if err != nil {
		return 0, helper.NewError("bump event comments", err)
	}
	return count, nil
}

// resolveKeys maps semantic keys to RIDs, silently dropping keys that
// are not in the id map and duplicates of already resolved RIDs.
func resolveKeys(keys []string, idMap map[string]uuid.UUID, dropped *int) model.UUIDList {
	var rids model.UUIDList
	seen := map[uuid.UUID]bool{}
	for _, key := range keys {
		rid, ok := idMap[key]
		if !ok {
			*dropped++
			continue
		}
		if seen[rid] {
			continue
		}
		seen[rid] = true
		rids = append(rids, rid)
	}
	return rids
}

// parseEventDate prefers the upstream normalized date and falls back
// to re-normalizing the raw fragment. Returns nil when neither yields
// a parseable date.
func parseEventDate(raw *model.RawTimelineEvent) *time.Time {
	canonical := raw.DateNormalized
	if canonical == "" {
		normalized, ok := normalize.Date(raw.DateRaw)
		if !ok {
			return nil
		}
		canonical = normalized
	}

	date, err := time.Parse("2006-01-02", canonical)
	if err != nil {
		return nil
	}
	return &date
}

package unify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/castrolol/editalgraph/database"
	"github.com/castrolol/editalgraph/helper"
	"github.com/castrolol/editalgraph/model"
	"github.com/castrolol/editalgraph/normalize"
	"github.com/google/uuid"
)

// maxExcerptLength bounds stored source excerpts.
const maxExcerptLength = 300

// metadataPendingKeys is the metadata slot where declared references
// that could not be resolved in-batch are parked until RelinkDocument.
const metadataPendingKeys = "pending_related_keys"

// Engine deduplicates extracted entities by semantic key, resolves
// value conflicts by confidence and maintains the key arena used for
// relationship resolution. It never deletes an entity.
type Engine struct {
	entities  database.EntitiesDBHandlerFunctions
	conflicts database.ConflictsDBHandlerFunctions
	policy    model.UnificationPolicy
	logger    *slog.Logger
}

// NewEngine creates a new unification engine
func NewEngine(entities database.EntitiesDBHandlerFunctions, conflicts database.ConflictsDBHandlerFunctions, policy model.UnificationPolicy, logger *slog.Logger) *Engine {
	return &Engine{
		entities:  entities,
		conflicts: conflicts,
		policy:    policy,
		logger:    logger,
	}
}

// Unify processes one batch of raw candidate entities for a document.
// Pass 1 creates or merges every candidate and fills the semantic-key
// arena; pass 2 resolves declared references against the completed
// arena, so forward references within the batch work. Candidates with
// an empty semantic key are skipped, never fatal; only storage errors
// propagate.
func (e *Engine) Unify(ctx context.Context, documentRID uuid.UUID, batch []model.RawEntity) (*model.UnifyResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, helper.NewError("unify batch", err)
	}

	result := &model.UnifyResult{IDMap: map[string]uuid.UUID{}}

	for i := range batch {
		raw := &batch[i]
		if !normalize.ValidSemanticKey(raw.SemanticKey) {
			result.Skipped++
			e.logger.Debug("Skipping candidate without semantic key", slog.String("name", raw.Name))
			continue
		}

		entity, err := e.createOrMerge(documentRID, raw, result)
		if err != nil {
			return nil, err
		}

		result.IDMap[entity.SemanticKey] = entity.RID
		result.Entities = append(result.Entities, entity)
	}

	for i := range batch {
		raw := &batch[i]
		if len(raw.RelatedSemanticKeys) == 0 {
			continue
		}
		if _, ok := result.IDMap[raw.SemanticKey]; !ok {
			continue
		}

		err := e.resolveRelated(documentRID, raw, result.IDMap)
		if err != nil {
			return nil, err
		}
	}

	e.logger.Info("Unified batch",
		slog.String("document", documentRID.String()),
		slog.Int("created", result.Created),
		slog.Int("updated", result.Updated),
		slog.Int("skipped", result.Skipped),
		slog.Int("conflictsResolved", result.ConflictsResolved),
	)

	return result, nil
}

func (e *Engine) createOrMerge(documentRID uuid.UUID, raw *model.RawEntity, result *model.UnifyResult) (*model.ExtractedEntity, error) {
	normalized := e.normalizeForType(raw)
	source := model.Source{
		PageNumber: raw.PageNumber,
		Excerpt:    truncate(raw.ExcerptText, maxExcerptLength),
		Confidence: raw.Confidence,
	}

	existing, err := e.entities.SelectEntityByKey(documentRID, raw.SemanticKey)
	if err != nil {
		return nil, helper.NewError("select entity by key", err)
	}

	if existing == nil {
		entity := &model.ExtractedEntity{
			DocumentRID:     documentRID,
			Type:            raw.Type,
			SemanticKey:     raw.SemanticKey,
			Name:            raw.Name,
			RawValue:        raw.RawValue,
			NormalizedValue: normalized,
			SectionRID:      raw.SectionRID,
			Metadata:        raw.Metadata,
			Sources:         model.SourceList{source},
			Confidence:      raw.Confidence,
		}

		err = e.entities.InsertEntity(entity)
		if err != nil {
			return nil, helper.NewError("insert entity", err)
		}

		result.Created++
		return entity, nil
	}

	if e.withinTolerance(existing.NormalizedValue, normalized) {
		if !existing.Sources.Contains(source) {
			existing.Sources = append(existing.Sources, source)
			err = e.entities.UpdateEntitySources(existing.RID, existing.Sources)
			if err != nil {
				return nil, helper.NewError("update entity sources", err)
			}
		}

		result.Updated++
		return existing, nil
	}

	// True conflict. Resolution is strictly by greater incoming
	// confidence and always leaves an immutable audit record.
	conflict := &model.EntityConflict{
		DocumentRID:        documentRID,
		SemanticKey:        raw.SemanticKey,
		ExistingValue:      existing.NormalizedValue,
		IncomingValue:      normalized,
		ExistingConfidence: existing.Confidence,
		IncomingConfidence: raw.Confidence,
	}

	if !existing.Sources.Contains(source) {
		existing.Sources = append(existing.Sources, source)
	}

	if raw.Confidence > existing.Confidence {
		conflict.Resolution = model.ResolutionReplacedWithIncoming

		metadata := raw.Metadata
		if metadata == nil {
			metadata = model.Metadata{}
		}
		if pending, ok := existing.Metadata[metadataPendingKeys]; ok {
			if _, present := metadata[metadataPendingKeys]; !present {
				metadata[metadataPendingKeys] = pending
			}
		}

		existing.RawValue = raw.RawValue
		existing.NormalizedValue = normalized
		existing.Metadata = metadata
		existing.Confidence = raw.Confidence

		err = e.entities.UpdateEntityValue(existing)
		if err != nil {
			return nil, helper.NewError("update entity value", err)
		}
	} else {
		conflict.Resolution = model.ResolutionKeptExisting

		err = e.entities.UpdateEntitySources(existing.RID, existing.Sources)
		if err != nil {
			return nil, helper.NewError("update entity sources", err)
		}
	}

	err = e.conflicts.InsertConflict(conflict)
	if err != nil {
		return nil, helper.NewError("insert conflict", err)
	}

	result.ConflictsResolved++
	result.Conflicts = append(result.Conflicts, conflict)

	return existing, nil
}

func (e *Engine) resolveRelated(documentRID uuid.UUID, raw *model.RawEntity, idMap map[string]uuid.UUID) error {
	entity, err := e.entities.SelectEntityByKey(documentRID, raw.SemanticKey)
	if err != nil {
		return helper.NewError("select entity by key", err)
	}
	if entity == nil {
		return nil
	}

	related := entity.RelatedEntities
	pending := pendingKeysFrom(entity.Metadata)
	changed := false
	parked := false

	for _, ref := range raw.RelatedSemanticKeys {
		target, ok := idMap[ref.SemanticKey]
		if !ok {
			// Dangling in this batch; parked for an explicit relink.
			if !containsKey(pending, ref) {
				pending = append(pending, ref)
				parked = true
			}
			continue
		}

		resolved := model.RelatedEntity{TargetRID: target, Kind: ref.Kind}
		if !containsRelated(related, resolved) {
			related = append(related, resolved)
			changed = true
		}
	}

	if changed {
		err = e.entities.UpdateEntityRelated(entity.RID, related)
		if err != nil {
			return helper.NewError("update entity related", err)
		}
		entity.RelatedEntities = related
	}

	if parked {
		entity.Metadata = withPendingKeys(entity.Metadata, pending)
		err = e.entities.UpdateEntityValue(entity)
		if err != nil {
			return helper.NewError("update entity metadata", err)
		}
	}

	return nil
}

// RelinkDocument re-scans all entities of a document and resolves
// references that were dangling when their batch was processed.
// This is the explicit backfill for cross-batch forward references;
// it is never triggered implicitly. Returns the number of references
// resolved.
func (e *Engine) RelinkDocument(ctx context.Context, documentRID uuid.UUID) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, helper.NewError("relink document", err)
	}

	entities, err := e.entities.SelectEntitiesByDocument(documentRID)
	if err != nil {
		return 0, helper.NewError("select entities by document", err)
	}

	idMap := make(map[string]uuid.UUID, len(entities))
	for _, entity := range entities {
		idMap[entity.SemanticKey] = entity.RID
	}

	resolved := 0
	for _, entity := range entities {
		pending := pendingKeysFrom(entity.Metadata)
		if len(pending) == 0 {
			continue
		}

		related := entity.RelatedEntities
		var remaining []model.RelatedKey
		changed := false

		for _, ref := range pending {
			target, ok := idMap[ref.SemanticKey]
			if !ok {
				remaining = append(remaining, ref)
				continue
			}

			resolvedRef := model.RelatedEntity{TargetRID: target, Kind: ref.Kind}
			if !containsRelated(related, resolvedRef) {
				related = append(related, resolvedRef)
				changed = true
			}
			resolved++
		}

		if changed {
			err = e.entities.UpdateEntityRelated(entity.RID, related)
			if err != nil {
				return resolved, helper.NewError("update entity related", err)
			}
		}

		if len(remaining) != len(pending) {
			entity.Metadata = withPendingKeys(entity.Metadata, remaining)
			err = e.entities.UpdateEntityValue(entity)
			if err != nil {
				return resolved, helper.NewError("update entity metadata", err)
			}
		}
	}

	e.logger.Info("Relinked document",
		slog.String("document", documentRID.String()),
		slog.Int("resolved", resolved),
	)

	return resolved, nil
}

// DocumentIDMap builds the full semantic-key arena of a document from
// storage, for callers that need references across all batches.
func (e *Engine) DocumentIDMap(documentRID uuid.UUID) (map[string]uuid.UUID, error) {
	entities, err := e.entities.SelectEntitiesByDocument(documentRID)
	if err != nil {
		return nil, helper.NewError("select entities by document", err)
	}

	idMap := make(map[string]uuid.UUID, len(entities))
	for _, entity := range entities {
		idMap[entity.SemanticKey] = entity.RID
	}
	return idMap, nil
}

// normalizeForType canonicalizes a candidate's raw value per its
// declared type. Normalization never fails hard: when no pattern
// matches, the trimmed raw value is kept verbatim.
func (e *Engine) normalizeForType(raw *model.RawEntity) string {
	value := strings.TrimSpace(raw.RawValue)

	switch raw.Type {
	case model.EntityTypeDate, model.EntityTypeDeadline:
		if date, ok := normalize.Date(value); ok {
			return date
		}
		if days, business, ok := normalize.DaysPeriod(value); ok {
			return formatDays(days, business)
		}
		return value

	case model.EntityTypeDeliveryRule:
		if days, business, ok := normalize.DaysPeriod(value); ok {
			return formatDays(days, business)
		}
		if months, ok := normalize.WarrantyPeriod(value, e.policy.DayMonthDivisor); ok {
			return fmt.Sprintf("%d_MESES", months)
		}
		return value

	case model.EntityTypePenalty, model.EntityTypeSanction:
		if fraction, ok := normalize.Percentage(value); ok {
			return strconv.FormatFloat(fraction, 'f', -1, 64)
		}
		if amount, ok := normalize.Monetary(value); ok {
			return strconv.FormatFloat(amount, 'f', -1, 64)
		}
		return value

	case model.EntityTypeRequirement, model.EntityTypeMandatoryDocument, model.EntityTypeTechnicalCertificate:
		if details, ok := raw.Metadata.RequirementDetails(); ok {
			return normalize.Slug(details.Category + " " + details.RelatedItem)
		}
		return normalize.Slug(value)

	default:
		return normalize.Slug(value)
	}
}

// withinTolerance reports whether two normalized values are the same
// fact. Numeric values compare by relative difference against the
// larger magnitude; everything else compares stripped of
// non-alphanumerics and upper-cased.
func (e *Engine) withinTolerance(existing, incoming string) bool {
	a, errA := strconv.ParseFloat(existing, 64)
	b, errB := strconv.ParseFloat(incoming, 64)
	if errA == nil && errB == nil {
		if a == b {
			return true
		}
		larger := math.Max(math.Abs(a), math.Abs(b))
		if larger == 0 {
			return true
		}
		return math.Abs(a-b)/larger <= e.policy.MergeTolerance
	}

	return normalize.Comparable(existing) == normalize.Comparable(incoming)
}

func formatDays(days int, business bool) string {
	if business {
		return fmt.Sprintf("%d_DIAS_UTEIS", days)
	}
	return fmt.Sprintf("%d_DIAS", days)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

func containsRelated(list model.RelatedEntityList, ref model.RelatedEntity) bool {
	for _, existing := range list {
		if existing.TargetRID == ref.TargetRID && existing.Kind == ref.Kind {
			return true
		}
	}
	return false
}

func containsKey(list []model.RelatedKey, ref model.RelatedKey) bool {
	for _, existing := range list {
		if existing.SemanticKey == ref.SemanticKey && existing.Kind == ref.Kind {
			return true
		}
	}
	return false
}

// pendingKeysFrom decodes the parked references out of the metadata
// bag. The slot holds whatever JSON round-tripping produced, so it is
// re-marshalled into the typed form.
func pendingKeysFrom(metadata model.Metadata) []model.RelatedKey {
	value, ok := metadata[metadataPendingKeys]
	if !ok {
		return nil
	}

	b, err := json.Marshal(value)
	if err != nil {
		return nil
	}

	var keys []model.RelatedKey
	if json.Unmarshal(b, &keys) != nil {
		return nil
	}
	return keys
}

func withPendingKeys(metadata model.Metadata, pending []model.RelatedKey) model.Metadata {
	if metadata == nil {
		metadata = model.Metadata{}
	}
	if len(pending) == 0 {
		delete(metadata, metadataPendingKeys)
		return metadata
	}
	metadata[metadataPendingKeys] = pending
	return metadata
}

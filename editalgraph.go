package editalgraph

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/castrolol/editalgraph/core/pipeline"
	"github.com/castrolol/editalgraph/core/structure"
	"github.com/castrolol/editalgraph/core/timeline"
	"github.com/castrolol/editalgraph/core/unify"
	"github.com/castrolol/editalgraph/database"
	"github.com/castrolol/editalgraph/helper"
	"github.com/castrolol/editalgraph/model"
	loadSql "github.com/castrolol/editalgraph/sql"
	"github.com/google/uuid"
)

// Editalgraph provides a unified interface to the extraction pipeline
// and all database handlers
type Editalgraph struct {
	DB        *helper.Database
	Documents *database.DocumentsDBHandler
	Entities  *database.EntitiesDBHandler
	Conflicts *database.ConflictsDBHandler
	Sections  *database.SectionsDBHandler
	Events    *database.EventsDBHandler
	Unifier   *unify.Engine
	Structure *structure.Builder
	Timeline  *timeline.Resolver
	Pipeline  *pipeline.Pipeline // Optional extraction pipeline
	// Logging
	log    *slog.Logger
	policy model.UnificationPolicy
	// Per-document write serialization
	locksMu  sync.Mutex
	docLocks map[uuid.UUID]*sync.Mutex
}

// NewEditalgraph creates a new Editalgraph instance with all handlers
// initialized and the default unification policy
func NewEditalgraph(config *helper.DatabaseConfiguration, embeddingDim int) (*Editalgraph, error) {
	return NewEditalgraphWithPolicy(config, embeddingDim, model.DefaultPolicy())
}

// NewEditalgraphWithPolicy creates a new Editalgraph instance with an
// explicit unification policy
func NewEditalgraphWithPolicy(config *helper.DatabaseConfiguration, embeddingDim int, policy model.UnificationPolicy) (*Editalgraph, error) {
	// Logger
	opts := helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelInfo,
		},
	}
	logger := slog.New(helper.NewPrettyHandler(os.Stdout, opts))

	// Initialize database
	db := helper.NewDatabase("editalgraph", config, logger)
	err := loadSql.Init(db.Instance)
	if err != nil {
		return nil, helper.NewError("initialize database extensions", err)
	}

	// Create all handlers in the correct order (documents first, the
	// other tables reference them)
	// force=false to not reload if functions already exist
	documents, err := database.NewDocumentsDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create documents handler", err)
	}

	entities, err := database.NewEntitiesDBHandler(db, embeddingDim, false)
	if err != nil {
		return nil, helper.NewError("create entities handler", err)
	}

	conflicts, err := database.NewConflictsDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create conflicts handler", err)
	}

	sections, err := database.NewSectionsDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create sections handler", err)
	}

	events, err := database.NewEventsDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create events handler", err)
	}

	return &Editalgraph{
		DB:        db,
		Documents: documents,
		Entities:  entities,
		Conflicts: conflicts,
		Sections:  sections,
		Events:    events,
		Unifier:   unify.NewEngine(entities, conflicts, policy, logger),
		Structure: structure.NewBuilder(sections, logger),
		Timeline:  timeline.NewResolver(events, logger),
		log:       logger,
		policy:    policy,
		docLocks:  map[uuid.UUID]*sync.Mutex{},
	}, nil
}

// Close closes the database connection
func (e *Editalgraph) Close() error {
	if e.DB != nil && e.DB.Instance != nil {
		return e.DB.Instance.Close()
	}
	return nil
}

// SetPipeline sets the extraction pipeline for page processing
func (e *Editalgraph) SetPipeline(pipeline *pipeline.Pipeline) {
	e.Pipeline = pipeline
}

// UseDefaultEmbedder attaches the all-MiniLM-L6-v2 embedder (384
// dimensions) to the pipeline, creating an extractor-less pipeline if
// none is set yet
func (e *Editalgraph) UseDefaultEmbedder() error {
	embedder, err := pipeline.DefaultEmbedder()
	if err != nil {
		return helper.NewError("create default embedder", err)
	}

	if e.Pipeline == nil {
		e.Pipeline = pipeline.NewPipeline(nil)
	}
	e.Pipeline.SetEmbedder(embedder)
	return nil
}

// documentLock returns the mutex serializing writes for one document.
// Two concurrent batches for the same document must not race on the
// same semantic key; different documents proceed in parallel.
func (e *Editalgraph) documentLock(documentRID uuid.UUID) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()

	lock, ok := e.docLocks[documentRID]
	if !ok {
		lock = &sync.Mutex{}
		e.docLocks[documentRID] = lock
	}
	return lock
}

// CreateDocument registers a new procurement document
func (e *Editalgraph) CreateDocument(title string, source string, metadata model.Metadata) (*model.Document, error) {
	document := &model.Document{
		Title:    title,
		Source:   source,
		Metadata: metadata,
	}
	err := e.Documents.InsertDocument(document)
	if err != nil {
		return nil, helper.NewError("insert document", err)
	}

	e.log.Info("Created document", slog.String("document", document.RID.String()), slog.String("title", title))

	return document, nil
}

// ProcessBatch runs one extraction batch through unification, structure
// building and timeline resolution, in that order. Event links resolve
// against the full entity id map of the document, so keys created by
// earlier batches are visible. The batch is serialized per document.
func (e *Editalgraph) ProcessBatch(ctx context.Context, documentRID uuid.UUID, batch *model.RawBatch) (*model.BatchResult, error) {
	if batch == nil {
		return nil, helper.NewError("process batch", fmt.Errorf("batch is nil"))
	}

	lock := e.documentLock(documentRID)
	lock.Lock()
	defer lock.Unlock()

	batch.ApplyDefaults(e.policy.DefaultConfidence)

	unifyResult, err := e.Unifier.Unify(ctx, documentRID, batch.Entities)
	if err != nil {
		return nil, helper.NewError("unify batch", err)
	}

	sections, err := e.Structure.ProcessSections(ctx, documentRID, batch.Sections)
	if err != nil {
		return nil, helper.NewError("process sections", err)
	}

	var events []*model.TimelineEvent
	if len(batch.Events) > 0 {
		idMap, err := e.Unifier.DocumentIDMap(documentRID)
		if err != nil {
			return nil, helper.NewError("build id map", err)
		}

		events, err = e.Timeline.ProcessEvents(ctx, documentRID, batch.Events, idMap)
		if err != nil {
			return nil, helper.NewError("process events", err)
		}
	}

	return &model.BatchResult{
		Unify:    unifyResult,
		Sections: sections,
		Events:   events,
	}, nil
}

// ProcessPages extracts and processes document pages one batch per
// page using the configured pipeline
func (e *Editalgraph) ProcessPages(ctx context.Context, documentRID uuid.UUID, pages []pipeline.Page) ([]*model.BatchResult, error) {
	if e.Pipeline == nil {
		return nil, helper.NewError("process pages", fmt.Errorf("pipeline not set, use SetPipeline() first"))
	}

	var results []*model.BatchResult
	for _, page := range pages {
		batch, err := e.Pipeline.ExtractPage(ctx, page)
		if err != nil {
			return results, helper.NewError(fmt.Sprintf("extract page %d", page.Number), err)
		}

		result, err := e.ProcessBatch(ctx, documentRID, batch)
		if err != nil {
			return results, helper.NewError(fmt.Sprintf("process page %d", page.Number), err)
		}
		results = append(results, result)
	}

	return results, nil
}

// RelinkDocument re-scans a document and backfills entity references
// and event anchors that could not be resolved when their batch ran.
// Returns the number of newly resolved links.
func (e *Editalgraph) RelinkDocument(ctx context.Context, documentRID uuid.UUID) (int, error) {
	lock := e.documentLock(documentRID)
	lock.Lock()
	defer lock.Unlock()

	resolved, err := e.Unifier.RelinkDocument(ctx, documentRID)
	if err != nil {
		return resolved, helper.NewError("relink entities", err)
	}

	idMap, err := e.Unifier.DocumentIDMap(documentRID)
	if err != nil {
		return resolved, helper.NewError("build id map", err)
	}

	eventsResolved, err := e.Timeline.RelinkEvents(ctx, documentRID, idMap)
	if err != nil {
		return resolved + eventsResolved, helper.NewError("relink events", err)
	}

	return resolved + eventsResolved, nil
}

// EmbedDocumentEntities computes and stores embeddings for all entities
// of a document, overwriting stale ones. Returns how many entities were
// embedded.
func (e *Editalgraph) EmbedDocumentEntities(ctx context.Context, documentRID uuid.UUID) (int, error) {
	if e.Pipeline == nil || e.Pipeline.Embedder == nil {
		return 0, helper.NewError("embed entities", fmt.Errorf("pipeline with embedder not set, use SetPipeline() first"))
	}

	entities, err := e.Entities.SelectEntitiesByDocument(documentRID)
	if err != nil {
		return 0, helper.NewError("select entities by document", err)
	}

	embedded := 0
	for _, entity := range entities {
		if err := ctx.Err(); err != nil {
			return embedded, helper.NewError("embed entities", err)
		}

		embedding, err := e.Pipeline.Embedder(fmt.Sprintf("%s: %s", entity.Name, entity.RawValue))
		if err != nil {
			return embedded, helper.NewError("generate embedding", err)
		}

		err = e.Entities.UpdateEntityEmbedding(entity.RID, embedding)
		if err != nil {
			return embedded, helper.NewError("update entity embedding", err)
		}
		embedded++
	}

	return embedded, nil
}

// SearchEntities performs vector similarity search over a document's
// entities
func (e *Editalgraph) SearchEntities(ctx context.Context, documentRID uuid.UUID, query string, limit int) ([]*model.ExtractedEntity, error) {
	if e.Pipeline == nil || e.Pipeline.Embedder == nil {
		return nil, helper.NewError("search entities", fmt.Errorf("pipeline with embedder not set, use SetPipeline() first"))
	}
	if err := ctx.Err(); err != nil {
		return nil, helper.NewError("search entities", err)
	}

	embedding, err := e.Pipeline.Embedder(query)
	if err != nil {
		return nil, helper.NewError("generate embedding", err)
	}

	return e.Entities.SearchSimilarEntities(documentRID, embedding, limit)
}

// EntityByKey retrieves one entity by its semantic key, nil when absent
func (e *Editalgraph) EntityByKey(documentRID uuid.UUID, semanticKey string) (*model.ExtractedEntity, error) {
	return e.Entities.SelectEntityByKey(documentRID, semanticKey)
}

// EntitiesByType retrieves all entities of one type for a document
func (e *Editalgraph) EntitiesByType(documentRID uuid.UUID, entityType model.EntityType) ([]*model.ExtractedEntity, error) {
	return e.Entities.SelectEntitiesByType(documentRID, entityType)
}

// ConflictsByDocument retrieves the conflict audit trail of a document
func (e *Editalgraph) ConflictsByDocument(documentRID uuid.UUID) ([]*model.EntityConflict, error) {
	return e.Conflicts.SelectConflictsByDocument(documentRID)
}

// SectionTree returns the hierarchical section view of a document
func (e *Editalgraph) SectionTree(documentRID uuid.UUID) ([]*model.SectionNode, error) {
	return e.Structure.HierarchyTree(documentRID)
}

// SectionPath returns the breadcrumb of one section, root first
func (e *Editalgraph) SectionPath(documentRID uuid.UUID, sectionRID uuid.UUID) ([]*model.DocumentSection, error) {
	return e.Structure.SectionPath(documentRID, sectionRID)
}

// StructureStats summarizes a document's section forest
func (e *Editalgraph) StructureStats(documentRID uuid.UUID) (*model.StructureStats, error) {
	return e.Structure.StructureStats(documentRID)
}

// TimelineBuckets returns the dated/relative/unresolved event buckets
func (e *Editalgraph) TimelineBuckets(documentRID uuid.UUID) (*model.TimelineBuckets, error) {
	return e.Timeline.Buckets(documentRID)
}

// TimelineStats aggregates a document's events against now
func (e *Editalgraph) TimelineStats(documentRID uuid.UUID, now time.Time) (*model.TimelineStats, error) {
	return e.Timeline.Stats(documentRID, now)
}

// EventUrgency derives the urgency view of one event against its
// document siblings
func (e *Editalgraph) EventUrgency(documentRID uuid.UUID, eventRID uuid.UUID, now time.Time) (*model.Urgency, error) {
	events, err := e.Timeline.EventsByDocument(documentRID)
	if err != nil {
		return nil, err
	}

	for _, event := range events {
		if event.RID == eventRID {
			urgency := timeline.Urgency(event, events, now)
			return &urgency, nil
		}
	}

	return nil, helper.NewError("event urgency", fmt.Errorf("no event %s in document %s", eventRID, documentRID))
}

// BumpEventComments increments the comment counter of an event and
// returns the new count
func (e *Editalgraph) BumpEventComments(eventRID uuid.UUID) (int, error) {
	return e.Timeline.BumpComments(eventRID)
}

// DeleteDocument deletes a document and cascades to its entities,
// conflicts, sections and events
func (e *Editalgraph) DeleteDocument(documentRID uuid.UUID) error {
	err := e.Documents.DeleteDocument(documentRID)
	if err != nil {
		return helper.NewError("delete document", err)
	}

	e.locksMu.Lock()
	delete(e.docLocks, documentRID)
	e.locksMu.Unlock()

	return nil
}

// ChangeIndexType changes the entity vector index type between HNSW and IVFFlat
func (e *Editalgraph) ChangeIndexType(ctx context.Context, indexType string, params map[string]interface{}) error {
	return e.Entities.ChangeIndexType(ctx, indexType, params)
}

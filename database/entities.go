package database

import (
	"context"
	dbsql "database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/castrolol/editalgraph/helper"
	"github.com/castrolol/editalgraph/model"
	"github.com/castrolol/editalgraph/sql"
	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// EntitiesDBHandlerFunctions defines the interface for Entities database operations.
type EntitiesDBHandlerFunctions interface {
	InsertEntity(entity *model.ExtractedEntity) error
	SelectEntityByKey(documentRID uuid.UUID, semanticKey string) (*model.ExtractedEntity, error)
	SelectEntitiesByDocument(documentRID uuid.UUID) ([]*model.ExtractedEntity, error)
	SelectEntitiesByType(documentRID uuid.UUID, entityType model.EntityType) ([]*model.ExtractedEntity, error)
	SearchSimilarEntities(documentRID uuid.UUID, embedding []float32, limit int) ([]*model.ExtractedEntity, error)
	UpdateEntityValue(entity *model.ExtractedEntity) error
	UpdateEntitySources(rid uuid.UUID, sources model.SourceList) error
	UpdateEntityRelated(rid uuid.UUID, related model.RelatedEntityList) error
	UpdateEntityEmbedding(rid uuid.UUID, embedding []float32) error
	DeleteEntity(rid uuid.UUID) error
}

// EntitiesDBHandler handles entity-related database operations
type EntitiesDBHandler struct {
	db           *helper.Database
	embeddingDim int
}

// NewEntitiesDBHandler creates a new entities database handler.
// It initializes the database connection and loads entity-related SQL functions.
// The embedding dimension is fixed at table creation and must match the
// embedder used to fill the embedding column.
// If force is true, it will reload the SQL functions even if they already exist.
func NewEntitiesDBHandler(db *helper.Database, embeddingDim int, force bool) (*EntitiesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}
	if embeddingDim <= 0 {
		return nil, helper.NewError("embedding dimension validation", fmt.Errorf("embedding dimension must be positive, got %d", embeddingDim))
	}

	entitiesDbHandler := &EntitiesDBHandler{
		db:           db,
		embeddingDim: embeddingDim,
	}

	err := sql.LoadEntitiesSql(entitiesDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load entities sql", err)
	}

	err = entitiesDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized EntitiesDBHandler")

	return entitiesDbHandler, nil
}

// CreateTable creates the 'entities' table in the database.
// If the table already exists, it does not create it again.
// It also creates all necessary indexes.
func (h *EntitiesDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_entities($1);`, h.embeddingDim)
	if err != nil {
		log.Panicf("error initializing entities table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table entities")

	return nil
}

// InsertEntity inserts a new entity
func (h *EntitiesDBHandler) InsertEntity(entity *model.ExtractedEntity) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_entity($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entity.DocumentRID,
		entity.Type,
		entity.SemanticKey,
		entity.Name,
		entity.RawValue,
		entity.NormalizedValue,
		entity.SectionRID,
		entity.Metadata,
		entity.Sources,
		entity.Confidence,
	)

	err := scanEntity(row, entity)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectEntityByKey retrieves an entity by document RID and semantic key.
// Returns nil without error when no entity with that key exists; the
// unification hot path depends on the distinction.
func (h *EntitiesDBHandler) SelectEntityByKey(documentRID uuid.UUID, semanticKey string) (*model.ExtractedEntity, error) {
	entity := &model.ExtractedEntity{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_entity_by_key($1, $2)`,
		documentRID,
		semanticKey,
	)

	err := scanEntity(row, entity)
	if errors.Is(err, dbsql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return entity, nil
}

// SelectEntitiesByDocument retrieves all entities of a document
func (h *EntitiesDBHandler) SelectEntitiesByDocument(documentRID uuid.UUID) ([]*model.ExtractedEntity, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_entities_by_document($1)`,
		documentRID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var entities []*model.ExtractedEntity
	for rows.Next() {
		entity := &model.ExtractedEntity{}
		err := scanEntity(rows, entity)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		entities = append(entities, entity)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return entities, nil
}

// SelectEntitiesByType retrieves a document's entities of one type
func (h *EntitiesDBHandler) SelectEntitiesByType(documentRID uuid.UUID, entityType model.EntityType) ([]*model.ExtractedEntity, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_entities_by_type($1, $2)`,
		documentRID,
		entityType,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var entities []*model.ExtractedEntity
	for rows.Next() {
		entity := &model.ExtractedEntity{}
		err := scanEntity(rows, entity)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		entities = append(entities, entity)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return entities, nil
}

// SearchSimilarEntities retrieves a document's entities ranked by cosine
// similarity to the given embedding. Entities without an embedding are
// never returned.
func (h *EntitiesDBHandler) SearchSimilarEntities(documentRID uuid.UUID, embedding []float32, limit int) ([]*model.ExtractedEntity, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_entities_by_similarity($1, $2, $3)`,
		documentRID,
		pgvector.NewVector(embedding),
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var entities []*model.ExtractedEntity
	for rows.Next() {
		entity := &model.ExtractedEntity{}
		err := rows.Scan(
			&entity.ID,
			&entity.RID,
			&entity.DocumentRID,
			&entity.Type,
			&entity.SemanticKey,
			&entity.Name,
			&entity.RawValue,
			&entity.NormalizedValue,
			&entity.SectionRID,
			&entity.Metadata,
			&entity.Sources,
			&entity.RelatedEntities,
			&entity.Confidence,
			&entity.CreatedAt,
			&entity.UpdatedAt,
			&entity.Similarity,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		entities = append(entities, entity)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return entities, nil
}

// UpdateEntityValue updates the value, metadata, confidence and sources
// of an entity and scans the updated row back into the struct.
func (h *EntitiesDBHandler) UpdateEntityValue(entity *model.ExtractedEntity) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM update_entity_value($1, $2, $3, $4, $5, $6)`,
		entity.RID,
		entity.RawValue,
		entity.NormalizedValue,
		entity.Metadata,
		entity.Confidence,
		entity.Sources,
	)

	err := scanEntity(row, entity)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// UpdateEntitySources replaces the sources of an entity
func (h *EntitiesDBHandler) UpdateEntitySources(rid uuid.UUID, sources model.SourceList) error {
	_, err := h.db.Instance.Exec(
		`SELECT update_entity_sources($1, $2)`,
		rid,
		sources,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// UpdateEntityRelated replaces the resolved relationships of an entity
func (h *EntitiesDBHandler) UpdateEntityRelated(rid uuid.UUID, related model.RelatedEntityList) error {
	_, err := h.db.Instance.Exec(
		`SELECT update_entity_related($1, $2)`,
		rid,
		related,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// UpdateEntityEmbedding sets the embedding of an entity
func (h *EntitiesDBHandler) UpdateEntityEmbedding(rid uuid.UUID, embedding []float32) error {
	_, err := h.db.Instance.Exec(
		`SELECT update_entity_embedding($1, $2)`,
		rid,
		pgvector.NewVector(embedding),
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// DeleteEntity deletes an entity by RID
func (h *EntitiesDBHandler) DeleteEntity(rid uuid.UUID) error {
	_, err := h.db.Instance.Exec(
		`SELECT delete_entity($1)`,
		rid,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntity(row rowScanner, entity *model.ExtractedEntity) error {
	return row.Scan(
		&entity.ID,
		&entity.RID,
		&entity.DocumentRID,
		&entity.Type,
		&entity.SemanticKey,
		&entity.Name,
		&entity.RawValue,
		&entity.NormalizedValue,
		&entity.SectionRID,
		&entity.Metadata,
		&entity.Sources,
		&entity.RelatedEntities,
		&entity.Confidence,
		&entity.CreatedAt,
		&entity.UpdatedAt,
	)
}

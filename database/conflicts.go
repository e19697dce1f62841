package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/castrolol/editalgraph/helper"
	"github.com/castrolol/editalgraph/model"
	"github.com/castrolol/editalgraph/sql"
	"github.com/google/uuid"
)

// ConflictsDBHandlerFunctions defines the interface for Conflicts database operations.
type ConflictsDBHandlerFunctions interface {
	InsertConflict(conflict *model.EntityConflict) error
	SelectConflictsByDocument(documentRID uuid.UUID) ([]*model.EntityConflict, error)
}

// ConflictsDBHandler handles conflict-related database operations
type ConflictsDBHandler struct {
	db *helper.Database
}

// NewConflictsDBHandler creates a new conflicts database handler.
// It initializes the database connection and loads conflict-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewConflictsDBHandler(db *helper.Database, force bool) (*ConflictsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	conflictsDbHandler := &ConflictsDBHandler{
		db: db,
	}

	err := sql.LoadConflictsSql(conflictsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load conflicts sql", err)
	}

	err = conflictsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized ConflictsDBHandler")

	return conflictsDbHandler, nil
}

// CreateTable creates the 'entity_conflicts' table in the database.
// If the table already exists, it does not create it again.
// It also creates all necessary indexes.
func (h *ConflictsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_conflicts();`)
	if err != nil {
		log.Panicf("error initializing entity_conflicts table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table entity_conflicts")

	return nil
}

// InsertConflict inserts a new conflict audit record
func (h *ConflictsDBHandler) InsertConflict(conflict *model.EntityConflict) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_conflict($1, $2, $3, $4, $5, $6, $7)`,
		conflict.DocumentRID,
		conflict.SemanticKey,
		conflict.ExistingValue,
		conflict.IncomingValue,
		conflict.ExistingConfidence,
		conflict.IncomingConfidence,
		conflict.Resolution,
	)

	err := row.Scan(
		&conflict.ID,
		&conflict.DocumentRID,
		&conflict.SemanticKey,
		&conflict.ExistingValue,
		&conflict.IncomingValue,
		&conflict.ExistingConfidence,
		&conflict.IncomingConfidence,
		&conflict.Resolution,
		&conflict.DetectedAt,
	)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectConflictsByDocument retrieves all conflicts of a document in
// detection order
func (h *ConflictsDBHandler) SelectConflictsByDocument(documentRID uuid.UUID) ([]*model.EntityConflict, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_conflicts_by_document($1)`,
		documentRID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var conflicts []*model.EntityConflict
	for rows.Next() {
		conflict := &model.EntityConflict{}
		err := rows.Scan(
			&conflict.ID,
			&conflict.DocumentRID,
			&conflict.SemanticKey,
			&conflict.ExistingValue,
			&conflict.IncomingValue,
			&conflict.ExistingConfidence,
			&conflict.IncomingConfidence,
			&conflict.Resolution,
			&conflict.DetectedAt,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		conflicts = append(conflicts, conflict)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return conflicts, nil
}

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
)

// SectionsDBHandlerFunctions defines the interface for Sections database operations.
type SectionsDBHandlerFunctions interface {
	InsertSection(section *model.DocumentSection) error
	SelectSection(rid uuid.UUID) (*model.DocumentSection, error)
	SelectSectionsByDocument(documentRID uuid.UUID) ([]*model.DocumentSection, error)
	UpdateSectionSummary(rid uuid.UUID, summary string) error
	DeleteSection(rid uuid.UUID) error
}

// SectionsDBHandler handles section-related database operations
type SectionsDBHandler struct {
	db *helper.Database
}

// NewSectionsDBHandler creates a new sections database handler.
// It initializes the database connection and loads section-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewSectionsDBHandler(db *helper.Database, force bool) (*SectionsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	sectionsDbHandler := &SectionsDBHandler{
		db: db,
	}

	err := sql.LoadSectionsSql(sectionsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load sections sql", err)
	}

	err = sectionsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized SectionsDBHandler")

	return sectionsDbHandler, nil
}

// CreateTable creates the 'document_structure' table in the database.
// If the table already exists, it does not create it again.
// It also creates all necessary indexes.
func (h *SectionsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_sections();`)
	if err != nil {
		log.Panicf("error initializing document_structure table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table document_structure")

	return nil
}

// InsertSection inserts a new section
func (h *SectionsDBHandler) InsertSection(section *model.DocumentSection) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_section($1, $2, $3, $4, $5, $6, $7, $8)`,
		section.DocumentRID,
		section.Level,
		section.ParentRID,
		section.Order,
		section.Title,
		section.Number,
		section.Summary,
		section.SourcePages,
	)

	err := scanSection(row, section)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectSection retrieves a section by RID.
// Returns nil without error when no section with that RID exists.
func (h *SectionsDBHandler) SelectSection(rid uuid.UUID) (*model.DocumentSection, error) {
	section := &model.DocumentSection{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_section($1)`,
		rid,
	)

	err := scanSection(row, section)
	if errors.Is(err, dbsql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return section, nil
}

// SelectSectionsByDocument retrieves all sections of a document in
// creation order
func (h *SectionsDBHandler) SelectSectionsByDocument(documentRID uuid.UUID) ([]*model.DocumentSection, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_sections_by_document($1)`,
		documentRID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var sections []*model.DocumentSection
	for rows.Next() {
		section := &model.DocumentSection{}
		err := scanSection(rows, section)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		sections = append(sections, section)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return sections, nil
}

// UpdateSectionSummary updates the summary of a section
func (h *SectionsDBHandler) UpdateSectionSummary(rid uuid.UUID, summary string) error {
	_, err := h.db.Instance.Exec(
		`SELECT update_section_summary($1, $2)`,
		rid,
		summary,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// DeleteSection deletes a section by RID
func (h *SectionsDBHandler) DeleteSection(rid uuid.UUID) error {
	_, err := h.db.Instance.Exec(
		`SELECT delete_section($1)`,
		rid,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

func scanSection(row rowScanner, section *model.DocumentSection) error {
	return row.Scan(
		&section.ID,
		&section.RID,
		&section.DocumentRID,
		&section.Level,
		&section.ParentRID,
		&section.Order,
		&section.Title,
		&section.Number,
		&section.Summary,
		&section.SourcePages,
		&section.CreatedAt,
	)
}

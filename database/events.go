package database

import (
	"context"
	dbsql "database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/castrolol/editalgraph/helper"
	"github.com/castrolol/editalgraph/model"
	"github.com/castrolol/editalgraph/sql"
	"github.com/google/uuid"
)

// EventsDBHandlerFunctions defines the interface for Events database operations.
type EventsDBHandlerFunctions interface {
	InsertEvent(event *model.TimelineEvent) error
	SelectEvent(rid uuid.UUID) (*model.TimelineEvent, error)
	SelectEventsByDocument(documentRID uuid.UUID) ([]*model.TimelineEvent, error)
	UpdateEventLinks(event *model.TimelineEvent) error
	BumpEventComments(rid uuid.UUID) (int, error)
	DeleteEvent(rid uuid.UUID) error
}

// EventsDBHandler handles timeline-event-related database operations
type EventsDBHandler struct {
	db *helper.Database
}

// NewEventsDBHandler creates a new events database handler.
// It initializes the database connection and loads event-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewEventsDBHandler(db *helper.Database, force bool) (*EventsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	eventsDbHandler := &EventsDBHandler{
		db: db,
	}

	err := sql.LoadEventsSql(eventsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load events sql", err)
	}

	err = eventsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized EventsDBHandler")

	return eventsDbHandler, nil
}

// CreateTable creates the 'timeline_events' table in the database.
// If the table already exists, it does not create it again.
// It also creates all necessary indexes.
func (h *EventsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_events();`)
	if err != nil {
		log.Panicf("error initializing timeline_events table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table timeline_events")

	return nil
}

// InsertEvent inserts a new timeline event
func (h *EventsDBHandler) InsertEvent(event *model.TimelineEvent) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_event($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		event.DocumentRID,
		event.Date,
		event.DateRaw,
		event.DateType,
		event.RelativeTo,
		event.EventType,
		event.Phase,
		event.SemanticOrder,
		event.Title,
		event.Description,
		event.Importance,
		event.ActionRequired,
		event.LinkedPenalties,
		event.LinkedRequirements,
		event.LinkedObligations,
		event.LinkedRisks,
		event.Tags,
		event.SourcePages,
	)

	err := scanEvent(row, event)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectEvent retrieves a timeline event by RID.
// Returns nil without error when no event with that RID exists.
func (h *EventsDBHandler) SelectEvent(rid uuid.UUID) (*model.TimelineEvent, error) {
	event := &model.TimelineEvent{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_event($1)`,
		rid,
	)

	err := scanEvent(row, event)
	if errors.Is(err, dbsql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return event, nil
}

// SelectEventsByDocument retrieves all events of a document ordered by
// date then semantic order, undated events last
func (h *EventsDBHandler) SelectEventsByDocument(documentRID uuid.UUID) ([]*model.TimelineEvent, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_events_by_document($1)`,
		documentRID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var events []*model.TimelineEvent
	for rows.Next() {
		event := &model.TimelineEvent{}
		err := scanEvent(rows, event)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		events = append(events, event)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return events, nil
}

// UpdateEventLinks replaces the relative anchor and linked entity RIDs
// of an event
func (h *EventsDBHandler) UpdateEventLinks(event *model.TimelineEvent) error {
	_, err := h.db.Instance.Exec(
		`SELECT update_event_links($1, $2, $3, $4, $5, $6)`,
		event.RID,
		event.RelativeTo,
		event.LinkedPenalties,
		event.LinkedRequirements,
		event.LinkedObligations,
		event.LinkedRisks,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// BumpEventComments increments the comment counter of an event and
// returns the new count
func (h *EventsDBHandler) BumpEventComments(rid uuid.UUID) (int, error) {
	var count int
	err := h.db.Instance.QueryRow(
		`SELECT * FROM bump_event_comments($1)`,
		rid,
	).Scan(&count)
	if err != nil {
		return 0, helper.NewError("scan", err)
	}
	return count, nil
}

// DeleteEvent deletes a timeline event by RID
func (h *EventsDBHandler) DeleteEvent(rid uuid.UUID) error {
	_, err := h.db.Instance.Exec(
		`SELECT delete_event($1)`,
		rid,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

func scanEvent(row rowScanner, event *model.TimelineEvent) error {
	var relativeTo []byte
	err := row.Scan(
		&event.ID,
		&event.RID,
		&event.DocumentRID,
		&event.Date,
		&event.DateRaw,
		&event.DateType,
		&relativeTo,
		&event.EventType,
		&event.Phase,
		&event.SemanticOrder,
		&event.Title,
		&event.Description,
		&event.Importance,
		&event.ActionRequired,
		&event.LinkedPenalties,
		&event.LinkedRequirements,
		&event.LinkedObligations,
		&event.LinkedRisks,
		&event.Tags,
		&event.SourcePages,
		&event.CommentsCount,
		&event.CreatedAt,
	)
	if err != nil {
		return err
	}

	if len(relativeTo) > 0 {
		ref := &model.RelativeRef{}
		err = json.Unmarshal(relativeTo, ref)
		if err != nil {
			return fmt.Errorf("error unmarshalling relative_to: %w", err)
		}
		event.RelativeTo = ref
	} else {
		event.RelativeTo = nil
	}

	return nil
}

package sql

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log"
)

//go:embed init.sql
var initSQL string

//go:embed documents.sql
var documentsSQL string

//go:embed entities.sql
var entitiesSQL string

//go:embed conflicts.sql
var conflictsSQL string

//go:embed sections.sql
var sectionsSQL string

//go:embed events.sql
var eventsSQL string

// Function lists for verification
var DocumentsFunctions = []string{
	"init_documents",
	"insert_document",
	"select_document",
	"select_all_documents",
	"update_document",
	"delete_document",
}

var EntitiesFunctions = []string{
	"init_entities",
	"insert_entity",
	"select_entity_by_key",
	"select_entities_by_document",
	"select_entities_by_type",
	"select_entities_by_similarity",
	"update_entity_value",
	"update_entity_sources",
	"update_entity_related",
	"update_entity_embedding",
	"delete_entity",
}

var ConflictsFunctions = []string{
	"init_conflicts",
	"insert_conflict",
	"select_conflicts_by_document",
}

var SectionsFunctions = []string{
	"init_sections",
	"insert_section",
	"select_section",
	"select_sections_by_document",
	"update_section_summary",
	"delete_section",
}

var EventsFunctions = []string{
	"init_events",
	"insert_event",
	"select_event",
	"select_events_by_document",
	"update_event_links",
	"bump_event_comments",
	"delete_event",
}

// Init intializes db extensions
func Init(db *sql.DB) error {
	_, err := db.Exec(initSQL)
	if err != nil {
		return fmt.Errorf("error executing schema SQL: %w", err)
	}

	log.Println("Database extensions initialized successfully")
	return nil
}

// LoadDocumentsSql loads document-related SQL functions
func LoadDocumentsSql(db *sql.DB, force bool) error {
	if !force {
		exist, err := checkFunctions(db, DocumentsFunctions)
		if err != nil {
			return fmt.Errorf("error checking existing documents functions: %w", err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(documentsSQL)
	if err != nil {
		return fmt.Errorf("error executing documents SQL: %w", err)
	}

	exist, err := checkFunctions(db, DocumentsFunctions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	log.Println("SQL documents functions loaded successfully")
	return nil
}

// LoadEntitiesSql loads entity-related SQL functions
func LoadEntitiesSql(db *sql.DB, force bool) error {
	if !force {
		exist, err := checkFunctions(db, EntitiesFunctions)
		if err != nil {
			return fmt.Errorf("error checking existing entities functions: %w", err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(entitiesSQL)
	if err != nil {
		return fmt.Errorf("error executing entities SQL: %w", err)
	}

	exist, err := checkFunctions(db, EntitiesFunctions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	log.Println("SQL entities functions loaded successfully")
	return nil
}

// LoadConflictsSql loads conflict-related SQL functions
func LoadConflictsSql(db *sql.DB, force bool) error {
	if !force {
		exist, err := checkFunctions(db, ConflictsFunctions)
		if err != nil {
			return fmt.Errorf("error checking existing conflicts functions: %w", err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(conflictsSQL)
	if err != nil {
		return fmt.Errorf("error executing conflicts SQL: %w", err)
	}

	exist, err := checkFunctions(db, ConflictsFunctions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	log.Println("SQL conflicts functions loaded successfully")
	return nil
}

// LoadSectionsSql loads section-related SQL functions
func LoadSectionsSql(db *sql.DB, force bool) error {
	if !force {
		exist, err := checkFunctions(db, SectionsFunctions)
		if err != nil {
			return fmt.Errorf("error checking existing sections functions: %w", err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(sectionsSQL)
	if err != nil {
		return fmt.Errorf("error executing sections SQL: %w", err)
	}

	exist, err := checkFunctions(db, SectionsFunctions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	log.Println("SQL sections functions loaded successfully")
	return nil
}

// LoadEventsSql loads event-related SQL functions
func LoadEventsSql(db *sql.DB, force bool) error {
	if !force {
		exist, err := checkFunctions(db, EventsFunctions)
		if err != nil {
			return fmt.Errorf("error checking existing events functions: %w", err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(eventsSQL)
	if err != nil {
		return fmt.Errorf("error executing events SQL: %w", err)
	}

	exist, err := checkFunctions(db, EventsFunctions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	log.Println("SQL events functions loaded successfully")
	return nil
}

// LoadAllSql loads all SQL functions
func LoadAllSql(db *sql.DB, force bool) error {
	if err := LoadDocumentsSql(db, force); err != nil {
		return err
	}

	if err := LoadEntitiesSql(db, force); err != nil {
		return err
	}

	if err := LoadConflictsSql(db, force); err != nil {
		return err
	}

	if err := LoadSectionsSql(db, force); err != nil {
		return err
	}

	if err := LoadEventsSql(db, force); err != nil {
		return err
	}

	return nil
}

// checkFunctions verifies that all required functions exist in the database
func checkFunctions(db *sql.DB, sqlFunctions []string) (bool, error) {
	var allExist bool
	for _, f := range sqlFunctions {
		err := db.QueryRow(
			`SELECT EXISTS(SELECT 1 FROM pg_proc WHERE proname = $1);`,
			f,
		).Scan(&allExist)
		if err != nil {
			return false, fmt.Errorf("error checking existence of function %s: %w", f, err)
		}
		if !allExist {
			log.Printf("Function %s does not exist", f)
			break
		}
	}
	return allExist, nil
}

package database

import (
	"testing"
	"time"

	"github.com/castrolol/editalgraph/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConflictsNewConflictsDBHandler(t *testing.T) {
	database := initDB(t)

	// Needed because a conflict has a reference to a document
	_, err := NewDocumentsDBHandler(database, true)
	require.NoError(t, err, "Expected NewDocumentsDBHandler to not return an error")

	t.Run("Valid call NewConflictsDBHandler", func(t *testing.T) {
		conflictsDbHandler, err := NewConflictsDBHandler(database, true)
		assert.NoError(t, err, "Expected NewConflictsDBHandler to not return an error")
		require.NotNil(t, conflictsDbHandler, "Expected NewConflictsDBHandler to return a non-nil instance")
	})

	t.Run("Invalid call NewConflictsDBHandler with nil database", func(t *testing.T) {
		_, err := NewConflictsDBHandler(nil, false)
		assert.Error(t, err, "Expected error when creating ConflictsDBHandler with nil database")
		assert.Contains(t, err.Error(), "database connection is nil", "Expected specific error message for nil database connection")
	})
}

func TestConflictsInsertAndSelect(t *testing.T) {
	database := initDB(t)

	documentsDbHandler, err := NewDocumentsDBHandler(database, true)
	require.NoError(t, err)
	conflictsDbHandler, err := NewConflictsDBHandler(database, true)
	require.NoError(t, err)

	doc := newTestDocument(t, documentsDbHandler, "Edital com conflitos")
	defer documentsDbHandler.DeleteDocument(doc.RID)

	t.Run("Insert conflict", func(t *testing.T) {
		conflict := &model.EntityConflict{
			DocumentRID:        doc.RID,
			SemanticKey:        "VALOR_ESTIMADO",
			ExistingValue:      "93810.66",
			IncomingValue:      "95000.00",
			ExistingConfidence: 0.9,
			IncomingConfidence: 0.7,
			Resolution:         model.ResolutionKeptExisting,
		}

		err := conflictsDbHandler.InsertConflict(conflict)
		assert.NoError(t, err, "Expected InsertConflict to not return an error")
		assert.NotZero(t, conflict.ID, "Expected inserted conflict to have an ID")
		assert.WithinDuration(t, conflict.DetectedAt, time.Now(), 2*time.Second, "Expected DetectedAt to be set")
	})

	t.Run("Select conflicts by document in detection order", func(t *testing.T) {
		second := &model.EntityConflict{
			DocumentRID:        doc.RID,
			SemanticKey:        "VALOR_ESTIMADO",
			ExistingValue:      "93810.66",
			IncomingValue:      "93900.00",
			ExistingConfidence: 0.9,
			IncomingConfidence: 0.95,
			Resolution:         model.ResolutionReplacedWithIncoming,
		}
		err := conflictsDbHandler.InsertConflict(second)
		require.NoError(t, err)

		conflicts, err := conflictsDbHandler.SelectConflictsByDocument(doc.RID)
		assert.NoError(t, err, "Expected SelectConflictsByDocument to not return an error")
		require.Len(t, conflicts, 2, "Expected both conflict records")
		assert.Equal(t, model.ResolutionKeptExisting, conflicts[0].Resolution, "Expected first detected conflict first")
		assert.Equal(t, model.ResolutionReplacedWithIncoming, conflicts[1].Resolution, "Expected second detected conflict last")
	})

	t.Run("Select conflicts of unknown document is empty", func(t *testing.T) {
		other := newTestDocument(t, documentsDbHandler, "Edital sem conflitos")
		defer documentsDbHandler.DeleteDocument(other.RID)

		conflicts, err := conflictsDbHandler.SelectConflictsByDocument(other.RID)
		assert.NoError(t, err)
		assert.Empty(t, conflicts, "Expected no conflicts for a clean document")
	})
}

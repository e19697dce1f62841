package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangeIndexType(t *testing.T) {
	database := initDB(t)

	// Needed because an entity has a reference to a document
	_, err := NewDocumentsDBHandler(database, true)
	require.NoError(t, err, "Expected NewDocumentsDBHandler to not return an error")

	entitiesDbHandler, err := NewEntitiesDBHandler(database, 384, true)
	require.NoError(t, err, "Expected NewEntitiesDBHandler to not return an error")

	ctx := context.Background()

	t.Run("Change index to HNSW with default params", func(t *testing.T) {
		params := map[string]interface{}{}
		err := entitiesDbHandler.ChangeIndexType(ctx, "hnsw", params)
		assert.NoError(t, err, "Expected ChangeIndexType to hnsw to not return an error")
	})

	t.Run("Change index to HNSW with custom params", func(t *testing.T) {
		params := map[string]interface{}{
			"m":               32,
			"ef_construction": 128,
		}
		err := entitiesDbHandler.ChangeIndexType(ctx, "hnsw", params)
		assert.NoError(t, err, "Expected ChangeIndexType to hnsw with custom params to not return an error")
	})

	t.Run("Change index to IVFFlat with custom params", func(t *testing.T) {
		params := map[string]interface{}{
			"lists": 200,
		}
		err := entitiesDbHandler.ChangeIndexType(ctx, "ivfflat", params)
		assert.NoError(t, err, "Expected ChangeIndexType to ivfflat with custom params to not return an error")
	})

	t.Run("Change index with unsupported index type", func(t *testing.T) {
		params := map[string]interface{}{}
		err := entitiesDbHandler.ChangeIndexType(ctx, "invalid", params)
		assert.Error(t, err, "Expected error when using unsupported index type")
		assert.Contains(t, err.Error(), "unsupported index type", "Expected error message to mention unsupported index type")
	})

	t.Run("Change index back to HNSW for cleanup", func(t *testing.T) {
		params := map[string]interface{}{
			"m":               16,
			"ef_construction": 64,
		}
		err := entitiesDbHandler.ChangeIndexType(ctx, "hnsw", params)
		assert.NoError(t, err, "Expected ChangeIndexType to hnsw for cleanup to not return an error")
	})
}

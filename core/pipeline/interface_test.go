package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/castrolol/editalgraph/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Mock ExtractFunc for testing
func mockExtractFunc(ctx context.Context, page Page) (*model.RawBatch, error) {
	if page.Text == "" {
		return nil, errors.New("empty page")
	}

	return &model.RawBatch{
		Entities: []model.RawEntity{
			{Type: model.EntityTypeDeadline, Name: "Abertura da sessão", RawValue: "24/09/2024", SemanticKey: "DATA_ABERTURA_SESSAO"},
			{Type: model.EntityTypeMonetary, Name: "Valor estimado", RawValue: "R$ 93.810,66", SemanticKey: "VALOR_ESTIMADO_CONTRATACAO", PageNumber: 7},
		},
		Sections: []model.RawSection{
			{Level: model.LevelChapter, Number: "1", Title: "DO OBJETO"},
		},
		Events: []model.RawTimelineEvent{
			{DateRaw: "24/09/2024", DateType: model.DateTypeFixed, EventType: "SESSAO_PUBLICA", Title: "Sessão pública"},
		},
	}, nil
}

func TestNewPipeline(t *testing.T) {
	t.Run("Create new pipeline", func(t *testing.T) {
		pipeline := NewPipeline(mockExtractFunc)

		require.NotNil(t, pipeline, "Expected NewPipeline to return a non-nil instance")
		assert.NotNil(t, pipeline.Extractor, "Expected pipeline to have an extractor function")
		assert.Nil(t, pipeline.Embedder, "Expected embedder to be unset by default")
	})

	t.Run("Set embedder", func(t *testing.T) {
		pipeline := NewPipeline(mockExtractFunc)
		pipeline.SetEmbedder(func(text string) ([]float32, error) {
			return []float32{0.1, 0.2, 0.3}, nil
		})

		assert.NotNil(t, pipeline.Embedder, "Expected pipeline to have an embedder function")
	})
}

func TestExtractPage(t *testing.T) {
	ctx := context.Background()

	t.Run("Extract page successfully", func(t *testing.T) {
		pipeline := NewPipeline(mockExtractFunc)

		batch, err := pipeline.ExtractPage(ctx, Page{Number: 3, Text: "EDITAL DE PREGÃO ELETRÔNICO"})
		require.NoError(t, err, "Expected ExtractPage to not return an error")
		require.NotNil(t, batch)

		assert.Len(t, batch.Entities, 2)
		assert.Len(t, batch.Sections, 1)
		assert.Len(t, batch.Events, 1)
	})

	t.Run("Candidates inherit the page number", func(t *testing.T) {
		pipeline := NewPipeline(mockExtractFunc)

		batch, err := pipeline.ExtractPage(ctx, Page{Number: 3, Text: "EDITAL DE PREGÃO ELETRÔNICO"})
		require.NoError(t, err)

		assert.Equal(t, 3, batch.Entities[0].PageNumber, "Expected unset page number to inherit the page's")
		assert.Equal(t, 7, batch.Entities[1].PageNumber, "Expected declared page number to be kept")
		assert.Equal(t, 3, batch.Sections[0].PageNumber)
		assert.Equal(t, 3, batch.Events[0].PageNumber)
	})

	t.Run("Nil batch counts as empty", func(t *testing.T) {
		pipeline := NewPipeline(func(ctx context.Context, page Page) (*model.RawBatch, error) {
			return nil, nil
		})

		batch, err := pipeline.ExtractPage(ctx, Page{Number: 1, Text: "página em branco"})
		require.NoError(t, err)
		require.NotNil(t, batch, "Expected a nil extractor result to become an empty batch")
		assert.Empty(t, batch.Entities)
	})

	t.Run("Extractor errors propagate", func(t *testing.T) {
		pipeline := NewPipeline(mockExtractFunc)

		_, err := pipeline.ExtractPage(ctx, Page{Number: 1, Text: ""})
		assert.Error(t, err, "Expected extractor error to propagate")
	})

	t.Run("Missing extractor returns an error", func(t *testing.T) {
		pipeline := NewPipeline(nil)

		_, err := pipeline.ExtractPage(ctx, Page{Number: 1, Text: "texto"})
		assert.Error(t, err, "Expected an error when no extractor is set")
	})
}

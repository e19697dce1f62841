package editalgraph

import (
	"context"
	"testing"
	"time"

	"github.com/castrolol/editalgraph/core/pipeline"
	"github.com/castrolol/editalgraph/helper"
	"github.com/castrolol/editalgraph/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testEmbedder creates a simple deterministic embedder for testing
func testEmbedder(dimension int) pipeline.EmbedFunc {
	return func(text string) ([]float32, error) {
		embedding := make([]float32, dimension)
		for i := 0; i < dimension; i++ {
			embedding[i] = float32((len(text)+i)%100) / 100.0
		}
		return embedding, nil
	}
}

func initEditalgraph(t *testing.T) *Editalgraph {
	helper.SetTestDatabaseConfigEnvs(t, dbPort)
	dbConfig, err := helper.NewDatabaseConfiguration()
	require.NoError(t, err, "failed to create database configuration")

	e, err := NewEditalgraph(dbConfig, 384)
	require.NoError(t, err, "failed to create editalgraph")
	require.NotNil(t, e, "expected editalgraph to be non-nil")

	t.Cleanup(func() {
		e.Close()
	})

	return e
}

func newDocument(t *testing.T, e *Editalgraph, title string) *model.Document {
	document, err := e.CreateDocument(title, "pncp", model.Metadata{"modalidade": "pregão eletrônico"})
	require.NoError(t, err, "Expected CreateDocument to not return an error")
	require.NotEqual(t, uuid.Nil, document.RID, "Expected document to receive a RID")
	return document
}

func TestNewEditalgraph(t *testing.T) {
	helper.SetTestDatabaseConfigEnvs(t, dbPort)
	dbConfig, err := helper.NewDatabaseConfiguration()
	require.NoError(t, err)

	t.Run("Valid call NewEditalgraph", func(t *testing.T) {
		e, err := NewEditalgraph(dbConfig, 384)
		require.NoError(t, err, "Expected NewEditalgraph to not return an error")
		require.NotNil(t, e, "Expected NewEditalgraph to return a non-nil instance")
		assert.NotNil(t, e.DB, "Expected a database instance")
		assert.NotNil(t, e.Documents, "Expected a documents handler")
		assert.NotNil(t, e.Entities, "Expected an entities handler")
		assert.NotNil(t, e.Conflicts, "Expected a conflicts handler")
		assert.NotNil(t, e.Sections, "Expected a sections handler")
		assert.NotNil(t, e.Events, "Expected an events handler")
		assert.NotNil(t, e.Unifier, "Expected a unification engine")
		assert.NotNil(t, e.Structure, "Expected a structure builder")
		assert.NotNil(t, e.Timeline, "Expected a timeline resolver")
		assert.Nil(t, e.Pipeline, "Expected pipeline to be nil initially")

		err = e.Close()
		assert.NoError(t, err, "Expected Close to not return an error")
	})

	t.Run("Close handles nil DB gracefully", func(t *testing.T) {
		e := &Editalgraph{}
		err := e.Close()
		assert.NoError(t, err, "Expected Close to handle nil DB gracefully")
	})
}

func TestProcessBatch(t *testing.T) {
	e := initEditalgraph(t)
	ctx := context.Background()

	t.Run("Full batch runs all three stages", func(t *testing.T) {
		document := newDocument(t, e, "Pregão Eletrônico 42/2024")

		batch := &model.RawBatch{
			Entities: []model.RawEntity{
				{
					Type:        model.EntityTypeDate,
					Name:        "Data de abertura da sessão",
					RawValue:    "24 de setembro de 2024",
					SemanticKey: "DATA_ABERTURA_SESSAO",
					PageNumber:  1,
					ExcerptText: "A sessão pública será aberta em 24 de setembro de 2024.",
				},
				{
					Type:        model.EntityTypePenalty,
					Name:        "Multa por atraso",
					RawValue:    "0,5% por dia",
					SemanticKey: "MULTA_ATRASO_ENTREGA",
					PageNumber:  12,
				},
			},
			Sections: []model.RawSection{
				{Level: model.LevelChapter, Number: "1", Title: "DO OBJETO", PageNumber: 1},
				{Level: model.LevelClause, Number: "1.1", Title: "Especificação", ParentNumber: "1", PageNumber: 1},
			},
			Events: []model.RawTimelineEvent{
				{
					DateRaw:           "24/09/2024",
					DateType:          model.DateTypeFixed,
					EventType:         "SESSAO_PUBLICA",
					Title:             "Abertura da sessão pública",
					Importance:        model.ImportanceCritical,
					LinkedPenaltyKeys: []string{"MULTA_ATRASO_ENTREGA"},
					PageNumber:        1,
				},
			},
		}

		result, err := e.ProcessBatch(ctx, document.RID, batch)
		require.NoError(t, err, "Expected ProcessBatch to not return an error")
		require.NotNil(t, result)

		assert.Equal(t, 2, result.Unify.Created, "Expected both entities created")
		require.Len(t, result.Sections, 2)
		require.Len(t, result.Events, 1)

		assert.Equal(t, "2024-09-24", result.Unify.Entities[0].NormalizedValue)
		assert.Equal(t, model.PhaseSessaoPublica, result.Events[0].Phase)
		require.Len(t, result.Events[0].LinkedPenalties, 1, "Expected the penalty link resolved in the same batch")
	})

	t.Run("Second batch merges entities and extends the structure", func(t *testing.T) {
		document := newDocument(t, e, "Pregão Eletrônico 43/2024")

		first := &model.RawBatch{
			Entities: []model.RawEntity{
				{Type: model.EntityTypeOther, Name: "Valor estimado", RawValue: "R$ 93.810,66", SemanticKey: "VALOR_ESTIMADO_CONTRATACAO", PageNumber: 2},
			},
			Sections: []model.RawSection{
				{Level: model.LevelChapter, Number: "2", Title: "DO VALOR", PageNumber: 2},
			},
		}
		_, err := e.ProcessBatch(ctx, document.RID, first)
		require.NoError(t, err)

		second := &model.RawBatch{
			Entities: []model.RawEntity{
				{Type: model.EntityTypeOther, Name: "Valor estimado", RawValue: "R$ 93.810,70", SemanticKey: "VALOR_ESTIMADO_CONTRATACAO", PageNumber: 31},
			},
			Sections: []model.RawSection{
				{Level: model.LevelClause, Number: "2.1", Title: "Da dotação orçamentária", ParentNumber: "2", PageNumber: 2},
			},
		}
		result, err := e.ProcessBatch(ctx, document.RID, second)
		require.NoError(t, err)

		assert.Equal(t, 0, result.Unify.Created, "Expected no new entity")
		assert.Equal(t, 1, result.Unify.Updated, "Expected a within-tolerance merge")

		entity, err := e.EntityByKey(document.RID, "VALOR_ESTIMADO_CONTRATACAO")
		require.NoError(t, err)
		require.NotNil(t, entity)
		assert.Len(t, entity.Sources, 2, "Expected both provenance records")

		require.Len(t, result.Sections, 1)
		require.NotNil(t, result.Sections[0].ParentRID, "Expected cross-batch parent resolution")
	})

	t.Run("Nil batch returns an error", func(t *testing.T) {
		document := newDocument(t, e, "Pregão Eletrônico 44/2024")
		_, err := e.ProcessBatch(ctx, document.RID, nil)
		assert.Error(t, err, "Expected nil batch to return an error")
	})
}

func TestProcessPages(t *testing.T) {
	e := initEditalgraph(t)
	ctx := context.Background()
	document := newDocument(t, e, "Pregão Eletrônico 45/2024")

	extractor := func(ctx context.Context, page pipeline.Page) (*model.RawBatch, error) {
		if page.Number == 1 {
			return &model.RawBatch{
				Entities: []model.RawEntity{
					{Type: model.EntityTypeDate, Name: "Abertura", RawValue: "24/09/2024", SemanticKey: "DATA_ABERTURA_SESSAO"},
				},
			}, nil
		}
		return &model.RawBatch{
			Events: []model.RawTimelineEvent{
				{DateRaw: "24/09/2024", DateType: model.DateTypeFixed, EventType: "SESSAO_PUBLICA", Title: "Sessão pública"},
			},
		}, nil
	}

	t.Run("Pages without a pipeline fail", func(t *testing.T) {
		_, err := e.ProcessPages(ctx, document.RID, []pipeline.Page{{Number: 1, Text: "texto"}})
		assert.Error(t, err, "Expected missing pipeline to return an error")
	})

	t.Run("Pages are processed as one batch each", func(t *testing.T) {
		e.SetPipeline(pipeline.NewPipeline(extractor))

		results, err := e.ProcessPages(ctx, document.RID, []pipeline.Page{
			{Number: 1, Text: "A sessão pública será aberta em 24/09/2024."},
			{Number: 2, Text: "Cronograma."},
		})
		require.NoError(t, err, "Expected ProcessPages to not return an error")
		require.Len(t, results, 2)

		assert.Equal(t, 1, results[0].Unify.Created)
		require.Len(t, results[1].Events, 1)
		assert.Equal(t, model.IntList{2}, results[1].Events[0].SourcePages, "Expected the event to inherit its page number")
	})
}

func TestConflictAudit(t *testing.T) {
	e := initEditalgraph(t)
	ctx := context.Background()
	document := newDocument(t, e, "Pregão Eletrônico 46/2024")

	_, err := e.ProcessBatch(ctx, document.RID, &model.RawBatch{
		Entities: []model.RawEntity{
			{Type: model.EntityTypePenalty, Name: "Multa diária", RawValue: "0,5%", SemanticKey: "MULTA_ATRASO_ENTREGA", Confidence: 0.6},
		},
	})
	require.NoError(t, err)

	result, err := e.ProcessBatch(ctx, document.RID, &model.RawBatch{
		Entities: []model.RawEntity{
			{Type: model.EntityTypePenalty, Name: "Multa diária", RawValue: "1%", SemanticKey: "MULTA_ATRASO_ENTREGA", Confidence: 0.9},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Unify.ConflictsResolved, "Expected the disagreement to be recorded")

	entity, err := e.EntityByKey(document.RID, "MULTA_ATRASO_ENTREGA")
	require.NoError(t, err)
	require.NotNil(t, entity)
	assert.Equal(t, "0.01", entity.NormalizedValue, "Expected the higher-confidence value to win")

	conflicts, err := e.ConflictsByDocument(document.RID)
	require.NoError(t, err, "Expected ConflictsByDocument to not return an error")
	require.Len(t, conflicts, 1)
	assert.Equal(t, model.ResolutionReplacedWithIncoming, conflicts[0].Resolution)
	assert.Equal(t, "MULTA_ATRASO_ENTREGA", conflicts[0].SemanticKey)
}

func TestRelinkDocument(t *testing.T) {
	e := initEditalgraph(t)
	ctx := context.Background()
	document := newDocument(t, e, "Pregão Eletrônico 47/2024")

	// The first batch references a key only the second batch introduces
	_, err := e.ProcessBatch(ctx, document.RID, &model.RawBatch{
		Entities: []model.RawEntity{
			{
				Type: model.EntityTypeObligation, Name: "Entrega do objeto", RawValue: "entregar em 30 dias",
				SemanticKey:         "OBRIGACAO_ENTREGA_OBJETO",
				RelatedSemanticKeys: []model.RelatedKey{{SemanticKey: "MULTA_ATRASO_ENTREGA", Kind: "penalized_by"}},
			},
		},
		Events: []model.RawTimelineEvent{
			{
				DateRaw: "30 dias após a assinatura", DateType: model.DateTypeRelative, EventType: "ENTREGA", Title: "Entrega",
				RelativeTo: &model.RawRelativeRef{AnchorKey: "DATA_ASSINATURA_CONTRATO", Offset: 30, Unit: "days", Direction: "after"},
			},
		},
	})
	require.NoError(t, err)

	_, err = e.ProcessBatch(ctx, document.RID, &model.RawBatch{
		Entities: []model.RawEntity{
			{Type: model.EntityTypePenalty, Name: "Multa por atraso", RawValue: "0,5% ao dia", SemanticKey: "MULTA_ATRASO_ENTREGA"},
			{Type: model.EntityTypeDate, Name: "Assinatura do contrato", RawValue: "01/10/2024", SemanticKey: "DATA_ASSINATURA_CONTRATO"},
		},
	})
	require.NoError(t, err)

	obligation, err := e.EntityByKey(document.RID, "OBRIGACAO_ENTREGA_OBJETO")
	require.NoError(t, err)
	require.NotNil(t, obligation)
	assert.Empty(t, obligation.RelatedEntities, "Expected the forward reference to stay unresolved before relink")

	resolved, err := e.RelinkDocument(ctx, document.RID)
	require.NoError(t, err, "Expected RelinkDocument to not return an error")
	assert.Equal(t, 2, resolved, "Expected the entity reference and the event anchor resolved")

	obligation, err = e.EntityByKey(document.RID, "OBRIGACAO_ENTREGA_OBJETO")
	require.NoError(t, err)
	require.Len(t, obligation.RelatedEntities, 1, "Expected the reference backfilled")
	assert.Equal(t, "penalized_by", obligation.RelatedEntities[0].Kind)

	buckets, err := e.TimelineBuckets(document.RID)
	require.NoError(t, err)
	require.Len(t, buckets.Relative, 1, "Expected the event anchored after relink")
}

func TestTimelineViews(t *testing.T) {
	e := initEditalgraph(t)
	ctx := context.Background()
	document := newDocument(t, e, "Pregão Eletrônico 48/2024")

	result, err := e.ProcessBatch(ctx, document.RID, &model.RawBatch{
		Events: []model.RawTimelineEvent{
			{DateRaw: "24/09/2024", DateType: model.DateTypeFixed, EventType: "HOMOLOGACAO", Title: "Homologação", Importance: model.ImportanceHigh},
			{DateRaw: "24/09/2024", DateType: model.DateTypeFixed, EventType: "PUBLICACAO", Title: "Publicação do edital", Importance: model.ImportanceCritical, Tags: []string{"edital"}},
			{DateRaw: "a definir", DateType: model.DateTypeFixed, EventType: "PAGAMENTO", Title: "Pagamento"},
		},
	})
	require.NoError(t, err)
	require.Len(t, result.Events, 3)

	t.Run("Stored order breaks date ties by phase", func(t *testing.T) {
		events, err := e.Timeline.EventsByDocument(document.RID)
		require.NoError(t, err)
		require.Len(t, events, 3)
		assert.Equal(t, "Publicação do edital", events[0].Title, "Expected publication first on the shared date")
		assert.Equal(t, "Homologação", events[1].Title)
		assert.Equal(t, "Pagamento", events[2].Title, "Expected the undated event last")
	})

	t.Run("Buckets and stats", func(t *testing.T) {
		buckets, err := e.TimelineBuckets(document.RID)
		require.NoError(t, err)
		assert.Len(t, buckets.Dated, 2)
		assert.Len(t, buckets.Unresolved, 1)

		now, err := time.Parse("2006-01-02", "2024-09-01")
		require.NoError(t, err)
		stats, err := e.TimelineStats(document.RID, now)
		require.NoError(t, err)
		assert.Equal(t, 3, stats.Total)
		assert.Equal(t, 1, stats.ByImportance[model.ImportanceCritical])
		assert.Equal(t, 1, stats.UpcomingCritical)
		assert.Equal(t, []string{"edital"}, stats.Tags)
	})

	t.Run("Event urgency and comments", func(t *testing.T) {
		events, err := e.Timeline.EventsByDocument(document.RID)
		require.NoError(t, err)

		now, err := time.Parse("2006-01-02", "2024-09-20")
		require.NoError(t, err)
		urgency, err := e.EventUrgency(document.RID, events[0].RID, now)
		require.NoError(t, err, "Expected EventUrgency to not return an error")
		require.NotNil(t, urgency.DaysUntilDeadline)
		assert.Equal(t, 4, *urgency.DaysUntilDeadline)

		count, err := e.BumpEventComments(events[0].RID)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})
}

func TestEmbedAndSearchEntities(t *testing.T) {
	e := initEditalgraph(t)
	ctx := context.Background()
	document := newDocument(t, e, "Pregão Eletrônico 49/2024")

	_, err := e.ProcessBatch(ctx, document.RID, &model.RawBatch{
		Entities: []model.RawEntity{
			{Type: model.EntityTypePenalty, Name: "Multa por atraso", RawValue: "0,5% ao dia", SemanticKey: "MULTA_ATRASO_ENTREGA"},
			{Type: model.EntityTypeRequirement, Name: "Atestado de capacidade técnica", RawValue: "atestado exigido", SemanticKey: "QUALIFICACAO_TECNICA_ATESTADO"},
		},
	})
	require.NoError(t, err)

	t.Run("Embedding requires a pipeline", func(t *testing.T) {
		_, err := e.EmbedDocumentEntities(ctx, document.RID)
		assert.Error(t, err, "Expected missing embedder to return an error")
	})

	t.Run("Embed and search", func(t *testing.T) {
		p := pipeline.NewPipeline(nil)
		p.SetEmbedder(testEmbedder(384))
		e.SetPipeline(p)

		embedded, err := e.EmbedDocumentEntities(ctx, document.RID)
		require.NoError(t, err, "Expected EmbedDocumentEntities to not return an error")
		assert.Equal(t, 2, embedded)

		results, err := e.SearchEntities(ctx, document.RID, "multa por atraso na entrega", 5)
		require.NoError(t, err, "Expected SearchEntities to not return an error")
		assert.Len(t, results, 2)
	})
}

func TestDeleteDocumentCascade(t *testing.T) {
	e := initEditalgraph(t)
	ctx := context.Background()
	document := newDocument(t, e, "Pregão Eletrônico 50/2024")

	_, err := e.ProcessBatch(ctx, document.RID, &model.RawBatch{
		Entities: []model.RawEntity{
			{Type: model.EntityTypeDate, Name: "Abertura", RawValue: "24/09/2024", SemanticKey: "DATA_ABERTURA_SESSAO"},
		},
		Sections: []model.RawSection{
			{Level: model.LevelChapter, Number: "1", Title: "DO OBJETO"},
		},
		Events: []model.RawTimelineEvent{
			{DateRaw: "24/09/2024", DateType: model.DateTypeFixed, EventType: "SESSAO_PUBLICA", Title: "Sessão"},
		},
	})
	require.NoError(t, err)

	err = e.DeleteDocument(document.RID)
	require.NoError(t, err, "Expected DeleteDocument to not return an error")

	entities, err := e.Entities.SelectEntitiesByDocument(document.RID)
	require.NoError(t, err)
	assert.Empty(t, entities, "Expected entities to cascade")

	sections, err := e.Structure.SectionsByDocument(document.RID)
	require.NoError(t, err)
	assert.Empty(t, sections, "Expected sections to cascade")

	events, err := e.Timeline.EventsByDocument(document.RID)
	require.NoError(t, err)
	assert.Empty(t, events, "Expected events to cascade")
}

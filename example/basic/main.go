package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/castrolol/editalgraph"
	"github.com/castrolol/editalgraph/helper"
	"github.com/castrolol/editalgraph/model"
)

// A hand-written stand-in for the batches an extraction model would
// produce from two pages of a pregão eletrônico.
func sampleBatches() []*model.RawBatch {
	return []*model.RawBatch{
		{
			Entities: []model.RawEntity{
				{
					Type:        model.EntityTypeDate,
					Name:        "Data de abertura da sessão",
					RawValue:    "24 de setembro de 2024",
					SemanticKey: "DATA_ABERTURA_SESSAO",
					ExcerptText: "A sessão pública será realizada em 24 de setembro de 2024, às 09h00.",
					PageNumber:  1,
				},
				{
					Type:        model.EntityTypeOther,
					Name:        "Valor estimado da contratação",
					RawValue:    "R$ 93.810,66",
					SemanticKey: "VALOR_ESTIMADO_CONTRATACAO",
					PageNumber:  2,
				},
			},
			Sections: []model.RawSection{
				{Level: model.LevelChapter, Number: "1", Title: "DO OBJETO", PageNumber: 1},
				{Level: model.LevelClause, Number: "1.1", Title: "Especificação do objeto", ParentNumber: "1", PageNumber: 1},
			},
			Events: []model.RawTimelineEvent{
				{
					DateRaw:    "24/09/2024",
					DateType:   model.DateTypeFixed,
					EventType:  "SESSAO_PUBLICA",
					Title:      "Abertura da sessão pública",
					Importance: model.ImportanceCritical,
					PageNumber: 1,
				},
			},
		},
		{
			Entities: []model.RawEntity{
				{
					Type:        model.EntityTypePenalty,
					Name:        "Multa por atraso na entrega",
					RawValue:    "0,5% por dia de atraso",
					SemanticKey: "MULTA_ATRASO_ENTREGA",
					PageNumber:  12,
				},
				{
					Type:                model.EntityTypeObligation,
					Name:                "Entrega do objeto",
					RawValue:            "entrega em até 30 dias corridos",
					SemanticKey:         "OBRIGACAO_ENTREGA_OBJETO",
					RelatedSemanticKeys: []model.RelatedKey{{SemanticKey: "MULTA_ATRASO_ENTREGA", Kind: "penalized_by"}},
					PageNumber:          12,
				},
			},
			Events: []model.RawTimelineEvent{
				{
					DateRaw:           "30 dias após a assinatura do contrato",
					DateType:          model.DateTypeRelative,
					EventType:         "ENTREGA",
					Title:             "Prazo final de entrega",
					Importance:        model.ImportanceHigh,
					LinkedPenaltyKeys: []string{"MULTA_ATRASO_ENTREGA"},
					PageNumber:        12,
				},
			},
		},
	}
}

func main() {
	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	// Create database configuration using the container port
	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		Database: "database",
		Username: "user",
		Password: "password",
		Schema:   "public",
		SSLMode:  "disable",
	}

	e, err := editalgraph.NewEditalgraph(dbConfig, 384)
	if err != nil {
		log.Fatalf("Failed to create editalgraph: %v", err)
	}
	defer e.Close()

	ctx := context.Background()

	doc, err := e.CreateDocument("Pregão Eletrônico 42/2024", "basic_example", model.Metadata{
		"orgao":      "Prefeitura Municipal",
		"modalidade": "pregão eletrônico",
	})
	if err != nil {
		log.Fatalf("Failed to create document: %v", err)
	}
	fmt.Printf("Document created with ID: %s\n", doc.RID)

	// Process each page batch through unification, structure and timeline
	for i, batch := range sampleBatches() {
		result, err := e.ProcessBatch(ctx, doc.RID, batch)
		if err != nil {
			log.Fatalf("Failed to process batch %d: %v", i+1, err)
		}
		fmt.Printf("Batch %d: %d entities created, %d merged, %d sections, %d events\n",
			i+1, result.Unify.Created, result.Unify.Updated, len(result.Sections), len(result.Events))
	}

	// Backfill links that referenced keys from later batches
	resolved, err := e.RelinkDocument(ctx, doc.RID)
	if err != nil {
		log.Fatalf("Failed to relink document: %v", err)
	}
	fmt.Printf("Relink resolved %d pending links\n", resolved)

	// Section tree
	tree, err := e.SectionTree(doc.RID)
	if err != nil {
		log.Fatalf("Failed to build section tree: %v", err)
	}
	fmt.Printf("\nDocument structure (%d roots):\n", len(tree))
	for _, root := range tree {
		fmt.Printf("  %s %s (%d children)\n", root.Number, root.Title, len(root.Children))
	}

	// Timeline buckets and stats
	buckets, err := e.TimelineBuckets(doc.RID)
	if err != nil {
		log.Fatalf("Failed to bucket timeline: %v", err)
	}
	fmt.Printf("\nTimeline: %d dated, %d relative, %d unresolved\n",
		len(buckets.Dated), len(buckets.Relative), len(buckets.Unresolved))

	stats, err := e.TimelineStats(doc.RID, time.Now())
	if err != nil {
		log.Fatalf("Failed to compute timeline stats: %v", err)
	}
	fmt.Printf("Events by importance: %v\n", stats.ByImportance)

	// Entity lookup by semantic key
	entity, err := e.EntityByKey(doc.RID, "DATA_ABERTURA_SESSAO")
	if err != nil {
		log.Fatalf("Failed to look up entity: %v", err)
	}
	fmt.Printf("\n%s = %s (raw: %q, %d sources)\n",
		entity.SemanticKey, entity.NormalizedValue, entity.RawValue, len(entity.Sources))

	fmt.Println("\nBasic example completed successfully!")
}

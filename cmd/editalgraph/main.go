// Command editalgraph ingests extraction batches of procurement
// documents and inspects the resulting entities, structure and
// timeline. Database access is configured through DB_* environment
// variables or a .env file.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/castrolol/editalgraph"
	"github.com/castrolol/editalgraph/helper"
	"github.com/castrolol/editalgraph/model"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	embeddingDim int
	policyPath   string
)

func newEditalgraph() (*editalgraph.Editalgraph, error) {
	config, err := helper.NewDatabaseConfiguration()
	if err != nil {
		return nil, err
	}

	policy := model.DefaultPolicy()
	if policyPath != "" {
		policy, err = model.LoadPolicy(policyPath)
		if err != nil {
			return nil, err
		}
	}

	return editalgraph.NewEditalgraphWithPolicy(config, embeddingDim, policy)
}

func parseDocumentRID(arg string) (uuid.UUID, error) {
	rid, err := uuid.Parse(arg)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid document id %q: %w", arg, err)
	}
	return rid, nil
}

func newIngestCmd() *cobra.Command {
	var title string
	var source string
	var documentID string

	cmd := &cobra.Command{
		Use:   "ingest <batch.json> [batch.json...]",
		Short: "Process one or more extraction batch files into a document",
		Long: `Processes extraction batches (JSON files with entities, sections and
events) through unification, structure building and timeline resolution.
Creates a new document unless --document is given. Finishes with a
relink pass so links across batches resolve.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEditalgraph()
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()

			var documentRID uuid.UUID
			if documentID != "" {
				documentRID, err = parseDocumentRID(documentID)
				if err != nil {
					return err
				}
			} else {
				document, err := e.CreateDocument(title, source, nil)
				if err != nil {
					return err
				}
				documentRID = document.RID
				fmt.Printf("Created document %s\n", documentRID)
			}

			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read batch file %s: %w", path, err)
				}

				batch := &model.RawBatch{}
				if err := json.Unmarshal(data, batch); err != nil {
					return fmt.Errorf("parse batch file %s: %w", path, err)
				}

				result, err := e.ProcessBatch(ctx, documentRID, batch)
				if err != nil {
					return fmt.Errorf("process batch %s: %w", path, err)
				}

				fmt.Printf("%s: created=%d updated=%d skipped=%d conflicts=%d sections=%d events=%d\n",
					path, result.Unify.Created, result.Unify.Updated, result.Unify.Skipped,
					result.Unify.ConflictsResolved, len(result.Sections), len(result.Events))
			}

			resolved, err := e.RelinkDocument(ctx, documentRID)
			if err != nil {
				return err
			}
			fmt.Printf("Relink resolved %d pending links\n", resolved)

			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "Untitled edital", "title for a newly created document")
	cmd.Flags().StringVar(&source, "source", "", "source identifier for a newly created document")
	cmd.Flags().StringVar(&documentID, "document", "", "process into an existing document instead of creating one")

	return cmd
}

func newEntitiesCmd() *cobra.Command {
	var entityType string
	var semanticKey string

	cmd := &cobra.Command{
		Use:   "entities <document-id>",
		Short: "List the unified entities of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			documentRID, err := parseDocumentRID(args[0])
			if err != nil {
				return err
			}

			e, err := newEditalgraph()
			if err != nil {
				return err
			}
			defer e.Close()

			if semanticKey != "" {
				entity, err := e.EntityByKey(documentRID, semanticKey)
				if err != nil {
					return err
				}
				if entity == nil {
					return fmt.Errorf("no entity %s in document %s", semanticKey, documentRID)
				}
				return printJSON(entity)
			}

			var entities []*model.ExtractedEntity
			if entityType != "" {
				entities, err = e.EntitiesByType(documentRID, model.EntityType(entityType))
			} else {
				entities, err = e.Entities.SelectEntitiesByDocument(documentRID)
			}
			if err != nil {
				return err
			}

			for _, entity := range entities {
				fmt.Printf("%-40s %-22s %s (confidence %.2f, %d sources)\n",
					entity.SemanticKey, entity.Type, entity.NormalizedValue, entity.Confidence, len(entity.Sources))
			}
			fmt.Printf("%d entities\n", len(entities))

			return nil
		},
	}

	cmd.Flags().StringVar(&entityType, "type", "", "filter by entity type (deadline, penalty, requirement, ...)")
	cmd.Flags().StringVar(&semanticKey, "key", "", "print one entity by semantic key as JSON")

	return cmd
}

func newSectionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sections <document-id>",
		Short: "Print the section tree of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			documentRID, err := parseDocumentRID(args[0])
			if err != nil {
				return err
			}

			e, err := newEditalgraph()
			if err != nil {
				return err
			}
			defer e.Close()

			tree, err := e.SectionTree(documentRID)
			if err != nil {
				return err
			}
			for _, root := range tree {
				printSectionNode(root, 0)
			}

			stats, err := e.StructureStats(documentRID)
			if err != nil {
				return err
			}
			fmt.Printf("%d sections, %d roots, max depth %d\n", stats.Total, stats.Roots, stats.MaxDepth)

			return nil
		},
	}

	return cmd
}

func printSectionNode(node *model.SectionNode, depth int) {
	for i := 0; i < depth; i++ {
		fmt.Print("  ")
	}
	number := node.Number
	if number == "" {
		number = "-"
	}
	fmt.Printf("%s %s [%s]\n", number, node.Title, node.Level)
	for _, child := range node.Children {
		printSectionNode(child, depth+1)
	}
}

func newTimelineCmd() *cobra.Command {
	var showStats bool

	cmd := &cobra.Command{
		Use:   "timeline <document-id>",
		Short: "Print the timeline buckets of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			documentRID, err := parseDocumentRID(args[0])
			if err != nil {
				return err
			}

			e, err := newEditalgraph()
			if err != nil {
				return err
			}
			defer e.Close()

			buckets, err := e.TimelineBuckets(documentRID)
			if err != nil {
				return err
			}

			printEvents := func(label string, events []*model.TimelineEvent) {
				fmt.Printf("%s (%d):\n", label, len(events))
				for _, event := range events {
					date := "          "
					if event.Date != nil {
						date = event.Date.Format("2006-01-02")
					}
					fmt.Printf("  %s  %-10s %-18s %s\n", date, event.Importance, event.Phase, event.Title)
				}
			}
			printEvents("Dated", buckets.Dated)
			printEvents("Relative", buckets.Relative)
			printEvents("Unresolved", buckets.Unresolved)

			if showStats {
				stats, err := e.TimelineStats(documentRID, time.Now())
				if err != nil {
					return err
				}
				return printJSON(stats)
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&showStats, "stats", false, "print aggregate stats as JSON")

	return cmd
}

func newRelinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "relink <document-id>",
		Short: "Backfill entity references and event anchors left unresolved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			documentRID, err := parseDocumentRID(args[0])
			if err != nil {
				return err
			}

			e, err := newEditalgraph()
			if err != nil {
				return err
			}
			defer e.Close()

			resolved, err := e.RelinkDocument(cmd.Context(), documentRID)
			if err != nil {
				return err
			}
			fmt.Printf("Resolved %d pending links\n", resolved)

			return nil
		},
	}
}

func newConflictsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "conflicts <document-id>",
		Short: "Print the conflict audit trail of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			documentRID, err := parseDocumentRID(args[0])
			if err != nil {
				return err
			}

			e, err := newEditalgraph()
			if err != nil {
				return err
			}
			defer e.Close()

			conflicts, err := e.ConflictsByDocument(documentRID)
			if err != nil {
				return err
			}

			for _, conflict := range conflicts {
				fmt.Printf("%s  %-40s %q (%.2f) vs %q (%.2f) -> %s\n",
					conflict.DetectedAt.Format(time.RFC3339), conflict.SemanticKey,
					conflict.ExistingValue, conflict.ExistingConfidence,
					conflict.IncomingValue, conflict.IncomingConfidence,
					conflict.Resolution)
			}
			fmt.Printf("%d conflicts\n", len(conflicts))

			return nil
		},
	}
}

func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func main() {
	root := &cobra.Command{
		Use:           "editalgraph",
		Short:         "Unified extraction store for Brazilian procurement documents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().IntVar(&embeddingDim, "embedding-dim", 384, "dimension of the entity embedding column")
	root.PersistentFlags().StringVar(&policyPath, "policy", "", "path to a YAML unification policy file")

	root.AddCommand(
		newIngestCmd(),
		newEntitiesCmd(),
		newSectionsCmd(),
		newTimelineCmd(),
		newRelinkCmd(),
		newConflictsCmd(),
	)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

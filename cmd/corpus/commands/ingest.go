package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/murtezaalemdar/CompanyAi-sub001/internal/config"
	"github.com/murtezaalemdar/CompanyAi-sub001/internal/ingestion"
	"github.com/murtezaalemdar/CompanyAi-sub001/internal/logging"
)

// NewIngestCmd constructs the `corpus ingest` command, which runs one or more
// files (or stdin) through the ingestion pipeline.
func NewIngestCmd() *cobra.Command {
	var collection string
	var origin string
	var department string
	var documentID string

	cmd := &cobra.Command{
		Use:   "ingest [file...]",
		Short: "Ingest documents into the retrieval corpus",
		Long: `Chunk, quality-gate, embed, and write documents into the vector store.

Each file becomes one document; with no file arguments the text is read from
stdin. Chunks that duplicate already-stored content are skipped, and
auto-learned content below the quality threshold is rejected.

Examples:
  corpus ingest yonetmelik.txt
  corpus ingest --collection learned --origin learned --department hr not.txt
  cat export.txt | corpus ingest --document-id personel-2026`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			org, err := parseOrigin(origin)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			if !validCollectionName(collection) {
				return fmt.Errorf("ingest: unknown collection %q", collection)
			}
			if documentID != "" && len(args) > 1 {
				return fmt.Errorf("ingest: --document-id is only valid with a single input")
			}

			rt, err := buildRuntime(ctx, loadedCfg, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer rt.close()

			if err := rt.service.Start(ctx); err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer rt.service.Stop()

			inputs, err := readInputs(args)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			for _, in := range inputs {
				res, err := rt.service.AddDocument(ctx, ingestion.Request{
					Text:       in.text,
					Collection: collection,
					DocumentID: documentID,
					Department: department,
					Origin:     org,
				})
				if err != nil {
					return fmt.Errorf("ingest: %s: %w", in.name, err)
				}
				fmt.Printf("%s: document %s — %d written, %d duplicates, %d rejected\n",
					in.name, res.DocumentID, res.Written, res.Duplicates, res.Rejected)
				if !res.Accepted() && res.Reason() != "" {
					log.Warn("ingest: nothing written",
						slog.String("document_id", res.DocumentID),
						slog.String("reason", res.Reason()),
					)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&collection, "collection", "c", config.CollectionDocuments, "Target collection (documents, learned, webcache)")
	cmd.Flags().StringVarP(&origin, "origin", "o", "document", "Provenance of the content (document, learned, webcache)")
	cmd.Flags().StringVarP(&department, "department", "d", "", "Visibility tag of the source document")
	cmd.Flags().StringVar(&documentID, "document-id", "", "Explicit document ID (generated when empty)")

	return cmd
}

// input is one named piece of text to ingest.
type input struct {
	name string
	text string
}

// readInputs loads the named files, or stdin when no files are given.
func readInputs(args []string) ([]input, error) {
	if len(args) == 0 {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return []input{{name: "stdin", text: string(data)}}, nil
	}

	inputs := make([]input, 0, len(args))
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		inputs = append(inputs, input{name: path, text: string(data)})
	}
	return inputs, nil
}

// validCollectionName reports whether name is one of the product collections.
func validCollectionName(name string) bool {
	for _, c := range config.Collections() {
		if name == c {
			return true
		}
	}
	return false
}

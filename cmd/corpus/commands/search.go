package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/murtezaalemdar/CompanyAi-sub001/internal/logging"
	"github.com/murtezaalemdar/CompanyAi-sub001/internal/rag"
	"github.com/murtezaalemdar/CompanyAi-sub001/internal/search"
)

// snippetRunes caps how much of each chunk the CLI result listing prints.
const snippetRunes = 160

// NewSearchCmd constructs the `corpus search` command, which runs one hybrid
// query against the corpus and prints the ranked results.
func NewSearchCmd() *cobra.Command {
	var topK int
	var collections []string
	var origins []string

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a hybrid query against the corpus",
		Long: `Run one hybrid (vector + keyword) query and print the ranked results.

Literal matches are guaranteed a slot even when the embedding similarity is
poor: a chunk containing the exact query terms cannot be crowded out by
vague vector neighbours.

Examples:
  corpus search "Ali Veli sicil numarası"
  corpus search --top-k 10 --collections documents,learned "izin yönetmeliği"
  corpus search --origins learned "toplantı günü"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			var filter rag.Filter
			for _, o := range origins {
				org, err := parseOrigin(o)
				if err != nil {
					return fmt.Errorf("search: %w", err)
				}
				filter.Origins = append(filter.Origins, org)
			}

			rt, err := buildRuntime(ctx, loadedCfg, log)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			defer rt.close()

			results, err := rt.service.Search(ctx, search.Request{
				Query:       args[0],
				Collections: collections,
				TopK:        topK,
				Filter:      filter,
			})
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			if len(results) == 0 {
				fmt.Println("no results")
				return nil
			}
			for i, r := range results {
				marker := " "
				if r.KeywordMatch {
					marker = "*"
				}
				fmt.Printf("%2d.%s [%.3f] %s/%s %s\n", i+1, marker,
					r.FinalScore, r.Chunk.Meta.Collection, r.Chunk.Meta.Origin, r.Chunk.ID)
				fmt.Printf("     %s\n", snippet(r.Chunk.Text))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 5, "Number of results to return")
	cmd.Flags().StringSliceVarP(&collections, "collections", "c", nil, "Collections to query (default: all)")
	cmd.Flags().StringSliceVarP(&origins, "origins", "o", nil, "Restrict results to these provenance kinds")

	return cmd
}

// snippet returns the first line of text, truncated to snippetRunes.
func snippet(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	runes := []rune(text)
	if len(runes) > snippetRunes {
		return string(runes[:snippetRunes]) + "…"
	}
	return text
}

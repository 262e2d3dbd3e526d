package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/murtezaalemdar/CompanyAi-sub001/internal/logging"
)

// NewSweepCmd constructs the `corpus sweep` command, which runs one decay
// sweep over the learned collection synchronously.
func NewSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one decay sweep over the learned collection",
		Long: `Recompute the age-based decay weight of every auto-learned chunk.

The serve command runs this sweep on a schedule; sweep runs it once and
exits, for cron-driven deployments or manual maintenance.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			rt, err := buildRuntime(ctx, loadedCfg, log)
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}
			defer rt.close()

			updated, err := rt.service.SweepNow(ctx)
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}
			fmt.Printf("decay sweep complete: %d chunks updated\n", updated)
			return nil
		},
	}
}

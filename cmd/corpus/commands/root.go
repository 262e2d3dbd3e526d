// Package commands defines all Cobra CLI commands for the corpus binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/murtezaalemdar/CompanyAi-sub001/internal/audit"
	"github.com/murtezaalemdar/CompanyAi-sub001/internal/config"
	"github.com/murtezaalemdar/CompanyAi-sub001/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedCfg is the effective configuration resolved in PersistentPreRunE.
// Subcommands read it instead of re-loading.
var loadedCfg *config.Config

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "corpus",
		Short: "corpus — hybrid retrieval core for the company knowledge base",
		Long: `corpus manages a hybrid (vector + keyword) retrieval corpus.

It ingests documents into a Qdrant-backed chunk store with quality gating
and near-duplicate suppression, answers queries with blended semantic and
literal-match scoring tuned for Turkish text, and serves the whole pipeline
over a REST API.

Configuration is layered: defaults, then a YAML file (--config flag,
CORPUS_CONFIG, ~/.corpus/config.yaml, or ./corpus.yaml), then environment
variables. See 'corpus --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			cfg, path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedCfg = cfg
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.corpus/config.yaml)")

	root.AddCommand(
		NewIngestCmd(),
		NewSearchCmd(),
		NewSweepCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}

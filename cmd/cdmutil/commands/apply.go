package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"cdmutil/internal/model"
)

// NewApplyCmd builds the 'apply' command: generate, provision and execute.
func NewApplyCmd(g *globals) *cobra.Command {
	var verify bool

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Generate the DDL for a manifest tree and apply it to the SQL endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd, g, verify)
		},
	}

	addConsumptionFlags(cmd.Flags())
	cmd.Flags().BoolVar(&verify, "verify", false, "Check afterwards that every table exists with the expected columns")
	return cmd
}

func runApply(cmd *cobra.Command, g *globals, verify bool) error {
	ov, err := overrides(cmd, consumptionFlags)
	if err != nil {
		return err
	}
	p, err := g.pipeline()
	if err != nil {
		return err
	}

	res, err := p.ManifestToSQL(cmd.Context(), ov, "")
	if err != nil {
		return fmt.Errorf("applying DDL: %w", err)
	}
	log.Info().Int("tables", len(res.Metadata)).Int("statements", len(res.Statements)).Msg("DDL applied")

	if verify {
		if err := p.Verify(cmd.Context(), res); err != nil {
			return err
		}
		log.Info().Int("tables", len(res.Metadata)).Msg("verified")
	}
	return writeJSON(cmd.OutOrStdout(), model.NewSQLStatements(res.Statements))
}

package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"cdmutil/internal/generator"
	"cdmutil/internal/model"
)

// NewDDLCmd builds the 'ddl' command: generate only, never connect.
func NewDDLCmd(g *globals) *cobra.Command {
	var (
		outputFile string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "ddl",
		Short: "Generate the Synapse DDL for a manifest tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDDL(cmd, g, outputFile, asJSON)
		},
	}

	addConsumptionFlags(cmd.Flags())
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write the script to file instead of stdout")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the statements as JSON")
	return cmd
}

func runDDL(cmd *cobra.Command, g *globals, outputFile string, asJSON bool) error {
	ov, err := overrides(cmd, consumptionFlags)
	if err != nil {
		return err
	}
	p, err := g.pipeline()
	if err != nil {
		return err
	}

	res, err := p.ManifestToDDL(cmd.Context(), ov, "")
	if err != nil {
		return fmt.Errorf("generating DDL: %w", err)
	}

	switch {
	case outputFile != "":
		return generator.RenderToFile(res.Statements, outputFile)
	case asJSON:
		return writeJSON(cmd.OutOrStdout(), model.NewSQLStatements(res.Statements))
	}

	log.Debug().Int("statements", len(res.Statements)).Msg("writing script to stdout")
	_, err = fmt.Fprint(cmd.OutOrStdout(), generator.RenderScript(res.Statements))
	return err
}

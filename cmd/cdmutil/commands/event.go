package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"cdmutil/internal/event"
	"cdmutil/internal/model"
)

// NewEventCmd builds the 'event' command, which replays an Event Grid delivery.
func NewEventCmd(g *globals) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "event <payload.json|->",
		Short: "Run the consumption pipeline for the manifests named in an Event Grid payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvent(cmd, g, args[0], dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Generate the DDL without applying it")
	return cmd
}

func runEvent(cmd *cobra.Command, g *globals, path string, dryRun bool) error {
	payload, err := readInput(cmd, path)
	if err != nil {
		return fmt.Errorf("reading event payload: %w", err)
	}
	events, err := event.Parse(payload)
	if err != nil {
		return err
	}

	code, ok, err := event.ValidationCode(events)
	if err != nil {
		return err
	}
	if ok {
		return writeJSON(cmd.OutOrStdout(), event.ValidationResponse{ValidationResponse: code})
	}

	urls, err := event.ManifestURLs(events)
	if err != nil {
		return err
	}
	p, err := g.pipeline()
	if err != nil {
		return err
	}

	out := make([]model.SQLStatements, 0, len(urls))
	for _, u := range urls {
		log.Info().Str("manifest", u).Bool("dryRun", dryRun).Msg("event received")
		run := p.ManifestToSQL
		if dryRun {
			run = p.ManifestToDDL
		}
		res, err := run(cmd.Context(), nil, u)
		if err != nil {
			return fmt.Errorf("manifest %s: %w", u, err)
		}
		out = append(out, model.NewSQLStatements(res.Statements))
	}
	return writeJSON(cmd.OutOrStdout(), out)
}

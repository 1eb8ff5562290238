package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"cdmutil/internal/config"
	"cdmutil/internal/model"
)

// NewCreateManifestCmd builds the 'create-manifest' command.
func NewCreateManifestCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-manifest <entities.json|->",
		Short: "Write manifests, entity definitions and sub-manifest links from an entity list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreateManifest(cmd, g, args[0])
		},
	}
	addWriterFlags(cmd.Flags())
	return cmd
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

func runCreateManifest(cmd *cobra.Command, g *globals, path string) error {
	data, err := readInput(cmd, path)
	if err != nil {
		return fmt.Errorf("reading entity list: %w", err)
	}
	var list model.EntityList
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("parsing entity list: %w", err)
	}

	ov, err := overrides(cmd, writerFlags)
	if err != nil {
		return err
	}
	p, err := g.pipeline()
	if err != nil {
		return err
	}

	status, err := p.CreateManifest(cmd.Context(), ov, list)
	if err != nil {
		return fmt.Errorf("creating manifest: %w", err)
	}
	return writeJSON(cmd.OutOrStdout(), status)
}

// NewModelJSONCmd builds the 'model-json' command.
func NewModelJSONCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model-json",
		Short: "Write model.json next to an existing manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ov, err := overrides(cmd, writerFlags)
			if err != nil {
				return err
			}
			p, err := g.pipeline()
			if err != nil {
				return err
			}
			m, err := p.ModelJSON(cmd.Context(), ov)
			if err != nil {
				return fmt.Errorf("writing model.json: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), m)
		},
	}
	addWriterFlags(cmd.Flags())
	return cmd
}

// NewDefinitionsCmd builds the 'definitions' command.
func NewDefinitionsCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "definitions",
		Short: "List manifest definitions from Manifest/Artifacts.json",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ov, err := overrides(cmd, map[string]string{"tables": config.KeyTableList})
			if err != nil {
				return err
			}
			p, err := g.pipeline()
			if err != nil {
				return err
			}
			defs, err := p.Definitions(cmd.Context(), ov)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), defs)
		},
	}
	cmd.Flags().String("tables", "", "Comma-separated table names (default: all)")
	return cmd
}

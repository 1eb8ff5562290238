package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"cdmutil/internal/config"
	"cdmutil/internal/manifest"
	"cdmutil/internal/pipeline"
)

// StorageTokenEnv holds the bearer token sent to the lake, when one is needed.
const StorageTokenEnv = "CDMUTIL_STORAGE_TOKEN"

// globals are the persistent flags every command shares.
type globals struct {
	verbose      bool
	envFile      string
	settings     string
	appDir       string
	storageToken string
}

// NewRootCmd builds the cdmutil command tree.
func NewRootCmd(version string) *cobra.Command {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:           "cdmutil",
		Short:         "Turn CDM manifests into Synapse DDL and build manifests from entity lists",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			InitLogging(g.verbose)
			return g.loadEnv()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "Enable verbose (debug) logging")
	pf.StringVar(&g.envFile, "env-file", "", "Load this .env file (in addition to the one next to the binary)")
	pf.StringVar(&g.settings, "config", "", "YAML settings file keyed like the environment (TenantId, Schema, ...)")
	pf.StringVar(&g.appDir, "app-dir", "", "Directory holding SourceColumnProperties.json, ReplaceViewSyntax.json and Manifest/Artifacts.json (default: next to the binary)")
	pf.StringVar(&g.storageToken, "storage-token", "", "Bearer token for lake reads and writes (default $"+StorageTokenEnv+")")

	rootCmd.AddCommand(
		NewDDLCmd(g),
		NewApplyCmd(g),
		NewCreateManifestCmd(g),
		NewDefinitionsCmd(g),
		NewModelJSONCmd(g),
		NewEventCmd(g),
		NewServeCmd(g),
		NewWatchCmd(g),
	)
	return rootCmd
}

func execDir() string {
	execPath, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(execPath)
}

// loadEnv loads the .env next to the binary (if any), then --env-file.
// Variables already set in the process are never overwritten.
func (g *globals) loadEnv() error {
	_ = godotenv.Load(filepath.Join(execDir(), ".env"))
	if g.envFile != "" {
		if err := godotenv.Load(g.envFile); err != nil {
			return fmt.Errorf("loading env file: %w", err)
		}
		log.Debug().Str("path", g.envFile).Msg("env file loaded")
	}
	return nil
}

// pipeline wires the pipeline from the settings file, the environment and the globals.
func (g *globals) pipeline() (*pipeline.Pipeline, error) {
	fileValues, err := config.LoadFile(g.settings)
	if err != nil {
		return nil, err
	}
	env := config.Defaults(fileValues, config.Environ())

	appDir := g.appDir
	if appDir == "" {
		appDir = execDir()
	}
	token := g.storageToken
	if token == "" {
		token = config.GetEnvOrDefault(StorageTokenEnv, "")
	}

	return pipeline.New(manifest.NewStore(token), env, appDir), nil
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

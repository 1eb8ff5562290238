package commands

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"cdmutil/internal/api"
	"cdmutil/internal/config"
	"cdmutil/internal/generator"
	"cdmutil/internal/lake"
	"cdmutil/internal/watch"
)

// AddrEnv overrides the default listen address of 'serve'.
const AddrEnv = "CDMUTIL_ADDR"

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// NewServeCmd builds the 'serve' command.
func NewServeCmd(g *globals) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the pipelines over HTTP (headers carry the configuration)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := g.pipeline()
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			return api.NewServer(p, addr).Serve(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", config.GetEnvOrDefault(AddrEnv, ":8080"), "Listen address")
	return cmd
}

// NewWatchCmd builds the 'watch' command, the local-disk counterpart of the event trigger.
func NewWatchCmd(g *globals) *cobra.Command {
	var apply bool

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Regenerate (or apply) DDL whenever a manifest under dir is written",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := g.pipeline()
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			dir := args[0]
			out := cmd.OutOrStdout()
			return watch.New(dir, func(ctx context.Context, manifestPath string) error {
				if apply {
					res, err := p.ManifestToSQL(ctx, nil, manifestPath)
					if err != nil {
						return err
					}
					log.Info().Str("manifest", manifestPath).Int("statements", len(res.Statements)).Msg("applied")
					return nil
				}
				res, err := p.ManifestToDDL(ctx, nil, manifestPath)
				if err != nil {
					return err
				}
				script := strings.TrimSuffix(manifestPath, lake.ManifestSuffix) + ".sql"
				if err := generator.RenderToFile(res.Statements, script); err != nil {
					return err
				}
				_, err = out.Write([]byte(script + "\n"))
				return err
			}).Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&apply, "apply", false, "Apply the DDL instead of writing a .sql script next to the manifest")
	return cmd
}

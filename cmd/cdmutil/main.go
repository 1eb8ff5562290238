package main

import (
	"os"
	"runtime/debug"

	"github.com/rs/zerolog/log"

	"cdmutil/cmd/cdmutil/commands"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

func init() {
	if version == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			version = info.Main.Version
		}
	}
}

func main() {
	if err := commands.NewRootCmd(version).Execute(); err != nil {
		log.Error().Err(err).Msg("fatal error")
		os.Exit(1)
	}
}

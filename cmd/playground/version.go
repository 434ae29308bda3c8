package main

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// version is set at build time:
//
//	go build -ldflags "-X main.version=v1.2.0" ./cmd/playground
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of playground",
	Run: func(cmd *cobra.Command, args []string) {
		v := version
		if info, ok := debug.ReadBuildInfo(); ok && v == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
			v = info.Main.Version
		}
		fmt.Fprintf(cmd.OutOrStdout(), "playground version %s\n", v)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

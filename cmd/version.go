package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version information, injected at build time via ldflags.
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Mostra a versão do loombot",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("loombot %s\n", AppVersion)
			fmt.Printf("Build: %s\n", BuildTime)
			fmt.Printf("Commit: %s\n", GitCommit)
			return nil
		},
	}
}

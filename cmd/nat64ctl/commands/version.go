package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	appversion "github.com/gonat64/gonat64/internal/version"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print nat64ctl build information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(appversion.Full("nat64ctl"))
		},
	}
}

package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Tune the daemon's live configuration",
	}

	cmd.AddCommand(setTimeoutCmd())
	return cmd
}

func setTimeoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-timeout <class> <duration>",
		Short: "Override an expiry class's timeout",
		Long: "class is one of: udp, icmp, tcp-trans, tcp-est, tcp-incoming-syn.\n" +
			"duration is a Go duration string, e.g. 5m, 2h4m, 6s.",
		Args: cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			req := map[string]string{"class": args[0], "timeout": args[1]}
			if err := doRequest("PATCH", "/config/timeouts", req, nil); err != nil {
				return fmt.Errorf("set timeout: %w", err)
			}
			fmt.Printf("%s timeout set to %s\n", args[0], args[1])
			return nil
		},
	}
}

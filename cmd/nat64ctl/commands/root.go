// Package commands implements the nat64ctl CLI commands.
package commands

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// httpClient is the control API client, configured in PersistentPreRunE.
	httpClient *http.Client

	// serverAddr is the daemon's control API address (host:port).
	serverAddr string

	// outputFormat controls the output format for all commands (table or json).
	outputFormat string
)

// rootCmd is the top-level cobra command for nat64ctl.
var rootCmd = &cobra.Command{
	Use:   "nat64ctl",
	Short: "CLI client for the gonat64 daemon",
	Long:  "nat64ctl talks to the gonat64 daemon's JSON-over-HTTP control API to manage Pool4 addresses, inspect BIB/session state, and tune expiry timeouts.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		httpClient = &http.Client{Timeout: 5 * time.Second}
		return nil
	},
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "localhost:8080",
		"gonat64 control API address (host:port)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table",
		"output format: table, json")

	rootCmd.AddCommand(pool4Cmd())
	rootCmd.AddCommand(bibCmd())
	rootCmd.AddCommand(sessionCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(versionCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// baseURL returns the control API's base URL for the configured address.
func baseURL() string {
	return "http://" + serverAddr
}

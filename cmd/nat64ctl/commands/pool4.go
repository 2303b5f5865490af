package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// pool4Snapshot mirrors internal/nat64.Pool4Snapshot, the control API's
// GET /pool4 response element.
type pool4Snapshot struct {
	Addr string `json:"Addr"`
}

func pool4Cmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pool4",
		Short: "Manage the IPv4 transport-address pool",
	}

	cmd.AddCommand(pool4ListCmd())
	cmd.AddCommand(pool4AddCmd())
	cmd.AddCommand(pool4RemoveCmd())

	return cmd
}

func pool4ListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered Pool4 addresses",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			var addrs []pool4Snapshot
			if err := doRequest("GET", "/pool4", nil, &addrs); err != nil {
				return fmt.Errorf("list pool4: %w", err)
			}

			out, err := formatPool4(addrs, outputFormat)
			if err != nil {
				return fmt.Errorf("format pool4: %w", err)
			}
			fmt.Print(out)
			return nil
		},
	}
}

func pool4AddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <ipv4-address>",
		Short: "Register an IPv4 address with the pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			req := map[string]string{"addr": args[0]}
			if err := doRequest("POST", "/pool4", req, nil); err != nil {
				return fmt.Errorf("add pool4 address: %w", err)
			}
			fmt.Printf("added %s\n", args[0])
			return nil
		},
	}
}

func pool4RemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <ipv4-address>",
		Short: "Remove an IPv4 address from the pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			path := "/pool4/" + args[0]
			if err := doRequest("DELETE", path, nil, nil); err != nil {
				return fmt.Errorf("remove pool4 address: %w", err)
			}
			fmt.Printf("removed %s\n", args[0])
			return nil
		},
	}
}

func formatPool4(addrs []pool4Snapshot, format string) (string, error) {
	switch format {
	case formatJSON:
		return printJSON(addrs)
	case formatTable:
		var buf strings.Builder
		w := newTabwriter(&buf)
		fmt.Fprintln(w, "ADDR")
		for _, a := range addrs {
			fmt.Fprintf(w, "%s\n", a.Addr)
		}
		if err := w.Flush(); err != nil {
			return "", fmt.Errorf("flush tabwriter: %w", err)
		}
		return buf.String(), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

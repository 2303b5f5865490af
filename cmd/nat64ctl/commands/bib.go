package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// transportAddr mirrors internal/nat64.V6Transport / V4Transport, the
// way they serialize through encoding/json (netip.Addr implements
// encoding.TextMarshaler, so Addr comes through as a plain string).
type transportAddr struct {
	Addr string `json:"Addr"`
	Port uint16 `json:"Port"`
}

// bibSnapshot mirrors internal/nat64.BIBSnapshot.
type bibSnapshot struct {
	Proto    int              `json:"Proto"`
	V6Src    transportAddr    `json:"V6Src"`
	V4Src    transportAddr    `json:"V4Src"`
	Sessions []sessionSummary `json:"Sessions"`
}

// sessionSummary decodes part of an internal/nat64.SessionSnapshot as
// embedded in a BIBSnapshot; the snapshot's Proto and V6Dst fields are
// not decoded.
type sessionSummary struct {
	V4Dst    transportAddr `json:"V4Dst"`
	State    int           `json:"State"`
	Class    int           `json:"Class"`
	Deadline string        `json:"Deadline"`
}

func protoName(p int) string {
	switch p {
	case 1:
		return "udp"
	case 2:
		return "tcp"
	case 3:
		return "icmp"
	default:
		return "unknown"
	}
}

func bibCmd() *cobra.Command {
	var proto string

	cmd := &cobra.Command{
		Use:   "bib",
		Short: "List BIB entries",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			var entries []bibSnapshot
			path := "/bib?proto=" + proto
			if err := doRequest("GET", path, nil, &entries); err != nil {
				return fmt.Errorf("list bib: %w", err)
			}

			out, err := formatBIB(entries, outputFormat)
			if err != nil {
				return fmt.Errorf("format bib: %w", err)
			}
			fmt.Print(out)
			return nil
		},
	}

	cmd.Flags().StringVar(&proto, "proto", "udp", "protocol: udp, tcp, icmp")
	return cmd
}

func formatBIB(entries []bibSnapshot, format string) (string, error) {
	switch format {
	case formatJSON:
		return printJSON(entries)
	case formatTable:
		var buf strings.Builder
		w := newTabwriter(&buf)
		fmt.Fprintln(w, "PROTO\tV6-SRC\tV4-SRC\tSESSIONS")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t[%s]:%d\t%s:%d\t%d\n",
				protoName(e.Proto), e.V6Src.Addr, e.V6Src.Port,
				e.V4Src.Addr, e.V4Src.Port, len(e.Sessions))
		}
		if err := w.Flush(); err != nil {
			return "", fmt.Errorf("flush tabwriter: %w", err)
		}
		return buf.String(), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

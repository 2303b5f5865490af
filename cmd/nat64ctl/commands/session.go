package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// sessionSnapshot mirrors internal/nat64.SessionSnapshot, the element
// type of GET /sessions.
type sessionSnapshot struct {
	Proto    int           `json:"Proto"`
	V6Dst    transportAddr `json:"V6Dst"`
	V4Dst    transportAddr `json:"V4Dst"`
	State    int           `json:"State"`
	Class    int           `json:"Class"`
	Deadline string        `json:"Deadline"`
}

func stateName(s int) string {
	switch s {
	case 0:
		return "closed"
	case 1:
		return "v6-syn-rcv"
	case 2:
		return "v4-syn-rcv"
	case 3:
		return "established"
	case 4:
		return "trans"
	case 5:
		return "v6-fin-rcv"
	case 6:
		return "v4-fin-rcv"
	case 7:
		return "v6-fin-v4-fin"
	default:
		return "unknown"
	}
}

func classNameFromInt(c int) string {
	switch c {
	case 0:
		return "udp"
	case 1:
		return "tcp-trans"
	case 2:
		return "tcp-est"
	case 3:
		return "tcp-incoming-syn"
	case 4:
		return "icmp"
	default:
		return "unknown"
	}
}

func sessionCmd() *cobra.Command {
	var proto string

	cmd := &cobra.Command{
		Use:   "session",
		Short: "List translation sessions",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			var sessions []sessionSnapshot
			path := "/sessions?proto=" + proto
			if err := doRequest("GET", path, nil, &sessions); err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}

			out, err := formatSessions(sessions, outputFormat)
			if err != nil {
				return fmt.Errorf("format sessions: %w", err)
			}
			fmt.Print(out)
			return nil
		},
	}

	cmd.Flags().StringVar(&proto, "proto", "udp", "protocol: udp, tcp, icmp")
	return cmd
}

func formatSessions(sessions []sessionSnapshot, format string) (string, error) {
	switch format {
	case formatJSON:
		return printJSON(sessions)
	case formatTable:
		var buf strings.Builder
		w := newTabwriter(&buf)
		fmt.Fprintln(w, "PROTO\tV4-DST\tSTATE\tCLASS\tDEADLINE")
		for _, s := range sessions {
			fmt.Fprintf(w, "%s\t%s:%d\t%s\t%s\t%s\n",
				protoName(s.Proto), s.V4Dst.Addr, s.V4Dst.Port,
				stateName(s.State), classNameFromInt(s.Class), s.Deadline)
		}
		if err := w.Flush(); err != nil {
			return "", fmt.Errorf("flush tabwriter: %w", err)
		}
		return buf.String(), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

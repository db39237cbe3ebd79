package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"ports/internal/app"
	"ports/internal/model"
	"ports/internal/netstat"
	"ports/internal/resolver"
)

var (
	listConnections bool
	listProtocol    string
	listSort        string
	listRegex       bool
	listWhy         bool
	listJSON        bool
)

func init() {
	rootCmd.AddCommand(cmdList)
	registerListFlags(cmdList)
}

// registerListFlags binds the same variables on `ports` and `ports list`.
func registerListFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&listConnections, "connections", "c", false, "Show established connections instead of listeners")
	cmd.Flags().StringVarP(&listProtocol, "protocol", "p", "", "Only show tcp or udp sockets")
	cmd.Flags().StringVarP(&listSort, "sort", "s", "port", "Sort by port, pid or name")
	cmd.Flags().BoolVarP(&listRegex, "regex", "r", false, "Treat the query as a regular expression over process names")
	cmd.Flags().BoolVarP(&listWhy, "why", "w", false, "Add source and ancestry columns")
	cmd.Flags().BoolVar(&listJSON, "json", false, "Print JSON instead of a table")
}

var cmdList = &cobra.Command{
	Use:   "list [query]",
	Short: "List sockets and the processes that own them",
	Long: `Lists listening sockets (or established connections with --connections).
A numeric query matches a port, then a pid; anything else matches process names.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runList,
}

// listRow joins a socket with its owner's ancestry for JSON output.
type listRow struct {
	model.SocketRecord
	Ancestry *model.ProcessAncestry `json:"ancestry,omitempty"`
}

func runList(cmd *cobra.Command, args []string) error {
	params, err := listParams(args)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	res, err := controller().List(cmd.Context(), params)
	if errors.Is(err, resolver.ErrNoMatch) {
		if listJSON {
			fmt.Fprintln(out, "[]")
			return nil
		}
		fmt.Fprintf(out, "No sockets match %q\n", params.Query.Target)
		return nil
	}
	if err != nil {
		return err
	}

	if listJSON {
		rows := make([]listRow, 0, len(res.Records))
		for _, rec := range res.Records {
			row := listRow{SocketRecord: rec}
			if anc, ok := res.Ancestry[rec.PID]; ok && rec.PID != 0 {
				row.Ancestry = &anc
			}
			rows = append(rows, row)
		}
		return writeJSON(out, rows)
	}

	if len(res.Records) == 0 {
		if params.Filter.Connections {
			fmt.Fprintln(out, "No established connections")
		} else {
			fmt.Fprintln(out, "No listening ports")
		}
		return nil
	}
	return renderList(out, res, params.Filter.Connections, params.WithAncestry)
}

func listParams(args []string) (app.ListParams, error) {
	var params app.ListParams
	if len(args) > 0 {
		params.Query.Target = args[0]
	}
	params.Query.Regex = listRegex
	params.Filter.Connections = listConnections
	if listProtocol != "" {
		proto, err := model.ParseProtocol(listProtocol)
		if err != nil {
			return params, err
		}
		params.Filter.Protocols = []model.Protocol{proto}
	}
	field, err := resolver.ParseSortField(listSort)
	if err != nil {
		return params, err
	}
	params.Sort = field
	params.WithAncestry = listWhy
	return params, nil
}

func renderList(out io.Writer, res app.ListResult, connections, why bool) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	header := []string{"PROTO", "PORT", "ADDRESS"}
	if connections {
		header = append(header, "REMOTE")
	}
	header = append(header, "PID", "PROCESS", "SERVICE")
	if why {
		header = append(header, "SOURCE", "CHAIN")
	}
	fmt.Fprintln(w, strings.Join(header, "\t"))

	for _, rec := range res.Records {
		address := rec.LocalAddress
		if netstat.IsPublicAddress(address) {
			address += " *"
		}
		cols := []string{string(rec.Protocol), fmt.Sprintf("%d", rec.Port), address}
		if connections {
			cols = append(cols, rec.RemoteAddress)
		}
		cols = append(cols, pidOrDash(rec.PID), orDash(rec.ProcessName), orDash(model.ServiceName(rec.Port)))
		if why {
			source, chain := "-", "-"
			if anc, ok := res.Ancestry[rec.PID]; ok && rec.PID != 0 {
				source = anc.Source.String()
				if anc.SupervisorUnit != "" {
					source += " (" + anc.SupervisorUnit + ")"
				}
				chain = anc.ChainString()
			}
			cols = append(cols, source, chain)
		}
		fmt.Fprintln(w, strings.Join(cols, "\t"))
	}
	return w.Flush()
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func pidOrDash(pid uint32) string {
	if pid == 0 {
		return "-"
	}
	return fmt.Sprintf("%d", pid)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"ports/internal/app"
	"ports/internal/model"
	"ports/internal/resolver"
)

var whyJSON bool

func init() {
	rootCmd.AddCommand(cmdWhy)
	cmdWhy.Flags().BoolVar(&whyJSON, "json", false, "Print JSON instead of text")
}

var (
	headingStyle = lipgloss.NewStyle().Bold(true)
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
)

var cmdWhy = &cobra.Command{
	Use:   "why <target>",
	Short: "Explain why a process is running",
	Long: `Explains the process behind a port, pid or name: what launched it, its
ancestry chain from the root of the process tree, its git checkout and
anything suspicious such as a deleted binary.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		reports, err := controller().Why(cmd.Context(), args[0])
		if errors.Is(err, resolver.ErrNoMatch) {
			if whyJSON {
				fmt.Fprintln(out, "[]")
				return nil
			}
			fmt.Fprintf(out, "Nothing matches %q\n", args[0])
			return nil
		}
		if err != nil {
			return err
		}
		if whyJSON {
			return writeJSON(out, whyRows(reports))
		}
		for i, r := range reports {
			if i > 0 {
				fmt.Fprintln(out)
			}
			renderWhy(out, r)
		}
		return nil
	},
}

type whyRow struct {
	PID      uint32                `json:"pid"`
	Name     string                `json:"name"`
	Command  string                `json:"command,omitempty"`
	Ports    []model.SocketRecord  `json:"ports"`
	Ancestry model.ProcessAncestry `json:"ancestry"`
}

func whyRows(reports []app.WhyReport) []whyRow {
	rows := make([]whyRow, 0, len(reports))
	for _, r := range reports {
		ports := r.Ports
		if ports == nil {
			ports = []model.SocketRecord{}
		}
		rows = append(rows, whyRow{
			PID:      r.Process.PID,
			Name:     r.Process.Name,
			Command:  r.Command,
			Ports:    ports,
			Ancestry: r.Ancestry,
		})
	}
	return rows
}

func renderWhy(out io.Writer, r app.WhyReport) {
	line := func(label, value string) {
		fmt.Fprintf(out, "  %s %s\n", labelStyle.Render(fmt.Sprintf("%-9s", label+":")), value)
	}

	fmt.Fprintln(out, headingStyle.Render(fmt.Sprintf("%s (pid %d)", orDash(r.Process.Name), r.Process.PID)))
	if r.Command != "" {
		line("Command", r.Command)
	}
	source := r.Ancestry.Source.String()
	if r.Ancestry.SupervisorUnit != "" {
		source += " (" + r.Ancestry.SupervisorUnit + ")"
	}
	line("Source", source)
	line("Chain", r.Ancestry.ChainString())
	if repo := r.Ancestry.Repo; repo != nil {
		git := repo.Root
		if repo.Branch != "" {
			git += " (" + repo.Branch + ")"
		}
		line("Git", git)
	}
	if len(r.Ancestry.Warnings) > 0 {
		names := make([]string, 0, len(r.Ancestry.Warnings))
		for _, w := range r.Ancestry.Warnings {
			names = append(names, w.String())
		}
		line("Warnings", warningStyle.Render(strings.Join(names, ", ")))
	}
	if len(r.Ports) > 0 {
		ports := make([]string, 0, len(r.Ports))
		for _, p := range r.Ports {
			desc := fmt.Sprintf("%s %s", p.Protocol, p.LocalAddress)
			if p.RemoteAddress != "" {
				desc += " → " + p.RemoteAddress
			}
			ports = append(ports, desc+" ("+string(p.State)+")")
		}
		line("Ports", strings.Join(ports, ", "))
	}
}

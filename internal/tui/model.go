package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ports/internal/app"
	"ports/internal/model"
	"ports/internal/resolver"
)

const (
	defaultInterval = time.Second
	highlightFor    = 3 * time.Second
	chromeHeight    = 8
)

// Controller defines the subset of app.App behaviour the TUI needs.
type Controller interface {
	List(context.Context, app.ListParams) (app.ListResult, error)
	Ancestry(ctx context.Context, pid uint32, name string) (model.ProcessAncestry, error)
	Kill(context.Context, app.KillParams) (app.KillResult, error)
}

// Options tunes the dashboard.
type Options struct {
	// Interval between refreshes; defaults to one second.
	Interval time.Duration
	now      func() time.Time
}

var (
	baseStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("240"))
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	detailStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// recordKey identifies a socket across refreshes.
type recordKey struct {
	protocol model.Protocol
	local    string
	remote   string
	pid      uint32
}

func keyOf(r model.SocketRecord) recordKey {
	return recordKey{protocol: r.Protocol, local: r.LocalAddress, remote: r.RemoteAddress, pid: r.PID}
}

// Model represents the Bubble Tea state.
type Model struct {
	controller Controller
	interval   time.Duration
	now        func() time.Time

	table       table.Model
	records     []model.SocketRecord
	firstSeen   map[recordKey]time.Time
	loadedOnce  bool
	connections bool
	sortField   resolver.SortField

	detail    *model.ProcessAncestry
	detailFor model.SocketRecord

	confirmKill *model.SocketRecord

	statusMsg string
	err       error
	loading   bool

	width  int
	height int

	seq         int
	cancel      context.CancelFunc
	lastUpdated time.Time
}

// New constructs a TUI model with default styles.
func New(ctrl Controller, opts Options) *Model {
	interval := opts.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	now := opts.now
	if now == nil {
		now = time.Now
	}
	m := &Model{
		controller: ctrl,
		interval:   interval,
		now:        now,
		firstSeen:  make(map[recordKey]time.Time),
		sortField:  resolver.SortPort,
		loading:    true,
		height:     24,
	}
	m.initTable()
	return m
}

// Run spins up the Bubble Tea program with sensible defaults.
func Run(ctrl Controller, opts Options) error {
	m := New(ctrl, opts)
	prog := tea.NewProgram(m, tea.WithAltScreen())
	_, err := prog.Run()
	m.stopRefresh()
	return err
}

func (m *Model) initTable() {
	columns := []table.Column{
		{Title: "", Width: 1},
		{Title: "Proto", Width: 5},
		{Title: "Port", Width: 6},
		{Title: "Local Address", Width: 24},
	}
	if m.connections {
		columns = append(columns, table.Column{Title: "Remote Address", Width: 24})
	}
	columns = append(columns,
		table.Column{Title: "PID", Width: 8},
		table.Column{Title: "Process", Width: 20},
		table.Column{Title: "Service", Width: 10},
	)

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(m.tableHeight()),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(true)
	t.SetStyles(s)
	m.table = t
}

func (m *Model) tableHeight() int {
	if h := m.height - chromeHeight; h > 3 {
		return h
	}
	return 3
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.refresh(), tick(m.interval))
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetHeight(m.tableHeight())
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.refresh(), tick(m.interval))

	case socketsLoadedMsg:
		if msg.seq != m.seq {
			return m, nil
		}
		m.loading = false
		m.err = nil
		m.applyRecords(msg.records)
		m.lastUpdated = m.now()
		return m, nil

	case ancestryLoadedMsg:
		if msg.err != nil {
			m.statusMsg = fmt.Sprintf("No ancestry for pid %d: %v", msg.record.PID, msg.err)
			return m, nil
		}
		anc := msg.ancestry
		m.detail = &anc
		m.detailFor = msg.record
		return m, nil

	case killDoneMsg:
		m.statusMsg = killSummary(msg.result, msg.err)
		return m, m.refresh()

	case errMsg:
		if msg.seq != m.seq {
			return m, nil
		}
		m.loading = false
		m.err = msg.err
		return m, nil

	case tea.KeyMsg:
		if m.confirmKill != nil {
			return m.updateConfirm(msg)
		}
		switch msg.String() {
		case "ctrl+c", "q":
			m.stopRefresh()
			return m, tea.Quit
		case "esc":
			m.detail = nil
			m.statusMsg = ""
			return m, nil
		case "tab":
			m.connections = !m.connections
			m.detail = nil
			m.records = nil
			m.firstSeen = make(map[recordKey]time.Time)
			m.loadedOnce = false
			m.loading = true
			m.initTable()
			return m, m.refresh()
		case "p":
			m.setSort(resolver.SortPort)
			return m, nil
		case "i":
			m.setSort(resolver.SortPID)
			return m, nil
		case "n":
			m.setSort(resolver.SortName)
			return m, nil
		case "r":
			return m, m.refresh()
		case "enter":
			rec, ok := m.selected()
			if !ok || !rec.Attributed() {
				m.statusMsg = "Owner of this socket is not visible"
				return m, nil
			}
			return m, loadAncestryCmd(m.controller, rec)
		case "k":
			rec, ok := m.selected()
			if !ok || !rec.Attributed() {
				m.statusMsg = "Owner of this socket is not visible"
				return m, nil
			}
			m.confirmKill = &rec
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *Model) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	rec := *m.confirmKill
	m.confirmKill = nil
	switch msg.String() {
	case "y", "Y":
		m.statusMsg = fmt.Sprintf("Terminating %s (pid %d)…", rec.ProcessName, rec.PID)
		return m, killCmd(m.controller, rec)
	case "ctrl+c":
		m.stopRefresh()
		return m, tea.Quit
	default:
		m.statusMsg = "Kill cancelled"
		return m, nil
	}
}

// refresh cancels any in-flight load and starts a new one.
func (m *Model) refresh() tea.Cmd {
	m.stopRefresh()
	m.seq++
	ctx, cancel := context.WithTimeout(context.Background(), 4*m.interval)
	m.cancel = cancel
	params := app.ListParams{Filter: model.SocketFilter{Connections: m.connections}}
	return loadSocketsCmd(ctx, m.controller, params, m.seq)
}

func (m *Model) stopRefresh() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

func (m *Model) setSort(field resolver.SortField) {
	m.sortField = field
	resolver.Sort(m.records, field)
	m.setRows()
}

// applyRecords diffs the new table against what was on screen; rows
// first seen after the initial load stay marked for a few seconds.
func (m *Model) applyRecords(records []model.SocketRecord) {
	now := m.now()
	next := make(map[recordKey]time.Time, len(records))
	for _, r := range records {
		k := keyOf(r)
		if seen, ok := m.firstSeen[k]; ok {
			next[k] = seen
		} else if m.loadedOnce {
			next[k] = now
		} else {
			next[k] = time.Time{}
		}
	}
	m.firstSeen = next
	m.loadedOnce = true

	resolver.Sort(records, m.sortField)
	m.records = records
	m.setRows()
}

func (m *Model) isNew(r model.SocketRecord) bool {
	seen, ok := m.firstSeen[keyOf(r)]
	return ok && !seen.IsZero() && m.now().Sub(seen) < highlightFor
}

func (m *Model) setRows() {
	rows := make([]table.Row, 0, len(m.records))
	for _, r := range m.records {
		mark := " "
		if m.isNew(r) {
			mark = "+"
		}
		row := table.Row{mark, string(r.Protocol), strconv.Itoa(int(r.Port)), r.LocalAddress}
		if m.connections {
			row = append(row, r.RemoteAddress)
		}
		row = append(row, pidOrDash(r.PID), valueOrDash(r.ProcessName), valueOrDash(model.ServiceName(r.Port)))
		rows = append(rows, row)
	}
	m.table.SetRows(rows)
	if c := m.table.Cursor(); c >= len(rows) && len(rows) > 0 {
		m.table.SetCursor(len(rows) - 1)
	}
}

func (m *Model) selected() (model.SocketRecord, bool) {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.records) {
		return model.SocketRecord{}, false
	}
	return m.records[idx], true
}

// View implements tea.Model.
func (m *Model) View() string {
	var b strings.Builder

	mode := "listening"
	if m.connections {
		mode = "connections"
	}
	b.WriteString(titleStyle.Render(fmt.Sprintf("ports • %s • %d sockets • sort=%s", mode, len(m.records), m.sortField)))
	b.WriteByte('\n')

	switch {
	case m.loading && len(m.records) == 0:
		b.WriteString("Loading sockets…\n")
	case m.err != nil:
		b.WriteString(errStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteByte('\n')
	}

	b.WriteString(baseStyle.Render(m.table.View()))
	b.WriteByte('\n')

	if m.detail != nil {
		b.WriteString(detailStyle.Render(renderDetail(m.detailFor, *m.detail)))
		b.WriteByte('\n')
	}

	if m.confirmKill != nil {
		b.WriteString(warnStyle.Render(fmt.Sprintf("Kill %s (pid %d) on port %d? [y/N]",
			valueOrDash(m.confirmKill.ProcessName), m.confirmKill.PID, m.confirmKill.Port)))
		b.WriteByte('\n')
	} else if m.statusMsg != "" {
		b.WriteString(m.statusMsg)
		b.WriteByte('\n')
	}

	help := "q quit • tab listening/connections • p/i/n sort • enter why • k kill • esc close"
	if !m.lastUpdated.IsZero() {
		help += fmt.Sprintf(" • updated %s", m.lastUpdated.Format(time.Kitchen))
	}
	b.WriteString(helpStyle.Render(help))
	return b.String()
}

func renderDetail(rec model.SocketRecord, anc model.ProcessAncestry) string {
	lines := []string{
		fmt.Sprintf("%s (pid %d) on %s", valueOrDash(rec.ProcessName), rec.PID, rec.LocalAddress),
		"Source: " + anc.Source.String(),
	}
	if anc.SupervisorUnit != "" {
		lines = append(lines, "Unit:   "+anc.SupervisorUnit)
	}
	lines = append(lines, "Chain:  "+anc.ChainString())
	if anc.Repo != nil {
		git := anc.Repo.Root
		if anc.Repo.Branch != "" {
			git += " (" + anc.Repo.Branch + ")"
		}
		lines = append(lines, "Git:    "+git)
	}
	if len(anc.Warnings) > 0 {
		warnings := make([]string, 0, len(anc.Warnings))
		for _, w := range anc.Warnings {
			warnings = append(warnings, w.String())
		}
		lines = append(lines, warnStyle.Render("Warn:   "+strings.Join(warnings, ", ")))
	}
	return strings.Join(lines, "\n")
}

func killSummary(res app.KillResult, err error) string {
	if res.Message != "" {
		return res.Message
	}
	var parts []string
	for _, ev := range res.Events {
		switch ev.Kind {
		case "success":
			parts = append(parts, fmt.Sprintf("killed %s (pid %d)", ev.Proc.Name, ev.Proc.PID))
		default:
			parts = append(parts, fmt.Sprintf("pid %d: %v", ev.Proc.PID, ev.Err))
		}
		if ev.Note != "" {
			parts = append(parts, ev.Note)
		}
	}
	if len(parts) == 0 && err != nil {
		return "Kill failed: " + err.Error()
	}
	return strings.Join(parts, "; ")
}

func pidOrDash(pid uint32) string {
	if pid == 0 {
		return "-"
	}
	return strconv.FormatUint(uint64(pid), 10)
}

func valueOrDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

type tickMsg time.Time

type socketsLoadedMsg struct {
	seq     int
	records []model.SocketRecord
}

type ancestryLoadedMsg struct {
	record   model.SocketRecord
	ancestry model.ProcessAncestry
	err      error
}

type killDoneMsg struct {
	result app.KillResult
	err    error
}

type errMsg struct {
	seq int
	err error
}

func (e errMsg) Error() string { return e.err.Error() }

func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func loadSocketsCmd(ctx context.Context, ctrl Controller, params app.ListParams, seq int) tea.Cmd {
	return func() tea.Msg {
		res, err := ctrl.List(ctx, params)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return errMsg{seq: seq, err: err}
		}
		return socketsLoadedMsg{seq: seq, records: res.Records}
	}
}

func loadAncestryCmd(ctrl Controller, rec model.SocketRecord) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
		defer cancel()
		anc, err := ctrl.Ancestry(ctx, rec.PID, rec.ProcessName)
		return ancestryLoadedMsg{record: rec, ancestry: anc, err: err}
	}
}

func killCmd(ctrl Controller, rec model.SocketRecord) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), app.DefaultKillTimeout+time.Second)
		defer cancel()
		res, err := ctrl.Kill(ctx, app.KillParams{
			PID:     rec.PID,
			Name:    rec.ProcessName,
			Timeout: app.DefaultKillTimeout,
		})
		return killDoneMsg{result: res, err: err}
	}
}

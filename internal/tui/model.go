package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"battproc/internal/app"
)

const (
	requestTimeout  = 30 * time.Second
	defaultInterval = 5 * time.Second
)

// Controller defines the subset of app.App behaviour the TUI needs.
type Controller interface {
	Strategy() string
	List(context.Context, app.ListParams) ([]app.Process, error)
	Kill(context.Context, app.KillParams) (app.KillResult, error)
	Cleanup(context.Context, app.CleanupParams) (app.KillResult, error)
}

// Model represents the Bubble Tea state.
type Model struct {
	controller Controller
	interval   time.Duration

	list      list.Model
	processes []app.Process
	selected  map[int]bool

	statusMsg string
	busy      bool

	err     error
	loading bool

	width  int
	height int

	lastUpdated time.Time
}

// New constructs a TUI model with default styles. interval paces the
// automatic refresh; zero selects the default.
func New(ctrl Controller, interval time.Duration) *Model {
	if interval <= 0 {
		interval = defaultInterval
	}
	delegate := list.NewDefaultDelegate()
	lst := list.New([]list.Item{}, delegate, 0, 0)
	lst.Title = "Tracked processes"
	lst.SetShowHelp(false)
	lst.SetFilteringEnabled(false)
	lst.DisableQuitKeybindings()

	return &Model{
		controller: ctrl,
		interval:   interval,
		list:       lst,
		statusMsg:  fmt.Sprintf("Terminating via %s. Press r to refresh, q to quit.", ctrl.Strategy()),
		loading:    true,
		selected:   make(map[int]bool),
	}
}

// Run spins up the Bubble Tea program with sensible defaults.
func Run(ctrl Controller, interval time.Duration) error {
	m := New(ctrl, interval)
	prog := tea.NewProgram(m, tea.WithAltScreen())
	_, err := prog.Run()
	return err
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(loadProcessesCmd(m.controller), tickCmd(m.interval))
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.height > 4 {
			m.list.SetSize(msg.Width, msg.Height-4)
		}

	case tickMsg:
		return m, tea.Batch(loadProcessesCmd(m.controller), tickCmd(m.interval))

	case processesLoadedMsg:
		m.loading = false
		m.err = nil
		m.processes = msg.processes
		newSelected := make(map[int]bool)
		items := make([]list.Item, 0, len(msg.processes))
		for _, proc := range msg.processes {
			selected := m.selected[proc.PID]
			if selected {
				newSelected[proc.PID] = true
			}
			items = append(items, processItem{Process: proc, Selected: selected})
		}
		m.selected = newSelected
		m.list.SetItems(items)
		m.lastUpdated = time.Now()

	case killDoneMsg:
		m.busy = false
		m.statusMsg = summarize(msg.action, msg.result)
		return m, loadProcessesCmd(m.controller)

	case errMsg:
		m.loading = false
		m.busy = false
		m.err = msg.err

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "r":
			m.loading = true
			return m, loadProcessesCmd(m.controller)
		case "k", "K":
			pids := m.targetPIDs()
			if len(pids) == 0 || m.busy {
				break
			}
			force := msg.String() == "K"
			m.busy = true
			m.statusMsg = fmt.Sprintf("Terminating %d process(es)…", len(pids))
			return m, killCmd(m.controller, pids, force)
		case "x":
			if m.busy {
				break
			}
			m.busy = true
			m.statusMsg = "Cleaning up every tracked process…"
			return m, cleanupCmd(m.controller)
		case " ":
			m.toggleCurrentSelection()
		case "c":
			if len(m.selected) > 0 {
				m.clearSelection()
			}
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m *Model) View() string {
	var b strings.Builder

	statusStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	if m.busy {
		statusStyle = statusStyle.Foreground(lipgloss.Color("214"))
	}
	b.WriteString(statusStyle.Render(m.statusMsg))
	b.WriteByte('\n')

	if m.loading {
		b.WriteString("Loading processes…\n")
	} else if m.err != nil {
		errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
		b.WriteString(errStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteByte('\n')
	}

	if len(m.list.Items()) == 0 && !m.loading && m.err == nil {
		b.WriteString("No tracked processes.\n")
	} else {
		b.WriteString(m.list.View())
		b.WriteByte('\n')
	}

	if current := m.currentProcess(); current != nil {
		detail := fmt.Sprintf(
			"pid=%d label=%s\ncmd=%s\nlaunched=%s runtime=%s\n%s",
			current.PID,
			valueOrDash(current.Label),
			current.Cmd,
			current.LaunchedAt.Local().Format(time.Kitchen),
			current.Runtime.Truncate(time.Second),
			usage(*current),
		)
		detailStyle := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1).MarginBottom(1)
		b.WriteString(detailStyle.Render(detail))
		b.WriteByte('\n')
	}

	help := "Commands: q quit • r reload • k terminate • K force kill • x cleanup all • space select • c clear selection"
	if count := len(m.selected); count > 0 {
		help += fmt.Sprintf(" • selected=%d", count)
	}
	if !m.lastUpdated.IsZero() {
		help += fmt.Sprintf(" • last update %s", m.lastUpdated.Format(time.Kitchen))
	}
	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	b.WriteString(helpStyle.Render(help))

	return b.String()
}

// processItem adapts app.Process to the bubbles list item interface.
type processItem struct {
	Process  app.Process
	Selected bool
}

func (p processItem) Title() string {
	mark := " "
	if p.Selected {
		mark = "✓"
	}
	return fmt.Sprintf("[%s] [pid=%d] %s", mark, p.Process.PID, valueOrDash(p.Process.Label))
}

func (p processItem) Description() string {
	return fmt.Sprintf("%s | %s", usage(p.Process), p.Process.Cmd)
}

func (p processItem) FilterValue() string {
	return fmt.Sprintf("%d %s %s", p.Process.PID, p.Process.Label, p.Process.Cmd)
}

func usage(p app.Process) string {
	if !p.Sampled {
		return "cpu=n/a mem=n/a"
	}
	return fmt.Sprintf("cpu=%.1f%% mem=%s", p.CPUPercent, humanBytes(p.MemoryBytes))
}

func humanBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// targetPIDs returns the selected pids, or the highlighted one when nothing
// is selected.
func (m *Model) targetPIDs() []int {
	if len(m.selected) > 0 {
		pids := make([]int, 0, len(m.selected))
		for pid := range m.selected {
			pids = append(pids, pid)
		}
		sort.Ints(pids)
		return pids
	}
	if current := m.currentProcess(); current != nil {
		return []int{current.PID}
	}
	return nil
}

func (m *Model) toggleCurrentSelection() {
	if len(m.processes) == 0 {
		return
	}
	idx := m.list.Index()
	if idx < 0 || idx >= len(m.processes) {
		return
	}
	item, ok := m.list.Items()[idx].(processItem)
	if !ok {
		return
	}
	if item.Selected {
		delete(m.selected, item.Process.PID)
	} else {
		m.selected[item.Process.PID] = true
	}
	item.Selected = !item.Selected
	m.list.SetItem(idx, item)
}

func (m *Model) clearSelection() {
	m.selected = make(map[int]bool)
	items := m.list.Items()
	for i, it := range items {
		if pi, ok := it.(processItem); ok && pi.Selected {
			pi.Selected = false
			m.list.SetItem(i, pi)
		}
	}
}

func (m *Model) currentProcess() *app.Process {
	if len(m.processes) == 0 {
		return nil
	}
	idx := m.list.Index()
	if idx < 0 || idx >= len(m.processes) {
		return nil
	}
	return &m.processes[idx]
}

func valueOrDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func summarize(action string, res app.KillResult) string {
	msg := fmt.Sprintf("%s: %d terminated", action, res.Terminated)
	if n := len(res.Warnings); n > 0 {
		msg += fmt.Sprintf(", %d warning(s): %s", n, res.Warnings[0])
	}
	return msg
}

type tickMsg time.Time

type processesLoadedMsg struct {
	processes []app.Process
}

type killDoneMsg struct {
	action string
	result app.KillResult
}

type errMsg struct{ err error }

func (e errMsg) Error() string { return e.err.Error() }

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func loadProcessesCmd(ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		procs, err := ctrl.List(ctx, app.ListParams{})
		if err != nil {
			return errMsg{err}
		}
		return processesLoadedMsg{processes: procs}
	}
}

func killCmd(ctrl Controller, pids []int, force bool) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		res, err := ctrl.Kill(ctx, app.KillParams{IDs: pids, Force: force})
		if err != nil {
			return errMsg{err}
		}
		action := "terminate"
		if force {
			action = "force kill"
		}
		return killDoneMsg{action: action, result: res}
	}
}

func cleanupCmd(ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		res, err := ctrl.Cleanup(ctx, app.CleanupParams{})
		if err != nil {
			return errMsg{err}
		}
		return killDoneMsg{action: "cleanup", result: res}
	}
}

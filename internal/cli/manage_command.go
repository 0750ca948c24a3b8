package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"pbrify/internal/batch"
	"pbrify/internal/discovery"
	"pbrify/internal/logging"
	"pbrify/internal/model"
	"pbrify/internal/settings"
)

type manageMode int

const (
	manageModeBrowse manageMode = iota
	manageModeForm
	manageModeRun
)

type manageFieldKind int

const (
	manageFieldString manageFieldKind = iota
	manageFieldSelect
)

type manageFormField struct {
	Key      string
	Label    string
	Help     string
	Kind     manageFieldKind
	Value    string
	Options  []string
	Required bool
}

type manageForm struct {
	Title  string
	Fields []manageFormField
	Index  int
	Input  textinput.Model
	Error  string
	Saving bool
}

const (
	manageActionRun = iota
	manageActionScan
	manageActionSettings
	manageActionCount
)

var manageActionLabels = [manageActionCount]string{
	manageActionRun:      "Start Run",
	manageActionScan:     "Scan Mods",
	manageActionSettings: "Edit Settings",
}

// manageLogLimit bounds the lines kept for the run log pane.
const manageLogLimit = 1000

// manageRun is the live state of a run started from the TUI. It is shared
// by pointer so every copy of the model sees the same run.
type manageRun struct {
	coord  *batch.Coordinator
	events <-chan model.Event

	overall  model.OverallProgress
	units    model.UnitProgress
	logs     []string
	failure  string
	finished *model.RunFinished
	stopping bool

	overallBar progress.Model
	unitBar    progress.Model
	logView    viewport.Model
	spin       spinner.Model
}

type manageModel struct {
	opts     *rootOptions
	cfg      settings.Settings
	cfgErr   error
	cursor   int
	width    int
	height   int
	mode     manageMode
	form     *manageForm
	scan     *discovery.ScanResult
	run      *manageRun
	lastRun  *model.RunFinished
	lastFail string

	statusMessage string
	fatalErr      error
}

type manageLoadedMsg struct {
	cfg       settings.Settings
	discarded []settings.Discarded
	err       error
}

type manageSaveMsg struct {
	message string
	cfg     settings.Settings
	err     error
}

type manageScanMsg struct {
	res discovery.ScanResult
	err error
}

type manageEventMsg struct {
	ev model.Event
}

type manageRunClosedMsg struct{}

var (
	manageTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	manageMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	manageErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	manageWarnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	manageOKStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	managePanelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	manageSelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62")).Bold(true)
)

func newManageCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "manage",
		Short: "Interactive settings, scan and run view",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !stdinIsTTY() {
				return errors.New("manage requires an interactive terminal (TTY)")
			}
			m := newManageModel(opts)
			p := tea.NewProgram(m, tea.WithAltScreen())
			finalModel, err := p.Run()
			if err != nil {
				if strings.Contains(strings.ToLower(err.Error()), "tty") {
					return errors.New("manage requires an interactive terminal (TTY)")
				}
				return err
			}
			if fm, ok := finalModel.(manageModel); ok {
				if fm.run != nil && fm.run.finished == nil {
					// Quit while a run was still active; wait for it to wind down.
					fm.run.coord.Kill()
					for range fm.run.events {
					}
				}
				return fm.fatalErr
			}
			return nil
		},
	}
}

func newManageModel(opts *rootOptions) manageModel {
	return manageModel{opts: opts, mode: manageModeBrowse, cfg: settings.Defaults()}
}

func (m manageModel) Init() tea.Cmd {
	return loadSettingsCmd(m.opts.configPath)
}

func (m manageModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.form != nil {
			m.form = resizeFormInput(m.form, m.width)
		}
		if m.run != nil {
			m.run.resize(m.width, m.height)
		}
		return m, nil
	case manageLoadedMsg:
		if msg.err != nil {
			m.fatalErr = msg.err
			return m, tea.Quit
		}
		m.cfg = msg.cfg
		m.cfgErr = m.cfg.Validate()
		if len(msg.discarded) > 0 {
			d := msg.discarded[0]
			m.statusMessage = fmt.Sprintf("warning: ignored %s=%q (%s)", d.Key, d.Value, d.Reason)
		}
		return m, nil
	case manageSaveMsg:
		if msg.err != nil {
			if m.form != nil {
				m.form.Error = msg.err.Error()
				m.form.Saving = false
			}
			return m, nil
		}
		m.mode = manageModeBrowse
		m.form = nil
		m.cfg = msg.cfg
		m.cfgErr = m.cfg.Validate()
		m.scan = nil
		m.statusMessage = msg.message
		return m, nil
	case manageScanMsg:
		if msg.err != nil {
			m.statusMessage = "error: " + msg.err.Error()
			return m, nil
		}
		res := msg.res
		m.scan = &res
		m.statusMessage = fmt.Sprintf("scan: %d to convert, %d not converted", len(res.Jobs), len(res.Rejected))
		return m, nil
	case manageEventMsg:
		if m.run == nil {
			return m, nil
		}
		m.run.handle(msg.ev, m.opts.level())
		return m, waitForEventCmd(m.run.events)
	case manageRunClosedMsg:
		if m.run != nil && m.run.finished != nil {
			m.lastRun = m.run.finished
			m.lastFail = m.run.failure
			m.statusMessage = "run " + m.run.finished.State
		}
		return m, nil
	case spinner.TickMsg:
		if m.run == nil || m.run.finished != nil {
			return m, nil
		}
		var cmd tea.Cmd
		m.run.spin, cmd = m.run.spin.Update(msg)
		return m, cmd
	}

	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch m.mode {
	case manageModeBrowse:
		return m.updateBrowse(keyMsg)
	case manageModeForm:
		return m.updateForm(keyMsg)
	case manageModeRun:
		return m.updateRun(keyMsg)
	default:
		return m, nil
	}
}

func (m manageModel) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case "down", "j":
		if m.cursor < manageActionCount-1 {
			m.cursor++
		}
		return m, nil
	case "r":
		return m, loadSettingsCmd(m.opts.configPath)
	case "e":
		return m.openSettingsForm(), nil
	case "s":
		return m, scanCmd(m.cfg)
	case "enter":
		switch m.cursor {
		case manageActionRun:
			return m.startRun()
		case manageActionScan:
			return m, scanCmd(m.cfg)
		case manageActionSettings:
			return m.openSettingsForm(), nil
		}
	}
	return m, nil
}

func (m manageModel) openSettingsForm() manageModel {
	m.mode = manageModeForm
	m.form = newManageSettingsForm(m.cfg, m.width)
	m.statusMessage = ""
	return m
}

func (m manageModel) startRun() (tea.Model, tea.Cmd) {
	if m.cfgErr != nil {
		m.statusMessage = "error: settings are incomplete; choose Edit Settings"
		return m, nil
	}
	coord := batch.New(batch.Options{
		Settings:   m.cfg,
		ConfigPath: m.opts.configPath,
		StateDir:   m.opts.stateDir,
		RunLogPath: logging.RunLogFileName,
	})
	events, err := coord.Start(context.Background())
	if err != nil {
		m.statusMessage = "error: " + err.Error()
		return m, nil
	}
	m.run = newManageRun(coord, events, m.width, m.height)
	m.mode = manageModeRun
	m.statusMessage = ""
	return m, tea.Batch(waitForEventCmd(events), m.run.spin.Tick)
}

func (m manageModel) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.form == nil {
		m.mode = manageModeBrowse
		return m, nil
	}
	if m.form.Saving {
		return m, nil
	}

	key := strings.ToLower(msg.String())
	switch key {
	case "ctrl+c", "esc":
		m.mode = manageModeBrowse
		m.form = nil
		m.statusMessage = "settings unchanged"
		return m, nil
	case "up", "shift+tab":
		m.form.commitInput()
		if m.form.Index > 0 {
			m.form.Index--
		}
		m.form.loadFieldIntoInput()
		return m, nil
	case "down", "tab":
		m.form.commitInput()
		if m.form.Index < len(m.form.Fields)-1 {
			m.form.Index++
		}
		m.form.loadFieldIntoInput()
		return m, nil
	case " ", "space", "right", "l":
		if m.form.currentField().Kind == manageFieldSelect {
			m.form.nextSelectOption()
			return m, nil
		}
	case "left", "h":
		if m.form.currentField().Kind == manageFieldSelect {
			m.form.prevSelectOption()
			return m, nil
		}
	case "enter", "ctrl+s":
		m.form.commitInput()
		if m.form.Index < len(m.form.Fields)-1 && key != "ctrl+s" {
			m.form.Index++
			m.form.loadFieldIntoInput()
			return m, nil
		}
		cfg, err := m.form.toSettings()
		if err != nil {
			m.form.Error = err.Error()
			return m, nil
		}
		m.form.Error = ""
		m.form.Saving = true
		return m, saveSettingsCmd(m.opts.configPath, cfg)
	}

	if m.form.currentField().Kind == manageFieldSelect {
		return m, nil
	}
	var cmd tea.Cmd
	m.form.Input, cmd = m.form.Input.Update(msg)
	m.form.Fields[m.form.Index].Value = m.form.Input.Value()
	return m, cmd
}

func (m manageModel) updateRun(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	r := m.run
	if r == nil {
		m.mode = manageModeBrowse
		return m, nil
	}
	if r.finished != nil {
		switch msg.String() {
		case "q":
			return m, tea.Quit
		case "enter", "esc", "ctrl+c":
			m.mode = manageModeBrowse
			m.run = nil
			return m, nil
		}
	} else {
		switch msg.String() {
		case "s", "ctrl+c":
			if !r.stopping {
				r.stopping = true
				r.coord.Stop()
				m.statusMessage = "stopping after the current converter exits (again to kill it)"
				return m, nil
			}
			r.coord.Kill()
			m.statusMessage = "killing create_pbr"
			return m, nil
		}
	}
	var cmd tea.Cmd
	r.logView, cmd = r.logView.Update(msg)
	return m, cmd
}

func (m manageModel) View() string {
	if m.fatalErr != nil {
		return manageErrorStyle.Render("fatal: " + m.fatalErr.Error())
	}
	if m.width <= 0 {
		m.width = 100
	}
	if m.height <= 0 {
		m.height = 30
	}

	switch m.mode {
	case manageModeForm:
		return m.viewForm()
	case manageModeRun:
		return m.viewRun()
	default:
		return m.viewBrowse()
	}
}

func (m manageModel) viewBrowse() string {
	header := manageTitleStyle.Render("pbrify manage") + "\n" +
		manageMutedStyle.Render("up/down: move | enter: select | e: settings | s: scan | r: reload | q: quit")

	if m.width < 90 {
		actions := m.renderActionsPanel(m.width)
		details := m.renderDetailsPanel(m.width)
		body := lipgloss.JoinVertical(lipgloss.Left, actions, details)
		return lipgloss.JoinVertical(lipgloss.Left, header, body, m.renderStatusLine(m.width))
	}

	leftW := clampInt(m.width/3, 26, 40)
	rightW := m.width - leftW - 1
	left := lipgloss.JoinVertical(lipgloss.Left, m.renderActionsPanel(leftW), m.renderSettingsPanel(leftW))
	body := lipgloss.JoinHorizontal(lipgloss.Top, left, m.renderDetailsPanel(rightW))
	return lipgloss.JoinVertical(lipgloss.Left, header, body, m.renderStatusLine(m.width))
}

func (m manageModel) renderActionsPanel(width int) string {
	lines := []string{"Actions", ""}
	for i, label := range manageActionLabels {
		line := truncateRunes(label, maxInt(width-6, 10))
		if i == m.cursor {
			line = manageSelStyle.Width(maxInt(width-4, 6)).Render(line)
		}
		lines = append(lines, line)
	}
	return managePanelStyle.Width(width).Render(strings.Join(lines, "\n"))
}

func (m manageModel) renderSettingsPanel(width int) string {
	lines := []string{"Settings", ""}
	for _, key := range settings.Keys {
		lines = append(lines, kv(key, defaultIfEmpty(m.cfg.Get(key), "(not set)")))
	}
	lines = append(lines, "")
	if m.cfgErr != nil {
		lines = append(lines, manageErrorStyle.Render("incomplete"))
	} else {
		lines = append(lines, manageOKStyle.Render("ready"))
	}
	for i := range lines {
		lines[i] = wrapOrTrim(lines[i], maxInt(width-6, 12))
	}
	return managePanelStyle.Width(width).Render(strings.Join(lines, "\n"))
}

func (m manageModel) renderDetailsPanel(width int) string {
	var lines []string
	switch m.cursor {
	case manageActionRun:
		lines = append(lines, "Start Run", "")
		if m.cfgErr != nil {
			lines = append(lines, "Settings need attention before a run:")
			for _, line := range strings.Split(m.cfgErr.Error(), "\n") {
				lines = append(lines, manageErrorStyle.Render("- "+line))
			}
		} else {
			lines = append(lines, "Converts every eligible mod, one at a time.", "Press Enter to start.")
		}
		if m.lastRun != nil {
			lines = append(lines, "", "Last run")
			lines = append(lines, strings.Split(renderStatsTable(m.lastRun.State, m.lastRun.Stats), "\n")...)
			if m.lastFail != "" {
				lines = append(lines, manageErrorStyle.Render(m.lastFail))
			}
		}
	case manageActionScan:
		lines = append(lines, "Scan Mods", "")
		if m.scan == nil {
			lines = append(lines, "Press Enter to list the mods a run would convert.")
			break
		}
		maxRows := clampInt(m.height-12, 4, 30)
		lines = append(lines, fmt.Sprintf("%d to convert", len(m.scan.Jobs)))
		for i, job := range m.scan.Jobs {
			if i >= maxRows {
				lines = append(lines, manageMutedStyle.Render(fmt.Sprintf("... %d more", len(m.scan.Jobs)-i)))
				break
			}
			lines = append(lines, "  "+job.Name)
		}
		if len(m.scan.Rejected) > 0 {
			lines = append(lines, "", fmt.Sprintf("%d not converted", len(m.scan.Rejected)))
			for i, r := range m.scan.Rejected {
				if i >= maxRows {
					lines = append(lines, manageMutedStyle.Render(fmt.Sprintf("... %d more", len(m.scan.Rejected)-i)))
					break
				}
				lines = append(lines, manageMutedStyle.Render(fmt.Sprintf("  %s (%s)", r.Name, r.Reason)))
			}
		}
	case manageActionSettings:
		lines = append(lines, "Edit Settings", "")
		lines = append(lines, "Paths are checked as you save.", "Saved to "+m.opts.configPath)
	}

	for i := range lines {
		lines[i] = wrapOrTrim(lines[i], maxInt(width-6, 12))
	}
	return managePanelStyle.Width(width).Render(strings.Join(lines, "\n"))
}

func (m manageModel) renderStatusLine(width int) string {
	msg := strings.TrimSpace(m.statusMessage)
	if msg == "" {
		msg = "Tip: scan first to see which mods will be converted."
	}
	style := manageMutedStyle
	lower := strings.ToLower(msg)
	switch {
	case strings.HasPrefix(lower, "error:"):
		style = manageErrorStyle
	case strings.HasPrefix(lower, "warning:"):
		style = manageWarnStyle
	case strings.HasPrefix(lower, "settings saved"), strings.HasPrefix(lower, "run completed"):
		style = manageOKStyle
	}
	return style.Width(width).Render(truncateRunes(msg, maxInt(width-2, 10)))
}

func (m manageModel) viewForm() string {
	if m.form == nil {
		return ""
	}
	header := manageTitleStyle.Render(m.form.Title)
	hints := manageMutedStyle.Render("tab/shift+tab or up/down: move | left/right/space: change option | enter: next/save | ctrl+s: save | esc: cancel")

	lines := make([]string, 0, len(m.form.Fields)+6)
	for i, f := range m.form.Fields {
		prefix := "  "
		if i == m.form.Index {
			prefix = "> "
		}
		display := strings.TrimSpace(f.Value)
		if display == "" {
			display = manageMutedStyle.Render("(empty)")
		}
		if f.Kind == manageFieldSelect {
			display = "[" + display + "]"
		}
		line := fmt.Sprintf("%s%s: %s", prefix, f.Label, display)
		lines = append(lines, wrapOrTrim(line, maxInt(m.width-6, 20)))
	}

	curr := m.form.currentField()
	inputLabel := fmt.Sprintf("\n%s\n", curr.Label)
	inputHelp := ""
	if strings.TrimSpace(curr.Help) != "" {
		inputHelp = manageMutedStyle.Render(curr.Help) + "\n"
	}
	input := m.form.Input.View()
	status := ""
	if m.form.Saving {
		status = manageMutedStyle.Render("\nSaving...")
	}
	if strings.TrimSpace(m.form.Error) != "" {
		status = "\n" + manageErrorStyle.Render(m.form.Error)
	}

	panel := managePanelStyle.Width(maxInt(m.width, 40)).Render(strings.Join(lines, "\n") + inputLabel + inputHelp + input + status)
	return lipgloss.JoinVertical(lipgloss.Left, header, hints, panel)
}

func (m manageModel) viewRun() string {
	r := m.run
	if r == nil {
		return ""
	}
	header := manageTitleStyle.Render("pbrify run")
	hints := "s/ctrl+c: stop (twice: kill) | pgup/pgdn: scroll log"
	if r.finished != nil {
		hints = "enter/esc: back | q: quit | pgup/pgdn: scroll log"
	}

	state := r.spin.View() + " " + m.runHeadline()
	if r.finished != nil {
		state = m.runHeadline()
	}
	bars := []string{
		state,
		"",
		fmt.Sprintf("Mods      %s %d/%d", r.overallBar.ViewAs(ratio(r.overall.Current, r.overall.Total)), r.overall.Current, r.overall.Total),
		fmt.Sprintf("Textures  %s %d/%d", r.unitBar.ViewAs(ratio(r.units.Current, r.units.Total)), r.units.Current, r.units.Total),
	}
	top := managePanelStyle.Width(maxInt(m.width-2, 40)).Render(strings.Join(bars, "\n"))
	logPanel := managePanelStyle.Width(maxInt(m.width-2, 40)).Render(r.logView.View())

	parts := []string{header, manageMutedStyle.Render(hints), top, logPanel}
	if r.finished != nil {
		summary := renderStatsTable(r.finished.State, r.finished.Stats)
		if r.failure != "" {
			summary += "\n" + manageErrorStyle.Render(r.failure)
		}
		parts = append(parts, summary)
	}
	parts = append(parts, m.renderStatusLine(m.width))
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m manageModel) runHeadline() string {
	r := m.run
	switch {
	case r.finished != nil:
		style := manageOKStyle
		if r.finished.State != model.StateCompleted || r.finished.Stats.FailedJobs > 0 {
			style = manageErrorStyle
		}
		return style.Render("Run " + r.finished.State + " in " + r.finished.Stats.FormatDuration())
	case r.stopping:
		return manageWarnStyle.Render("Stopping...")
	case r.overall.Total == 0:
		return "Scanning mods..."
	default:
		return fmt.Sprintf("Converting %s", r.overall.JobName)
	}
}

func newManageRun(coord *batch.Coordinator, events <-chan model.Event, width, height int) *manageRun {
	r := &manageRun{
		coord:      coord,
		events:     events,
		overallBar: progress.New(progress.WithDefaultGradient()),
		unitBar:    progress.New(progress.WithDefaultGradient()),
		logView:    viewport.New(80, 10),
		spin:       spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
	r.resize(width, height)
	return r
}

func (r *manageRun) resize(width, height int) {
	if width <= 0 {
		width = 100
	}
	if height <= 0 {
		height = 30
	}
	barW := clampInt(width-30, 10, 80)
	r.overallBar.Width = barW
	r.unitBar.Width = barW
	r.logView.Width = maxInt(width-6, 20)
	r.logView.Height = clampInt(height-22, 3, 40)
}

func (r *manageRun) handle(ev model.Event, level slog.Level) {
	switch ev := ev.(type) {
	case model.LogLine:
		lvl, err := logging.ParseLevel(ev.Level)
		if err != nil || lvl < level {
			return
		}
		line := logging.FormatEvent(ev, false)
		switch ev.Level {
		case model.LevelError:
			line = manageErrorStyle.Render(line)
		case model.LevelWarn:
			line = manageWarnStyle.Render(line)
		}
		r.appendLog(line)
	case model.OverallProgress:
		r.overall = ev
		r.units = model.UnitProgress{}
	case model.UnitProgress:
		r.units = ev
	case model.RunFailed:
		r.failure = ev.Reason
	case model.RunFinished:
		r.finished = &ev
		if ev.State == model.StateCompleted {
			r.overall.Current = r.overall.Total
		}
	}
}

func (r *manageRun) appendLog(line string) {
	r.logs = append(r.logs, line)
	if len(r.logs) > manageLogLimit {
		r.logs = r.logs[len(r.logs)-manageLogLimit:]
	}
	follow := r.logView.AtBottom()
	r.logView.SetContent(strings.Join(r.logs, "\n"))
	if follow {
		r.logView.GotoBottom()
	}
}

func loadSettingsCmd(configPath string) tea.Cmd {
	return func() tea.Msg {
		cfg, discarded, err := settings.Load(configPath)
		if err != nil {
			return manageLoadedMsg{err: err}
		}
		return manageLoadedMsg{cfg: cfg, discarded: discarded}
	}
}

func saveSettingsCmd(configPath string, cfg settings.Settings) tea.Cmd {
	return func() tea.Msg {
		if err := cfg.Save(configPath); err != nil {
			return manageSaveMsg{err: err}
		}
		return manageSaveMsg{message: "settings saved to " + configPath, cfg: cfg}
	}
}

func scanCmd(cfg settings.Settings) tea.Cmd {
	return func() tea.Msg {
		res, err := discovery.Scan(context.Background(), discovery.ScanOptions{
			ModsDir:   cfg.ModsDir,
			OutputDir: cfg.OutputDir,
		})
		return manageScanMsg{res: res, err: err}
	}
}

// waitForEventCmd delivers the next run event, or manageRunClosedMsg once
// the coordinator has closed the stream.
func waitForEventCmd(events <-chan model.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return manageRunClosedMsg{}
		}
		return manageEventMsg{ev: ev}
	}
}

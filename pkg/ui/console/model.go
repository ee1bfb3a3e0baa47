package console

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"shellbridge/pkg/protocol"
)

const mouseScrollLines = 3

type entryKind int

const (
	entryRequest entryKind = iota
	entryReply
	entryFailure
	entryBroadcast
	entryError
)

type entry struct {
	kind    entryKind
	title   string
	content string
}

type replyMsg struct {
	reply protocol.Envelope
	err   error
}

type broadcastMsg struct {
	push protocol.Broadcast
}

type detachedMsg struct{}

type bootTickMsg struct{}

type model struct {
	ctx    context.Context
	caller Caller
	info   Info

	theme     theme
	spinner   spinner.Model
	input     textinput.Model
	viewport  viewport.Model
	entries   []entry
	width     int
	height    int
	isReady   bool
	isLoading bool
	detached  bool
	lastErr   string
	booting   bool
	bootStep  int
	followLog bool

	calls      int
	succeeded  int
	failed     int
	broadcasts int
}

func newModel(ctx context.Context, caller Caller, info Info) *model {
	spin := spinner.New()
	spin.Spinner = spinner.Points
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("44"))

	in := textinput.New()
	in.Prompt = ""
	in.Placeholder = "USER_GET_INFO · GET_LANGUAGE · EVENT_BUS ping {\"x\":1}"
	in.Focus()
	in.CharLimit = 0

	vp := viewport.New(80, 12)

	return &model{
		ctx:       ctx,
		caller:    caller,
		info:      info,
		theme:     defaultTheme(),
		spinner:   spin,
		input:     in,
		viewport:  vp,
		width:     100,
		height:    28,
		booting:   true,
		followLog: true,
	}
}

func (m *model) Init() tea.Cmd {
	return bootTickCmd()
}

func (m *model) broadcastSource() <-chan protocol.Broadcast {
	if m.caller == nil {
		return nil
	}
	return m.caller.Broadcasts()
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		m.resizeComponents()
		m.refreshViewport(false)
		m.isReady = true
		return m, nil
	case bootTickMsg:
		if !m.booting {
			return m, nil
		}

		m.bootStep++
		if m.bootStep < len(bootScriptLines())+1 {
			return m, bootTickCmd()
		}

		m.booting = false
		return m, tea.Batch(textinput.Blink, waitBroadcastCmd(m.broadcastSource()))
	case tea.MouseMsg:
		m.handleViewportMouse(typed)
		return m, nil
	case tea.KeyMsg:
		switch typed.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		}

		if m.booting {
			return m, nil
		}

		if handled := m.handleViewportKey(typed); handled {
			return m, nil
		}

		if typed.String() == "enter" {
			return m, m.submit()
		}
	case replyMsg:
		m.isLoading = false
		m.recordReply(typed)
		m.refreshViewport(false)
		return m, nil
	case broadcastMsg:
		m.broadcasts++
		m.entries = append(m.entries, entry{
			kind:    entryBroadcast,
			title:   "BROADCAST",
			content: prettyJSON(typed.push.Data),
		})
		m.refreshViewport(false)
		return m, waitBroadcastCmd(m.broadcastSource())
	case detachedMsg:
		m.detached = true
		m.lastErr = "connection to shell closed"
		m.entries = append(m.entries, entry{kind: entryError, title: "DETACHED", content: m.lastErr})
		m.refreshViewport(false)
		return m, nil
	case spinner.TickMsg:
		if !m.isLoading {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(typed)
		return m, cmd
	}

	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) submit() tea.Cmd {
	if m.isLoading {
		return nil
	}

	line := strings.TrimSpace(m.input.Value())
	if line == "" {
		return nil
	}
	if isExitCommand(line) {
		return tea.Quit
	}

	m.input.SetValue("")
	m.followLog = true

	parsed, err := parseCommand(line)
	if err != nil {
		m.lastErr = err.Error()
		m.entries = append(m.entries, entry{kind: entryError, title: "INPUT", content: err.Error()})
		m.refreshViewport(true)
		return nil
	}
	if m.detached || m.caller == nil {
		m.lastErr = "not attached to a shell"
		m.entries = append(m.entries, entry{kind: entryError, title: "DETACHED", content: m.lastErr})
		m.refreshViewport(true)
		return nil
	}

	m.lastErr = ""
	m.calls++
	m.entries = append(m.entries, entry{kind: entryRequest, title: parsed.api, content: parsed.String()})
	m.isLoading = true
	m.refreshViewport(true)
	return tea.Batch(m.spinner.Tick, sendCommandCmd(m.ctx, m.caller, parsed))
}

func (m *model) recordReply(msg replyMsg) {
	if msg.err != nil {
		m.failed++
		m.lastErr = msg.err.Error()
		m.entries = append(m.entries, entry{kind: entryError, title: "ERROR", content: msg.err.Error()})
		return
	}

	m.lastErr = ""
	if msg.reply.Success {
		m.succeeded++
		m.entries = append(m.entries, entry{kind: entryReply, title: "OK", content: prettyJSON(msg.reply.Data)})
		return
	}

	m.failed++
	m.entries = append(m.entries, entry{kind: entryFailure, title: "FAILED", content: msg.reply.Message})
}

func (m *model) View() string {
	if !m.isReady {
		m.resizeComponents()
		m.refreshViewport(false)
	}
	if m.booting {
		return m.bootView()
	}

	header := m.theme.header.Width(m.width - 2).Render("🪟 shellbridge frame console")
	meta := m.theme.headerMeta.Render(fmt.Sprintf(
		"shell:%s · origin:%s · calls:%d · ok/failed:%d/%d · broadcasts:%d",
		displayOrNA(m.info.URL),
		displayOrNA(m.info.Origin),
		m.calls,
		m.succeeded,
		m.failed,
		m.broadcasts,
	))
	line := m.theme.divider.Width(m.width - 2).Render(strings.Repeat("═", max(8, m.width-2)))

	status := m.theme.status.Render("💡 Enter send  ·  PgUp/PgDn scroll  ·  End jump latest  ·  🛑 Ctrl+C/Esc quit")
	if m.isLoading {
		status = m.theme.statusBusy.Render(fmt.Sprintf("%s waiting for reply...", m.spinner.View()))
	}
	if m.lastErr != "" {
		status = m.theme.statusErr.Render("🚨 " + m.lastErr)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		meta,
		line,
		m.theme.viewport.Width(m.width-2).Render(m.viewport.View()),
		status,
		m.theme.inputLabel.Render("🪟 "+displayOrNA(m.info.Src))+" "+m.theme.hint.Render("(type exit, quit, or :q)"),
		m.theme.input.Width(m.width-2).Render(m.input.View()),
	)
}

func (m *model) resizeComponents() {
	w := m.width - 6
	if w < 50 {
		w = 50
	}
	h := m.height - 10
	if h < 8 {
		h = 8
	}

	m.viewport.Width = w
	m.viewport.Height = h
	m.input.Width = w - 2
}

func (m *model) refreshViewport(forceBottom bool) {
	previousOffset := m.viewport.YOffset
	sections := make([]string, 0, len(m.entries))
	for _, item := range m.entries {
		sections = append(sections, m.renderEntry(item))
	}

	m.viewport.SetContent(strings.Join(sections, "\n\n"))
	if m.followLog || forceBottom {
		m.viewport.GotoBottom()
		m.followLog = true
		return
	}

	maxOffset := m.viewport.TotalLineCount() - m.viewport.Height
	if maxOffset < 0 {
		maxOffset = 0
	}
	if previousOffset > maxOffset {
		previousOffset = maxOffset
	}
	m.viewport.SetYOffset(previousOffset)
}

func (m *model) renderEntry(item entry) string {
	title, box := m.theme.errorTitle, m.theme.errorBox
	switch item.kind {
	case entryRequest:
		title, box = m.theme.requestTitle, m.theme.requestBox
	case entryReply:
		title, box = m.theme.replyTitle, m.theme.replyBox
	case entryFailure:
		title, box = m.theme.failureTitle, m.theme.failureBox
	case entryBroadcast:
		title, box = m.theme.broadcastTitle, m.theme.broadcastBox
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		title.Render("▛▚ ["+item.title+"] ▞▜"),
		box.Width(m.viewport.Width).Render(strings.TrimSpace(item.content)),
	)
}

func (m *model) bootView() string {
	header := m.theme.header.Width(m.width - 2).Render("🪟 shellbridge frame console")
	meta := m.theme.headerMeta.Render("attaching")
	line := m.theme.divider.Width(m.width - 2).Render(strings.Repeat("═", max(8, m.width-2)))

	script := bootScriptLines()
	count := min(m.bootStep, len(script))
	visible := make([]string, 0, count+1)
	for i := 0; i < count; i++ {
		visible = append(visible, m.theme.bootLine.Render(script[i]))
	}
	if m.bootStep > len(script) {
		visible = append(visible, m.theme.bootDone.Render("✅ frame attached"))
	}

	body := m.theme.viewport.Width(m.width - 2).Render(strings.Join(visible, "\n"))
	return lipgloss.JoinVertical(lipgloss.Left, header, meta, line, body)
}

func bootTickCmd() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(_ time.Time) tea.Msg {
		return bootTickMsg{}
	})
}

func bootScriptLines() []string {
	return []string{
		"[BOOT] opening websocket",
		"[BOOT] presenting origin",
		"[BOOT] subscribing to broadcasts",
	}
}

func (m *model) handleViewportKey(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "pgup", "ctrl+b", "alt+up", "ctrl+up":
		m.viewport.PageUp()
		m.followLog = false
		return true
	case "pgdown", "ctrl+f", "alt+down", "ctrl+down":
		m.viewport.PageDown()
		if m.viewport.AtBottom() {
			m.followLog = true
		}
		return true
	case "home":
		m.viewport.GotoTop()
		m.followLog = false
		return true
	case "end":
		m.viewport.GotoBottom()
		m.followLog = true
		return true
	default:
		return false
	}
}

func (m *model) handleViewportMouse(msg tea.MouseMsg) bool {
	if msg.Action != tea.MouseActionPress {
		return false
	}

	switch msg.Button {
	case tea.MouseButtonWheelUp:
		m.viewport.ScrollUp(mouseScrollLines)
		m.followLog = false
		return true
	case tea.MouseButtonWheelDown:
		m.viewport.ScrollDown(mouseScrollLines)
		if m.viewport.AtBottom() {
			m.followLog = true
		}
		return true
	default:
		return false
	}
}

func displayOrNA(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "n/a"
	}

	return trimmed
}

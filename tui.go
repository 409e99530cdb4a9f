package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"vomo/audio"
	"vomo/capture"
	"vomo/clipboard"
	"vomo/config"
	"vomo/store"
)

const (
	leftWidth   = 36
	maxMemoRows = 5
	meterWidth  = 24
	sparkWidth  = 32
)

// Pre-computed styles to avoid allocations in the render loop.
var (
	recStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	pausedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	idleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("160"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	grayStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	helpBold    = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
	meterStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	meterHot    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	titleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("246"))
	textStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

var sparkRunes = []rune(" ▁▂▃▄▅▆▇█")

// meterGain stretches speech-range RMS over the meter; normal speech
// rarely exceeds a third of full scale.
const meterGain = 3.0

type tuiModel struct {
	app *stack

	width, height int

	state      capture.State
	stateCause string
	permission bool // microphone probe already succeeded this run
	rearm      bool // start once the session lands back in idle

	duration float64 // seconds of the active recording
	level    float64 // smoothed RMS

	noVoice     bool // silence warning active on the live recording
	autoStopped bool // last memo was ended by the silence watch

	online bool
	queued int

	deviceLine string
	modeLine   string

	memos   []store.Entry // newest first
	saved   int           // memos persisted this run
	copied  bool          // newest memo text is on the clipboard
	lastErr string
}

func NewTUIProgram(app *stack) *tea.Program {
	snap := app.session.State()
	m := tuiModel{
		app:        app,
		state:      snap.State,
		online:     app.client.Reachable(),
		deviceLine: deviceLineText(snap.Device),
		modeLine:   modeLineText(app.cfg),
	}
	return tea.NewProgram(m, tea.WithAltScreen())
}

func deviceLineText(name string) string {
	if name == "" {
		return "mic: system default"
	}
	suffix := ""
	if audio.IsBluetooth(name) {
		suffix = " (BT!)"
	}
	return "mic: " + name + suffix
}

func modeLineText(cfg *config.Config) string {
	codec := cfg.Codec
	if codec == "opus" || codec == "mp3" {
		codec = fmt.Sprintf("%s@%dkbps", codec, cfg.BitRate)
	}
	return fmt.Sprintf("[%s | %ds segments | %s]", codec, cfg.SegmentSec, cfg.Language)
}

func tuiTick() tea.Cmd {
	return tea.Tick(60*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func copyCmd(text string) tea.Cmd {
	return func() tea.Msg {
		return copiedMsg{Err: clipboard.Copy(text)}
	}
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tickMsg:
		if m.state == capture.StateRecording {
			m.duration = m.app.session.State().Duration.Seconds()
		}
		m.queued = len(m.app.client.QueuedPaths())
		return m, tuiTick()

	case captureEventMsg:
		m.handleCapture(msg.Event)

	case levelMsg:
		if m.state == capture.StateRecording {
			m.level = m.level*0.6 + msg.Level.RMS*0.4
		}

	case entrySavedMsg:
		m.memos = append([]store.Entry{msg.Entry}, m.memos...)
		if len(m.memos) > maxMemoRows {
			m.memos = m.memos[:maxMemoRows]
		}
		m.saved++
		m.copied = false
		m.lastErr = ""

	case drainedMsg:
		m.attachDrained(msg)

	case pipelineErrMsg:
		m.lastErr = msg.Err.Error()

	case reachabilityMsg:
		m.online = msg.Up

	case silenceMsg:
		if msg.AutoStopped {
			m.autoStopped = true
		} else {
			m.noVoice = msg.Warn
		}

	case copiedMsg:
		if msg.Err != nil {
			m.lastErr = "clipboard: " + msg.Err.Error()
		} else {
			m.copied = true
		}
	}
	return m, nil
}

func (m tuiModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "r":
		m.pressRecord()

	case "p":
		switch m.state {
		case capture.StateRecording:
			m.noteErr(m.app.session.Pause())
		case capture.StatePaused:
			m.noteErr(m.app.session.Resume())
		}

	case "s":
		if m.state == capture.StateRecording || m.state == capture.StatePaused {
			m.noteErr(m.app.session.Stop())
		}

	case "c":
		if len(m.memos) > 0 {
			if text := memoText(m.memos[0]); text != "" {
				return m, copyCmd(text)
			}
		}
	}
	return m, nil
}

// pressRecord drives the record key from any session state: a fresh
// start runs the one-time permission probe first, and stopped or
// errored sessions are reset and re-armed so a single keypress gets
// back to recording.
func (m *tuiModel) pressRecord() {
	switch m.state {
	case capture.StateIdle:
		if m.permission {
			m.noteErr(m.app.session.Start())
			return
		}
		m.rearm = true
		m.noteErr(m.app.session.RequestPermission())
	case capture.StateStopped, capture.StateError:
		m.rearm = true
		m.noteErr(m.app.session.Reset())
	}
}

func (m *tuiModel) noteErr(err error) {
	if err != nil {
		m.lastErr = err.Error()
	}
}

func (m *tuiModel) handleCapture(ev capture.Event) {
	switch ev.Kind {
	case capture.EventStateChanged:
		m.state = ev.To
		m.stateCause = ev.Cause
		switch ev.To {
		case capture.StateRecording:
			if ev.From != capture.StatePaused {
				m.duration, m.level = 0, 0
				m.noVoice, m.autoStopped = false, false
			}
		case capture.StateIdle:
			if ev.Cause == capture.CausePermissionGranted {
				m.permission = true
			}
			if m.rearm {
				m.rearm = false
				if m.permission {
					m.noteErr(m.app.session.Start())
				} else {
					m.rearm = true
					m.noteErr(m.app.session.RequestPermission())
				}
			}
		case capture.StateError:
			m.lastErr = "session error: " + string(ev.Reason)
		}

	case capture.EventTapRestarted:
		m.deviceLine = deviceLineText(m.app.session.State().Device)
	}
}

// attachDrained lands a late transcript from an offline-queue drain on
// the memo row that holds its segment.
func (m *tuiModel) attachDrained(msg drainedMsg) {
	for i := range m.memos {
		for j, p := range m.memos[i].SegmentPaths {
			if p != msg.Outcome.Path {
				continue
			}
			m.memos[i].SegmentTranscripts[j] = msg.Outcome.Text
			m.memos[i].SegmentStatuses[j] = string(msg.Outcome.Status)
			return
		}
	}
}

func memoText(e store.Entry) string {
	var parts []string
	for _, t := range e.SegmentTranscripts {
		if t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	left := lipgloss.NewStyle().
		Width(leftWidth).
		Height(m.height).
		PaddingLeft(1).
		Render(m.viewStatus())

	logWidth := m.width - leftWidth - 1
	if logWidth < 20 {
		logWidth = 20
	}
	right := lipgloss.NewStyle().
		Width(logWidth).
		Height(m.height).
		PaddingLeft(1).
		Render(m.viewMemos(logWidth - 2))

	return lipgloss.JoinHorizontal(lipgloss.Top, left, right)
}

func (m tuiModel) viewStatus() string {
	var lines []string

	switch m.state {
	case capture.StateRecording:
		lines = append(lines, recStyle.Render(fmt.Sprintf("● REC %.1fs", m.duration)))
		if m.noVoice {
			lines = append(lines, warnStyle.Render("  ⚠ no voice detected"))
		}
	case capture.StatePaused:
		cause := ""
		if m.stateCause == string(capture.PauseInterruption) {
			cause = " (interruption)"
		}
		lines = append(lines, pausedStyle.Render(fmt.Sprintf("‖ PAUSED %.1fs%s", m.duration, cause)))
	case capture.StateAwaitingPermission:
		lines = append(lines, grayStyle.Render("… checking microphone access"))
	case capture.StateStopped:
		stopped := "■ STOPPED"
		if m.autoStopped {
			stopped += " (silence)"
		}
		lines = append(lines, idleStyle.Render(stopped))
	case capture.StateError:
		lines = append(lines, errStyle.Render("✗ ERROR"))
	default:
		lines = append(lines, idleStyle.Render("○ IDLE"))
	}

	lines = append(lines, renderMeter(m.level, meterWidth))
	lines = append(lines, renderSparkline(m.app.session.Levels().Snapshot(), sparkWidth))
	lines = append(lines, "")

	lines = append(lines, grayStyle.Render(m.modeLine))
	lines = append(lines, dimStyle.Render(m.deviceLine))

	if !m.online {
		lines = append(lines, warnStyle.Render("⚠ offline, segments queue locally"))
	}
	if m.queued > 0 {
		lines = append(lines, dimStyle.Render(fmt.Sprintf("queued: %d segment(s)", m.queued)))
	}

	lines = append(lines, "")
	lines = append(lines,
		helpBold.Render("r")+helpStyle.Render(" record  ")+
			helpBold.Render("p")+helpStyle.Render(" pause  ")+
			helpBold.Render("s")+helpStyle.Render(" stop"))
	lines = append(lines,
		helpBold.Render("c")+helpStyle.Render(" copy last  ")+
			helpBold.Render("q")+helpStyle.Render(" quit"))
	lines = append(lines, helpStyle.Render("vomo "+version))

	return strings.Join(lines, "\n")
}

func (m tuiModel) viewMemos(wrapWidth int) string {
	if wrapWidth < 10 {
		wrapWidth = 10
	}

	var b strings.Builder
	if m.lastErr != "" {
		for _, line := range wrapText(m.lastErr, wrapWidth) {
			b.WriteString(errStyle.Render(line) + "\n")
		}
		b.WriteString("\n")
	}

	if len(m.memos) == 0 {
		b.WriteString(dimStyle.Render("No memos yet. Press r to record."))
		return b.String()
	}

	b.WriteString(titleStyle.Render(fmt.Sprintf("Memos (%d saved)", m.saved)) + "\n\n")

	for i, memo := range m.memos {
		header := fmt.Sprintf("%s · %d segment(s)",
			memo.CreatedAt.Local().Format("15:04:05"), len(memo.SegmentPaths))
		b.WriteString(dimStyle.Render(header))
		if i == 0 && m.copied {
			b.WriteString(" " + okStyle.Render("[✓ copied]"))
		}
		b.WriteString("\n")

		if text := memoText(memo); text != "" {
			for _, line := range wrapText(text, wrapWidth) {
				b.WriteString(textStyle.Render(line) + "\n")
			}
		}
		for j, status := range memo.SegmentStatuses {
			if status == "ok" || status == "fallback" {
				continue
			}
			b.WriteString(warnStyle.Render(fmt.Sprintf("  [seg%d %s]", j, status)) + "\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func renderMeter(level float64, width int) string {
	filled := int(level * meterGain * float64(width))
	if filled > width {
		filled = width
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	if level*meterGain > 0.8 {
		return meterHot.Render(bar)
	}
	return meterStyle.Render(bar)
}

func renderSparkline(levels []audio.Level, width int) string {
	if len(levels) > width {
		levels = levels[len(levels)-width:]
	}
	var b strings.Builder
	for _, l := range levels {
		idx := int(l.RMS * meterGain * float64(len(sparkRunes)-1))
		if idx > len(sparkRunes)-1 {
			idx = len(sparkRunes) - 1
		}
		b.WriteRune(sparkRunes[idx])
	}
	return dimStyle.Render(b.String())
}

func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	var lines []string
	for len(text) > width {
		splitAt := width
		for i := width; i > 0; i-- {
			if text[i] == ' ' {
				splitAt = i
				break
			}
		}
		lines = append(lines, text[:splitAt])
		text = strings.TrimLeft(text[splitAt:], " ")
	}
	if len(text) > 0 {
		lines = append(lines, text)
	}
	return lines
}

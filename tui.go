package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"candlecard/blow"
	"candlecard/calendar"
	"candlecard/greeting"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// TUI message types
type DetectorStateMsg struct{ State blow.State }
type BlownOutMsg struct{}
type PermissionDeniedMsg struct{ Err error }
type StreamEndedMsg struct{}
type startedMsg struct{ err error }
type copiedMsg struct{ err error }
type tickMsg time.Time

// cardControl is what the shell drives. *card implements it.
type cardControl interface {
	Open(ctx context.Context) error
	Start(ctx context.Context) error
	Reset()
	Level() float64
}

type tuiScreen int

const (
	screenClosed tuiScreen = iota
	screenCake
)

type flameState int

const (
	flameLit flameState = iota
	flameLow
	flameOut
)

type tuiModel struct {
	card greeting.Card
	ctl  cardControl
	rows [][]calendar.Cell

	screen        tuiScreen
	state         blow.State
	frame         int
	level         float64 // smoothed mean bin level
	celebrating   bool
	copied        bool
	notice        bool // permission notice visible
	noticeShown   bool
	micErr        error
	status        string
	width, height int
}

var (
	tuiProgram *tea.Program
	tuiMu      sync.Mutex
)

var (
	headingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true)
	confettiStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	helpKeyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))

	candleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("117"))
	wickStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	flameStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	flameCoreStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("226")).Bold(true)
	smokeStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	frostingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("218"))
	cakeStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("180"))

	monthStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("250")).Bold(true)
	weekdayStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	specialStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("231")).Background(lipgloss.Color("205")).Bold(true)

	levelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	levelHotStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	celebrationBox = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("205")).Padding(1, 3)
	noticeBox      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("208")).Padding(1, 3)
)

// Number candle glyphs, 3 wide and 5 tall.
var digitGlyphs = [10][5]string{
	{"###", "# #", "# #", "# #", "###"},
	{" # ", "## ", " # ", " # ", "###"},
	{"###", "  #", "###", "#  ", "###"},
	{"###", "  #", "###", "  #", "###"},
	{"# #", "# #", "###", "  #", "  #"},
	{"###", "#  ", "###", "  #", "###"},
	{"###", "#  ", "###", "# #", "###"},
	{"###", "  #", "  #", "  #", "  #"},
	{"###", "# #", "###", "# #", "###"},
	{"###", "# #", "###", "  #", "###"},
}

const wrapWidth = 48

func newTUIModel(g greeting.Card, ctl cardControl) tuiModel {
	return tuiModel{
		card: g,
		ctl:  ctl,
		rows: calendar.Rows(calendar.Build(g.Year, g.Month, g.SpecialDay)),
	}
}

func NewTUIProgram(g greeting.Card, ctl cardControl) *tea.Program {
	return tea.NewProgram(newTUIModel(g, ctl), tea.WithAltScreen())
}

func tuiTick() tea.Cmd {
	return tea.Tick(60*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func tuiSend(msg tea.Msg) {
	tuiMu.Lock()
	p := tuiProgram
	tuiMu.Unlock()

	if p != nil {
		p.Send(msg)
	}
}

// tuiSink forwards card events into the running program.
type tuiSink struct{}

func (tuiSink) DetectorState(s blow.State) { tuiSend(DetectorStateMsg{State: s}) }

func (tuiSink) BlownOut() { tuiSend(BlownOutMsg{}) }

func (tuiSink) PermissionDenied(err error) { tuiSend(PermissionDeniedMsg{Err: err}) }

func (tuiSink) StreamEnded() { tuiSend(StreamEndedMsg{}) }

func startCmd(ctl cardControl, open bool) tea.Cmd {
	return func() tea.Msg {
		if open {
			return startedMsg{err: ctl.Open(context.Background())}
		}
		return startedMsg{err: ctl.Start(context.Background())}
	}
}

func copyCmd(text string) tea.Cmd {
	return func() tea.Msg {
		return copiedMsg{err: clipboard.WriteAll(text)}
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
		return m.handleKey(msg.String())

	case tickMsg:
		m.frame++
		if m.screen == screenCake && m.ctl != nil {
			m.level = m.level*0.6 + m.ctl.Level()*0.4
		}
		return m, tuiTick()

	case DetectorStateMsg:
		m.state = msg.State
		if m.state.Armed {
			m.status = ""
		}

	case BlownOutMsg:
		m.state.Latched = true
		m.state.Blowing = false
		m.state.Pending = false
		m.celebrating = true
		m.copied = false

	case PermissionDeniedMsg:
		m.micErr = msg.Err
		m.showNotice()

	case startedMsg:
		if msg.err != nil {
			m.micErr = msg.err
			if errors.Is(msg.err, blow.ErrPermissionDenied) {
				m.showNotice()
			}
			m.status = "microphone unavailable, press enter to try again"
		}

	case StreamEndedMsg:
		m.state.Armed = false
		m.status = "microphone stopped, press enter to listen again"

	case copiedMsg:
		m.copied = msg.err == nil
		if msg.err != nil {
			m.status = "could not copy wishes: " + msg.err.Error()
		}
	}
	return m, nil
}

// showNotice raises the permission notice the first time only.
func (m *tuiModel) showNotice() {
	if m.noticeShown {
		return
	}
	m.notice = true
	m.noticeShown = true
}

func (m tuiModel) handleKey(key string) (tea.Model, tea.Cmd) {
	if key == "ctrl+c" {
		return m, tea.Quit
	}

	if m.notice {
		m.notice = false
		return m, nil
	}
	if m.celebrating {
		if key == "c" {
			return m, copyCmd(m.card.WishText())
		}
		m.celebrating = false
		return m, nil
	}

	switch key {
	case "q", "esc":
		return m, tea.Quit
	case "enter":
		if m.screen == screenClosed {
			m.screen = screenCake
			return m, startCmd(m.ctl, true)
		}
		if !m.state.Armed {
			m.status = "listening..."
			return m, startCmd(m.ctl, false)
		}
	case "r":
		if m.screen == screenCake && m.state.Latched {
			m.ctl.Reset()
			m.state.Latched = false
			m.state.Blowing = false
			m.state.Pending = false
			m.copied = false
		}
	}
	return m, nil
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var body string
	switch {
	case m.notice:
		body = m.viewNotice()
	case m.celebrating:
		body = m.viewCelebration()
	case m.screen == screenClosed:
		body = m.viewClosed()
	default:
		body = m.viewCake()
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, body)
}

func (m tuiModel) viewClosed() string {
	return lipgloss.JoinVertical(lipgloss.Center,
		confettiStyle.Render(m.card.Confetti),
		"",
		headingStyle.Render(m.card.Heading),
		"",
		confettiStyle.Render(m.card.Confetti),
		"",
		helpKeyStyle.Render("enter")+helpStyle.Render(" to open the card"),
	)
}

func (m tuiModel) viewCake() string {
	candles := renderCandles(m.card.Candles, flameFor(m.state), m.frame)
	cake := renderCake(lipgloss.Width(candles)+4, m.frame)

	var instruction string
	switch {
	case m.state.Latched:
		instruction = okStyle.Render("The candles are out. Happy birthday!")
	case m.state.Armed:
		instruction = "Make a wish and blow out the candles!"
	case m.status != "":
		instruction = warnStyle.Render(m.status)
	default:
		instruction = dimStyle.Render("waiting for the microphone...")
	}

	lines := []string{
		headingStyle.Render(m.card.Heading),
		confettiStyle.Render(m.card.Confetti),
		"",
		lipgloss.JoinVertical(lipgloss.Center, candles, cake),
		"",
		renderCalendar(m.card, m.rows),
		"",
		instruction,
	}
	if m.state.Armed {
		lines = append(lines, renderLevel(m.level, m.card.Threshold, 24))
	}
	lines = append(lines, "", m.helpLine())
	return lipgloss.JoinVertical(lipgloss.Center, lines...)
}

func (m tuiModel) helpLine() string {
	var parts []string
	if m.state.Latched {
		parts = append(parts, helpKeyStyle.Render("r")+helpStyle.Render(" relight"))
	}
	if !m.state.Armed {
		parts = append(parts, helpKeyStyle.Render("enter")+helpStyle.Render(" listen"))
	}
	parts = append(parts, helpKeyStyle.Render("q")+helpStyle.Render(" quit"))
	return strings.Join(parts, helpStyle.Render("  ")) + helpStyle.Render("   candlecard "+version)
}

func (m tuiModel) viewCelebration() string {
	lines := []string{
		headingStyle.Render(m.card.Title),
		confettiStyle.Render(m.card.Confetti),
		"",
	}
	for _, wish := range m.card.Wishes {
		lines = append(lines, wrapText(wish, wrapWidth)...)
	}
	lines = append(lines, "")
	hint := helpKeyStyle.Render("c") + helpStyle.Render(" copy wishes  ") +
		helpStyle.Render("any key to close")
	if m.copied {
		hint += " " + okStyle.Render("[✓ copied]")
	}
	lines = append(lines, hint)
	return celebrationBox.Render(lipgloss.JoinVertical(lipgloss.Center, lines...))
}

func (m tuiModel) viewNotice() string {
	lines := []string{
		warnStyle.Bold(true).Render("Microphone unavailable"),
		"",
	}
	lines = append(lines, wrapText("Blowing out the candles needs the microphone. Allow access, then press enter on the cake to try again.", wrapWidth)...)
	if m.micErr != nil {
		lines = append(lines, "")
		for _, l := range wrapText(m.micErr.Error(), wrapWidth) {
			lines = append(lines, dimStyle.Render(l))
		}
	}
	lines = append(lines, "", helpStyle.Render("press any key"))
	return noticeBox.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func flameFor(s blow.State) flameState {
	switch {
	case s.Latched:
		return flameOut
	case s.Blowing || s.Pending:
		return flameLow
	}
	return flameLit
}

// renderCandles draws one number candle per digit with its flame on top.
func renderCandles(digits string, fs flameState, frame int) string {
	rows := make([]string, 3+len(digitGlyphs[0]))
	n := 0
	for _, d := range digits {
		if d < '0' || d > '9' {
			continue
		}
		if n > 0 {
			for r := range rows {
				rows[r] += "  "
			}
		}
		top, mid := flameRows(fs, frame/2+n)
		rows[0] += top
		rows[1] += mid
		rows[2] += wickStyle.Render(" | ")
		for r, line := range digitGlyphs[d-'0'] {
			rows[3+r] += candleStyle.Render(strings.ReplaceAll(line, "#", "█"))
		}
		n++
	}
	return strings.Join(rows, "\n")
}

func flameRows(fs flameState, phase int) (top, mid string) {
	switch fs {
	case flameLow:
		tips := []string{" , ", " ' "}
		return "   ", flameStyle.Render(tips[phase%len(tips)])
	case flameOut:
		puffs := []string{" ~ ", "  ~", " ~ ", "~  "}
		return smokeStyle.Render(puffs[phase%len(puffs)]), "   "
	}
	tips := []string{" ) ", " ( ", " ) ", "  )"}
	return flameStyle.Render(tips[phase%len(tips)]),
		flameStyle.Render("(") + flameCoreStyle.Render("@") + flameStyle.Render(")")
}

func renderCake(width, frame int) string {
	if width < 6 {
		width = 6
	}
	inner := width - 2

	var frosting strings.Builder
	for i := range inner {
		if (i+frame/4)%2 == 0 {
			frosting.WriteByte('~')
		} else {
			frosting.WriteByte('-')
		}
	}
	sprinkles := []byte(strings.Repeat(" ", inner))
	for i := 1; i < inner-1; i += 3 {
		sprinkles[i] = '*'
	}

	return strings.Join([]string{
		frostingStyle.Render("." + frosting.String() + "."),
		cakeStyle.Render("|") + frostingStyle.Render(string(sprinkles)) + cakeStyle.Render("|"),
		cakeStyle.Render("|" + strings.Repeat(" ", inner) + "|"),
		cakeStyle.Render("'" + strings.Repeat("-", inner) + "'"),
	}, "\n")
}

func renderCalendar(g greeting.Card, rows [][]calendar.Cell) string {
	var grid strings.Builder
	for i, row := range rows {
		if i > 0 {
			grid.WriteString("\n")
		}
		for j, c := range row {
			if j > 0 {
				grid.WriteString(" ")
			}
			switch c.Kind {
			case calendar.KindHeader:
				grid.WriteString(weekdayStyle.Render(fmt.Sprintf("%2s", c.Label)))
			case calendar.KindEmpty:
				grid.WriteString("  ")
			case calendar.KindDate:
				label := fmt.Sprintf("%2d", c.Day)
				if c.IsSpecialDay {
					label = specialStyle.Render(label)
				}
				grid.WriteString(label)
			}
		}
	}
	return lipgloss.JoinVertical(lipgloss.Center,
		monthStyle.Render(fmt.Sprintf("%s %d", g.Month, g.Year)),
		grid.String(),
	)
}

// renderLevel draws the live mic level against the blow threshold, both on
// the 0..255 byte scale.
func renderLevel(level, threshold float64, width int) string {
	filled := int(level / 255 * float64(width))
	mark := int(threshold / 255 * float64(width))
	filled = max(0, min(filled, width))

	var bar strings.Builder
	for i := range width {
		switch {
		case i == mark:
			bar.WriteString(dimStyle.Render("|"))
		case i < filled && i > mark:
			bar.WriteString(levelHotStyle.Render("█"))
		case i < filled:
			bar.WriteString(levelStyle.Render("█"))
		default:
			bar.WriteString(dimStyle.Render("·"))
		}
	}
	return dimStyle.Render("mic ") + bar.String()
}

// wrapText breaks text into lines of at most width terminal columns, at
// spaces where it can and inside a word only when the word is too long.
func wrapText(text string, width int) []string {
	if width <= 0 {
		width = 1
	}
	lines := strings.Split(ansi.Wrap(text, width, ""), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " ")
	}
	return lines
}

// Package tui provides an interactive tag browser using Bubble Tea.
package tui

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/biketag-game/biketag-go"
	"github.com/biketag-game/biketag-go/internal/backend"
)

const (
	visibleItems = 10
	fetchTimeout = 30 * time.Second
)

// Key names.
const (
	keyCtrlC = "ctrl+c"
	keyEsc   = "esc"
	keyTab   = "tab"
)

// Color constants.
const (
	colorPrimary = "#7D56F4"
	colorDim     = "#666666"
	colorError   = "#FF5F87"
	colorHelp    = "#626262"
	colorWhite   = "#FFFFFF"
	colorGreen   = "#87D787"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(colorPrimary)).
			MarginBottom(1)

	cursorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorPrimary)).
			Bold(true)

	itemNormalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorWhite))

	itemDimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorDim))

	checkboxCheckedStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color(colorGreen)).
				Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorError)).
			MarginTop(1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorHelp)).
			MarginTop(1)

	detailBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(colorPrimary)).
			Padding(1, 2)

	detailLabelStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color(colorDim)).
				Width(10)
)

// State represents the current UI state.
type State int

// State constants for the browser lifecycle.
const (
	StateBrowsing State = iota
	StateDetail
	StateSelected
	StateQuitting
)

// ErrTUIUnexpectedModel is returned when the TUI returns an unexpected model type.
var ErrTUIUnexpectedModel = errors.New("unexpected TUI model type")

// ErrNoSource is returned when the browser has nothing to load tags from.
var ErrNoSource = errors.New("no tag source")

// Source loads tags. *biketag.Client implements it.
type Source interface {
	GetTags(ctx context.Context, arg biketag.Arg, overloads ...biketag.Options) backend.Envelope[[]*backend.Tag]
}

// Options configures the browser.
type Options struct {
	// Game is shown in the title.
	Game string
	// Overloads are passed to every GetTags call, e.g. a named source.
	Overloads []biketag.Options
}

// Result contains the outcome of the browser session.
type Result struct {
	// Selected contains the marked tags in tag number order.
	Selected []*backend.Tag
	// Cancelled is true if the user quit without confirming.
	Cancelled bool
}

// Model is the Bubble Tea model for the browser.
type Model struct {
	source    Source
	opts      Options
	textInput textinput.Model
	all       []*backend.Tag
	items     []*backend.Tag // all, filtered by the search input
	cursor    int
	marked    map[int]bool // tag number -> marked
	state     State
	loading   bool
	origin    backend.Kind
	err       error
	width     int
	height    int
}

// tagsMsg carries the result of a GetTags call.
type tagsMsg struct {
	env backend.Envelope[[]*backend.Tag]
}

// New creates a browser model.
func New(src Source, opts Options) Model {
	ti := textinput.New()
	ti.Placeholder = "Filter by number, player, or location..."
	ti.Focus()
	ti.CharLimit = 100
	ti.Width = 40
	ti.PromptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(colorPrimary))
	ti.TextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(colorWhite))

	return Model{
		source:    src,
		opts:      opts,
		textInput: ti,
		marked:    make(map[int]bool),
		state:     StateBrowsing,
		loading:   true,
		width:     80,
		height:    24,
	}
}

// Init starts loading tags.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.fetchTags())
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tagsMsg:
		m.loading = false
		m.origin = msg.env.Source
		if !msg.env.Success {
			m.err = fmt.Errorf("%d: %w", msg.env.Status, msg.env.Error)
			return m, nil
		}
		m.err = nil
		m.all = slices.Clone(msg.env.Data)
		slices.SortFunc(m.all, func(a, b *backend.Tag) int { return b.TagNumber - a.TagNumber })
		m.applyFilter()
		return m, nil
	}

	return m, nil
}

// handleKeyMsg processes keyboard input based on current state.
func (m Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == keyCtrlC {
		m.state = StateQuitting
		return m, tea.Quit
	}

	if m.state == StateDetail {
		switch msg.String() {
		case keyEsc, keyTab, "q":
			m.state = StateBrowsing
		}
		return m, nil
	}

	switch msg.String() {
	case keyEsc:
		// Clear the filter first, quit on a second Esc
		if m.textInput.Value() != "" {
			m.textInput.SetValue("")
			m.applyFilter()
			return m, nil
		}
		m.state = StateQuitting
		return m, tea.Quit
	case keyTab:
		if m.current() != nil {
			m.state = StateDetail
		}
		return m, nil
	case " ":
		if t := m.current(); t != nil {
			m.marked[t.TagNumber] = !m.marked[t.TagNumber]
			if !m.marked[t.TagNumber] {
				delete(m.marked, t.TagNumber)
			}
		}
		return m, nil
	case "ctrl+a":
		for _, t := range m.items {
			m.marked[t.TagNumber] = true
		}
		return m, nil
	case "ctrl+n":
		clear(m.marked)
		return m, nil
	case "ctrl+r":
		m.loading = true
		return m, m.fetchTags()
	case "enter":
		if len(m.marked) == 0 {
			t := m.current()
			if t == nil {
				return m, nil
			}
			m.marked[t.TagNumber] = true
		}
		m.state = StateSelected
		return m, tea.Quit
	}

	//nolint:exhaustive // Only arrows navigate, everything else is typed
	switch msg.Type {
	case tea.KeyUp:
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case tea.KeyDown:
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}
		return m, nil
	}

	var cmd tea.Cmd
	before := m.textInput.Value()
	m.textInput, cmd = m.textInput.Update(msg)
	if m.textInput.Value() != before {
		m.applyFilter()
	}
	return m, cmd
}

// applyFilter rebuilds items from all using the search input.
func (m *Model) applyFilter() {
	query := strings.ToLower(strings.TrimSpace(m.textInput.Value()))
	m.items = m.items[:0:0]
	for _, t := range m.all {
		if query == "" || matches(t, query) {
			m.items = append(m.items, t)
		}
	}
	if m.cursor >= len(m.items) {
		m.cursor = max(0, len(m.items)-1)
	}
}

func matches(t *backend.Tag, query string) bool {
	if strings.TrimPrefix(query, "#") == strconv.Itoa(t.TagNumber) {
		return true
	}
	for _, s := range []string{t.MysteryPlayer, t.FoundPlayer, t.FoundLocation, t.Hint} {
		if strings.Contains(strings.ToLower(s), query) {
			return true
		}
	}
	return false
}

func (m Model) current() *backend.Tag {
	if m.cursor < 0 || m.cursor >= len(m.items) {
		return nil
	}
	return m.items[m.cursor]
}

// View renders the UI.
func (m Model) View() string {
	switch m.state {
	case StateQuitting:
		return ""
	case StateDetail:
		return m.viewDetail()
	case StateSelected:
		return m.viewSelected()
	default:
		return m.viewBrowse()
	}
}

func (m Model) viewBrowse() string {
	var b strings.Builder

	title := "BikeTag"
	if m.opts.Game != "" {
		title += " " + m.opts.Game
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")
	b.WriteString(m.textInput.View())
	b.WriteString("\n\n")

	switch {
	case m.loading:
		b.WriteString(itemDimStyle.Render("Loading tags..."))
		b.WriteString("\n")
	case m.err != nil:
		b.WriteString(errorStyle.Render("Error: " + m.err.Error()))
		b.WriteString("\n")
	case len(m.items) == 0:
		b.WriteString(itemDimStyle.Render("No tags"))
		b.WriteString("\n")
	default:
		b.WriteString(m.renderItemList())
	}

	if n := len(m.marked); n > 0 {
		b.WriteString("\n")
		b.WriteString(cursorStyle.Render(fmt.Sprintf("Marked: %d", n)))
	}
	if m.origin != backend.KindNone {
		b.WriteString("\n")
		b.WriteString(itemDimStyle.Render("via " + m.origin.String()))
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("↑/↓: navigate • Space: mark • Tab: details • Ctrl+A: all • Ctrl+N: none • Ctrl+R: reload • Enter: done • Esc: quit"))
	return b.String()
}

func (m Model) renderItemList() string {
	var b strings.Builder
	start, end := m.calculateVisibleRange()

	if start > 0 {
		b.WriteString(itemDimStyle.Render(fmt.Sprintf("  ↑ %d more above", start)))
		b.WriteString("\n")
	}

	for i := start; i < end; i++ {
		t := m.items[i]
		checkbox := "[ ]"
		if m.marked[t.TagNumber] {
			checkbox = checkboxCheckedStyle.Render("[✓]")
		}
		content := fmt.Sprintf("%s #%-4d %s", checkbox, t.TagNumber, summary(t))
		if i == m.cursor {
			b.WriteString(cursorStyle.Render("> " + content))
		} else {
			b.WriteString(itemNormalStyle.Render("  " + content))
		}
		b.WriteString("\n")
	}

	if remaining := len(m.items) - end; remaining > 0 {
		b.WriteString(itemDimStyle.Render(fmt.Sprintf("  ↓ %d more below", remaining)))
		b.WriteString("\n")
	}
	return b.String()
}

func summary(t *backend.Tag) string {
	switch {
	case t.FoundPlayer != "" && t.FoundLocation != "":
		return t.FoundPlayer + " at " + t.FoundLocation
	case t.FoundPlayer != "":
		return t.FoundPlayer
	case t.MysteryPlayer != "":
		return "mystery by " + t.MysteryPlayer
	default:
		return t.Slug
	}
}

// calculateVisibleRange returns the start and end indices for visible items,
// keeping the cursor centered when possible.
func (m Model) calculateVisibleRange() (start, end int) {
	total := len(m.items)
	if total <= visibleItems {
		return 0, total
	}
	start = max(0, m.cursor-visibleItems/2)
	end = start + visibleItems
	if end > total {
		end = total
		start = max(0, end-visibleItems)
	}
	return start, end
}

func (m Model) viewDetail() string {
	t := m.current()
	if t == nil {
		return ""
	}
	row := func(label, value string) string {
		if value == "" {
			return ""
		}
		return detailLabelStyle.Render(label) + " " + value + "\n"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("#%d %s", t.TagNumber, t.Game)))
	b.WriteString("\n")
	b.WriteString(row("mystery", t.MysteryPlayer))
	b.WriteString(row("hint", t.Hint))
	b.WriteString(row("image", t.MysteryImageURL))
	b.WriteString(row("found by", t.FoundPlayer))
	b.WriteString(row("at", t.FoundLocation))
	b.WriteString(row("proof", t.FoundImageURL))
	if t.GPS != nil {
		b.WriteString(row("gps", fmt.Sprintf("%.6f,%.6f", t.GPS.Lat, t.GPS.Lng)))
	}
	b.WriteString(row("thread", t.DiscussionURL))
	b.WriteString(row("tweet", t.MentionURL))
	b.WriteString(helpStyle.Render("Esc/Tab: back"))
	return detailBoxStyle.Render(b.String())
}

func (m Model) viewSelected() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("✓ Tags Selected"))
	b.WriteString("\n")
	for _, t := range m.selectedTags() {
		b.WriteString(cursorStyle.Render(fmt.Sprintf("  • #%d %s", t.TagNumber, summary(t))))
		b.WriteString("\n")
	}
	return b.String()
}

// selectedTags returns the marked tags in ascending tag number order.
func (m Model) selectedTags() []*backend.Tag {
	out := make([]*backend.Tag, 0, len(m.marked))
	for _, t := range m.all {
		if m.marked[t.TagNumber] {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b *backend.Tag) int { return a.TagNumber - b.TagNumber })
	return out
}

// fetchTags loads every tag from the source.
func (m Model) fetchTags() tea.Cmd {
	src, over := m.source, m.opts.Overloads
	return func() tea.Msg {
		if src == nil {
			return tagsMsg{env: backend.Fail[[]*backend.Tag](backend.KindNone, 503, ErrNoSource)}
		}
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		return tagsMsg{env: src.GetTags(ctx, nil, over...)}
	}
}

// GetResult returns the browser result.
func (m Model) GetResult() Result {
	if m.state != StateSelected {
		return Result{Cancelled: true}
	}
	return Result{Selected: m.selectedTags()}
}

// Run starts the browser and returns the result.
func Run(src Source, opts Options) (Result, error) {
	p := tea.NewProgram(New(src, opts), tea.WithAltScreen())
	finalModel, err := p.Run()
	if err != nil {
		return Result{Cancelled: true}, fmt.Errorf("TUI error: %w", err)
	}
	m, ok := finalModel.(Model)
	if !ok {
		return Result{Cancelled: true}, ErrTUIUnexpectedModel
	}
	return m.GetResult(), nil
}

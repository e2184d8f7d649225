// Package tui provides a terminal browser for boards, lists and cards.
package tui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"iroha/internal/client"
	"iroha/internal/hierarchy"
	"iroha/internal/render"
	"iroha/internal/utils"
)

// noDataStatus is shown when the server answers a view with an empty body.
const noDataStatus = "No data."

// Client is the subset of client.Client the browser uses.
type Client interface {
	View(ctx context.Context, id hierarchy.ID) ([]client.Row, error)
	Create(ctx context.Context, parent hierarchy.ID, name string) ([]client.Row, error)
	UpdateBoard(ctx context.Context, board hierarchy.ID, name string) ([]client.Row, error)
	UpdateList(ctx context.Context, list hierarchy.ID, name string) ([]client.Row, error)
	UpdateCard(ctx context.Context, card hierarchy.ID, name, desc string) ([]client.Row, error)
	CloseItem(ctx context.Context, id hierarchy.ID) ([]client.Row, error)
	CardDetail(ctx context.Context, card hierarchy.ID) (client.Row, error)
}

// Mode indicates the current input mode
type Mode int

const (
	ModeNormal Mode = iota
	ModeAdd
	ModeEdit
	ModeConfirmClose
	ModeDetail
	ModeHelp
)

// scope is one level of the navigation stack: the rows listed under parent.
type scope struct {
	parent hierarchy.ID // zero for the boards scope
	title  string
	rows   []client.Row
	cursor int
}

func (s *scope) level() hierarchy.Level {
	if s.parent.IsZero() {
		return hierarchy.LevelBoard
	}
	return s.parent.Level() + 1
}

func (s *scope) selected() (client.Row, bool) {
	if s.cursor < 0 || s.cursor >= len(s.rows) {
		return client.Row{}, false
	}
	return s.rows[s.cursor], true
}

// Model represents the TUI state
type Model struct {
	client Client
	ctx    context.Context

	stack  []*scope
	detail client.Row

	mode      Mode
	textInput textinput.Model
	busy      bool
	quitting  bool
	status    string
	err       error
	descWidth int

	width  int
	height int

	titleStyle     lipgloss.Style
	paneStyle      lipgloss.Style
	selectedStyle  lipgloss.Style
	descStyle      lipgloss.Style
	helpStyle      lipgloss.Style
	errorStyle     lipgloss.Style
	dialogStyle    lipgloss.Style
	statusBarStyle lipgloss.Style
}

// Message types
type rowsLoadedMsg struct {
	parent hierarchy.ID
	title  string
	rows   []client.Row
	push   bool
	status string
}

type detailLoadedMsg struct {
	row client.Row
}

type errMsg struct {
	err error
}

// New creates a new TUI model
func New(ctx context.Context, c Client) *Model {
	if ctx == nil {
		ctx = context.Background()
	}
	ti := textinput.New()
	ti.Placeholder = "Enter text..."
	ti.CharLimit = 256

	return &Model{
		client:    c,
		ctx:       ctx,
		textInput: ti,
		mode:      ModeNormal,
		descWidth: render.DefaultDescWidth,
		titleStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("10")),
		paneStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1),
		selectedStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")),
		descStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")),
		helpStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")),
		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")),
		dialogStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2),
		statusBarStyle: lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1),
	}
}

// SetDescWidth sets how much of a card description is shown in the card list.
func (m *Model) SetDescWidth(width int) {
	if width > 0 {
		m.descWidth = width
	}
}

// Init loads the boards
func (m *Model) Init() tea.Cmd {
	m.busy = true
	return m.load(hierarchy.ID{}, "Boards", true, "")
}

func (m *Model) current() *scope {
	if len(m.stack) == 0 {
		return &scope{}
	}
	return m.stack[len(m.stack)-1]
}

// load views the children of parent. push opens them as a new scope;
// otherwise they replace the current scope's rows.
func (m *Model) load(parent hierarchy.ID, title string, push bool, status string) tea.Cmd {
	return func() tea.Msg {
		rows, err := m.client.View(m.ctx, parent)
		if errors.Is(err, utils.ErrEmptyResponse) {
			return rowsLoadedMsg{parent: parent, title: title, push: push, status: noDataStatus}
		}
		if err != nil {
			return errMsg{err}
		}
		return rowsLoadedMsg{parent: parent, title: title, rows: rows, push: push, status: status}
	}
}

// mutate runs a client call whose result refreshes the current scope.
func (m *Model) mutate(status string, fn func() ([]client.Row, error)) tea.Cmd {
	cur := m.current()
	parent, title := cur.parent, cur.title
	return func() tea.Msg {
		rows, err := fn()
		if errors.Is(err, utils.ErrEmptyResponse) {
			return rowsLoadedMsg{parent: parent, title: title, status: noDataStatus}
		}
		if err != nil {
			return errMsg{err}
		}
		return rowsLoadedMsg{parent: parent, title: title, rows: rows, status: status}
	}
}

func (m *Model) loadDetail(card hierarchy.ID) tea.Cmd {
	return func() tea.Msg {
		row, err := m.client.CardDetail(m.ctx, card)
		if err != nil {
			return errMsg{err}
		}
		return detailLoadedMsg{row}
	}
}

// Update handles messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case rowsLoadedMsg:
		m.busy = false
		m.err = nil
		m.status = msg.status
		if msg.push || len(m.stack) == 0 {
			m.stack = append(m.stack, &scope{parent: msg.parent, title: msg.title, rows: msg.rows})
			return m, m.settled()
		}
		cur := m.current()
		cur.rows = msg.rows
		if cur.cursor >= len(cur.rows) {
			cur.cursor = len(cur.rows) - 1
		}
		if cur.cursor < 0 {
			cur.cursor = 0
		}
		return m, m.settled()

	case detailLoadedMsg:
		m.busy = false
		m.err = nil
		m.detail = msg.row
		m.mode = ModeDetail
		return m, m.settled()

	case errMsg:
		m.busy = false
		m.err = msg.err
		m.status = ""
		return m, m.settled()

	case tea.KeyMsg:
		// The client must not be closed under a running request, so quitting
		// while busy waits for its reply.
		if m.busy && (msg.String() == "q" || msg.String() == "ctrl+c") {
			m.quitting = true
			return m, nil
		}
		switch m.mode {
		case ModeAdd, ModeEdit:
			return m.handleInputMode(msg)
		case ModeConfirmClose:
			return m.handleConfirmCloseMode(msg)
		case ModeDetail, ModeHelp:
			return m.handleOverlayMode(msg)
		}
		return m.handleNormalMode(msg)
	}

	return m, nil
}

// settled quits once the request that was running when quit was pressed has finished.
func (m *Model) settled() tea.Cmd {
	if m.quitting {
		return tea.Quit
	}
	return nil
}

func (m *Model) handleNormalMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "?":
		m.mode = ModeHelp
		return m, nil
	}

	if m.busy {
		return m, nil
	}
	cur := m.current()

	switch msg.String() {
	case "up", "k":
		if cur.cursor > 0 {
			cur.cursor--
		}

	case "down", "j":
		if cur.cursor < len(cur.rows)-1 {
			cur.cursor++
		}

	case "enter", "right", "l":
		row, ok := cur.selected()
		if !ok {
			return m, nil
		}
		id := hierarchy.MustParse(row.ID)
		m.busy = true
		if id.Level() == hierarchy.LevelCard {
			return m, m.loadDetail(id)
		}
		return m, m.load(id, row.Name, true, "")

	case "esc", "left", "h", "backspace":
		if len(m.stack) > 1 {
			m.stack = m.stack[:len(m.stack)-1]
			m.err = nil
			m.status = ""
		}

	case "r":
		m.busy = true
		return m, m.load(cur.parent, cur.title, false, "Refreshed")

	case "n", "a":
		m.mode = ModeAdd
		m.textInput.Reset()
		m.textInput.Placeholder = "New " + cur.level().String() + " name..."
		m.textInput.Focus()
		return m, textinput.Blink

	case "e":
		row, ok := cur.selected()
		if !ok {
			return m, nil
		}
		m.mode = ModeEdit
		m.textInput.Reset()
		m.textInput.SetValue(row.Name)
		m.textInput.Focus()
		return m, textinput.Blink

	case "x":
		if _, ok := cur.selected(); ok {
			m.mode = ModeConfirmClose
		}
	}
	return m, nil
}

func (m *Model) handleInputMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg.Type {
	case tea.KeyEnter:
		value := strings.TrimSpace(m.textInput.Value())
		mode := m.mode
		m.mode = ModeNormal
		m.textInput.Blur()
		if value == "" {
			return m, nil
		}
		m.busy = true
		if mode == ModeAdd {
			return m, m.create(value)
		}
		return m, m.rename(value)

	case tea.KeyEsc:
		m.mode = ModeNormal
		m.textInput.Blur()
		return m, nil
	}

	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m *Model) create(name string) tea.Cmd {
	parent := m.current().parent
	return m.mutate("Created "+name, func() ([]client.Row, error) {
		return m.client.Create(m.ctx, parent, name)
	})
}

func (m *Model) rename(name string) tea.Cmd {
	row, ok := m.current().selected()
	if !ok {
		m.busy = false
		return nil
	}
	id := hierarchy.MustParse(row.ID)
	return m.mutate("Renamed to "+name, func() ([]client.Row, error) {
		switch id.Level() {
		case hierarchy.LevelBoard:
			return m.client.UpdateBoard(m.ctx, id, name)
		case hierarchy.LevelList:
			return m.client.UpdateList(m.ctx, id, name)
		}
		return m.client.UpdateCard(m.ctx, id, name, row.Desc)
	})
}

func (m *Model) handleConfirmCloseMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		m.mode = ModeNormal
		row, ok := m.current().selected()
		if !ok {
			return m, nil
		}
		id := hierarchy.MustParse(row.ID)
		m.busy = true
		return m, m.mutate("Closed "+row.Name, func() ([]client.Row, error) {
			return m.client.CloseItem(m.ctx, id)
		})

	case "n", "N", "esc":
		m.mode = ModeNormal
	}
	return m, nil
}

func (m *Model) handleOverlayMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}
	m.mode = ModeNormal
	return m, nil
}

// View renders the TUI
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		m.width = 80
		m.height = 24
	}

	switch m.mode {
	case ModeAdd:
		return m.renderInputDialog("New " + m.current().level().String())
	case ModeEdit:
		title := "Rename"
		if row, ok := m.current().selected(); ok {
			title = "Rename: " + row.Name
		}
		return m.renderInputDialog(title)
	case ModeConfirmClose:
		return m.renderConfirmCloseDialog()
	case ModeDetail:
		return m.renderDetailDialog()
	case ModeHelp:
		return m.renderHelpDialog()
	}

	var b strings.Builder
	pane := m.paneStyle.Width(m.width - 2).Height(m.height - 4).Render(m.renderRows(m.width - 6))
	b.WriteString(pane)
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	return b.String()
}

func (m *Model) breadcrumb() string {
	parts := make([]string, 0, len(m.stack))
	for _, s := range m.stack {
		parts = append(parts, s.title)
	}
	if len(parts) == 0 {
		return "Boards"
	}
	return strings.Join(parts, " › ")
}

func (m *Model) renderRows(width int) string {
	var b strings.Builder
	b.WriteString(m.titleStyle.Render(m.breadcrumb()))
	b.WriteString("\n")
	if width > 0 {
		b.WriteString(strings.Repeat("─", width))
	}
	b.WriteString("\n")

	cur := m.current()
	if len(m.stack) == 0 {
		b.WriteString("Loading...\n")
		return b.String()
	}
	if len(cur.rows) == 0 {
		b.WriteString("No " + cur.level().Plural() + "\n")
		return b.String()
	}

	for i, row := range cur.rows {
		cursor := " "
		name := row.Name
		if i == cur.cursor {
			cursor = ">"
			name = m.selectedStyle.Render(name)
		}
		line := cursor + " " + row.ID + "  " + name
		if desc := render.TrimToFirstLine(row.Desc); desc != "" {
			line += "  " + m.descStyle.Render(render.Truncate(desc, m.descWidth))
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

func (m *Model) renderStatusBar() string {
	left := m.status
	if m.busy {
		left = "Loading..."
		if m.quitting {
			left = "Quitting after the current request..."
		}
	}
	if m.err != nil {
		left = m.errorStyle.Render("Error: " + firstLine(m.err.Error()))
	}

	right := "enter:open  esc:back  n:new  e:rename  x:close  q:quit  ?:help"

	padding := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}

	return m.statusBarStyle.Width(m.width).Render(left + strings.Repeat(" ", padding) + right)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func (m *Model) renderInputDialog(title string) string {
	dialog := m.dialogStyle.Render(
		title + "\n\n" +
			m.textInput.View() + "\n\n" +
			m.helpStyle.Render("Enter: confirm  Esc: cancel"),
	)
	return m.centerDialog(dialog)
}

func (m *Model) renderConfirmCloseDialog() string {
	name := ""
	if row, ok := m.current().selected(); ok {
		name = row.Name
	}
	dialog := m.dialogStyle.Render(
		"Close " + m.current().level().String() + " \"" + name + "\"?\n\n" +
			m.helpStyle.Render("y: yes  n: no"),
	)
	return m.centerDialog(dialog)
}

func (m *Model) renderDetailDialog() string {
	desc := m.detail.Desc
	if strings.TrimSpace(desc) == "" {
		desc = m.helpStyle.Render("(no description)")
	}
	dialog := m.dialogStyle.Render(
		m.titleStyle.Render(m.detail.Name) + "\n" +
			m.helpStyle.Render("Card "+m.detail.ID) + "\n\n" +
			desc + "\n\n" +
			m.helpStyle.Render("Press any key to close"),
	)
	return m.centerDialog(dialog)
}

func (m *Model) renderHelpDialog() string {
	help := `Help - Key Bindings

Navigation:
  j/↓    Move down
  k/↑    Move up
  Enter  Open board, list or card
  Esc    Back to the previous level
  r      Refresh

Actions:
  n      New item at this level
  e      Rename selected item
  x      Close selected item (with confirm)

General:
  ?      Show this help
  q      Quit

Press any key to close`

	dialog := m.dialogStyle.Render(help)
	return m.centerDialog(dialog)
}

func (m *Model) centerDialog(dialog string) string {
	lines := strings.Split(dialog, "\n")
	dialogHeight := len(lines)
	dialogWidth := 0
	for _, line := range lines {
		if w := lipgloss.Width(line); w > dialogWidth {
			dialogWidth = w
		}
	}

	topPad := (m.height - dialogHeight) / 2
	leftPad := (m.width - dialogWidth) / 2

	if topPad < 0 {
		topPad = 0
	}
	if leftPad < 0 {
		leftPad = 0
	}

	var b strings.Builder
	for i := 0; i < topPad; i++ {
		b.WriteString("\n")
	}
	for _, line := range lines {
		b.WriteString(strings.Repeat(" ", leftPad))
		b.WriteString(line)
		b.WriteString("\n")
	}

	return b.String()
}

var _ Client = (*client.Client)(nil)

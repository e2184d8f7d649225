// Package render writes boards, lists and cards as titled tables.
package render

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"iroha/internal/client"
	"iroha/internal/hierarchy"
)

// Default column widths for names and card descriptions.
const (
	DefaultNameWidth = 25
	DefaultDescWidth = 50
)

// Renderer writes tables to an output stream.
type Renderer struct {
	writer    io.Writer
	nameWidth int
	descWidth int

	titleStyle  lipgloss.Style
	headerStyle lipgloss.Style
	cellStyle   lipgloss.Style
	borderStyle lipgloss.Style
	errorStyle  lipgloss.Style
	mutedStyle  lipgloss.Style
}

// New creates a Renderer. Non-positive widths select the defaults.
func New(writer io.Writer, nameWidth, descWidth int) *Renderer {
	if nameWidth <= 0 {
		nameWidth = DefaultNameWidth
	}
	if descWidth <= 0 {
		descWidth = DefaultDescWidth
	}
	return &Renderer{
		writer:    writer,
		nameWidth: nameWidth,
		descWidth: descWidth,
		titleStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("10")),
		headerStyle: lipgloss.NewStyle().
			Bold(true).
			Align(lipgloss.Center).
			Padding(0, 1),
		cellStyle: lipgloss.NewStyle().
			Padding(0, 1),
		borderStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),
		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")),
		mutedStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")),
	}
}

// Title returns the table title for a level.
func Title(level hierarchy.Level) string {
	switch level {
	case hierarchy.LevelBoard:
		return "Boards"
	case hierarchy.LevelList:
		return "Lists"
	case hierarchy.LevelCard:
		return "Cards"
	}
	return level.String()
}

// TrimToFirstLine keeps the first line of a non-empty description and appends "...".
func TrimToFirstLine(s string) string {
	if s == "" {
		return ""
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimRight(s, "\r") + "..."
}

// Truncate shortens s to at most width runes, ending in "..." when cut.
func Truncate(s string, width int) string {
	if width <= 0 || utf8.RuneCountInString(s) <= width {
		return s
	}
	runes := []rune(s)
	if width <= 3 {
		return string(runes[:width])
	}
	return string(runes[:width-3]) + "..."
}

func (r *Renderer) newTable() *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(r.borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return r.headerStyle
			}
			return r.cellStyle
		})
}

// Table returns the titled table for rows of level.
func (r *Renderer) Table(level hierarchy.Level, rows []client.Row) string {
	t := r.newTable()
	if level == hierarchy.LevelCard {
		t.Headers("ID", "Name", "Description")
		for _, row := range rows {
			t.Row(row.ID, Truncate(row.Name, r.nameWidth), Truncate(TrimToFirstLine(row.Desc), r.descWidth))
		}
	} else {
		t.Headers("ID", "Name")
		for _, row := range rows {
			t.Row(row.ID, Truncate(row.Name, r.nameWidth))
		}
	}
	return r.titleStyle.Render(Title(level)) + "\n" + t.String()
}

// Rows writes the titled table for rows of level.
func (r *Renderer) Rows(level hierarchy.Level, rows []client.Row) {
	_, _ = fmt.Fprintln(r.writer, r.Table(level, rows))
}

// Detail writes a card's full name and description.
func (r *Renderer) Detail(row client.Row) {
	desc := row.Desc
	if strings.TrimSpace(desc) == "" {
		desc = r.mutedStyle.Render("(no description)")
	}
	t := r.newTable().
		Headers("Field", "Value").
		Row("ID", row.ID).
		Row("Name", row.Name).
		Row("Description", desc)
	_, _ = fmt.Fprintln(r.writer, r.titleStyle.Render("Card")+"\n"+t.String())
}

// helpRows lists every interpreter command.
var helpRows = [][]string{
	{"view", "List your open boards"},
	{"view <board>", "List the lists of a board, e.g. view 3"},
	{"view <list>", "List the cards of a list, e.g. view 3-1"},
	{"view <card>", "Show a card's full name and description, e.g. view 3-1-2"},
	{"create", "Create a board"},
	{"create <board>", "Create a list on a board"},
	{"create <list>", "Create a card in a list"},
	{"update [board]", "Rename a board"},
	{"update <list>", "Rename a list"},
	{"update <card>", "Change a card's name and description"},
	{"close <id>", "Archive a board, list or card after confirming"},
	{"detail <card>", "Show a card's full name and description"},
	{"help, h", "Show this table"},
	{"quit, q", "Leave iroha"},
}

// Help writes the command table.
func (r *Renderer) Help() {
	t := r.newTable().Headers("Command", "Description").Rows(helpRows...)
	_, _ = fmt.Fprintln(r.writer, r.titleStyle.Render("Commands")+"\n"+t.String())
}

// Error writes a user-facing error line.
func (r *Renderer) Error(err error) {
	_, _ = fmt.Fprintln(r.writer, r.errorStyle.Render("Error: "+err.Error()))
}

// Message writes a plain line.
func (r *Renderer) Message(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(r.writer, format+"\n", args...)
}

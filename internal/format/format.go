// Package format renders tables and small text helpers shared by reports
// and the CLI.
package format

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Mode selects the table output.
type Mode int

const (
	ASCII    Mode = iota // box-drawing tables for terminals and feedback text
	Markdown             // GitHub-flavoured Markdown
	CSV
)

// ParseMode maps a flag value to a Mode; unknown values mean ASCII.
func ParseMode(s string) Mode {
	switch s {
	case "markdown", "md":
		return Markdown
	case "csv":
		return CSV
	default:
		return ASCII
	}
}

type Align int

const (
	AlignDefault Align = iota
	AlignLeft
	AlignCenter
	AlignRight
)

// Column configures one 1-based column.
type Column struct {
	Number   int
	Align    Align
	MaxWidth int // 0 = unlimited
}

// Table is built once and rendered in the Mode chosen at creation.
type Table interface {
	Header(cols ...string)
	Row(vals ...any)
	Footer(vals ...any)
	Columns(cfgs ...Column)
	Len() int
	String() string
}

func NewTable(m Mode) Table {
	w := table.NewWriter()
	if m == ASCII {
		style := table.StyleLight
		// Keep header and footer text as written; report labels are case-sensitive.
		style.Format.Header = text.FormatDefault
		style.Format.Footer = text.FormatDefault
		w.SetStyle(style)
	}
	return &prettyTable{w: w, mode: m}
}

type prettyTable struct {
	w    table.Writer
	mode Mode
	rows int
}

func (t *prettyTable) Header(cols ...string) {
	row := make(table.Row, len(cols))
	for i, c := range cols {
		row[i] = c
	}
	t.w.AppendHeader(row)
}

func (t *prettyTable) Row(vals ...any) {
	t.w.AppendRow(append(table.Row{}, vals...))
	t.rows++
}

func (t *prettyTable) Footer(vals ...any) {
	t.w.AppendFooter(append(table.Row{}, vals...))
}

func (t *prettyTable) Columns(cfgs ...Column) {
	out := make([]table.ColumnConfig, len(cfgs))
	for i, c := range cfgs {
		out[i] = table.ColumnConfig{
			Number:   c.Number,
			Align:    textAlign(c.Align),
			WidthMax: c.MaxWidth,
		}
	}
	t.w.SetColumnConfigs(out)
}

func (t *prettyTable) Len() int { return t.rows }

func (t *prettyTable) String() string {
	switch t.mode {
	case Markdown:
		return t.w.RenderMarkdown()
	case CSV:
		return t.w.RenderCSV()
	default:
		return t.w.Render()
	}
}

func textAlign(a Align) text.Align {
	switch a {
	case AlignLeft:
		return text.AlignLeft
	case AlignCenter:
		return text.AlignCenter
	case AlignRight:
		return text.AlignRight
	default:
		return text.AlignDefault
	}
}

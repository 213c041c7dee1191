package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"options-autotrader/pkg/utils"
)

// Output writes command results either as coloured text or, with --json, as
// indented JSON. Colour follows fatih/color's terminal detection.
type Output struct {
	w     io.Writer
	json  bool
	color bool
}

func NewOutput(cmd *cobra.Command) *Output {
	jsonMode, _ := cmd.Flags().GetBool("json")
	return &Output{
		w:     cmd.OutOrStdout(),
		json:  jsonMode,
		color: !jsonMode && !color.NoColor,
	}
}

func (o *Output) IsJSON() bool { return o.json }

func (o *Output) JSON(v interface{}) error {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (o *Output) Println(args ...interface{}) { fmt.Fprintln(o.w, args...) }

func (o *Output) Printf(format string, args ...interface{}) { fmt.Fprintf(o.w, format, args...) }

// style returns a painter for attrs that honours the output's colour setting
// rather than the process-wide one.
func (o *Output) style(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if o.color {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c
}

func (o *Output) line(attr color.Attribute, format string, args []interface{}) {
	o.style(attr).Fprintln(o.w, fmt.Sprintf(format, args...))
}

// Line printers.
func (o *Output) Success(format string, args ...interface{}) { o.line(color.FgGreen, format, args) }
func (o *Output) Error(format string, args ...interface{})   { o.line(color.FgRed, format, args) }
func (o *Output) Warning(format string, args ...interface{}) { o.line(color.FgYellow, format, args) }
func (o *Output) Info(format string, args ...interface{})    { o.line(color.FgCyan, format, args) }
func (o *Output) Bold(format string, args ...interface{})    { o.line(color.Bold, format, args) }
func (o *Output) Dim(format string, args ...interface{})     { o.line(color.Faint, format, args) }

// Inline colourers for table cells.
func (o *Output) Green(s string) string  { return o.style(color.FgGreen).Sprint(s) }
func (o *Output) Red(s string) string    { return o.style(color.FgRed).Sprint(s) }
func (o *Output) Yellow(s string) string { return o.style(color.FgYellow).Sprint(s) }

// FormatPnL renders a signed rupee amount, green for gains and red for losses.
func (o *Output) FormatPnL(pnl float64) string {
	s := utils.FormatPnL(pnl)
	if pnl > 0 {
		return o.Green(s)
	}
	if pnl < 0 {
		return o.Red(s)
	}
	return s
}

// Table is a left-aligned text table. Column widths ignore colour codes so
// coloured cells line up with plain ones.
type Table struct {
	out     *Output
	headers []string
	rows    [][]string
}

func NewTable(out *Output, headers ...string) *Table {
	return &Table{out: out, headers: headers}
}

func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *Table) Render() {
	if len(t.headers) == 0 {
		return
	}

	widths := make([]int, len(t.headers))
	for _, row := range append([][]string{t.headers}, t.rows...) {
		for i := 0; i < len(row) && i < len(widths); i++ {
			widths[i] = max(widths[i], visibleLen(row[i]))
		}
	}

	t.out.Println(t.format(t.headers, widths, t.out.style(color.Bold)))

	rule := make([]string, len(widths))
	for i, w := range widths {
		rule[i] = strings.Repeat("─", w)
	}
	t.out.Println(t.out.style(color.Faint).Sprint(strings.Join(rule, "──")))

	for _, row := range t.rows {
		t.out.Println(t.format(row, widths, nil))
	}
}

func (t *Table) format(cells []string, widths []int, paint *color.Color) string {
	var b strings.Builder
	for i, cell := range cells {
		if i >= len(widths) {
			break
		}
		if i > 0 {
			b.WriteString("  ")
		}
		padded := cell + strings.Repeat(" ", widths[i]-visibleLen(cell))
		if paint != nil {
			padded = paint.Sprint(padded)
		}
		b.WriteString(padded)
	}
	return strings.TrimRight(b.String(), " ")
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func visibleLen(s string) int {
	return len([]rune(ansiPattern.ReplaceAllString(s, "")))
}

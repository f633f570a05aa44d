package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

// Output печатает результаты команд crawlctl.
//
// Данные (таблица или JSON) идут в stdout, служебные сообщения — в stderr,
// поэтому `crawlctl results --json | jq` получает чистый JSON.
type Output struct {
	jsonMode bool
	data     io.Writer
	notes    io.Writer
}

// NewOutput создаёт Output для терминала.
func NewOutput(jsonMode bool) *Output {
	return newOutputTo(jsonMode, os.Stdout, os.Stderr)
}

func newOutputTo(jsonMode bool, data, notes io.Writer) *Output {
	return &Output{jsonMode: jsonMode, data: data, notes: notes}
}

// Print выводит rows под заголовками, а в режиме --json — v целиком.
func (o *Output) Print(headers []string, rows [][]string, v any) {
	if o.jsonMode {
		o.printJSON(v)
		return
	}
	o.printTable(headers, rows)
}

// printTable выравнивает колонки; под заголовком — строка из дефисов.
func (o *Output) printTable(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(o.data, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	underline := make([]string, len(headers))
	for i, h := range headers {
		underline[i] = strings.Repeat("-", len(h))
	}

	for _, line := range append([][]string{headers, underline}, rows...) {
		fmt.Fprintln(tw, strings.Join(line, "\t"))
	}
}

func (o *Output) printJSON(v any) {
	enc := json.NewEncoder(o.data)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintln(o.notes, "encode output:", err)
	}
}

// Success сообщает об итоге команды в stderr.
func (o *Output) Success(msg string) {
	fmt.Fprintln(o.notes, msg)
}

// Package presentation turns a registry context into DTOs and renders them
// as JSON, YAML or terminal tables.
package presentation

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gopkg.in/yaml.v3"
)

// Output formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#1A5276", Dark: "#54A0FF"}).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#696969"})
	labelStyle  = lipgloss.NewStyle().Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#B7950B", Dark: "#FECA57"})
)

// Formatter writes DTOs in one format.
type Formatter struct {
	writer io.Writer
	format string
}

// NewFormatter creates a formatter. Unknown formats are rejected.
func NewFormatter(writer io.Writer, format string) (*Formatter, error) {
	switch format {
	case FormatTable, FormatJSON, FormatYAML:
	case "":
		format = FormatTable
	default:
		return nil, fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
	}
	return &Formatter{writer: writer, format: format}, nil
}

// Encode writes v as JSON or YAML. Table output falls back to JSON.
func (f *Formatter) Encode(v any) error {
	if f.format == FormatYAML {
		enc := yaml.NewEncoder(f.writer)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(f.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (f *Formatter) table(v any, headers []string, rows [][]string) error {
	if f.format != FormatTable {
		return f.Encode(v)
	}
	if len(rows) == 0 {
		_, err := fmt.Fprintln(f.writer, "(none)")
		return err
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	_, err := fmt.Fprintln(f.writer, t.Render())
	return err
}

// FormatSummary renders the context overview.
func (f *Formatter) FormatSummary(s SummaryDTO) error {
	if f.format != FormatTable {
		return f.Encode(s)
	}
	lines := [][2]string{
		{"Node", s.NodeID},
		{"Registry root", orDash(s.RegistryRoot)},
		{"Read-only", strconv.FormatBool(s.ReadOnly)},
		{"Cache", strconv.FormatBool(s.CacheEnabled)},
		{"Database", fmt.Sprintf("%s (of %s)", s.CurrentDBConfig, strings.Join(s.DBConfigs, ", "))},
		{"Remotes", strconv.Itoa(s.Remotes)},
		{"Mounts", strconv.Itoa(s.Mounts)},
		{"Handlers", strconv.Itoa(s.Handlers)},
		{"Aspects", strconv.Itoa(s.Aspects)},
		{"Query types", orDash(strings.Join(s.QueryTypes, ", "))},
	}
	var b strings.Builder
	for _, l := range lines {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render(fmt.Sprintf("%-14s", l[0]+":")), l[1])
	}
	for _, w := range s.Warnings {
		fmt.Fprintf(&b, "%s %s\n", warnStyle.Render("warning:"), w)
	}
	_, err := io.WriteString(f.writer, b.String())
	return err
}

// FormatMounts renders mounts.
func (f *Formatter) FormatMounts(mounts []MountDTO) error {
	rows := make([][]string, 0, len(mounts))
	for _, m := range mounts {
		rows = append(rows, []string{m.Path, m.InstanceID, m.TargetPath, orDash(m.RemoteURL),
			flags(m.ReadOnly, "ro", m.Virtual, "virtual", m.ExecuteQueryAllowed, "query"), orDash(m.CacheID)})
	}
	return f.table(mounts, []string{"PATH", "INSTANCE", "TARGET", "REMOTE", "FLAGS", "CACHE ID"}, rows)
}

// FormatRemotes renders remote instances.
func (f *Formatter) FormatRemotes(remotes []RemoteDTO) error {
	rows := make([][]string, 0, len(remotes))
	for _, r := range remotes {
		rows = append(rows, []string{r.ID, orDash(r.URL), orDash(r.DBConfig), orDash(r.User),
			flags(r.ReadOnly, "ro", r.CacheEnabled, "cache"), orDash(r.CacheID)})
	}
	return f.table(remotes, []string{"ID", "URL", "DB CONFIG", "USER", "FLAGS", "CACHE ID"}, rows)
}

// FormatHandlers renders handler registrations.
func (f *Formatter) FormatHandlers(handlers []HandlerDTO) error {
	rows := make([][]string, 0, len(handlers))
	for _, h := range handlers {
		methods := "*"
		if len(h.Methods) > 0 {
			methods = strings.Join(h.Methods, ",")
		}
		rows = append(rows, []string{h.Phase, strconv.FormatUint(h.ID, 10), h.Handler, h.Filter, methods,
			flags(h.Priority, "priority")})
	}
	return f.table(handlers, []string{"PHASE", "ID", "HANDLER", "FILTER", "METHODS", "FLAGS"}, rows)
}

// FormatAspects renders aspects.
func (f *Formatter) FormatAspects(aspects []AspectDTO) error {
	rows := make([][]string, 0, len(aspects))
	for _, a := range aspects {
		rows = append(rows, []string{a.Name, a.Type, orDash(strings.Join(a.States, " > "))})
	}
	return f.table(aspects, []string{"NAME", "TYPE", "STATES"}, rows)
}

// FormatLogs renders activity records.
func (f *Formatter) FormatLogs(logs []LogDTO) error {
	rows := make([][]string, 0, len(logs))
	for _, l := range logs {
		rows = append(rows, []string{l.LoggedTime.UTC().Format(time.DateTime), l.User, l.Action, l.Path,
			orDash(l.ActionData), strconv.Itoa(l.TenantID)})
	}
	return f.table(logs, []string{"TIME", "USER", "ACTION", "PATH", "DATA", "TENANT"}, rows)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// flags takes (bool, name) pairs and joins the names that are set.
func flags(pairs ...any) string {
	var set []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if on, _ := pairs[i].(bool); on {
			set = append(set, pairs[i+1].(string))
		}
	}
	return orDash(strings.Join(set, ","))
}

package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/halderavik/cbc-design-MCP/design"
)

// ErrUnsupportedFormat is returned for an unknown export format name
var ErrUnsupportedFormat = errors.New("unsupported export format")

// Format names an export layout
type Format string

const (
	FormatCSV       Format = "csv"
	FormatJSON      Format = "json"
	FormatQualtrics Format = "qualtrics"
)

// ParseFormat resolves a format name case-insensitively
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case FormatCSV, FormatJSON, FormatQualtrics:
		return f, nil
	case "":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("%w: %q (must be one of: csv, json, qualtrics)", ErrUnsupportedFormat, name)
	}
}

// Options controls rendering. Grid, when set, fixes the attribute column
// order; otherwise attributes are sorted by name.
type Options struct {
	IncludeMetadata bool
	// Respondents > 0 adds a leading Respondent_ID column and repeats the
	// design once per respondent (CSV only)
	Respondents int
	Grid        *design.Grid
}

// Render writes d in the given format
func Render(w io.Writer, d design.Design, f Format, opts Options) error {
	switch f {
	case FormatCSV:
		return CSV(w, d, opts)
	case FormatJSON:
		return JSON(w, d, opts)
	case FormatQualtrics:
		return Qualtrics(w, d, opts)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
	}
}

// RenderString is Render into a string
func RenderString(d design.Design, f Format, opts Options) (string, error) {
	var buf bytes.Buffer
	if err := Render(&buf, d, f, opts); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// CSV writes one row per option: Task_Index,Option_Index,<attributes...>
func CSV(w io.Writer, d design.Design, opts Options) error {
	if opts.Respondents < 0 {
		return fmt.Errorf("respondents cannot be negative, got %d", opts.Respondents)
	}
	attrs := attributeOrder(d, opts.Grid)

	if opts.IncludeMetadata {
		if err := writeMetadata(w, d); err != nil {
			return err
		}
	}

	cw := csv.NewWriter(w)
	header := []string{"Task_Index", "Option_Index"}
	if opts.Respondents > 0 {
		header = append([]string{"Respondent_ID"}, header...)
	}
	if err := cw.Write(append(header, attrs...)); err != nil {
		return err
	}

	respondents := max(opts.Respondents, 1)
	for r := 1; r <= respondents; r++ {
		for _, task := range d.Tasks {
			for o, opt := range task.Options {
				row := make([]string, 0, len(header)+len(attrs))
				if opts.Respondents > 0 {
					row = append(row, strconv.Itoa(r))
				}
				row = append(row, strconv.Itoa(task.Index), strconv.Itoa(o+1))
				for _, a := range attrs {
					row = append(row, opt[a])
				}
				if err := cw.Write(row); err != nil {
					return err
				}
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeMetadata(w io.Writer, d design.Design) error {
	lines := []string{
		"# CBC Design Export",
		"# Method: " + string(d.Provenance.Delivered),
		"# Provenance: " + d.Provenance.Tag(),
		"# Efficiency Score: " + strconv.FormatFloat(d.Efficiency, 'f', -1, 64),
		"# Total Tasks: " + strconv.Itoa(len(d.Tasks)),
		"# Seed: " + strconv.FormatInt(d.Seed, 10),
	}
	for _, warning := range d.Warnings {
		lines = append(lines, "# Warning: "+warning)
	}
	_, err := io.WriteString(w, strings.Join(lines, "\n")+"\n")
	return err
}

// Metadata describes a design in the JSON export
type Metadata struct {
	Method         design.Method `json:"method"`
	Provenance     string        `json:"provenance"`
	Efficiency     float64       `json:"efficiency"`
	BalanceScore   float64       `json:"balance_score"`
	Seed           int64         `json:"seed"`
	TotalTasks     int           `json:"total_tasks"`
	OptionsPerTask int           `json:"options_per_task"`
	Attributes     []string      `json:"attributes"`
	Warnings       []string      `json:"warnings,omitempty"`
}

type jsonExport struct {
	Metadata *Metadata           `json:"metadata,omitempty"`
	Tasks    []design.ChoiceTask `json:"tasks"`
}

// JSON writes {"metadata": ..., "tasks": [...]}; metadata is omitted
// unless IncludeMetadata is set
func JSON(w io.Writer, d design.Design, opts Options) error {
	out := jsonExport{Tasks: d.Tasks}
	if out.Tasks == nil {
		out.Tasks = []design.ChoiceTask{}
	}
	if opts.IncludeMetadata {
		md := Metadata{
			Method:       d.Provenance.Delivered,
			Provenance:   d.Provenance.Tag(),
			Efficiency:   d.Efficiency,
			BalanceScore: d.BalanceScore,
			Seed:         d.Seed,
			TotalTasks:   len(d.Tasks),
			Attributes:   attributeOrder(d, opts.Grid),
			Warnings:     d.Warnings,
		}
		if len(d.Tasks) > 0 {
			md.OptionsPerTask = len(d.Tasks[0].Options)
		}
		out.Metadata = &md
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// Qualtrics writes the long format survey platforms import: one row per
// attribute of every option
func Qualtrics(w io.Writer, d design.Design, opts Options) error {
	attrs := attributeOrder(d, opts.Grid)
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Task", "Option", "Attribute", "Level"}); err != nil {
		return err
	}
	for _, task := range d.Tasks {
		for o, opt := range task.Options {
			for _, a := range attrs {
				level, ok := opt[a]
				if !ok {
					continue
				}
				if err := cw.Write([]string{strconv.Itoa(task.Index), strconv.Itoa(o + 1), a, level}); err != nil {
					return err
				}
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// Summary is the short description returned alongside an export
type Summary struct {
	TotalTasks            int      `json:"total_tasks"`
	TotalOptions          int      `json:"total_options"`
	AverageOptionsPerTask float64  `json:"average_options_per_task"`
	Attributes            []string `json:"attributes"`
	Efficiency            float64  `json:"efficiency"`
	Provenance            string   `json:"provenance"`
}

// Summarize describes d
func Summarize(d design.Design, g *design.Grid) Summary {
	s := Summary{
		TotalTasks:   len(d.Tasks),
		TotalOptions: d.NumOptions(),
		Attributes:   attributeOrder(d, g),
		Efficiency:   d.Efficiency,
		Provenance:   d.Provenance.Tag(),
	}
	if s.TotalTasks > 0 {
		s.AverageOptionsPerTask = float64(s.TotalOptions) / float64(s.TotalTasks)
	}
	return s
}

func attributeOrder(d design.Design, g *design.Grid) []string {
	if g != nil {
		names := make([]string, len(g.Attributes))
		for i, a := range g.Attributes {
			names[i] = a.Name
		}
		return names
	}
	seen := make(map[string]bool)
	var names []string
	for _, task := range d.Tasks {
		for _, opt := range task.Options {
			for a := range opt {
				if !seen[a] {
					seen[a] = true
					names = append(names, a)
				}
			}
		}
	}
	sort.Strings(names)
	return names
}

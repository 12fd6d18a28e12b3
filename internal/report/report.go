// Package report renders a fan-out run. Every format keeps results grouped by
// the engine that produced them.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"io"
	"strings"
	"text/template"
	"time"

	"github.com/FranksOps/sift/internal/pipeline"
	"github.com/FranksOps/sift/internal/serp"
	"github.com/PuerkitoBio/goquery"
)

// Output formats.
const (
	FormatText   = "text"
	FormatJSON   = "json"
	FormatNDJSON = "ndjson"
	FormatCSV    = "csv"
	FormatHTML   = "html"
)

// ErrUnknownFormat is returned by Write for an unsupported format.
var ErrUnknownFormat = errors.New("report: unknown format")

// Formats lists the supported output formats.
func Formats() []string {
	return []string{FormatText, FormatJSON, FormatNDJSON, FormatCSV, FormatHTML}
}

// EngineReport is one engine's share of a run.
type EngineReport struct {
	Engine   string        `json:"engine"`
	Count    int           `json:"count"`
	Kind     string        `json:"kind,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
	Results  []serp.Result `json:"results"`
}

// Summary contains a run and aggregate counts over it.
type Summary struct {
	RunID        string         `json:"run_id"`
	Query        string         `json:"query"`
	Page         uint           `json:"page"`
	StartTime    time.Time      `json:"start_time"`
	TotalEngines int            `json:"total_engines"`
	Succeeded    int            `json:"succeeded"`
	TotalResults int            `json:"total_results"`
	FailuresBy   map[string]int `json:"failures_by_kind"`
	Engines      []EngineReport `json:"engines"`
}

// GenerateSummary flattens a pipeline run into a Summary.
func GenerateSummary(run *pipeline.Run) Summary {
	s := Summary{FailuresBy: make(map[string]int)}
	if run == nil {
		return s
	}

	s.RunID = run.ID
	s.Query = run.Query
	s.Page = run.Page
	s.StartTime = run.Started

	for _, o := range run.Outcomes {
		er := EngineReport{
			Engine:   o.Engine,
			Count:    len(o.Results),
			Duration: o.Duration,
			Results:  o.Results,
		}
		if er.Results == nil {
			er.Results = []serp.Result{}
		}
		s.TotalEngines++
		if o.Err != nil {
			er.Kind = o.Kind().String()
			er.Error = o.Err.Error()
			s.FailuresBy[er.Kind]++
		} else {
			s.Succeeded++
		}
		s.TotalResults += er.Count
		s.Engines = append(s.Engines, er)
	}
	return s
}

// Write renders summary in the named format.
func Write(w io.Writer, format string, summary Summary) error {
	switch format {
	case FormatText, "":
		return WriteText(w, summary)
	case FormatJSON:
		return WriteJSON(w, summary)
	case FormatNDJSON:
		return WriteNDJSON(w, summary)
	case FormatCSV:
		return WriteCSV(w, summary)
	case FormatHTML:
		return WriteHTML(w, summary)
	default:
		return fmt.Errorf("%w %q", ErrUnknownFormat, format)
	}
}

// WriteJSON writes the summary to the provided writer in JSON format.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("report: encode json: %w", err)
	}
	return nil
}

const textTmpl = `sift: {{printf "%q" .Query}} page {{.Page}} (run {{.RunID}})
{{.Succeeded}}/{{.TotalEngines}} engines answered, {{.TotalResults}} results
{{- range .Engines}}

== {{.Engine}} ({{.Count}} results, {{.Duration}})
{{- if .Error}}
  error [{{.Kind}}]: {{.Error}}
{{- end}}
{{- range $i, $r := .Results}}
  {{inc $i}}. {{$r.Title}}
     {{$r.URL}}
{{- if $r.Description}}
     {{plain $r.Description}}
{{- end}}
{{- end}}
{{- end}}
`

var funcs = template.FuncMap{
	"inc":   func(i int) int { return i + 1 },
	"plain": plainText,
}

// plainText renders a description, which adapters keep as inner HTML, as
// display text: tags dropped, entities decoded, whitespace collapsed.
func plainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// WriteText writes a human-readable listing grouped by engine.
func WriteText(w io.Writer, summary Summary) error {
	t, err := template.New("textReport").Funcs(funcs).Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("report: parse text template: %w", err)
	}
	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("report: render text: %w", err)
	}
	return nil
}

const htmlTmpl = `<!DOCTYPE html>
<html>
<head>
<title>sift: {{.Query}}</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; }
  h1 { border-bottom: 2px solid #ccc; padding-bottom: 10px; }
  .stat-card { display: inline-block; padding: 20px; margin: 10px 10px 10px 0; background: #f4f4f4; border-radius: 5px; min-width: 150px; }
  .stat-val { font-size: 24px; font-weight: bold; }
  .engine { margin-top: 30px; }
  .error { color: red; }
  .url { color: #060; font-size: 13px; }
  ol li { margin-bottom: 12px; }
</style>
</head>
<body>
  <h1>sift: {{.Query}}</h1>
  <p><strong>Run:</strong> {{.RunID}} at {{.StartTime.Format "2006-01-02 15:04:05"}}, page {{.Page}}</p>

  <div class="stat-card">
    <div>Engines</div>
    <div class="stat-val">{{.Succeeded}}/{{.TotalEngines}}</div>
  </div>
  <div class="stat-card">
    <div>Results</div>
    <div class="stat-val">{{.TotalResults}}</div>
  </div>
  {{- range .Engines}}
  <div class="engine">
    <h3>{{.Engine}} <small>({{.Count}} results, {{.Duration}})</small></h3>
    {{- if .Error}}
    <p class="error">{{.Kind}}: {{.Error}}</p>
    {{- end}}
    <ol>
    {{- range .Results}}
      <li><a href="{{.URL}}">{{.Title}}</a><div class="url">{{.URL}}</div><div>{{plain .Description}}</div></li>
    {{- end}}
    </ol>
  </div>
  {{- end}}
</body>
</html>
`

// WriteHTML writes a standalone HTML page. Result fields are escaped.
func WriteHTML(w io.Writer, summary Summary) error {
	t, err := htmltemplate.New("htmlReport").Funcs(htmltemplate.FuncMap{"plain": plainText}).Parse(htmlTmpl)
	if err != nil {
		return fmt.Errorf("report: parse html template: %w", err)
	}
	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("report: render html: %w", err)
	}
	return nil
}

package output

import (
	"encoding/json"
	"html/template"
	"io"
	"sort"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/selimozcann/WhereGoes/internal/model"
	"github.com/selimozcann/WhereGoes/internal/trace"
	"github.com/selimozcann/WhereGoes/internal/util"
)

// ResultType enumerates the classification of a redirect chain.
type ResultType string

const (
	ResultTypeUnknown  ResultType = "unknown"
	ResultTypeRedirect ResultType = "redirect"
	ResultTypeSameSite ResultType = "same-site"
	ResultTypeOK       ResultType = "ok"
	ResultTypeError    ResultType = "error"
)

// Record is the serialized form of one traced target.
type Record struct {
	ID            string       `json:"id,omitempty" yaml:"id,omitempty"`
	Timestamp     string       `json:"timestamp" yaml:"timestamp"`
	InputURL      string       `json:"input_url" yaml:"input_url"`
	FinalURL      string       `json:"final_url" yaml:"final_url"`
	Type          ResultType   `json:"type" yaml:"type"`
	Reason        string       `json:"reason" yaml:"reason"`
	StatusCode    int          `json:"status_code" yaml:"status_code"`
	Redirects     int          `json:"redirects" yaml:"redirects"`
	RedirectChain []string     `json:"redirect_chain" yaml:"redirect_chain"`
	Chain         []model.Hop  `json:"chain" yaml:"chain"`
	DurationMs    int64        `json:"duration_ms" yaml:"duration_ms"`
	Notes         []model.Note `json:"notes,omitempty" yaml:"notes,omitempty"`
	Error         string       `json:"error,omitempty" yaml:"error,omitempty"`
	Message       string       `json:"message,omitempty" yaml:"message,omitempty"`
}

// Summary contains counters for the report header.
type Summary struct {
	TotalTargets int
	Redirected   int
	WithNotes    int
	Errors       int
}

// BuildRecord converts a model.Result into a Record.
func BuildRecord(res model.Result) Record {
	rec := Record{
		Timestamp:     res.StartedAt.UTC().Format(time.RFC3339),
		InputURL:      res.Target,
		FinalURL:      trace.Normalize(res.Target),
		Type:          DetermineType(res),
		Reason:        res.Reason,
		RedirectChain: make([]string, len(res.Chain)),
		Chain:         append([]model.Hop(nil), res.Chain...),
		DurationMs:    res.DurationMs,
		Notes:         append([]model.Note(nil), res.Notes...),
		Error:         res.Error,
	}
	for i, hop := range res.Chain {
		rec.RedirectChain[i] = hop.URL
	}
	if last, ok := res.Last(); ok {
		rec.FinalURL = last.URL
		rec.StatusCode = last.Status
		rec.Redirects = len(res.Chain) - 1
	}
	if res.Error != "" {
		rec.Message = trace.FailureMessage
	}
	return rec
}

// BuildSummary derives high level counters from the results.
func BuildSummary(results []model.Result) Summary {
	sum := Summary{TotalTargets: len(results)}
	for _, res := range results {
		if DetermineType(res) == ResultTypeRedirect {
			sum.Redirected++
		}
		if len(res.Notes) > 0 {
			sum.WithNotes++
		}
		if res.Error != "" {
			sum.Errors++
		}
	}
	return sum
}

// DetermineType classifies the given result into one of the ResultType values.
func DetermineType(res model.Result) ResultType {
	if res.Error != "" {
		return ResultTypeError
	}
	last, ok := res.Last()
	if !ok || last.Pending() {
		return ResultTypeUnknown
	}
	if hasRedirectHop(res.Chain) {
		if util.SameBaseDomain(res.Chain[0].URL, last.URL) {
			return ResultTypeSameSite
		}
		return ResultTypeRedirect
	}
	if last.Status >= 400 {
		return ResultTypeError
	}
	return ResultTypeOK
}

func hasRedirectHop(chain []model.Hop) bool {
	for _, hop := range chain {
		if hop.IsRedirect() {
			return true
		}
	}
	return false
}

// WriteJSONL writes each record as a JSON line to w.
func WriteJSONL(w io.Writer, records []Record) error {
	jw := NewJSONLWriter(w)
	for _, rec := range records {
		if err := jw.Write(rec); err != nil {
			return err
		}
	}
	return jw.Close()
}

// WriteJSON writes records as one indented JSON array.
func WriteJSON(w io.Writer, records []Record) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

// WriteYAML writes records as a YAML sequence.
func WriteYAML(w io.Writer, records []Record) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(records); err != nil {
		return err
	}
	return enc.Close()
}

// PageData provides the full context for the HTML report.
type PageData struct {
	Title         string
	GeneratedAt   time.Time
	Params        map[string]string
	OrderedParams []Param
	Summary       Summary
	Records       []Record
}

// Param represents a rendered CLI argument/value pair.
type Param struct {
	Key   string
	Value string
}

var htmlTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"formatTime": func(t time.Time) string { return t.UTC().Format(time.RFC3339) },
	"status": func(h model.Hop) string {
		if h.Pending() {
			return "..."
		}
		return strconv.Itoa(h.Status)
	},
	"isLast": func(i int, chain []model.Hop) bool { return i == len(chain)-1 },
}).Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: system-ui, sans-serif; margin: 24px; background:#fafafa; color:#111; }
.card { border:1px solid #e5e7eb; border-radius:12px; padding:12px 16px; margin-bottom:16px; background:#fff; }
.meta { color:#6b7280; font-size:12px; }
.hop { font-family: ui-monospace, Menlo, monospace; font-size:13px; margin:4px 0; }
.badge { display:inline-block; min-width:36px; padding:1px 8px; border-radius:999px; background:#fde68a; text-align:center; }
.final .badge { background:#bbf7d0; }
.error { color:#b91c1c; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p class="meta">Generated at {{formatTime .GeneratedAt}} | {{.Summary.TotalTargets}} targets, {{.Summary.Redirected}} redirected, {{.Summary.WithNotes}} with notes, {{.Summary.Errors}} errors</p>
{{if .OrderedParams}}<dl class="card">
{{- range .OrderedParams}}
<dt>{{.Key}}</dt><dd class="meta">{{.Value}}</dd>
{{- end}}
</dl>{{end}}
{{range .Records}}
<div class="card">
  <h2>{{.InputURL}}</h2>
  <p class="meta">{{.Type}} | {{.Redirects}} redirects | ended: {{.Reason}} | {{.DurationMs}}ms</p>
  {{- $chain := .Chain}}
  {{range $i, $h := .Chain}}
  <div class="hop{{if isLast $i $chain}} final{{end}}"><span class="badge">{{status $h}}</span> <a href="{{$h.URL}}" rel="noopener noreferrer">{{$h.URL}}</a> <span class="meta">{{$h.TimeMs}}ms</span></div>
  {{end}}
  {{if .Notes}}<ul>{{range .Notes}}<li><strong>{{.Severity}}</strong> {{.Type}}: {{.Detail}}</li>{{end}}</ul>{{end}}
  {{if .Error}}<p class="error">{{.Message}}<br><span class="meta">{{.Error}}</span></p>{{end}}
</div>
{{end}}
</body>
</html>
`))

// RenderHTML renders the HTML report using the provided data.
func RenderHTML(w io.Writer, data PageData) error {
	if data.Params != nil {
		keys := make([]string, 0, len(data.Params))
		for k := range data.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ordered := make([]Param, 0, len(keys))
		for _, k := range keys {
			ordered = append(ordered, Param{Key: k, Value: data.Params[k]})
		}
		data.OrderedParams = ordered
	}
	return htmlTemplate.Execute(w, data)
}

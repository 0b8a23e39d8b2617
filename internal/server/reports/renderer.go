// Package reports renders a scored survey into an HTML report and publishes
// it to object storage behind a time-limited link.
package reports

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"sync"
	tt "text/template"
	"time"

	"github.com/pmfstudio/reportgate/internal/server/scoring"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Data is everything that goes into one report.
type Data struct {
	StartupName     string
	Problem         string
	Solution        string
	Target          string
	USP             string
	MarketData      string
	Summary         string
	Recommendations string
	Score           float64
	Stage           scoring.Stage
	Components      map[string]float64
	Permission      string
	GeneratedAt     time.Time
}

// DataFromRaw picks the report fields out of a raw survey.
func DataFromRaw(raw map[string]any, res scoring.Result, now time.Time) Data {
	return Data{
		StartupName:     stringOr(raw["startup_name"], "N/A"),
		Problem:         stringOr(raw["problem"], ""),
		Solution:        stringOr(raw["solution"], ""),
		Target:          stringOr(raw["target"], ""),
		USP:             stringOr(raw["usp"], "N/A"),
		MarketData:      stringOr(raw["market_data"], ""),
		Summary:         stringOr(raw["summary"], ""),
		Recommendations: stringOr(raw["recommendations"], ""),
		Score:           res.Score,
		Stage:           res.Stage,
		Components:      res.Components,
		GeneratedAt:     now.UTC(),
	}
}

func stringOr(v any, def string) string {
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) != "" {
			return t
		}
	case []any:
		parts := make([]string, 0, len(t))
		for _, p := range t {
			parts = append(parts, fmt.Sprint(p))
		}
		if len(parts) > 0 {
			return strings.Join(parts, ", ")
		}
	case nil:
	default:
		return fmt.Sprint(t)
	}
	return def
}

// componentOrder fixes the table row order.
var componentOrder = []string{
	scoring.ProblemScore,
	scoring.PersonaScore,
	scoring.SolutionScore,
	scoring.MarketScore,
	scoring.RetentionScore,
}

var funcs = tt.FuncMap{
	"orNA": func(s string) string {
		if strings.TrimSpace(s) == "" {
			return "n/a"
		}
		return s
	},
	"score": func(v float64) string { return fmt.Sprintf("%.1f", v) },
	"date":  func(t time.Time) string { return t.Format("2006-01-02") },
	"components": func(m map[string]float64) [][2]string {
		rows := make([][2]string, 0, len(componentOrder))
		for _, k := range componentOrder {
			if v, ok := m[k]; ok {
				rows = append(rows, [2]string{k, fmt.Sprintf("%.1f", v)})
			}
		}
		return rows
	},
}

const markdownSource = `# PMF Report: {{.StartupName}}

{{date .GeneratedAt}}

## 1. Overview

- **PMF score:** {{score .Score}}
- **Stage:** {{.Stage}}
- **USP:** {{.USP}}

## 2. Problem and persona

**Problem**

{{orNA .Problem}}

**Target customers**

{{orNA .Target}}

## 3. Solution

{{orNA .Solution}}

## 4. Score breakdown

| Component | Score |
|---|---|
{{range components .Components}}| {{index . 0}} | {{index . 1}} |
{{end}}
## 5. Market

{{orNA .MarketData}}

## 6. Summary

{{orNA .Summary}}

## 7. Recommendations

{{orNA .Recommendations}}
{{if .Permission}}
---

Issued under a {{.Permission}} access token.
{{end}}`

const pageSource = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>PMF Report: {{.Title}}</title>
</head>
<body>
{{.Body}}</body>
</html>
`

// Renderer turns report data into a standalone HTML page. Survey text is
// treated as markdown; raw HTML in it is not passed through.
type Renderer struct {
	md       *tt.Template
	page     *template.Template
	markdown goldmark.Markdown
}

var (
	defaultRenderer     *Renderer
	defaultRendererOnce sync.Once
)

// DefaultRenderer returns a shared Renderer. Templates and the goldmark
// instance never change after construction, so it is safe to share.
func DefaultRenderer() *Renderer {
	defaultRendererOnce.Do(func() {
		defaultRenderer = &Renderer{
			md:   tt.Must(tt.New("report.md").Funcs(funcs).Parse(markdownSource)),
			page: template.Must(template.New("report.html").Parse(pageSource)),
			markdown: goldmark.New(
				goldmark.WithExtensions(extension.GFM),
			),
		}
	})
	return defaultRenderer
}

// Markdown renders d as markdown source.
func (r *Renderer) Markdown(d Data) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.md.Execute(&buf, d); err != nil {
		return nil, fmt.Errorf("rendering markdown: %w", err)
	}
	return buf.Bytes(), nil
}

// HTML renders d as a complete HTML document.
func (r *Renderer) HTML(d Data) ([]byte, error) {
	src, err := r.Markdown(d)
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	if err := r.markdown.Convert(src, &body); err != nil {
		return nil, fmt.Errorf("converting markdown: %w", err)
	}

	var page bytes.Buffer
	err = r.page.Execute(&page, struct {
		Title string
		Body  template.HTML
	}{
		Title: d.StartupName,
		Body:  template.HTML(body.String()),
	})
	if err != nil {
		return nil, fmt.Errorf("rendering page: %w", err)
	}
	return page.Bytes(), nil
}

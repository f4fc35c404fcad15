package delivery

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"

	"github.com/unifi-insight/reporter/internal/model"
)

const timeLayout = "2006-01-02 15:04:05 MST"

// Subject builds the email subject line for a report.
func Subject(r *model.Report) string {
	if r.IsEmpty() {
		return fmt.Sprintf("UniFi Report — %s — no new events", r.SiteName)
	}
	return fmt.Sprintf("UniFi Report — %s — %d severe, %d medium, %d low",
		r.SiteName, r.SevereCount(), r.MediumCount(), r.LowCount())
}

// sortedFindings orders findings severe-first, then by first seen.
func sortedFindings(r *model.Report) []model.Finding {
	out := make([]model.Finding, len(r.Findings))
	copy(out, r.Findings)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Severity != out[j].Severity {
			return out[i].Severity > out[j].Severity
		}
		return out[i].FirstSeen.Before(out[j].FirstSeen)
	})
	return out
}

// TextRenderer renders the plain-text report body.
type TextRenderer struct{}

func (TextRenderer) ContentType() string { return "text/plain" }

func (TextRenderer) Render(r *model.Report) ([]byte, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "UniFi Network Report — %s (%s)\n", r.SiteName, r.ControllerType)
	fmt.Fprintf(&b, "Period: %s to %s\n", r.PeriodStart.Format(timeLayout), r.PeriodEnd.Format(timeLayout))
	fmt.Fprintf(&b, "Generated: %s\n\n", r.GeneratedAt.Format(timeLayout))

	if r.IsEmpty() {
		b.WriteString("No new events in this period. All monitored systems nominal.\n")
	} else {
		fmt.Fprintf(&b, "Findings: %d severe, %d medium, %d low\n\n",
			r.SevereCount(), r.MediumCount(), r.LowCount())
		for _, f := range sortedFindings(r) {
			fmt.Fprintf(&b, "[%s] %s\n", f.Severity, f.Title)
			if f.Description != "" {
				fmt.Fprintf(&b, "    %s\n", f.Description)
			}
			if f.OccurrenceCount > 1 {
				fmt.Fprintf(&b, "    Occurred %d times between %s and %s",
					f.OccurrenceCount, f.FirstSeen.Format(timeLayout), f.LastSeen.Format(timeLayout))
				if f.IsRecurring() {
					b.WriteString(" (recurring)")
				}
				b.WriteString("\n")
			}
			if len(f.AffectedEntities) > 0 {
				fmt.Fprintf(&b, "    Affected: %s\n", strings.Join(f.AffectedEntities, ", "))
			}
			if f.Remediation != "" {
				fmt.Fprintf(&b, "    Remediation: %s\n", f.Remediation)
			}
			b.WriteString("\n")
		}
	}

	for _, s := range r.IntegrationSections {
		fmt.Fprintf(&b, "--- %s ---\n", s.Title)
		if s.Error != "" {
			fmt.Fprintf(&b, "unavailable: %s\n\n", s.Error)
			continue
		}
		for _, line := range s.Lines {
			fmt.Fprintf(&b, "%s\n", line)
		}
		b.WriteString("\n")
	}

	return []byte(b.String()), nil
}

// HTMLRenderer renders the HTML report body.
type HTMLRenderer struct{}

func (HTMLRenderer) ContentType() string { return "text/html" }

var htmlTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"fmtTime": func(t time.Time) string { return t.Format(timeLayout) },
	"sevClass": func(s model.Severity) string {
		return strings.ToLower(s.String())
	},
	"recurring": func(f model.Finding) bool { return f.IsRecurring() },
}).Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><style>
body { font-family: -apple-system, Helvetica, Arial, sans-serif; color: #222; max-width: 860px; margin: 1em auto; }
h1 { font-size: 1.3em; } h2 { font-size: 1.1em; border-bottom: 1px solid #ddd; padding-bottom: 4px; }
.finding { margin: 0.8em 0; padding: 0.6em 0.8em; border-left: 4px solid #999; background: #fafafa; }
.finding.severe { border-color: #c0392b; } .finding.medium { border-color: #e67e22; } .finding.low { border-color: #2980b9; }
.sev { font-weight: bold; font-size: 0.8em; letter-spacing: 1px; }
.meta { color: #666; font-size: 0.85em; } .remediation { color: #c0392b; }
.section-error { color: #888; font-style: italic; }
</style></head>
<body>
<h1>UniFi Network Report — {{.SiteName}} <span class="meta">({{.ControllerType}})</span></h1>
<p class="meta">Period {{fmtTime .PeriodStart}} to {{fmtTime .PeriodEnd}} · generated {{fmtTime .GeneratedAt}}</p>
{{if .Empty}}
<p>No new events in this period. All monitored systems nominal.</p>
{{else}}
<p>{{.SevereCount}} severe · {{.MediumCount}} medium · {{.LowCount}} low</p>
{{range .Findings}}
<div class="finding {{sevClass .Severity}}">
  <span class="sev">{{.Severity}}</span> — <strong>{{.Title}}</strong>
  {{if .Description}}<div>{{.Description}}</div>{{end}}
  {{if gt .OccurrenceCount 1}}<div class="meta">Occurred {{.OccurrenceCount}} times between {{fmtTime .FirstSeen}} and {{fmtTime .LastSeen}}{{if recurring .}} (recurring){{end}}</div>{{end}}
  {{if .AffectedEntities}}<div class="meta">Affected: {{range $i, $e := .AffectedEntities}}{{if $i}}, {{end}}{{$e}}{{end}}</div>{{end}}
  {{if .Remediation}}<div class="remediation">Remediation: {{.Remediation}}</div>{{end}}
</div>
{{end}}
{{end}}
{{range .Sections}}
<h2>{{.Title}}</h2>
{{if .Error}}<p class="section-error">unavailable: {{.Error}}</p>{{else}}
{{range .Lines}}<p>{{.}}</p>{{end}}
{{end}}
{{end}}
</body>
</html>
`))

type htmlContext struct {
	SiteName       string
	ControllerType string
	PeriodStart    time.Time
	PeriodEnd      time.Time
	GeneratedAt    time.Time
	Empty          bool
	SevereCount    int
	MediumCount    int
	LowCount       int
	Findings       []model.Finding
	Sections       []model.IntegrationSection
}

func (HTMLRenderer) Render(r *model.Report) ([]byte, error) {
	ctx := htmlContext{
		SiteName:       r.SiteName,
		ControllerType: r.ControllerType,
		PeriodStart:    r.PeriodStart,
		PeriodEnd:      r.PeriodEnd,
		GeneratedAt:    r.GeneratedAt,
		Empty:          r.IsEmpty(),
		SevereCount:    r.SevereCount(),
		MediumCount:    r.MediumCount(),
		LowCount:       r.LowCount(),
		Findings:       sortedFindings(r),
		Sections:       r.IntegrationSections,
	}
	var buf bytes.Buffer
	if err := htmlTemplate.Execute(&buf, ctx); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}
	return buf.Bytes(), nil
}

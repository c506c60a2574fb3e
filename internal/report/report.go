// Package report summarizes a harness run as JSON, Markdown and HTML.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kuitang/admin-e2e/internal/artifacts"
	"github.com/kuitang/admin-e2e/internal/errs"
	"github.com/kuitang/admin-e2e/internal/obs"
)

// Status is the outcome of one scenario.
type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
	StatusSkip Status = "skip"
)

// Scenario is one scenario's entry in the report.
type Scenario struct {
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Duration time.Duration `json:"duration_ns"`
	Code     errs.Code     `json:"code,omitempty"`
	Message  string        `json:"message,omitempty"`
	// Note carries informational outcomes such as "no users".
	Note       string `json:"note,omitempty"`
	Screenshot string `json:"screenshot,omitempty"`
}

// Run is the full report for one harness invocation.
type Run struct {
	ID         string     `json:"run_id"`
	Target     string     `json:"target"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
	Scenarios  []Scenario `json:"scenarios"`
}

// Counts returns how many scenarios ended in each status.
func (r *Run) Counts() map[Status]int {
	counts := map[Status]int{StatusPass: 0, StatusFail: 0, StatusSkip: 0}
	for _, s := range r.Scenarios {
		counts[s.Status]++
	}
	return counts
}

// Failed reports whether any scenario failed.
func (r *Run) Failed() bool {
	return r.Counts()[StatusFail] > 0
}

// Sort orders scenarios by name so reports are stable across parallel runs.
func (r *Run) Sort() {
	sort.SliceStable(r.Scenarios, func(i, j int) bool {
		return r.Scenarios[i].Name < r.Scenarios[j].Name
	})
}

// JSON renders the report as indented JSON.
func JSON(r *Run) ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "encode report", err)
	}
	return append(data, '\n'), nil
}

// Markdown renders the report as a Markdown document.
func Markdown(r *Run) string {
	var b strings.Builder
	counts := r.Counts()

	fmt.Fprintf(&b, "# Harness run %s\n\n", r.ID)
	if r.Target != "" {
		fmt.Fprintf(&b, "Target: `%s`\n\n", r.Target)
	}
	fmt.Fprintf(&b, "Started %s, took %s.\n\n",
		r.StartedAt.UTC().Format(time.RFC3339), r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(&b, "**%d passed, %d failed, %d skipped**\n\n",
		counts[StatusPass], counts[StatusFail], counts[StatusSkip])

	b.WriteString("| Scenario | Status | Duration | Code | Detail |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, s := range r.Scenarios {
		detail := s.Message
		if s.Note != "" {
			detail = strings.TrimSpace(s.Note + " " + detail)
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
			cell(s.Name), statusLabel(s.Status), s.Duration.Round(time.Millisecond), cell(string(s.Code)), cell(detail))
	}

	var shots []Scenario
	for _, s := range r.Scenarios {
		if s.Screenshot != "" {
			shots = append(shots, s)
		}
	}
	if len(shots) > 0 {
		b.WriteString("\n## Screenshots\n\n")
		for _, s := range shots {
			fmt.Fprintf(&b, "- %s: `%s`\n", cell(s.Name), s.Screenshot)
		}
	}
	return b.String()
}

func statusLabel(s Status) string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusFail:
		return "**FAIL**"
	default:
		return "skip"
	}
}

// cell keeps a value from breaking the Markdown table.
func cell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`)
}

// Publish writes report.json, report.md and report.html under the run's key prefix
// and returns the location of each.
func Publish(ctx context.Context, store artifacts.Store, r *Run) (map[string]string, error) {
	r.Sort()
	data, err := JSON(r)
	if err != nil {
		return nil, err
	}
	md := Markdown(r)
	outputs := []struct {
		name, contentType string
		body              []byte
	}{
		{"report.json", "application/json", data},
		{"report.md", "text/markdown; charset=utf-8", []byte(md)},
		{"report.html", "text/html; charset=utf-8", RenderHTML(md, "Harness run "+r.ID)},
	}

	locations := make(map[string]string, len(outputs))
	for _, out := range outputs {
		loc, err := store.Put(ctx, artifacts.Key(r.ID, out.name), out.body, out.contentType)
		if err != nil {
			return locations, errs.Wrap(errs.Unavailable, "publish "+out.name, err)
		}
		locations[out.name] = loc
	}
	obs.From(ctx).With("pkg", "report").Info("report_published", "run_id", r.ID, "html", locations["report.html"])
	return locations, nil
}

// Package memo accumulates analyst findings in memory and renders them as a
// formatted text report. Each server instance keeps one Collection per memo
// category; entries live for the process lifetime and are never removed.
package memo

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Format controls how a Collection renders. SummaryFormat is a fmt verb
// string receiving the entry count; the summary block only appears once the
// collection holds more than one entry. An empty SummaryLabel defaults to
// "Summary".
type Format struct {
	Title         string
	Lede          string
	Empty         string
	SummaryLabel  string
	SummaryFormat string
}

// Preset formats for the memo categories the servers expose.
var (
	DataAnalysis = Format{
		Title:         "🔍 Data Analysis Results",
		Lede:          "Key Findings & Insights:",
		Empty:         "No analysis findings available yet.",
		SummaryFormat: "Analysis has identified %d key insights.",
	}

	GeneInsights = Format{
		Title:         "🧬 Open Targets Analysis Results",
		Lede:          "Key Findings & Insights:",
		Empty:         "No analysis findings available yet.",
		SummaryFormat: "Analysis has identified %d key insights.",
	}

	TrialInsights = Format{
		Title:         "📊 Clinical Trials Intelligence Memo",
		Lede:          "Key Insights Discovered:",
		Empty:         "No business insights have been discovered yet.",
		SummaryFormat: "Analysis has revealed %d key insights about clinical trials and drug development.",
	}

	TrialLandscape = Format{
		Title:         "🔍 Clinical Trial Landscape Analysis",
		Lede:          "Key Development Patterns & Trends:",
		Empty:         "No landscape analysis available yet.",
		SummaryFormat: "Analysis has identified %d key patterns in trial development.",
	}

	TrialMetrics = Format{
		Title:         "📊 Clinical Trial Metrics Summary",
		Lede:          "Key Quantitative Findings:",
		Empty:         "No metrics available yet.",
		SummaryLabel:  "Overview",
		SummaryFormat: "Analysis has captured %d key metrics about trial activity.",
	}
)

// Collection is a mutex-guarded, insertion-ordered list of findings.
type Collection struct {
	mu      sync.Mutex
	format  Format
	entries []string
}

// New returns an empty Collection that renders with f.
func New(f Format) *Collection {
	if f.SummaryLabel == "" {
		f.SummaryLabel = "Summary"
	}
	return &Collection{format: f}
}

// Add appends one finding. Blank entries are rejected.
func (c *Collection) Add(entry string) error {
	if strings.TrimSpace(entry) == "" {
		return errors.New("empty entry")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
	return nil
}

// Len reports how many findings have been recorded.
func (c *Collection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Render formats the collection as a text memo. With no entries it returns
// the Empty text verbatim.
func (c *Collection) Render() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) == 0 {
		return c.format.Empty
	}

	var b strings.Builder
	b.WriteString(c.format.Title)
	b.WriteString("\n\n")
	b.WriteString(c.format.Lede)
	b.WriteString("\n\n")
	for i, entry := range c.entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(entry)
	}
	if len(c.entries) > 1 {
		b.WriteString("\n\n")
		b.WriteString(c.format.SummaryLabel)
		b.WriteString(":\n")
		fmt.Fprintf(&b, c.format.SummaryFormat, len(c.entries))
	}
	return b.String()
}

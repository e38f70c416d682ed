package terminal

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/Cfomodz/easemail/internal/core"
)

const snippetPreview = 160

// Console renders review state as plain text
type Console struct {
	mu      sync.Mutex
	w       io.Writer
	verbose bool
}

// NewConsole writes to w. verbose adds snippets and decision sources.
func NewConsole(w io.Writer, verbose bool) *Console {
	return &Console{w: w, verbose: verbose}
}

// ShowItem prints one item awaiting review
func (c *Console) ShowItem(pos, total int, item *core.Item, d *core.Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.w, "\n=== Email %d/%d ===\n", pos, total)
	fmt.Fprintf(c.w, "From:    %s\n", item.Sender)
	fmt.Fprintf(c.w, "Subject: %s\n", item.Subject)
	if !item.ReceivedAt.IsZero() {
		fmt.Fprintf(c.w, "Date:    %s\n", item.ReceivedAt.Format("2006-01-02 15:04"))
	}
	if c.verbose && item.Snippet != "" {
		fmt.Fprintf(c.w, "\n%s\n", preview(item.Snippet, snippetPreview))
	}

	fmt.Fprintf(c.w, "\nSuggestion: %s (%.0f%%)\n", strings.ToUpper(d.Action.Spoken()), d.Confidence*100)
	if d.Rationale != "" {
		fmt.Fprintf(c.w, "Reason:     %s\n", d.Rationale)
	}
	if c.verbose {
		fmt.Fprintf(c.w, "Source:     %s\n", d.Source)
		if d.SuggestedRule != "" {
			fmt.Fprintf(c.w, "Rule:       %s\n", d.SuggestedRule)
		}
	}
}

// ShowAutoBatch lists the high-confidence decisions awaiting confirmation
func (c *Console) ShowAutoBatch(batch []core.ClassifiedItem, summary core.AutoSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.w, "\n=== %d confident decisions (>= %.0f%%) ===\n", summary.Total, summary.Threshold*100)
	for _, ci := range batch {
		fmt.Fprintf(c.w, "  %-8s %3.0f%%  %-30s %s\n",
			ci.Decision.Action.Spoken(), ci.Decision.Confidence*100,
			preview(ci.Item.Sender, 30), preview(ci.Item.Subject, 50))
	}
	fmt.Fprintf(c.w, "Very high: %d  High: %d  (%s)\n", summary.VeryHigh, summary.High, byAction(summary.ByAction))
}

// Prompt prints msg without a trailing newline
func (c *Console) Prompt(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprint(c.w, msg)
}

// Notice prints msg on its own line
func (c *Console) Notice(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, "\n%s\n", msg)
}

// ShowStats prints the session report
func (c *Console) ShowStats(stats core.StatsSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.w, "\n=== Session ===\n")
	fmt.Fprintf(c.w, "Processed:       %d\n", stats.Processed)
	fmt.Fprintf(c.w, "Auto-decided:    %d\n", stats.AutoDecided)
	fmt.Fprintf(c.w, "Automation rate: %.1f%%\n", stats.AutomationRate)
	if len(stats.ByAction) > 0 {
		fmt.Fprintf(c.w, "Actions:         %s\n", byAction(stats.ByAction))
	}
}

func byAction(counts map[core.Action]int) string {
	actions := make([]string, 0, len(counts))
	for a := range counts {
		actions = append(actions, string(a))
	}
	sort.Strings(actions)
	parts := make([]string, 0, len(actions))
	for _, a := range actions {
		parts = append(parts, fmt.Sprintf("%s=%d", a, counts[core.Action(a)]))
	}
	return strings.Join(parts, " ")
}

func preview(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

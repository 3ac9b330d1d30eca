package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/solvik/meetwise/internal/llm"
)

const (
	deltaTemperature     = 0.3
	deltaSummaryMaxChars = 2000
	deltaSectionMaxChars = 800
	deltaMaxItems        = 5
)

// SummaryDeltas captures what changed between two consecutive meeting
// summaries for the same client.
type SummaryDeltas struct {
	NewTopics        []string `json:"new_topics"`
	RemovedTopics    []string `json:"removed_topics"`
	RepeatedTopics   []string `json:"repeated_topics"`
	NewDecisions     []string `json:"new_decisions"`
	BlockersAdded    []string `json:"blockers_added"`
	BlockersResolved []string `json:"blockers_resolved"`
}

// Empty reports whether no category has any items.
func (d SummaryDeltas) Empty() bool {
	return len(d.NewTopics) == 0 && len(d.RemovedTopics) == 0 &&
		len(d.RepeatedTopics) == 0 && len(d.NewDecisions) == 0 &&
		len(d.BlockersAdded) == 0 && len(d.BlockersResolved) == 0
}

// DeltaComputer compares meeting summaries via the language model.
type DeltaComputer struct {
	llm    llm.Service
	logger *slog.Logger
}

func NewDeltaComputer(svc llm.Service, logger *slog.Logger) *DeltaComputer {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeltaComputer{llm: svc, logger: logger}
}

// Compute compares the current summary against the most recent previous
// one. Fails soft: any model or parse error yields empty deltas.
func (c *DeltaComputer) Compute(ctx context.Context, current string, previous []string) SummaryDeltas {
	if current == "" || len(previous) == 0 || previous[0] == "" {
		return SummaryDeltas{}
	}

	prompt := fmt.Sprintf(`Compare the following two meeting summaries and identify what changed.

Previous Meeting Summary:
%s

Current Meeting Summary:
%s

Identify and extract:
1. New topics: Topics or themes introduced in the current meeting that were not in the previous meeting
2. Removed topics: Topics from the previous meeting that are no longer mentioned in the current meeting
3. Repeated topics: Topics that appear in both meetings (continuation of ongoing discussions)
4. New decisions: Decisions made in the current meeting that were not in the previous meeting
5. Blockers added: New blockers, obstacles, or issues mentioned in the current meeting
6. Blockers resolved: Blockers from the previous meeting that appear to be resolved in the current meeting

For each category, extract specific, concise items. If a category has no items, return an empty list.

Respond in JSON format:
{
    "new_topics": ["topic 1", "topic 2"],
    "removed_topics": ["topic 1", "topic 2"],
    "repeated_topics": ["topic 1", "topic 2"],
    "new_decisions": ["decision 1", "decision 2"],
    "blockers_added": ["blocker 1", "blocker 2"],
    "blockers_resolved": ["blocker 1", "blocker 2"]
}`, truncate(previous[0], deltaSummaryMaxChars), truncate(current, deltaSummaryMaxChars))

	out, err := c.llm.Generate(ctx, llm.Request{
		Prompt:      prompt,
		Temperature: deltaTemperature,
		JSON:        true,
	})
	if err != nil {
		c.logger.WarnContext(ctx, "delta computation failed", "error", err)
		return SummaryDeltas{}
	}

	var deltas SummaryDeltas
	if err := json.Unmarshal([]byte(out), &deltas); err != nil {
		c.logger.WarnContext(ctx, "delta computation returned invalid JSON", "error", err)
		return SummaryDeltas{}
	}
	return deltas
}

// BuildDeltaSection formats deltas for inclusion in a brief or summary.
// Repeated topics are computed but not displayed.
func BuildDeltaSection(d SummaryDeltas) string {
	if d.Empty() {
		return ""
	}

	var lines []string
	if len(d.NewTopics) > 0 {
		lines = append(lines, "- New topics: "+joinCapped(d.NewTopics))
	}
	if len(d.RemovedTopics) > 0 {
		lines = append(lines, "- Removed topics: "+joinCapped(d.RemovedTopics))
	}
	if len(d.NewDecisions) > 0 {
		lines = append(lines, "- Updated decisions: "+joinCapped(d.NewDecisions))
	}
	if len(d.BlockersAdded) > 0 {
		lines = append(lines, "- New blockers: "+joinCapped(d.BlockersAdded))
	}
	if len(d.BlockersResolved) > 0 {
		lines = append(lines, "- Resolved blockers: "+joinCapped(d.BlockersResolved))
	}
	if len(lines) == 0 {
		return ""
	}

	section := "\nChanges Since Previous Meeting:\n" + strings.Join(lines, "\n") + "\n"
	return truncate(section, deltaSectionMaxChars)
}

var (
	headerRe     = regexp.MustCompile(`(?m)^#+\s*`)
	bulletRe     = regexp.MustCompile(`(?m)^\s*[-•*]\s*`)
	numberedRe   = regexp.MustCompile(`(?m)^\d+\.\s*`)
	whitespaceRe = regexp.MustCompile(`\s+`)
	punctSpacing = regexp.MustCompile(`\s*([.,;:!?])\s*`)
)

// NormalizeSummary canonicalizes summary text for comparison: lowercase,
// markdown headers and list markers stripped, whitespace collapsed.
func NormalizeSummary(text string) string {
	if text == "" {
		return ""
	}
	normalized := strings.ToLower(strings.TrimSpace(text))
	normalized = headerRe.ReplaceAllString(normalized, "")
	normalized = bulletRe.ReplaceAllString(normalized, "")
	normalized = numberedRe.ReplaceAllString(normalized, "")
	normalized = whitespaceRe.ReplaceAllString(normalized, " ")
	normalized = punctSpacing.ReplaceAllString(normalized, "$1 ")
	return strings.TrimSpace(normalized)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func joinCapped(items []string) string {
	if len(items) > deltaMaxItems {
		items = items[:deltaMaxItems]
	}
	return strings.Join(items, ", ")
}

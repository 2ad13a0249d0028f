package reconcile

import (
	"fmt"
	"strings"
	"time"

	"github.com/agentstation/freshen/pkg/evidence"
	"github.com/agentstation/freshen/pkg/policy"
)

// SystemPrompt frames every reconciliation request.
const SystemPrompt = `You maintain the content of one module of a research dashboard.
You compare the stored content with recent evidence and propose the smallest set of changes that brings it up to date.
Never invent facts, figures, dates or sources. When the evidence does not support a change, propose no change.
Answer with a single JSON object and nothing else.`

const defaultInstructions = "Keep the stored content accurate and current. Prefer updating existing sections over creating new ones."

const contract = `Respond with exactly one JSON object of this shape and nothing else:
{
  "updates": [{"contentKey": "<module>:<section>", "data": {...}, "confidence": 0.0-1.0, "sourceUrl": "<url>", "reason": "<why>"}],
  "newItems": [{"section": "<section>", "data": {...}, "confidence": 0.0-1.0, "sourceUrl": "<url>", "reason": "<why>"}],
  "removals": [{"contentKey": "<module>:<section>", "reason": "<why>"}],
  "notes": "<short summary of what changed and why>"
}
Rules:
- All three arrays must be present; use [] when a bucket has nothing.
- "data" replaces the stored payload in full, so include every field that should remain.
- Only use content keys that belong to this module.
- Omit "confidence" when unsure; it is advisory.`

// Prompt is everything one reconciliation request is composed from.
type Prompt struct {
	Module   string
	Policy   policy.FreshnessPolicy
	Now      time.Time
	Items    []Summary
	Evidence evidence.Digest
	// Correction explains why a previous answer was rejected. Empty on the first attempt.
	Correction string
}

// Render composes the user prompt.
func (p Prompt) Render() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Module: %s\n", p.Module)
	fmt.Fprintf(&b, "Priority: %s\n", p.Policy.Priority)
	fmt.Fprintf(&b, "Refresh interval: %dh\n", p.Policy.TTLHours)
	fmt.Fprintf(&b, "Today: %s\n", p.Now.UTC().Format(time.DateOnly))

	b.WriteString("\n## Instructions\n")
	instructions := strings.TrimSpace(p.Policy.Instructions)
	if instructions == "" {
		instructions = defaultInstructions
	}
	b.WriteString(instructions)
	b.WriteByte('\n')

	fmt.Fprintf(&b, "\n## Current content (%d items)\n", len(p.Items))
	if len(p.Items) == 0 {
		b.WriteString("The module has no active content yet.\n")
	}
	for _, s := range p.Items {
		fmt.Fprintf(&b, "### %s\n", s.Key)
		fmt.Fprintf(&b, "version %d, source %s, refreshed %s", s.Version, s.SourceType, s.RefreshedAt.UTC().Format(time.DateOnly))
		if s.Confidence != nil {
			fmt.Fprintf(&b, ", confidence %.2f", *s.Confidence)
		}
		b.WriteByte('\n')
		switch {
		case s.Omitted:
			b.WriteString("(data omitted: summary budget exhausted)\n")
		case s.Truncated:
			b.WriteString(s.Text)
			b.WriteString("\n(data truncated)\n")
		default:
			b.WriteString(s.Text)
			b.WriteByte('\n')
		}
	}

	b.WriteString("\n## Recent evidence\n")
	b.WriteString(strings.TrimRight(p.Evidence.Text, "\n"))
	b.WriteByte('\n')

	b.WriteString("\n## Output contract\n")
	b.WriteString(contract)
	b.WriteByte('\n')

	if p.Correction != "" {
		b.WriteString("\n## Correction\n")
		fmt.Fprintf(&b, "Your previous answer was rejected: %s\n", p.Correction)
		b.WriteString("Reply again with the JSON object only.\n")
	}
	return b.String()
}

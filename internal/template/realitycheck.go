package template

import "strings"

// RealityCheckPrompts are the reflection prompts injected between rounds.
var RealityCheckPrompts = []string{
	"What are we assuming without evidence?",
	"Which user or customer voice is missing from this discussion?",
	"What would make this fail in the first three months?",
	"What is the smallest version we could test this week?",
	"Which trade-off are we avoiding naming?",
}

// RealityCheckMessage renders the synthetic reality-check message content.
func RealityCheckMessage() string {
	var sb strings.Builder
	sb.WriteString("Reality check. Before the next round, consider:\n")
	for _, p := range RealityCheckPrompts {
		sb.WriteString("- ")
		sb.WriteString(p)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

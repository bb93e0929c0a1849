package render

import (
	"strings"

	"github.com/aymanbagabas/go-udiff"
	"github.com/mark3labs/roundtable/internal/dialogue"
)

// OutcomeDiff returns a unified diff between two outcome records rendered as
// markdown. A nil outcome diffs as an empty document. Identical outcomes give "".
func OutcomeDiff(oldLabel, newLabel string, old, new *dialogue.Outcome) string {
	return udiff.Unified(oldLabel, newLabel, outcomeText(old), outcomeText(new))
}

func outcomeText(o *dialogue.Outcome) string {
	if o == nil {
		return ""
	}
	return OutcomeMarkdown(*o)
}

// ColorizeDiff colors added, removed and hunk header lines of a unified diff.
func ColorizeDiff(diff string) string {
	lines := strings.Split(diff, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			lines[i] = styleName.Render(line)
		case strings.HasPrefix(line, "+"):
			lines[i] = styleInsert.Render(line)
		case strings.HasPrefix(line, "-"):
			lines[i] = styleDelete.Render(line)
		case strings.HasPrefix(line, "@@"):
			lines[i] = styleHunk.Render(line)
		}
	}
	return strings.Join(lines, "\n")
}

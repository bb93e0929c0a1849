package render

import (
	"fmt"
	"math"
	"strings"

	"charm.land/lipgloss/v2"
	"github.com/mark3labs/roundtable/internal/dialogue"
)

// tallyOrder is the display order of stances, neutral last.
var tallyOrder = append(append([]dialogue.Stance(nil), dialogue.Stances...), dialogue.StanceNeutral)

// StanceBar renders the tally as a horizontal bar of width cells, one colored
// segment per stance proportional to its share. Non-zero stances get at least one cell.
func StanceBar(t dialogue.Tally, width int) string {
	if width <= 0 {
		return ""
	}
	total := t.Total()
	if total == 0 {
		return styleNeutral.Render(strings.Repeat("░", width))
	}

	cells := barCells(t, width)
	var sb strings.Builder
	for _, s := range tallyOrder {
		if cells[s] == 0 {
			continue
		}
		sb.WriteString(lipgloss.NewStyle().Foreground(StanceColor(s)).Render(strings.Repeat("█", cells[s])))
	}
	return sb.String()
}

// barCells splits width across stances by largest remainder.
func barCells(t dialogue.Tally, width int) map[dialogue.Stance]int {
	total := float64(t.Total())
	cells := make(map[dialogue.Stance]int)
	var rems []remainder
	used := 0
	for _, s := range tallyOrder {
		if t[s] == 0 {
			continue
		}
		exact := float64(t[s]) / total * float64(width)
		n := int(math.Floor(exact))
		if n == 0 {
			n = 1
		}
		cells[s] = n
		used += n
		rems = append(rems, remainder{s, exact - math.Floor(exact)})
	}
	// Hand out or take back cells until the bar is exactly width wide.
	for used < width {
		best := 0
		for i := range rems {
			if rems[i].r > rems[best].r {
				best = i
			}
		}
		cells[rems[best].s]++
		rems[best].r = -1
		used++
		if allSpent(rems) {
			for i := range rems {
				rems[i].r = 0
			}
		}
	}
	for used > width {
		largest := rems[0].s
		for _, r := range rems {
			if cells[r.s] > cells[largest] {
				largest = r.s
			}
		}
		cells[largest]--
		used--
	}
	return cells
}

type remainder struct {
	s dialogue.Stance
	r float64
}

func allSpent(rems []remainder) bool {
	for _, r := range rems {
		if r.r >= 0 {
			return false
		}
	}
	return true
}

// TallyLine renders "agree 3 · disagree 1 · risk 2 · idea 0", plus neutral when counted.
func TallyLine(t dialogue.Tally) string {
	var parts []string
	for _, s := range tallyOrder {
		n, ok := t[s]
		if !ok {
			continue
		}
		parts = append(parts, lipgloss.NewStyle().Foreground(StanceColor(s)).Render(fmt.Sprintf("%s %d", s, n)))
	}
	return strings.Join(parts, styleMuted.Render(" · "))
}

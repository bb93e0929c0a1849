package dialogue

// Tally counts participant messages per stance.
type Tally map[Stance]int

// CountStances recomputes the tally from the full message list. System and
// placeholder messages are excluded. The four classifier labels are always present;
// neutral appears only when counted.
func CountStances(messages []Message) Tally {
	t := Tally{}
	for _, s := range Stances {
		t[s] = 0
	}
	for _, m := range messages {
		if !m.Countable() || m.Stance == "" {
			continue
		}
		t[m.Stance]++
	}
	return t
}

// Total returns the number of counted messages.
func (t Tally) Total() int {
	n := 0
	for _, c := range t {
		n += c
	}
	return n
}

// Share returns the fraction of messages with stance s, or 0 for an empty tally.
func (t Tally) Share(s Stance) float64 {
	total := t.Total()
	if total == 0 {
		return 0
	}
	return float64(t[s]) / float64(total)
}

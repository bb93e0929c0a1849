package dialogue

import (
	"encoding/json"
	"fmt"
)

// Outcome is the structured decision record synthesized from a finished session.
type Outcome struct {
	Consensus      []string         `json:"consensus"`
	Tensions       []Tension        `json:"tensions"`
	NonNegotiables []string         `json:"non_negotiables"`
	Options        []DecisionOption `json:"decision_options"`
}

// Tension is a disagreement between participants.
type Tension struct {
	Between []string `json:"between"`
	Issue   string   `json:"issue"`
}

// DecisionOption is one course of action proposed by the synthesis.
type DecisionOption struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Changes     []string `json:"changes"`
	Unchanged   []string `json:"unchanged"`
	Risk        string   `json:"risk"`
	Metrics     []string `json:"metrics"`
}

// Clone returns a deep copy of o.
func (o Outcome) Clone() Outcome {
	cp := Outcome{
		Consensus:      cloneStrings(o.Consensus),
		NonNegotiables: cloneStrings(o.NonNegotiables),
	}
	if o.Tensions != nil {
		cp.Tensions = make([]Tension, len(o.Tensions))
		for i, t := range o.Tensions {
			cp.Tensions[i] = Tension{Between: cloneStrings(t.Between), Issue: t.Issue}
		}
	}
	if o.Options != nil {
		cp.Options = make([]DecisionOption, len(o.Options))
		for i, opt := range o.Options {
			opt.Changes = cloneStrings(opt.Changes)
			opt.Unchanged = cloneStrings(opt.Unchanged)
			opt.Metrics = cloneStrings(opt.Metrics)
			cp.Options[i] = opt
		}
	}
	return cp
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

// outcomeFields must all be present at the top level of a synthesis response.
var outcomeFields = []string{"consensus", "tensions", "non_negotiables", "decision_options"}

// ParseOutcome extracts the first JSON object from text and decodes it as an Outcome.
// All four top-level fields must be present; there is no partial acceptance.
func ParseOutcome(text string) (Outcome, error) {
	raw, err := ExtractJSONObject(text)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", ErrMalformedOutcome, err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", ErrMalformedOutcome, err)
	}
	for _, f := range outcomeFields {
		if v, ok := fields[f]; !ok || string(v) == "null" {
			return Outcome{}, fmt.Errorf("%w: missing field %q", ErrMalformedOutcome, f)
		}
	}

	var o Outcome
	if err := json.Unmarshal([]byte(raw), &o); err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", ErrMalformedOutcome, err)
	}
	return o, nil
}

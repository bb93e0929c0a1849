package dialogue

import (
	"encoding/json"
	"strings"
)

// Keyword tables, matched as substrings of the lowercased response.
var (
	riskKeywords = []string{
		"risque", "risk", "danger", "attention", "prudence", "caution", "concern", "menace", "threat",
	}
	disagreeKeywords = []string{
		"pas d'accord", "désaccord", "desaccord", "disagree", "however", "cependant", "toutefois",
		"au contraire", "on the contrary",
	}
	ideaKeywords = []string{
		"idée", "idee", "idea", "propose", "suggest", "suggère", "suggere", "what if", "et si",
		"pourquoi pas", "imagine",
	}
)

// Classify assigns a stance to free text. Risk keywords take precedence over
// disagreement, which takes precedence over ideas; anything else is agreement.
func Classify(text string) Stance {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, riskKeywords):
		return StanceRisk
	case containsAny(lower, disagreeKeywords):
		return StanceDisagree
	case containsAny(lower, ideaKeywords):
		return StanceIdea
	default:
		return StanceAgree
	}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// hybridResponse is the JSON shape requested from participants in hybrid mode.
type hybridResponse struct {
	Stance  string `json:"stance"`
	Message string `json:"message"`
	Content string `json:"content"`
}

// ParseStance reads the stance field of the first JSON object embedded in text.
// It returns the display content (the message/content field when present, the whole
// text otherwise) and the stance, falling back to neutral when the object is missing,
// malformed or carries an unknown stance.
func ParseStance(text string) (string, Stance) {
	trimmed := strings.TrimSpace(text)

	raw, err := ExtractJSONObject(trimmed)
	if err != nil {
		return trimmed, StanceNeutral
	}
	var resp hybridResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return trimmed, StanceNeutral
	}

	content := strings.TrimSpace(resp.Message)
	if content == "" {
		content = strings.TrimSpace(resp.Content)
	}
	if content == "" {
		content = trimmed
	}

	stance := Stance(strings.ToLower(strings.TrimSpace(resp.Stance)))
	if !stance.Valid() {
		stance = StanceNeutral
	}
	return content, stance
}

// Interpret turns a raw generation response into display content and a stance
// according to mode.
func Interpret(mode Mode, text string) (string, Stance) {
	if mode == ModeHybrid {
		return ParseStance(text)
	}
	return strings.TrimSpace(text), Classify(text)
}

// Package dialogue implements the turn-based roundtable protocol: participants speak
// once per round in roster order, each turn is classified into a stance, reactions
// are attached between participants, a reality check is injected between rounds, and
// a structured outcome is synthesized from the finished transcript.
package dialogue

import (
	"strings"
	"time"
)

// Mode selects how turn responses are interpreted.
type Mode string

const (
	ModeChat   Mode = "chat"   // free text, stance from keywords
	ModeHybrid Mode = "hybrid" // JSON with an explicit stance field
)

// ParseMode validates a mode string. An empty string means chat.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeChat:
		return ModeChat, nil
	case ModeHybrid:
		return ModeHybrid, nil
	default:
		return "", ErrInvalidMode
	}
}

// Participant is a configured persona taking turns in the dialogue.
type Participant struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	Specialty string `json:"specialty" yaml:"specialty"`
	Backstory string `json:"backstory,omitempty" yaml:"backstory,omitempty"`
}

// Role categories derived from a participant's specialty.
const (
	RoleTech     = "tech"
	RoleProduct  = "product"
	RoleDesign   = "design"
	RoleBusiness = "business"
	RoleUser     = "user"
	RoleRisk     = "risk"
	RoleGeneral  = "general"
)

// roleKeywords is checked in order; the first matching category wins.
var roleKeywords = []struct {
	role     string
	keywords []string
}{
	{RoleRisk, []string{"risk", "legal", "compliance", "security", "juridique", "sécurité", "securite"}},
	{RoleTech, []string{"engineer", "developer", "développeur", "developpeur", "ingénieur", "ingenieur", "architect", "tech", "devops", "data"}},
	{RoleDesign, []string{"design", "ux"}},
	{RoleProduct, []string{"product", "produit", "owner"}},
	{RoleBusiness, []string{"business", "sales", "marketing", "finance", "commercial", "strategy", "stratégie"}},
	{RoleUser, []string{"user", "customer", "client", "utilisateur", "support"}},
}

// Role derives a coarse role category from the specialty label.
func (p Participant) Role() string {
	s := strings.ToLower(p.Specialty)
	for _, rk := range roleKeywords {
		for _, kw := range rk.keywords {
			if strings.Contains(s, kw) {
				return rk.role
			}
		}
	}
	return RoleGeneral
}

// Stance is the coarse rhetorical position of a turn.
type Stance string

const (
	StanceAgree    Stance = "agree"
	StanceDisagree Stance = "disagree"
	StanceRisk     Stance = "risk"
	StanceIdea     Stance = "idea"
	StanceNeutral  Stance = "neutral" // hybrid fallback
)

// Stances lists the classifier labels in display order.
var Stances = []Stance{StanceAgree, StanceDisagree, StanceRisk, StanceIdea}

// Valid reports whether s is a known stance, neutral included.
func (s Stance) Valid() bool {
	switch s {
	case StanceAgree, StanceDisagree, StanceRisk, StanceIdea, StanceNeutral:
		return true
	}
	return false
}

// Kind distinguishes participant turns from synthetic messages.
type Kind string

const (
	KindParticipant Kind = "participant"
	KindSystem      Kind = "system"      // reality check
	KindPlaceholder Kind = "placeholder" // turn in progress
)

// ReactionTag is the small fixed tag set a participant can attach to a message.
type ReactionTag string

const (
	TagAgree    ReactionTag = "agree"
	TagRisk     ReactionTag = "risk"
	TagDisagree ReactionTag = "disagree"
)

// ParseTag validates a reaction tag.
func ParseTag(s string) (ReactionTag, error) {
	switch t := ReactionTag(strings.ToLower(strings.TrimSpace(s))); t {
	case TagAgree, TagRisk, TagDisagree:
		return t, nil
	}
	return "", ErrInvalidTag
}

// TagForStance maps a turn's stance onto the reaction it implies towards the previous
// speaker. Neutral maps to no reaction.
func TagForStance(s Stance) (ReactionTag, bool) {
	switch s {
	case StanceAgree, StanceIdea:
		return TagAgree, true
	case StanceDisagree:
		return TagDisagree, true
	case StanceRisk:
		return TagRisk, true
	}
	return "", false
}

// Reaction is a tag contributed by another participant.
type Reaction struct {
	ParticipantID string      `json:"participant_id"`
	Tag           ReactionTag `json:"tag"`
}

// Message is one entry in the transcript.
type Message struct {
	ID          string      `json:"id"`
	Kind        Kind        `json:"kind"`
	Participant Participant `json:"participant"`
	Round       int         `json:"round"`
	Content     string      `json:"content"`
	Stance      Stance      `json:"stance,omitempty"`
	Reactions   []Reaction  `json:"reactions,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// State is the Round Controller state.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StatePaused   State = "paused"
	StateComplete State = "complete"
)

// Snapshot is a consistent copy of a session, forwarded to persistence collaborators.
type Snapshot struct {
	Session      string        `json:"session"`
	Topic        string        `json:"topic"`
	Mode         Mode          `json:"mode"`
	State        State         `json:"state"`
	Round        int           `json:"round"`
	MaxRounds    int           `json:"max_rounds"`
	Participants []Participant `json:"participants"`
	Messages     []Message     `json:"messages"`
	Outcome      *Outcome      `json:"outcome,omitempty"`
	Tally        Tally         `json:"tally"`
}

package tutor

import "strings"

// Label is the closed set of turn classifications. Every turn maps to exactly
// one label, and every label maps to exactly one response strategy.
type Label string

const (
	LabelGreeting    Label = "greeting"
	LabelCode        Label = "code"
	LabelExplanation Label = "explanation"
	LabelChitchat    Label = "chitchat"
	LabelIrrelevant  Label = "irrelevant"
)

// ParseLabel normalizes raw classifier output and validates it against the
// label set. Anything that is not an exact match fails closed to irrelevant:
// when in doubt the tutor refuses rather than answering off-topic.
func ParseLabel(raw string) Label {
	switch Label(strings.ToLower(strings.TrimSpace(raw))) {
	case LabelGreeting:
		return LabelGreeting
	case LabelCode:
		return LabelCode
	case LabelExplanation:
		return LabelExplanation
	case LabelChitchat:
		return LabelChitchat
	case LabelIrrelevant:
		return LabelIrrelevant
	default:
		return LabelIrrelevant
	}
}

package tutor

// routeTurn maps a label to exactly one strategy. The dispatch is a single
// level: a turn enters classified and terminates after one strategy runs.
// The default arm keeps unknown labels fail-closed on the refusal path.
func routeTurn(label Label) strategy {
	switch label {
	case LabelGreeting:
		return generateGreeting
	case LabelCode:
		return generateCode
	case LabelExplanation:
		return generateExplanation
	case LabelChitchat:
		return handleChitchat
	case LabelIrrelevant:
		return refuse
	default:
		return refuse
	}
}

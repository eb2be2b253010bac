package tutor

import (
	"context"
	"log"

	"github.com/pytutor/pytutor/internal/ai"
)

// Classify categorizes the latest user message via a single prompted call.
// The contract is that exactly one label from the fixed set comes back: raw
// output is normalized and validated, and any fault (unparsable output, an
// empty transcript, the call itself failing) resolves to irrelevant so the
// turn refuses instead of answering off-topic.
func Classify(ctx context.Context, provider ai.Provider, msgs []Message) Label {
	userText := latestUserText(msgs)
	if userText == "" {
		return LabelIrrelevant
	}

	raw, err := provider.Chat(ctx, []ai.Message{
		{Role: RoleUser, Content: classifierPrompt(userText)},
	})
	if err != nil {
		log.Printf("classify failed, refusing turn: %v", err)
		return LabelIrrelevant
	}

	return ParseLabel(raw)
}

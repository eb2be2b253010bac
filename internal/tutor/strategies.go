package tutor

import (
	"context"

	"github.com/pytutor/pytutor/internal/ai"
)

// A strategy produces the turn's reply text. Each one renders its template and
// makes at most one provider call; there is no retry and no fallback between
// strategies.
type strategy func(ctx context.Context, provider ai.Provider, msgs []Message, userText string) (string, error)

func generateGreeting(ctx context.Context, provider ai.Provider, _ []Message, userText string) (string, error) {
	return provider.Chat(ctx, []ai.Message{
		{Role: RoleUser, Content: greetingPrompt(userText)},
	})
}

func handleChitchat(ctx context.Context, provider ai.Provider, _ []Message, userText string) (string, error) {
	return provider.Chat(ctx, []ai.Message{
		{Role: RoleUser, Content: chitchatPrompt(userText)},
	})
}

func generateExplanation(ctx context.Context, provider ai.Provider, msgs []Message, userText string) (string, error) {
	return provider.Chat(ctx, []ai.Message{
		{Role: RoleUser, Content: explanationPrompt(renderHistory(msgs), userText)},
	})
}

// generateCode picks between the correction template and the general coding
// template based on fix-intent keywords in the latest user text.
func generateCode(ctx context.Context, provider ai.Provider, msgs []Message, userText string) (string, error) {
	history := renderHistory(msgs)
	prompt := codeGeneralPrompt(history, userText)
	if isFixRequest(userText) {
		prompt = codeFixPrompt(history, userText)
	}
	return provider.Chat(ctx, []ai.Message{
		{Role: RoleUser, Content: prompt},
	})
}

// refuse is pure: fixed sentence, no provider call.
func refuse(_ context.Context, _ ai.Provider, _ []Message, _ string) (string, error) {
	return RefusalReply, nil
}

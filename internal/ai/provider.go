package ai

import "context"

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider is a blocking chat-completion call: full message list in, reply text out.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

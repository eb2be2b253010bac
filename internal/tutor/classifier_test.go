package tutor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pytutor/pytutor/internal/ai"
)

// scriptedProvider replays canned replies in order and records every call.
type scriptedProvider struct {
	replies []string
	err     error // returned once replies are exhausted
	calls   [][]ai.Message
}

func (p *scriptedProvider) Chat(ctx context.Context, messages []ai.Message) (string, error) {
	_ = ctx
	p.calls = append(p.calls, append([]ai.Message(nil), messages...))
	if len(p.replies) == 0 {
		if p.err != nil {
			return "", p.err
		}
		return "", errors.New("script exhausted")
	}
	r := p.replies[0]
	p.replies = p.replies[1:]
	return r, nil
}

func userMsgs(texts ...string) []Message {
	msgs := []Message{{Role: RoleSystem, Content: SystemPrompt}}
	for _, txt := range texts {
		msgs = append(msgs, Message{Role: RoleUser, Content: txt})
	}
	return msgs
}

func TestClassify_FixtureCategories(t *testing.T) {
	cases := []struct {
		input string
		raw   string
		want  Label
	}{
		{"Good morning", "greeting", LabelGreeting},
		{"Can you help me write a for loop in Python?", "code", LabelCode},
		{"What is backpropagation in PyTorch?", "explanation", LabelExplanation},
		{"Thanks!", "chitchat", LabelChitchat},
		{"What's the capital of France?", "irrelevant", LabelIrrelevant},
	}

	for _, tc := range cases {
		prov := &scriptedProvider{replies: []string{tc.raw}}
		got := Classify(context.Background(), prov, userMsgs(tc.input))
		if got != tc.want {
			t.Fatalf("Classify(%q) = %q, want %q", tc.input, got, tc.want)
		}
		if len(prov.calls) != 1 {
			t.Fatalf("expected exactly one classification call, got %d", len(prov.calls))
		}
		prompt := prov.calls[0][0].Content
		if !strings.Contains(prompt, tc.input) {
			t.Fatalf("classification prompt does not quote the user input %q", tc.input)
		}
	}
}

func TestClassify_NormalizesRawOutput(t *testing.T) {
	prov := &scriptedProvider{replies: []string{" Greeting \n"}}
	if got := Classify(context.Background(), prov, userMsgs("hello")); got != LabelGreeting {
		t.Fatalf("Classify = %q, want greeting", got)
	}
}

func TestClassify_UnparsableOutputFailsClosed(t *testing.T) {
	for _, raw := range []string{"", "this looks like python code to me", "code!"} {
		prov := &scriptedProvider{replies: []string{raw}}
		if got := Classify(context.Background(), prov, userMsgs("import torch")); got != LabelIrrelevant {
			t.Fatalf("raw output %q classified as %q, want irrelevant", raw, got)
		}
	}
}

func TestClassify_ProviderErrorFailsClosed(t *testing.T) {
	prov := &scriptedProvider{err: errors.New("model unreachable")}
	if got := Classify(context.Background(), prov, userMsgs("hello")); got != LabelIrrelevant {
		t.Fatalf("Classify on provider error = %q, want irrelevant", got)
	}
}

func TestClassify_NoUserMessageFailsClosed(t *testing.T) {
	prov := &scriptedProvider{replies: []string{"greeting"}}
	msgs := []Message{{Role: RoleSystem, Content: SystemPrompt}}
	if got := Classify(context.Background(), prov, msgs); got != LabelIrrelevant {
		t.Fatalf("Classify without user message = %q, want irrelevant", got)
	}
	if len(prov.calls) != 0 {
		t.Fatalf("expected no provider call for empty transcript, got %d", len(prov.calls))
	}
}

func TestClassify_UsesLatestUserMessage(t *testing.T) {
	prov := &scriptedProvider{replies: []string{"code"}}
	msgs := userMsgs("hello there")
	msgs = append(msgs, Message{Role: RoleAssistant, Content: "Hi!"})
	msgs = append(msgs, Message{Role: RoleUser, Content: "now fix my tensor shape error"})

	Classify(context.Background(), prov, msgs)

	prompt := prov.calls[0][0].Content
	if !strings.Contains(prompt, "now fix my tensor shape error") {
		t.Fatalf("classification prompt missing latest user text")
	}
	if strings.Contains(prompt, "hello there") {
		t.Fatalf("classification prompt should only quote the latest user text")
	}
}

package tutor

import (
	"fmt"
	"strings"
)

// SystemPrompt seeds every new thread. It establishes the persona and the
// topic boundary the classifier enforces.
const SystemPrompt = "You are PyTutor, an expert tutor strictly for Python programming, including PyTorch and Python-based deep learning.\n" +
	"You MUST ONLY answer questions that are exclusively about Python, PyTorch, or Python deep learning.\n" +
	"If a question is about any other programming language (e.g., C, Java, C++, JavaScript, etc.) or any unrelated topic " +
	"(general knowledge, politics, history, geography, etc.), you MUST NOT provide any answer.\n" +
	"Instead, respond exactly with:\n" +
	"'I'm here to help strictly with Python, PyTorch, and Python-based deep learning. " +
	"Please ask a question related to those topics.'\n" +
	"Do not provide any partial answers, code snippets, explanations, or suggestions about other languages or topics.\n" +
	"Always be concise, clear, polite, and supportive."

// RefusalReply is the fixed response for irrelevant turns. No model call is made.
const RefusalReply = "I'm here to help strictly with Python, PyTorch, and Python-based deep learning. " +
	"Please ask a question related to those topics."

const classifierPromptFmt = `You are PyTutor, a helpful tutor for PyTorch and Python only.

Classify the user's message into one of these categories:
- greeting → for greetings like "hello", "hi", "good morning"
- code → only if it's Python or PyTorch code help
- explanation → only if it's about Python or PyTorch concepts
- chitchat → if it's small talk like "okay", "thanks", "great"
- irrelevant → if it's about other programming languages (C, Java, C++, etc.) or unrelated topics

Examples:
- "Can you help me write a for loop in Python?" → code
- "What is backpropagation in PyTorch?" → explanation
- "Fix this C++ error" → irrelevant
- "What's the capital of France?" → irrelevant
- "Thanks!" → chitchat
- "Good morning" → greeting

Now classify this:
"%s"
Only reply with one word: greeting, code, explanation, chitchat, or irrelevant.`

func classifierPrompt(userInput string) string {
	return fmt.Sprintf(classifierPromptFmt, strings.TrimSpace(userInput))
}

func greetingPrompt(greeting string) string {
	return fmt.Sprintf("You are PyTutor, a friendly AI tutor who specializes in PyTorch and Python. "+
		"A user greeted you with:\n\n%q\n\n"+
		"Reply with a warm and context-aware greeting. Stay in character as a tutor. "+
		"If the greeting includes time (e.g., 'good morning'), respond appropriately. "+
		"Avoid answering non-Python or non-PyTorch questions.", greeting)
}

func chitchatPrompt(message string) string {
	return fmt.Sprintf("You're PyTutor, a friendly AI tutor for PyTorch and Python. The user said:\n\n"+
		"%q\n\n"+
		"Respond politely and warmly as a tutor would during a casual moment. "+
		"You don't need to teach here, just acknowledge or continue the conversation naturally.", message)
}

func explanationPrompt(history, question string) string {
	return fmt.Sprintf("You are PyTutor, a helpful tutor for PyTorch and Python. "+
		"Here's the conversation so far:\n%s\n\nCurrent Question:\n%s\n\nPlease respond accordingly.",
		history, question)
}

func codeFixPrompt(history, question string) string {
	return fmt.Sprintf("You are PyTutor, a Python expert. Based on this conversation:\n%s\n\n"+
		"The user is asking you to help fix some buggy code or error message:\n%s\n\n"+
		"Please provide a corrected version of the code with explanation if needed.",
		history, question)
}

func codeGeneralPrompt(history, question string) string {
	return fmt.Sprintf("You are PyTutor, a helpful tutor for PyTorch and Python. "+
		"Here's the conversation so far:\n%s\n\nCurrent Question:\n%s\n\nPlease respond accordingly.",
		history, question)
}

var fixKeywords = []string{"fix", "error", "bug", "issue", "debug"}

// isFixRequest decides between the correction template and the general coding
// template. This is a local heuristic inside the code strategy, separate from
// the top-level classification.
func isFixRequest(question string) bool {
	q := strings.ToLower(question)
	for _, kw := range fixKeywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

// renderHistory serializes prior user/assistant turns for prompt templates.
// System messages never enter the rendered history.
func renderHistory(msgs []Message) string {
	var b strings.Builder
	for _, m := range msgs {
		switch m.Role {
		case RoleUser:
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			b.WriteString("User: ")
			b.WriteString(m.Content)
		case RoleAssistant:
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			b.WriteString("Tutor: ")
			b.WriteString(m.Content)
		}
	}
	return b.String()
}

// latestUserText returns the content of the newest user message, "" if none.
func latestUserText(msgs []Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}

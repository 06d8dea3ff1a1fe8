package ai

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	maxJournalContext = 3
	journalExcerpt    = 600
)

var listenerRules = []string{
	"Respond with empathy and understanding; validate what the user is feeling.",
	"Provide supportive guidance without making medical diagnoses or prescribing treatments.",
	"Focus on active listening, reflection and suggesting healthy coping strategies.",
	"Keep replies concise and conversational.",
	"If the user mentions self-harm or being in danger, encourage them to contact local emergency services or a crisis line.",
}

// BuildSystemPrompt frames the assistant as a supportive, non-diagnostic listener aware of the
// detected emotion and, when shared, the user's recent journal entries.
func BuildSystemPrompt(emotion string, journals []string) string {
	emotion = strings.TrimSpace(emotion)
	if emotion == "" {
		emotion = "neutral"
	}

	var builder strings.Builder
	builder.WriteString("You are an empathetic AI wellness companion. ")
	builder.WriteString(fmt.Sprintf("The user's message indicates they may be feeling %s.\n", emotion))
	builder.WriteString("\nGuidelines:\n- ")
	builder.WriteString(strings.Join(listenerRules, "\n- "))

	if len(journals) > 0 {
		builder.WriteString("\n\nThe user chose to share these recent journal entries for context. Refer to them gently and only when relevant:")
		for i, entry := range journals {
			if i == maxJournalContext {
				break
			}
			builder.WriteString("\n---\n")
			builder.WriteString(excerpt(entry, journalExcerpt))
		}
	}

	return builder.String()
}

func excerpt(s string, limit int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + "..."
}

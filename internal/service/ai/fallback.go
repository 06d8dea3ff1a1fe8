package ai

const fallbackDisclaimer = "\n\n(Note: This is a fallback response due to a temporary issue connecting to our AI system. Your message will be processed properly once the connection is restored.)"

var fallbackResponses = map[string]string{
	"happy":     "I'm glad to hear you're feeling positive! It's wonderful that you're experiencing these good emotions. Would you like to share more about what's contributing to your happiness?",
	"content":   "It sounds like you're in a relatively balanced state. How can I support you today?",
	"neutral":   "Thank you for sharing that with me. I'm here to listen and support you. Would you like to explore this topic further?",
	"sad":       "I'm sorry to hear you're feeling down. It's completely normal to experience sadness, and I'm here to listen. Would you like to talk more about what's troubling you?",
	"depressed": "I can sense that you're going through a difficult time. Please remember that you're not alone, and it's brave of you to reach out. Would it help to discuss some coping strategies that might provide some relief?",
	"angry":     "I can understand feeling frustrated or angry. These emotions are valid and important. Would it help to explore what triggered these feelings?",
	"anxious":   "It sounds like you might be experiencing some anxiety. This is a common feeling that many people face. Would you like to try some grounding techniques that might help in the moment?",
}

// FallbackReply returns the canned reply for emotion followed by the degraded-mode note.
// Unknown emotions get the neutral reply.
func FallbackReply(emotion string) string {
	response, ok := fallbackResponses[emotion]
	if !ok {
		response = fallbackResponses["neutral"]
	}
	return response + fallbackDisclaimer
}

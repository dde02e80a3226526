package conversation

import (
	"fmt"
	"strings"
)

const (
	msgConsentPrompt    = "⚠️ Sensitive or private information detected in this document (e.g., personal IDs, contact info, or financial data).\nDo you still want to proceed with chatting about it? (y/n)"
	msgConsentGranted   = "Proceeding. You can now ask questions about this document."
	msgConsentDeclined  = "Chat cancelled. Please re-upload a cleaned version of the document without sensitive data."
	msgFallbackPrompt   = "⚠️ I couldn't find relevant information about your question in the uploaded document.\nDo you want me to answer using general knowledge instead? (y/n)"
	msgFallbackReprompt = "⚠️ I couldn't find relevant information about your question in the uploaded document.\nDo you want me to answer using general knowledge instead? Reply \"y\" for yes or \"n\" for no."
	msgFallbackDeclined = "Okay, I won't answer that. Please ask a question based on the uploaded document."
	msgAskAgain         = "Okay, please ask your question again."
	msgIndexing         = "Indexing this document in the background. Please try your question again in ~30–60 seconds."
	msgNoGeneralAnswer  = "⚠️ Could not generate a general answer."
	msgGeneralError     = "⚠️ Error generating a general answer. Please try again."
	msgNoAnswer         = "⚠️ Could not generate answer."
	msgAnswerTimeout    = "⚠️ The answer took too long to generate. Please try again."
	msgNoLinks          = "⚠️ No links allowed. Please ask using text only."
	msgProfanity        = "⚠️ Please avoid using offensive words."
)

func greetingMessage(topics []string) string {
	var sb strings.Builder
	sb.WriteString("Hello! 👋 I’m here to help you with your document. You can ask questions about the following sections/topics in your document:\n")
	for i, t := range topics {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("- ")
		sb.WriteString(t)
	}
	sb.WriteString("\n\nPlease type a question related to one of these topics.")
	return sb.String()
}

func generalPrompt(question string) string {
	return fmt.Sprintf("You are a helpful assistant. Provide a clear, accurate answer to the user's question below.\n\nQuestion: %s\n", question)
}

func contextPrompt(chunks []string, question string) string {
	return fmt.Sprintf(`You are a document assistant. Use ONLY the context below to answer the question.
Do NOT include anything that is not in the context.

Please format your response clearly with:
- Proper line breaks between paragraphs
- Use bullet points or numbered lists when appropriate
- Break up long text into readable paragraphs
- Add spacing for better readability

Context:
%s

Question: %s

Answer strictly from the context with proper formatting:
`, strings.Join(chunks, "\n\n"), question)
}

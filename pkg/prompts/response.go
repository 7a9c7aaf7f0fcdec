package prompts

import (
	"fmt"
	"strings"
)

// ResponseSystemInstruction fixes the output style for answers composed
// from query results.
const ResponseSystemInstruction = `You are a helpful SQL assistant. Using the provided query results:
1. Answer the user's question accurately and concisely
2. Present data in a clear, readable format
3. Use tables or lists when appropriate for multiple records
4. Highlight key insights or patterns
5. If no results were found, explain that clearly
6. Maintain a natural, conversational tone
7. Reference specific numbers and facts from the results
`

// HistoryResponseSystemInstruction is used on the context-sufficient fast
// path, where the chat history is the only evidence available.
const HistoryResponseSystemInstruction = `You are a helpful SQL assistant. The previous conversation already contains the data needed to answer.
1. Answer the user's question using ONLY facts present in the chat history
2. Do not invent numbers or records that the history does not contain
3. Present data in a clear, readable format
4. Maintain a natural, conversational tone
`

// BuildResponsePrompt assembles the prompt for narrating query results.
// resultsJSON is the executed query's rows serialized as indented JSON.
func BuildResponsePrompt(resultsJSON, chatHistory, question string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Context (Query Results):\n%s\n", resultsJSON)
	fmt.Fprintf(&b, "\nChat History:\n%s\n", chatHistory)
	fmt.Fprintf(&b, "\nUser Query: %s", question)

	return b.String()
}

// BuildHistoryResponsePrompt assembles the prompt for the fast path, where
// the answer is composed from history alone.
func BuildHistoryResponsePrompt(chatHistory, question string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Chat History:\n%s\n", chatHistory)
	fmt.Fprintf(&b, "\nUser Query: %s", question)

	return b.String()
}

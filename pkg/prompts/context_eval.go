package prompts

import (
	"fmt"
	"strings"
)

// Context evaluation decisions.
const (
	DecisionSufficient   = "SUFFICIENT"
	DecisionNeedMoreData = "NEED_MORE_DATA"
)

// ContextEvalSystemInstruction fixes the two-line classification format the
// evaluator parses.
const ContextEvalSystemInstruction = `You are a context evaluator for a SQL assistant. Decide whether the chat history already contains the data needed to answer the new question, or whether the database must be queried again.

Respond with exactly two lines:
DECISION: SUFFICIENT or NEED_MORE_DATA
REASONING: one short sentence explaining the decision

Answer SUFFICIENT only when the history contains the concrete figures or records the question asks about. When in doubt, answer NEED_MORE_DATA.`

// BuildContextEvalPrompt assembles the classification prompt.
func BuildContextEvalPrompt(question, chatHistory string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Chat History:\n%s\n", chatHistory)
	fmt.Fprintf(&b, "\nNew Question: %s", question)

	return b.String()
}

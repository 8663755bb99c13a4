package answer

import (
	"fmt"
	"strings"

	"github.com/sandevgo/docqa/internal/core"
)

const systemPreamble = `You are a helpful assistant. Answer the question based ONLY on the provided context. If the answer is not available in the context, politely state that you cannot find the information.`

// buildPrompt assembles the message list for one completion: a system
// message carrying the retrieved context, the conversation window, then the
// new question.
func buildPrompt(sources []core.SourceChunk, history []core.Message, question string) []core.Message {
	var sb strings.Builder
	sb.WriteString(systemPreamble)

	if len(sources) > 0 {
		sb.WriteString("\n\n### Context\n")
		for i, src := range sources {
			fmt.Fprintf(&sb, "[%d] (%s)\n%s\n\n", i+1, src.Source, src.Content)
		}
	}

	messages := make([]core.Message, 0, len(history)+2)
	messages = append(messages, core.Message{Role: core.RoleSystem, Content: sb.String()})
	messages = append(messages, history...)
	messages = append(messages, core.Message{Role: core.RoleUser, Content: question})
	return messages
}

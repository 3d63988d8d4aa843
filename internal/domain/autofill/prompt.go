package autofill

import (
	"strings"

	"github.com/yanqian/formfiller/internal/domain/form"
	"github.com/yanqian/formfiller/internal/domain/llm"
)

const (
	choiceInstruction = "Return JSON only.\n" +
		`Single choice: {"answer": "ONE_OF_THE_OPTIONS_EXACTLY_AS_LISTED"}` + "\n" +
		`Multiple choice: {"answer": ["OPTION_1", "OPTION_2"]}`
	textInstruction = `Return JSON only: {"answer": "SHORT_TEXT"}`

	pingSystem = "Answer with one word."
	pingUser   = "ping"
)

// BuildMessages assembles the system prompt and a user message holding the
// shared section context, the Q->A history, the question and the answer
// format instructions.
func BuildMessages(system string, q form.Question, sectionCtx, history string) []llm.Message {
	var blocks []string
	if ctx := strings.TrimSpace(sectionCtx); ctx != "" {
		blocks = append(blocks, "Shared context:\n"+ctx)
	}
	if h := strings.TrimSpace(history); h != "" {
		blocks = append(blocks, h)
	}
	blocks = append(blocks, "Question:\n"+strings.TrimSpace(q.Text))

	var sb strings.Builder
	sb.WriteString(strings.Join(blocks, "\n\n"))
	sb.WriteString("\n\n")
	if q.Type.IsChoice() && len(q.Choices) > 0 {
		sb.WriteString("Options:\n")
		for i, opt := range q.Choices {
			if i > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString("- ")
			sb.WriteString(opt)
		}
		sb.WriteString("\n\n")
		sb.WriteString(choiceInstruction)
	} else {
		sb.WriteString(textInstruction)
	}

	return []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: sb.String()},
	}
}

func pingMessages() []llm.Message {
	return []llm.Message{
		{Role: llm.RoleSystem, Content: pingSystem},
		{Role: llm.RoleUser, Content: pingUser},
	}
}

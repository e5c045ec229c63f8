package chat

import (
	"strings"

	"github.com/RichardoC/padi-gateway/internal/models"
)

// BuildContext renders prior turns and the new prompt into the single text
// block sent to the completion service. With no history the prompt is
// returned unchanged.
func BuildContext(history []models.Message, prompt string) string {
	if len(history) == 0 {
		return prompt
	}

	turns := make([]string, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case models.RoleUser:
			turns = append(turns, "User: "+m.Content)
		case models.RoleAssistant:
			turns = append(turns, "Assistant: "+m.Content)
		}
	}

	var b strings.Builder
	b.WriteString("Previous conversation:\n")
	b.WriteString(strings.Join(turns, "\n"))
	b.WriteString("\n\nCurrent message:\n")
	b.WriteString(prompt)
	b.WriteString("\n\nPlease respond remembering our previous conversation and maintain context.")
	return b.String()
}

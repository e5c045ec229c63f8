package chat

import (
	"testing"

	"github.com/RichardoC/padi-gateway/internal/models"
	"github.com/stretchr/testify/require"
)

func TestBuildContext_WithHistory(t *testing.T) {
	history := []models.Message{
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleAssistant, Content: "hello"},
	}

	got := BuildContext(history, "how are you")

	require.Equal(t, "Previous conversation:\nUser: hi\nAssistant: hello\n\nCurrent message:\nhow are you\n\nPlease respond remembering our previous conversation and maintain context.", got)
}

func TestBuildContext_EmptyHistoryReturnsPrompt(t *testing.T) {
	require.Equal(t, "just the prompt", BuildContext(nil, "just the prompt"))
	require.Equal(t, "", BuildContext([]models.Message{}, ""))
}

func TestBuildContext_DropsUnknownRoles(t *testing.T) {
	history := []models.Message{
		{Role: "system", Content: "be nice"},
		{Role: models.RoleUser, Content: "ping"},
	}

	got := BuildContext(history, "again")

	require.Equal(t, "Previous conversation:\nUser: ping\n\nCurrent message:\nagain\n\nPlease respond remembering our previous conversation and maintain context.", got)
}

func TestTitles(t *testing.T) {
	short := "short prompt"
	long := "abcdefghijklmnopqrstuvwxyzabcdefghijklmnopqrstuvwxyz" // 52 runes
	exact := long[:50]

	require.Equal(t, short+"...", initialTitle(short))
	require.Equal(t, short, finalTitle(short))
	require.Equal(t, exact, finalTitle(exact))
	require.Equal(t, long[:50]+"...", finalTitle(long))
	require.Equal(t, long[:50]+"...", initialTitle(long))
}

func TestTitles_CountRunes(t *testing.T) {
	prompt := ""
	for i := 0; i < 51; i++ {
		prompt += "é"
	}

	got := finalTitle(prompt)

	require.Equal(t, string([]rune(prompt)[:50])+"...", got)
}

package notify

import (
	"strings"
	"testing"
	"unicode/utf8"

	goslack "github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/execution-core/pkg/models"
)

func TestBuildDeadLetterMessage_WithError(t *testing.T) {
	blocks := BuildDeadLetterMessage("exec-123", "ssh: connection refused", "https://dash.example.com")

	require.Len(t, blocks, 2)

	header := blocks[0].(*goslack.SectionBlock)
	assert.Contains(t, header.Text.Text, ":skull:")
	assert.Contains(t, header.Text.Text, "dead-lettered")
	assert.Contains(t, header.Text.Text, "https://dash.example.com/executions/exec-123")

	detail := blocks[1].(*goslack.SectionBlock)
	assert.Contains(t, detail.Text.Text, "ssh: connection refused")
}

func TestBuildDeadLetterMessage_NoError(t *testing.T) {
	blocks := BuildDeadLetterMessage("exec-124", "", "https://dash.example.com")
	require.Len(t, blocks, 1)
}

func TestBuildCancellationMessage_KnownReasons(t *testing.T) {
	cases := []struct {
		reason models.CancellationReason
		want   string
	}{
		{models.ReasonUserInitiated, "Cancelled by user"},
		{models.ReasonTimeout, "SLA timeout"},
		{models.ReasonSystemShutdown, "system shutdown"},
	}

	for _, tc := range cases {
		blocks := BuildCancellationMessage("exec-1", tc.reason, "", "https://dash.example.com")
		require.Len(t, blocks, 1)
		section := blocks[0].(*goslack.SectionBlock)
		assert.Contains(t, section.Text.Text, tc.want)
		assert.Contains(t, section.Text.Text, ":no_entry_sign:")
	}
}

func TestBuildCancellationMessage_WithMessage(t *testing.T) {
	blocks := BuildCancellationMessage("exec-1", models.ReasonError, "step 3 panicked", "https://dash.example.com")
	section := blocks[0].(*goslack.SectionBlock)
	assert.Contains(t, section.Text.Text, "step 3 panicked")
}

func TestBuildCancellationMessage_UnknownReasonFallsBack(t *testing.T) {
	blocks := BuildCancellationMessage("exec-1", models.CancellationReason("made-up"), "", "https://dash.example.com")
	section := blocks[0].(*goslack.SectionBlock)
	assert.Contains(t, section.Text.Text, "Execution cancelled")
}

func TestTruncateForSlack(t *testing.T) {
	t.Run("short text unchanged", func(t *testing.T) {
		assert.Equal(t, "hello", truncateForSlack("hello"))
	})

	t.Run("exact limit unchanged", func(t *testing.T) {
		text := strings.Repeat("a", maxBlockTextLength)
		assert.Equal(t, text, truncateForSlack(text))
	})

	t.Run("over limit truncated", func(t *testing.T) {
		text := strings.Repeat("a", maxBlockTextLength+100)
		result := truncateForSlack(text)
		assert.True(t, len(result) < len(text))
		assert.Contains(t, result, "truncated")
	})

	t.Run("multi-byte runes not split", func(t *testing.T) {
		text := strings.Repeat("\U0001F525", maxBlockTextLength+10)
		result := truncateForSlack(text)
		assert.Contains(t, result, "truncated")
		assert.True(t, utf8.ValidString(result), "result should be valid UTF-8")
	})
}

package notify

import (
	"fmt"

	goslack "github.com/slack-go/slack"

	"github.com/codeready-toolchain/execution-core/pkg/models"
)

const maxBlockTextLength = 2900

var cancellationLabel = map[models.CancellationReason]string{
	models.ReasonUserInitiated:  "Cancelled by user",
	models.ReasonTimeout:        "Cancelled: SLA timeout exceeded",
	models.ReasonSystemShutdown: "Cancelled: system shutdown",
	models.ReasonResourceLimit:  "Cancelled: resource limit reached",
	models.ReasonError:          "Cancelled: unrecoverable error",
	models.ReasonDuplicate:      "Cancelled: superseded by duplicate submission",
}

func executionURL(executionID, dashboardURL string) string {
	return fmt.Sprintf("%s/executions/%s", dashboardURL, executionID)
}

// BuildDeadLetterMessage creates Block Kit blocks alerting that an
// execution exhausted its retry budget and was dead-lettered.
func BuildDeadLetterMessage(executionID, finalError, dashboardURL string) []goslack.Block {
	url := executionURL(executionID, dashboardURL)
	header := fmt.Sprintf(":skull: *Execution dead-lettered*\n<%s|View in Dashboard>", url)

	blocks := []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, header, false, false),
			nil, nil,
		),
	}
	if finalError != "" {
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*Final error:*\n%s", truncateForSlack(finalError)), false, false),
			nil, nil,
		))
	}
	return blocks
}

// BuildCancellationMessage creates Block Kit blocks for a cancelled
// execution, labeled by the reason it was cancelled.
func BuildCancellationMessage(executionID string, reason models.CancellationReason, message, dashboardURL string) []goslack.Block {
	url := executionURL(executionID, dashboardURL)
	label := cancellationLabel[reason]
	if label == "" {
		label = "Execution cancelled"
	}

	text := fmt.Sprintf(":no_entry_sign: *%s*\n<%s|View in Dashboard>", label, url)
	if message != "" {
		text += fmt.Sprintf("\n%s", truncateForSlack(message))
	}

	return []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false),
			nil, nil,
		),
	}
}

func truncateForSlack(text string) string {
	if len(text) <= maxBlockTextLength {
		return text
	}
	return text[:maxBlockTextLength] + "\n\n_... (truncated — view full detail in dashboard)_"
}

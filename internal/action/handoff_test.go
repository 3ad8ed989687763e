package action

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gobby-dev/gobby/internal/model"
)

func TestFormatHandoffMarkdownDefaultOrdering(t *testing.T) {
	ctx := &model.HandoffContext{
		ActiveTaskRef: "#12",
		TodoState:     []string{"[x] write tests"},
		GitCommits:    []string{"abc1234 fix bug"},
		InitialGoal:   "ship the feature",
	}

	md := FormatHandoffMarkdown(ctx, "")
	require.Contains(t, md, "## Continuation Context")
	require.Contains(t, md, "### Active Task")
	require.Contains(t, md, "#12")
	require.Contains(t, md, "### Original Goal")
	require.Contains(t, md, "ship the feature")
}

func TestFormatHandoffMarkdownEmptyContext(t *testing.T) {
	md := FormatHandoffMarkdown(&model.HandoffContext{}, "")
	require.Equal(t, "## Continuation Context\n", md)
}

func TestFormatHandoffMarkdownCustomTemplate(t *testing.T) {
	ctx := &model.HandoffContext{InitialGoal: "ship it"}
	md := FormatHandoffMarkdown(ctx, "Summary:\n{{ initial_goal_section }}")
	require.Contains(t, md, "Summary:")
	require.Contains(t, md, "ship it")
}

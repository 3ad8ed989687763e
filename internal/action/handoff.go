package action

import (
	"context"
	"fmt"
	"strings"

	"github.com/gobby-dev/gobby/internal/gitutils"
	"github.com/gobby-dev/gobby/internal/model"
)

// extractHandoffContext implements spec.md §4.6's extract_handoff_context:
// parses the current session's JSONL transcript into a HandoffContext,
// enriches it with live git status/commits, renders it to markdown, and
// stores the result on session.compact_markdown.
func extractHandoffContext(ctx context.Context, actx *ActionContext, inputs map[string]interface{}) (Result, error) {
	if actx.Sessions == nil || actx.SessionID == "" {
		return nil, nil
	}

	sess, err := actx.Sessions.Get(ctx, actx.SessionID)
	if err != nil {
		return Result{"error": "session not found"}, nil
	}
	if sess.JSONLPath == "" {
		return Result{"error": "no transcript path"}, nil
	}

	handoff, err := ParseTranscript(sess.JSONLPath)
	if err != nil {
		return Result{"error": err.Error()}, nil
	}

	repoPath, _ := inputs["repo_path"].(string)
	if repoPath == "" {
		repoPath = "."
	}
	if handoff.GitStatus == "" {
		handoff.GitStatus = gitutils.Status(ctx, repoPath)
	}
	if commits := gitutils.RecentCommits(ctx, repoPath, 5); len(commits) > 0 {
		handoff.GitCommits = make([]string, 0, len(commits))
		for _, c := range commits {
			hash := c.Hash
			if len(hash) > 7 {
				hash = hash[:7]
			}
			handoff.GitCommits = append(handoff.GitCommits, fmt.Sprintf("%s %s", hash, c.Message))
		}
	}

	template, _ := inputs["template"].(string)
	markdown := FormatHandoffMarkdown(handoff, template)

	sess.CompactMarkdown = markdown
	if err := actx.Sessions.Update(ctx, sess); err != nil {
		return nil, err
	}

	return Result{"handoff_context_extracted": true, "markdown_length": len(markdown)}, nil
}

// FormatHandoffMarkdown renders a HandoffContext as markdown. If template
// is non-empty it is treated as a Go-style format string with
// `{{ section_name }}` placeholders for each section below; otherwise a
// fixed default ordering is used.
func FormatHandoffMarkdown(ctx *model.HandoffContext, template string) string {
	sections := map[string]string{}

	if ctx.ActiveTaskRef != "" {
		sections["active_task_section"] = fmt.Sprintf("### Active Task\n%s\n", ctx.ActiveTaskRef)
	}
	if len(ctx.TodoState) > 0 {
		var b strings.Builder
		b.WriteString("### In-Progress Work\n")
		for _, t := range ctx.TodoState {
			b.WriteString("- " + t + "\n")
		}
		sections["todo_state_section"] = b.String()
	}
	if len(ctx.GitCommits) > 0 {
		var b strings.Builder
		b.WriteString("### Commits This Session\n")
		for _, c := range ctx.GitCommits {
			b.WriteString("- `" + c + "`\n")
		}
		sections["git_commits_section"] = b.String()
	}
	if ctx.GitStatus != "" {
		sections["git_status_section"] = fmt.Sprintf("### Uncommitted Changes\n```\n%s\n```\n", ctx.GitStatus)
	}
	if len(ctx.FilesModified) > 0 {
		var b strings.Builder
		b.WriteString("### Files Being Modified\n")
		for _, f := range ctx.FilesModified {
			b.WriteString("- " + f + "\n")
		}
		sections["files_modified_section"] = b.String()
	}
	if ctx.InitialGoal != "" {
		sections["initial_goal_section"] = fmt.Sprintf("### Original Goal\n%s\n", ctx.InitialGoal)
	}
	if ctx.RecentActivity != "" {
		var b strings.Builder
		b.WriteString("### Recent Activity\n")
		for _, line := range strings.Split(ctx.RecentActivity, "\n") {
			b.WriteString("- " + line + "\n")
		}
		sections["recent_activity_section"] = b.String()
	}

	if template != "" {
		rendered := template
		for name, text := range sections {
			rendered = strings.ReplaceAll(rendered, "{{ "+name+" }}", text)
			rendered = strings.ReplaceAll(rendered, "{{"+name+"}}", text)
		}
		return strings.TrimSpace(rendered) + "\n"
	}

	order := []string{
		"active_task_section", "todo_state_section", "git_commits_section",
		"git_status_section", "files_modified_section", "initial_goal_section",
		"recent_activity_section",
	}
	var b strings.Builder
	b.WriteString("## Continuation Context\n\n")
	for _, name := range order {
		if s, ok := sections[name]; ok && s != "" {
			b.WriteString(s)
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

package hook

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/gobby-dev/gobby/internal/event"
	"github.com/gobby-dev/gobby/internal/model"
)

// skillCategory is the Prompt.Category bundled/user/project skills are
// stored under, resolved through Prompts at paths "skills/<name>".
const skillCategory = "skill"

// runEventHandlers implements step 2 of handle(): the per-event-type
// handlers of spec.md §4.12. It never touches the workflow engine; that is
// step 3, run separately by runWorkflows.
func (m *Manager) runEventHandlers(ctx context.Context, evt *event.HookEvent, sess *model.Session) *event.HookResponse {
	resp := event.Allow()

	switch evt.Type {
	case event.HookTypeBeforeAgent:
		m.handleBeforeAgent(ctx, evt, sess, resp)

	case event.HookTypeAfterAgent, event.HookTypeStop:
		m.setStatus(ctx, sess, model.SessionStatusPaused)

	case event.HookTypePreCompact:
		// Gemini's adapter fires PRE_COMPACT spuriously on every turn; a
		// real handoff point never reaches here for that source.
		if evt.Source != "gemini" {
			m.setStatus(ctx, sess, model.SessionStatusHandoffReady)
		}

	case event.HookTypeSubagentStart:
		m.Logger.Info("subagent started", "session_id", sess.ID, "parent_session_id", evt.ParentSessionID)

	case event.HookTypeSubagentStop:
		m.Logger.Info("subagent stopped", "session_id", sess.ID, "parent_session_id", evt.ParentSessionID)
	}

	return resp
}

func (m *Manager) setStatus(ctx context.Context, sess *model.Session, status model.SessionStatus) {
	if err := m.Sessions.SetStatus(ctx, sess, status); err != nil {
		m.Logger.Warn("setting session status failed", "session_id", sess.ID, "status", status, "error", err)
		return
	}
	sess.Status = status
}

// handleBeforeAgent implements the BEFORE_AGENT handler: intercepting
// `/gobby` / `/gobby:<skill>` commands, suggesting a relevant skill once
// its keyword-overlap score clears skillSuggestThreshold, and marking the
// session active for any prompt other than /clear or /exit.
func (m *Manager) handleBeforeAgent(ctx context.Context, evt *event.HookEvent, sess *model.Session, resp *event.HookResponse) {
	prompt := strings.TrimSpace(evt.Prompt)

	if prompt != "/clear" && prompt != "/exit" {
		m.setStatus(ctx, sess, model.SessionStatusActive)
	}

	if groups := commandPattern.FindStringSubmatch(prompt); groups != nil {
		m.handleGobbyCommand(ctx, sess, groups[1], strings.TrimSpace(groups[2]), resp)
		return
	}

	m.suggestSkill(ctx, sess, prompt, resp)
}

// handleGobbyCommand renders either the general /gobby help text or one
// named skill's content, blocking the event so the slash command never
// reaches the underlying model.
func (m *Manager) handleGobbyCommand(ctx context.Context, sess *model.Session, skillName, args string, resp *event.HookResponse) {
	if skillName == "" {
		resp.Decision = event.DecisionBlock
		resp.SystemMessage = m.gobbyHelpText(ctx, sess)
		return
	}

	if m.Prompts == nil {
		resp.Decision = event.DecisionBlock
		resp.SystemMessage = fmt.Sprintf("skill %q is unavailable: no prompt resolver configured", skillName)
		return
	}

	prompt, err := m.Prompts.ResolvePrompt(ctx, "skills/"+skillName, sess.ProjectID)
	if err != nil || prompt == nil {
		resp.Decision = event.DecisionBlock
		resp.SystemMessage = fmt.Sprintf("unknown skill %q", skillName)
		return
	}

	content := prompt.Content
	if args != "" {
		content = content + "\n\nArguments: " + args
	}
	resp.Decision = event.DecisionBlock
	resp.SystemMessage = content
}

func (m *Manager) gobbyHelpText(ctx context.Context, sess *model.Session) string {
	names := m.skillNames(ctx, sess)
	if len(names) == 0 {
		return "gobby: no skills are currently installed."
	}
	return "Available skills: " + strings.Join(names, ", ") + "\nUse /gobby:<skill> to invoke one."
}

func (m *Manager) skillNames(ctx context.Context, sess *model.Session) []string {
	if m.Prompts == nil {
		return nil
	}
	prompts, err := m.Prompts.ListPromptsByCategory(ctx, skillCategory)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(prompts))
	for _, p := range prompts {
		if p.ProjectID == "" || p.ProjectID == sess.ProjectID {
			names = append(names, p.Name)
		}
	}
	sort.Strings(names)
	return names
}

// suggestSkill surfaces a skill unsolicited when its name/description's
// keyword overlap with prompt clears skillSuggestThreshold. This is a
// pragmatic scorer, not semantic search: the example corpus carries no
// embedding/vector-similarity dependency, so relevance is approximated by
// token-set overlap (see DESIGN.md).
func (m *Manager) suggestSkill(ctx context.Context, sess *model.Session, prompt string, resp *event.HookResponse) {
	if m.Prompts == nil || prompt == "" {
		return
	}
	prompts, err := m.Prompts.ListPromptsByCategory(ctx, skillCategory)
	if err != nil || len(prompts) == 0 {
		return
	}

	promptTokens := tokenSet(prompt)
	if len(promptTokens) == 0 {
		return
	}

	var best *model.Prompt
	bestScore := 0.0
	for _, p := range prompts {
		if p.ProjectID != "" && p.ProjectID != sess.ProjectID {
			continue
		}
		score := overlapScore(promptTokens, tokenSet(p.Name+" "+p.Description))
		if score > bestScore {
			bestScore = score
			best = p
		}
	}

	if best == nil || bestScore < skillSuggestThreshold {
		return
	}
	resp.MergeContext(fmt.Sprintf("Skill suggestion: `/gobby:%s` looks relevant to this request (%s).", best.Name, best.Description))
}

func tokenSet(s string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		if len(f) > 2 {
			set[f] = true
		}
	}
	return set
}

// overlapScore is the Jaccard index of two token sets: |intersection| /
// |union|, zero when either set is empty.
func overlapScore(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for tok := range a {
		if b[tok] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

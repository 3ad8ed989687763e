package action

import (
	"bufio"
	"encoding/json"
	"os"
	"strings"

	"github.com/gobby-dev/gobby/internal/model"
)

// transcriptTurn is the subset of a CLI's JSONL transcript line formats we
// read: an assistant/user message with optional tool_use/tool_result blocks.
// Adapters disagree on exact shapes, so every field is read defensively.
type transcriptTurn struct {
	Type    string `json:"type"`
	Message struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"message"`
}

type contentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ParseTranscript reads a JSONL transcript file and extracts a
// HandoffContext: the active task reference, todo state, files modified,
// the initial user goal, and a recent-activity digest. Git status/commits
// are filled in separately from live repo state (see handoff.go).
func ParseTranscript(path string) (*model.HandoffContext, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ctx := &model.HandoffContext{}
	filesSeen := map[string]bool{}
	var activity []string
	todoSeen := false

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var turn transcriptTurn
		if err := json.Unmarshal([]byte(line), &turn); err != nil {
			continue
		}

		var blocks []contentBlock
		if len(turn.Message.Content) > 0 {
			if turn.Message.Content[0] == '[' {
				_ = json.Unmarshal(turn.Message.Content, &blocks)
			} else {
				var text string
				if err := json.Unmarshal(turn.Message.Content, &text); err == nil {
					blocks = []contentBlock{{Type: "text", Text: text}}
				}
			}
		}

		for _, b := range blocks {
			switch b.Type {
			case "text":
				if b.Text == "" {
					continue
				}
				if turn.Message.Role == "user" && ctx.InitialGoal == "" {
					ctx.InitialGoal = firstLine(b.Text, 400)
				}
				activity = append(activity, summarize(turn.Message.Role, b.Text))

			case "tool_use":
				switch b.Name {
				case "TodoWrite":
					if !todoSeen {
						todoSeen = true
					}
					ctx.TodoState = extractTodoState(b.Input)
				case "Edit", "Write", "MultiEdit", "NotebookEdit":
					if path := extractFilePath(b.Input); path != "" && !filesSeen[path] {
						filesSeen[path] = true
						ctx.FilesModified = append(ctx.FilesModified, path)
					}
				case "gobby_task_get", "gobby_task_update":
					if ref := extractTaskRef(b.Input); ref != "" {
						ctx.ActiveTaskRef = ref
					}
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if n := len(activity); n > 0 {
		if n > 5 {
			activity = activity[n-5:]
		}
		ctx.RecentActivity = strings.Join(activity, "\n")
	}
	return ctx, nil
}

func firstLine(s string, maxLen int) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return strings.TrimSpace(s)
}

func summarize(role, text string) string {
	return role + ": " + firstLine(text, 200)
}

func extractFilePath(input json.RawMessage) string {
	var v struct {
		FilePath string `json:"file_path"`
	}
	if err := json.Unmarshal(input, &v); err != nil {
		return ""
	}
	return v.FilePath
}

func extractTaskRef(input json.RawMessage) string {
	var v struct {
		TaskRef string `json:"task_ref"`
		ID      string `json:"id"`
	}
	if err := json.Unmarshal(input, &v); err != nil {
		return ""
	}
	if v.TaskRef != "" {
		return v.TaskRef
	}
	return v.ID
}

func extractTodoState(input json.RawMessage) []string {
	var v struct {
		Todos []struct {
			Content string `json:"content"`
			Status  string `json:"status"`
		} `json:"todos"`
	}
	if err := json.Unmarshal(input, &v); err != nil {
		return nil
	}
	out := make([]string, 0, len(v.Todos))
	for _, t := range v.Todos {
		marker := " "
		switch t.Status {
		case "completed":
			marker = "x"
		case "in_progress":
			marker = ">"
		}
		out = append(out, "["+marker+"] "+t.Content)
	}
	return out
}

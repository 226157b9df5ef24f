package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/planner.txt
	plannerRaw string

	//go:embed template/reply.txt
	replyRaw string

	//go:embed template/toolreply.txt
	toolReplyRaw string
)

// PromptSet holds loaded prompt content.
type PromptSet struct {
	Planner   string
	Reply     string
	ToolReply string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
// This is safe to call concurrently; the embed is compile-time, and trimming is cheap.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Planner:   strings.TrimSpace(plannerRaw),
		Reply:     strings.TrimSpace(replyRaw),
		ToolReply: strings.TrimSpace(toolReplyRaw),
	}
}

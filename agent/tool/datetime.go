package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"
	contractx "github.com/wrenhq/wren/agent/contract"
)

const ToolCurrentDateTime = "current_datetime"

// CurrentDateTimeTool reports the current UTC date and time. It needs no
// credentials and never fails.
type CurrentDateTimeTool struct {
	now func() time.Time
}

func NewCurrentDateTimeTool() *CurrentDateTimeTool {
	return &CurrentDateTimeTool{now: time.Now}
}

func (t *CurrentDateTimeTool) Name() string {
	return ToolCurrentDateTime
}

func (t *CurrentDateTimeTool) Invoke(ctx context.Context, _ map[string]any) (contractx.ToolOutcome, error) {
	now := t.now().UTC()
	text := fmt.Sprintf(
		"Current UTC datetime: %s\nCurrent UTC date: %s\nCurrent UTC year: %d",
		now.Format(time.RFC3339),
		now.Format("2006-01-02"),
		now.Year(),
	)
	return contractx.ToolOutcome{
		Tool:    ToolCurrentDateTime,
		Text:    text,
		Success: true,
	}, nil
}

func currentDateTimeInfo() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: ToolCurrentDateTime,
		Desc: "Report the current UTC date and time.",
	}
}

func currentDateTimeUsage() Usage {
	return Usage{
		WhenToUse:    "The user asks about the current date, time, or year.",
		WhenNotToUse: "The message has no time-sensitive component.",
	}
}

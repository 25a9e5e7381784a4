package tools

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/tools"
)

var datetimeLogger = logrus.WithField("tool", "datetime")

type DateTimeTool struct {
	now func() time.Time
}

func NewDateTimeTool() *DateTimeTool {
	datetimeLogger.Debug("Initializing datetime tool")
	return &DateTimeTool{now: time.Now}
}

func (d *DateTimeTool) Description() string {
	return "Display the current date and time. Input 'utc' for UTC, anything else for server local time."
}

func (d *DateTimeTool) Name() string {
	return "datetime"
}

func (d *DateTimeTool) Call(ctx context.Context, input string) (string, error) {
	datetimeLogger.WithField("input", input).Debug("DateTime tool called")

	now := d.now()
	if strings.EqualFold(strings.TrimSpace(input), "utc") {
		now = now.UTC()
	}
	return now.Format("Monday, 02 January 2006 15:04:05 MST"), nil
}

var _ tools.Tool = (*DateTimeTool)(nil)

package tools

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/tools"
)

// catMaxLines bounds how much of a file is returned to the model.
const catMaxLines = 200

var catLogger = logrus.WithField("tool", "cat")

type CatTool struct {
	workspace *Workspace
}

func NewCatTool(ws *Workspace) *CatTool {
	catLogger.WithField("workspace", ws.Root()).Debug("Initializing cat tool")
	return &CatTool{workspace: ws}
}

func (c *CatTool) Description() string {
	return fmt.Sprintf("Display the contents of a workspace file. Provide a file path. Only the first %d lines are shown.", catMaxLines)
}

func (c *CatTool) Name() string {
	return "cat"
}

func (c *CatTool) Call(ctx context.Context, input string) (string, error) {
	toolLogger := catLogger.WithField("input", input)
	startTime := time.Now()

	if strings.TrimSpace(input) == "" {
		toolLogger.Warn("Empty file path provided")
		return "Error: Please provide a file path", nil
	}

	targetPath, err := c.workspace.Resolve(input)
	if err != nil {
		toolLogger.WithError(err).Warn("cat rejected path")
		return "Error: " + err.Error(), nil
	}

	f, err := os.Open(targetPath)
	if err != nil {
		return "Error: " + err.Error(), nil
	}
	defer f.Close()

	var b strings.Builder
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lines := 0
	for scanner.Scan() {
		if lines == catMaxLines {
			fmt.Fprintf(&b, "... (truncated after %d lines)\n", catMaxLines)
			break
		}
		b.WriteString(scanner.Text())
		b.WriteByte('\n')
		lines++
	}
	if err := scanner.Err(); err != nil {
		return "Error: " + err.Error(), nil
	}

	toolLogger.WithFields(logrus.Fields{
		"targetPath":    targetPath,
		"lines":         lines,
		"executionTime": time.Since(startTime),
	}).Debug("cat completed")

	return b.String(), nil
}

var _ tools.Tool = (*CatTool)(nil)

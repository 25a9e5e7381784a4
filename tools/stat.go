package tools

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/tools"
)

var statLogger = logrus.WithField("tool", "stat")

type StatTool struct {
	workspace *Workspace
}

func NewStatTool(ws *Workspace) *StatTool {
	statLogger.WithField("workspace", ws.Root()).Debug("Initializing stat tool")
	return &StatTool{workspace: ws}
}

func (s *StatTool) Description() string {
	return "Display file or directory information: type, size, permissions and modification time. Provide a workspace path."
}

func (s *StatTool) Name() string {
	return "stat"
}

func (s *StatTool) Call(ctx context.Context, input string) (string, error) {
	toolLogger := statLogger.WithField("input", input)

	if strings.TrimSpace(input) == "" {
		toolLogger.Warn("Empty path provided")
		return "Error: Please provide a file or directory path", nil
	}

	targetPath, err := s.workspace.Resolve(input)
	if err != nil {
		toolLogger.WithError(err).Warn("stat rejected path")
		return "Error: " + err.Error(), nil
	}

	info, err := os.Stat(targetPath)
	if err != nil {
		return "Error: " + err.Error(), nil
	}

	kind := "regular file"
	if info.IsDir() {
		kind = "directory"
	}
	return fmt.Sprintf("File: %s\nType: %s\nSize: %d\nMode: %s\nModified: %s",
		strings.TrimSpace(input), kind, info.Size(), info.Mode(), info.ModTime().Format("2006-01-02 15:04:05 MST")), nil
}

var _ tools.Tool = (*StatTool)(nil)

package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/tools"
)

var lsLogger = logrus.WithField("tool", "ls")

type LsTool struct {
	workspace *Workspace
}

func NewLsTool(ws *Workspace) *LsTool {
	lsLogger.WithField("workspace", ws.Root()).Debug("Initializing ls tool")
	return &LsTool{workspace: ws}
}

func (l *LsTool) Description() string {
	return "List files and directories in the workspace. Use empty input or '.' for the workspace root, or provide a directory path relative to it."
}

func (l *LsTool) Name() string {
	return "ls"
}

func (l *LsTool) Call(ctx context.Context, input string) (string, error) {
	toolLogger := lsLogger.WithField("input", input)
	startTime := time.Now()

	targetPath, err := l.workspace.Resolve(input)
	if err != nil {
		toolLogger.WithError(err).Warn("ls rejected path")
		return "Error: " + err.Error(), nil
	}

	info, err := os.Stat(targetPath)
	if err != nil {
		return "Error: " + err.Error(), nil
	}
	if !info.IsDir() {
		return formatEntry(filepath.Base(targetPath), info), nil
	}

	entries, err := os.ReadDir(targetPath)
	if err != nil {
		toolLogger.WithError(err).WithField("targetPath", targetPath).Warn("ls failed")
		return "Error: " + err.Error(), nil
	}

	var b strings.Builder
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		b.WriteString(formatEntry(e.Name(), info))
		b.WriteByte('\n')
	}
	if b.Len() == 0 {
		b.WriteString("(empty directory)")
	}

	toolLogger.WithFields(logrus.Fields{
		"targetPath":    targetPath,
		"entries":       len(entries),
		"executionTime": time.Since(startTime),
	}).Debug("ls completed")

	return strings.TrimRight(b.String(), "\n"), nil
}

func formatEntry(name string, info os.FileInfo) string {
	if info.IsDir() {
		name += "/"
	}
	return fmt.Sprintf("%s %10d %s %s", info.Mode(), info.Size(), info.ModTime().Format("2006-01-02 15:04"), name)
}

var _ tools.Tool = (*LsTool)(nil)

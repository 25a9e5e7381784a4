/*
Package tools provides text search over the workspace.

This file implements the GrepTool, which searches workspace files for a
regular expression. Directories are walked recursively; binary files and
hidden directories are skipped, and the number of reported matches is
capped so a broad pattern cannot flood the model's context.
*/
package tools

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/tools"
)

// grepMaxMatches caps the lines returned for a single search.
const grepMaxMatches = 100

var errMatchLimit = errors.New("match limit reached")

// grepLogger provides structured logging for all grep operations
var grepLogger = logrus.WithField("tool", "grep")

// GrepTool searches workspace files for a pattern.
type GrepTool struct {
	workspace *Workspace
}

// NewGrepTool creates a grep tool confined to ws.
func NewGrepTool(ws *Workspace) *GrepTool {
	grepLogger.WithField("workspace", ws.Root()).Debug("Initializing grep tool")
	return &GrepTool{workspace: ws}
}

// Description tells the agent how to invoke the tool.
func (g *GrepTool) Description() string {
	return "Search for a regular expression in workspace files. Format: 'pattern path' or 'pattern' to search the whole workspace."
}

// Name returns the identifier for this tool.
func (g *GrepTool) Name() string {
	return "grep"
}

// Call runs a search. Input is a pattern optionally followed by a path.
//
// Returns:
//   - string: Matching lines as "relative/path:line: text"
//   - error: Only the context error when the turn is cancelled
func (g *GrepTool) Call(ctx context.Context, input string) (string, error) {
	toolLogger := grepLogger.WithField("input", input)
	startTime := time.Now()

	parts := strings.SplitN(strings.TrimSpace(input), " ", 2)
	if parts[0] == "" {
		toolLogger.Warn("Empty search pattern provided")
		return "Error: Please provide a search pattern", nil
	}

	re, err := regexp.Compile(parts[0])
	if err != nil {
		return "Error: invalid pattern: " + err.Error(), nil
	}

	target := ""
	if len(parts) == 2 {
		target = parts[1]
	}
	root, err := g.workspace.Resolve(target)
	if err != nil {
		toolLogger.WithError(err).Warn("grep rejected path")
		return "Error: " + err.Error(), nil
	}

	var matches []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			// Links may point outside the workspace.
			return nil
		}
		return g.searchFile(path, re, &matches)
	})
	if walkErr != nil && !errors.Is(walkErr, errMatchLimit) {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "Error: " + walkErr.Error(), nil
	}

	toolLogger.WithFields(logrus.Fields{
		"pattern":       parts[0],
		"matches":       len(matches),
		"executionTime": time.Since(startTime),
	}).Debug("grep completed")

	if len(matches) == 0 {
		return "No matches found", nil
	}
	out := strings.Join(matches, "\n")
	if errors.Is(walkErr, errMatchLimit) {
		out += fmt.Sprintf("\n... (stopped after %d matches)", grepMaxMatches)
	}
	return out, nil
}

func (g *GrepTool) searchFile(path string, re *regexp.Regexp, matches *[]string) error {
	data, err := os.ReadFile(path)
	if err != nil || bytes.IndexByte(data, 0) >= 0 {
		return nil
	}

	rel, err := filepath.Rel(g.workspace.Root(), path)
	if err != nil {
		rel = path
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for n := 1; scanner.Scan(); n++ {
		line := scanner.Text()
		if !re.MatchString(line) {
			continue
		}
		*matches = append(*matches, fmt.Sprintf("%s:%d: %s", filepath.ToSlash(rel), n, line))
		if len(*matches) >= grepMaxMatches {
			return errMatchLimit
		}
	}
	return nil
}

// Ensure GrepTool implements the tools.Tool interface
var _ tools.Tool = (*GrepTool)(nil)

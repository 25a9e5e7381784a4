/*
Package tools provides the workspace tools an agent may declare in the
"tools" list of its definition file.

Every tool operates inside a single workspace directory. Paths given by the
model are resolved relative to the workspace root and rejected if they
escape it, so a persona can read project files without reaching the rest of
the host.

Tools report problems to the model as text output rather than errors, which
lets the agent recover and try another input.
*/
package tools

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/tools"
)

// ErrOutsideWorkspace is returned when a path resolves outside the root.
var ErrOutsideWorkspace = errors.New("path is outside the workspace")

// Workspace is the directory the tools are confined to.
type Workspace struct {
	root     string
	realRoot string // root with symlinks evaluated
}

// NewWorkspace creates a workspace rooted at dir.
func NewWorkspace(dir string) (*Workspace, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	root = filepath.Clean(root)
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		realRoot = root
	}
	return &Workspace{root: root, realRoot: realRoot}, nil
}

// Root returns the absolute workspace root.
func (w *Workspace) Root() string {
	return w.root
}

// Resolve maps a model-supplied path to an absolute path inside the
// workspace. Empty input and "none" mean the root itself.
func (w *Workspace) Resolve(input string) (string, error) {
	p := strings.TrimSpace(input)
	if p == "" || strings.EqualFold(p, "none") || p == "." {
		return w.root, nil
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(w.root, p)
	}
	p = filepath.Clean(p)

	if !within(w.root, p) {
		return "", ErrOutsideWorkspace
	}
	resolved, err := realPath(p)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", input, err)
	}
	if !within(w.realRoot, resolved) {
		return "", ErrOutsideWorkspace
	}
	return p, nil
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// realPath evaluates the symlinks of p. Missing trailing elements are kept
// as they are, appended to the real path of the deepest existing ancestor.
func realPath(p string) (string, error) {
	resolved, err := filepath.EvalSymlinks(p)
	if err == nil {
		return resolved, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}
	if _, lerr := os.Lstat(p); lerr == nil {
		// p exists but its target does not: a dangling link.
		target, err := os.Readlink(p)
		if err != nil {
			return "", err
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(p), target)
		}
		return realPath(filepath.Clean(target))
	}
	parent := filepath.Dir(p)
	if parent == p {
		return p, nil
	}
	realParent, err := realPath(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(realParent, filepath.Base(p)), nil
}

// Registry holds the tools available to agents, keyed by name.
type Registry struct {
	tools  map[string]tools.Tool
	logger *logrus.Entry
}

// NewRegistry returns a registry with the built-in workspace tools.
func NewRegistry(ws *Workspace, logger *logrus.Logger) *Registry {
	r := &Registry{
		tools:  make(map[string]tools.Tool),
		logger: logger.WithField("component", "tools"),
	}
	for _, t := range []tools.Tool{
		NewDateTimeTool(),
		NewLsTool(ws),
		NewCatTool(ws),
		NewGrepTool(ws),
		NewStatTool(ws),
	} {
		r.Register(t)
	}
	r.logger.WithFields(logrus.Fields{
		"workspace": ws.Root(),
		"tools":     strings.Join(r.Names(), ", "),
	}).Info("Tools initialized")
	return r
}

// Register adds or replaces a tool.
func (r *Registry) Register(t tools.Tool) {
	r.tools[strings.ToLower(t.Name())] = t
}

// Names lists registered tool names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the tools matching names, case-insensitively and without
// duplicates, plus the names that matched nothing.
func (r *Registry) Resolve(names []string) ([]tools.Tool, []string) {
	var found []tools.Tool
	var missing []string
	seen := make(map[string]bool)

	for _, name := range names {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		if t, ok := r.tools[key]; ok {
			found = append(found, t)
		} else {
			missing = append(missing, name)
		}
	}
	return found, missing
}

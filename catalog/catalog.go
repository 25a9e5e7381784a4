package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// FileSuffix marks a file in the agents directory as a definition.
const FileSuffix = ".agent.md"

// Catalog maps agent IDs to records. It is populated once by Load and
// never mutated afterwards, so it is safe to share between connections.
type Catalog struct {
	agents map[string]AgentRecord
}

// New builds a catalog from already parsed records. Later records replace
// earlier ones that share an ID.
func New(records ...AgentRecord) *Catalog {
	c := &Catalog{agents: make(map[string]AgentRecord, len(records))}
	for _, r := range records {
		c.agents[r.ID] = r
	}
	return c
}

// Load reads every definition file in dir and returns the resulting catalog.
//
// Load never fails. A missing or unreadable directory is logged and yields
// an empty catalog; a malformed file is skipped with a warning; a file
// without a name is dropped silently. When two files normalize to the same
// ID the later file (in name order) wins and a warning names both.
//
// Parameters:
//   - dir: Directory containing *.agent.md files
//   - logger: Logger for load diagnostics
//
// Returns:
//   - *Catalog: Read-only catalog, possibly empty
func Load(dir string, logger *logrus.Logger) *Catalog {
	loadLogger := logger.WithFields(logrus.Fields{
		"component": "catalog",
		"dir":       dir,
	})

	c := New()
	sources := make(map[string]string)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			loadLogger.Warn("Agents directory not found, no agents loaded")
		} else {
			loadLogger.WithError(err).Error("Error loading agents")
		}
		return c
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || e.Name() == "README.md" || !strings.HasSuffix(e.Name(), FileSuffix) {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)

	for _, file := range files {
		fileLogger := loadLogger.WithField("file", file)

		data, err := os.ReadFile(filepath.Join(dir, file))
		if err != nil {
			fileLogger.WithError(err).Warn("Skipping unreadable agent file")
			continue
		}

		record, ok, err := ParseRecord(string(data))
		if err != nil {
			fileLogger.WithError(err).Warn("Skipping agent file: invalid format")
			continue
		}
		if !ok {
			continue
		}

		if previous, exists := sources[record.ID]; exists {
			fileLogger.WithFields(logrus.Fields{
				"agentId":      record.ID,
				"replacedFile": previous,
			}).Warn("Duplicate agent ID, later definition replaces earlier one")
		}
		sources[record.ID] = file
		c.agents[record.ID] = record

		fileLogger.WithFields(logrus.Fields{
			"agentId":            record.ID,
			"name":               record.Name,
			"description":        record.Description,
			"toolCount":          len(record.Tools),
			"instructionsLength": len(record.Instructions),
		}).Debug("Agent definition parsed")
	}

	loadLogger.WithFields(logrus.Fields{
		"count":  c.Len(),
		"agents": strings.Join(c.IDs(), ", "),
	}).Info("Loaded agents")

	return c
}

// Get looks up an agent by ID.
func (c *Catalog) Get(id string) (AgentRecord, bool) {
	r, ok := c.agents[id]
	return r, ok
}

// Len reports how many agents are loaded.
func (c *Catalog) Len() int {
	return len(c.agents)
}

// IDs returns all agent IDs in sorted order.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.agents))
	for id := range c.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// List returns public summaries sorted by ID.
func (c *Catalog) List() []Summary {
	list := make([]Summary, 0, len(c.agents))
	for _, id := range c.IDs() {
		r := c.agents[id]
		list = append(list, Summary{ID: r.ID, Name: r.Name, Description: r.Description})
	}
	return list
}

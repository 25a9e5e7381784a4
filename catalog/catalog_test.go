package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() (*logrus.Logger, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return logger, hook
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestNormalizeID(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Reviewer", "reviewer"},
		{"Code Reviewer", "code_reviewer"},
		{"code   reviewer", "code_reviewer"},
		{"CODE\treviewer", "code_reviewer"},
		{"Multi Word  Agent\nName", "multi_word_agent_name"},
		{"Code\u00a0Reviewer", "code_reviewer"},
		{"Code\u2003\u3000Reviewer", "code_reviewer"},
		{"code\vreviewer", "code_reviewer"},
		{"line\u2028sep", "line_sep"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeID(tt.name))
		})
	}

	assert.Equal(t, NormalizeID("Code Reviewer"), NormalizeID("code\t  REVIEWER"))
}

func TestParseMetadata(t *testing.T) {
	md := ParseMetadata("name: Reviewer\ndescription: checks: everything\n: orphan\nno colon here\ntools: ['lint', \"fmt\"]\nbroken: [not json\n")

	assert.Equal(t, "Reviewer", md["name"].String())
	assert.Equal(t, "checks: everything", md["description"].String())
	assert.Equal(t, []string{"lint", "fmt"}, md["tools"].Strings())

	broken := md["broken"]
	assert.False(t, broken.IsList)
	assert.Equal(t, "[not json", broken.String())
	assert.Nil(t, broken.Strings())

	_, hasEmptyKey := md[""]
	assert.False(t, hasEmptyKey)
	assert.Len(t, md, 4)
}

func TestParseRecord(t *testing.T) {
	t.Run("well formed", func(t *testing.T) {
		rec, ok, err := ParseRecord("---\nname: Reviewer\ndescription: reviews code\ntools: [\"lint\"]\n---\nCheck the code.\n")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, AgentRecord{
			ID:           "reviewer",
			Name:         "Reviewer",
			Description:  "reviews code",
			Tools:        []string{"lint"},
			Instructions: "Check the code.",
		}, rec)
	})

	t.Run("body keeps delimiter", func(t *testing.T) {
		rec, ok, err := ParseRecord("---\nname: Writer\n---\nPart one\n---\nPart two\n")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "Part one\n---\nPart two", rec.Instructions)
	})

	t.Run("missing name dropped", func(t *testing.T) {
		_, ok, err := ParseRecord("---\ndescription: nameless\n---\nBody\n")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("single fragment invalid", func(t *testing.T) {
		_, _, err := ParseRecord("---\nname: Lonely\n---\n   \n")
		assert.ErrorIs(t, err, ErrInvalidFormat)
	})

	t.Run("unparseable tools yields none", func(t *testing.T) {
		rec, ok, err := ParseRecord("---\nname: A\ntools: [oops\n---\nBody")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Empty(t, rec.Tools)
		assert.NotNil(t, rec.Tools)
	})

	t.Run("defaults", func(t *testing.T) {
		rec, ok, err := ParseRecord("---\nname: Plain\n---\nBody")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "", rec.Description)
		assert.Equal(t, []string{}, rec.Tools)
	})
}

func TestLoad(t *testing.T) {
	t.Run("single record", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "reviewer.agent.md", "---\nname: Reviewer\ndescription: reviews code\ntools: [\"lint\"]\n---\nCheck the code.\n")

		logger, _ := newTestLogger()
		c := Load(dir, logger)

		require.Equal(t, 1, c.Len())
		rec, ok := c.Get("reviewer")
		require.True(t, ok)
		assert.Equal(t, "reviewer", rec.ID)
		assert.Equal(t, []string{"lint"}, rec.Tools)
		assert.Equal(t, "Check the code.", rec.Instructions)
	})

	t.Run("filters files", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "README.md", "---\nname: Readme\n---\nbody")
		writeFile(t, dir, "notes.md", "---\nname: Notes\n---\nbody")
		writeFile(t, dir, "nameless.agent.md", "---\ndescription: x\n---\nbody")
		writeFile(t, dir, "bad.agent.md", "just text")
		require.NoError(t, os.Mkdir(filepath.Join(dir, "dir.agent.md"), 0o755))
		writeFile(t, dir, "good.agent.md", "---\nname: Good One\n---\nbody")

		logger, hook := newTestLogger()
		c := Load(dir, logger)

		assert.Equal(t, []string{"good_one"}, c.IDs())

		var warnings []string
		for _, e := range hook.AllEntries() {
			if e.Level == logrus.WarnLevel {
				warnings = append(warnings, e.Data["file"].(string))
			}
		}
		assert.Equal(t, []string{"bad.agent.md"}, warnings)
	})

	t.Run("collision last wins", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "a.agent.md", "---\nname: Code Reviewer\n---\nfirst")
		writeFile(t, dir, "b.agent.md", "---\nname: code   reviewer\n---\nsecond")

		logger, hook := newTestLogger()
		c := Load(dir, logger)

		require.Equal(t, 1, c.Len())
		rec, _ := c.Get("code_reviewer")
		assert.Equal(t, "second", rec.Instructions)
		assert.Equal(t, "code   reviewer", rec.Name)

		found := false
		for _, e := range hook.AllEntries() {
			if e.Level == logrus.WarnLevel && e.Data["replacedFile"] == "a.agent.md" {
				found = true
			}
		}
		assert.True(t, found, "expected duplicate warning")
	})

	t.Run("missing directory", func(t *testing.T) {
		logger, _ := newTestLogger()
		c := Load(filepath.Join(t.TempDir(), "nope"), logger)
		require.NotNil(t, c)
		assert.Equal(t, 0, c.Len())
		assert.Empty(t, c.List())
	})
}

func TestCatalogList(t *testing.T) {
	c := New(
		AgentRecord{ID: "zeta", Name: "Zeta", Description: "last"},
		AgentRecord{ID: "alpha", Name: "Alpha", Description: "first", Instructions: "secret"},
	)
	assert.Equal(t, []Summary{
		{ID: "alpha", Name: "Alpha", Description: "first"},
		{ID: "zeta", Name: "Zeta", Description: "last"},
	}, c.List())
}

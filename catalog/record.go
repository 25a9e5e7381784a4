/*
Package catalog loads agent persona definitions for the chat gateway.

An agent definition is a markdown file whose name ends in ".agent.md". The
file opens with a metadata block fenced by "---" lines, followed by the
instruction body that becomes the persona's system message:

	---
	name: Code Reviewer
	description: Reviews pull requests
	tools: ['grep', 'cat']
	---
	You review code. Be precise.

The metadata block is read as simple "key: value" lines rather than full
YAML so that values like descriptions containing colons survive unchanged.
Bracketed values are decoded as JSON lists after single quotes are
normalized to double quotes.
*/
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Delimiter separates the metadata block from the instruction body.
const Delimiter = "---"

// ErrInvalidFormat is returned when a definition does not contain both a
// metadata block and a body.
var ErrInvalidFormat = errors.New("invalid agent definition format")

// AgentRecord is a single persona parsed from a definition file.
// Records are immutable once loaded into a Catalog.
type AgentRecord struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Tools        []string `json:"tools"`
	Instructions string   `json:"instructions"`
}

// Summary is the public view of an agent served by /api/agents.
type Summary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Value is one metadata value. List is set when the raw text was a
// bracketed literal that decoded cleanly; otherwise only Raw is meaningful.
type Value struct {
	Raw    string
	List   []any
	IsList bool
}

// String returns the value as plain text.
func (v Value) String() string {
	return v.Raw
}

// Strings renders a list value as strings. Non-list values yield nil.
func (v Value) Strings() []string {
	if !v.IsList {
		return nil
	}
	out := make([]string, 0, len(v.List))
	for _, item := range v.List {
		switch s := item.(type) {
		case string:
			out = append(out, s)
		case nil:
			continue
		default:
			out = append(out, fmt.Sprint(s))
		}
	}
	return out
}

// whitespaceRun matches Unicode space separators as well as ASCII
// whitespace, so names pasted with non-breaking spaces normalize the same.
var whitespaceRun = regexp.MustCompile(`[\t\n\v\f\r\p{Zs}\x{2028}\x{2029}\x{feff}]+`)

// NormalizeID derives an agent identifier from its display name: lowercased,
// with every run of whitespace collapsed into a single underscore.
func NormalizeID(name string) string {
	return whitespaceRun.ReplaceAllString(strings.ToLower(name), "_")
}

// ParseMetadata reads "key: value" lines. The first colon splits key from
// value and must not be the first character; other lines are ignored.
func ParseMetadata(block string) map[string]Value {
	metadata := make(map[string]Value)
	for _, line := range strings.Split(block, "\n") {
		idx := strings.Index(line, ":")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		raw := strings.TrimSpace(line[idx+1:])
		metadata[key] = parseValue(raw)
	}
	return metadata
}

func parseValue(raw string) Value {
	v := Value{Raw: raw}
	if !strings.HasPrefix(raw, "[") {
		return v
	}
	var list []any
	if err := json.Unmarshal([]byte(strings.ReplaceAll(raw, "'", `"`)), &list); err != nil {
		return v
	}
	v.List = list
	v.IsList = true
	return v
}

// ParseRecord parses the content of one definition file.
//
// It returns ErrInvalidFormat when the content has fewer than two non-empty
// fragments around the delimiter. A definition without a name is not an
// error: ok is false and the record should be dropped.
//
// The instruction body is reassembled from every fragment after the
// metadata block, so a body that itself contains "---" is kept verbatim.
func ParseRecord(content string) (record AgentRecord, ok bool, err error) {
	var parts []string
	for _, part := range strings.Split(content, Delimiter) {
		if strings.TrimSpace(part) != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) < 2 {
		return AgentRecord{}, false, ErrInvalidFormat
	}

	metadata := ParseMetadata(parts[0])
	instructions := strings.TrimSpace(strings.Join(parts[1:], Delimiter))

	name := metadata["name"].String()
	if name == "" {
		return AgentRecord{}, false, nil
	}

	tools := metadata["tools"].Strings()
	if tools == nil {
		tools = []string{}
	}

	return AgentRecord{
		ID:           NormalizeID(name),
		Name:         name,
		Description:  metadata["description"].String(),
		Tools:        tools,
		Instructions: instructions,
	}, true, nil
}

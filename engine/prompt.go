package engine

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/prompts"
	"github.com/tmc/langchaingo/tools"
)

// Prompt for sessions whose agent declares tools. The persona text is a
// partial variable rather than part of the template so that braces in agent
// instructions are never interpreted as template actions.
const (
	toolPromptPrefix = `Today is {{.today}}.
{{.persona}}

You can use the following tools to answer the user's request:
{{.tool_descriptions}}`

	toolPromptFormatInstructions = `Use this format EXACTLY:

Thought: [your reasoning about what to do next]
Action: [one of: {{.tool_names}}]
Action Input: [the input for the tool]
Observation: [the tool result]
... (Thought/Action/Action Input/Observation may repeat)
Thought: I now know the final answer
Final Answer: [your answer to the user]

Only use these keywords: "Thought:", "Action:", "Action Input:", "Observation:", "Final Answer:".
If no tool is needed, go straight to "Final Answer:".`

	toolPromptSuffix = `Question: {{.input}}
Thought:{{.agent_scratchpad}}`

	defaultPersona = "You are a helpful assistant."
)

// CreateToolPrompt builds the ReAct prompt for a tool-using session.
func CreateToolPrompt(toolList []tools.Tool, persona string) prompts.PromptTemplate {
	var toolNames []string
	var toolDescriptions []string

	for _, tool := range toolList {
		toolNames = append(toolNames, tool.Name())
		toolDescriptions = append(toolDescriptions, fmt.Sprintf("- %s: %s", tool.Name(), tool.Description()))
	}

	if strings.TrimSpace(persona) == "" {
		persona = defaultPersona
	}

	template := strings.Join([]string{toolPromptPrefix, toolPromptFormatInstructions, toolPromptSuffix}, "\n\n")

	return prompts.PromptTemplate{
		Template:       template,
		TemplateFormat: prompts.TemplateFormatGoTemplate,
		InputVariables: []string{"input", "agent_scratchpad", "today"},
		PartialVariables: map[string]any{
			"persona":           persona,
			"tool_names":        strings.Join(toolNames, ", "),
			"tool_descriptions": strings.Join(toolDescriptions, "\n"),
		},
	}
}

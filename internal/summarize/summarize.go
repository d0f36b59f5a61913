package summarize

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"github.com/zulandar/stenograph/internal/accumulate"
)

const summaryPrompt = `Please provide a concise summary of the following conversation messages,
focusing on key topics, decisions, and outcomes. Conversation is an ai coding assistant log.
If you can not summarize it, return empty string.
Do not add your thoughts, discourse markers / framing statements or boilerplate framing sentences, just return summary.
Return summary in a form which can be copy/pasted to issue tracker as is.
Return in markdown format. Use only header 2 and header 3 for structure.

# summary of previous part:
{previousPart}

# conversation to summarize:
{nextPart}`

const typePrompt = `Please classify this conversation with an ai coding assistant.
Return only type of conversation, nothing else.
Return several types if conversation is complex, use ; as separator.
Focus more on what user is trying to achieve, not on what ai is doing.
If you can not classify, return empty string.
Use only conversation types from the list below, do not invent new types.

Conversation types:
Bug fixing
Writing new code
Refactoring existing code
Help with debugging
Exploring new libraries/tools
Learning new concepts
Designing system architecture
Writing tests
Improving performance
Writing documentation
Executing automation tasks
Updating dependencies
Code review
Designing user interfaces
Implementing UI components
Improving CI/CD pipelines
Changing infrastructure

# classification for previous part:
{previousPart}

# conversation:
{nextPart}`

const titlePrompt = `Please provide a title for this summary of an ai coding assistant conversation.
Return only the title, no other text. Use PR style title. Short but with focus on what was done.
Do not use 'AI Coding Assistant:' or other prefixes. If you can not find title, return empty string.
Do not add your thoughts, discourse markers / framing statements or boilerplate framing sentences, just return title.
Title must be in a past tense.

# summary:
`

const projectPrompt = `Please extract project name from touched files on disk, if multiple projects use ; as separator. Project name is usually folder name.
Return project name(s) only, no other text. If you can not find project name, return empty string.

# claude.md file:
`

const topicImplementationPrompt = `Extract implementation steps from the ai coding assistant conversation.
Pay attention to the most important parts, including but not limited to: areas, modules, components, functions,
user roles, permissions, security, domain knowledge, technology and etc.
The idea is to extract steps which will be enough to restore changes in the future.
Return in markdown format. Use only header 2 and header 3 for structure. Use past tense.
If you can not extract implementation steps, return empty string.
Result must be in a form which can be assigned as task to developer to re-implement the functionality.
Do not add your thoughts, discourse markers / framing statements or boilerplate framing sentences.
Do not add questions at the end.

Todo items implemented in the conversation:
`

// Summarize fills the prose, classification, project and usage fields
// of the analytics snapshot from accumulated state. Completion failures
// degrade individual fields to empty strings; the rest of the snapshot
// is still produced.
func Summarize(ctx context.Context, complete CompletionFunc, analytics *accumulate.Analytics, acc *accumulate.Accumulator) {
	if acc.All.Len() == 0 {
		return
	}

	important := acc.Important.Items()

	analytics.Summary = ConvolutionCall(ctx, complete, summaryPrompt, important)
	analytics.Type = ConvolutionCall(ctx, complete, typePrompt, important)
	analytics.Title = singleCall(ctx, complete, titlePrompt+analytics.Summary)

	if len(acc.TouchedFiles) > 0 {
		analytics.Projects = guessProjects(ctx, complete, acc)
	}

	for name, messages := range acc.Topics.ByTopic {
		prompt := topicImplementationPrompt + todosJSON(acc, name) + `

# implementation steps from previous part:
{previousPart}

# conversation to find principles:
{nextPart}`
		analytics.TopicImplementations[name] = ConvolutionCall(ctx, complete, prompt, messages)
	}

	analytics.Topics = acc.Topics.Topics
	analytics.Todos = acc.Todos
	analytics.ModelUsage = AggregateModelUsage(acc.Usages)
	analytics.AverageUserMessageLength = acc.AverageUserMessageLength()
}

// singleCall is a one-shot completion, degrading to "" on error.
func singleCall(ctx context.Context, complete CompletionFunc, prompt string) string {
	result, err := complete(ctx, prompt)
	if err != nil {
		log.Printf("summarize: completion failed: %v", err)
		return ""
	}
	return result
}

// guessProjects asks the completion capability to infer project names
// from touched file paths, with the project-context document as side
// context.
func guessProjects(ctx context.Context, complete CompletionFunc, acc *accumulate.Accumulator) []string {
	claudeMd := acc.ClaudeMdFile
	if claudeMd == "" {
		claudeMd = "empty"
	}
	prompt := projectPrompt + claudeMd + `

# touched files:
` + strings.Join(acc.TouchedFiles, ",")

	raw := singleCall(ctx, complete, prompt)

	var projects []string
	for _, p := range strings.Split(raw, ";") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			projects = append(projects, trimmed)
		}
	}
	return projects
}

// todosJSON serializes a topic's todo list for prompt inclusion.
func todosJSON(acc *accumulate.Accumulator, topic string) string {
	todos, ok := acc.Todos[topic]
	if !ok {
		return "{}"
	}
	data, err := json.Marshal(todos)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// AggregateModelUsage sums token usage per model, preserving first-seen
// model order. A missing model name normalizes to "unknown".
func AggregateModelUsage(usages []accumulate.UsageSample) []accumulate.ModelUsageEntry {
	totals := make(map[string]*accumulate.ModelUsageEntry)
	var order []string

	for _, u := range usages {
		model := u.Model
		if model == "" {
			model = "unknown"
		}
		entry, ok := totals[model]
		if !ok {
			entry = &accumulate.ModelUsageEntry{Model: model}
			totals[model] = entry
			order = append(order, model)
		}
		entry.InputTokens += u.Usage.InputTokens
		entry.OutputTokens += u.Usage.OutputTokens
	}

	result := make([]accumulate.ModelUsageEntry, 0, len(order))
	for _, model := range order {
		result = append(result, *totals[model])
	}
	return result
}

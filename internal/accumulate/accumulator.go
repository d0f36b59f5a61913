package accumulate

import (
	"encoding/json"
	"log"
	"strings"
)

// Tool names the fold rules react to.
const (
	todoTool  = "TodoWrite"
	readTool  = "Read"
	writeTool = "Write"
	editTool  = "Edit"
)

// Sentinels excluded from user statistics and transcripts.
const (
	quotaSentinel      = "quota"
	policySpecPrefix   = "<policy_spec>"
	commandPrefix      = "Command:"
	commandOutputMark  = "Output:"
	assistantAckText   = "A"
	systemReminderMark = "<system-reminder>"
	claudeMdHeaderMark = "# CLAUDE.md"
)

// Accumulator is the working state of one session replay. It is owned
// by a single run and discarded afterwards; only the derived analytics
// snapshot is persisted.
type Accumulator struct {
	// All holds every distinct message in encounter order.
	All *DedupList[Message]

	// Important is the curated transcript used for summarization, kept
	// smaller than All because the summarizer's context is bounded.
	Important *DedupList[Message]

	// UserMessages holds distinct plain-text user turns, for
	// average-length statistics.
	UserMessages *DedupList[Message]

	// Topics is the topic segmentation state.
	Topics *TopicState

	// Todos maps topic name to the most recently seen todo list for
	// that topic. Whole-list replace, never a merge.
	Todos map[string][]TodoItem

	// TouchedFiles lists distinct file paths referenced by Read, Write
	// and Edit tool calls, in first-seen order.
	TouchedFiles []string

	// ClaudeMdFile is the most recent project-context document text.
	ClaudeMdFile string

	// ChangeExecutions holds distinct messages carrying a file-mutating
	// tool call.
	ChangeExecutions *DedupList[Message]

	// Usages collects one token-usage sample per response processed.
	// Deliberately not deduplicated: token accounting sums every
	// response even when the message content was a duplicate.
	Usages []UsageSample
}

// New returns an empty accumulator.
func New() *Accumulator {
	return &Accumulator{
		All:              NewDedupList[Message](),
		Important:        NewDedupList[Message](),
		UserMessages:     NewDedupList[Message](),
		Topics:           NewTopicState(),
		Todos:            make(map[string][]TodoItem),
		ChangeExecutions: NewDedupList[Message](),
	}
}

// topicBoundary is the payload of an assistant topic-shift marker.
type topicBoundary struct {
	IsNewTopic bool   `json:"isNewTopic"`
	Title      string `json:"title"`
}

// Fold applies the per-message rules to one conversation turn. Safe to
// call with the same message any number of times.
func (a *Accumulator) Fold(m Message) {
	key := m.Hash()

	a.All.Add(key, m)
	a.Topics.Fold(key, m)

	a.foldClaudeMd(m)
	isBoundary := a.foldTopicBoundary(m)
	isTodoUpdate := a.foldTodos(m)
	a.foldToolCalls(key, m)

	isUserText := m.Role == "user" && m.Content.IsPlain() && m.Content.Plain != quotaSentinel
	if isUserText {
		text := m.Content.Plain
		isPolicySpec := strings.HasPrefix(text, policySpecPrefix)
		isCommandEcho := strings.HasPrefix(text, commandPrefix) && strings.Contains(text, commandOutputMark)
		if !isPolicySpec && !isCommandEcho {
			a.UserMessages.Add(key, m)
		}
	}

	blocks := m.Content.Blocks
	isAssistantSingleText := m.Role == "assistant" && !m.Content.IsPlain() &&
		len(blocks) == 1 && blocks[0].Kind() == KindText && blocks[0].Text != assistantAckText

	if isUserText || isBoundary || isTodoUpdate || isAssistantSingleText {
		a.Important.Add(key, m)
	}
}

// foldClaudeMd looks for the project-context document. No text can
// start with both markers at once, so this never matches.
// TODO: settle which marker actually identifies the document and check
// only that one.
func (a *Accumulator) foldClaudeMd(m Message) {
	if m.Role != "user" || m.Content.IsPlain() {
		return
	}
	for _, b := range m.Content.Blocks {
		if b.Kind() != KindText {
			continue
		}
		if strings.HasPrefix(b.Text, systemReminderMark) && strings.HasPrefix(b.Text, claudeMdHeaderMark) {
			a.ClaudeMdFile = b.Text
			return
		}
	}
}

// foldTopicBoundary detects an assistant topic-shift marker: a content
// list whose first text block parses as a JSON object with isNewTopic
// and a title. Reports whether a boundary was taken.
func (a *Accumulator) foldTopicBoundary(m Message) bool {
	if m.Role != "assistant" || m.Content.IsPlain() || len(m.Content.Blocks) == 0 {
		return false
	}
	first := m.Content.Blocks[0]
	if first.Kind() != KindText || !strings.Contains(first.Text, "isNewTopic") {
		return false
	}

	var boundary topicBoundary
	if err := json.Unmarshal([]byte(first.Text), &boundary); err != nil || boundary.Title == "" {
		log.Printf("accumulate: malformed topic boundary: %.120q", first.Text)
		return false
	}

	a.Topics.OnBoundary(boundary.Title)
	return true
}

// foldTodos captures the latest todo list for the current topic.
// Reports whether this message carried a todo update.
func (a *Accumulator) foldTodos(m Message) bool {
	if m.Role != "assistant" || m.Content.IsPlain() {
		return false
	}
	for _, b := range m.Content.Blocks {
		if b.Kind() != KindToolUse || b.Name != todoTool {
			continue
		}
		raw, ok := b.Input["todos"]
		if !ok {
			continue
		}
		data, err := json.Marshal(raw)
		if err != nil {
			continue
		}
		var todos []TodoItem
		if err := json.Unmarshal(data, &todos); err != nil {
			log.Printf("accumulate: malformed todos input: %v", err)
			continue
		}
		a.Todos[a.Topics.Current] = todos
		return true
	}
	return false
}

// foldToolCalls tracks touched files and file-mutating executions.
func (a *Accumulator) foldToolCalls(key string, m Message) {
	if m.Role != "assistant" || m.Content.IsPlain() {
		return
	}
	for _, b := range m.Content.Blocks {
		if b.Kind() != KindToolUse {
			continue
		}

		switch b.Name {
		case readTool, writeTool, editTool:
			if path, ok := b.Input["file_path"].(string); ok && path != "" {
				a.addTouchedFile(path)
			}
		}

		switch b.Name {
		case writeTool, editTool:
			a.ChangeExecutions.Add(key, m)
		}
	}
}

func (a *Accumulator) addTouchedFile(path string) {
	for _, existing := range a.TouchedFiles {
		if existing == path {
			return
		}
	}
	a.TouchedFiles = append(a.TouchedFiles, path)
}

// AverageUserMessageLength returns the mean character length of
// distinct plain-text user turns, 0 when there are none.
func (a *Accumulator) AverageUserMessageLength() float64 {
	items := a.UserMessages.Items()
	if len(items) == 0 {
		return 0
	}
	total := 0
	for _, m := range items {
		total += len(m.Content.Plain)
	}
	return float64(total) / float64(len(items))
}

package accumulate

// ToolUsage records one distinct tool call. Count is always 1: the list
// tracks call identity, not repetition.
type ToolUsage struct {
	Name  string `json:"name"`
	ID    string `json:"id"`
	Count int    `json:"count"`
}

// TodoItem is one entry of a structured todo list.
type TodoItem struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Status  string `json:"status"`
}

// ModelUsageEntry is the aggregated token usage for one model.
type ModelUsageEntry struct {
	Model        string `json:"model"`
	InputTokens  int64  `json:"inputTokens"`
	OutputTokens int64  `json:"outputTokens"`
}

// Analytics is the session analytics snapshot serialized onto the
// work-session row.
type Analytics struct {
	TotalRequests            int                   `json:"totalRequests"`
	TotalTools               int                   `json:"totalTools"`
	ToolUsage                []ToolUsage           `json:"toolUsage"`
	Summary                  string                `json:"summary"`
	Type                     string                `json:"type"`
	Title                    string                `json:"title"`
	Projects                 []string              `json:"projects"`
	TopicImplementations     map[string]string     `json:"topicImplementations"`
	Topics                   []string              `json:"topics"`
	DetailedTodos            []string              `json:"detailedTodos"`
	Todos                    map[string][]TodoItem `json:"todos"`
	ModelUsage               []ModelUsageEntry     `json:"modelUsage"`
	AverageUserMessageLength float64               `json:"averageUserMessageLength"`
}

// NewAnalytics returns an empty snapshot with all collections
// initialized so the serialized form has no null fields.
func NewAnalytics() *Analytics {
	return &Analytics{
		ToolUsage:            []ToolUsage{},
		Projects:             []string{},
		TopicImplementations: map[string]string{},
		Topics:               []string{},
		DetailedTodos:        []string{},
		Todos:                map[string][]TodoItem{},
		ModelUsage:           []ModelUsageEntry{},
	}
}

// RecordToolCall appends a tool-usage entry unless the call id was
// already recorded, and keeps TotalTools equal to the list size.
func (a *Analytics) RecordToolCall(name, id string) {
	for _, existing := range a.ToolUsage {
		if existing.ID == id {
			return
		}
	}
	a.ToolUsage = append(a.ToolUsage, ToolUsage{Name: name, ID: id, Count: 1})
	a.TotalTools = len(a.ToolUsage)
}

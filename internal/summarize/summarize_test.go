package summarize

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/zulandar/stenograph/internal/accumulate"
)

func foldedAccumulator(t *testing.T) *accumulate.Accumulator {
	t.Helper()
	acc := accumulate.New()
	acc.Fold(accumulate.Message{
		Role:    "assistant",
		Content: accumulate.BlockContent(accumulate.ContentBlock{Type: "text", Text: `{"isNewTopic": true, "title": "Auth"}`}),
	})
	acc.Fold(plainMsg("add login support"))
	acc.Fold(accumulate.Message{
		Role: "assistant",
		Content: accumulate.BlockContent(accumulate.ContentBlock{
			Type: "tool_use", ID: "c1", Name: "Edit",
			Input: map[string]any{"file_path": "/work/login/handler.go"},
		}),
	})
	acc.Topics.Flush()
	return acc
}

// routedCompletion answers by inspecting the prompt so one fake serves
// every summarization field.
func routedCompletion(ctx context.Context, prompt string) (string, error) {
	switch {
	case strings.Contains(prompt, "concise summary"):
		return "## Did auth work", nil
	case strings.Contains(prompt, "classify"):
		return "Writing new code", nil
	case strings.Contains(prompt, "title for this summary"):
		return "Added login support", nil
	case strings.Contains(prompt, "extract project name"):
		return "login; ", nil
	case strings.Contains(prompt, "implementation steps"):
		return "## Implemented login handler", nil
	default:
		return "", nil
	}
}

func TestSummarize_FillsAnalytics(t *testing.T) {
	acc := foldedAccumulator(t)
	acc.Usages = append(acc.Usages,
		accumulate.UsageSample{Model: "haiku", Usage: accumulate.TokenUsage{InputTokens: 10, OutputTokens: 5}},
		accumulate.UsageSample{Model: "haiku", Usage: accumulate.TokenUsage{InputTokens: 7, OutputTokens: 3}},
		accumulate.UsageSample{Model: "", Usage: accumulate.TokenUsage{InputTokens: 1, OutputTokens: 1}},
	)

	analytics := accumulate.NewAnalytics()
	Summarize(context.Background(), routedCompletion, analytics, acc)

	if analytics.Summary != "## Did auth work" {
		t.Errorf("Summary = %q", analytics.Summary)
	}
	if analytics.Type != "Writing new code" {
		t.Errorf("Type = %q", analytics.Type)
	}
	if analytics.Title != "Added login support" {
		t.Errorf("Title = %q", analytics.Title)
	}
	if len(analytics.Projects) != 1 || analytics.Projects[0] != "login" {
		t.Errorf("Projects = %v, want [login] (trimmed, empties dropped)", analytics.Projects)
	}
	if got := analytics.TopicImplementations["Auth"]; got != "## Implemented login handler" {
		t.Errorf("TopicImplementations[Auth] = %q", got)
	}
	if len(analytics.Topics) != 1 || analytics.Topics[0] != "Auth" {
		t.Errorf("Topics = %v, want [Auth]", analytics.Topics)
	}

	if len(analytics.ModelUsage) != 2 {
		t.Fatalf("ModelUsage = %+v, want 2 entries", analytics.ModelUsage)
	}
	if analytics.ModelUsage[0].Model != "haiku" || analytics.ModelUsage[0].InputTokens != 17 || analytics.ModelUsage[0].OutputTokens != 8 {
		t.Errorf("ModelUsage[0] = %+v, want haiku 17/8", analytics.ModelUsage[0])
	}
	if analytics.ModelUsage[1].Model != "unknown" {
		t.Errorf("ModelUsage[1].Model = %q, want unknown", analytics.ModelUsage[1].Model)
	}

	if analytics.AverageUserMessageLength == 0 {
		t.Error("AverageUserMessageLength = 0, want > 0")
	}
}

func TestSummarize_EmptyAccumulatorIsNoop(t *testing.T) {
	called := false
	complete := func(ctx context.Context, prompt string) (string, error) {
		called = true
		return "x", nil
	}

	analytics := accumulate.NewAnalytics()
	Summarize(context.Background(), complete, analytics, accumulate.New())

	if called {
		t.Error("completion called for empty accumulator")
	}
	if analytics.Summary != "" {
		t.Errorf("Summary = %q, want empty", analytics.Summary)
	}
}

func TestSummarize_NoTouchedFilesSkipsProjectGuess(t *testing.T) {
	acc := accumulate.New()
	acc.Fold(plainMsg("just a question"))

	var sawProjectPrompt bool
	complete := func(ctx context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, "extract project name") {
			sawProjectPrompt = true
		}
		return "", nil
	}

	analytics := accumulate.NewAnalytics()
	Summarize(context.Background(), complete, analytics, acc)

	if sawProjectPrompt {
		t.Error("project guess attempted with no touched files")
	}
	if len(analytics.Projects) != 0 {
		t.Errorf("Projects = %v, want empty", analytics.Projects)
	}
}

func TestSummarize_CompletionFailureDegradesFields(t *testing.T) {
	acc := foldedAccumulator(t)
	complete := func(ctx context.Context, prompt string) (string, error) {
		return "", errors.New("gateway timeout")
	}

	analytics := accumulate.NewAnalytics()
	Summarize(context.Background(), complete, analytics, acc)

	if analytics.Summary != "" || analytics.Type != "" || analytics.Title != "" {
		t.Errorf("prose fields = %q/%q/%q, want all empty", analytics.Summary, analytics.Type, analytics.Title)
	}
	// Non-completion fields still land.
	if len(analytics.Topics) != 1 {
		t.Errorf("Topics = %v, want [Auth]", analytics.Topics)
	}
}

func TestAggregateModelUsage_Empty(t *testing.T) {
	if got := AggregateModelUsage(nil); len(got) != 0 {
		t.Errorf("AggregateModelUsage(nil) = %v, want empty", got)
	}
}

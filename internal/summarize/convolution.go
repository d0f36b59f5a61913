// Package summarize turns accumulated session state into prose
// analytics through a bounded-context completion capability.
package summarize

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"github.com/zulandar/stenograph/internal/accumulate"
)

// CompletionFunc is a text-completion capability: prompt in, text out.
type CompletionFunc func(ctx context.Context, prompt string) (string, error)

// convolutionThreshold bounds the serialized message buffer passed to
// one completion call.
const convolutionThreshold = 120000

// Prompt templates substitute these placeholders.
const (
	previousPartPlaceholder = "{previousPart}"
	nextPartPlaceholder     = "{nextPart}"
)

// ConvolutionCall folds an unbounded message list through the
// completion capability: messages serialize into a rolling buffer, and
// whenever the next message would push the buffer past the threshold
// the buffer is flushed through the prompt template together with the
// running result. The final call's output is the result. Any completion
// error degrades to an empty string.
func ConvolutionCall(ctx context.Context, complete CompletionFunc, promptTemplate string, messages []accumulate.Message) string {
	result := "none"
	buffer := ""

	for _, m := range messages {
		data, err := json.Marshal(m)
		if err != nil {
			continue
		}
		next := string(data)

		if convolutionThreshold < len(buffer)+len(next) {
			r, err := callWithParts(ctx, complete, promptTemplate, result, buffer)
			if err != nil {
				log.Printf("summarize: convolution call failed: %v", err)
				return ""
			}
			result = r
			buffer = next
		} else {
			buffer += next
		}
	}

	if len(buffer) > 0 {
		r, err := callWithParts(ctx, complete, promptTemplate, result, buffer)
		if err != nil {
			log.Printf("summarize: convolution flush failed: %v", err)
			return ""
		}
		result = r
	}

	return result
}

func callWithParts(ctx context.Context, complete CompletionFunc, template, previous, next string) (string, error) {
	prompt := strings.Replace(template, previousPartPlaceholder, previous, 1)
	prompt = strings.Replace(prompt, nextPartPlaceholder, next, 1)
	return complete(ctx, prompt)
}

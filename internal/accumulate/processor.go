package accumulate

import (
	"encoding/json"
	"log"
	"strings"

	"github.com/zulandar/stenograph/internal/archive"
	"github.com/zulandar/stenograph/internal/models"
)

// requestPayload is the slice of the provider call body the replay
// cares about.
type requestPayload struct {
	Messages []Message `json:"messages"`
}

// responseMessage is a non-streamed provider response body.
type responseMessage struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
	Model   string         `json:"model"`
	Usage   TokenUsage     `json:"usage"`
}

// ProcessRequest folds one archived request/response pair into the
// accumulator and analytics. Every failure is contained: a request
// whose bodies are missing or malformed contributes nothing and the
// replay moves on.
func ProcessRequest(store archive.Store, acc *Accumulator, analytics *Analytics, req models.ProviderRequest) {
	bodyPath := archive.RequestBodyPath(req.TenantID, req.ProxyID, req.ReceivedAt, req.GeneratedID)
	body, err := store.Get(bodyPath)
	if err != nil || len(body) == 0 {
		log.Printf("accumulate: request body missing for %s: %v", bodyPath, err)
		return
	}

	var payload requestPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Printf("accumulate: malformed request body %s: %v", bodyPath, err)
		return
	}

	analytics.TotalRequests++

	for _, m := range payload.Messages {
		m.Content.StripCacheControl()
		acc.Fold(m)

		for _, b := range m.Content.Blocks {
			if b.Kind() == KindToolUse && b.Name != "" {
				analytics.RecordToolCall(b.Name, b.ID)
			}
		}
	}

	foldResponse(store, acc, req)
}

// foldResponse replays the archived response body, reconstructing event
// streams into one assistant message.
func foldResponse(store archive.Store, acc *Accumulator, req models.ProviderRequest) {
	respPath := archive.ResponseBodyPath(req.TenantID, req.ProxyID, req.ReceivedAt, req.GeneratedID)
	respBody, err := store.Get(respPath)
	if err != nil {
		log.Printf("accumulate: response body missing for %s: %v", respPath, err)
		return
	}
	if len(respBody) == 0 {
		return
	}

	text := string(respBody)
	if strings.HasPrefix(text, StreamPrefix) {
		parsed := ParseServerSentEvents(text)
		if parsed.Start == nil {
			return
		}
		acc.Fold(parsed.Message)
		model := parsed.Start.Model
		if model == "" {
			model = "unknown"
		}
		acc.Usages = append(acc.Usages, UsageSample{Usage: parsed.Start.Usage, Model: model})
		return
	}

	var resp responseMessage
	if err := json.Unmarshal(respBody, &resp); err != nil {
		log.Printf("accumulate: malformed response body %s: %v", respPath, err)
		return
	}

	content := BlockContent(resp.Content...)
	acc.Fold(Message{Role: resp.Role, Content: content})

	model := resp.Model
	if model == "" {
		model = "unknown"
	}
	acc.Usages = append(acc.Usages, UsageSample{Usage: resp.Usage, Model: model})
}

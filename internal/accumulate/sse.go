package accumulate

import (
	"encoding/json"
	"log"
	"sort"
	"strings"
)

// StreamPrefix marks an archived response body as an event stream.
const StreamPrefix = "event: "

// StartEnvelope is the identity/usage envelope from the stream's
// message_start event.
type StartEnvelope struct {
	Role  string     `json:"role"`
	Model string     `json:"model"`
	Usage TokenUsage `json:"usage"`
}

// ParsedStream is one event stream reconstructed into a single logical
// assistant message.
type ParsedStream struct {
	Message Message

	// Start is nil when the stream carried no message_start event; the
	// caller treats such a stream as contributing nothing.
	Start *StartEnvelope

	// DeltaUsages holds every message_delta usage payload in stream
	// order. The Start envelope's model name stays authoritative.
	DeltaUsages []TokenUsage
}

// streamEvent is used for initial type dispatch of a data payload.
type streamEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
}

// startEvent extracts the envelope from message_start.
type startEvent struct {
	Message StartEnvelope `json:"message"`
}

// blockStartEvent initializes a content block.
type blockStartEvent struct {
	Index        int `json:"index"`
	ContentBlock struct {
		Type string `json:"type"`
		Text string `json:"text"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block"`
}

// blockDeltaEvent carries incremental text or partial tool-input JSON.
type blockDeltaEvent struct {
	Index int `json:"index"`
	Delta struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
	} `json:"delta"`
}

// messageDeltaEvent carries accumulated usage updates.
type messageDeltaEvent struct {
	Usage TokenUsage `json:"usage"`
}

// streamBlock is a content block under reconstruction.
type streamBlock struct {
	block       ContentBlock
	partialJSON strings.Builder
	hasPartial  bool
}

// ParseServerSentEvents reconstructs a provider event stream into one
// logical assistant message. Malformed JSON payloads are skipped; a
// tool block whose accumulated input fails to parse gets an empty
// input object rather than failing the stream.
func ParseServerSentEvents(sseText string) ParsedStream {
	result := ParsedStream{
		Message: Message{Role: "assistant", Content: BlockContent()},
	}

	blocks := make(map[int]*streamBlock)

	var eventName, eventData string
	haveEvent := false

	flush := func() {
		if !haveEvent {
			return
		}
		name, data := eventName, eventData
		eventName, eventData = "", ""
		haveEvent = false

		// Keep-alive events carry nothing.
		if name == "ping" || data == "" {
			return
		}
		handleStreamEvent(data, &result, blocks)
	}

	for _, line := range strings.Split(sseText, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			flush()
			continue
		}
		if strings.HasPrefix(trimmed, "event: ") {
			eventName = strings.TrimSpace(trimmed[7:])
			haveEvent = true
		} else if strings.HasPrefix(trimmed, "data: ") {
			eventData = strings.TrimSpace(trimmed[6:])
			haveEvent = true
		}
	}
	// Final event without a trailing blank line.
	flush()

	// Emit blocks in ascending index order.
	indexes := make([]int, 0, len(blocks))
	for i := range blocks {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	for _, i := range indexes {
		result.Message.Content.Blocks = append(result.Message.Content.Blocks, blocks[i].block)
	}

	return result
}

// handleStreamEvent dispatches one data payload.
func handleStreamEvent(data string, result *ParsedStream, blocks map[int]*streamBlock) {
	var evt streamEvent
	if err := json.Unmarshal([]byte(data), &evt); err != nil {
		return
	}

	switch evt.Type {
	case "message_start":
		var start startEvent
		if err := json.Unmarshal([]byte(data), &start); err != nil {
			return
		}
		if result.Start != nil {
			log.Printf("accumulate: second message_start in one stream (model %q)", start.Message.Model)
		}
		result.Start = &start.Message
		if start.Message.Role != "" {
			result.Message.Role = start.Message.Role
		}

	case "content_block_start":
		var bs blockStartEvent
		if err := json.Unmarshal([]byte(data), &bs); err != nil {
			return
		}
		switch bs.ContentBlock.Type {
		case "text":
			blocks[bs.Index] = &streamBlock{block: ContentBlock{Type: "text", Text: bs.ContentBlock.Text}}
		case "tool_use":
			blocks[bs.Index] = &streamBlock{block: ContentBlock{
				Type:  "tool_use",
				ID:    bs.ContentBlock.ID,
				Name:  bs.ContentBlock.Name,
				Input: map[string]any{},
			}}
		}

	case "content_block_delta":
		var bd blockDeltaEvent
		if err := json.Unmarshal([]byte(data), &bd); err != nil {
			return
		}
		sb, ok := blocks[bd.Index]
		if !ok {
			return
		}
		switch bd.Delta.Type {
		case "text_delta":
			sb.block.Text += bd.Delta.Text
		case "input_json_delta":
			sb.partialJSON.WriteString(bd.Delta.PartialJSON)
			sb.hasPartial = true
		}

	case "content_block_stop":
		sb, ok := blocks[evt.Index]
		if !ok || !sb.hasPartial {
			return
		}
		var input map[string]any
		if err := json.Unmarshal([]byte(sb.partialJSON.String()), &input); err != nil {
			// Preserve id/name even when the streamed input was cut
			// short or malformed.
			sb.block.Input = map[string]any{}
		} else {
			sb.block.Input = input
		}
		sb.partialJSON.Reset()
		sb.hasPartial = false

	case "message_delta":
		var md messageDeltaEvent
		if err := json.Unmarshal([]byte(data), &md); err != nil {
			return
		}
		result.DeltaUsages = append(result.DeltaUsages, md.Usage)

	case "message_stop":
		// Nothing to reconstruct from the terminator.

	default:
		log.Printf("accumulate: unknown stream event type %q", evt.Type)
	}
}

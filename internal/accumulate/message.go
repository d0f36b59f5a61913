// Package accumulate rebuilds deduplicated, topic-segmented session
// state from archived provider traffic.
package accumulate

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// BlockKind classifies a content block for exhaustive dispatch.
type BlockKind int

const (
	KindText BlockKind = iota
	KindToolUse
	KindToolResult
	KindImage
	KindUnknown
)

// ContentBlock is one element of a structured message content list.
// Fields are a union over the provider's block types; Kind tells which
// arm is populated.
type ContentBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// tool_use
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	// tool_result
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`

	// image
	Source json.RawMessage `json:"source,omitempty"`

	// Upstream caching directive; stripped before folding because it is
	// a transport artifact, not conversation content.
	CacheControl json.RawMessage `json:"cache_control,omitempty"`
}

// Kind returns the block's classification.
func (b ContentBlock) Kind() BlockKind {
	switch b.Type {
	case "text":
		return KindText
	case "tool_use":
		return KindToolUse
	case "tool_result":
		return KindToolResult
	case "image":
		return KindImage
	default:
		return KindUnknown
	}
}

// MessageContent is either a plain string or a list of content blocks,
// matching the provider's wire shape.
type MessageContent struct {
	Plain  string
	Blocks []ContentBlock

	// plain reports which arm is populated; a message with an empty
	// block list is still structured, not plain.
	plain bool
}

// PlainContent builds string-form content.
func PlainContent(text string) MessageContent {
	return MessageContent{Plain: text, plain: true}
}

// BlockContent builds list-form content.
func BlockContent(blocks ...ContentBlock) MessageContent {
	return MessageContent{Blocks: blocks}
}

// IsPlain reports whether the content is a plain string.
func (c MessageContent) IsPlain() bool { return c.plain }

// UnmarshalJSON accepts both the string and the block-list wire forms.
func (c *MessageContent) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		c.plain = true
		c.Blocks = nil
		return json.Unmarshal(data, &c.Plain)
	}
	c.plain = false
	c.Plain = ""
	if string(trimmed) == "null" {
		c.Blocks = nil
		return nil
	}
	if err := json.Unmarshal(data, &c.Blocks); err != nil {
		return fmt.Errorf("content blocks: %w", err)
	}
	return nil
}

// MarshalJSON emits the wire form matching the populated arm.
func (c MessageContent) MarshalJSON() ([]byte, error) {
	if c.plain {
		return json.Marshal(c.Plain)
	}
	if c.Blocks == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c.Blocks)
}

// StripCacheControl drops caching directives from every block.
func (c *MessageContent) StripCacheControl() {
	for i := range c.Blocks {
		c.Blocks[i].CacheControl = nil
	}
}

// Message is one conversation turn, request-side or response-side.
type Message struct {
	Role    string         `json:"role"`
	Content MessageContent `json:"content"`
}

// Hash returns the message's content hash, used for deduplication.
// Structurally identical messages hash identically; a collision is
// treated as identity.
func (m Message) Hash() string {
	data, err := json.Marshal(m)
	if err != nil {
		// Marshal of this shape cannot fail; fall back to the raw
		// struct rendering rather than panicking mid-replay.
		data = []byte(fmt.Sprintf("%#v", m))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// TokenUsage is the provider's token accounting envelope.
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// UsageSample pairs one response's token usage with its model name.
type UsageSample struct {
	Usage TokenUsage
	Model string
}

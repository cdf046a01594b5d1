package models

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Role indicates the message author.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// StopReason is why a model ended a turn.
type StopReason string

const (
	StopEndTurn      StopReason = "end_turn"
	StopToolUse      StopReason = "tool_use"
	StopMaxTokens    StopReason = "max_tokens"
	StopStopSequence StopReason = "stop_sequence"
)

// allowedImageTypes are the MIME types accepted for an Image block.
var allowedImageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

// MaxImageBytes is the largest decoded image payload accepted on a block.
const MaxImageBytes = 5 * 1024 * 1024

// maxImageBase64Len is the largest base64-encoded size that could decode to
// MaxImageBytes, used as a cheap pre-decode rejection.
const maxImageBase64Len = MaxImageBytes*4/3 + 4

// Message is a single turn of a conversation. Content is either flat text
// or an ordered sequence of blocks; never both.
type Message struct {
	Role    Role    `json:"role"`
	Content Content `json:"content"`
}

// Content holds either plain text or a block sequence. Exactly one of the
// two fields is populated; MarshalJSON/UnmarshalJSON collapse this into an
// untagged union on the wire, matching the original's MessageContent enum.
type Content struct {
	Text   *string
	Blocks []ContentBlock
}

// NewTextContent builds a flat-text Content value.
func NewTextContent(text string) Content {
	return Content{Text: &text}
}

// NewBlocksContent builds a block-sequence Content value.
func NewBlocksContent(blocks ...ContentBlock) Content {
	return Content{Blocks: blocks}
}

// TextLength is the sum of lengths of Text, ToolResult.Content, and
// Thinking.Thinking across the content; other block kinds contribute 0.
func (c Content) TextLength() int {
	if c.Text != nil {
		return len(*c.Text)
	}
	total := 0
	for _, b := range c.Blocks {
		switch v := b.(type) {
		case TextBlock:
			total += len(v.Text)
		case ToolResultBlock:
			total += len(v.Content)
		case ThinkingBlock:
			total += len(v.Thinking)
		}
	}
	return total
}

// TextContent concatenates every text-bearing block (Text and Thinking),
// or returns the flat text directly. Used for directive extraction and
// for char-based token-estimation heuristics.
func (c Content) TextContent() string {
	if c.Text != nil {
		return *c.Text
	}
	var out string
	for _, b := range c.Blocks {
		switch v := b.(type) {
		case TextBlock:
			out += v.Text
		case ThinkingBlock:
			out += v.Thinking
		}
	}
	return out
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.Text != nil {
		return json.Marshal(*c.Text)
	}
	return json.Marshal(contentBlockSlice(c.Blocks))
}

func (c *Content) UnmarshalJSON(data []byte) error {
	var asText string
	if err := json.Unmarshal(data, &asText); err == nil {
		c.Text = &asText
		c.Blocks = nil
		return nil
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return fmt.Errorf("message content is neither text nor a block array: %w", err)
	}
	blocks := make([]ContentBlock, 0, len(raws))
	for _, raw := range raws {
		b, err := unmarshalContentBlock(raw)
		if err != nil {
			return err
		}
		blocks = append(blocks, b)
	}
	c.Blocks = blocks
	c.Text = nil
	return nil
}

// ContentBlock is one unit of structured message content. The concrete
// types below are the only implementations; an unrecognized "type"
// discriminator decodes to Unknown rather than failing.
type ContentBlock interface {
	blockType() string
}

type TextBlock struct {
	Text string `json:"text"`
}

func (TextBlock) blockType() string { return "text" }

// ImageBlock is a base64-encoded image. Validate before constructing one
// from untrusted input via NewImageBlock.
type ImageBlock struct {
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

func (ImageBlock) blockType() string { return "image" }

// NewImageBlock validates MIME type and decoded size before returning a
// block, matching the original's ALLOWED_IMAGE_TYPES/MAX_IMAGE_BYTES checks.
func NewImageBlock(mediaType, data string) (ImageBlock, error) {
	if !allowedImageTypes[mediaType] {
		return ImageBlock{}, fmt.Errorf("unsupported image media type %q", mediaType)
	}
	if len(data) > maxImageBase64Len {
		return ImageBlock{}, fmt.Errorf("image payload exceeds %d bytes", MaxImageBytes)
	}
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return ImageBlock{}, fmt.Errorf("image data is not valid base64: %w", err)
	}
	if len(decoded) > MaxImageBytes {
		return ImageBlock{}, fmt.Errorf("image payload exceeds %d bytes", MaxImageBytes)
	}
	return ImageBlock{MediaType: mediaType, Data: data}, nil
}

// ToolUseBlock is an assistant-emitted tool invocation request.
type ToolUseBlock struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

func (ToolUseBlock) blockType() string { return "tool_use" }

// ToolResultBlock answers a prior ToolUseBlock by matching ID.
type ToolResultBlock struct {
	ToolUseID string `json:"tool_use_id"`
	ToolName  string `json:"tool_name,omitempty"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error,omitempty"`
}

func (ToolResultBlock) blockType() string { return "tool_result" }

// ThinkingBlock carries internal reasoning text; never forwarded to tools.
type ThinkingBlock struct {
	Thinking string `json:"thinking"`
}

func (ThinkingBlock) blockType() string { return "thinking" }

// UnknownBlock is the forward-compatibility sink for any block whose "type"
// discriminator this build does not recognize.
type UnknownBlock struct {
	Raw json.RawMessage `json:"-"`
}

func (UnknownBlock) blockType() string { return "unknown" }

type blockEnvelope struct {
	Type string `json:"type"`
}

func unmarshalContentBlock(raw json.RawMessage) (ContentBlock, error) {
	var env blockEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("content block missing type discriminator: %w", err)
	}
	switch env.Type {
	case "text":
		var b TextBlock
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		return b, nil
	case "image":
		var b ImageBlock
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		return b, nil
	case "tool_use":
		var b ToolUseBlock
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		return b, nil
	case "tool_result":
		var b ToolResultBlock
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		return b, nil
	case "thinking":
		var b ThinkingBlock
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		return b, nil
	default:
		return UnknownBlock{Raw: raw}, nil
	}
}

// MarshalContentBlockJSON marshals a block with its type discriminator
// injected, since the concrete block structs don't carry a "type" field.
func MarshalContentBlockJSON(b ContentBlock) ([]byte, error) {
	if u, ok := b.(UnknownBlock); ok {
		return u.Raw, nil
	}
	inner, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(inner, &m); err != nil {
		return nil, err
	}
	typeJSON, _ := json.Marshal(b.blockType())
	m["type"] = typeJSON
	return json.Marshal(m)
}

// contentBlockSlice exists solely to give []ContentBlock a MarshalJSON that
// injects the type discriminator per element; Content.MarshalJSON uses it.
type contentBlockSlice []ContentBlock

func (s contentBlockSlice) MarshalJSON() ([]byte, error) {
	raws := make([]json.RawMessage, len(s))
	for i, b := range s {
		raw, err := MarshalContentBlockJSON(b)
		if err != nil {
			return nil, err
		}
		raws[i] = raw
	}
	return json.Marshal(raws)
}

// TokenUsage reports input/output token counts for one completion call.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total is the sum of input and output tokens.
func (u TokenUsage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// ReplyDirectives are markers the agent loop strips from final assistant
// text and reports separately rather than delivering verbatim.
type ReplyDirectives struct {
	ReplyTo       string `json:"reply_to,omitempty"`
	CurrentThread bool   `json:"current_thread,omitempty"`
	Silent        bool   `json:"silent,omitempty"`
}

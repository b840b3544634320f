// Package chat holds the chat-completion wire types the gateway accepts and
// emits, and the stages that turn a request into a translation job.
package chat

import (
	"bytes"
	"encoding/json"
)

type Request struct {
	Model    string    `json:"model"`
	Stream   bool      `json:"stream"`
	Messages []Message `json:"messages"`
}

type Message struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

type ContentKind int

const (
	ContentNone ContentKind = iota
	ContentText
	ContentParts
)

// Content is either a plain string or a list of typed parts. The shape is
// resolved once while decoding; anything else decodes to ContentNone.
type Content struct {
	Kind  ContentKind
	Text  string
	Parts []ContentPart
}

type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func TextContent(s string) Content {
	return Content{Kind: ContentText, Text: s}
}

func PartsContent(parts ...ContentPart) Content {
	return Content{Kind: ContentParts, Parts: parts}
}

func (c *Content) UnmarshalJSON(data []byte) error {
	*c = Content{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = TextContent(s)
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		c.Kind = ContentParts
		for _, item := range raw {
			// Non-object or malformed parts are skipped.
			if !bytes.HasPrefix(bytes.TrimSpace(item), []byte("{")) {
				continue
			}
			var part ContentPart
			if err := json.Unmarshal(item, &part); err != nil {
				continue
			}
			c.Parts = append(c.Parts, part)
		}
	}
	return nil
}

func (c Content) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case ContentText:
		return json.Marshal(c.Text)
	case ContentParts:
		if c.Parts == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(c.Parts)
	default:
		return []byte("null"), nil
	}
}

// Completion is the non-streaming response body.
type Completion struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []CompletionChoice `json:"choices"`
	Usage   Usage              `json:"usage"`
}

type CompletionChoice struct {
	Index        int              `json:"index"`
	Message      AssistantMessage `json:"message"`
	FinishReason string           `json:"finish_reason"`
}

type AssistantMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage is always zero; tokens are never counted.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Chunk is one streamed event body.
type Chunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
}

type ChunkChoice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

type Delta struct {
	Content *string `json:"content,omitempty"`
}

package chat

import (
	"strings"

	"github.com/vnmchuo/translate-gateway/internal/apierr"
)

const (
	sourceMarker     = "Source Text: "
	translatedMarker = "\n\nTranslated Text:"

	msgNoText = "No text to translate found in user message."
)

// ExtractText returns the text to translate from the first user message.
// Later messages, including other user messages, are ignored.
func ExtractText(messages []Message) (string, error) {
	for _, m := range messages {
		if m.Role != "user" {
			continue
		}
		text := unwrapTemplate(m.Content.text())
		if text == "" {
			break
		}
		return text, nil
	}
	return "", apierr.BadRequest(msgNoText)
}

// text is the string content, or the text of the first "text" part.
func (c Content) text() string {
	switch c.Kind {
	case ContentText:
		return c.Text
	case ContentParts:
		for _, part := range c.Parts {
			if part.Type == "text" {
				return part.Text
			}
		}
	}
	return ""
}

// unwrapTemplate pulls the source text out of a translation prompt of the
// form "...Source Text: X\n\nTranslated Text:...". Without both markers the
// whole text is used.
func unwrapTemplate(s string) string {
	start := strings.Index(s, sourceMarker)
	if start < 0 {
		return strings.TrimSpace(s)
	}
	start += len(sourceMarker)
	end := strings.Index(s[start:], translatedMarker)
	if end < 0 {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(s[start : start+end])
}

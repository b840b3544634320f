package chat

import (
	"strings"

	"github.com/vnmchuo/translate-gateway/internal/apierr"
)

const (
	// AutoDetect is the source language when the model names only a target.
	AutoDetect = "auto"

	msgBadModel = "Invalid model format. Use 'deepl-TARGET' for auto-detection or 'deepl-SOURCE-TARGET'."
)

// Directive is the language pair decoded from a model identifier.
type Directive struct {
	Provider string
	Source   string
	Target   string
}

// ParseModel decodes "{provider}-{target}" or "{provider}-{source}-{target}".
// Segments are taken verbatim, including empty ones.
func ParseModel(model string) (Directive, error) {
	parts := strings.Split(model, "-")
	switch len(parts) {
	case 2:
		return Directive{Provider: parts[0], Source: AutoDetect, Target: parts[1]}, nil
	case 3:
		return Directive{Provider: parts[0], Source: parts[1], Target: parts[2]}, nil
	default:
		return Directive{}, apierr.BadRequest(msgBadModel)
	}
}

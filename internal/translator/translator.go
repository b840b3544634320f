// Package translator calls the text-translation backend.
package translator

import (
	"context"
	"strings"
)

// Translator turns text from source into target language. Failures are
// *apierr.Error values carrying the status to relay.
type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// Skip reports whether a translation can be answered with the input itself:
// blank text, or identical source and target.
func Skip(text, source, target string) bool {
	return strings.TrimSpace(text) == "" || source == target
}

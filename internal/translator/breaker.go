package translator

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/vnmchuo/translate-gateway/internal/apierr"
)

// Breaker fails fast once the backend has failed repeatedly. Only transport
// failures and 5xx replies count against it; a rejected request is the
// caller's fault, not the backend's.
type Breaker struct {
	next Translator
	cb   *gobreaker.CircuitBreaker
}

func NewBreaker(next Translator, failures uint32, cooldown time.Duration) *Breaker {
	settings := gobreaker.Settings{
		Name:        "translation-backend",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var apiErr *apierr.Error
			if errors.As(err, &apiErr) {
				return apiErr.Status < http.StatusInternalServerError
			}
			return false
		},
	}
	return &Breaker{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (b *Breaker) Translate(ctx context.Context, text, source, target string) (string, error) {
	// Identity answers never reach the backend, so they bypass the breaker.
	if Skip(text, source, target) {
		return text, nil
	}

	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Translate(ctx, text, source, target)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", apierr.Unavailable("Translation service unavailable", err)
	}
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strings"

	"github.com/vnmchuo/translate-gateway/internal/apierr"
)

const (
	msgKeyRequired = "API key required. Please provide it via Authorization header (Bearer token) or X-API-Key header."
	msgKeyInvalid  = "Invalid API key."
)

// Policy decides whether a request may proceed. It is built once from the
// process configuration and is safe for concurrent use.
type Policy struct {
	key      string
	allowAll bool
	origins  []originRule
}

type originRule struct {
	raw     string
	pattern *regexp.Regexp // nil for entries without a wildcard
}

// NewPolicy builds a Policy. An empty key disables key checks; an empty or
// "*" origin list allows every origin.
func NewPolicy(key, allowedOrigins string) *Policy {
	p := &Policy{key: key}
	if allowedOrigins == "" || allowedOrigins == "*" {
		p.allowAll = true
		return p
	}
	for _, entry := range strings.Split(allowedOrigins, ",") {
		entry = strings.TrimSpace(entry)
		rule := originRule{raw: entry}
		if entry != "*" && strings.Contains(entry, "*") {
			rule.pattern = wildcardPattern(entry)
		}
		p.origins = append(p.origins, rule)
	}
	return p
}

// wildcardPattern turns "https://*.b.com" into ^https://.*\.b\.com$.
func wildcardPattern(entry string) *regexp.Regexp {
	parts := strings.Split(entry, "*")
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}
	return regexp.MustCompile("^" + strings.Join(parts, ".*") + "$")
}

func (p *Policy) Protected() bool {
	return p.key != ""
}

// AllowedOrigins lists the configured allow-list, or ["*"] when open.
func (p *Policy) AllowedOrigins() []string {
	if p.allowAll {
		return []string{"*"}
	}
	out := make([]string, len(p.origins))
	for i, rule := range p.origins {
		out[i] = rule.raw
	}
	return out
}

// providedKey returns the explicit key header if present, else the bearer
// token.
func providedKey(h http.Header) string {
	if key := h.Get("X-API-Key"); key != "" {
		return key
	}
	if key := h.Get("api-key"); key != "" {
		return key
	}
	if authHeader := h.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

func (p *Policy) ValidateAPIKey(h http.Header) error {
	if !p.Protected() {
		return nil
	}
	key := providedKey(h)
	if key == "" {
		return apierr.Unauthenticated(msgKeyRequired)
	}
	if subtle.ConstantTimeCompare([]byte(key), []byte(p.key)) != 1 {
		return apierr.Forbidden(msgKeyInvalid)
	}
	return nil
}

// ValidateOrigin returns the origin value to advertise. Requests without an
// Origin header always pass.
func (p *Policy) ValidateOrigin(h http.Header) (string, error) {
	if p.allowAll {
		return "*", nil
	}

	origin := h.Get("Origin")
	if origin != "" {
		for _, rule := range p.origins {
			if rule.raw == origin {
				return origin, nil
			}
		}
	}

	for _, rule := range p.origins {
		if rule.raw == "*" {
			return "*", nil
		}
		if rule.pattern != nil && origin != "" && rule.pattern.MatchString(origin) {
			return origin, nil
		}
	}

	if origin == "" {
		return "*", nil
	}
	return "", apierr.Forbidden(fmt.Sprintf("Origin '%s' not allowed.", origin))
}

// CORSHeaders never fails: a rejected origin is advertised as "null" and the
// preflight max-age is dropped.
func (p *Policy) CORSHeaders(h http.Header) map[string]string {
	headers := map[string]string{
		"Access-Control-Allow-Methods": "POST, OPTIONS",
		"Access-Control-Allow-Headers": "Content-Type, Authorization, X-API-Key, api-key",
	}
	origin, err := p.ValidateOrigin(h)
	if err != nil {
		headers["Access-Control-Allow-Origin"] = "null"
		return headers
	}
	headers["Access-Control-Allow-Origin"] = origin
	headers["Access-Control-Max-Age"] = "86400"
	return headers
}

type Middleware func(next http.Handler) http.Handler

type contextKey string

const callerIDKey contextKey = "caller_id"

// NewCORSMiddleware attaches the computed CORS headers to every response.
func NewCORSMiddleware(p *Policy) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for k, v := range p.CORSHeaders(r.Header) {
				w.Header().Set(k, v)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NewMiddleware enforces the key check and then the origin check. OPTIONS
// requests bypass both.
func NewMiddleware(p *Policy) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			if err := p.ValidateAPIKey(r.Header); err != nil {
				apierr.Write(w, err)
				return
			}
			if _, err := p.ValidateOrigin(r.Header); err != nil {
				apierr.Write(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), callerIDKey, callerID(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// callerID identifies the caller for rate limiting: the hash of the key it
// presented, or its remote host.
func callerID(r *http.Request) string {
	if key := providedKey(r.Header); key != "" {
		return "key:" + hashKey(key)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

func hashKey(key string) string {
	h := sha256.New()
	h.Write([]byte(key))
	return hex.EncodeToString(h.Sum(nil))
}

func GetCallerID(ctx context.Context) string {
	if id, ok := ctx.Value(callerIDKey).(string); ok {
		return id
	}
	return ""
}

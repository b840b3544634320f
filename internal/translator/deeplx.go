package translator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/vnmchuo/translate-gateway/internal/apierr"
)

// maxErrorBody caps how much of a failed response is read for the log.
const maxErrorBody = 4096

type Client struct {
	url        string
	httpClient *http.Client
}

type deeplxRequest struct {
	Text       string `json:"text"`
	TargetLang string `json:"target_lang"`
	SourceLang string `json:"source_lang,omitempty"`
}

type deeplxResponse struct {
	Code    int    `json:"code"`
	Data    string `json:"data"`
	Message string `json:"message"`
}

// New returns a client for a DeepLX-style endpoint. A zero timeout leaves
// the call unbounded.
func New(url string, timeout time.Duration) *Client {
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Translate makes exactly one POST to the backend unless Skip applies.
// source_lang is sent whenever source is non-empty, "auto" included.
func (c *Client) Translate(ctx context.Context, text, source, target string) (string, error) {
	if Skip(text, source, target) {
		return text, nil
	}

	body, err := json.Marshal(deeplxRequest{
		Text:       text,
		TargetLang: target,
		SourceLang: source,
	})
	if err != nil {
		return "", apierr.Internal(fmt.Sprintf("Error connecting to translation service: %v", err), err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.url, bytes.NewBuffer(body))
	if err != nil {
		return "", apierr.Internal(fmt.Sprintf("Error connecting to translation service: %v", err), err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		log.Printf("translator: http client error: %v", err)
		return "", apierr.Internal(fmt.Sprintf("Error connecting to translation service: %v", err), err)
	}
	defer resp.Body.Close()

	from := source
	if from == "" {
		from = "auto"
	}
	log.Printf("Translation from '%s' to '%s' took: %.2fs", from, target, time.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		log.Printf("translator: failed with status %d: %s", resp.StatusCode, string(respBody))
		return "", apierr.Upstream(resp.StatusCode, fmt.Sprintf("Translation service returned status %d", resp.StatusCode))
	}

	var result deeplxResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		log.Printf("translator: undecodable response: %v", err)
		return "", apierr.Internal(fmt.Sprintf("Error connecting to translation service: %v", err), err)
	}

	if result.Code != http.StatusOK {
		log.Printf("translator: api error: %+v", result)
		msg := result.Message
		if msg == "" {
			msg = "Unknown error"
		}
		return "", apierr.Upstream(http.StatusBadRequest, fmt.Sprintf("Translation API error: %s", msg))
	}

	return result.Data, nil
}

// Package usage records completed translations and summarises them.
package usage

import (
	"context"
	"time"
)

type Record struct {
	RequestID  string
	Model      string
	SourceLang string
	TargetLang string
	CharsIn    int
	CharsOut   int
	LatencyMs  int64
	Stream     bool
}

type Summary struct {
	TotalRequests int64     `json:"total_requests"`
	CharsIn       int64     `json:"chars_in"`
	CharsOut      int64     `json:"chars_out"`
	From          time.Time `json:"from"`
	To            time.Time `json:"to"`
}

type Store interface {
	Log(ctx context.Context, rec *Record) error
	Summarize(ctx context.Context, from, to time.Time) (*Summary, error)
}

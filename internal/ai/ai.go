package ai

import (
	"context"
	"errors"
)

// ErrMalformedResponse marks a reply the model returned but the adapter
// could not parse into a structured verdict.
var ErrMalformedResponse = errors.New("malformed model response")

// Verdict is the raw structured classification the model returns. Range
// clamping happens in the classifier, not here.
type Verdict struct {
	IsTicket   bool   `json:"is_ticket"`
	Confidence int    `json:"confidence"`
	Category   string `json:"category"`
	Urgency    int    `json:"urgency"`
}

// Enrichment is the raw post-creation refinement payload.
type Enrichment struct {
	Urgency  int    `json:"urgency"`
	Category string `json:"category"`
	Location string `json:"location"`
	Summary  string `json:"summary"`
}

type Adapter interface {
	ClassifyText(ctx context.Context, text string) (Verdict, error)
	EnrichText(ctx context.Context, combined string) (Enrichment, error)
}

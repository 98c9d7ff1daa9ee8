// Package classifier implements the two-layer message classification
// pipeline: deterministic keyword/heuristic rules first, a language-model
// fallback for the rest. The pipeline never fails closed — any model fault
// degrades to a low-confidence "create a ticket" verdict.
package classifier

import (
	"context"
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/fleetrelay/backend/internal/ai"
	"github.com/fleetrelay/backend/internal/models"
	"github.com/fleetrelay/backend/internal/utils"
)

const (
	maxClassifyChars = 1000
	maxEnrichChars   = 2000
)

type Classifier struct {
	AI     ai.Adapter
	Logger zerolog.Logger
}

// Classify runs the full pipeline. It always returns a usable result; model
// faults resolve to the fail-open verdict.
func (c *Classifier) Classify(ctx context.Context, msg models.Message) models.ClassificationResult {
	if res, decided := classifyDeterministic(msg); decided {
		return res
	}

	text := strings.TrimSpace(msg.Text)
	if text != "" {
		return c.classifyAI(ctx, text)
	}

	// No text and no media. Unreachable through the deterministic rules,
	// kept as the terminal branch so the pipeline can never return nothing.
	return models.ClassificationResult{
		IsTicket:   false,
		Confidence: 5,
		Category:   models.CategoryUnclassified,
		Urgency:    1,
		Layer:      models.LayerDeterministic,
		Reason:     "no_content",
	}
}

// classifyDeterministic applies the fixed-precedence rule set. The second
// return value is false when the rules are undecided and the model layer
// should run.
func classifyDeterministic(msg models.Message) (models.ClassificationResult, bool) {
	if msg.HasPhoto || msg.HasVideo {
		return models.ClassificationResult{
			IsTicket:   true,
			Confidence: 4,
			Category:   models.CategoryUnclassified,
			Urgency:    3,
			Layer:      models.LayerDeterministic,
			Reason:     "media_attachment",
		}, true
	}

	if msg.HasDocument {
		return models.ClassificationResult{
			IsTicket:   true,
			Confidence: 3,
			Category:   models.CategoryDocumentation,
			Urgency:    2,
			Layer:      models.LayerDeterministic,
			Reason:     "document_attachment",
		}, true
	}

	// Location sharing suggests a roadside issue.
	if msg.HasLocation {
		return models.ClassificationResult{
			IsTicket:   true,
			Confidence: 4,
			Category:   models.CategoryMechanical,
			Urgency:    4,
			Layer:      models.LayerDeterministic,
			Reason:     "location_shared",
		}, true
	}

	// Voice messages get flagged for review.
	if msg.HasVoice {
		return models.ClassificationResult{
			IsTicket:   true,
			Confidence: 3,
			Category:   models.CategoryUnclassified,
			Urgency:    3,
			Layer:      models.LayerDeterministic,
			Reason:     "voice_message",
		}, true
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return notATicket("empty_message"), true
	}

	if isNoise(text) {
		return notATicket("dismissed_noise"), true
	}

	if category, urgency, ok := matchKeywords(text); ok {
		return models.ClassificationResult{
			IsTicket:   true,
			Confidence: 4,
			Category:   category,
			Urgency:    urgency,
			Layer:      models.LayerDeterministic,
			Reason:     "keyword_match",
		}, true
	}

	return models.ClassificationResult{}, false
}

func notATicket(reason string) models.ClassificationResult {
	return models.ClassificationResult{
		IsTicket:   false,
		Confidence: 5,
		Category:   models.CategoryUnclassified,
		Urgency:    1,
		Layer:      models.LayerDeterministic,
		Reason:     reason,
	}
}

// isNoise reports whether text is a greeting/acknowledgment/reaction that
// should never open a ticket.
func isNoise(text string) bool {
	if text == "" {
		return true
	}
	if utf8.RuneCountInString(text) <= 3 && !containsLetter(text) {
		return true
	}

	// A lone short word is noise unless it carries a protected keyword.
	if len(strings.Fields(text)) == 1 && utf8.RuneCountInString(text) < 6 {
		lower := strings.ToLower(text)
		protected := false
		for _, kw := range protectedShortWords {
			if strings.Contains(lower, kw) {
				protected = true
				break
			}
		}
		if !protected {
			return true
		}
	}

	for _, p := range dismissPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

func containsLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// matchKeywords scans the keyword table and picks the highest-urgency match,
// earliest rule winning ties.
func matchKeywords(text string) (models.TicketCategory, int, bool) {
	lower := strings.ToLower(text)
	var bestCategory models.TicketCategory
	bestUrgency := 0

	for _, rule := range ticketKeywords {
		if !strings.Contains(lower, rule.keyword) {
			continue
		}
		urgency, ok := keywordUrgency[rule.keyword]
		if !ok {
			urgency = 3
		}
		if urgency > bestUrgency {
			bestUrgency = urgency
			bestCategory = rule.category
		}
	}

	if bestUrgency == 0 {
		return "", 0, false
	}
	return bestCategory, bestUrgency, true
}

func (c *Classifier) classifyAI(ctx context.Context, text string) models.ClassificationResult {
	verdict, err := c.AI.ClassifyText(ctx, utils.Truncate(text, maxClassifyChars))
	if err != nil {
		reason := "ai_call_failed"
		if errors.Is(err, ai.ErrMalformedResponse) {
			reason = "ai_parse_error"
		}
		c.Logger.Error().Err(err).Str("reason", reason).Msg("model classification failed, failing open")
		return failOpenResult(reason)
	}

	category := verdict.Category
	if category == "" {
		category = string(models.CategoryUnclassified)
	}
	if !models.ValidCategory(category) {
		c.Logger.Warn().Str("category", verdict.Category).Msg("model returned unknown category, failing open")
		return failOpenResult("ai_parse_error")
	}

	confidence := verdict.Confidence
	if confidence == 0 {
		confidence = 3
	}
	urgency := verdict.Urgency
	if urgency == 0 {
		urgency = 3
	}
	return models.ClassificationResult{
		IsTicket:   verdict.IsTicket,
		Confidence: clamp(confidence, 1, 5),
		Category:   models.TicketCategory(category),
		Urgency:    clamp(urgency, 1, 5),
		Layer:      models.LayerAI,
		Reason:     "model_classification",
	}
}

// failOpenResult is the dominant design choice of the whole pipeline: when
// the model cannot be consulted, create a ticket rather than lose a driver
// message.
func failOpenResult(reason string) models.ClassificationResult {
	return models.ClassificationResult{
		IsTicket:   true,
		Confidence: 0,
		Category:   models.CategoryUnclassified,
		Urgency:    3,
		Layer:      models.LayerAI,
		Reason:     reason,
	}
}

// Enrich asks the model to refine urgency/category/location/summary from the
// concatenated ticket texts. Failures degrade to the neutral result.
func (c *Classifier) Enrich(ctx context.Context, texts []string) models.EnrichmentResult {
	combined := utils.Truncate(strings.Join(texts, "\n---\n"), maxEnrichChars)

	raw, err := c.AI.EnrichText(ctx, combined)
	if err != nil {
		c.Logger.Error().Err(err).Msg("ticket enrichment failed")
		return models.NeutralEnrichment()
	}

	category := raw.Category
	if category == "" {
		category = string(models.CategoryUnclassified)
	}
	if !models.ValidCategory(category) {
		c.Logger.Warn().Str("category", raw.Category).Msg("enrichment returned unknown category")
		return models.NeutralEnrichment()
	}

	urgency := raw.Urgency
	if urgency == 0 {
		urgency = 3
	}
	return models.EnrichmentResult{
		Urgency:  clamp(urgency, 1, 5),
		Category: models.TicketCategory(category),
		Location: raw.Location,
		Summary:  raw.Summary,
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

package classifier

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"github.com/fleetrelay/backend/internal/ai"
	"github.com/fleetrelay/backend/internal/models"
)

type fakeAdapter struct {
	verdict    ai.Verdict
	verdictErr error
	enrich     ai.Enrichment
	enrichErr  error
	calls      int
}

func (f *fakeAdapter) ClassifyText(ctx context.Context, text string) (ai.Verdict, error) {
	f.calls++
	return f.verdict, f.verdictErr
}

func (f *fakeAdapter) EnrichText(ctx context.Context, combined string) (ai.Enrichment, error) {
	f.calls++
	return f.enrich, f.enrichErr
}

func newClassifier(a ai.Adapter) *Classifier {
	return &Classifier{AI: a, Logger: zerolog.Nop()}
}

func textMessage(text string) models.Message {
	return models.Message{ID: "m1", Text: text}
}

func TestDeterministicMediaPrecedence(t *testing.T) {
	cases := []struct {
		name     string
		msg      models.Message
		category models.TicketCategory
		conf     int
		urgency  int
		reason   string
	}{
		{"photo", models.Message{HasPhoto: true, HasDocument: true}, models.CategoryUnclassified, 4, 3, "media_attachment"},
		{"video", models.Message{HasVideo: true}, models.CategoryUnclassified, 4, 3, "media_attachment"},
		{"document", models.Message{HasDocument: true, HasLocation: true}, models.CategoryDocumentation, 3, 2, "document_attachment"},
		{"location", models.Message{HasLocation: true, HasVoice: true}, models.CategoryMechanical, 4, 4, "location_shared"},
		{"voice", models.Message{HasVoice: true}, models.CategoryUnclassified, 3, 3, "voice_message"},
	}

	c := newClassifier(&fakeAdapter{})
	for _, tc := range cases {
		res := c.Classify(context.Background(), tc.msg)
		if !res.IsTicket {
			t.Fatalf("%s: expected ticket", tc.name)
		}
		if res.Category != tc.category || res.Confidence != tc.conf || res.Urgency != tc.urgency {
			t.Fatalf("%s: got category=%s conf=%d urgency=%d", tc.name, res.Category, res.Confidence, res.Urgency)
		}
		if res.Reason != tc.reason || res.Layer != models.LayerDeterministic {
			t.Fatalf("%s: got reason=%s layer=%s", tc.name, res.Reason, res.Layer)
		}
	}
}

func TestEmptyMessageDismissed(t *testing.T) {
	a := &fakeAdapter{}
	c := newClassifier(a)
	res := c.Classify(context.Background(), textMessage("   "))
	if res.IsTicket || res.Confidence != 5 || res.Reason != "empty_message" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if a.calls != 0 {
		t.Fatalf("model must not be consulted for empty text")
	}
}

func TestNoiseFilter(t *testing.T) {
	noise := []string{
		"ok", "Okay.", "yes", "thanks", "Thank you.", "hi", "Hello!",
		"...", "!!!", "👍", "lol", "haha", "привет", "salom", "+1", "k",
	}
	c := newClassifier(&fakeAdapter{})
	for _, text := range noise {
		res := c.Classify(context.Background(), textMessage(text))
		if res.IsTicket {
			t.Fatalf("%q: expected noise dismissal", text)
		}
		if res.Reason != "dismissed_noise" {
			t.Fatalf("%q: got reason %s", text, res.Reason)
		}
	}
}

func TestNoiseFilterProtectedShortWords(t *testing.T) {
	// Short single words normally dismissed, except the protected set.
	for _, text := range []string{"help", "fuel", "fire", "flat"} {
		res, decided := classifyDeterministic(textMessage(text))
		if decided && !res.IsTicket {
			t.Fatalf("%q: protected keyword must not be dismissed as noise", text)
		}
	}

	res, decided := classifyDeterministic(textMessage("meh"))
	if !decided || res.IsTicket {
		t.Fatalf("expected short unprotected word to be dismissed, got %+v", res)
	}
}

func TestKeywordMatchPicksHighestUrgency(t *testing.T) {
	c := newClassifier(&fakeAdapter{})

	res := c.Classify(context.Background(), textMessage("my truck broke down on I-80"))
	if !res.IsTicket || res.Category != models.CategoryMechanical || res.Urgency != 4 || res.Confidence != 4 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Reason != "keyword_match" {
		t.Fatalf("got reason %s", res.Reason)
	}

	// "flat tire" (urgency 3) must beat "paperwork" (urgency 1).
	res = c.Classify(context.Background(), textMessage("flat tire, also need paperwork sorted"))
	if res.Category != models.CategoryTire || res.Urgency != 3 {
		t.Fatalf("expected tire/3, got %s/%d", res.Category, res.Urgency)
	}
}

func TestKeywordTieBreakIsTableOrder(t *testing.T) {
	// "accident" and "crash" are both urgency 5; the earlier rule wins.
	category, urgency, ok := matchKeywords("there was a crash, an accident on the ramp")
	if !ok || urgency != 5 {
		t.Fatalf("expected urgency-5 match, got ok=%v urgency=%d", ok, urgency)
	}
	if category != models.CategoryAccident {
		t.Fatalf("expected accident, got %s", category)
	}
}

func TestAIVerdictClamped(t *testing.T) {
	a := &fakeAdapter{verdict: ai.Verdict{IsTicket: true, Confidence: 9, Category: "tire", Urgency: 7}}
	c := newClassifier(a)
	res := c.Classify(context.Background(), textMessage("something vague about the vehicle"))
	if res.Confidence != 5 || res.Urgency != 5 {
		t.Fatalf("expected clamped 5/5, got %d/%d", res.Confidence, res.Urgency)
	}
	if res.Category != models.CategoryTire || res.Layer != models.LayerAI {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestAIFailOpenOnError(t *testing.T) {
	a := &fakeAdapter{verdictErr: errors.New("connection refused")}
	c := newClassifier(a)
	res := c.Classify(context.Background(), textMessage("not sure what's wrong, something feels off"))
	if !res.IsTicket || res.Confidence != 0 || res.Urgency != 3 {
		t.Fatalf("expected fail-open result, got %+v", res)
	}
	if res.Category != models.CategoryUnclassified || res.Layer != models.LayerAI || res.Reason != "ai_call_failed" {
		t.Fatalf("unexpected fail-open fields: %+v", res)
	}
}

func TestAIFailOpenOnMalformedResponse(t *testing.T) {
	a := &fakeAdapter{verdictErr: fmt.Errorf("%w: bad json", ai.ErrMalformedResponse)}
	c := newClassifier(a)
	res := c.Classify(context.Background(), textMessage("vague message"))
	if !res.IsTicket || res.Reason != "ai_parse_error" {
		t.Fatalf("expected ai_parse_error fail-open, got %+v", res)
	}
}

func TestAIFailOpenOnUnknownCategory(t *testing.T) {
	a := &fakeAdapter{verdict: ai.Verdict{IsTicket: true, Confidence: 4, Category: "weather", Urgency: 2}}
	c := newClassifier(a)
	res := c.Classify(context.Background(), textMessage("vague message"))
	if res.Reason != "ai_parse_error" || res.Confidence != 0 {
		t.Fatalf("expected fail-open on unknown category, got %+v", res)
	}
}

func TestEnrichFailSoft(t *testing.T) {
	a := &fakeAdapter{enrichErr: errors.New("timeout")}
	c := newClassifier(a)
	res := c.Enrich(context.Background(), []string{"engine trouble near Omaha"})
	if res != models.NeutralEnrichment() {
		t.Fatalf("expected neutral enrichment, got %+v", res)
	}
}

func TestEnrichClampsAndValidates(t *testing.T) {
	a := &fakeAdapter{enrich: ai.Enrichment{Urgency: 8, Category: "fuel", Location: "I-80 mm 123", Summary: "Out of diesel"}}
	c := newClassifier(a)
	res := c.Enrich(context.Background(), []string{"ran out of diesel"})
	if res.Urgency != 5 || res.Category != models.CategoryFuel {
		t.Fatalf("unexpected enrichment: %+v", res)
	}
	if res.Location != "I-80 mm 123" || res.Summary != "Out of diesel" {
		t.Fatalf("unexpected enrichment text fields: %+v", res)
	}
}

package service

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetrelay/backend/internal/models"
)

func TestBufferHoldAndConsume(t *testing.T) {
	b := NewBuffer(time.Minute, zerolog.Nop())

	msg := models.Message{ID: "m1", SenderID: 42, Text: "something odd"}
	cls := models.ClassificationResult{IsTicket: true, Confidence: 1, Urgency: 3, Category: models.CategoryUnclassified}

	if err := b.Hold(42, msg, cls); err != nil {
		t.Fatalf("hold: %v", err)
	}
	if b.Len() != 1 {
		t.Fatalf("expected occupancy 1, got %d", b.Len())
	}

	entry, ok := b.Consume(42)
	if !ok {
		t.Fatalf("expected held entry")
	}
	if entry.Message.ID != "m1" || entry.Classification.Confidence != 1 {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if b.Len() != 0 {
		t.Fatalf("slot must be removed on consume")
	}

	if _, ok := b.Consume(42); ok {
		t.Fatalf("second consume must find nothing")
	}
}

func TestBufferDoubleHoldIsError(t *testing.T) {
	b := NewBuffer(time.Minute, zerolog.Nop())
	msg := models.Message{ID: "m1", SenderID: 7}
	cls := models.ClassificationResult{IsTicket: true, Confidence: 2}

	if err := b.Hold(7, msg, cls); err != nil {
		t.Fatalf("hold: %v", err)
	}
	if err := b.Hold(7, msg, cls); !errors.Is(err, ErrSlotOccupied) {
		t.Fatalf("expected ErrSlotOccupied, got %v", err)
	}
}

func TestSweepExpiredRemovesOnlyExpired(t *testing.T) {
	b := NewBuffer(time.Minute, zerolog.Nop())
	_ = b.Hold(1, models.Message{ID: "old", SenderID: 1}, models.ClassificationResult{})
	_ = b.Hold(2, models.Message{ID: "fresh", SenderID: 2}, models.ClassificationResult{})

	expired := b.SweepExpired(time.Now().UTC())
	if len(expired) != 0 {
		t.Fatalf("nothing should expire before the grace period")
	}

	expired = b.SweepExpired(time.Now().UTC().Add(2 * time.Minute))
	if len(expired) != 2 {
		t.Fatalf("expected both entries expired, got %d", len(expired))
	}
	if b.Len() != 0 {
		t.Fatalf("expired slots must be removed")
	}
}

func TestMergeClassifications(t *testing.T) {
	held := models.ClassificationResult{
		IsTicket:   true,
		Confidence: 0,
		Category:   models.CategoryUnclassified,
		Urgency:    3,
		Layer:      models.LayerAI,
	}
	incoming := models.ClassificationResult{
		IsTicket:   true,
		Confidence: 4,
		Category:   models.CategoryTire,
		Urgency:    3,
		Layer:      models.LayerDeterministic,
	}

	merged := MergeClassifications(held, incoming)
	if merged.Confidence != 4 {
		t.Fatalf("confidence must be max(held,new), got %d", merged.Confidence)
	}
	if merged.Urgency != 3 {
		t.Fatalf("urgency must be max(held,new), got %d", merged.Urgency)
	}
	if merged.Category != models.CategoryUnclassified {
		t.Fatalf("held category must win, got %s", merged.Category)
	}
	if merged.Layer != models.LayerBufferMerge || merged.Reason != "follow_up_received" {
		t.Fatalf("unexpected merge metadata: %+v", merged)
	}
	if !merged.IsTicket {
		t.Fatalf("merged result must be a ticket")
	}
}

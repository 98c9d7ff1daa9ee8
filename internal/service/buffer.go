package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetrelay/backend/internal/models"
)

// ErrSlotOccupied signals a hold on an already-occupied slot. Callers
// consume before holding, so observing this is a programming error.
var ErrSlotOccupied = errors.New("buffer slot already occupied for sender")

// Buffer holds at most one low-confidence message per sender for a short
// grace period, waiting for a follow-up that strengthens the signal.
type Buffer struct {
	mu     sync.Mutex
	slots  map[int64]models.BufferedMessage
	ttl    time.Duration
	logger zerolog.Logger
}

func NewBuffer(ttl time.Duration, logger zerolog.Logger) *Buffer {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Buffer{
		slots:  make(map[int64]models.BufferedMessage),
		ttl:    ttl,
		logger: logger,
	}
}

// Hold parks the message with an absolute expiry one grace period out.
func (b *Buffer) Hold(senderID int64, msg models.Message, cls models.ClassificationResult) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.slots[senderID]; exists {
		return ErrSlotOccupied
	}
	b.slots[senderID] = models.BufferedMessage{
		Message:        msg,
		Classification: cls,
		ExpiresAt:      time.Now().UTC().Add(b.ttl),
	}
	b.logger.Info().
		Int64("sender_id", senderID).
		Int("confidence", cls.Confidence).
		Dur("ttl", b.ttl).
		Msg("message buffered awaiting follow-up")
	return nil
}

// Consume removes and returns the sender's slot, if any.
func (b *Buffer) Consume(senderID int64) (models.BufferedMessage, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.slots[senderID]
	if ok {
		delete(b.slots, senderID)
	}
	return entry, ok
}

// Len reports current occupancy for health checks.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.slots)
}

type expiredEntry struct {
	SenderID int64
	Entry    models.BufferedMessage
}

// SweepExpired removes every slot whose expiry has passed and returns the
// removed entries. The "driver never followed up" case: no ticket results.
func (b *Buffer) SweepExpired(now time.Time) []expiredEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	var expired []expiredEntry
	for senderID, entry := range b.slots {
		if !entry.ExpiresAt.After(now) {
			expired = append(expired, expiredEntry{SenderID: senderID, Entry: entry})
			delete(b.slots, senderID)
		}
	}
	return expired
}

// Run sweeps on the given interval until the context is cancelled, invoking
// onExpire for each discarded entry.
func (b *Buffer) Run(ctx context.Context, interval time.Duration, onExpire func(senderID int64, entry models.BufferedMessage)) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, e := range b.SweepExpired(now.UTC()) {
				b.logger.Info().
					Int64("sender_id", e.SenderID).
					Int("confidence", e.Entry.Classification.Confidence).
					Msg("buffer expired, silently discarded")
				if onExpire != nil {
					onExpire(e.SenderID, e.Entry)
				}
			}
		}
	}
}

// MergeClassifications combines a held classification with a follow-up:
// confidence and urgency take the max, the held entry's category wins
// (first signal names the issue).
func MergeClassifications(held, incoming models.ClassificationResult) models.ClassificationResult {
	return models.ClassificationResult{
		IsTicket:   true,
		Confidence: maxInt(held.Confidence, incoming.Confidence),
		Category:   held.Category,
		Urgency:    maxInt(held.Urgency, incoming.Urgency),
		Layer:      models.LayerBufferMerge,
		Reason:     "follow_up_received",
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Package service holds the ticket-correlation engine: the correlator that
// routes every inbound message, the per-sender buffer for weak signals, and
// the background enrichment worker.
package service

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetrelay/backend/internal/events"
	"github.com/fleetrelay/backend/internal/models"
	"github.com/fleetrelay/backend/internal/utils"
)

// bufferConfidenceMax is the highest confidence that still goes through the
// buffer instead of creating a ticket outright.
const bufferConfidenceMax = 2

// Datastore is the slice of the persistent store the correlation engine
// needs.
type Datastore interface {
	FindOpenTicket(ctx context.Context, driverID string, source models.MessageSource, connectionID string, chatID int64, window time.Duration) (*models.TicketRef, error)
	FindRecentlyResolvedTicket(ctx context.Context, driverID string, window time.Duration) (*models.TicketRef, error)
	FindTicketByOriginMessage(ctx context.Context, chatID, originMessageID int64) (*models.TicketRef, error)
	CreateTicket(ctx context.Context, t models.Ticket) error
	AppendMessageToTicket(ctx context.Context, ticketID string, msg models.Message, driverName string) error
	UpdateTicketEnrichment(ctx context.Context, ticketID string, e models.EnrichmentResult) error
	LogRawMessage(ctx context.Context, rec models.AuditRecord) error
}

// MessageClassifier is satisfied by classifier.Classifier.
type MessageClassifier interface {
	Classify(ctx context.Context, msg models.Message) models.ClassificationResult
	Enrich(ctx context.Context, texts []string) models.EnrichmentResult
}

var gratitudePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(thanks?|thank\s*you|thx|ty)\.?!?$`),
	regexp.MustCompile(`(?i)^(rahmat|raxmat|спасибо|спс|благодарю)\.?!?$`),
}

func isGratitude(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	for _, p := range gratitudePatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// Correlator decides, for every inbound message, whether it continues an
// existing ticket, becomes a new one, gets buffered, or is discarded.
type Correlator struct {
	Store      Datastore
	Classifier MessageClassifier
	Buffer     *Buffer
	Worker     *Worker
	Events     *events.Producer
	Logger     zerolog.Logger

	OpenWindow     time.Duration
	ResolvedWindow time.Duration

	locks senderLocks
}

// Route is the single entry point: one call per inbound message. Handling
// is serialized per sender; messages from different senders run
// concurrently.
func (c *Correlator) Route(ctx context.Context, msg models.Message, driver models.Driver, sourceName string) (models.Outcome, error) {
	unlock := c.locks.lock(msg.SenderID)
	defer unlock()

	// Explicit reply intent overrides the time window.
	if msg.Source == models.SourceGroup && msg.ReplyToID != 0 {
		ref, err := c.Store.FindTicketByOriginMessage(ctx, msg.ChatID, msg.ReplyToID)
		if err != nil {
			return models.Outcome{}, err
		}
		if ref != nil {
			return c.appendTo(ctx, ref.ID, msg, driver, "reply_thread")
		}
	}

	ref, err := c.Store.FindOpenTicket(ctx, driver.ID, msg.Source, msg.ConnectionID, msg.ChatID, c.openWindow())
	if err != nil {
		return models.Outcome{}, err
	}
	if ref != nil {
		return c.appendTo(ctx, ref.ID, msg, driver, "window_match")
	}

	// A courtesy reply after a recent resolution must not reopen anything.
	if msg.Source == models.SourceDM && isGratitude(msg.Text) {
		resolved, err := c.Store.FindRecentlyResolvedTicket(ctx, driver.ID, c.resolvedWindow())
		if err != nil {
			return models.Outcome{}, err
		}
		if resolved != nil {
			c.audit(ctx, msg, models.OutcomeDismissed, "gratitude_after_resolve", "")
			c.Logger.Info().
				Str("driver_id", driver.ID).
				Str("resolved_ticket_id", resolved.ID).
				Msg("gratitude message dismissed")
			return models.Outcome{Kind: models.OutcomeDismissed, Layer: "gratitude_after_resolve"}, nil
		}
	}

	cls := c.Classifier.Classify(ctx, msg)
	c.Logger.Debug().
		Str("driver_id", driver.ID).
		Bool("is_ticket", cls.IsTicket).
		Int("confidence", cls.Confidence).
		Str("category", string(cls.Category)).
		Str("layer", cls.Layer).
		Str("reason", cls.Reason).
		Msg("message classified")

	if !cls.IsTicket {
		c.audit(ctx, msg, models.OutcomeDismissed, cls.Layer, "")
		return models.Outcome{Kind: models.OutcomeDismissed, Layer: cls.Layer}, nil
	}

	// A sender with a held message gets the two merged into one ticket,
	// whatever the new confidence.
	if held, ok := c.Buffer.Consume(msg.SenderID); ok {
		merged := MergeClassifications(held.Classification, cls)
		ticketID, err := c.createTicket(ctx, msg, merged, driver, sourceName, []models.Message{held.Message})
		if err != nil {
			return models.Outcome{}, err
		}
		return models.Outcome{Kind: models.OutcomeCreated, TicketID: ticketID, Layer: merged.Layer}, nil
	}

	if cls.Confidence <= bufferConfidenceMax {
		c.audit(ctx, msg, models.OutcomeBuffered, cls.Layer, "")
		if err := c.Buffer.Hold(msg.SenderID, msg, cls); err != nil {
			return models.Outcome{}, err
		}
		return models.Outcome{Kind: models.OutcomeBuffered, Layer: cls.Layer}, nil
	}

	ticketID, err := c.createTicket(ctx, msg, cls, driver, sourceName, nil)
	if err != nil {
		return models.Outcome{}, err
	}
	return models.Outcome{Kind: models.OutcomeCreated, TicketID: ticketID, Layer: cls.Layer}, nil
}

// RunSweep drives the buffer's periodic sweep until ctx is cancelled,
// auditing each expired entry.
func (c *Correlator) RunSweep(ctx context.Context, interval time.Duration) {
	c.Buffer.Run(ctx, interval, func(senderID int64, entry models.BufferedMessage) {
		c.audit(ctx, entry.Message, models.OutcomeExpired, "buffer_sweep", "")
	})
}

func (c *Correlator) appendTo(ctx context.Context, ticketID string, msg models.Message, driver models.Driver, matcher string) (models.Outcome, error) {
	if err := c.Store.AppendMessageToTicket(ctx, ticketID, msg, driver.DisplayName()); err != nil {
		return models.Outcome{}, err
	}
	c.audit(ctx, msg, models.OutcomeAppended, matcher, ticketID)
	if c.Events != nil {
		c.Events.Emit(ctx, events.TicketAppended, ticketID, map[string]any{
			"driver_id": driver.ID,
			"matcher":   matcher,
		})
	}
	c.Logger.Info().
		Str("ticket_id", ticketID).
		Str("driver_id", driver.ID).
		Str("matcher", matcher).
		Msg("message appended to existing ticket")
	return models.Outcome{Kind: models.OutcomeAppended, TicketID: ticketID, Layer: matcher}, nil
}

// createTicket persists a new ticket seeded with msg plus any extra held
// messages, then schedules enrichment in the background.
func (c *Correlator) createTicket(ctx context.Context, msg models.Message, cls models.ClassificationResult, driver models.Driver, sourceName string, extra []models.Message) (string, error) {
	all := append([]models.Message{msg}, extra...)
	ids := make([]string, 0, len(all))
	for _, m := range all {
		ids = append(ids, m.ID)
	}

	ticket := models.Ticket{
		ID:           utils.NewID(),
		DriverID:     driver.ID,
		Status:       models.StatusOpen,
		AICategory:   cls.Category,
		AIUrgency:    cls.Urgency,
		SourceType:   msg.Source,
		SourceChatID: msg.ChatID,
		SourceName:   sourceName,
		ConnectionID: msg.ConnectionID,
		IsUrgent:     cls.Urgency >= models.UrgentThreshold,
		Priority:     models.PriorityFor(cls.Urgency),
		MessageIDs:   ids,
	}

	if err := c.Store.CreateTicket(ctx, ticket); err != nil {
		return "", err
	}
	for _, m := range all {
		if err := c.Store.AppendMessageToTicket(ctx, ticket.ID, m, driver.DisplayName()); err != nil {
			return "", err
		}
	}

	c.audit(ctx, msg, models.OutcomeCreated, cls.Layer, ticket.ID)
	if c.Events != nil {
		c.Events.Emit(ctx, events.TicketCreated, ticket.ID, map[string]any{
			"driver_id": driver.ID,
			"category":  cls.Category,
			"urgency":   cls.Urgency,
			"priority":  ticket.Priority,
		})
	}

	c.Logger.Info().
		Str("ticket_id", ticket.ID).
		Str("driver_id", driver.ID).
		Str("category", string(cls.Category)).
		Int("urgency", cls.Urgency).
		Int("confidence", cls.Confidence).
		Str("layer", cls.Layer).
		Msg("ticket created")

	var texts []string
	for _, m := range all {
		if m.Text != "" {
			texts = append(texts, m.Text)
		}
	}
	if len(texts) > 0 && c.Worker != nil {
		c.Worker.Enqueue(ticket.ID, texts)
	}

	return ticket.ID, nil
}

// audit writes one raw-message row. The trail is best-effort: a datastore
// fault here is logged and never aborts the routing decision.
func (c *Correlator) audit(ctx context.Context, msg models.Message, result models.OutcomeKind, source, ticketID string) {
	rec := models.AuditRecord{
		Message:  msg,
		Result:   result,
		Source:   source,
		TicketID: ticketID,
	}
	if err := c.Store.LogRawMessage(ctx, rec); err != nil {
		c.Logger.Error().Err(err).
			Str("result", string(result)).
			Str("source", source).
			Msg("failed to write audit row")
	}
}

func (c *Correlator) openWindow() time.Duration {
	if c.OpenWindow > 0 {
		return c.OpenWindow
	}
	return 4 * time.Hour
}

func (c *Correlator) resolvedWindow() time.Duration {
	if c.ResolvedWindow > 0 {
		return c.ResolvedWindow
	}
	return 24 * time.Hour
}

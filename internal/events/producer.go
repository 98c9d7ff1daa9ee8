// Package events publishes ticket lifecycle events to Kafka. Delivery is
// best-effort: the routing pipeline never blocks on or fails because of the
// event stream.
package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

const (
	TicketCreated  = "ticket.created"
	TicketAppended = "ticket.appended"
	TicketEnriched = "ticket.enriched"
)

type Producer struct {
	writer *kafka.Writer
	logger zerolog.Logger
}

// NewProducer builds a producer. With no brokers or topic configured every
// method is a no-op.
func NewProducer(brokers []string, topic string, logger zerolog.Logger) *Producer {
	if len(brokers) == 0 || topic == "" {
		return &Producer{logger: logger}
	}
	return &Producer{
		logger: logger,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// Emit sends one ticket event keyed by ticket id.
func (p *Producer) Emit(ctx context.Context, event, ticketID string, payload map[string]any) {
	if p.writer == nil {
		return
	}
	msg := map[string]any{"event": event, "ticket_id": ticketID, "at": time.Now().UTC()}
	for k, v := range payload {
		msg[k] = v
	}
	body, err := json.Marshal(msg)
	if err != nil {
		p.logger.Error().Err(err).Str("event", event).Msg("marshal ticket event")
		return
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(ticketID), Value: body}); err != nil {
		p.logger.Error().Err(err).Str("event", event).Str("ticket_id", ticketID).Msg("write ticket event")
	}
}

func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// ParseBrokers splits "host1:9092,host2:9092" into a broker list.
func ParseBrokers(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

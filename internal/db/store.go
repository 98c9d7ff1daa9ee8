package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetrelay/backend/internal/models"
	"github.com/fleetrelay/backend/internal/utils"
)

type Store struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

var openStatuses = []string{
	string(models.StatusOpen),
	string(models.StatusInProgress),
	string(models.StatusOnHold),
}

// --- Connection registry ---

// LookupConnection returns the display name of an active registered source.
// ok is false for unregistered or inactive sources.
func (s *Store) LookupConnection(ctx context.Context, source models.MessageSource, chatID int64, connectionID string) (name string, ok bool, err error) {
	var row pgx.Row
	if source == models.SourceDM {
		row = s.Pool.QueryRow(ctx, `
			SELECT display_name FROM telegram_connections
			WHERE connection_type = 'business_account' AND business_connection_id = $1 AND is_active
			LIMIT 1
		`, connectionID)
	} else {
		row = s.Pool.QueryRow(ctx, `
			SELECT display_name FROM telegram_connections
			WHERE connection_type = 'group' AND chat_id = $1 AND is_active
			LIMIT 1
		`, chatID)
	}
	if err := row.Scan(&name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return name, true, nil
}

// --- Drivers ---

// UpsertDriver creates the driver on first sight and refreshes non-empty
// name fields plus last_seen afterwards.
func (s *Store) UpsertDriver(ctx context.Context, externalID int64, firstName, lastName, username string) (models.Driver, error) {
	driver := models.Driver{
		ExternalID: externalID,
		FirstName:  firstName,
		LastName:   lastName,
		Username:   username,
	}
	err := s.Pool.QueryRow(ctx, `
		INSERT INTO drivers (id, telegram_user_id, first_name, last_name, username, first_seen_at, last_seen_at)
		VALUES ($1, $2, COALESCE(NULLIF($3,''), 'Unknown'), NULLIF($4,''), NULLIF($5,''), NOW(), NOW())
		ON CONFLICT (telegram_user_id) DO UPDATE SET
			first_name   = COALESCE(NULLIF($3,''), drivers.first_name),
			last_name    = COALESCE(NULLIF($4,''), drivers.last_name),
			username     = COALESCE(NULLIF($5,''), drivers.username),
			last_seen_at = NOW(),
			updated_at   = NOW()
		RETURNING id
	`, utils.NewID(), externalID, firstName, lastName, username).Scan(&driver.ID)
	if err != nil {
		return models.Driver{}, err
	}
	return driver, nil
}

// --- Ticket lookups ---

// FindOpenTicket returns the most recently updated still-open ticket for the
// driver on the same source within the trailing window, or nil.
func (s *Store) FindOpenTicket(ctx context.Context, driverID string, source models.MessageSource, connectionID string, chatID int64, window time.Duration) (*models.TicketRef, error) {
	cutoff := time.Now().UTC().Add(-window)

	query := `
		SELECT id, status FROM tickets
		WHERE driver_id = $1 AND status = ANY($2) AND updated_at >= $3 AND source_chat_id = $4
		ORDER BY updated_at DESC LIMIT 1`
	arg := any(chatID)
	if source == models.SourceDM {
		query = `
		SELECT id, status FROM tickets
		WHERE driver_id = $1 AND status = ANY($2) AND updated_at >= $3 AND business_connection_id = $4
		ORDER BY updated_at DESC LIMIT 1`
		arg = connectionID
	}

	var ref models.TicketRef
	if err := s.Pool.QueryRow(ctx, query, driverID, openStatuses, cutoff, arg).Scan(&ref.ID, &ref.Status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &ref, nil
}

// FindRecentlyResolvedTicket backs the gratitude suppression: the driver's
// latest ticket resolved within the trailing window, or nil.
func (s *Store) FindRecentlyResolvedTicket(ctx context.Context, driverID string, window time.Duration) (*models.TicketRef, error) {
	cutoff := time.Now().UTC().Add(-window)
	var ref models.TicketRef
	err := s.Pool.QueryRow(ctx, `
		SELECT id, status FROM tickets
		WHERE driver_id = $1 AND status = 'resolved' AND resolved_at >= $2
		ORDER BY resolved_at DESC LIMIT 1
	`, driverID, cutoff).Scan(&ref.ID, &ref.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &ref, nil
}

// FindTicketByOriginMessage resolves a reply reference: the still-open
// ticket in the given chat that the replied-to platform message belongs to.
func (s *Store) FindTicketByOriginMessage(ctx context.Context, chatID int64, originMessageID int64) (*models.TicketRef, error) {
	var ref models.TicketRef
	err := s.Pool.QueryRow(ctx, `
		SELECT t.id, t.status
		FROM ticket_messages tm
		JOIN tickets t ON t.id = tm.ticket_id
		WHERE tm.telegram_message_id = $1 AND t.source_chat_id = $2 AND t.status = ANY($3)
		LIMIT 1
	`, originMessageID, chatID, openStatuses).Scan(&ref.ID, &ref.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &ref, nil
}

// --- Ticket writes ---

func (s *Store) CreateTicket(ctx context.Context, t models.Ticket) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO tickets (id, driver_id, source_type, source_chat_id, source_name, business_connection_id,
			status, priority, is_urgent, ai_category, ai_urgency, ai_summary, created_at, updated_at)
		VALUES ($1,$2,$3,NULLIF($4,0),NULLIF($5,''),NULLIF($6,''),$7,$8,$9,$10,$11,NULLIF($12,''),NOW(),NOW())
	`, t.ID, t.DriverID, t.SourceType, t.SourceChatID, t.SourceName, t.ConnectionID,
		t.Status, t.Priority, t.IsUrgent, dbCategory(t.AICategory), t.AIUrgency, t.AISummary)
	return err
}

// AppendMessageToTicket inserts an inbound ticket_messages row and bumps the
// ticket's updated_at, which slides the open window forward.
func (s *Store) AppendMessageToTicket(ctx context.Context, ticketID string, msg models.Message, driverName string) error {
	contentType := msg.ContentType()
	text := msg.Text
	if text == "" {
		text = "[" + contentType + "]"
	}

	_, err := s.Pool.Exec(ctx, `
		INSERT INTO ticket_messages (id, ticket_id, direction, sender_type, sender_name, sender_user_id,
			telegram_message_id, content_text, content_type, is_internal_note)
		VALUES ($1,$2,'inbound','driver',$3,$4,$5,$6,$7,FALSE)
	`, utils.NewID(), ticketID, driverName, msg.SenderID, msg.OriginMessageID, text, contentType)
	if err != nil {
		return err
	}

	_, err = s.Pool.Exec(ctx, `UPDATE tickets SET updated_at = NOW() WHERE id = $1`, ticketID)
	return err
}

// UpdateTicketEnrichment overwrites the AI-derived fields and recomputes the
// urgency-derived flags.
func (s *Store) UpdateTicketEnrichment(ctx context.Context, ticketID string, e models.EnrichmentResult) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE tickets SET
			ai_urgency  = $1,
			ai_category = $2,
			ai_location = NULLIF($3,''),
			ai_summary  = NULLIF($4,''),
			is_urgent   = $5,
			priority    = $6,
			updated_at  = NOW()
		WHERE id = $7
	`, e.Urgency, dbCategory(e.Category), e.Location, e.Summary,
		e.Urgency >= models.UrgentThreshold, models.PriorityFor(e.Urgency), ticketID)
	return err
}

// --- Audit trail ---

// LogRawMessage appends one audit row. Callers treat failures as
// best-effort: logged, never propagated into the routing decision.
func (s *Store) LogRawMessage(ctx context.Context, rec models.AuditRecord) error {
	msg := rec.Message
	chatType := "group"
	if msg.Source == models.SourceDM {
		chatType = "private"
	}
	contentType := msg.ContentType()

	_, err := s.Pool.Exec(ctx, `
		INSERT INTO raw_messages (id, telegram_message_id, telegram_user_id, chat_id, chat_type,
			content_text, content_type, has_media, classification_result, classification_source, ticket_id)
		VALUES ($1,$2,$3,$4,$5,NULLIF($6,''),$7,$8,$9,$10,NULLIF($11,''))
	`, utils.NewID(), msg.OriginMessageID, msg.SenderID, msg.ChatID, chatType,
		utils.Truncate(msg.Text, 2000), contentType, msg.HasMedia(), rec.Result, rec.Source, rec.TicketID)
	return err
}

// --- Stats ---

func (s *Store) Stats(ctx context.Context) (drivers, tickets int64, err error) {
	if err = s.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM drivers`).Scan(&drivers); err != nil {
		return 0, 0, err
	}
	if err = s.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM tickets`).Scan(&tickets); err != nil {
		return 0, 0, err
	}
	return drivers, tickets, nil
}

// dbCategory maps the in-memory category to its stored form. The schema's
// category enum has no "unclassified"; it is persisted as "other".
func dbCategory(c models.TicketCategory) string {
	if c == models.CategoryUnclassified {
		return string(models.CategoryOther)
	}
	return string(c)
}

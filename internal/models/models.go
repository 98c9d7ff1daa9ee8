package models

import (
	"strconv"
	"time"
)

type TicketStatus string

const (
	StatusOpen       TicketStatus = "open"
	StatusInProgress TicketStatus = "in_progress"
	StatusOnHold     TicketStatus = "on_hold"
	StatusResolved   TicketStatus = "resolved"
	StatusDismissed  TicketStatus = "dismissed"
)

// OpenStatuses are the states the correlator treats as still-open when
// matching messages to existing tickets.
var OpenStatuses = []TicketStatus{StatusOpen, StatusInProgress, StatusOnHold}

type TicketCategory string

const (
	CategoryMechanical    TicketCategory = "mechanical"
	CategoryElectrical    TicketCategory = "electrical"
	CategoryTire          TicketCategory = "tire"
	CategoryFuel          TicketCategory = "fuel"
	CategoryAccident      TicketCategory = "accident"
	CategoryELD           TicketCategory = "eld"
	CategoryDocumentation TicketCategory = "documentation"
	CategoryOther         TicketCategory = "other"
	CategoryUnclassified  TicketCategory = "unclassified"
)

// ValidCategory reports whether v is one of the closed category set.
func ValidCategory(v string) bool {
	switch TicketCategory(v) {
	case CategoryMechanical, CategoryElectrical, CategoryTire, CategoryFuel,
		CategoryAccident, CategoryELD, CategoryDocumentation, CategoryOther,
		CategoryUnclassified:
		return true
	}
	return false
}

type MessageSource string

const (
	SourceDM    MessageSource = "business_dm"
	SourceGroup MessageSource = "group"
)

// Classification layers.
const (
	LayerDeterministic = "deterministic"
	LayerAI            = "ai"
	LayerBufferMerge   = "buffer_merge"
)

// Priority values derived from urgency.
const (
	PriorityNormal = "normal"
	PriorityUrgent = "urgent"
)

// UrgentThreshold is the urgency at or above which a ticket is urgent.
const UrgentThreshold = 4

// PriorityFor maps urgency to the operator-facing priority string.
func PriorityFor(urgency int) string {
	if urgency >= UrgentThreshold {
		return PriorityUrgent
	}
	return PriorityNormal
}

// Message is one inbound chat event, immutable once built.
type Message struct {
	ID              string        `json:"id"`
	OriginMessageID int64         `json:"origin_message_id"`
	ChatID          int64         `json:"chat_id"`
	SenderID        int64         `json:"sender_id"`
	DriverID        string        `json:"driver_id"`
	Text            string        `json:"text"`
	HasPhoto        bool          `json:"has_photo"`
	HasVideo        bool          `json:"has_video"`
	HasVoice        bool          `json:"has_voice"`
	HasLocation     bool          `json:"has_location"`
	HasDocument     bool          `json:"has_document"`
	ReplyToID       int64         `json:"reply_to_id,omitempty"`
	Source          MessageSource `json:"source"`
	ConnectionID    string        `json:"connection_id,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
}

// HasMedia reports whether any content-kind flag is set.
func (m Message) HasMedia() bool {
	return m.HasPhoto || m.HasVideo || m.HasVoice || m.HasLocation || m.HasDocument
}

// ContentType picks a single descriptive kind for a message, with
// photo/video taking priority over document, location, and voice.
func (m Message) ContentType() string {
	switch {
	case m.HasPhoto:
		return "photo"
	case m.HasVideo:
		return "video"
	case m.HasDocument:
		return "document"
	case m.HasLocation:
		return "location"
	case m.HasVoice:
		return "voice"
	default:
		return "text"
	}
}

// SourceIdentifier returns the key the open-window lookup matches on:
// the business connection for DMs, the chat for groups.
func (m Message) SourceIdentifier() string {
	if m.Source == SourceDM {
		return m.ConnectionID
	}
	return formatInt64(m.ChatID)
}

type ClassificationResult struct {
	IsTicket   bool           `json:"is_ticket"`
	Confidence int            `json:"confidence"` // 0..5
	Category   TicketCategory `json:"category"`
	Urgency    int            `json:"urgency"` // 1..5
	Layer      string         `json:"layer"`
	Reason     string         `json:"reason"`
}

// EnrichmentResult is the post-creation refinement. The zero-ish value
// returned by NeutralEnrichment is what failures degrade to.
type EnrichmentResult struct {
	Urgency  int            `json:"urgency"`
	Category TicketCategory `json:"category"`
	Location string         `json:"location"`
	Summary  string         `json:"summary"`
}

func NeutralEnrichment() EnrichmentResult {
	return EnrichmentResult{Urgency: 3, Category: CategoryUnclassified}
}

type Driver struct {
	ID         string    `json:"id"`
	ExternalID int64     `json:"external_id"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	Username   string    `json:"username"`
	CreatedAt  time.Time `json:"created_at"`
}

// DisplayName is first+last, else handle, else a numbered placeholder.
func (d Driver) DisplayName() string {
	name := d.FirstName
	if d.LastName != "" {
		if name != "" {
			name += " "
		}
		name += d.LastName
	}
	if name != "" {
		return name
	}
	if d.Username != "" {
		return d.Username
	}
	return "Driver #" + formatInt64(d.ExternalID)
}

type Ticket struct {
	ID           string         `json:"id"`
	DriverID     string         `json:"driver_id"`
	Status       TicketStatus   `json:"status"`
	AICategory   TicketCategory `json:"ai_category"`
	AIUrgency    int            `json:"ai_urgency"`
	AISummary    string         `json:"ai_summary"`
	AILocation   string         `json:"ai_location"`
	SourceType   MessageSource  `json:"source_type"`
	SourceChatID int64          `json:"source_chat_id"`
	SourceName   string         `json:"source_name"`
	ConnectionID string         `json:"connection_id,omitempty"`
	IsUrgent     bool           `json:"is_urgent"`
	Priority     string         `json:"priority"`
	MessageIDs   []string       `json:"message_ids"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// TicketRef is the slim projection the correlator's lookups return.
type TicketRef struct {
	ID     string       `json:"id"`
	Status TicketStatus `json:"status"`
}

// BufferedMessage is a transient per-sender holding cell. Lives only in
// process memory.
type BufferedMessage struct {
	Message        Message
	Classification ClassificationResult
	ExpiresAt      time.Time
}

// Terminal routing outcomes, audited on every decision.
type OutcomeKind string

const (
	OutcomeAppended  OutcomeKind = "appended"
	OutcomeDismissed OutcomeKind = "dismissed"
	OutcomeBuffered  OutcomeKind = "buffered"
	OutcomeCreated   OutcomeKind = "created"
	OutcomeExpired   OutcomeKind = "expired"
)

type Outcome struct {
	Kind     OutcomeKind `json:"kind"`
	TicketID string      `json:"ticket_id,omitempty"`
	Layer    string      `json:"layer,omitempty"`
}

// AuditRecord is one append-only raw-message audit row.
type AuditRecord struct {
	Message  Message
	Result   OutcomeKind
	Source   string // deciding layer or matcher
	TicketID string
}

func formatInt64(v int64) string {
	return strconv.FormatInt(v, 10)
}

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/fleetrelay/backend/internal/db"
	"github.com/fleetrelay/backend/internal/models"
	"github.com/fleetrelay/backend/internal/service"
	"github.com/fleetrelay/backend/internal/utils"
)

type Handler struct {
	Store      *db.Store
	Correlator *service.Correlator
	Buffer     *service.Buffer
	Validator  *validator.Validate
	Logger     zerolog.Logger
}

// --- Webhook payload (Telegram update shape) ---

type update struct {
	UpdateID        int64            `json:"update_id"`
	Message         *incomingMessage `json:"message"`
	EditedMessage   *incomingMessage `json:"edited_message"`
	BusinessMessage *incomingMessage `json:"business_message"`
}

type incomingMessage struct {
	MessageID            int64             `json:"message_id" validate:"required"`
	From                 *sender           `json:"from"`
	Chat                 chatInfo          `json:"chat" validate:"required"`
	Text                 string            `json:"text"`
	Caption              string            `json:"caption"`
	Photo                []json.RawMessage `json:"photo"`
	Video                json.RawMessage   `json:"video"`
	VideoNote            json.RawMessage   `json:"video_note"`
	Voice                json.RawMessage   `json:"voice"`
	Location             json.RawMessage   `json:"location"`
	Document             json.RawMessage   `json:"document"`
	ReplyToMessage       *incomingMessage  `json:"reply_to_message"`
	BusinessConnectionID string            `json:"business_connection_id"`
}

type sender struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
}

type chatInfo struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// extractMessage normalizes an update into a Message. ok is false when the
// update carries nothing routable (no message, or no sender).
func extractMessage(upd update) (models.Message, *sender, bool) {
	inc := upd.Message
	if inc == nil {
		inc = upd.BusinessMessage
	}
	if inc == nil {
		inc = upd.EditedMessage
	}
	if inc == nil || inc.From == nil {
		return models.Message{}, nil, false
	}

	source := models.SourceDM
	connectionID := inc.BusinessConnectionID
	if connectionID == "" && (inc.Chat.Type == "group" || inc.Chat.Type == "supergroup") {
		source = models.SourceGroup
	}

	text := inc.Text
	if text == "" {
		text = inc.Caption
	}

	var replyTo int64
	if inc.ReplyToMessage != nil {
		replyTo = inc.ReplyToMessage.MessageID
	}

	msg := models.Message{
		ID:              utils.NewID(),
		OriginMessageID: inc.MessageID,
		ChatID:          inc.Chat.ID,
		SenderID:        inc.From.ID,
		Text:            text,
		HasPhoto:        len(inc.Photo) > 0,
		HasVideo:        len(inc.Video) > 0 || len(inc.VideoNote) > 0,
		HasVoice:        len(inc.Voice) > 0,
		HasLocation:     len(inc.Location) > 0,
		HasDocument:     len(inc.Document) > 0,
		ReplyToID:       replyTo,
		Source:          source,
		ConnectionID:    connectionID,
		CreatedAt:       time.Now().UTC(),
	}
	return msg, inc.From, true
}

// @Summary Receive a chat-platform webhook update
// @Description Routes one inbound driver message through the classification pipeline
// @Tags webhook
// @Accept json
// @Produce json
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]any
// @Router /webhook [post]
func (h *Handler) Webhook(c *gin.Context) {
	var upd update
	if err := c.ShouldBindJSON(&upd); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "malformed update payload", err.Error())
		return
	}

	msg, from, ok := extractMessage(upd)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"outcome": "ignored"})
		return
	}
	if from.IsBot {
		c.JSON(http.StatusOK, gin.H{"outcome": "ignored"})
		return
	}
	if err := h.Validator.Struct(upd); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid update payload", err.Error())
		return
	}

	ctx := c.Request.Context()

	// Unregistered sources are not supported input: warn and drop.
	sourceName, registered, err := h.Store.LookupConnection(ctx, msg.Source, msg.ChatID, msg.ConnectionID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "connection lookup failed", err.Error())
		return
	}
	if !registered {
		h.Logger.Warn().
			Str("source", string(msg.Source)).
			Int64("chat_id", msg.ChatID).
			Str("connection_id", msg.ConnectionID).
			Msg("message from unregistered source, skipping")
		c.JSON(http.StatusOK, gin.H{"outcome": "ignored"})
		return
	}

	driver, err := h.Store.UpsertDriver(ctx, from.ID, from.FirstName, from.LastName, from.Username)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "driver upsert failed", err.Error())
		return
	}
	msg.DriverID = driver.ID

	outcome, err := h.Correlator.Route(ctx, msg, driver, sourceName)
	if err != nil {
		h.Logger.Error().Err(err).Int64("sender_id", msg.SenderID).Msg("routing failed")
		writeError(c, http.StatusInternalServerError, "ROUTING_ERROR", "message routing failed", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"outcome":   outcome.Kind,
		"ticket_id": outcome.TicketID,
	})
}

// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]any
// @Router /healthz [get]
func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"buffered": h.Buffer.Len(),
	})
}

// @Summary Pipeline statistics
// @Tags stats
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/stats [get]
func (h *Handler) Stats(c *gin.Context) {
	drivers, tickets, err := h.Store.Stats(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "stats query failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"drivers":  drivers,
		"tickets":  tickets,
		"buffered": h.Buffer.Len(),
	})
}

func writeError(c *gin.Context, status int, code, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}

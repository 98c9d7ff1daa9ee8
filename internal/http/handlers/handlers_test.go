package handlers

import (
	"encoding/json"
	"testing"

	"github.com/fleetrelay/backend/internal/models"
)

func rawObj() json.RawMessage {
	return json.RawMessage(`{}`)
}

func TestExtractMessageBusinessDM(t *testing.T) {
	upd := update{
		UpdateID: 1,
		BusinessMessage: &incomingMessage{
			MessageID:            501,
			From:                 &sender{ID: 9001, FirstName: "Aziz"},
			Chat:                 chatInfo{ID: 9001, Type: "private"},
			Text:                 "truck broke down",
			BusinessConnectionID: "conn-abc",
		},
	}

	msg, from, ok := extractMessage(upd)
	if !ok {
		t.Fatalf("expected routable message")
	}
	if from.ID != 9001 {
		t.Fatalf("unexpected sender: %+v", from)
	}
	if msg.Source != models.SourceDM || msg.ConnectionID != "conn-abc" {
		t.Fatalf("business message must stay a DM: %+v", msg)
	}
	if msg.OriginMessageID != 501 || msg.SenderID != 9001 || msg.Text != "truck broke down" {
		t.Fatalf("unexpected message fields: %+v", msg)
	}
	if msg.ID == "" {
		t.Fatalf("message must get an internal id")
	}
}

func TestExtractMessageGroupChat(t *testing.T) {
	upd := update{
		Message: &incomingMessage{
			MessageID: 10,
			From:      &sender{ID: 5},
			Chat:      chatInfo{ID: -100200, Type: "supergroup"},
			Text:      "flat tire on unit 88",
			ReplyToMessage: &incomingMessage{
				MessageID: 7,
				Chat:      chatInfo{ID: -100200, Type: "supergroup"},
			},
		},
	}

	msg, _, ok := extractMessage(upd)
	if !ok {
		t.Fatalf("expected routable message")
	}
	if msg.Source != models.SourceGroup {
		t.Fatalf("supergroup chat must map to group source, got %s", msg.Source)
	}
	if msg.ReplyToID != 7 {
		t.Fatalf("reply target must be carried, got %d", msg.ReplyToID)
	}
}

func TestExtractMessageCaptionFallback(t *testing.T) {
	upd := update{
		Message: &incomingMessage{
			MessageID: 11,
			From:      &sender{ID: 5},
			Chat:      chatInfo{ID: 5, Type: "private"},
			Caption:   "look at this tire",
			Photo:     []json.RawMessage{rawObj()},
		},
	}

	msg, _, ok := extractMessage(upd)
	if !ok {
		t.Fatalf("expected routable message")
	}
	if !msg.HasPhoto {
		t.Fatalf("photo flag must be set")
	}
	if msg.Text != "look at this tire" {
		t.Fatalf("caption must become the text, got %q", msg.Text)
	}
}

func TestExtractMessageMediaFlags(t *testing.T) {
	upd := update{
		Message: &incomingMessage{
			MessageID: 12,
			From:      &sender{ID: 5},
			Chat:      chatInfo{ID: 5, Type: "private"},
			VideoNote: rawObj(),
			Voice:     rawObj(),
			Location:  rawObj(),
			Document:  rawObj(),
		},
	}

	msg, _, ok := extractMessage(upd)
	if !ok {
		t.Fatalf("expected routable message")
	}
	if !msg.HasVideo || !msg.HasVoice || !msg.HasLocation || !msg.HasDocument {
		t.Fatalf("media flags not carried: %+v", msg)
	}
	if msg.HasPhoto {
		t.Fatalf("photo flag must stay unset")
	}
}

func TestExtractMessageIgnoresEmptyUpdates(t *testing.T) {
	if _, _, ok := extractMessage(update{UpdateID: 3}); ok {
		t.Fatalf("update without message must be ignored")
	}

	noSender := update{Message: &incomingMessage{MessageID: 1, Chat: chatInfo{ID: 5, Type: "private"}}}
	if _, _, ok := extractMessage(noSender); ok {
		t.Fatalf("message without sender must be ignored")
	}
}

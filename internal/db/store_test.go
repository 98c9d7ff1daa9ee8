package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/fleetrelay/backend/internal/models"
	"github.com/fleetrelay/backend/internal/utils"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	store, err := New(context.Background(), url)
	if err != nil {
		t.Fatalf("db connect: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestDriverUpsertIntegration(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	externalID := time.Now().UnixNano()

	first, err := store.UpsertDriver(ctx, externalID, "", "", "")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if first.ID == "" {
		t.Fatalf("expected generated driver id")
	}

	// Same external id, now with a name: must return the same row.
	second, err := store.UpsertDriver(ctx, externalID, "Aziz", "Karimov", "aziz_k")
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("upsert must be stable per external id: %s vs %s", first.ID, second.ID)
	}
}

func TestTicketRoundTripIntegration(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	driver, err := store.UpsertDriver(ctx, time.Now().UnixNano(), "Test", "Driver", "")
	if err != nil {
		t.Fatalf("upsert driver: %v", err)
	}

	chatID := -time.Now().UnixNano()
	ticket := models.Ticket{
		ID:           utils.NewID(),
		DriverID:     driver.ID,
		Status:       models.StatusOpen,
		AICategory:   models.CategoryMechanical,
		AIUrgency:    4,
		SourceType:   models.SourceGroup,
		SourceChatID: chatID,
		SourceName:   "Test Group",
		IsUrgent:     true,
		Priority:     models.PriorityUrgent,
	}
	if err := store.CreateTicket(ctx, ticket); err != nil {
		t.Fatalf("create ticket: %v", err)
	}

	msg := models.Message{
		ID:              utils.NewID(),
		OriginMessageID: time.Now().UnixNano(),
		ChatID:          chatID,
		SenderID:        driver.ExternalID,
		Text:            "truck broke down",
		Source:          models.SourceGroup,
	}
	if err := store.AppendMessageToTicket(ctx, ticket.ID, msg, driver.DisplayName()); err != nil {
		t.Fatalf("append: %v", err)
	}

	ref, err := store.FindOpenTicket(ctx, driver.ID, models.SourceGroup, "", chatID, time.Hour)
	if err != nil {
		t.Fatalf("find open: %v", err)
	}
	if ref == nil || ref.ID != ticket.ID {
		t.Fatalf("expected the fresh ticket in the window, got %+v", ref)
	}

	byOrigin, err := store.FindTicketByOriginMessage(ctx, chatID, msg.OriginMessageID)
	if err != nil {
		t.Fatalf("find by origin: %v", err)
	}
	if byOrigin == nil || byOrigin.ID != ticket.ID {
		t.Fatalf("reply lookup must resolve the ticket, got %+v", byOrigin)
	}

	enrichment := models.EnrichmentResult{
		Urgency:  2,
		Category: models.CategoryTire,
		Location: "I-80 mm 42",
		Summary:  "Flat tire",
	}
	if err := store.UpdateTicketEnrichment(ctx, ticket.ID, enrichment); err != nil {
		t.Fatalf("enrich: %v", err)
	}
}

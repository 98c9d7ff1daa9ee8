package ai

import (
	"context"
	"fmt"

	"github.com/fleetrelay/backend/internal/utils"
)

// MockAdapter produces stable verdicts derived from the input text. Used
// when no model endpoint is configured.
type MockAdapter struct{}

var mockCategories = []string{"mechanical", "electrical", "tire", "fuel", "other"}

func (m MockAdapter) ClassifyText(ctx context.Context, text string) (Verdict, error) {
	h := utils.HashStringToUint64(text)
	return Verdict{
		IsTicket:   h%4 != 0,
		Confidence: int(h%3) + 2,
		Category:   mockCategories[int(h/7)%len(mockCategories)],
		Urgency:    int(h/13)%5 + 1,
	}, nil
}

func (m MockAdapter) EnrichText(ctx context.Context, combined string) (Enrichment, error) {
	h := utils.HashStringToUint64(combined)
	return Enrichment{
		Urgency:  int(h%5) + 1,
		Category: mockCategories[int(h/11)%len(mockCategories)],
		Summary:  fmt.Sprintf("Auto-summary of %d chars of driver text", len(combined)),
	}, nil
}

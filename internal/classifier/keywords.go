package classifier

import (
	"regexp"

	"github.com/fleetrelay/backend/internal/models"
)

// keywordRule maps a case-insensitive substring to a category. Slice order
// is the tie-break order: among equal-urgency matches the earliest rule wins.
type keywordRule struct {
	keyword  string
	category models.TicketCategory
}

var ticketKeywords = []keywordRule{
	// Mechanical
	{"breakdown", models.CategoryMechanical},
	{"broke down", models.CategoryMechanical},
	{"engine", models.CategoryMechanical},
	{"overheating", models.CategoryMechanical},
	{"overheat", models.CategoryMechanical},
	{"won't start", models.CategoryMechanical},
	{"wont start", models.CategoryMechanical},
	{"stalled", models.CategoryMechanical},
	{"transmission", models.CategoryMechanical},
	{"coolant", models.CategoryMechanical},
	{"radiator", models.CategoryMechanical},
	{"alternator", models.CategoryMechanical},
	{"battery dead", models.CategoryElectrical},
	// Tire
	{"flat tire", models.CategoryTire},
	{"blowout", models.CategoryTire},
	{"tire blew", models.CategoryTire},
	{"flat", models.CategoryTire},
	{"tire pressure", models.CategoryTire},
	{"tire damage", models.CategoryTire},
	// Fuel
	{"fuel", models.CategoryFuel},
	{"out of gas", models.CategoryFuel},
	{"diesel", models.CategoryFuel},
	{"fuel leak", models.CategoryFuel},
	// Brake
	{"brake", models.CategoryMechanical},
	{"brakes", models.CategoryMechanical},
	{"brake failure", models.CategoryMechanical},
	// Accident
	{"accident", models.CategoryAccident},
	{"crash", models.CategoryAccident},
	{"collision", models.CategoryAccident},
	{"hit", models.CategoryAccident},
	{"wreck", models.CategoryAccident},
	// Electrical
	{"electrical", models.CategoryElectrical},
	{"lights out", models.CategoryElectrical},
	{"no power", models.CategoryElectrical},
	{"wiring", models.CategoryElectrical},
	// ELD / Compliance
	{"eld", models.CategoryELD},
	{"dot inspection", models.CategoryELD},
	{"dot", models.CategoryELD},
	{"hos", models.CategoryELD},
	{"hours of service", models.CategoryELD},
	{"logbook", models.CategoryELD},
	// Documentation
	{"permit", models.CategoryDocumentation},
	{"registration", models.CategoryDocumentation},
	{"insurance", models.CategoryDocumentation},
	{"paperwork", models.CategoryDocumentation},
	// General fleet
	{"load", models.CategoryOther},
	{"dispatch", models.CategoryOther},
	{"gps", models.CategoryElectrical},
	{"trailer", models.CategoryMechanical},
	{"oil", models.CategoryMechanical},
	{"oil leak", models.CategoryMechanical},
	{"check engine", models.CategoryMechanical},
}

// keywordUrgency overrides the default urgency of 3 for specific keywords.
var keywordUrgency = map[string]int{
	"accident":      5,
	"crash":         5,
	"collision":     5,
	"fire":          5,
	"emergency":     5,
	"stranded":      4,
	"stuck":         4,
	"breakdown":     4,
	"broke down":    4,
	"brake failure": 5,
	"overheating":   4,
	"overheat":      4,
	"flat tire":     3,
	"blowout":       4,
	"eld":           2,
	"dot":           3,
	"paperwork":     1,
	"permit":        1,
}

// Short words that must survive the single-short-word noise filter.
var protectedShortWords = []string{"help", "eld", "dot", "fuel", "flat", "fire"}

var dismissPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(ok|okay|k|kk|yes|no|yep|nope|ya|nah|sure|yea|yeah)\.?$`),
	regexp.MustCompile(`(?i)^thanks?\.?$`),
	regexp.MustCompile(`(?i)^thank you\.?$`),
	regexp.MustCompile(`(?i)^(hi|hello|hey|yo|sup|good morning|good evening|good night)\.?!?$`),
	// emoji-only
	regexp.MustCompile(`^[\x{1F600}-\x{1F64F}\x{1F44D}\x{1F44E}\x{2764}\x{2705}\x{274C}\x{1F389}\x{1F525}\s]+$`),
	// punctuation-only
	regexp.MustCompile(`^[.!?]+$`),
	// Multilingual greetings (Uzbek, Russian)
	regexp.MustCompile(`(?i)^(salom|assalomu?\s*alaykum|va?\s*alaykum\s*as?salom)\.?!?$`),
	regexp.MustCompile(`(?i)^(привет|здравствуй(те)?|доброе утро|добрый (день|вечер)|салом)\.?!?$`),
	// Reactions / filler
	regexp.MustCompile(`(?i)^(haha|hahaha|lol|😂|👍|\+1|\)\)+|hhh+)$`),
}

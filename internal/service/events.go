package service

import (
	"encoding/json"

	"github.com/tbone30/card-trader/internal/domain"
)

// OpportunityEvent is the JSON shape published to the "opportunities" channel
// after a detection run stores new opportunities. The WS hub relays it to
// dashboard clients and the notification worker turns it into alerts.
type OpportunityEvent struct {
	Event         string               `json:"event"`
	CardName      string               `json:"card_name"`
	Found         int                  `json:"found"`
	Opportunities []domain.Opportunity `json:"opportunities"`
}

func encodeOpportunityEvent(result DetectionResult) ([]byte, error) {
	return json.Marshal(OpportunityEvent{
		Event:         "arb_detected",
		CardName:      result.CardName,
		Found:         result.FilteredCount,
		Opportunities: result.Opportunities,
	})
}

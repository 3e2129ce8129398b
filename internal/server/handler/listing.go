package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/tbone30/card-trader/internal/domain"
)

// ListingReader is the read-side of the listing service the handler needs.
type ListingReader interface {
	ActiveListings(ctx context.Context, cardName string, window time.Duration) ([]domain.Listing, error)
}

// ListingHandler serves raw listing queries, mostly for debugging scrapes.
type ListingHandler struct {
	listings ListingReader
	window   time.Duration
	logger   *slog.Logger
}

// NewListingHandler creates a ListingHandler. window bounds how far back the
// listings query reaches.
func NewListingHandler(listings ListingReader, window time.Duration, logger *slog.Logger) *ListingHandler {
	if window <= 0 {
		window = 4 * time.Hour
	}
	return &ListingHandler{
		listings: listings,
		window:   window,
		logger:   logHandler(logger, "listing"),
	}
}

// ListListings returns fresh active listings for a card.
// GET /api/listings?card_name=
func (h *ListingHandler) ListListings(w http.ResponseWriter, r *http.Request) {
	cardName := r.URL.Query().Get("card_name")
	if cardName == "" {
		writeError(w, http.StatusBadRequest, "card_name is required")
		return
	}

	listings, err := h.listings.ActiveListings(r.Context(), cardName, h.window)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list listings failed",
			slog.String("card_name", cardName),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list listings")
		return
	}
	if listings == nil {
		listings = []domain.Listing{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"card_name": cardName,
		"listings":  listings,
		"count":     len(listings),
	})
}

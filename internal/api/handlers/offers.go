package handlers

import (
	"delivery-match-service/internal/api/dto"
	"delivery-match-service/internal/domain"
	"delivery-match-service/internal/services"
	"net/http"
)

// OfferHandler exposes offer creation and explicit decline.
type OfferHandler struct {
	Match *services.MatchService
}

func offerResponse(o *domain.Offer) dto.OfferResponse {
	return dto.OfferResponse{
		ID:          o.ID,
		ShipmentID:  o.ShipmentID,
		CourierID:   o.CourierID,
		PriceAmount: o.PriceAmount,
		Currency:    o.Currency,
		Status:      string(o.Status),
		CreatedAt:   o.CreatedAt,
	}
}

func (h *OfferHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}

	var req dto.CreateOfferRequest
	if !decodeStrict(w, r, &req) {
		return
	}
	if req.PriceAmount <= 0 {
		writeError(w, r, http.StatusBadRequest, "price_amount must be positive")
		return
	}

	offer, err := h.Match.CreateOffer(r.Context(), services.CreateOfferRequest{
		ShipmentID:  r.PathValue("id"),
		CourierID:   actor,
		PriceAmount: req.PriceAmount,
		Message:     req.Message,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, offerResponse(offer))
}

func (h *OfferHandler) Decline(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}

	offer, err := h.Match.DeclineOffer(r.Context(), r.PathValue("id"), actor)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, offerResponse(offer))
}

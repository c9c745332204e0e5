package handlers

import (
	"delivery-match-service/internal/api/dto"
	"delivery-match-service/internal/domain"
	"delivery-match-service/internal/services"
	"net/http"
	"time"
)

// ShipmentHandler exposes the shipment lifecycle commands: create, read,
// accept a match, report transit, confirm delivery, cancel-and-refund,
// withdraw.
type ShipmentHandler struct {
	Match      *services.MatchService
	Settlement *services.SettlementService
}

func shipmentResponse(s *domain.Shipment) dto.ShipmentResponse {
	res := dto.ShipmentResponse{
		ID:                s.ID,
		SenderID:          s.SenderID,
		CourierID:         s.CourierID,
		Origin:            s.Route.Origin,
		Destination:       s.Route.Destination,
		PriceAmount:       s.PriceAmount,
		Currency:          s.Currency,
		PackageDescriptor: s.PackageDescriptor,
		Status:            string(s.Status),
		CreatedAt:         s.CreatedAt,
	}
	if !s.Window.Start.IsZero() {
		start := s.Window.Start
		res.WindowStart = &start
	}
	if !s.Window.End.IsZero() {
		end := s.Window.End
		res.WindowEnd = &end
	}
	return res
}

func transactionResponse(t *domain.Transaction) *dto.TransactionResponse {
	if t == nil {
		return nil
	}
	return &dto.TransactionResponse{
		ID:           t.ID,
		ShipmentID:   t.ShipmentID,
		PayerID:      t.PayerID,
		PayeeID:      t.PayeeID,
		Amount:       t.Amount,
		FeeAmount:    t.FeeAmount,
		PayoutAmount: t.PayoutAmount,
		Currency:     t.Currency,
		Status:       string(t.Status),
	}
}

func (h *ShipmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}

	var req dto.CreateShipmentRequest
	if !decodeStrict(w, r, &req) {
		return
	}

	var start, end time.Time
	if req.WindowStart != nil {
		start = *req.WindowStart
	}
	if req.WindowEnd != nil {
		end = *req.WindowEnd
	}

	shipment, err := h.Match.CreateShipment(r.Context(), services.CreateShipmentRequest{
		SenderID:          actor,
		Origin:            req.Origin,
		Destination:       req.Destination,
		PriceAmount:       req.PriceAmount,
		Currency:          req.Currency,
		PackageDescriptor: req.PackageDescriptor,
		WindowStart:       start,
		WindowEnd:         end,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, shipmentResponse(shipment))
}

func (h *ShipmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	shipment, err := h.Match.GetShipment(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, shipmentResponse(shipment))
}

func (h *ShipmentHandler) Accept(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}

	var req dto.AcceptMatchRequest
	if !decodeStrict(w, r, &req) {
		return
	}
	if req.OfferID == "" {
		writeError(w, r, http.StatusBadRequest, "offer_id is required")
		return
	}

	result, err := h.Match.AcceptMatch(r.Context(), r.PathValue("id"), req.OfferID, actor)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, dto.MatchResponse{
		Shipment:    shipmentResponse(result.Shipment),
		Offer:       offerResponse(result.Offer),
		Transaction: transactionResponse(result.Transaction),
	})
}

func (h *ShipmentHandler) Transit(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}

	shipment, err := h.Match.MarkInTransit(r.Context(), r.PathValue("id"), actor)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, shipmentResponse(shipment))
}

func (h *ShipmentHandler) ConfirmDelivery(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}

	tx, err := h.Settlement.Release(r.Context(), r.PathValue("id"), actor)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, transactionResponse(tx))
}

func (h *ShipmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}

	admin := r.Header.Get("X-Actor-Role") == "admin"
	tx, err := h.Settlement.Refund(r.Context(), r.PathValue("id"), actor, admin)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, transactionResponse(tx))
}

func (h *ShipmentHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}

	shipment, err := h.Match.WithdrawShipment(r.Context(), r.PathValue("id"), actor)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, shipmentResponse(shipment))
}

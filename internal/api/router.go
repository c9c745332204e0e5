package api

import (
	"delivery-match-service/internal/api/handlers"
	"delivery-match-service/internal/services"
	"net/http"
)

// NewRouter wires HTTP handlers with their dependencies and returns an
// http.Handler. This is the API composition root (handlers stay unaware
// of concrete adapters).
func NewRouter(match *services.MatchService, settlement *services.SettlementService, messages *services.MessageService) http.Handler {
	mux := http.NewServeMux()

	shipmentHandler := &handlers.ShipmentHandler{Match: match, Settlement: settlement}
	offerHandler := &handlers.OfferHandler{Match: match}
	conversationHandler := &handlers.ConversationHandler{Messages: messages}

	mux.HandleFunc("GET /health", handlers.Health)

	mux.HandleFunc("POST /shipments", shipmentHandler.Create)
	mux.HandleFunc("GET /shipments/{id}", shipmentHandler.Get)
	mux.HandleFunc("POST /shipments/{id}/offers", offerHandler.Create)
	mux.HandleFunc("POST /shipments/{id}/accept", shipmentHandler.Accept)
	mux.HandleFunc("POST /shipments/{id}/transit", shipmentHandler.Transit)
	mux.HandleFunc("POST /shipments/{id}/delivery", shipmentHandler.ConfirmDelivery)
	mux.HandleFunc("POST /shipments/{id}/cancel", shipmentHandler.Cancel)
	mux.HandleFunc("POST /shipments/{id}/withdraw", shipmentHandler.Withdraw)

	mux.HandleFunc("POST /offers/{id}/decline", offerHandler.Decline)

	mux.HandleFunc("GET /conversations/{id}/messages", conversationHandler.ListMessages)
	mux.HandleFunc("POST /conversations/{id}/messages", conversationHandler.Send)
	mux.HandleFunc("POST /conversations/{id}/read", conversationHandler.MarkRead)

	return loggingMiddleware(mux)
}

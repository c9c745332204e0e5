package handlers

import (
	"delivery-match-service/internal/api/dto"
	"delivery-match-service/internal/domain"
	"delivery-match-service/internal/services"
	"net/http"
)

// ConversationHandler exposes the chat surface: listing messages, sending
// text, and read receipts.
type ConversationHandler struct {
	Messages *services.MessageService
}

func messageResponse(m *domain.Message) dto.MessageResponse {
	return dto.MessageResponse{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		Type:           string(m.Type),
		Status:         string(m.Status),
		CreatedAt:      m.CreatedAt,
	}
}

func (h *ConversationHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}

	msgs, err := h.Messages.ListMessages(r.Context(), r.PathValue("id"), actor)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	res := dto.ListMessagesResponse{Messages: make([]dto.MessageResponse, 0, len(msgs))}
	for _, m := range msgs {
		res.Messages = append(res.Messages, messageResponse(m))
	}

	writeJSON(w, r, http.StatusOK, res)
}

func (h *ConversationHandler) Send(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}

	var req dto.SendMessageRequest
	if !decodeStrict(w, r, &req) {
		return
	}
	if req.Content == "" {
		writeError(w, r, http.StatusBadRequest, "content is required")
		return
	}

	msg, err := h.Messages.SendMessage(r.Context(), services.SendMessageRequest{
		ConversationID: r.PathValue("id"),
		SenderID:       actor,
		Content:        req.Content,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, messageResponse(msg))
}

func (h *ConversationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}

	if err := h.Messages.MarkRead(r.Context(), r.PathValue("id"), actor); err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

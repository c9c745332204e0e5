package handlers

import (
	"delivery-match-service/internal/domain"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
)

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode failed: method=%s path=%s err=%v", r.Method, r.URL.Path, err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, map[string]string{"error": msg})
}

// decodeStrict parses exactly one JSON object from the body, rejecting
// unknown fields and trailing content.
func decodeStrict(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	defer r.Body.Close()
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid json body")
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		writeError(w, r, http.StatusBadRequest, "body must contain only one JSON object")
		return false
	}
	return true
}

// actorID returns the authenticated caller identity forwarded by the auth
// layer. The engine trusts authentication and validates authorization per
// operation.
func actorID(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor := strings.TrimSpace(r.Header.Get("X-Actor-ID"))
	if actor == "" {
		writeError(w, r, http.StatusUnauthorized, "missing X-Actor-ID header")
		return "", false
	}
	return actor, true
}

// writeDomainError maps typed rejections onto HTTP statuses and
// user-facing wording. Payment failures stay generic for users; the typed
// reason lives in the server log for support.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, r, http.StatusForbidden, "not allowed")
	case errors.Is(err, domain.ErrVersionConflict):
		writeError(w, r, http.StatusConflict, "this shipment was just updated by someone else, please refresh")
	case errors.Is(err, domain.ErrAlreadyTerminal):
		writeError(w, r, http.StatusConflict, "this shipment is already settled")
	case errors.Is(err, domain.ErrWrongState):
		writeError(w, r, http.StatusConflict, "operation is not possible in the current state")
	case errors.Is(err, domain.ErrPaymentHoldFailed),
		errors.Is(err, domain.ErrPaymentCaptureFailed),
		errors.Is(err, domain.ErrPaymentVoidFailed):
		log.Printf("payment failure: method=%s path=%s err=%v", r.Method, r.URL.Path, err)
		writeError(w, r, http.StatusBadGateway, "payment could not be processed, please try again")
	default:
		log.Printf("request failed: method=%s path=%s err=%v", r.Method, r.URL.Path, err)
		writeError(w, r, http.StatusInternalServerError, "internal server error")
	}
}

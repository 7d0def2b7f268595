package httpapi

import (
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
)

type consultationTicket struct {
	ConsultationID string    `json:"consultationId"`
	Token          string    `json:"token"`
	ExpiresAt      time.Time `json:"expiresAt"`
	WSURL          string    `json:"wsUrl"`
}

// handleCreateConsultation reserves a consultation id and hands out the
// ticket the browser needs to open its WebSocket.
func (r *Router) handleCreateConsultation(w http.ResponseWriter, req *http.Request) {
	if r.sessions.IsDraining() {
		writeJSON(w, http.StatusServiceUnavailable, envelope{Message: "Servidor em manutenção, tente novamente em instantes"})
		return
	}

	if r.chat == nil {
		writeJSON(w, http.StatusServiceUnavailable, envelope{Message: "Assistente de triagem não configurado"})
		return
	}

	id := uuid.NewString()
	token, expiresAt, err := r.tickets.Issue(id)
	if err != nil {
		r.logger.Error("issue session ticket failed", "error", err)
		captureError(req, err, "consultations: ticket")
		writeJSON(w, http.StatusInternalServerError, envelope{Message: "Erro ao iniciar consulta", Error: err.Error()})
		return
	}

	r.logger.Info("consultation ticket issued", "consultation_id", id)
	writeJSON(w, http.StatusCreated, envelope{
		Success: true,
		Data: consultationTicket{
			ConsultationID: id,
			Token:          token,
			ExpiresAt:      expiresAt.UTC(),
			WSURL:          wsURLFromPublicBase(r.cfg.PublicBaseURL) + "/api/consultations/ws?token=" + url.QueryEscape(token),
		},
	})
}

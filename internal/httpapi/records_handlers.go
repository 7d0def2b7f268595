package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/lukasbauer/lucilta/internal/store"
)

const maxRecordBody = 1 << 20

type envelope struct {
	Success bool   `json:"success"`
	Count   *int   `json:"count,omitempty"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func listEnvelope(records []store.MedicalRecord) envelope {
	if records == nil {
		records = []store.MedicalRecord{}
	}
	n := len(records)
	return envelope{Success: true, Count: &n, Data: records}
}

func (r *Router) handleCreateRecord(w http.ResponseWriter, req *http.Request) {
	var rec store.MedicalRecord
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxRecordBody))
	if err := dec.Decode(&rec); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{
			Message: "JSON inválido",
			Error:   err.Error(),
		})
		return
	}

	saved, err := r.store.CreateRecord(req.Context(), rec)
	if err != nil {
		if !store.IsValidationError(err) {
			r.logger.Error("create medical record failed", "error", err)
			captureError(req, err, "records: create failed")
		}
		writeJSON(w, http.StatusInternalServerError, envelope{
			Message: "Erro ao criar prontuário médico",
			Error:   err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusCreated, envelope{
		Success: true,
		Data:    saved,
		Message: "Prontuário médico criado com sucesso",
	})
}

func (r *Router) handleListRecords(w http.ResponseWriter, req *http.Request) {
	records, err := r.store.ListRecords(req.Context())
	if err != nil {
		r.logger.Error("list medical records failed", "error", err)
		captureError(req, err, "records: list failed")
		writeJSON(w, http.StatusInternalServerError, envelope{
			Message: "Erro ao buscar prontuários médicos",
			Error:   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, listEnvelope(records))
}

func (r *Router) handleGetRecord(w http.ResponseWriter, req *http.Request) {
	rec, err := r.store.GetRecord(req.Context(), req.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, envelope{Message: "Prontuário médico não encontrado"})
		return
	}
	if err != nil {
		r.logger.Error("get medical record failed", "id", req.PathValue("id"), "error", err)
		captureError(req, err, "records: get failed")
		writeJSON(w, http.StatusInternalServerError, envelope{
			Message: "Erro ao buscar prontuário médico",
			Error:   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: rec})
}

func (r *Router) handleFindRecordsByPatient(w http.ResponseWriter, req *http.Request) {
	name := strings.TrimSpace(req.PathValue("name"))
	if name == "" {
		writeJSON(w, http.StatusBadRequest, envelope{Message: "Nome do paciente é obrigatório"})
		return
	}

	records, err := r.store.FindRecordsByPatientName(req.Context(), name)
	if err != nil {
		r.logger.Error("find medical records failed", "name", name, "error", err)
		captureError(req, err, "records: search failed")
		writeJSON(w, http.StatusInternalServerError, envelope{
			Message: "Erro ao buscar prontuários médicos do paciente",
			Error:   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, listEnvelope(records))
}

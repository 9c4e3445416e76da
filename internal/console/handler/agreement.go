package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/console/service"
	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/domain"
)

type AgreementHandler struct {
	service *service.AgreementService
}

func NewAgreementHandler(s *service.AgreementService) *AgreementHandler {
	return &AgreementHandler{service: s}
}

// Routes Маршруты для Chi
func (h *AgreementHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListAgreements)
	r.Get("/{agreementID}", h.GetAgreement)
	r.Get("/{agreementID}/journal", h.GetJournal)
	r.Post("/{agreementID}/extend", h.ExtendAgreement) // POST /agreements/123/extend
	r.Post("/{agreementID}/revoke", h.RevokeAgreement)
	return r
}

func (h *AgreementHandler) ListAgreements(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	agreements, err := h.service.ListAgreements(r.Context(), limit)
	if err != nil {
		http.Error(w, "Failed to fetch agreements", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(agreements)
}

func (h *AgreementHandler) GetAgreement(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "agreementID")
	ag, err := h.service.GetAgreement(r.Context(), id)
	if err != nil {
		http.Error(w, "Failed to fetch agreement", http.StatusInternalServerError)
		return
	}
	if ag == nil {
		http.Error(w, "agreement not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ag)
}

type extendRequest struct {
	AdditionalSeconds float64 `json:"additional_seconds"`
}

func (h *AgreementHandler) ExtendAgreement(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "agreementID")
	if id == "" {
		http.Error(w, "agreementID is required", http.StatusBadRequest)
		return
	}

	var req extendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	// Ждем завершения и БД-проверки, и публикации сигнала,
	// чтобы оператор сразу видел результат
	if err := h.service.ExtendAgreement(r.Context(), id, req.AdditionalSeconds); err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidExtension):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, domain.ErrAgreementInactive):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			log.Printf("failed to extend agreement %s: %v", id, err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AgreementHandler) RevokeAgreement(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "agreementID")
	if id == "" {
		http.Error(w, "agreementID is required", http.StatusBadRequest)
		return
	}

	if err := h.service.RevokeAgreement(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrAgreementInactive) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		log.Printf("failed to revoke agreement %s: %v", id, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AgreementHandler) GetJournal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "agreementID")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	records, err := h.service.GetJournal(r.Context(), id, limit)
	if err != nil {
		http.Error(w, "Failed to fetch journal", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}

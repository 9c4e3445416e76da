package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/audit"
)

// JournalService Описываем, что нам нужно от сервиса
type JournalService interface {
	GetJournal(ctx context.Context, agreementID string, limit int) ([]*audit.JournalRecord, error)
}

type JournalHandler struct {
	service JournalService
}

func NewJournalHandler(s JournalService) *JournalHandler {
	return &JournalHandler{service: s}
}

// GetRecent отдает глобальную ленту событий (по всем соглашениям).
func (h *JournalHandler) GetRecent(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	records, err := h.service.GetJournal(r.Context(), "", limit)
	if err != nil {
		http.Error(w, "Failed to fetch journal", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}

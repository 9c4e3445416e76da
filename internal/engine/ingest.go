package engine

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/domain"
	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/negotiation"
)

// LatestActivity — последний сигнал активности от детектора. Читается
// тик-циклом, пишется ingest-ручкой; nil = активности нет.
type LatestActivity struct {
	mu     sync.RWMutex
	signal *domain.ActivitySignal
}

func (l *LatestActivity) Set(s *domain.ActivitySignal) {
	l.mu.Lock()
	l.signal = s
	l.mu.Unlock()
}

func (l *LatestActivity) Current() *domain.ActivitySignal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.signal
}

// IngestAPI — входная HTTP-поверхность focusd: события детектора, реплики
// переговоров и сигналы активности. Источник реплик агностичен: печатный
// ввод и voice-to-text приходят одной и той же ручкой.
type IngestAPI struct {
	negotiator *negotiation.Negotiator
	monitor    *Monitor
	activity   *LatestActivity
	metrics    *Metrics
	logger     *zap.Logger

	// Живые сессии торга. Транзиентные: рестарт демона их просто забывает.
	mu       sync.Mutex
	sessions map[string]*domain.NegotiationSession
}

func NewIngestAPI(neg *negotiation.Negotiator, mon *Monitor, activity *LatestActivity, metrics *Metrics, logger *zap.Logger) *IngestAPI {
	return &IngestAPI{
		negotiator: neg,
		monitor:    mon,
		activity:   activity,
		metrics:    metrics,
		logger:     logger.Named("ingest"),
		sessions:   make(map[string]*domain.NegotiationSession),
	}
}

// Routes Маршруты для Chi
func (a *IngestAPI) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(TracingMiddleware)
	r.Post("/events", a.handleEvent)
	r.Post("/sessions/{id}/reply", a.handleReply)
	r.Delete("/sessions/{id}", a.handleAbandon)
	r.Post("/activity", a.handleActivity)
	r.Get("/agreements", a.handleListActive)
	return r
}

type eventResponse struct {
	SessionID string            `json:"session_id,omitempty"`
	Prompt    string            `json:"prompt,omitempty"`
	Agreement *domain.Agreement `json:"agreement,omitempty"`
}

// handleEvent принимает BehavioralEvent и открывает торг
// (или мгновенный блок для high severity).
func (a *IngestAPI) handleEvent(w http.ResponseWriter, r *http.Request) {
	var event domain.BehavioralEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, "invalid event payload", http.StatusBadRequest)
		return
	}
	if event.EventType == "" {
		http.Error(w, "event_type is required", http.StatusBadRequest)
		return
	}
	if event.DetectedAt.IsZero() {
		event.DetectedAt = time.Now()
	}

	session, outcome := a.negotiator.Open(event)

	if outcome.Agreement != nil {
		// Мгновенный блок: регистрируем и сразу принуждаем, grace не положен.
		// Наружу уходит копия — живой указатель остается у монитора.
		blocked := a.monitor.RegisterBlocked(r.Context(), outcome.Agreement)
		a.logger.Info("high-severity event blocked",
			zap.String("trace_id", extractTraceID(r.Context())),
			zap.String("event_type", event.EventType),
			zap.String("agreement_id", blocked.ID))
		writeJSON(w, http.StatusCreated, eventResponse{Agreement: &blocked})
		return
	}

	a.mu.Lock()
	a.sessions[session.ID] = session
	a.mu.Unlock()

	a.logger.Info("negotiation opened",
		zap.String("trace_id", extractTraceID(r.Context())),
		zap.String("event_type", event.EventType),
		zap.String("session_id", session.ID))
	writeJSON(w, http.StatusOK, eventResponse{SessionID: session.ID, Prompt: outcome.Prompt})
}

type replyRequest struct {
	Text string `json:"text"`
}

// handleReply — одна строка свободного текста пользователя в живую сессию.
func (a *IngestAPI) handleReply(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	a.mu.Lock()
	session, ok := a.sessions[id]
	a.mu.Unlock()
	if !ok {
		http.Error(w, domain.ErrSessionNotFound.Error(), http.StatusNotFound)
		return
	}

	var req replyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid reply payload", http.StatusBadRequest)
		return
	}

	outcome, err := a.negotiator.Reply(session, req.Text)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidNegotiationState) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var agreed *domain.Agreement
	if outcome.Agreement != nil {
		// Agreed: сессия отработала, договор под наблюдение
		a.mu.Lock()
		delete(a.sessions, id)
		a.mu.Unlock()

		label := "negotiated"
		if outcome.Imposed {
			label = "imposed"
		}
		a.metrics.NegotiationRounds.WithLabelValues(session.Event.EventType).
			Observe(float64(session.RoundNumber))

		// Копию в ответ снимаем до регистрации: после нее указатель
		// принадлежит тик-циклу.
		snap := *outcome.Agreement
		agreed = &snap
		a.monitor.RegisterAgreement(r.Context(), outcome.Agreement, label)
		a.logger.Info("agreement reached",
			zap.String("trace_id", extractTraceID(r.Context())),
			zap.String("agreement_id", snap.ID),
			zap.String("outcome", label))
	}

	writeJSON(w, http.StatusOK, eventResponse{
		SessionID: id,
		Prompt:    outcome.Prompt,
		Agreement: agreed,
	})
}

// handleAbandon — пользователь ушел, сессия выбрасывается без следов.
func (a *IngestAPI) handleAbandon(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	a.mu.Lock()
	session, ok := a.sessions[id]
	delete(a.sessions, id)
	a.mu.Unlock()

	if !ok {
		http.Error(w, domain.ErrSessionNotFound.Error(), http.StatusNotFound)
		return
	}

	a.negotiator.Abandon(session)
	w.WriteHeader(http.StatusNoContent)
}

// handleActivity принимает сигнал текущей активности на каждый тик детектора.
func (a *IngestAPI) handleActivity(w http.ResponseWriter, r *http.Request) {
	var signal domain.ActivitySignal
	if err := json.NewDecoder(r.Body).Decode(&signal); err != nil {
		http.Error(w, "invalid activity payload", http.StatusBadRequest)
		return
	}
	if err := signal.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	a.activity.Set(&signal)
	w.WriteHeader(http.StatusAccepted)
}

// handleListActive отдает рабочее множество (для локальной отладки виджета).
// Копии, не живые указатели: тик-цикл мутирует оригиналы.
func (a *IngestAPI) handleListActive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.monitor.ActiveSnapshot())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

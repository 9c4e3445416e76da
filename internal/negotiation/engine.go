package negotiation

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/domain"
	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/infra"
)

// Актеры транскрипта
const (
	ActorCompanion = "companion"
	ActorUser      = "user"
)

// Outcome — результат одного шага торга. Ровно одно из двух: либо terminal
// Agreement, либо очередной промпт и сессия ждет ответа дальше.
type Outcome struct {
	Agreement *domain.Agreement // nil, пока не Agreed
	Prompt    string            // Что сказать пользователю
	Imposed   bool              // Финальный оффер навязан (maxRounds исчерпан)
}

// Negotiator превращает одно BehavioralEvent плюс реплики пользователя ровно
// в один терминальный исход. Сам по себе stateless: все состояние торга живет
// в NegotiationSession, поэтому брошенная сессия не оставляет следов.
type Negotiator struct {
	cfg    infra.NegotiationConfig
	logger *zap.Logger
	now    func() time.Time
}

func NewNegotiator(cfg infra.NegotiationConfig, logger *zap.Logger) *Negotiator {
	return &Negotiator{
		cfg:    cfg,
		logger: logger.Named("negotiator"),
		now:    time.Now,
	}
}

// Open начинает торг по событию детектора.
// high-severity — особый путь: никаких переговоров, мгновенный нулевой
// договор (блок). Транскрипт пуст, сессия не создается.
func (n *Negotiator) Open(event domain.BehavioralEvent) (*domain.NegotiationSession, Outcome) {
	if event.Severity == domain.SeverityHigh {
		ag := domain.NewAgreement(event.SubjectKey, event.EventType, 0, nil, n.now())
		n.logger.Info("high severity event: immediate block agreement",
			zap.String("agreement_id", ag.ID),
			zap.String("event_type", event.EventType),
			zap.String("subject", event.SubjectKey))
		return nil, Outcome{Agreement: ag}
	}

	prompt := openingPrompt(event.EventType, event.DurationSeconds)
	session := &domain.NegotiationSession{
		ID:        uuid.New().String(),
		Event:     event,
		State:     domain.SessionAwaitingResponse,
		MaxRounds: n.cfg.MaxRounds,
	}
	session.Say(ActorCompanion, prompt)

	n.logger.Debug("negotiation session opened",
		zap.String("session_id", session.ID),
		zap.String("event_type", event.EventType))

	return session, Outcome{Prompt: prompt}
}

// Reply обрабатывает одну строку свободного текста пользователя.
// Гарантия завершаемости: при любой последовательности реплик сессия достигает
// Agreed не позже чем за maxRounds+1 раундов.
func (n *Negotiator) Reply(session *domain.NegotiationSession, text string) (Outcome, error) {
	if err := session.CanTransitionTo(domain.SessionAgreed); err != nil {
		// Ошибка программиста: реплика в завершенную сессию. Fail fast.
		return Outcome{}, err
	}

	session.Say(ActorUser, text)
	ceiling := n.cfg.Ceiling(session.Event.EventType)

	parsed, ok := ParseDuration(text)
	if !ok {
		// Число не распознано. Пока есть раунды — переспрашиваем.
		if session.RoundNumber < session.MaxRounds {
			session.RoundNumber++
			prompt := repromptConcrete()
			session.Say(ActorCompanion, prompt)
			return Outcome{Prompt: prompt}, nil
		}
		// Раунды кончились: навязываем последний оффер или дефолт.
		imposed := n.cfg.DefaultOfferSeconds
		if session.LastOfferSeconds != nil {
			imposed = *session.LastOfferSeconds
		}
		return n.conclude(session, imposed, true), nil
	}

	if parsed <= ceiling {
		// Разумный запрос — принимаем как есть (passthrough).
		return n.conclude(session, parsed, false), nil
	}

	// Запрос выше потолка: считаем контроффер.
	// Половина запрошенного, не выше потолка, не ниже минимума.
	counter := clamp(parsed/2, n.cfg.MinOfferSeconds, ceiling)

	if session.RoundNumber == session.MaxRounds {
		// Торговаться больше нечем: последний контроффер становится финальным.
		imposed := counter
		if session.LastOfferSeconds != nil {
			imposed = *session.LastOfferSeconds
		}
		return n.conclude(session, imposed, true), nil
	}

	session.RoundNumber++
	session.LastOfferSeconds = &counter
	prompt := counterPrompt(counter)
	session.Say(ActorCompanion, prompt)
	return Outcome{Prompt: prompt}, nil
}

// Abandon сбрасывает сессию без побочных эффектов: договора нет, значит
// и откатывать нечего.
func (n *Negotiator) Abandon(session *domain.NegotiationSession) {
	session.State = domain.SessionAbandoned
	n.logger.Debug("negotiation session abandoned", zap.String("session_id", session.ID))
}

// conclude — переход в Agreed: собираем договор с копией транскрипта.
func (n *Negotiator) conclude(session *domain.NegotiationSession, seconds float64, imposed bool) Outcome {
	session.State = domain.SessionAgreed

	var closing string
	if imposed {
		closing = imposedPrompt(seconds)
	} else {
		closing = acceptedPrompt(seconds)
	}
	session.Say(ActorCompanion, closing)

	transcript := make([]domain.TranscriptTurn, len(session.Transcript))
	copy(transcript, session.Transcript)

	ag := domain.NewAgreement(session.Event.SubjectKey, session.Event.EventType, seconds, transcript, n.now())

	n.logger.Info("agreement reached",
		zap.String("agreement_id", ag.ID),
		zap.String("session_id", session.ID),
		zap.Float64("agreed_seconds", seconds),
		zap.Int("rounds", session.RoundNumber),
		zap.Bool("imposed", imposed))

	return Outcome{Agreement: ag, Prompt: closing, Imposed: imposed}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

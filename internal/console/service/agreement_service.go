package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/audit"
	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/domain"
	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/infra"
	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/infra/auth"
)

// AgreementRepository описывает требования к хранилищу соглашений
type AgreementRepository interface {
	GetAgreement(ctx context.Context, id string) (*domain.Agreement, error)
	GetActive(ctx context.Context) ([]*domain.Agreement, error)
	LoadRecent(ctx context.Context, limit int) ([]*domain.Agreement, error)
	GetGlobalStats(ctx context.Context) (*domain.GlobalStats, error)
}

type JournalProvider interface {
	RecentRecords(ctx context.Context, agreementID string, limit int) ([]*audit.JournalRecord, error)
}

type AgreementService struct {
	*auth.BaseValidator
	repo    AgreementRepository
	journal JournalProvider
	rdb     *redis.Client
	logger  *zap.Logger
}

func NewAgreementService(rdb *redis.Client, repo AgreementRepository, journal JournalProvider, validator *auth.BaseValidator, logger *zap.Logger) *AgreementService {
	return &AgreementService{
		BaseValidator: validator,
		repo:          repo,
		journal:       journal,
		rdb:           rdb,
		logger:        logger.Named("agreement-service"),
	}
}

// publishSignal — унифицированный механизм доставки команд оператора в движок.
// Источник правды по состоянию соглашения живет в памяти трекера, поэтому
// консоль не трогает БД напрямую: движок сам зафиксирует результат.
func (s *AgreementService) publishSignal(ctx context.Context, agreementID, redisChan, signalValue, actionName string) error {
	payload := fmt.Sprintf("%s:%s", agreementID, signalValue)
	if err := s.rdb.Publish(ctx, redisChan, payload).Err(); err != nil {
		s.logger.Error("runtime signal delivery failed",
			zap.String("agreement_id", agreementID),
			zap.String("action", actionName),
			zap.String("channel", redisChan),
			zap.Error(err))
		return fmt.Errorf("%s signal failure: %w", actionName, err)
	}

	s.logger.Info("operator signal published",
		zap.String("agreement_id", agreementID),
		zap.String("action", actionName))
	return nil
}

// ExtendAgreement продлевает активное соглашение по решению оператора.
// Это единственный легитимный путь продления: движок сам по себе срок не двигает.
func (s *AgreementService) ExtendAgreement(ctx context.Context, id string, additionalSeconds float64) error {
	if additionalSeconds <= 0 {
		return domain.ErrInvalidExtension
	}

	// Проверяем, что соглашение вообще существует и активно,
	// чтобы не слать сигналы в пустоту.
	ag, err := s.repo.GetAgreement(ctx, id)
	if err != nil {
		return fmt.Errorf("extend lookup: %w", err)
	}
	if ag == nil || !ag.IsActive {
		return domain.ErrAgreementInactive
	}

	arg := strconv.FormatFloat(additionalSeconds, 'f', -1, 64)
	return s.publishSignal(ctx, id, infra.RedisChanExtend, arg, "agreement-extend")
}

// RevokeAgreement досрочно снимает соглашение с контроля.
func (s *AgreementService) RevokeAgreement(ctx context.Context, id string) error {
	ag, err := s.repo.GetAgreement(ctx, id)
	if err != nil {
		return fmt.Errorf("revoke lookup: %w", err)
	}
	if ag == nil {
		return domain.ErrAgreementInactive
	}
	return s.publishSignal(ctx, id, infra.RedisChanRevoke, "off", "agreement-revoke")
}

func (s *AgreementService) GetAgreement(ctx context.Context, id string) (*domain.Agreement, error) {
	ag, err := s.repo.GetAgreement(ctx, id)
	if err != nil {
		s.logger.Error("failed to fetch agreement", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return ag, nil
}

// ListAgreements возвращает последние соглашения для основной таблицы консоли.
func (s *AgreementService) ListAgreements(ctx context.Context, limit int) ([]*domain.Agreement, error) {
	if limit <= 0 {
		limit = 50
	}
	agreements, err := s.repo.LoadRecent(ctx, limit)
	if err != nil {
		s.logger.Error("failed to list agreements from repository", zap.Error(err))
		return nil, fmt.Errorf("service: could not fetch agreements: %w", err)
	}

	// Гарантируем, что фронтенд получит пустой массив [], а не null.
	if agreements == nil {
		return []*domain.Agreement{}, nil
	}
	return agreements, nil
}

func (s *AgreementService) GetGlobalStats(ctx context.Context) (*domain.GlobalStats, error) {
	// здесь можно добавить кэширование в Redis на 1 минуту,
	// чтобы не нагружать Postgres тяжелыми аналитическими запросами.
	return s.repo.GetGlobalStats(ctx)
}

// GetJournal отдает хронологию жизненного цикла соглашения.
func (s *AgreementService) GetJournal(ctx context.Context, agreementID string, limit int) ([]*audit.JournalRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	records, err := s.journal.RecentRecords(ctx, agreementID, limit)
	if err != nil {
		s.logger.Error("failed to fetch journal", zap.String("agreement_id", agreementID), zap.Error(err))
		return nil, fmt.Errorf("service: could not fetch journal: %w", err)
	}
	if records == nil {
		return []*audit.JournalRecord{}, nil
	}
	return records, nil
}

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Драйвер Postgres

	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/domain"
)

type AgreementRepo struct {
	db *sql.DB
}

// NewAgreementRepo создает новый экземпляр репозитория
func NewAgreementRepo(connString string) *AgreementRepo {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		// В main мы проверим соединение через Ping
		log.Fatal(err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &AgreementRepo{db: db}
}

// Ping проверяет доступность базы при старте
func (r *AgreementRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const agreementColumns = `id, subject_key, event_type, agreed_duration_seconds,
	created_at, expires_at, transcript, is_active, is_violated, violation_count`

// SaveAgreement — upsert полного состояния договора. Идентичность неизменна,
// поэтому конфликт по id просто перезаписывает мутабельные поля.
func (r *AgreementRepo) SaveAgreement(ctx context.Context, ag *domain.Agreement) error {
	transcript, err := json.Marshal(ag.NegotiationTranscript)
	if err != nil {
		return fmt.Errorf("postgres: marshal transcript: %w", err)
	}

	query := `INSERT INTO agreements (` + agreementColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	          ON CONFLICT (id) DO UPDATE SET
	              agreed_duration_seconds = EXCLUDED.agreed_duration_seconds,
	              expires_at = EXCLUDED.expires_at,
	              is_active = EXCLUDED.is_active,
	              is_violated = EXCLUDED.is_violated,
	              violation_count = EXCLUDED.violation_count`

	_, err = r.db.ExecContext(ctx, query,
		ag.ID, ag.SubjectKey, ag.EventType, ag.AgreedDurationSeconds,
		ag.CreatedAt, ag.ExpiresAt, transcript, ag.IsActive, ag.IsViolated, ag.ViolationCount,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to save agreement: %w", err)
	}
	return nil
}

// GetAgreement возвращает договор по ID. Отсутствие записи — не ошибка:
// (nil, nil), вызывающий сам решает, что это (404, конфликт и т.д.).
func (r *AgreementRepo) GetAgreement(ctx context.Context, id string) (*domain.Agreement, error) {
	query := `SELECT ` + agreementColumns + ` FROM agreements WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	ag, err := scanAgreement(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return ag, nil
}

// GetActive возвращает все активные договоры — теплый старт трекера после
// рестарта демона.
func (r *AgreementRepo) GetActive(ctx context.Context) ([]*domain.Agreement, error) {
	query := `SELECT ` + agreementColumns + ` FROM agreements WHERE is_active = TRUE ORDER BY id`
	return r.queryAgreements(ctx, query)
}

// LoadRecent возвращает n последних договоров (история для Console API).
func (r *AgreementRepo) LoadRecent(ctx context.Context, n int) ([]*domain.Agreement, error) {
	query := `SELECT ` + agreementColumns + ` FROM agreements ORDER BY created_at DESC LIMIT $1`
	return r.queryAgreements(ctx, query, n)
}

func (r *AgreementRepo) queryAgreements(ctx context.Context, query string, args ...interface{}) ([]*domain.Agreement, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query agreements: %w", err)
	}
	defer rows.Close()

	// Инициализируем пустой слайс, чтобы в JSON был [] вместо null
	results := make([]*domain.Agreement, 0)
	for rows.Next() {
		ag, err := scanAgreement(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan agreement: %w", err)
		}
		results = append(results, ag)
	}

	// Проверка на ошибки итерации
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAgreement(row rowScanner) (*domain.Agreement, error) {
	var ag domain.Agreement
	var transcript []byte

	err := row.Scan(
		&ag.ID,
		&ag.SubjectKey,
		&ag.EventType,
		&ag.AgreedDurationSeconds,
		&ag.CreatedAt,
		&ag.ExpiresAt,
		&transcript,
		&ag.IsActive,
		&ag.IsViolated,
		&ag.ViolationCount,
	)
	if err != nil {
		return nil, err
	}

	if len(transcript) > 0 {
		if err := json.Unmarshal(transcript, &ag.NegotiationTranscript); err != nil {
			return nil, fmt.Errorf("unmarshal transcript: %w", err)
		}
	}
	return &ag, nil
}

// GetGlobalStats собирает агрегаты для дашборда Console API.
func (r *AgreementRepo) GetGlobalStats(ctx context.Context) (*domain.GlobalStats, error) {
	stats := &domain.GlobalStats{TopSubjects: make(map[string]int64)}

	query := `SELECT
	              COUNT(*),
	              COUNT(*) FILTER (WHERE is_active),
	              COUNT(*) FILTER (WHERE is_violated),
	              COUNT(*) FILTER (WHERE NOT is_active AND NOT is_violated)
	          FROM agreements`
	err := r.db.QueryRowContext(ctx, query).Scan(
		&stats.TotalAgreements, &stats.ActiveAgreements, &stats.Violations, &stats.Completions)
	if err != nil {
		return nil, fmt.Errorf("postgres: stats query failed: %w", err)
	}

	if done := stats.Violations + stats.Completions; done > 0 {
		stats.ComplianceRatio = float64(stats.Completions) / float64(done)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT subject_key, COUNT(*) FROM agreements
		 WHERE subject_key <> '' GROUP BY subject_key ORDER BY COUNT(*) DESC LIMIT 10`)
	if err != nil {
		return nil, fmt.Errorf("postgres: top subjects query failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var subject string
		var count int64
		if err := rows.Scan(&subject, &count); err != nil {
			return nil, fmt.Errorf("postgres: scan top subject: %w", err)
		}
		stats.TopSubjects[subject] = count
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}

	return stats, nil
}

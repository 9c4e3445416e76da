package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Драйвер Postgres

	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/audit"
)

type JournalRepo struct {
	db *sql.DB
}

func NewJournalRepo(connString string) *JournalRepo {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		// В main мы проверим соединение через Ping
		log.Fatal(err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &JournalRepo{db: db}
}

func (r *JournalRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// WriteBatch — пакетная вставка записей журнала (Bulk Insert).
func (r *JournalRepo) WriteBatch(ctx context.Context, records []audit.JournalRecord) error {
	if len(records) == 0 {
		return nil
	}

	// Количество колонок в таблице agreement_journal
	numFields := 7
	placeholderStr := ""
	vals := make([]interface{}, 0, len(records)*numFields)

	// Динамически строим запрос для пакетной вставки
	for i, rec := range records {
		p := i * numFields
		placeholderStr += fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d),",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7)

		details, _ := json.Marshal(rec.Details)
		vals = append(vals,
			rec.ID, rec.AgreementID, rec.SubjectKey, rec.EventType,
			string(rec.Kind), details, rec.Timestamp,
		)
	}

	// Убираем лишнюю запятую в конце
	query := fmt.Sprintf(
		"INSERT INTO agreement_journal (id, agreement_id, subject_key, event_type, kind, details, timestamp) VALUES %s",
		strings.TrimSuffix(placeholderStr, ","),
	)

	_, err := r.db.ExecContext(ctx, query, vals...)
	return err
}

// RecentRecords возвращает n последних записей истории для Console API.
// Пустой agreementID означает выборку по всем соглашениям.
func (r *JournalRepo) RecentRecords(ctx context.Context, agreementID string, n int) ([]*audit.JournalRecord, error) {
	query := `SELECT id, agreement_id, subject_key, event_type, kind, details, timestamp
	          FROM agreement_journal
	          WHERE ($1 = '' OR agreement_id = $1)
	          ORDER BY timestamp DESC LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, agreementID, n)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query journal: %w", err)
	}
	defer rows.Close()

	results := make([]*audit.JournalRecord, 0, n)
	for rows.Next() {
		rec := &audit.JournalRecord{}
		var kind string
		var details []byte
		if err := rows.Scan(&rec.ID, &rec.AgreementID, &rec.SubjectKey,
			&rec.EventType, &kind, &details, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan journal record: %w", err)
		}
		rec.Kind = audit.RecordKind(kind)
		if len(details) > 0 {
			_ = json.Unmarshal(details, &rec.Details)
		}
		results = append(results, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}

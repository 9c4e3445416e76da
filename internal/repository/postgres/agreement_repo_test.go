package postgres

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/domain"
)

// stubRow — rowScanner поверх заранее подготовленных значений колонок,
// в том порядке, в котором их пишет SaveAgreement.
type stubRow struct {
	vals []interface{}
}

func (s *stubRow) Scan(dest ...interface{}) error {
	if len(dest) != len(s.vals) {
		return fmt.Errorf("expected %d columns, got %d", len(s.vals), len(dest))
	}
	for i, d := range dest {
		switch dst := d.(type) {
		case *string:
			*dst = s.vals[i].(string)
		case *float64:
			*dst = s.vals[i].(float64)
		case *time.Time:
			*dst = s.vals[i].(time.Time)
		case *[]byte:
			*dst = s.vals[i].([]byte)
		case *bool:
			*dst = s.vals[i].(bool)
		case *int:
			*dst = s.vals[i].(int)
		default:
			return fmt.Errorf("unsupported scan destination %T", d)
		}
	}
	return nil
}

// savedRow собирает значения колонок так же, как SaveAgreement кладет их
// в ExecContext: единственный lossy-кандидат — JSON транскрипта.
func savedRow(t *testing.T, ag *domain.Agreement) *stubRow {
	t.Helper()
	transcript, err := json.Marshal(ag.NegotiationTranscript)
	require.NoError(t, err)

	return &stubRow{vals: []interface{}{
		ag.ID, ag.SubjectKey, ag.EventType, ag.AgreedDurationSeconds,
		ag.CreatedAt, ag.ExpiresAt, transcript, ag.IsActive, ag.IsViolated, ag.ViolationCount,
	}}
}

func TestAgreementSurvivesSaveScanRoundTrip(t *testing.T) {
	createdAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	ag := domain.NewAgreement("youtube.com", "distraction_site", 600,
		[]domain.TranscriptTurn{
			{Actor: "companion", Text: "You've been here 20 minutes. How much longer?"},
			{Actor: "user", Text: "20 minutes"},
			{Actor: "companion", Text: "How about 10 minutes instead?"},
			{Actor: "user", Text: "ok"},
		}, createdAt)

	// Прогоняем договор через жизненный цикл: мутабельные поля тоже должны
	// пережить запись и чтение без потерь.
	require.NoError(t, ag.Extend(300))
	ag.MarkViolated()
	ag.Deactivate()

	got, err := scanAgreement(savedRow(t, ag))
	require.NoError(t, err)
	require.Equal(t, *ag, *got)
}

func TestAgreementRoundTripEmptyTranscript(t *testing.T) {
	createdAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	// Блок-договор: транскрипта нет, длительность нулевая.
	ag := domain.NewAgreement("casino.com", "gambling", 0, nil, createdAt)
	ag.Deactivate()

	got, err := scanAgreement(savedRow(t, ag))
	require.NoError(t, err)
	require.Equal(t, *ag, *got)
	require.True(t, got.ExpiresAt.Equal(got.CreatedAt))
}

package negotiation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/domain"
	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/infra"
)

func testNegotiator() *Negotiator {
	cfg := infra.NegotiationConfig{
		MaxRounds:           3,
		DefaultOfferSeconds: 600,
		MinOfferSeconds:     60,
		CeilingSeconds:      map[string]float64{"default": 900},
	}
	n := NewNegotiator(cfg, zap.NewNop())
	n.now = func() time.Time { return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC) }
	return n
}

func mediumEvent() domain.BehavioralEvent {
	return domain.BehavioralEvent{
		EventType:       "distraction_site",
		Severity:        domain.SeverityMedium,
		SubjectKey:      "youtube.com",
		DurationSeconds: 300,
	}
}

func TestOpenHighSeverityImmediateBlock(t *testing.T) {
	n := testNegotiator()

	session, out := n.Open(domain.BehavioralEvent{
		EventType:  "distraction_site",
		Severity:   domain.SeverityHigh,
		SubjectKey: "gambling.example",
	})

	assert.Nil(t, session)
	require.NotNil(t, out.Agreement)
	assert.Equal(t, 0.0, out.Agreement.AgreedDurationSeconds)
	assert.True(t, out.Agreement.IsActive)
	assert.Empty(t, out.Agreement.NegotiationTranscript)
	assert.Equal(t, out.Agreement.CreatedAt, out.Agreement.ExpiresAt)
}

func TestOpenCreatesSession(t *testing.T) {
	n := testNegotiator()

	session, out := n.Open(mediumEvent())

	require.NotNil(t, session)
	assert.Nil(t, out.Agreement)
	assert.NotEmpty(t, out.Prompt)
	assert.Equal(t, domain.SessionAwaitingResponse, session.State)
	assert.Equal(t, 0, session.RoundNumber)
	require.Len(t, session.Transcript, 1)
	assert.Equal(t, ActorCompanion, session.Transcript[0].Actor)
}

// Сценарий: запрос выше потолка получает контроффер «половина, не выше
// потолка», второй разумный ответ принимается как есть.
func TestReplyCounterOfferThenAccept(t *testing.T) {
	n := testNegotiator()
	session, _ := n.Open(mediumEvent())

	// 20 минут = 1200с > потолка 900с. Контроффер: clamp(600, 60, 900) = 600.
	out, err := n.Reply(session, "give me 20 minutes")
	require.NoError(t, err)
	assert.Nil(t, out.Agreement)
	assert.NotEmpty(t, out.Prompt)
	assert.Equal(t, 1, session.RoundNumber)
	require.NotNil(t, session.LastOfferSeconds)
	assert.Equal(t, 600.0, *session.LastOfferSeconds)

	out, err = n.Reply(session, "fine, 10 minutes")
	require.NoError(t, err)
	require.NotNil(t, out.Agreement)
	assert.False(t, out.Imposed)
	assert.Equal(t, 600.0, out.Agreement.AgreedDurationSeconds)
	assert.Equal(t, domain.SessionAgreed, session.State)
}

// Полный диалог: жадный запрос, согласие без числа, переспрос, конкретика.
func TestNegotiationDialogFlow(t *testing.T) {
	n := testNegotiator()
	session, _ := n.Open(mediumEvent())

	out, err := n.Reply(session, "20 minutes")
	require.NoError(t, err)
	assert.Nil(t, out.Agreement)

	// «ok» числа не содержит: вежливо переспрашиваем.
	out, err = n.Reply(session, "ok")
	require.NoError(t, err)
	assert.Nil(t, out.Agreement)

	out, err = n.Reply(session, "10")
	require.NoError(t, err)
	require.NotNil(t, out.Agreement)
	assert.Equal(t, 600.0, out.Agreement.AgreedDurationSeconds)
	assert.False(t, out.Imposed)
}

func TestReplyReasonableRequestPassesThrough(t *testing.T) {
	n := testNegotiator()
	session, _ := n.Open(mediumEvent())

	out, err := n.Reply(session, "5 minutes")
	require.NoError(t, err)
	require.NotNil(t, out.Agreement)
	assert.False(t, out.Imposed)
	assert.Equal(t, 300.0, out.Agreement.AgreedDurationSeconds)
}

func TestReplyCounterNeverExceedsCeiling(t *testing.T) {
	n := testNegotiator()
	session, _ := n.Open(mediumEvent())

	// Половина от 10 часов это все еще сильно выше потолка.
	_, err := n.Reply(session, "10 hours")
	require.NoError(t, err)
	require.NotNil(t, session.LastOfferSeconds)
	assert.Equal(t, 900.0, *session.LastOfferSeconds)
}

func TestReplyUnparseableRepromptsThenImposes(t *testing.T) {
	n := testNegotiator()
	session, _ := n.Open(mediumEvent())

	for i := 0; i < 3; i++ {
		out, err := n.Reply(session, "whatever man")
		require.NoError(t, err)
		assert.Nil(t, out.Agreement, "round %d should reprompt", i)
	}

	// Раунды исчерпаны: оффера не было, навязывается дефолт.
	out, err := n.Reply(session, "still whatever")
	require.NoError(t, err)
	require.NotNil(t, out.Agreement)
	assert.True(t, out.Imposed)
	assert.Equal(t, 600.0, out.Agreement.AgreedDurationSeconds)
	assert.Equal(t, domain.SessionAgreed, session.State)
}

func TestReplyStubbornUserGetsLastOfferImposed(t *testing.T) {
	n := testNegotiator()
	session, _ := n.Open(mediumEvent())

	// Три раунда запросов выше потолка сжигают все контрофферы.
	for i := 0; i < 3; i++ {
		out, err := n.Reply(session, "2 hours")
		require.NoError(t, err)
		assert.Nil(t, out.Agreement)
	}

	// Четвертая реплика выше потолка: навязывается последний контроффер.
	out, err := n.Reply(session, "2 hours")
	require.NoError(t, err)
	require.NotNil(t, out.Agreement)
	assert.True(t, out.Imposed)
	assert.Equal(t, *session.LastOfferSeconds, out.Agreement.AgreedDurationSeconds)
}

// Гарантия завершаемости: любая последовательность реплик упирается в
// терминальный Agreement не позже maxRounds+1 реплики.
func TestNegotiationAlwaysTerminates(t *testing.T) {
	inputs := [][]string{
		{"blah", "blah", "blah", "blah"},
		{"5 hours", "4 hours", "3 hours", "2 hours"},
		{"blah", "5 hours", "blah", "5 hours"},
	}

	for _, seq := range inputs {
		n := testNegotiator()
		session, _ := n.Open(mediumEvent())

		var agreed bool
		for i, text := range seq {
			out, err := n.Reply(session, text)
			require.NoError(t, err)
			if out.Agreement != nil {
				agreed = true
				assert.LessOrEqual(t, i, session.MaxRounds)
				break
			}
		}
		assert.True(t, agreed, "sequence %v never terminated", seq)
	}
}

func TestReplyToConcludedSessionFails(t *testing.T) {
	n := testNegotiator()
	session, _ := n.Open(mediumEvent())

	_, err := n.Reply(session, "5 minutes")
	require.NoError(t, err)

	_, err = n.Reply(session, "10 minutes")
	assert.ErrorIs(t, err, domain.ErrInvalidNegotiationState)
}

func TestAbandonLeavesNoAgreement(t *testing.T) {
	n := testNegotiator()
	session, _ := n.Open(mediumEvent())

	n.Abandon(session)
	assert.Equal(t, domain.SessionAbandoned, session.State)

	_, err := n.Reply(session, "5 minutes")
	assert.ErrorIs(t, err, domain.ErrInvalidNegotiationState)
}

func TestConcludeCopiesTranscript(t *testing.T) {
	n := testNegotiator()
	session, _ := n.Open(mediumEvent())

	out, err := n.Reply(session, "5 minutes")
	require.NoError(t, err)
	require.NotNil(t, out.Agreement)

	// Транскрипт договора — снимок: opening + реплика + closing.
	require.Len(t, out.Agreement.NegotiationTranscript, 3)
	session.Say(ActorUser, "late addition")
	assert.Len(t, out.Agreement.NegotiationTranscript, 3)
}

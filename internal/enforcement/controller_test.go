package enforcement

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/capability"
	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/domain"
	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/infra"
)

// mockService — capability.Service с подменяемым Invoke.
type mockService struct {
	invokeFn func(ctx context.Context, payload []byte) ([]byte, error)
	calls    int
}

func (m *mockService) Invoke(ctx context.Context, payload []byte) ([]byte, error) {
	m.calls++
	if m.invokeFn != nil {
		return m.invokeFn(ctx, payload)
	}
	return json.Marshal(capability.CloseResult{Closed: true})
}

func (m *mockService) Ping(ctx context.Context) error { return nil }

// mockResolver раздает сервисы по имени capability.
type mockResolver struct {
	services map[string]capability.Service
}

func (m *mockResolver) Resolve(_ context.Context, capName string) (capability.Service, error) {
	svc, ok := m.services[capName]
	if !ok {
		return nil, domain.ErrNoCapabilityAvailable
	}
	return svc, nil
}

var enfEpoch = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func testController(resolver Resolver) (*Controller, *time.Time) {
	cfg := infra.EnforcementConfig{
		MaxAttempts:      3,
		RenotifyInterval: 10 * time.Second,
	}
	clock := enfEpoch
	c := NewController(resolver, cfg, 30*time.Second, zap.NewNop())
	c.now = func() time.Time { return clock }
	return c, &clock
}

// Договор, истекший в enfEpoch: grace-граница enfEpoch+30s.
func expiredAgreement() *domain.Agreement {
	return domain.NewAgreement("youtube.com", "distraction_site", 0, nil, enfEpoch)
}

func TestEnforceGraceThenTerminal(t *testing.T) {
	closer := &mockService{}
	notifier := &mockService{}
	c, clock := testController(&mockResolver{services: map[string]capability.Service{
		capability.CapCloseResource: closer,
		capability.CapNotify:        notifier,
	}})
	ag := expiredAgreement()

	// Внутри grace: только предупреждение, ресурс не трогаем.
	*clock = enfEpoch.Add(5 * time.Second)
	terminal, err := c.Enforce(context.Background(), ag, false)
	require.NoError(t, err)
	assert.False(t, terminal)
	assert.Equal(t, 0, closer.calls)
	assert.Equal(t, 1, notifier.calls)

	// За grace-границей: одно терминальное действие, фаза терминальна.
	*clock = enfEpoch.Add(31 * time.Second)
	terminal, err = c.Enforce(context.Background(), ag, false)
	require.NoError(t, err)
	assert.True(t, terminal)
	assert.Equal(t, 1, closer.calls)
	assert.True(t, c.Enforced(ag.ID))
}

func TestEnforceIdempotent(t *testing.T) {
	closer := &mockService{}
	c, clock := testController(&mockResolver{services: map[string]capability.Service{
		capability.CapCloseResource: closer,
	}})
	ag := expiredAgreement()

	*clock = enfEpoch.Add(31 * time.Second)
	for i := 0; i < 5; i++ {
		terminal, err := c.Enforce(context.Background(), ag, false)
		require.NoError(t, err)
		assert.True(t, terminal)
	}
	// N вызовов Enforce — ровно одно физическое действие.
	assert.Equal(t, 1, closer.calls)
}

func TestEnforceRenotifyThrottled(t *testing.T) {
	notifier := &mockService{}
	c, clock := testController(&mockResolver{services: map[string]capability.Service{
		capability.CapNotify: notifier,
	}})
	ag := expiredAgreement()

	// Тики каждые 2 секунды внутри grace-окна.
	for i := 0; i < 10; i++ {
		*clock = enfEpoch.Add(time.Duration(2*i) * time.Second)
		_, err := c.Enforce(context.Background(), ag, false)
		require.NoError(t, err)
	}
	// t=0 и t=10: повторы не чаще renotify_interval.
	assert.Equal(t, 2, notifier.calls)
}

func TestEnforceForceSkipsGrace(t *testing.T) {
	closer := &mockService{}
	c, clock := testController(&mockResolver{services: map[string]capability.Service{
		capability.CapCloseResource: closer,
	}})
	ag := expiredAgreement()

	// force=true: high-severity блок закрывает немедленно, без grace.
	*clock = enfEpoch
	terminal, err := c.Enforce(context.Background(), ag, true)
	require.NoError(t, err)
	assert.True(t, terminal)
	assert.Equal(t, 1, closer.calls)
}

func TestEnforceRetriesAcrossTicksThenGivesUp(t *testing.T) {
	closer := &mockService{
		invokeFn: func(context.Context, []byte) ([]byte, error) {
			return nil, errors.New("tab refuses to die")
		},
	}
	notifier := &mockService{}
	c, clock := testController(&mockResolver{services: map[string]capability.Service{
		capability.CapCloseResource: closer,
		capability.CapNotify:        notifier,
	}})
	ag := expiredAgreement()
	*clock = enfEpoch.Add(31 * time.Second)

	// Первые две попытки: не terminal, ретрай на следующем тике.
	for i := 0; i < 2; i++ {
		terminal, err := c.Enforce(context.Background(), ag, false)
		assert.False(t, terminal)
		assert.Error(t, err)
		assert.False(t, c.Enforced(ag.ID))
	}

	// Третья попытка исчерпывает лимит: сдаемся громко.
	terminal, err := c.Enforce(context.Background(), ag, false)
	assert.True(t, terminal)
	assert.ErrorIs(t, err, domain.ErrEnforcementFailed)
	assert.True(t, c.Enforced(ag.ID))
	assert.Equal(t, 3, closer.calls)
	// Critical-уведомление пользователю отправлено.
	assert.Equal(t, 1, notifier.calls)

	// После провала состояние терминально, повторов нет.
	terminal, err = c.Enforce(context.Background(), ag, false)
	assert.True(t, terminal)
	assert.NoError(t, err)
	assert.Equal(t, 3, closer.calls)
}

func TestEnforceCloseCapabilityMissing(t *testing.T) {
	c, clock := testController(&mockResolver{services: map[string]capability.Service{}})
	ag := expiredAgreement()
	*clock = enfEpoch.Add(31 * time.Second)

	for i := 0; i < 2; i++ {
		terminal, err := c.Enforce(context.Background(), ag, false)
		assert.False(t, terminal)
		assert.ErrorIs(t, err, domain.ErrNoCapabilityAvailable)
	}

	terminal, err := c.Enforce(context.Background(), ag, false)
	assert.True(t, terminal)
	assert.ErrorIs(t, err, domain.ErrEnforcementFailed)
}

func TestEnforceCloseReportedFailure(t *testing.T) {
	// Сервис отвечает без ошибки, но Closed=false — это тоже провал попытки.
	closer := &mockService{
		invokeFn: func(context.Context, []byte) ([]byte, error) {
			return json.Marshal(capability.CloseResult{Closed: false})
		},
	}
	c, clock := testController(&mockResolver{services: map[string]capability.Service{
		capability.CapCloseResource: closer,
	}})
	ag := expiredAgreement()
	*clock = enfEpoch.Add(31 * time.Second)

	terminal, err := c.Enforce(context.Background(), ag, false)
	assert.False(t, terminal)
	assert.Error(t, err)
}

func TestForgetClearsState(t *testing.T) {
	closer := &mockService{}
	c, clock := testController(&mockResolver{services: map[string]capability.Service{
		capability.CapCloseResource: closer,
	}})
	ag := expiredAgreement()
	*clock = enfEpoch.Add(31 * time.Second)

	terminal, _ := c.Enforce(context.Background(), ag, false)
	require.True(t, terminal)
	c.Forget(ag.ID)

	// После Forget новый цикл по тому же ID начинается с чистого листа.
	terminal, err := c.Enforce(context.Background(), ag, false)
	require.NoError(t, err)
	assert.True(t, terminal)
	assert.Equal(t, 2, closer.calls)
}

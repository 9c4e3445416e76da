package capability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/domain"
)

// pingableService — Service с подменяемым Ping для health-сценариев.
type pingableService struct {
	name   string
	pingFn func(ctx context.Context) error
	pings  int
}

func (p *pingableService) Invoke(ctx context.Context, payload []byte) ([]byte, error) {
	return []byte(p.name), nil
}

func (p *pingableService) Ping(ctx context.Context) error {
	p.pings++
	if p.pingFn != nil {
		return p.pingFn(ctx)
	}
	return nil
}

var regEpoch = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func testRegistry(refresh time.Duration) (*Registry, *time.Time) {
	clock := regEpoch
	r := NewRegistry(refresh, zap.NewNop())
	r.now = func() time.Time { return clock }
	return r, &clock
}

func TestResolvePrefersPrimary(t *testing.T) {
	r, _ := testRegistry(30 * time.Second)
	primary := &pingableService{name: "primary"}
	fallback := &pingableService{name: "fallback"}
	r.Register(CapSynthesizeSpeech, "primary", primary)
	r.Register(CapSynthesizeSpeech, "fallback", fallback)

	svc, err := r.Resolve(context.Background(), CapSynthesizeSpeech)
	require.NoError(t, err)
	out, _ := svc.Invoke(context.Background(), nil)
	assert.Equal(t, "primary", string(out))
}

func TestFreshRegistrationResolvesWithoutPing(t *testing.T) {
	r, _ := testRegistry(30 * time.Second)
	svc := &pingableService{name: "primary"}
	r.Register(CapNotify, "primary", svc)

	// Сразу после регистрации кэш свежий: даже самый первый Resolve не пингует.
	_, err := r.Resolve(context.Background(), CapNotify)
	require.NoError(t, err)
	assert.Equal(t, 0, svc.pings)
}

func TestResolveFallsBackWhenPrimaryDown(t *testing.T) {
	r, clock := testRegistry(30 * time.Second)
	primary := &pingableService{
		name:   "primary",
		pingFn: func(context.Context) error { return errors.New("tts engine crashed") },
	}
	fallback := &pingableService{name: "fallback"}
	r.Register(CapSynthesizeSpeech, "primary", primary)
	r.Register(CapSynthesizeSpeech, "fallback", fallback)

	// Свежая регистрация считается живой до первого refresh — двигаем часы.
	*clock = regEpoch.Add(31 * time.Second)
	svc, err := r.Resolve(context.Background(), CapSynthesizeSpeech)
	require.NoError(t, err)
	out, _ := svc.Invoke(context.Background(), nil)
	assert.Equal(t, "fallback", string(out))
}

func TestResolveNoCapability(t *testing.T) {
	r, _ := testRegistry(30 * time.Second)

	_, err := r.Resolve(context.Background(), CapCaptureUserImage)
	assert.ErrorIs(t, err, domain.ErrNoCapabilityAvailable)
}

func TestResolveAllInstancesDown(t *testing.T) {
	r, clock := testRegistry(30 * time.Second)
	down := func(context.Context) error { return errors.New("down") }
	r.Register(CapNotify, "a", &pingableService{name: "a", pingFn: down})
	r.Register(CapNotify, "b", &pingableService{name: "b", pingFn: down})

	*clock = regEpoch.Add(31 * time.Second)
	_, err := r.Resolve(context.Background(), CapNotify)
	assert.ErrorIs(t, err, domain.ErrNoCapabilityAvailable)
}

func TestHealthCacheRespectsInterval(t *testing.T) {
	r, clock := testRegistry(30 * time.Second)
	svc := &pingableService{name: "primary"}
	r.Register(CapNotify, "primary", svc)

	// Кэш свежий: Resolve не пингует.
	*clock = regEpoch.Add(10 * time.Second)
	for i := 0; i < 5; i++ {
		_, err := r.Resolve(context.Background(), CapNotify)
		require.NoError(t, err)
	}
	assert.Equal(t, 0, svc.pings)

	// Интервал прошел: ровно один ping, кэш обновлен.
	*clock = regEpoch.Add(31 * time.Second)
	_, err := r.Resolve(context.Background(), CapNotify)
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), CapNotify)
	require.NoError(t, err)
	assert.Equal(t, 1, svc.pings)
}

func TestServiceRecoversAfterRefresh(t *testing.T) {
	r, clock := testRegistry(30 * time.Second)
	healthy := false
	svc := &pingableService{
		name: "primary",
		pingFn: func(context.Context) error {
			if healthy {
				return nil
			}
			return errors.New("warming up")
		},
	}
	r.Register(CapNotify, "primary", svc)

	*clock = regEpoch.Add(31 * time.Second)
	_, err := r.Resolve(context.Background(), CapNotify)
	assert.ErrorIs(t, err, domain.ErrNoCapabilityAvailable)

	// Сервис ожил, следующий refresh это увидел.
	healthy = true
	*clock = regEpoch.Add(62 * time.Second)
	resolved, err := r.Resolve(context.Background(), CapNotify)
	require.NoError(t, err)
	assert.NotNil(t, resolved)
}

func TestResolveWithFallbackCrossCapability(t *testing.T) {
	r, _ := testRegistry(30 * time.Second)
	r.Register(CapSynthesizeSpeech, "speaker", &pingableService{name: "speaker"})

	// Notify не зарегистрирован вовсе: уходим в запасную capability.
	svc, err := r.ResolveWithFallback(context.Background(), CapNotify, CapSynthesizeSpeech)
	require.NoError(t, err)
	out, _ := svc.Invoke(context.Background(), nil)
	assert.Equal(t, "speaker", string(out))

	_, err = r.ResolveWithFallback(context.Background(), CapNotify, CapCaptureUserImage)
	assert.ErrorIs(t, err, domain.ErrNoCapabilityAvailable)
}

func TestHealthSnapshot(t *testing.T) {
	r, clock := testRegistry(30 * time.Second)
	r.Register(CapNotify, "primary", &pingableService{name: "primary"})
	r.Register(CapNotify, "backup", &pingableService{
		name:   "backup",
		pingFn: func(context.Context) error { return errors.New("down") },
	})

	*clock = regEpoch.Add(31 * time.Second)
	_, _ = r.Resolve(context.Background(), CapNotify)

	health := r.Health(CapNotify)
	require.Len(t, health, 2)
	assert.Equal(t, domain.HealthAvailable, health["primary"].Status)
	// Backup не проверялся: primary ответил первым, цепочка остановилась.
	assert.Equal(t, domain.HealthAvailable, health["backup"].Status)
}

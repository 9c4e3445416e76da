package capability

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// Контракты payload для capability, которые зовет ядро.

type NotifyPayload struct {
	Message string `json:"message"`
	Urgency string `json:"urgency"` // "passive" | "interactive" | "critical"
}

type SpeechPayload struct {
	Text string `json:"text"`
}

type ClosePayload struct {
	SubjectKey string `json:"subject_key"`
}

type CloseResult struct {
	Closed bool `json:"closed"`
}

// LogNotifier — локальный фоллбэк нотификаций: пишет в zap вместо UI.
// Встает последним в цепочку, чтобы деградация была видимой, а не молчаливой.
type LogNotifier struct {
	Logger *zap.Logger
}

func (n *LogNotifier) Invoke(ctx context.Context, payload []byte) ([]byte, error) {
	var p NotifyPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("notify payload: %w", err)
	}
	n.Logger.Warn("NOTIFICATION",
		zap.String("message", p.Message),
		zap.String("urgency", p.Urgency))
	return []byte(`{"delivered":true}`), nil
}

func (n *LogNotifier) Ping(ctx context.Context) error { return nil }

// LogSpeaker — фоллбэк синтеза речи: вместо голоса печатает фразу в лог.
type LogSpeaker struct {
	Logger *zap.Logger
}

func (s *LogSpeaker) Invoke(ctx context.Context, payload []byte) ([]byte, error) {
	var p SpeechPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("speech payload: %w", err)
	}
	s.Logger.Info("SPEECH", zap.String("text", p.Text))
	return []byte(`{"spoken":false}`), nil
}

func (s *LogSpeaker) Ping(ctx context.Context) error { return nil }

// MockResourceCloser имитирует закрытие вкладки/процесса. Для демо-стенда
// и тестов; боевой адаптер (browser extension bridge) подключается снаружи.
type MockResourceCloser struct {
	Logger *zap.Logger
	// FailFor — subjectKey, на которых имитируем отказ закрытия.
	FailFor map[string]bool
}

func (c *MockResourceCloser) Invoke(ctx context.Context, payload []byte) ([]byte, error) {
	var p ClosePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("close payload: %w", err)
	}
	if c.FailFor[p.SubjectKey] {
		return nil, fmt.Errorf("resource %s refused to close", p.SubjectKey)
	}
	if c.Logger != nil {
		c.Logger.Info("resource closed", zap.String("subject", p.SubjectKey))
	}
	return json.Marshal(CloseResult{Closed: true})
}

func (c *MockResourceCloser) Ping(ctx context.Context) error { return nil }

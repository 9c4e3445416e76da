package capability

import "context"

// Имена capability, которые потребляет ядро. Резолвятся по имени с
// упорядоченным списком фоллбэков.
const (
	CapSynthesizeSpeech = "synthesize_speech"
	CapNotify           = "notify"
	CapCloseResource    = "close_resource"
	CapCaptureUserImage = "capture_user_image"
	CapPersistAgreement = "persist_agreement"
)

// Service — хендл одного внешнего сервиса (голос, нотификации, закрытие
// вкладок). Payload — JSON, контракт зависит от capability.
type Service interface {
	Invoke(ctx context.Context, payload []byte) ([]byte, error)
	// Ping — активная проверка живости для кэша здоровья.
	Ping(ctx context.Context) error
}

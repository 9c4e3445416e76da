package domain

import "errors"

// Таксономия ошибок ядра (см. также комментарии к методам).
var (
	// ErrInvalidNegotiationState — операция над завершенной/agreed сессией.
	// Ошибка программиста: fail fast, без ретраев.
	ErrInvalidNegotiationState = errors.New("negotiation session is not awaiting a response")

	// ErrNoCapabilityAvailable — резолвер не нашел живого сервиса.
	// Локально деградируем (пропускаем голос, пишем в лог), кроме close_resource.
	ErrNoCapabilityAvailable = errors.New("no capability service available")

	// ErrEnforcementFailed — все попытки терминального действия исчерпаны.
	// Договор все равно помечен violated/inactive: enforcement is best-effort.
	ErrEnforcementFailed = errors.New("enforcement action failed after retries")

	// ErrMalformedActivitySignal — сигнал активности без обязательных полей.
	ErrMalformedActivitySignal = errors.New("malformed activity signal")

	ErrAgreementInactive = errors.New("agreement is inactive")
	ErrInvalidExtension  = errors.New("extension must be positive")
	ErrSessionNotFound   = errors.New("negotiation session not found")
)

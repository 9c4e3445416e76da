package audit

/*
Файл journal.go реализует журнал жизненного цикла договоров — асинхронный
движок сбора и персистентности истории (Audit Trail).

Ключевые особенности архитектуры:
- Non-blocking Logging: неблокирующий канал между тик-циклом и воркером.
  Задержки записи в БД не влияют на период поллинга.
- Batching & Efficiency: накопление записей в памяти и пакетная вставка
  (Bulk Insert) в PostgreSQL по таймеру или при достижении лимита.
- Drain Pattern & Graceful Shutdown: полная вычитка буфера при остановке.
  Закрытие входного канала + sync.WaitGroup гарантируют Final Flush.
- Reliability: воркер изолирован от сбоев БД, завершающие операции идут
  с Background-контекстом.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/infra"
)

// StorageInterface определяет, куда физически сохраняется история
type StorageInterface interface {
	// WriteBatch сохраняет пачку записей за один раз
	WriteBatch(ctx context.Context, records []JournalRecord) error
}

type Recorder interface {
	Record(rec JournalRecord)
}

type Journal struct {
	ch     chan JournalRecord // Буфер для асинхронности
	repo   StorageInterface
	cfg    infra.JournalConfig
	logger *zap.Logger
	wg     sync.WaitGroup
	// Защита от записи после остановки
	isClosed int32 // Атомарный флаг (0 - открыт, 1 - закрыт)
}

func NewJournal(repo StorageInterface, cfg infra.JournalConfig, logger *zap.Logger) *Journal {
	return &Journal{
		ch:     make(chan JournalRecord, cfg.BufferSize),
		repo:   repo,
		cfg:    cfg,
		logger: logger.With(zap.String("mod", "journal")),
	}
}

// Len — текущее заполнение буфера, для метрики journal_buffer_fill.
func (j *Journal) Len() int {
	return len(j.ch)
}

func (j *Journal) Start() {
	j.wg.Add(1)
	go j.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет.
func (j *Journal) Stop() {
	// 1. Сначала ставим флаг
	atomic.StoreInt32(&j.isClosed, 1)

	// 2. Даем крошечную паузу, чтобы текущие Record успели проскочить
	time.Sleep(10 * time.Millisecond)

	// 3. Drain Pattern: завершение воркера — исключительно через закрытие канала.
	j.logger.Info("stopping journal: closing channel and flushing buffer...")
	close(j.ch)
	j.wg.Wait()
	j.logger.Info("journal stopped gracefully")
}

func (j *Journal) Record(rec JournalRecord) {
	// Таймстемп всегда проставлен
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	// Атомарно проверяем, не закрыт ли канал
	if atomic.LoadInt32(&j.isClosed) == 1 {
		j.logger.Warn("journal record dropped: journal is stopping",
			zap.String("agreement_id", rec.AgreementID))
		return
	}

	// Load Shedding: переполнение буфера не блокирует тик-цикл
	select {
	case j.ch <- rec:
	default:
		j.logger.Error("journal_buffer_overflow",
			zap.String("agreement_id", rec.AgreementID),
			zap.String("kind", string(rec.Kind)))
	}
}

func (j *Journal) worker() {
	defer j.wg.Done()

	batch := make([]JournalRecord, 0, j.cfg.BatchSize)
	ticker := time.NewTicker(j.cfg.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) > 0 {
			// Background: основной контекст к этому моменту может быть закрыт
			if err := j.repo.WriteBatch(context.Background(), batch); err != nil {
				j.logger.Error("journal flush failed", zap.Error(err))
			}
			batch = batch[:0]
		}
	}

	for {
		select {
		case rec, ok := <-j.ch:
			if !ok {
				// Канал закрыт в Stop(): вычитали остатки, финальный flush, выходим
				flush()
				j.logger.Info("journal worker finished")
				return
			}
			batch = append(batch, rec)
			if len(batch) >= j.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

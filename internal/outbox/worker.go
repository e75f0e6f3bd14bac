package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/contabhub/onety/internal/config"
	"github.com/contabhub/onety/internal/notify"
)

// quickRetries é o número de reenvios imediatos antes de devolver a entrega à fila.
const quickRetries = 3

// Store é o subconjunto do repositório usado pelo worker.
type Store interface {
	Claim(ctx context.Context, limit int) ([]Delivery, error)
	MarkSent(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, reason string, next *time.Time) error
}

// Result resume uma rodada do worker.
type Result struct {
	Claimed int `json:"claimed"`
	Sent    int `json:"sent"`
	Retried int `json:"retried"`
	Failed  int `json:"failed"`
}

// Worker drena a fila de entregas periodicamente.
type Worker struct {
	store   Store
	senders map[string]notify.Sender
	cfg     config.OutboxConfig
	logger  zerolog.Logger

	now        func() time.Time
	newBackOff func() backoff.BackOff

	once   sync.Once
	cancel context.CancelFunc
	done   chan struct{}
}

func NewWorker(store Store, senders map[string]notify.Sender, cfg config.OutboxConfig, logger zerolog.Logger) *Worker {
	if cfg.Batch <= 0 {
		cfg.Batch = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &Worker{
		store:   store,
		senders: senders,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return b
		},
		done: make(chan struct{}),
	}
}

// Start inicia o loop em background. Safe para chamar múltiplas vezes.
func (w *Worker) Start(parent context.Context) {
	w.once.Do(func() {
		ctx, cancel := context.WithCancel(parent)
		w.cancel = cancel
		go func() {
			defer close(w.done)
			w.Run(ctx)
		}()
	})
}

// Stop encerra o loop e aguarda a rodada corrente terminar.
func (w *Worker) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
}

// Run bloqueia até ctx ser cancelado.
func (w *Worker) Run(ctx context.Context) {
	interval := w.cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.logger.Info().Dur("interval", interval).Msg("outbox: loop iniciado")

	w.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("outbox: loop encerrado")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	res, err := w.RunOnce(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("outbox: execução falhou")
		}
		return
	}
	if res.Claimed > 0 {
		w.logger.Info().
			Int("claimed", res.Claimed).
			Int("sent", res.Sent).
			Int("retried", res.Retried).
			Int("failed", res.Failed).
			Msg("outbox: rodada concluída")
	}
}

// RunOnce processa um lote de entregas vencidas.
func (w *Worker) RunOnce(ctx context.Context) (Result, error) {
	var res Result

	batch, err := w.store.Claim(ctx, w.cfg.Batch)
	if err != nil {
		return res, fmt.Errorf("reservar entregas: %w", err)
	}
	res.Claimed = len(batch)

	for _, d := range batch {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		sendErr := w.deliver(ctx, d)
		if sendErr == nil {
			if err := w.store.MarkSent(ctx, d.ID); err != nil {
				w.logger.Error().Err(err).Int64("delivery_id", d.ID).Msg("outbox: marcar enviado falhou")
			}
			res.Sent++
			continue
		}

		attempts := d.Attempts + 1
		var next *time.Time
		if notify.Retryable(sendErr) && attempts < w.cfg.MaxAttempts {
			at := NextAttempt(w.now(), attempts)
			next = &at
			res.Retried++
		} else {
			res.Failed++
		}

		w.logger.Warn().
			Err(sendErr).
			Int64("delivery_id", d.ID).
			Str("canal", d.Channel).
			Int("tentativas", attempts).
			Bool("final", next == nil).
			Msg("outbox: entrega falhou")

		if err := w.store.MarkFailed(ctx, d.ID, sendErr.Error(), next); err != nil {
			w.logger.Error().Err(err).Int64("delivery_id", d.ID).Msg("outbox: marcar falha falhou")
		}
	}

	return res, nil
}

func (w *Worker) deliver(ctx context.Context, d Delivery) error {
	sender, ok := w.senders[d.Channel]
	if !ok || sender == nil {
		return notify.ErrChannelDisabled
	}

	var msg notify.Message
	if len(d.Payload) > 0 {
		if err := json.Unmarshal(d.Payload, &msg); err != nil {
			return &notify.InvalidMessageError{Reason: "payload: " + err.Error()}
		}
	}
	msg.To = d.Destination
	msg.IdempotencyKey = IdempotencyKey(d.ID)

	op := func() error {
		err := sender.Send(ctx, msg)
		if err != nil && !notify.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(w.newBackOff(), quickRetries), ctx)

	err := backoff.Retry(op, policy)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}

package survey

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/contabhub/onety/internal/notify"
	"github.com/contabhub/onety/internal/outbox"
	"github.com/contabhub/onety/internal/util"
)

const dispatchPageSize = 100

// DeliveryRecorder grava o resultado de uma entrega síncrona.
type DeliveryRecorder interface {
	RecordDelivery(ctx context.Context, d outbox.Delivery) error
}

// DispatcherConfig controla o ritmo dos envios por WhatsApp.
type DispatcherConfig struct {
	DelayMin time.Duration
	DelayMax time.Duration
}

// Dispatcher executa o disparo inteligente de pesquisas para franqueados:
// pagina os franqueados ativos, pula quem recebeu pesquisa nos últimos 90 dias
// e espaça cada WhatsApp com um atraso aleatório até atingir a quota.
type Dispatcher struct {
	store    Store
	recorder DeliveryRecorder
	jobs     JobStore
	whatsapp notify.Sender
	messages Messages
	cfg      DispatcherConfig
	logger   zerolog.Logger

	base     context.Context
	wg       sync.WaitGroup
	mu       sync.Mutex
	rnd      *rand.Rand
	sleep    func(ctx context.Context, d time.Duration) error
	newToken func() (string, error)
	now      func() time.Time
}

// NewDispatcher recebe o contexto de vida do servidor; jobs em background param quando ele é cancelado.
func NewDispatcher(base context.Context, store Store, recorder DeliveryRecorder, jobs JobStore, whatsapp notify.Sender, messages Messages, cfg DispatcherConfig, logger zerolog.Logger) *Dispatcher {
	if cfg.DelayMax < cfg.DelayMin {
		cfg.DelayMax = cfg.DelayMin
	}
	return &Dispatcher{
		store:    store,
		recorder: recorder,
		jobs:     jobs,
		whatsapp: whatsapp,
		messages: messages,
		cfg:      cfg,
		logger:   logger,
		base:     base,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:    sleepCtx,
		newToken: func() (string, error) { return util.RandomHex(tokenBytes) },
		now:      time.Now,
	}
}

// Start registra o job e o executa em background.
func (d *Dispatcher) Start(ctx context.Context, companyID int64, quota int) (Job, error) {
	job, err := d.newJob(ctx, companyID, quota)
	if err != nil {
		return Job{}, err
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if _, err := d.Run(d.base, job); err != nil {
			d.logger.Warn().Err(err).Str("job_id", job.ID).Msg("disparo: encerrado com erro")
		}
	}()
	return job, nil
}

// RunForeground cria e executa um job no goroutine atual (uso no CLI).
func (d *Dispatcher) RunForeground(ctx context.Context, companyID int64, quota int) (Job, error) {
	job, err := d.newJob(ctx, companyID, quota)
	if err != nil {
		return Job{}, err
	}
	return d.Run(ctx, job)
}

// Status devolve o progresso de um job.
func (d *Dispatcher) Status(ctx context.Context, id string) (Job, error) {
	return d.jobs.Get(ctx, id)
}

// Wait aguarda os jobs em background terminarem.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) newJob(ctx context.Context, companyID int64, quota int) (Job, error) {
	if companyID <= 0 {
		return Job{}, util.Invalid("companyId é obrigatório")
	}
	if quota <= 0 {
		return Job{}, util.Invalid("quota deve ser maior que zero")
	}

	job := Job{
		ID:        uuid.NewString(),
		CompanyID: companyID,
		Quota:     quota,
		Status:    JobRunning,
		StartedAt: d.now(),
	}
	if err := d.jobs.Save(ctx, job); err != nil {
		return Job{}, fmt.Errorf("registrar disparo: %w", err)
	}
	return job, nil
}

// Run processa o job até a quota, o fim da lista ou o cancelamento de ctx.
func (d *Dispatcher) Run(ctx context.Context, job Job) (Job, error) {
	logger := d.logger.With().Str("job_id", job.ID).Int64("empresa_id", job.CompanyID).Logger()
	logger.Info().Int("quota", job.Quota).Msg("disparo: iniciado")

	err := d.process(ctx, &job, logger)

	finished := d.now()
	job.FinishedAt = &finished
	switch {
	case err == nil:
		job.Status = JobCompleted
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		job.Status = JobCancelled
	default:
		job.Status = JobFailed
		job.Error = err.Error()
	}
	d.save(context.WithoutCancel(ctx), job, logger)

	logger.Info().
		Str("status", job.Status).
		Int("sent", job.Sent).
		Int("skipped", job.Skipped).
		Int("failed", job.Failed).
		Msg("disparo: finalizado")
	return job, err
}

func (d *Dispatcher) process(ctx context.Context, job *Job, logger zerolog.Logger) error {
	build := d.messages.Deliveries(false)
	var afterID int64

	for job.Sent < job.Quota {
		page, err := d.store.SubjectsPage(ctx, KindFranchisee, job.CompanyID, afterID, dispatchPageSize)
		if err != nil {
			return fmt.Errorf("listar franqueados: %w", err)
		}
		if len(page) == 0 {
			return nil
		}

		for _, subj := range page {
			if job.Sent >= job.Quota {
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			afterID = subj.ID

			if err := d.dispatchOne(ctx, job, subj, build, logger); err != nil {
				return err
			}
			d.save(ctx, *job, logger)
		}
	}
	return nil
}

// dispatchOne só devolve erro quando o job deve parar (cancelamento ou falha de token).
func (d *Dispatcher) dispatchOne(ctx context.Context, job *Job, subj Subject, build DeliveryBuilder, logger zerolog.Logger) error {
	token, err := d.newToken()
	if err != nil {
		return fmt.Errorf("gerar token: %w", err)
	}

	sv, created, err := d.store.CreateIfDue(ctx, KindFranchisee, subj, token, dedupWindow, build)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		job.Failed++
		logger.Warn().Err(err).Int64("franqueado_id", subj.ID).Msg("disparo: criação falhou")
		return nil
	}
	if !created {
		job.Skipped++
		return nil
	}
	job.Sent++

	if subj.Phone == "" {
		return nil
	}
	if err := d.sleep(ctx, d.jitter()); err != nil {
		return err
	}

	msg := d.messages.whatsapp(sv, subj)
	sendErr := notify.ErrChannelDisabled
	if d.whatsapp != nil {
		sendErr = d.whatsapp.Send(ctx, msg)
	}
	if sendErr != nil {
		job.Failed++
		logger.Warn().Err(sendErr).Int64("franqueado_id", subj.ID).Msg("disparo: whatsapp falhou")
	}

	record := delivery(sv, outbox.ChannelWhatsApp, msg)
	record.Attempts = 1
	record.Status = outbox.StatusSent
	if sendErr != nil {
		reason := sendErr.Error()
		record.Status = outbox.StatusFailed
		record.LastError = &reason
	}
	if err := d.recorder.RecordDelivery(context.WithoutCancel(ctx), record); err != nil {
		logger.Error().Err(err).Int64("pesquisa_id", sv.ID).Msg("disparo: registrar entrega falhou")
	}
	return nil
}

func (d *Dispatcher) jitter() time.Duration {
	spread := d.cfg.DelayMax - d.cfg.DelayMin
	if spread <= 0 {
		return d.cfg.DelayMin
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg.DelayMin + time.Duration(d.rnd.Int63n(int64(spread)+1))
}

func (d *Dispatcher) save(ctx context.Context, job Job, logger zerolog.Logger) {
	if err := d.jobs.Save(ctx, job); err != nil {
		logger.Warn().Err(err).Msg("disparo: salvar progresso falhou")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	internalhttp "github.com/contabhub/onety/internal/http"
	"github.com/contabhub/onety/internal/outbox"
	"github.com/contabhub/onety/internal/survey"
)

var (
	generateKind    string
	dispatchCompany int64
	dispatchQuota   int
)

func init() {
	generateCmd.Flags().StringVar(&generateKind, "tipo", string(survey.KindCustomer), "cliente ou franqueado")
	franchiseesCmd.Flags().Int64Var(&dispatchCompany, "company", 0, "id da empresa")
	franchiseesCmd.Flags().IntVar(&dispatchQuota, "quota", 0, "máximo de pesquisas criadas")

	surveysCmd.AddCommand(generateCmd, franchiseesCmd)
	rootCmd.AddCommand(surveysCmd)
}

var surveysCmd = &cobra.Command{
	Use:   "surveys",
	Short: "Rotinas de pesquisas de satisfação",
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Gera pesquisas para todos os destinatários elegíveis",
	Long: `Gera uma pesquisa por cliente (ou franqueado) ativo de empresas com a pesquisa ligada,
pulando quem recebeu pesquisa nos últimos 90 dias. Pensado para rodar via cron.

Exemplos:
  onetyctl surveys generate
  onetyctl surveys generate --tipo franqueado
`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		kind, err := parseKind(generateKind)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		d, err := openDeps(ctx)
		if err != nil {
			return err
		}
		defer d.Close()

		messages := survey.Messages{PublicURL: d.cfg.PublicSurveyURL, WebhookURL: d.cfg.SurveyWebhookURL}
		service := survey.NewService(survey.NewRepository(d.pool), messages, log.With().Str("component", "survey").Logger())

		res, err := service.GenerateForAllEligible(ctx, kind)
		if err != nil {
			return err
		}
		log.Info().Str("tipo", string(kind)).Int("created", res.Created).Int("skipped", res.Skipped).
			Int("failed", res.Failed).Msg("pesquisas geradas")
		return nil
	},
}

var franchiseesCmd = &cobra.Command{
	Use:   "franchisees",
	Short: "Executa o disparo inteligente para franqueados de uma empresa",
	Long: `Percorre os franqueados ativos da empresa, cria pesquisas para quem está fora da janela
de 90 dias e envia por WhatsApp com intervalo aleatório entre mensagens, até atingir a quota.
Ctrl+C interrompe o disparo; o progresso fica salvo no Redis.

Exemplo:
  onetyctl surveys franchisees --company 12 --quota 200
`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := validateDispatch(dispatchCompany, dispatchQuota); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		d, err := openDeps(ctx)
		if err != nil {
			return err
		}
		defer d.Close()

		senders := internalhttp.Senders(d.cfg)
		whatsapp, ok := senders[outbox.ChannelWhatsApp]
		if !ok {
			return errors.New("WHATSAPP_API_URL não configurado")
		}

		repo := survey.NewRepository(d.pool)
		messages := survey.Messages{PublicURL: d.cfg.PublicSurveyURL, WebhookURL: d.cfg.SurveyWebhookURL}
		dispatcher := survey.NewDispatcher(ctx, repo, repo, survey.NewRedisJobStore(d.redis), whatsapp, messages,
			survey.DispatcherConfig{DelayMin: d.cfg.WhatsAppDelayMin, DelayMax: d.cfg.WhatsAppDelayMax},
			log.With().Str("component", "dispatcher").Logger())

		job, err := dispatcher.RunForeground(ctx, dispatchCompany, dispatchQuota)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		log.Info().Str("job_id", job.ID).Str("status", job.Status).Int("sent", job.Sent).
			Int("skipped", job.Skipped).Int("failed", job.Failed).Msg("disparo finalizado")
		return nil
	},
}

func parseKind(raw string) (survey.Kind, error) {
	switch survey.Kind(raw) {
	case survey.KindCustomer, survey.KindFranchisee:
		return survey.Kind(raw), nil
	}
	return "", errors.New("--tipo deve ser cliente ou franqueado")
}

func validateDispatch(company int64, quota int) error {
	if company <= 0 {
		return errors.New("--company obrigatório")
	}
	if quota <= 0 {
		return errors.New("--quota deve ser positiva")
	}
	return nil
}

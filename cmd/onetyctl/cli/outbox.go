package cli

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	internalhttp "github.com/contabhub/onety/internal/http"
	"github.com/contabhub/onety/internal/outbox"
)

// Limite de rodadas para não prender o terminal quando a fila cresce durante o dreno.
const maxDrainRounds = 100

func init() {
	outboxCmd.AddCommand(drainCmd)
	rootCmd.AddCommand(outboxCmd)
}

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Fila de entregas de pesquisas",
}

var drainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Processa as entregas vencidas até esvaziar a fila",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		d, err := openDeps(ctx)
		if err != nil {
			return err
		}
		defer d.Close()

		worker := outbox.NewWorker(outbox.NewRepository(d.pool), internalhttp.Senders(d.cfg), d.cfg.Outbox,
			log.With().Str("component", "outbox").Logger())

		var total outbox.Result
		for i := 0; i < maxDrainRounds; i++ {
			res, err := worker.RunOnce(ctx)
			if err != nil {
				return err
			}
			total.Claimed += res.Claimed
			total.Sent += res.Sent
			total.Retried += res.Retried
			total.Failed += res.Failed
			if res.Claimed == 0 {
				break
			}
		}

		log.Info().Int("claimed", total.Claimed).Int("sent", total.Sent).Int("retried", total.Retried).
			Int("failed", total.Failed).Msg("fila drenada")
		return nil
	},
}

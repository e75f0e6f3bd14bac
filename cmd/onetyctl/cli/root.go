package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/contabhub/onety/internal/config"
	"github.com/contabhub/onety/internal/db"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:           "onetyctl",
	Short:         "Operações do back-office Onety",
	Long:          `onetyctl executa rotinas operacionais (pesquisas, fila de entregas, chaves de API) contra o mesmo banco da API.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		level := zerolog.InfoLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		zerolog.SetGlobalLevel(level)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	},
}

// Execute roda o comando raiz.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "erro: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "logs em nível debug")
}

// deps são as conexões compartilhadas pelos subcomandos.
type deps struct {
	cfg   *config.Config
	pool  *pgxpool.Pool
	redis *redis.Client
}

func openDeps(ctx context.Context) (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("redis parse: %w", err)
	}

	return &deps{cfg: cfg, pool: pool, redis: redis.NewClient(redisOpts)}, nil
}

func (d *deps) Close() {
	_ = d.redis.Close()
	d.pool.Close()
}

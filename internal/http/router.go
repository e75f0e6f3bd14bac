package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/contabhub/onety/internal/access"
	"github.com/contabhub/onety/internal/auth"
	"github.com/contabhub/onety/internal/banking"
	"github.com/contabhub/onety/internal/config"
	"github.com/contabhub/onety/internal/department"
	"github.com/contabhub/onety/internal/finimport"
	"github.com/contabhub/onety/internal/goal"
	httpmiddleware "github.com/contabhub/onety/internal/http/middleware"
	"github.com/contabhub/onety/internal/http/render"
	"github.com/contabhub/onety/internal/notify"
	"github.com/contabhub/onety/internal/outbox"
	"github.com/contabhub/onety/internal/survey"
)

// Tokens são emitidos pelo serviço de login; aqui só validamos.
const accessTokenTTL = 12 * time.Hour

// Handlers reúne os handlers de domínio montados no roteador.
type Handlers struct {
	Department *department.Handler
	Goal       *goal.Handler
	Survey     *survey.Handler
	Outbox     *outbox.Handler
	Banking    *banking.Handler
	Import     *finimport.Handler
}

// Readiness verifica as dependências externas.
type Readiness struct {
	DB    func(ctx context.Context) error
	Redis func(ctx context.Context) error
}

// Server agrupa o handler HTTP e os componentes de background que o main controla.
type Server struct {
	Handler    http.Handler
	Outbox     *outbox.Worker
	Dispatcher *survey.Dispatcher
}

// New monta repositórios, serviços e handlers sobre o pool e o Redis.
// ctx delimita a vida dos jobs de disparo iniciados pela API.
func New(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, redisClient *redis.Client) (*Server, error) {
	policy := access.NewPolicy(access.NewRepository(pool))
	keys := auth.NewKeyRepository(pool)
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, accessTokenTTL)

	senders := Senders(cfg)
	messages := survey.Messages{PublicURL: cfg.PublicSurveyURL, WebhookURL: cfg.SurveyWebhookURL}

	goalService := goal.NewService(goal.NewRepository(pool), redisClient)
	departmentService := department.NewService(department.NewRepository(pool), cfg.AtomicDepartmentDelete(), goalService)

	surveyRepo := survey.NewRepository(pool)
	surveyService := survey.NewService(surveyRepo, messages, log.With().Str("component", "survey").Logger())
	dispatcher := survey.NewDispatcher(ctx, surveyRepo, surveyRepo, survey.NewRedisJobStore(redisClient),
		senders[outbox.ChannelWhatsApp], messages,
		survey.DispatcherConfig{DelayMin: cfg.WhatsAppDelayMin, DelayMax: cfg.WhatsAppDelayMax},
		log.With().Str("component", "dispatcher").Logger())

	outboxRepo := outbox.NewRepository(pool)
	worker := outbox.NewWorker(outboxRepo, senders, cfg.Outbox, log.With().Str("component", "outbox").Logger())

	handlers := Handlers{
		Department: department.NewHandler(departmentService, policy),
		Goal:       goal.NewHandler(goalService, policy),
		Survey:     survey.NewHandler(surveyService, dispatcher, policy),
		Outbox:     outbox.NewHandler(outboxRepo),
		Banking:    banking.NewHandler(banking.NewService(banking.NewRepository(pool)), policy),
		Import:     finimport.NewHandler(finimport.NewService(finimport.NewRepository(pool), log.With().Str("component", "finimport").Logger()), policy),
	}

	ready := Readiness{
		DB:    pool.Ping,
		Redis: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	}

	return &Server{
		Handler:    NewRouter(cfg, jwtManager, keys, ready, handlers),
		Outbox:     worker,
		Dispatcher: dispatcher,
	}, nil
}

// Senders cria os canais de entrega configurados; canais sem configuração ficam de fora.
func Senders(cfg *config.Config) map[string]notify.Sender {
	senders := map[string]notify.Sender{}
	if cfg.SMTP.Enabled() {
		senders[outbox.ChannelEmail] = notify.NewEmailSender(cfg.SMTP)
	}
	if cfg.WhatsApp.APIURL != "" {
		senders[outbox.ChannelWhatsApp] = notify.NewWhatsAppSender(cfg.WhatsApp)
	}
	if cfg.SurveyWebhookURL != "" {
		senders[outbox.ChannelWebhook] = notify.NewWebhookSender(cfg.SurveyWebhookURL)
	}
	return senders
}

// NewRouter configura middlewares e rotas.
func NewRouter(cfg *config.Config, jwtManager *auth.JWTManager, keys httpmiddleware.APIKeyStore, ready Readiness, h Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(httpmiddleware.Logging)
	r.Use(httpmiddleware.Recover)
	r.Use(httpmiddleware.CORS(cfg.AllowOrigins))

	publicLimiter := httpmiddleware.NewRateLimiter(cfg.RateLimitPublic.RequestsPerSecond, cfg.RateLimitPublic.Burst)
	authLimiter := httpmiddleware.NewRateLimiter(cfg.RateLimitAuth.RequestsPerSecond, cfg.RateLimitAuth.Burst)
	admin := httpmiddleware.RequireRoles(access.RoleSuperAdmin, access.RoleAdmin)

	r.Group(func(public chi.Router) {
		public.Use(httpmiddleware.IPRateLimit(publicLimiter))
		public.Get("/health", health)
		public.Get("/ready", ready.handle)
		h.Survey.RegisterPublicRoutes(public)
	})

	r.Group(func(private chi.Router) {
		private.Use(httpmiddleware.Auth(jwtManager, keys))
		private.Use(httpmiddleware.UserRateLimit(authLimiter))

		h.Department.RegisterRoutes(private)
		h.Goal.RegisterRoutes(private)
		h.Survey.RegisterRoutes(private, admin)
		h.Banking.RegisterRoutes(private)
		h.Import.RegisterRoutes(private)

		private.Group(func(ops chi.Router) {
			ops.Use(admin)
			h.Outbox.RegisterRoutes(ops)
		})
	})

	return r
}

// health responde status simples.
func health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handle valida conexões com Postgres e Redis.
func (rd Readiness) handle(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	dbErr := check(ctx, rd.DB)
	redisErr := check(ctx, rd.Redis)

	if dbErr != nil || redisErr != nil {
		render.JSON(w, http.StatusServiceUnavailable, map[string]any{
			"error": "dependências indisponíveis",
			"db":    errorString(dbErr),
			"redis": errorString(redisErr),
		})
		return
	}

	render.JSON(w, http.StatusOK, map[string]bool{"ready": true})
}

func check(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

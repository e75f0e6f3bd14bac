package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DeleteModeBestEffort = "best_effort"
	DeleteModeAtomic     = "atomic"
)

// Config centraliza a configuração carregada do ambiente.
type Config struct {
	Port                 int
	DBDSN                string
	RedisURL             string
	JWTSecret            string
	AllowOrigins         []string
	LogLevel             string
	LogFormat            string
	RateLimitPublic      RateLimitConfig
	RateLimitAuth        RateLimitConfig
	DepartmentDeleteMode string
	PublicSurveyURL      string
	SMTP                 SMTPConfig
	WhatsApp             WhatsAppConfig
	SurveyWebhookURL     string
	Outbox               OutboxConfig
	WhatsAppDelayMin     time.Duration
	WhatsAppDelayMax     time.Duration
}

// RateLimitConfig representa limites simples para throttling.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// SMTPConfig agrupa credenciais do servidor de e-mail transacional.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// Enabled indica se há servidor configurado.
func (c SMTPConfig) Enabled() bool {
	return c.Host != "" && c.From != ""
}

// WhatsAppConfig aponta para o gateway externo de WhatsApp.
type WhatsAppConfig struct {
	APIURL   string
	APIToken string
}

// OutboxConfig controla o worker de entregas.
type OutboxConfig struct {
	Interval    time.Duration
	Batch       int
	MaxAttempts int
}

// Load carrega variáveis de ambiente e aplica defaults seguros.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	port, err := parseIntEnv("PORT", 8080)
	if err != nil || port <= 0 {
		return nil, errors.New("PORT inválida")
	}
	cfg.Port = port

	cfg.DBDSN = getEnv("DB_DSN", "")
	if cfg.DBDSN == "" {
		return nil, errors.New("DB_DSN obrigatório")
	}

	cfg.RedisURL = getEnv("REDIS_URL", "")
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL obrigatório")
	}

	cfg.JWTSecret = strings.TrimSpace(getEnv("JWT_SECRET", ""))
	if len(cfg.JWTSecret) < 32 {
		return nil, errors.New("JWT_SECRET deve ter pelo menos 32 caracteres")
	}

	for _, origin := range strings.Split(getEnv("ALLOW_ORIGINS", ""), ",") {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			cfg.AllowOrigins = append(cfg.AllowOrigins, origin)
		}
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(getEnv("LOG_LEVEL", "info")))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(getEnv("LOG_FORMAT", "text")))

	cfg.RateLimitPublic = RateLimitConfig{RequestsPerSecond: 10, Burst: 20}
	cfg.RateLimitAuth = RateLimitConfig{RequestsPerSecond: 10, Burst: 40}

	cfg.DepartmentDeleteMode = strings.ToLower(strings.TrimSpace(getEnv("DEPARTMENT_DELETE_MODE", DeleteModeBestEffort)))
	switch cfg.DepartmentDeleteMode {
	case DeleteModeBestEffort, DeleteModeAtomic:
	default:
		return nil, errors.New("DEPARTMENT_DELETE_MODE deve ser best_effort ou atomic")
	}

	cfg.PublicSurveyURL = strings.TrimRight(strings.TrimSpace(getEnv("PUBLIC_SURVEY_URL", "http://localhost:3000/pesquisa")), "/")

	smtpPort, err := parseIntEnv("SMTP_PORT", 587)
	if err != nil {
		return nil, errors.New("SMTP_PORT inválida")
	}
	cfg.SMTP = SMTPConfig{
		Host:     strings.TrimSpace(getEnv("SMTP_HOST", "")),
		Port:     smtpPort,
		User:     getEnv("SMTP_USER", ""),
		Password: getEnv("SMTP_PASSWORD", ""),
		From:     strings.TrimSpace(getEnv("SMTP_FROM", "")),
	}

	cfg.WhatsApp = WhatsAppConfig{
		APIURL:   strings.TrimRight(strings.TrimSpace(getEnv("WHATSAPP_API_URL", "")), "/"),
		APIToken: strings.TrimSpace(getEnv("WHATSAPP_API_TOKEN", "")),
	}
	cfg.SurveyWebhookURL = strings.TrimSpace(getEnv("SURVEY_WEBHOOK_URL", ""))

	interval, err := parseDurationEnv("OUTBOX_INTERVAL", 5*time.Second)
	if err != nil {
		return nil, err
	}
	batch, err := parseIntEnv("OUTBOX_BATCH", 50)
	if err != nil || batch <= 0 {
		return nil, errors.New("OUTBOX_BATCH inválido")
	}
	maxAttempts, err := parseIntEnv("OUTBOX_MAX_ATTEMPTS", 5)
	if err != nil || maxAttempts <= 0 {
		return nil, errors.New("OUTBOX_MAX_ATTEMPTS inválido")
	}
	cfg.Outbox = OutboxConfig{Interval: interval, Batch: batch, MaxAttempts: maxAttempts}

	if cfg.WhatsAppDelayMin, err = parseDurationEnv("WHATSAPP_DELAY_MIN", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.WhatsAppDelayMax, err = parseDurationEnv("WHATSAPP_DELAY_MAX", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.WhatsAppDelayMax < cfg.WhatsAppDelayMin {
		return nil, errors.New("WHATSAPP_DELAY_MAX menor que WHATSAPP_DELAY_MIN")
	}

	return cfg, nil
}

// AtomicDepartmentDelete indica se a exclusão em cascata roda numa única transação.
func (c *Config) AtomicDepartmentDelete() bool {
	return c.DepartmentDeleteMode == DeleteModeAtomic
}

func getEnv(key, def string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return def
}

func parseIntEnv(key string, def int) (int, error) {
	val := strings.TrimSpace(getEnv(key, ""))
	if val == "" {
		return def, nil
	}
	return strconv.Atoi(val)
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	val := getEnv(key, "")
	if val == "" {
		return def, nil
	}
	dur, err := time.ParseDuration(val)
	if err != nil {
		return 0, errors.New(key + " inválido")
	}
	return dur, nil
}

package survey

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	JobRunning   = "executando"
	JobCompleted = "concluido"
	JobCancelled = "cancelado"
	JobFailed    = "falhou"
)

const jobTTL = 24 * time.Hour

// Job acompanha um disparo inteligente de franqueados.
type Job struct {
	ID         string     `json:"id"`
	CompanyID  int64      `json:"empresa_id"`
	Quota      int        `json:"quota"`
	Status     string     `json:"status"`
	Sent       int        `json:"sent"`
	Skipped    int        `json:"skipped"`
	Failed     int        `json:"failed"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// JobStore guarda o progresso dos disparos.
type JobStore interface {
	Save(ctx context.Context, job Job) error
	Get(ctx context.Context, id string) (Job, error)
}

// RedisJobStore mantém cada disparo em um hash survey:dispatch:<id> com TTL de 24h.
type RedisJobStore struct {
	client *redis.Client
}

func NewRedisJobStore(client *redis.Client) *RedisJobStore {
	return &RedisJobStore{client: client}
}

func jobKey(id string) string {
	return "survey:dispatch:" + id
}

func (s *RedisJobStore) Save(ctx context.Context, job Job) error {
	fields := map[string]any{
		"empresa_id": job.CompanyID,
		"quota":      job.Quota,
		"status":     job.Status,
		"sent":       job.Sent,
		"skipped":    job.Skipped,
		"failed":     job.Failed,
		"error":      job.Error,
		"started_at": job.StartedAt.UTC().Format(time.RFC3339),
	}
	if job.FinishedAt != nil {
		fields["finished_at"] = job.FinishedAt.UTC().Format(time.RFC3339)
	}

	key := jobKey(job.ID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, jobTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisJobStore) Get(ctx context.Context, id string) (Job, error) {
	vals, err := s.client.HGetAll(ctx, jobKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Job{}, ErrJobNotFound
		}
		return Job{}, err
	}
	if len(vals) == 0 {
		return Job{}, ErrJobNotFound
	}
	return jobFromHash(id, vals), nil
}

func jobFromHash(id string, vals map[string]string) Job {
	atoi := func(k string) int {
		n, _ := strconv.Atoi(vals[k])
		return n
	}
	job := Job{
		ID:      id,
		Quota:   atoi("quota"),
		Status:  vals["status"],
		Sent:    atoi("sent"),
		Skipped: atoi("skipped"),
		Failed:  atoi("failed"),
		Error:   vals["error"],
	}
	job.CompanyID, _ = strconv.ParseInt(vals["empresa_id"], 10, 64)
	job.StartedAt, _ = time.Parse(time.RFC3339, vals["started_at"])
	if raw := vals["finished_at"]; raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			job.FinishedAt = &t
		}
	}
	return job
}

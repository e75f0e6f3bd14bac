package survey

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contabhub/onety/internal/notify"
	"github.com/contabhub/onety/internal/outbox"
)

type memoryJobs struct {
	mu   sync.Mutex
	jobs map[string]Job
}

func (m *memoryJobs) Save(ctx context.Context, job Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.jobs == nil {
		m.jobs = map[string]Job{}
	}
	m.jobs[job.ID] = job
	return nil
}

func (m *memoryJobs) Get(ctx context.Context, id string) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return job, nil
}

type fakeWhatsApp struct {
	mu   sync.Mutex
	fail map[string]bool
	sent []notify.Message
}

func (f *fakeWhatsApp) Send(ctx context.Context, msg notify.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	if f.fail[msg.To] {
		return errors.New("número bloqueado")
	}
	return nil
}

func newTestDispatcher(base context.Context, store *stubStore, jobs JobStore, wa notify.Sender) (*Dispatcher, *[]time.Duration) {
	d := NewDispatcher(base, store, store, jobs, wa, testMessages, DispatcherConfig{DelayMin: 10 * time.Second, DelayMax: 15 * time.Second}, zerolog.Nop())
	var mu sync.Mutex
	var waits []time.Duration
	d.sleep = func(ctx context.Context, dur time.Duration) error {
		mu.Lock()
		waits = append(waits, dur)
		mu.Unlock()
		return ctx.Err()
	}
	d.newToken = sequentialTokens()
	return d, &waits
}

func franchisees(n int) []Subject {
	out := make([]Subject, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, Subject{ID: int64(i), CompanyID: 7, Name: "Franquia", Email: "f@x.com", Phone: "1198765432" + string(rune('0'+i%10))})
	}
	return out
}

func TestSmartDispatchStopsAtQuota(t *testing.T) {
	store := newStubStore()
	store.subjects[KindFranchisee] = franchisees(250)
	store.lastSent[subjectKey(KindFranchisee, 2)] = store.now.Add(-24 * time.Hour)
	wa := &fakeWhatsApp{}
	jobs := &memoryJobs{}
	d, waits := newTestDispatcher(context.Background(), store, jobs, wa)

	job, err := d.RunForeground(context.Background(), 7, 120)
	require.NoError(t, err)
	assert.Equal(t, JobCompleted, job.Status)
	assert.Equal(t, 120, job.Sent)
	assert.Equal(t, 1, job.Skipped)
	assert.Len(t, wa.sent, 120)

	for _, w := range *waits {
		assert.GreaterOrEqual(t, w, 10*time.Second)
		assert.LessOrEqual(t, w, 15*time.Second)
	}

	channels := store.channels()
	assert.Equal(t, 120, channels[outbox.ChannelWhatsApp])
	assert.Equal(t, 120, channels[outbox.ChannelEmail])
	assert.Equal(t, 120, channels[outbox.ChannelWebhook])

	saved, err := jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobCompleted, saved.Status)
	require.NotNil(t, saved.FinishedAt)
}

func TestSmartDispatchRecordsWhatsAppFailure(t *testing.T) {
	store := newStubStore()
	store.subjects[KindFranchisee] = []Subject{
		{ID: 1, CompanyID: 7, Phone: "11987654321"},
		{ID: 2, CompanyID: 7, Phone: "11912345678"},
	}
	wa := &fakeWhatsApp{fail: map[string]bool{"11912345678": true}}
	d, _ := newTestDispatcher(context.Background(), store, &memoryJobs{}, wa)

	job, err := d.RunForeground(context.Background(), 7, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, job.Sent)
	assert.Equal(t, 1, job.Failed)

	var statuses []string
	for _, del := range store.deliveries {
		if del.Channel == outbox.ChannelWhatsApp {
			statuses = append(statuses, del.Status)
		}
	}
	assert.Equal(t, []string{outbox.StatusSent, outbox.StatusFailed}, statuses)
}

func TestSmartDispatchCancellation(t *testing.T) {
	store := newStubStore()
	store.subjects[KindFranchisee] = franchisees(5)
	jobs := &memoryJobs{}
	d, _ := newTestDispatcher(context.Background(), store, jobs, &fakeWhatsApp{})

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	d.sleep = func(ctx context.Context, dur time.Duration) error {
		calls++
		if calls == 2 {
			cancel()
		}
		return ctx.Err()
	}

	job, err := d.RunForeground(ctx, 7, 5)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, JobCancelled, job.Status)

	saved, _ := jobs.Get(context.Background(), job.ID)
	assert.Equal(t, JobCancelled, saved.Status)
}

func TestSmartDispatchValidation(t *testing.T) {
	d, _ := newTestDispatcher(context.Background(), newStubStore(), &memoryJobs{}, &fakeWhatsApp{})

	_, err := d.Start(context.Background(), 7, 0)
	assert.Error(t, err)
	_, err = d.Start(context.Background(), 0, 5)
	assert.Error(t, err)
}

func TestSmartDispatchBackground(t *testing.T) {
	store := newStubStore()
	store.subjects[KindFranchisee] = franchisees(3)
	jobs := &memoryJobs{}
	d, _ := newTestDispatcher(context.Background(), store, jobs, &fakeWhatsApp{})

	job, err := d.Start(context.Background(), 7, 2)
	require.NoError(t, err)
	assert.Equal(t, JobRunning, job.Status)

	d.Wait()
	saved, err := d.Status(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobCompleted, saved.Status)
	assert.Equal(t, 2, saved.Sent)
}

func TestJobFromHash(t *testing.T) {
	job := jobFromHash("abc", map[string]string{
		"empresa_id":  "7",
		"quota":       "50",
		"status":      JobRunning,
		"sent":        "3",
		"skipped":     "1",
		"failed":      "0",
		"started_at":  "2026-05-01T09:00:00Z",
		"finished_at": "",
	})
	assert.Equal(t, int64(7), job.CompanyID)
	assert.Equal(t, 50, job.Quota)
	assert.Equal(t, 3, job.Sent)
	assert.Equal(t, time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC), job.StartedAt)
	assert.Nil(t, job.FinishedAt)
	assert.Equal(t, "survey:dispatch:abc", jobKey("abc"))
}

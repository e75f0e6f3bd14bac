package survey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contabhub/onety/internal/outbox"
	"github.com/contabhub/onety/internal/util"
)

type stubStore struct {
	mu         sync.Mutex
	now        time.Time
	subjects   map[Kind][]Subject
	surveys    map[string]*Survey
	lastSent   map[string]time.Time
	deliveries []outbox.Delivery
	failFor    map[int64]bool
	counts     Counts
	nextID     int64
}

func newStubStore() *stubStore {
	return &stubStore{
		now:      time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
		subjects: map[Kind][]Subject{},
		surveys:  map[string]*Survey{},
		lastSent: map[string]time.Time{},
		failFor:  map[int64]bool{},
	}
}

func subjectKey(kind Kind, id int64) string {
	return fmt.Sprintf("%s:%d", kind, id)
}

func (s *stubStore) EligibleSubjects(ctx context.Context, kind Kind) ([]Subject, error) {
	return s.subjects[kind], nil
}

func (s *stubStore) SubjectsPage(ctx context.Context, kind Kind, companyID, afterID int64, limit int) ([]Subject, error) {
	var out []Subject
	for _, subj := range s.subjects[kind] {
		if subj.CompanyID == companyID && subj.ID > afterID {
			out = append(out, subj)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *stubStore) CreateIfDue(ctx context.Context, kind Kind, subj Subject, token string, window time.Duration, build DeliveryBuilder) (Survey, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failFor[subj.ID] {
		return Survey{}, false, errors.New("falha de banco")
	}
	key := subjectKey(kind, subj.ID)
	if last, ok := s.lastSent[key]; ok && last.After(s.now.Add(-window)) {
		return Survey{}, false, nil
	}

	s.nextID++
	sv := Survey{
		ID: s.nextID, Kind: kind, CompanyID: subj.CompanyID, CompanyName: subj.CompanyName,
		SubjectID: subj.ID, SubjectName: subj.Name, Token: token, SentAt: s.now,
		Status: StatusSent, Classification: ClassNone,
	}
	s.surveys[token] = &sv
	s.lastSent[key] = s.now
	if build != nil {
		s.deliveries = append(s.deliveries, build(sv, subj)...)
	}
	return sv, true, nil
}

func (s *stubStore) GetByToken(ctx context.Context, kind Kind, token string) (Survey, error) {
	sv, ok := s.surveys[token]
	if !ok || sv.Kind != kind {
		return Survey{}, ErrNotFound
	}
	return *sv, nil
}

func (s *stubStore) Answer(ctx context.Context, kind Kind, a Answer, classification string) error {
	sv, ok := s.surveys[a.Token]
	if !ok || sv.Kind != kind {
		return ErrNotFound
	}
	if sv.Answered() {
		return ErrAlreadyAnswered
	}
	now := s.now
	score := a.Score
	sv.Status = StatusAnswered
	sv.Classification = classification
	sv.Score = &score
	sv.RespondedAt = &now
	sv.FiscalScore, sv.PersonalScore, sv.AccountScore = a.FiscalScore, a.PersonalScore, a.AccountScore
	return nil
}

func (s *stubStore) List(ctx context.Context, kind Kind, f ListFilter) ([]Survey, int64, error) {
	var out []Survey
	for _, sv := range s.surveys {
		if sv.Kind == kind && sv.CompanyID == f.CompanyID && (f.Status == "" || sv.Status == f.Status) {
			out = append(out, *sv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := int64(len(out))
	start := (f.Page - 1) * f.Limit
	if start > len(out) {
		start = len(out)
	}
	end := start + f.Limit
	if end > len(out) {
		end = len(out)
	}
	return out[start:end], total, nil
}

func (s *stubStore) Counts(ctx context.Context, kind Kind, companyID int64) (Counts, error) {
	return s.counts, nil
}

func (s *stubStore) RecordDelivery(ctx context.Context, d outbox.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries = append(s.deliveries, d)
	return nil
}

func (s *stubStore) channels() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]int{}
	for _, d := range s.deliveries {
		out[d.Channel]++
	}
	return out
}

func sequentialTokens() func() (string, error) {
	var n int
	return func() (string, error) {
		n++
		return fmt.Sprintf("tok-%d", n), nil
	}
}

func newTestService(store *stubStore, msgs Messages) *Service {
	svc := NewService(store, msgs, zerolog.Nop())
	svc.newToken = sequentialTokens()
	return svc
}

var testMessages = Messages{PublicURL: "https://app.onety.com.br/pesquisa", WebhookURL: "https://hooks.onety.com.br/nps"}

func TestClassify(t *testing.T) {
	cases := map[int]string{
		0: ClassRed, 4: ClassRed, 5: ClassYellow, 6: ClassYellow, 7: ClassGreen, 10: ClassGreen,
	}
	for score, want := range cases {
		got, err := Classify(score)
		require.NoError(t, err)
		assert.Equal(t, want, got, score)

		again, _ := Classify(score)
		assert.Equal(t, got, again)
	}

	for _, score := range []int{-1, 11} {
		_, err := Classify(score)
		assert.ErrorIs(t, err, ErrInvalidScore)
	}
}

func TestParseScore(t *testing.T) {
	v, err := ParseScore(json.RawMessage(`8`), "nota", true)
	require.NoError(t, err)
	assert.Equal(t, 8, *v)

	v, err = ParseScore(nil, "nota_fiscal", false)
	require.NoError(t, err)
	assert.Nil(t, v)

	for _, raw := range []string{``, `null`, `"8"`, `7.5`, `11`, `-1`, `true`} {
		_, err := ParseScore(json.RawMessage(raw), "nota", true)
		_, isValidation := util.AsValidation(err)
		assert.True(t, isValidation, raw)
	}
}

func TestGenerateForAllEligible(t *testing.T) {
	store := newStubStore()
	store.subjects[KindCustomer] = []Subject{
		{ID: 1, CompanyID: 1, CompanyName: "Contab", Name: "Ana", Email: "ana@x.com", Phone: "11987654321"},
		{ID: 2, CompanyID: 1, CompanyName: "Contab", Name: "Beto", Email: "beto@x.com"},
		{ID: 3, CompanyID: 1, CompanyName: "Contab", Name: "Caio"},
	}
	store.failFor[3] = true
	svc := newTestService(store, testMessages)

	res, err := svc.GenerateForAllEligible(context.Background(), KindCustomer)
	require.NoError(t, err)
	assert.Equal(t, GenerateResult{Created: 2, Skipped: 0, Failed: 1}, res)
	assert.Equal(t, map[string]int{"email": 2, "whatsapp": 1, "webhook": 2}, store.channels())

	res, err = svc.GenerateForAllEligible(context.Background(), KindCustomer)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Created)
	assert.Equal(t, 2, res.Skipped)

	store.now = store.now.Add(dedupWindow + time.Hour)
	res, err = svc.GenerateForAllEligible(context.Background(), KindCustomer)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
}

func TestGenerateWithoutWebhookSkipsChannel(t *testing.T) {
	store := newStubStore()
	store.subjects[KindCustomer] = []Subject{{ID: 1, CompanyID: 1, Email: "ana@x.com"}}
	svc := newTestService(store, Messages{PublicURL: "https://app.onety.com.br/pesquisa"})

	_, err := svc.GenerateForAllEligible(context.Background(), KindCustomer)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"email": 1}, store.channels())

	var msg map[string]any
	require.NoError(t, json.Unmarshal(store.deliveries[0].Payload, &msg))
	assert.Contains(t, msg["body"], "https://app.onety.com.br/pesquisa/tok-1")
}

func TestRespond(t *testing.T) {
	store := newStubStore()
	store.subjects[KindCustomer] = []Subject{{ID: 1, CompanyID: 1}}
	svc := newTestService(store, testMessages)
	_, err := svc.GenerateForAllEligible(context.Background(), KindCustomer)
	require.NoError(t, err)

	class, err := svc.Respond(context.Background(), KindCustomer, Answer{Token: "tok-1", Score: 8, Comment: " ótimo "})
	require.NoError(t, err)
	assert.Equal(t, ClassGreen, class)

	sv := store.surveys["tok-1"]
	assert.Equal(t, StatusAnswered, sv.Status)
	assert.Equal(t, ClassGreen, sv.Classification)
	require.NotNil(t, sv.RespondedAt)

	_, err = svc.Respond(context.Background(), KindCustomer, Answer{Token: "tok-1", Score: 3})
	assert.ErrorIs(t, err, ErrAlreadyAnswered)
	assert.Equal(t, ClassGreen, store.surveys["tok-1"].Classification)

	_, err = svc.Respond(context.Background(), KindCustomer, Answer{Token: "nao-existe", Score: 3})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Respond(context.Background(), KindCustomer, Answer{Token: "tok-1", Score: 12})
	_, isValidation := util.AsValidation(err)
	assert.True(t, isValidation)
}

func TestRespondFranchiseeScores(t *testing.T) {
	store := newStubStore()
	store.subjects[KindFranchisee] = []Subject{{ID: 4, CompanyID: 2}}
	svc := newTestService(store, testMessages)
	_, err := svc.GenerateForAllEligible(context.Background(), KindFranchisee)
	require.NoError(t, err)

	fiscal, bad := 9, 15
	_, err = svc.Respond(context.Background(), KindFranchisee, Answer{Token: "tok-1", Score: 5, FiscalScore: &bad})
	_, isValidation := util.AsValidation(err)
	assert.True(t, isValidation)

	class, err := svc.Respond(context.Background(), KindFranchisee, Answer{Token: "tok-1", Score: 5, FiscalScore: &fiscal})
	require.NoError(t, err)
	assert.Equal(t, ClassYellow, class)
	assert.Equal(t, 9, *store.surveys["tok-1"].FiscalScore)
}

func TestComputeStats(t *testing.T) {
	avg := 7.456
	st := ComputeStats(Counts{Total: 8, Answered: 4, Green: 2, Yellow: 1, Red: 1, ScoreSum: 27, FiscalAvg: &avg}, KindFranchisee)
	assert.Equal(t, 75.0, st.SatisfactionRate)
	assert.Equal(t, 6.75, st.AverageScore)
	assert.Equal(t, 50.0, st.ResponseRate)
	require.NotNil(t, st.Departments)
	assert.Equal(t, 7.46, *st.Departments.Fiscal)
	assert.Nil(t, st.Departments.Personal)

	empty := ComputeStats(Counts{}, KindCustomer)
	assert.Zero(t, empty.SatisfactionRate)
	assert.Nil(t, empty.Departments)
}

func TestListNormalizesPage(t *testing.T) {
	store := newStubStore()
	for i := int64(1); i <= 12; i++ {
		store.subjects[KindCustomer] = append(store.subjects[KindCustomer], Subject{ID: i, CompanyID: 1})
	}
	svc := newTestService(store, Messages{})
	_, err := svc.GenerateForAllEligible(context.Background(), KindCustomer)
	require.NoError(t, err)

	page, err := svc.List(context.Background(), KindCustomer, ListFilter{CompanyID: 1, Page: 2, Limit: 0})
	require.NoError(t, err)
	assert.Equal(t, int64(12), page.Total)
	assert.Equal(t, 10, page.Limit)
	assert.Len(t, page.Data, 2)

	_, err = svc.List(context.Background(), KindCustomer, ListFilter{CompanyID: 1, Status: "perdida"})
	_, isValidation := util.AsValidation(err)
	assert.True(t, isValidation)
}

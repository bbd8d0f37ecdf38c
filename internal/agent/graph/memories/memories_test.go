package memories

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Chative-core-poc-v1/text2sql/internal/agent/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeProvider struct {
	profile    *model.UserProfile
	episodes   []model.QueryEpisode
	patterns   []model.SQLPattern
	profileErr error
	episodeErr error
	patternErr error
	block      bool

	mu            sync.Mutex
	episodeLimits []int
}

func (f *fakeProvider) Profile(ctx context.Context, userID string) (*model.UserProfile, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.profile, f.profileErr
}

func (f *fakeProvider) Episodes(ctx context.Context, userID string, limit int) ([]model.QueryEpisode, error) {
	f.mu.Lock()
	f.episodeLimits = append(f.episodeLimits, limit)
	f.mu.Unlock()
	return f.episodes, f.episodeErr
}

func (f *fakeProvider) Patterns(ctx context.Context, limit int) ([]model.SQLPattern, error) {
	return f.patterns, f.patternErr
}

func TestUserContext_AllSources(t *testing.T) {
	p := &fakeProvider{
		profile:  &model.UserProfile{Name: "Ron"},
		episodes: []model.QueryEpisode{{UserQuery: "q1"}},
		patterns: []model.SQLPattern{{PatternName: "p1"}},
	}
	got := NewAggregator(p, time.Second, 0, 0).UserContext(context.Background(), "t1", "u1")

	require.NotNil(t, got.Profile)
	assert.Equal(t, "Ron", got.Profile.Name)
	assert.Len(t, got.Episodes, 1)
	assert.Len(t, got.Patterns, 1)
	assert.Equal(t, []int{DefaultEpisodeLimit}, p.episodeLimits)
}

func TestUserContext_IsolatesFailures(t *testing.T) {
	p := &fakeProvider{
		profileErr: errors.New("profile store down"),
		episodes:   []model.QueryEpisode{{UserQuery: "q1"}},
		patternErr: errors.New("patterns store down"),
	}
	got := NewAggregator(p, time.Second, 3, 3).UserContext(context.Background(), "t1", "u1")

	assert.Nil(t, got.Profile)
	assert.Len(t, got.Episodes, 1)
	assert.NotNil(t, got.Patterns)
	assert.Empty(t, got.Patterns)
}

func TestUserContext_SlowSourceTimesOut(t *testing.T) {
	p := &fakeProvider{block: true, patterns: []model.SQLPattern{{PatternName: "p1"}}}
	start := time.Now()
	got := NewAggregator(p, 50*time.Millisecond, 0, 0).UserContext(context.Background(), "t1", "u1")

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Nil(t, got.Profile)
	assert.Len(t, got.Patterns, 1)
}

func TestUserContext_NilProvider(t *testing.T) {
	got := NewAggregator(nil, 0, 0, 0).UserContext(context.Background(), "t1", "u1")
	assert.Nil(t, got.Profile)
	assert.NotNil(t, got.Episodes)
	assert.NotNil(t, got.Patterns)

	var a *Aggregator
	assert.NotNil(t, a.UserContext(context.Background(), "t1", "u1").Episodes)
}

type fakeWriter struct {
	mu    sync.Mutex
	saved []model.QueryEpisode
	err   error
	delay time.Duration
}

func (f *fakeWriter) SaveEpisode(ctx context.Context, userID string, ep model.QueryEpisode) error {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, ep)
	return nil
}

func TestRecorder_DetachedWrite(t *testing.T) {
	w := &fakeWriter{delay: 20 * time.Millisecond}
	r := NewRecorder(w, time.Second)
	r.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	r.Record("u1", Episode("how many users", "SELECT count(*) FROM users", true))
	r.Wait()

	require.Len(t, w.saved, 1)
	ep := w.saved[0]
	assert.Equal(t, "2026-01-02T03:04:05Z", ep.Timestamp)
	assert.Equal(t, []string{"users"}, ep.TablesUsed)
	assert.Equal(t, "aggregation", ep.QueryType)
}

func TestRecorder_ErrorsAreSwallowed(t *testing.T) {
	r := NewRecorder(&fakeWriter{err: errors.New("disk full")}, time.Second)
	r.Record("u1", model.QueryEpisode{UserQuery: "q"})
	r.Wait()

	var nilRecorder *Recorder
	nilRecorder.Record("u1", model.QueryEpisode{})
	nilRecorder.Wait()
	NewRecorder(nil, 0).Record("u1", model.QueryEpisode{})
}

func TestTablesUsedAndQueryType(t *testing.T) {
	sql := "SELECT u.name, o.total FROM users u JOIN orders o ON o.user_id = u.id JOIN Users x ON true"
	assert.Equal(t, []string{"users", "orders"}, TablesUsed(sql))
	assert.Equal(t, "join", QueryType(sql))
	assert.Equal(t, "filter", QueryType("SELECT * FROM users WHERE id = 1"))
	assert.Equal(t, "aggregation", QueryType("SELECT status, COUNT (*) FROM orders GROUP BY status"))
	assert.Equal(t, "select", QueryType("SELECT * FROM users"))
}

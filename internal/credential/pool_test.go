package credential

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gclipool-go/internal/apierr"
	"gclipool-go/internal/events"
	"gclipool-go/internal/oauth"
)

type mapStore struct {
	mu   sync.Mutex
	data map[string]interface{}
}

func newMapStore() *mapStore {
	return &mapStore{data: make(map[string]interface{})}
}

func (s *mapStore) Get(_ context.Context, key string, def interface{}) interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.data[key]; ok {
		return v
	}
	return def
}

func (s *mapStore) Set(_ context.Context, key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

func (s *mapStore) Delete(_ context.Context, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[key]
	delete(s.data, key)
	return ok
}

func (s *mapStore) GetAll(_ context.Context) map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]interface{}, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}

func (s *mapStore) UpdateMulti(_ context.Context, updates map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range updates {
		s.data[k] = v
	}
}

type fixedPolicy struct {
	calls    int
	autoBan  bool
	banCodes []int
}

func (p fixedPolicy) CallsPerRotation(context.Context) int   { return p.calls }
func (p fixedPolicy) AutoBanEnabled(context.Context) bool    { return p.autoBan }
func (p fixedPolicy) AutoBanErrorCodes(context.Context) []int { return p.banCodes }

type stubRefresher struct {
	mu        sync.Mutex
	calls     int
	err       map[string]error // keyed by refresh token
	onRefresh func()
}

func (r *stubRefresher) RefreshToken(_ context.Context, creds *oauth.Credentials) error {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	if r.onRefresh != nil {
		r.onRefresh()
	}
	if err := r.err[creds.RefreshToken]; err != nil {
		return err
	}
	creds.AccessToken = "fresh-" + creds.RefreshToken
	creds.ExpiresAt = time.Now().Add(time.Hour)
	return nil
}

func seedPool(t *testing.T, store *mapStore, ids ...string) {
	t.Helper()
	for _, id := range ids {
		rec := &Record{
			ClientID:     "cid",
			ClientSecret: "secret",
			RefreshToken: "rt-" + id,
			AccessToken:  "at-" + id,
			Expiry:       time.Now().Add(time.Hour),
		}
		store.Set(context.Background(), id, rec.ToEntry())
	}
}

func TestRotationAfterCallsPerRotation(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()
	seedPool(t, store, "a", "b", "c")

	pool := NewPool(store, fixedPolicy{calls: 2}, &stubRefresher{})
	require.NoError(t, pool.Initialize(ctx))

	var used []string
	for i := 0; i < 7; i++ {
		id, rec, err := pool.GetValidCredential(ctx)
		require.NoError(t, err)
		require.NotNil(t, rec)
		used = append(used, id)
		pool.IncrementCallCount()
	}
	require.Equal(t, []string{"a", "a", "b", "b", "c", "c", "a"}, used)
}

func TestForceRotateSkipsCurrentCredential(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()
	seedPool(t, store, "a", "b")

	pool := NewPool(store, fixedPolicy{calls: 100}, &stubRefresher{})
	require.NoError(t, pool.Initialize(ctx))

	id, _, err := pool.GetValidCredential(ctx)
	require.NoError(t, err)
	require.Equal(t, "a", id)

	pool.ForceRotate()
	id, _, err = pool.GetValidCredential(ctx)
	require.NoError(t, err)
	require.Equal(t, "b", id)
}

func TestCooldownExcludesCredential(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()
	seedPool(t, store, "a", "b")

	pool := NewPool(store, fixedPolicy{calls: 100}, &stubRefresher{})
	require.NoError(t, pool.Initialize(ctx))

	pool.RecordResult(ctx, "a", 429, false)

	for i := 0; i < 3; i++ {
		id, _, err := pool.GetValidCredential(ctx)
		require.NoError(t, err)
		require.Equal(t, "b", id)
	}

	statuses := pool.ListStatuses(ctx)
	require.Len(t, statuses, 2)
	require.Equal(t, "a", statuses[0].ID)
	require.True(t, statuses[0].InCooldown)
	require.NotNil(t, statuses[0].CooldownUntil)
	require.Equal(t, NextQuotaReset(time.Now()), statuses[0].CooldownUntil.UTC())
}

func TestOnlyCredentialInCooldownYieldsNoCredentials(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()
	seedPool(t, store, "a")

	pool := NewPool(store, fixedPolicy{calls: 100}, &stubRefresher{})
	require.NoError(t, pool.Initialize(ctx))

	pool.RecordResult(ctx, "a", 429, false)

	_, _, err := pool.GetValidCredential(ctx)
	require.ErrorIs(t, err, apierr.ErrNoCredentials)
}

func TestSuccessClearsErrorCodes(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()
	seedPool(t, store, "a")

	pool := NewPool(store, fixedPolicy{calls: 100}, &stubRefresher{})
	require.NoError(t, pool.Initialize(ctx))

	pool.RecordResult(ctx, "a", 500, false)
	pool.RecordResult(ctx, "a", 503, false)
	statuses := pool.ListStatuses(ctx)
	require.Equal(t, []int{500, 503}, statuses[0].ErrorCodes)
	require.Nil(t, statuses[0].LastSuccess)

	pool.RecordResult(ctx, "a", 200, true)
	statuses = pool.ListStatuses(ctx)
	require.Empty(t, statuses[0].ErrorCodes)
	require.NotNil(t, statuses[0].LastSuccess)
}

func TestAutoBanDisablesCredential(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()
	seedPool(t, store, "a", "b")

	pool := NewPool(store, fixedPolicy{calls: 100, autoBan: true, banCodes: []int{400, 403}}, &stubRefresher{})
	require.NoError(t, pool.Initialize(ctx))

	pool.RecordResult(ctx, "a", 403, false)

	statuses := pool.ListStatuses(ctx)
	require.True(t, statuses[0].Disabled)

	id, _, err := pool.GetValidCredential(ctx)
	require.NoError(t, err)
	require.Equal(t, "b", id)
}

func TestAutoBanDisabledLeavesCredentialEnabled(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()
	seedPool(t, store, "a")

	pool := NewPool(store, fixedPolicy{calls: 100, autoBan: false, banCodes: []int{400, 403}}, &stubRefresher{})
	require.NoError(t, pool.Initialize(ctx))

	pool.RecordResult(ctx, "a", 403, false)

	statuses := pool.ListStatuses(ctx)
	require.False(t, statuses[0].Disabled)
	require.Equal(t, []int{403}, statuses[0].ErrorCodes)
}

func TestRefreshPermanentFailureDisables(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()
	seedPool(t, store, "a", "b")

	// 使 a 的令牌过期,触发刷新
	rec := RecordFromEntry(store.Get(ctx, "a", nil).(map[string]interface{}))
	rec.Expiry = time.Now().Add(-time.Hour)
	store.Set(ctx, "a", rec.ToEntry())

	refresher := &stubRefresher{err: map[string]error{
		"rt-a": &oauth.RefreshError{StatusCode: 400, Body: `{"error":"invalid_grant"}`},
	}}
	pool := NewPool(store, fixedPolicy{calls: 100}, refresher)
	require.NoError(t, pool.Initialize(ctx))

	id, _, err := pool.GetValidCredential(ctx)
	require.NoError(t, err)
	require.Equal(t, "b", id)

	statuses := pool.ListStatuses(ctx)
	require.Equal(t, "a", statuses[0].ID)
	require.True(t, statuses[0].Disabled)
}

func TestRefreshTransientFailureSkipsWithoutDisabling(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()
	seedPool(t, store, "a", "b")

	rec := RecordFromEntry(store.Get(ctx, "a", nil).(map[string]interface{}))
	rec.Expiry = time.Now().Add(-time.Hour)
	store.Set(ctx, "a", rec.ToEntry())

	refresher := &stubRefresher{err: map[string]error{
		"rt-a": errors.New("connection reset"),
	}}
	pool := NewPool(store, fixedPolicy{calls: 100}, refresher)
	require.NoError(t, pool.Initialize(ctx))

	id, _, err := pool.GetValidCredential(ctx)
	require.NoError(t, err)
	require.Equal(t, "b", id)

	statuses := pool.ListStatuses(ctx)
	require.Equal(t, "a", statuses[0].ID)
	require.False(t, statuses[0].Disabled)
}

func TestRefreshUpdatesStoredToken(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()
	seedPool(t, store, "a")

	rec := RecordFromEntry(store.Get(ctx, "a", nil).(map[string]interface{}))
	rec.Expiry = time.Now().Add(-time.Hour)
	store.Set(ctx, "a", rec.ToEntry())

	pool := NewPool(store, fixedPolicy{calls: 100}, &stubRefresher{})
	require.NoError(t, pool.Initialize(ctx))

	id, got, err := pool.GetValidCredential(ctx)
	require.NoError(t, err)
	require.Equal(t, "a", id)
	require.Equal(t, "fresh-rt-a", got.AccessToken)

	stored := RecordFromEntry(store.Get(ctx, "a", nil).(map[string]interface{}))
	require.Equal(t, "fresh-rt-a", stored.AccessToken)
	require.False(t, stored.NeedsRefresh(time.Now()))
}

func TestConcurrentRefreshCollapses(t *testing.T) {
	coord := NewRefreshCoordinator()
	var calls int32
	var mu sync.Mutex
	release := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = coord.Do("k", func() error {
				mu.Lock()
				calls++
				mu.Unlock()
				<-release
				return nil
			})
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.EqualValues(t, 1, calls)
}

func TestDeleteAndSetDisabled(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()
	seedPool(t, store, "a", "b")

	pool := NewPool(store, fixedPolicy{calls: 100}, &stubRefresher{})
	require.NoError(t, pool.Initialize(ctx))

	require.NoError(t, pool.SetDisabled(ctx, "a", true))
	id, _, err := pool.GetValidCredential(ctx)
	require.NoError(t, err)
	require.Equal(t, "b", id)

	require.NoError(t, pool.SetDisabled(ctx, "a", false))
	require.True(t, pool.Delete(ctx, "b"))
	id, _, err = pool.GetValidCredential(ctx)
	require.NoError(t, err)
	require.Equal(t, "a", id)

	require.False(t, pool.Delete(ctx, "missing"))
}

func TestImportUsesEmailAsID(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()

	pool := NewPool(store, fixedPolicy{calls: 100}, &stubRefresher{},
		WithEmailFetcher(emailFetcherFunc(func(context.Context, string) (string, error) {
			return "user@example.com", nil
		})))
	require.NoError(t, pool.Initialize(ctx))

	id, err := pool.Import(ctx, &oauth.Credentials{
		ClientID:     "cid",
		RefreshToken: "rt",
		AccessToken:  "at",
		ExpiresAt:    time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	require.Equal(t, "user@example.com", id)

	got, _, err := pool.GetValidCredential(ctx)
	require.NoError(t, err)
	require.Equal(t, "user@example.com", got)
}

type emailFetcherFunc func(ctx context.Context, token string) (string, error)

func (f emailFetcherFunc) GetUserEmail(ctx context.Context, token string) (string, error) {
	return f(ctx, token)
}

func TestRediscoveryPublishesMembershipChanges(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()
	hub := events.NewHub()

	var got []events.Event
	hub.Subscribe(events.TopicCredentialChanged, func(_ context.Context, evt events.Event) {
		got = append(got, evt)
	})

	pool := NewPool(store, fixedPolicy{calls: 100}, &stubRefresher{}, WithEventPublisher(hub))
	require.NoError(t, pool.Initialize(ctx))
	require.Empty(t, got, "empty pool produces no change event")

	seedPool(t, store, "a", "b")
	require.NoError(t, pool.Initialize(ctx))
	require.Len(t, got, 1)

	payload := got[0].Payload.(map[string]interface{})
	require.Equal(t, 2, payload["eligible"])
	require.ElementsMatch(t, []string{"a", "b"}, payload["added"])
}

func TestRefreshedCredentialDeletedConcurrently(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()
	seedPool(t, store, "b")

	// a 需要刷新,b 可直接使用
	rec := &Record{
		ClientID:     "cid",
		ClientSecret: "secret",
		RefreshToken: "rt-a",
		AccessToken:  "at-a",
		Expiry:       time.Now().Add(-time.Minute),
	}
	store.Set(ctx, "a", rec.ToEntry())

	refresher := &stubRefresher{}
	refresher.onRefresh = func() {
		// 模拟刷新窗口内管理端删除了该凭证
		store.Delete(ctx, "a")
	}

	pool := NewPool(store, fixedPolicy{calls: 100}, refresher)
	require.NoError(t, pool.Initialize(ctx))

	id, got, err := pool.GetValidCredential(ctx)
	require.NoError(t, err)
	require.Equal(t, "b", id)
	require.NotNil(t, got)
	require.Equal(t, "at-b", got.AccessToken)
}

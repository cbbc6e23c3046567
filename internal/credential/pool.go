package credential

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"gclipool-go/internal/apierr"
	"gclipool-go/internal/constants"
	"gclipool-go/internal/events"
	"gclipool-go/internal/monitoring"
	"gclipool-go/internal/oauth"
)

// Store is the credentials document the pool reads and writes through.
// Satisfied by cache.UnifiedCache.
type Store interface {
	Get(ctx context.Context, key string, def interface{}) interface{}
	Set(ctx context.Context, key string, value interface{})
	Delete(ctx context.Context, key string) bool
	GetAll(ctx context.Context) map[string]interface{}
	UpdateMulti(ctx context.Context, updates map[string]interface{})
}

// Policy supplies the runtime-tunable rotation knobs.
// Satisfied by config.Settings.
type Policy interface {
	CallsPerRotation(ctx context.Context) int
	AutoBanEnabled(ctx context.Context) bool
	AutoBanErrorCodes(ctx context.Context) []int
}

// Refresher exchanges a refresh token for a new access token.
// Satisfied by oauth.Manager.
type Refresher interface {
	RefreshToken(ctx context.Context, creds *oauth.Credentials) error
}

// EmailFetcher resolves the account email behind an access token.
type EmailFetcher interface {
	GetUserEmail(ctx context.Context, accessToken string) (string, error)
}

// Status is one credential's externally visible state.
type Status struct {
	ID            string     `json:"id"`
	ProjectID     string     `json:"project_id,omitempty"`
	UserEmail     string     `json:"user_email,omitempty"`
	Disabled      bool       `json:"disabled"`
	InCooldown    bool       `json:"in_cooldown"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
	ErrorCodes    []int      `json:"error_codes"`
	LastSuccess   *time.Time `json:"last_success,omitempty"`
	Current       bool       `json:"current"`
}

// Pool rotates over the eligible credentials in the store. Selection state
// (cursor, call count, eligible id list) lives under one mutex; token
// refreshes run outside it through the coordinator.
type Pool struct {
	store     Store
	policy    Policy
	refresher Refresher
	emails    EmailFetcher
	coord     *RefreshCoordinator
	bus       events.Publisher
	now       func() time.Time

	mu        sync.Mutex
	ids       []string
	cursor    int
	callCount int

	stopCh    chan struct{}
	doneCh    chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

// Option configures a Pool.
type Option func(*Pool)

func WithNowFunc(now func() time.Time) Option {
	return func(p *Pool) { p.now = now }
}

func WithEmailFetcher(f EmailFetcher) Option {
	return func(p *Pool) { p.emails = f }
}

// WithEventPublisher makes pool membership changes visible on the bus.
func WithEventPublisher(bus events.Publisher) Option {
	return func(p *Pool) { p.bus = bus }
}

func NewPool(store Store, policy Policy, refresher Refresher, opts ...Option) *Pool {
	p := &Pool{
		store:     store,
		policy:    policy,
		refresher: refresher,
		coord:     NewRefreshCoordinator(),
		now:       time.Now,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Initialize runs the first discovery pass.
func (p *Pool) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rediscoverLocked(ctx)
	return nil
}

// Start launches the periodic rediscovery loop.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		go p.discoveryLoop()
	})
}

// Stop halts background rediscovery.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
		<-p.doneCh
	})
}

func (p *Pool) discoveryLoop() {
	defer close(p.doneCh)
	ticker := time.NewTicker(constants.DiscoveryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			p.mu.Lock()
			p.rediscoverLocked(ctx)
			p.mu.Unlock()
			cancel()
		case <-p.stopCh:
			return
		}
	}
}

// rediscoverLocked rebuilds the eligible id list from the store. Entries
// that are disabled or cooling down are excluded. The cursor is pulled back
// to 0 when its id fell out of the list.
func (p *Pool) rediscoverLocked(ctx context.Context) {
	now := p.now()
	all := p.store.GetAll(ctx)
	ids := make([]string, 0, len(all))
	for id, raw := range all {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if RecordFromEntry(entry).Eligible(now) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	if added, removed := diffIDs(p.ids, ids); len(added) > 0 || len(removed) > 0 {
		log.WithFields(log.Fields{
			"eligible": len(ids),
			"added":    added,
			"removed":  removed,
		}).Info("credential pool updated")
		if p.bus != nil {
			p.bus.Publish(ctx, events.TopicCredentialChanged, map[string]interface{}{
				"eligible": len(ids),
				"added":    added,
				"removed":  removed,
			})
		}
	}

	prev := ""
	if p.cursor < len(p.ids) {
		prev = p.ids[p.cursor]
	}
	p.ids = ids
	monitoring.CredentialsEligible.Set(float64(len(ids)))

	if idx := sort.SearchStrings(ids, prev); prev != "" && idx < len(ids) && ids[idx] == prev {
		p.cursor = idx
		return
	}
	p.cursor = 0
}

func diffIDs(old, new []string) (added, removed []string) {
	seen := make(map[string]bool, len(old))
	for _, id := range old {
		seen[id] = true
	}
	for _, id := range new {
		if !seen[id] {
			added = append(added, id)
		}
		delete(seen, id)
	}
	for id := range seen {
		removed = append(removed, id)
	}
	sort.Strings(removed)
	return
}

// GetValidCredential returns the id and a snapshot of the credential the
// next request should use, refreshing its token first when needed. The call
// count is not advanced here; callers report usage via IncrementCallCount.
func (p *Pool) GetValidCredential(ctx context.Context) (string, *Record, error) {
	p.mu.Lock()
	if len(p.ids) == 0 {
		p.rediscoverLocked(ctx)
	}
	p.rotateIfDueLocked(ctx)

	attempts := len(p.ids)
	for i := 0; i < attempts; i++ {
		if len(p.ids) == 0 {
			break
		}
		if p.cursor >= len(p.ids) {
			p.cursor = 0
		}
		id := p.ids[p.cursor]
		rec := p.loadRecord(ctx, id)
		if rec == nil || !rec.Eligible(p.now()) {
			p.advanceLocked("ineligible")
			continue
		}
		if !rec.NeedsRefresh(p.now()) {
			p.mu.Unlock()
			return id, rec, nil
		}

		p.mu.Unlock()
		err := p.refresh(ctx, id, rec)
		p.mu.Lock()
		if err == nil {
			// 刷新期间凭证可能已被管理端删除,需重新取快照
			if renewed := p.loadRecord(ctx, id); renewed != nil {
				p.mu.Unlock()
				return id, renewed, nil
			}
			p.rediscoverLocked(ctx)
			continue
		}
		var rerr *oauth.RefreshError
		if errors.As(err, &rerr) && rerr.Permanent() {
			log.WithError(err).WithField("credential", id).Warn("refresh failed permanently, disabling credential")
			p.setDisabledLocked(ctx, id, true)
		} else {
			log.WithError(err).WithField("credential", id).Warn("refresh failed, trying next credential")
			p.advanceLocked("refresh_error")
		}
		if ctx.Err() != nil {
			break
		}
	}
	p.mu.Unlock()
	return "", nil, apierr.ErrNoCredentials
}

// rotateIfDueLocked advances the cursor once the current credential has
// served its share of calls.
func (p *Pool) rotateIfDueLocked(ctx context.Context) {
	per := p.policy.CallsPerRotation(ctx)
	if per <= 0 || p.callCount < per {
		return
	}
	p.advanceLocked("call_count")
}

func (p *Pool) advanceLocked(reason string) {
	if len(p.ids) > 0 {
		p.cursor = (p.cursor + 1) % len(p.ids)
	}
	p.callCount = 0
	monitoring.CredentialRotationsTotal.WithLabelValues(reason).Inc()
}

// ForceRotate skips past the current credential regardless of call count.
func (p *Pool) ForceRotate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advanceLocked("forced")
}

// IncrementCallCount reports one dispatched request against the current
// credential.
func (p *Pool) IncrementCallCount() {
	p.mu.Lock()
	p.callCount++
	p.mu.Unlock()
}

// refresh exchanges the refresh token, collapsing concurrent callers, and
// writes the renewed token back to the store.
func (p *Pool) refresh(ctx context.Context, id string, rec *Record) error {
	return p.coord.Do(id, func() error {
		creds := &oauth.Credentials{
			ClientID:     rec.ClientID,
			ClientSecret: rec.ClientSecret,
			RefreshToken: rec.RefreshToken,
			AccessToken:  rec.AccessToken,
			ProjectID:    rec.ProjectID,
		}
		if err := p.refresher.RefreshToken(ctx, creds); err != nil {
			monitoring.CredentialRefreshes.WithLabelValues(id, "error").Inc()
			return err
		}
		monitoring.CredentialRefreshes.WithLabelValues(id, "ok").Inc()

		p.mu.Lock()
		defer p.mu.Unlock()
		cur := p.loadRecord(ctx, id)
		if cur == nil {
			// 刷新期间凭证已被删除,不再回写
			return nil
		}
		cur.AccessToken = creds.AccessToken
		if creds.RefreshToken != "" {
			cur.RefreshToken = creds.RefreshToken
		}
		cur.Expiry = creds.ExpiresAt
		p.store.Set(ctx, id, cur.ToEntry())
		return nil
	})
}

// RecordResult updates a credential's state after an upstream call.
// Success clears accumulated error codes; 429 places the credential in
// cooldown until the next quota reset; auto-ban codes disable it outright.
func (p *Pool) RecordResult(ctx context.Context, id string, statusCode int, success bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec := p.loadRecord(ctx, id)
	if rec == nil {
		return
	}
	now := p.now()
	if success {
		rec.ErrorCodes = nil
		rec.LastSuccess = now
		p.store.Set(ctx, id, rec.ToEntry())
		return
	}

	rec.AppendErrorCode(statusCode)
	monitoring.CredentialErrors.WithLabelValues(id, strconv.Itoa(statusCode)).Inc()

	switch {
	case statusCode == 429:
		rec.CooldownUntil = NextQuotaReset(now)
		monitoring.CredentialCooldowns.WithLabelValues(id).Inc()
		log.WithFields(log.Fields{
			"credential":     id,
			"cooldown_until": rec.CooldownUntil.Format(time.RFC3339),
		}).Warn("credential exhausted quota, cooling down")
	case p.policy.AutoBanEnabled(ctx) && containsInt(p.policy.AutoBanErrorCodes(ctx), statusCode):
		rec.Disabled = true
		log.WithFields(log.Fields{
			"credential": id,
			"status":     statusCode,
		}).Warn("credential auto-banned")
	}
	p.store.Set(ctx, id, rec.ToEntry())
	if rec.Disabled || rec.InCooldown(now) {
		p.rediscoverLocked(ctx)
	}
}

// SetDisabled flips the disabled flag and refreshes the eligible list.
func (p *Pool) SetDisabled(ctx context.Context, id string, disabled bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.setDisabledLocked(ctx, id, disabled)
}

func (p *Pool) setDisabledLocked(ctx context.Context, id string, disabled bool) error {
	rec := p.loadRecord(ctx, id)
	if rec == nil {
		return apierr.ErrNoCredentials
	}
	rec.Disabled = disabled
	p.store.Set(ctx, id, rec.ToEntry())
	p.rediscoverLocked(ctx)
	return nil
}

// Delete removes a credential from the store.
func (p *Pool) Delete(ctx context.Context, id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	ok := p.store.Delete(ctx, id)
	if ok {
		p.rediscoverLocked(ctx)
	}
	return ok
}

// Import adds a credential obtained from an OAuth flow. The id is the
// account email when it can be resolved, otherwise a random one.
func (p *Pool) Import(ctx context.Context, creds *oauth.Credentials) (string, error) {
	rec := &Record{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RefreshToken: creds.RefreshToken,
		AccessToken:  creds.AccessToken,
		ProjectID:    creds.ProjectID,
		Expiry:       creds.ExpiresAt,
	}
	if p.emails != nil && rec.AccessToken != "" {
		if email, err := p.emails.GetUserEmail(ctx, rec.AccessToken); err == nil {
			rec.UserEmail = email
		} else {
			log.WithError(err).Debug("could not resolve account email for imported credential")
		}
	}
	id := rec.UserEmail
	if id == "" {
		id = uuid.NewString()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.store.Set(ctx, id, rec.ToEntry())
	p.rediscoverLocked(ctx)
	return id, nil
}

// ListStatuses reports every stored credential, eligible or not.
func (p *Pool) ListStatuses(ctx context.Context) []Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	current := ""
	if p.cursor < len(p.ids) {
		current = p.ids[p.cursor]
	}

	all := p.store.GetAll(ctx)
	ids := make([]string, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]Status, 0, len(ids))
	for _, id := range ids {
		entry, ok := all[id].(map[string]interface{})
		if !ok {
			continue
		}
		rec := RecordFromEntry(entry)
		s := Status{
			ID:         id,
			ProjectID:  rec.ProjectID,
			UserEmail:  rec.UserEmail,
			Disabled:   rec.Disabled,
			InCooldown: rec.InCooldown(now),
			ErrorCodes: append([]int{}, rec.ErrorCodes...),
			Current:    id == current,
		}
		if !rec.CooldownUntil.IsZero() {
			t := rec.CooldownUntil
			s.CooldownUntil = &t
		}
		if !rec.LastSuccess.IsZero() {
			t := rec.LastSuccess
			s.LastSuccess = &t
		}
		out = append(out, s)
	}
	return out
}

func (p *Pool) loadRecord(ctx context.Context, id string) *Record {
	entry, ok := p.store.Get(ctx, id, nil).(map[string]interface{})
	if !ok {
		return nil
	}
	return RecordFromEntry(entry)
}

func containsInt(codes []int, code int) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

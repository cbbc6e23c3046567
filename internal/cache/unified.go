// Package cache provides a write-back in-memory cache over a single storage
// document. Reads are served from memory; writes mark the document dirty and
// are flushed to the backend by a background writer. Backend failures are
// absorbed: the dirty flag stays set and the flush is retried on the next
// tick, so callers never see persistence errors on the write path.
package cache

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"gclipool-go/internal/constants"
	"gclipool-go/internal/monitoring"
	"gclipool-go/internal/storage"
)

// Options configures a UnifiedCache.
type Options struct {
	// TTL is the reload period for the in-memory document. Zero means
	// constants.CacheTTL.
	TTL time.Duration
	// WriteDelay is the background flush interval. Zero means
	// constants.CacheWriteDelay.
	WriteDelay time.Duration
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// UnifiedCache is a write-back cache over one (backend, docKey) pair.
type UnifiedCache struct {
	backend    storage.Backend
	docKey     string
	ttl        time.Duration
	writeDelay time.Duration
	now        func() time.Time

	mu       sync.Mutex
	doc      map[string]interface{}
	dirty    bool
	loadedAt time.Time

	stopCh chan struct{}
	doneCh chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
}

// New creates a cache over the given document. Start must be called before
// background flushing begins; reads and writes work either way.
func New(backend storage.Backend, docKey string, opts Options) *UnifiedCache {
	if opts.TTL <= 0 {
		opts.TTL = constants.CacheTTL
	}
	if opts.WriteDelay <= 0 {
		opts.WriteDelay = constants.CacheWriteDelay
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &UnifiedCache{
		backend:    backend,
		docKey:     docKey,
		ttl:        opts.TTL,
		writeDelay: opts.WriteDelay,
		now:        opts.Now,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Get returns document[key], or def when absent.
func (c *UnifiedCache) Get(ctx context.Context, key string, def interface{}) interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureLoadedLocked(ctx); err != nil {
		log.WithError(err).Errorf("cache %s: load failed, serving default for %s", c.docKey, key)
		return def
	}
	if v, ok := c.doc[key]; ok {
		return v
	}
	return def
}

// Set stores document[key] = value and marks the document dirty. Persistence
// happens asynchronously; Set never fails on backend errors.
func (c *UnifiedCache) Set(ctx context.Context, key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureLoadedLocked(ctx); err != nil {
		log.WithError(err).Errorf("cache %s: load failed before set of %s", c.docKey, key)
	}
	if c.doc == nil {
		c.doc = make(map[string]interface{})
	}
	c.doc[key] = value
	c.dirty = true
}

// Delete removes key from the document. Returns whether the key existed.
func (c *UnifiedCache) Delete(ctx context.Context, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureLoadedLocked(ctx); err != nil {
		log.WithError(err).Errorf("cache %s: load failed before delete of %s", c.docKey, key)
	}
	if _, ok := c.doc[key]; !ok {
		return false
	}
	delete(c.doc, key)
	c.dirty = true
	return true
}

// GetAll returns a copy of the whole document.
func (c *UnifiedCache) GetAll(ctx context.Context) map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureLoadedLocked(ctx); err != nil {
		log.WithError(err).Errorf("cache %s: load failed, serving empty document", c.docKey)
		return map[string]interface{}{}
	}
	out := make(map[string]interface{}, len(c.doc))
	for k, v := range c.doc {
		out[k] = v
	}
	return out
}

// UpdateMulti merges updates into the document under one lock acquisition.
func (c *UnifiedCache) UpdateMulti(ctx context.Context, updates map[string]interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureLoadedLocked(ctx); err != nil {
		log.WithError(err).Errorf("cache %s: load failed before update_multi", c.docKey)
	}
	if c.doc == nil {
		c.doc = make(map[string]interface{})
	}
	for k, v := range updates {
		c.doc[k] = v
	}
	c.dirty = true
}

// Flush synchronously writes the document to the backend if dirty.
func (c *UnifiedCache) Flush(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked(ctx)
}

// Start launches the background writer.
func (c *UnifiedCache) Start() {
	c.startOnce.Do(func() {
		go c.writeLoop()
		log.Debugf("cache %s: writer started", c.docKey)
	})
}

// Stop terminates the background writer and performs a final synchronous
// flush. An unflushed dirty document at shutdown would be data loss.
func (c *UnifiedCache) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		close(c.stopCh)
		select {
		case <-c.doneCh:
		case <-time.After(5 * time.Second):
			log.Warnf("cache %s: writer did not stop in time", c.docKey)
		}
		err = c.Flush(ctx)
		log.Debugf("cache %s: stopped", c.docKey)
	})
	return err
}

// Stats reports cache state for diagnostics.
type Stats struct {
	Document string    `json:"document"`
	Size     int       `json:"size"`
	Dirty    bool      `json:"dirty"`
	LoadedAt time.Time `json:"loaded_at"`
}

func (c *UnifiedCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Document: c.docKey,
		Size:     len(c.doc),
		Dirty:    c.dirty,
		LoadedAt: c.loadedAt,
	}
}

// ensureLoadedLocked loads the document on first use, and reloads it when the
// TTL has expired. A dirty document is never reloaded: reloading would drop
// unflushed writes.
func (c *UnifiedCache) ensureLoadedLocked(ctx context.Context) error {
	// 脏数据未落盘前绝不重载,包括首次加载失败后的场景
	if c.dirty {
		return nil
	}
	now := c.now()
	if !c.loadedAt.IsZero() && now.Sub(c.loadedAt) <= c.ttl {
		return nil
	}

	doc, err := c.backend.LoadDocument(ctx, c.docKey)
	if err != nil {
		if c.doc == nil {
			c.doc = make(map[string]interface{})
		}
		return err
	}
	c.doc = doc
	c.loadedAt = now
	return nil
}

func (c *UnifiedCache) flushLocked(ctx context.Context) error {
	if !c.dirty {
		return nil
	}

	snapshot := make(map[string]interface{}, len(c.doc))
	for k, v := range c.doc {
		snapshot[k] = v
	}
	if err := c.backend.WriteDocument(ctx, c.docKey, snapshot); err != nil {
		monitoring.CacheFlushesTotal.WithLabelValues(c.docKey, "error").Inc()
		return err
	}
	c.dirty = false
	monitoring.CacheFlushesTotal.WithLabelValues(c.docKey, "ok").Inc()
	return nil
}

func (c *UnifiedCache) writeLoop() {
	defer close(c.doneCh)
	ticker := time.NewTicker(c.writeDelay)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := c.Flush(ctx); err != nil {
				log.WithError(err).Errorf("cache %s: background flush failed, will retry", c.docKey)
			}
			cancel()
		}
	}
}

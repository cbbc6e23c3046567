package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"gclipool-go/internal/cache"
	"gclipool-go/internal/config"
	"gclipool-go/internal/constants"
	"gclipool-go/internal/credential"
	"gclipool-go/internal/events"
	"gclipool-go/internal/logging"
	"gclipool-go/internal/monitoring/tracing"
	"gclipool-go/internal/oauth"
	"gclipool-go/internal/proxy"
	srv "gclipool-go/internal/server"
	"gclipool-go/internal/storage"
	"gclipool-go/internal/upstream"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	if *debug {
		cfg.Debug = true
	}

	if err := logging.Setup(logging.Options{Debug: cfg.Debug, LogFile: cfg.LogFile}); err != nil {
		log.WithError(err).Fatal("failed to configure logging")
	}

	traceShutdown, err := tracing.Init(context.Background())
	if err != nil {
		log.WithError(err).Warn("failed to initialize tracing")
	}
	if traceShutdown != nil {
		defer func() {
			if err := traceShutdown(context.Background()); err != nil {
				log.WithError(err).Warn("failed to shutdown tracing")
			}
		}()
	}

	if len(cfg.APIKeys) == 0 {
		log.Warn("no api_keys configured; client endpoints are open")
	}
	if cfg.AdminKey == "" {
		log.Warn("no admin_key configured; admin endpoints are locked")
	}

	ctx := context.Background()

	backend, err := buildStorageBackend(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize storage backend")
	}
	backend = storage.WithInstrumentation(backend)
	defer backend.Close()
	log.WithField("backend", backend.Name()).Info("storage backend ready")

	credCache := cache.New(backend, storage.DocCredentials, cache.Options{})
	confCache := cache.New(backend, storage.DocConfig, cache.Options{})
	credCache.Start()
	confCache.Start()

	settings := config.NewSettings(confCache)
	settings.Seed(ctx, cfg)

	hub := events.NewHub()
	if cfg.Debug {
		hub.Subscribe(events.TopicCredentialChanged, func(_ context.Context, evt events.Event) {
			log.WithField("topic", evt.Topic).Debugf("credential change: %v", evt.Payload)
		})
		hub.Subscribe(events.TopicConfigUpdated, func(_ context.Context, evt events.Event) {
			log.WithField("topic", evt.Topic).Debugf("config event: %v", evt.Payload)
		})
	}

	oauthMgr := oauth.NewManager(cfg.OAuthClientID, cfg.OAuthClientSecret, cfg.OAuthRedirectURL)
	pool := credential.NewPool(credCache, settings, oauthMgr,
		credential.WithEmailFetcher(oauthMgr),
		credential.WithEventPublisher(hub))
	if err := pool.Initialize(ctx); err != nil {
		log.WithError(err).Warn("credential pool discovery failed at startup")
	}
	pool.Start()

	client := upstream.New(upstream.Options{
		Endpoint: cfg.CodeAssistEndpoint,
		ProxyURL: cfg.ProxyURL,
		Timeout:  settings.HTTPTimeout(ctx),
	})

	dispatcher := proxy.New(pool, client, settings)

	engine := srv.New(cfg, srv.Dependencies{
		Proxy:       dispatcher,
		Pool:        pool,
		Upstream:    client,
		CredSource:  pool,
		Settings:    settings,
		ConfigStore: confCache,
	}).BuildEngine()

	// 配置文件热加载:仅日志级别等轻量项即时生效
	if *configPath != "" {
		watcher := config.NewWatcher(*configPath, cfg)
		watcher.OnChange(func(updated *config.Config) {
			if err := logging.Setup(logging.Options{Debug: updated.Debug, LogFile: updated.LogFile}); err != nil {
				log.WithError(err).Warn("failed to reconfigure logging")
			}
			hub.Publish(context.Background(), events.TopicConfigUpdated, map[string]any{"source": "file"})
		})
		watcher.Start()
		defer watcher.Stop()
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	httpSrv := &http.Server{Addr: addr, Handler: engine}

	go func() {
		log.WithField("addr", addr).Infof("gclipool %s listening", constants.Version)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("http server: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutdown signal received")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), constants.ServerShutdownTimeout)
	defer cancelShutdown()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http server shutdown")
	}
	pool.Stop()

	// 停止缓存前做最终落盘,避免丢失未刷写的状态
	if err := credCache.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("credential cache final flush failed")
	}
	if err := confCache.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("config cache final flush failed")
	}
	log.Info("server stopped")
}

// Package app assembles the client-side components from configuration. It
// is the only place they are created, and Close is the only place they are
// torn down.
package app

import (
	"fmt"

	"go.uber.org/zap"

	"studio/internal/analytics"
	"studio/internal/apiclient"
	"studio/internal/chat"
	"studio/internal/config"
	"studio/internal/library"
	"studio/internal/upload"
)

// App owns one session's state.
type App struct {
	Config    *config.AppConfig
	Log       *zap.Logger
	Client    *apiclient.Client
	Cache     *library.Cache
	Upload    *upload.Orchestrator
	Chat      *chat.Session
	Library   *library.ViewModel
	Analytics *analytics.ViewModel
}

// New builds an App. notify receives upload notices and may be nil.
func New(cfg *config.AppConfig, log *zap.Logger, notify upload.Notifier) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	client, err := apiclient.New(cfg.API, log.Named("api"))
	if err != nil {
		return nil, fmt.Errorf("creating api client: %w", err)
	}
	cache := library.NewCache(cfg.Library.CacheSize, cfg.Library.CacheTTL())
	a := &App{
		Config: cfg,
		Log:    log,
		Client: client,
		Cache:  cache,
		Upload: upload.New(upload.Options{
			InitialProgress: cfg.Upload.InitialProgress,
			ProgressCap:     cfg.Upload.ProgressCap,
		}, notify, log.Named("upload")),
		Chat:      chat.NewSession(cfg.Chat.Greeting, log.Named("chat")),
		Library:   library.New(cache, log.Named("library")),
		Analytics: analytics.New(log.Named("analytics")),
	}
	log.Debug("app assembled", zap.String("api", client.BaseURL()))
	return a, nil
}

// Close releases the session's resources.
func (a *App) Close() {
	a.Cache.Purge()
	_ = a.Log.Sync()
}

// Package api exposes feeds, items, settings and manual sync over HTTP/JSON.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-pkgz/rest"

	"feedsync/internal/domain"
	"feedsync/internal/service"
)

const maxBodySize = 1 << 20

type FeedService interface {
	Subscribe(ctx context.Context, req domain.FeedToCreate) (*service.SubscribeResult, error)
	Get(ctx context.Context, id int64) (domain.Feed, error)
	List(ctx context.Context) ([]domain.Feed, error)
	Update(ctx context.Context, upd domain.FeedToUpdate) (domain.Feed, error)
	Delete(ctx context.Context, id int64) error
}

type ItemStore interface {
	List(ctx context.Context, opt domain.ItemReadOption) ([]domain.Item, error)
	Count(ctx context.Context, opt domain.ItemReadOption) (int64, error)
	Update(ctx context.Context, upd domain.ItemToUpdate) (domain.Item, error)
	UpdateAll(ctx context.Context, upd domain.ItemToUpdateAll) (int64, error)
}

type SettingStore interface {
	List(ctx context.Context) ([]domain.Setting, error)
	Get(ctx context.Context, key domain.SettingKey) (domain.Setting, error)
}

type SettingsSaver interface {
	SaveAll(ctx context.Context, settings []domain.Setting) error
}

type SyncRunner interface {
	RunOnce(ctx context.Context) (*domain.SyncResult, error)
}

type Server struct {
	feeds    FeedService
	items    ItemStore
	settings SettingStore
	saver    SettingsSaver
	syncer   SyncRunner
	version  string
	logger   *slog.Logger
}

func NewServer(
	feeds FeedService,
	items ItemStore,
	settings SettingStore,
	saver SettingsSaver,
	syncer SyncRunner,
	version string,
	logger *slog.Logger,
) *Server {
	return &Server{
		feeds:    feeds,
		items:    items,
		settings: settings,
		saver:    saver,
		syncer:   syncer,
		version:  version,
		logger:   logger.With("component", "api"),
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(rest.AppInfo("feedsync", "feedsync", s.version))
	r.Use(rest.Ping)
	r.Use(rest.SizeLimit(maxBodySize))

	r.Route("/api", func(r chi.Router) {
		r.Route("/feeds", func(r chi.Router) {
			r.Post("/", s.createFeed)
			r.Get("/", s.listFeeds)
			r.Get("/{id}", s.getFeed)
			r.Patch("/{id}", s.updateFeed)
			r.Delete("/{id}", s.deleteFeed)
		})

		r.Route("/items", func(r chi.Router) {
			r.Get("/", s.listItems)
			r.Get("/count", s.countItems)
			r.Patch("/", s.updateItems)
			r.Patch("/{id}", s.updateItem)
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/", s.listSettings)
			r.Put("/", s.saveSettings)
			r.Get("/{key}", s.getSetting)
			r.Put("/{key}", s.saveSetting)
		})

		r.Post("/sync", s.runSync)
	})

	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server started", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

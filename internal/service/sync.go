package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-pkgz/syncs"

	"feedsync/internal/config"
	"feedsync/internal/domain"
	"feedsync/internal/ingest"
	"feedsync/internal/syndication"
)

var errNotFetched = errors.New("feed was not fetched")

type SyncService struct {
	feeds    FeedStore
	items    ItemStore
	settings SettingsStore
	fetcher  Fetcher
	logger   *slog.Logger
	config   config.SyncConfig
	now      func() time.Time
}

func NewSyncService(
	feeds FeedStore,
	items ItemStore,
	settings SettingsStore,
	fetcher Fetcher,
	logger *slog.Logger,
	cfg config.SyncConfig,
) *SyncService {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &SyncService{
		feeds:    feeds,
		items:    items,
		settings: settings,
		fetcher:  fetcher,
		logger:   logger.With("component", "sync"),
		config:   cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Sync runs one cycle over every subscribed feed and returns the items it
// inserted. Only store failures while listing feeds or reading cursors
// abort the cycle; a failing feed is logged and skipped.
func (s *SyncService) Sync(ctx context.Context) (*domain.SyncResult, error) {
	start := s.now()
	settings := s.loadSettings(ctx)

	feeds, err := s.feeds.ListSubscribed(ctx)
	if err != nil {
		return nil, fmt.Errorf("list subscribed feeds: %w", err)
	}

	s.logger.Info("starting sync", "feeds", len(feeds), "concurrency", s.config.Concurrency)

	for _, feed := range feeds {
		if err := s.feeds.UpdateCheckedAt(ctx, feed.ID, start); err != nil {
			s.logger.Warn("failed to stamp checked_at", "feed_id", feed.ID, "error", err)
		}
	}

	result, err := s.syncFeeds(ctx, feeds, settings.ProxyURL())
	if result != nil {
		result.Stats.Duration = s.now().Sub(start)
		s.logger.Info("sync completed",
			"feeds", result.Stats.Feeds,
			"failed", result.Stats.Failed,
			"fetched", result.Stats.Fetched,
			"accepted", result.Stats.Accepted,
			"inserted", result.Stats.Inserted,
			"duplicates", result.Stats.Duplicates,
			"errors", result.Stats.Errors,
			"duration", result.Stats.Duration,
		)
	}
	return result, err
}

// SyncFeed runs the pipeline for a single feed, regardless of its status.
func (s *SyncService) SyncFeed(ctx context.Context, feed domain.Feed) (*domain.SyncResult, error) {
	settings := s.loadSettings(ctx)
	return s.syncFeeds(ctx, []domain.Feed{feed}, settings.ProxyURL())
}

// loadSettings never fails the cycle: an unreadable settings table means
// the defaults apply.
func (s *SyncService) loadSettings(ctx context.Context) domain.Settings {
	settings, err := s.settings.Load(ctx)
	if err != nil {
		s.logger.Warn("failed to load settings, using defaults", "error", err)
		return domain.DefaultSettings()
	}
	return settings
}

type fetchResult struct {
	entries []syndication.Entry
	err     error
}

func (s *SyncService) syncFeeds(ctx context.Context, feeds []domain.Feed, proxy *string) (*domain.SyncResult, error) {
	cursors, err := s.cursors(ctx, feeds)
	if err != nil {
		return nil, fmt.Errorf("load latest published: %w", err)
	}

	fetched := s.fetchAll(ctx, feeds, proxy)

	result := &domain.SyncResult{Inserted: []domain.Item{}}
	result.Stats.Feeds = len(feeds)

	for i, feed := range feeds {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("sync interrupted: %w", err)
		}

		logger := s.logger.With("feed_id", feed.ID, "feed_url", feed.Link)

		if fetched[i].err != nil {
			result.Stats.Failed++
			logger.Warn("failed to fetch feed", "error", fetched[i].err)
			continue
		}

		entries := fetched[i].entries
		result.Stats.Fetched += len(entries)

		now := s.now()
		accepted := ingest.Accept(feed.Mode(), cursors[feed.ID], entries, now)
		result.Stats.Accepted += len(accepted)

		logger.Debug("entries accepted",
			"mode", feed.Mode().String(),
			"fetched", len(entries),
			"accepted", len(accepted),
		)

		for _, entry := range accepted {
			item, err := s.items.Insert(ctx, ingest.Normalize(entry, feed.ID, now))
			switch {
			case errors.Is(err, domain.ErrDuplicateFingerprint):
				result.Stats.Duplicates++
			case err != nil:
				result.Stats.Errors++
				logger.Warn("failed to insert item", "title", entry.Title, "error", err)
			default:
				result.Stats.Inserted++
				result.Inserted = append(result.Inserted, item)
			}
		}
	}

	return result, nil
}

// cursors loads the stored latest published time of every backlog-skip
// feed in one store call.
func (s *SyncService) cursors(ctx context.Context, feeds []domain.Feed) (map[int64]ingest.Cursor, error) {
	var ids []int64
	for _, feed := range feeds {
		if feed.Mode() == domain.BacklogSkip {
			ids = append(ids, feed.ID)
		}
	}

	cursors := make(map[int64]ingest.Cursor, len(ids))
	if len(ids) == 0 {
		return cursors, nil
	}

	latest, err := s.items.LatestPublished(ctx, ids)
	if err != nil {
		return nil, err
	}
	for id, t := range latest {
		cursors[id] = ingest.Cursor{Latest: t, Known: true}
	}
	return cursors, nil
}

// fetchAll fetches and parses feeds on a bounded pool. Results keep the
// order of feeds.
func (s *SyncService) fetchAll(ctx context.Context, feeds []domain.Feed, proxy *string) []fetchResult {
	results := make([]fetchResult, len(feeds))
	for i := range results {
		results[i].err = errNotFetched
	}

	wg := syncs.NewSizedGroup(s.config.Concurrency, syncs.Context(ctx), syncs.Preemptive)
	for i, feed := range feeds {
		wg.Go(func(ctx context.Context) {
			results[i] = s.fetchFeed(ctx, feed, proxy)
		})
	}
	wg.Wait()

	return results
}

func (s *SyncService) fetchFeed(ctx context.Context, feed domain.Feed, proxy *string) fetchResult {
	if err := ctx.Err(); err != nil {
		return fetchResult{err: err}
	}

	content, err := s.fetcher.Fetch(ctx, feed.Link, proxy)
	if err != nil {
		return fetchResult{err: fmt.Errorf("fetch feed: %w", err)}
	}

	parsed, err := syndication.Parse(content)
	if err != nil {
		return fetchResult{err: fmt.Errorf("parse feed: %w", err)}
	}

	return fetchResult{entries: parsed.Entries()}
}

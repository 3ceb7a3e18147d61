package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"feedsync/internal/domain"
	"feedsync/internal/syndication"
)

var ErrEmptyLink = errors.New("feed link is empty")

type FeedService struct {
	feeds    FeedStore
	settings SettingsStore
	fetcher  Fetcher
	resolver Resolver
	syncer   FeedSyncer
	logger   *slog.Logger
}

func NewFeedService(
	feeds FeedStore,
	settings SettingsStore,
	fetcher Fetcher,
	resolver Resolver,
	syncer FeedSyncer,
	logger *slog.Logger,
) *FeedService {
	return &FeedService{
		feeds:    feeds,
		settings: settings,
		fetcher:  fetcher,
		resolver: resolver,
		syncer:   syncer,
		logger:   logger.With("component", "feeds"),
	}
}

// SubscribeResult is a newly created feed and the items its first sync stored.
type SubscribeResult struct {
	Feed     domain.Feed   `json:"feed"`
	Inserted []domain.Item `json:"inserted"`
}

// Subscribe resolves req.Link to a feed URL, stores the feed under the
// document's title and imports its entries right away. A failing first
// sync does not undo the subscription.
func (s *FeedService) Subscribe(ctx context.Context, req domain.FeedToCreate) (*SubscribeResult, error) {
	link := strings.TrimSpace(req.Link)
	if link == "" {
		return nil, ErrEmptyLink
	}

	settings, err := s.settings.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	proxy := settings.ProxyURL()

	feedURL, err := s.resolver.Resolve(ctx, link, proxy)
	if err != nil {
		return nil, fmt.Errorf("resolve feed link: %w", err)
	}

	content, err := s.fetcher.Fetch(ctx, feedURL, proxy)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}

	parsed, err := syndication.Parse(content)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = strings.TrimSpace(parsed.Title())
	}
	if title == "" {
		title = feedURL
	}

	fetchOld := settings.FetchOldItems
	if req.FetchOldItems != nil {
		fetchOld = *req.FetchOldItems
	}

	feed, err := s.feeds.Create(ctx, domain.FeedToCreate{
		Title:         title,
		Link:          feedURL,
		FetchOldItems: &fetchOld,
	})
	if err != nil {
		return nil, fmt.Errorf("create feed: %w", err)
	}

	s.logger.Info("subscribed to feed",
		"feed_id", feed.ID,
		"feed_url", feed.Link,
		"format", parsed.Kind.String(),
		"mode", feed.Mode().String(),
	)

	res := &SubscribeResult{Feed: feed, Inserted: []domain.Item{}}

	synced, err := s.syncer.SyncFeed(ctx, feed)
	if synced != nil {
		res.Inserted = synced.Inserted
	}
	if err != nil {
		s.logger.Warn("initial sync failed", "feed_id", feed.ID, "inserted", len(res.Inserted), "error", err)
	}

	return res, nil
}

func (s *FeedService) Get(ctx context.Context, id int64) (domain.Feed, error) {
	return s.feeds.Get(ctx, id)
}

func (s *FeedService) List(ctx context.Context) ([]domain.Feed, error) {
	return s.feeds.List(ctx)
}

func (s *FeedService) Update(ctx context.Context, upd domain.FeedToUpdate) (domain.Feed, error) {
	if upd.Status != nil && !upd.Status.Valid() {
		return domain.Feed{}, fmt.Errorf("%w: status %q", ErrInvalidInput, *upd.Status)
	}
	return s.feeds.Update(ctx, upd)
}

func (s *FeedService) Delete(ctx context.Context, id int64) error {
	return s.feeds.Delete(ctx, id)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"feedsync/internal/domain"
	"feedsync/internal/service/mocks"
	"feedsync/internal/syndication"
)

type FeedServiceTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	feeds    *mocks.MockFeedStore
	settings *mocks.MockSettingsStore
	fetcher  *mocks.MockFetcher
	resolver *mocks.MockResolver
	syncer   *mocks.MockFeedSyncer

	service *FeedService
}

func (s *FeedServiceTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.feeds = mocks.NewMockFeedStore(s.ctrl)
	s.settings = mocks.NewMockSettingsStore(s.ctrl)
	s.fetcher = mocks.NewMockFetcher(s.ctrl)
	s.resolver = mocks.NewMockResolver(s.ctrl)
	s.syncer = mocks.NewMockFeedSyncer(s.ctrl)

	s.service = NewFeedService(
		s.feeds,
		s.settings,
		s.fetcher,
		s.resolver,
		s.syncer,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
}

func (s *FeedServiceTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestFeedServiceTestSuite(t *testing.T) {
	suite.Run(t, new(FeedServiceTestSuite))
}

const (
	pageURL = "https://blog.example/"
	feedURL = "https://blog.example/feed.xml"
)

func (s *FeedServiceTestSuite) TestSubscribe() {
	ctx := context.Background()
	settings := domain.DefaultSettings()
	settings.FetchOldItems = false

	s.settings.EXPECT().Load(ctx).Return(settings, nil)
	s.resolver.EXPECT().Resolve(ctx, pageURL, nil).Return(feedURL, nil)
	s.fetcher.EXPECT().Fetch(ctx, feedURL, nil).Return(rssDoc(testEntry{title: "hello", link: "https://blog.example/1"}), nil)

	created := domain.Feed{ID: 3, Title: "Test feed", Link: feedURL, Status: domain.FeedSubscribed}
	s.feeds.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, req domain.FeedToCreate) (domain.Feed, error) {
			s.Equal("Test feed", req.Title)
			s.Equal(feedURL, req.Link)
			s.Require().NotNil(req.FetchOldItems)
			s.False(*req.FetchOldItems, "default comes from settings")
			return created, nil
		},
	)
	s.syncer.EXPECT().SyncFeed(ctx, created).Return(&domain.SyncResult{
		Inserted: []domain.Item{{ID: 1, Title: "hello"}},
	}, nil)

	res, err := s.service.Subscribe(ctx, domain.FeedToCreate{Link: "  " + pageURL + " "})

	s.Require().NoError(err)
	s.Equal(created, res.Feed)
	s.Len(res.Inserted, 1)
}

func (s *FeedServiceTestSuite) TestSubscribe_ExplicitOptions() {
	ctx := context.Background()

	s.settings.EXPECT().Load(ctx).Return(domain.DefaultSettings(), nil)
	s.resolver.EXPECT().Resolve(ctx, feedURL, nil).Return(feedURL, nil)
	s.fetcher.EXPECT().Fetch(ctx, feedURL, nil).Return(rssDoc(), nil)
	s.feeds.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, req domain.FeedToCreate) (domain.Feed, error) {
			s.Equal("My name", req.Title)
			s.False(*req.FetchOldItems)
			return domain.Feed{ID: 1, Title: req.Title, Link: req.Link}, nil
		},
	)
	s.syncer.EXPECT().SyncFeed(ctx, gomock.Any()).Return(&domain.SyncResult{}, nil)

	fetchOld := false
	_, err := s.service.Subscribe(ctx, domain.FeedToCreate{Title: "My name", Link: feedURL, FetchOldItems: &fetchOld})
	s.NoError(err)
}

func (s *FeedServiceTestSuite) TestSubscribe_EmptyLink() {
	_, err := s.service.Subscribe(context.Background(), domain.FeedToCreate{Link: "   "})
	s.ErrorIs(err, ErrEmptyLink)
}

func (s *FeedServiceTestSuite) TestSubscribe_NoFeedFound() {
	ctx := context.Background()

	s.settings.EXPECT().Load(ctx).Return(domain.DefaultSettings(), nil)
	s.resolver.EXPECT().Resolve(ctx, pageURL, nil).Return("", syndication.ErrNoFeedFound)

	_, err := s.service.Subscribe(ctx, domain.FeedToCreate{Link: pageURL})
	s.ErrorIs(err, syndication.ErrNoFeedFound)
}

func (s *FeedServiceTestSuite) TestSubscribe_AlreadyExists() {
	ctx := context.Background()

	s.settings.EXPECT().Load(ctx).Return(domain.DefaultSettings(), nil)
	s.resolver.EXPECT().Resolve(ctx, feedURL, nil).Return(feedURL, nil)
	s.fetcher.EXPECT().Fetch(ctx, feedURL, nil).Return(rssDoc(), nil)
	s.feeds.EXPECT().Create(ctx, gomock.Any()).Return(domain.Feed{}, domain.ErrFeedExists)

	_, err := s.service.Subscribe(ctx, domain.FeedToCreate{Link: feedURL})
	s.ErrorIs(err, domain.ErrFeedExists)
}

func (s *FeedServiceTestSuite) TestSubscribe_InitialSyncFailureKeepsFeed() {
	ctx := context.Background()
	created := domain.Feed{ID: 1, Title: "Test feed", Link: feedURL}

	s.settings.EXPECT().Load(ctx).Return(domain.DefaultSettings(), nil)
	s.resolver.EXPECT().Resolve(ctx, feedURL, nil).Return(feedURL, nil)
	s.fetcher.EXPECT().Fetch(ctx, feedURL, nil).Return(rssDoc(), nil)
	s.feeds.EXPECT().Create(ctx, gomock.Any()).Return(created, nil)
	s.syncer.EXPECT().SyncFeed(ctx, created).Return(nil, errors.New("db down"))

	res, err := s.service.Subscribe(ctx, domain.FeedToCreate{Link: feedURL})
	s.Require().NoError(err)
	s.Equal(created, res.Feed)
	s.Empty(res.Inserted)
}

func (s *FeedServiceTestSuite) TestSubscribe_InterruptedInitialSyncKeepsInserted() {
	ctx := context.Background()
	created := domain.Feed{ID: 1, Title: "Test feed", Link: feedURL}

	s.settings.EXPECT().Load(ctx).Return(domain.DefaultSettings(), nil)
	s.resolver.EXPECT().Resolve(ctx, feedURL, nil).Return(feedURL, nil)
	s.fetcher.EXPECT().Fetch(ctx, feedURL, nil).Return(rssDoc(), nil)
	s.feeds.EXPECT().Create(ctx, gomock.Any()).Return(created, nil)
	s.syncer.EXPECT().SyncFeed(ctx, created).Return(&domain.SyncResult{
		Inserted: []domain.Item{{ID: 4, Title: "stored before cancel"}},
	}, fmt.Errorf("sync interrupted: %w", context.Canceled))

	res, err := s.service.Subscribe(ctx, domain.FeedToCreate{Link: feedURL})
	s.Require().NoError(err)
	s.Equal(created, res.Feed)
	s.Require().Len(res.Inserted, 1)
	s.Equal(int64(4), res.Inserted[0].ID)
}

func (s *FeedServiceTestSuite) TestUpdate_InvalidStatus() {
	status := domain.FeedStatus("paused")
	_, err := s.service.Update(context.Background(), domain.FeedToUpdate{ID: 1, Status: &status})
	s.ErrorIs(err, ErrInvalidInput)
}

func (s *FeedServiceTestSuite) TestUpdate() {
	ctx := context.Background()
	status := domain.FeedUnsubscribed
	upd := domain.FeedToUpdate{ID: 1, Status: &status}

	s.feeds.EXPECT().Update(ctx, upd).Return(domain.Feed{ID: 1, Status: status}, nil)

	feed, err := s.service.Update(ctx, upd)
	s.NoError(err)
	s.Equal(status, feed.Status)
}

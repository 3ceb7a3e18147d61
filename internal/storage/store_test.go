package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"feedsync/internal/domain"
)

func ptr[T any](v T) *T {
	return &v
}

// storeSuite holds the store tests shared by every driver.
type storeSuite struct {
	suite.Suite
	ctx context.Context

	db       *DB
	feeds    *FeedStore
	items    *ItemStore
	settings *SettingStore
	tx       *TransactionManager
}

func (s *storeSuite) use(db *DB) {
	s.db = db
	s.feeds = NewFeedStore(db)
	s.items = NewItemStore(db)
	s.settings = NewSettingStore(db)
	s.tx = NewTransactionManager(db)
}

func (s *storeSuite) createFeed(link string, fetchOld bool) domain.Feed {
	feed, err := s.feeds.Create(s.ctx, domain.FeedToCreate{
		Title:         "Feed " + link,
		Link:          link,
		FetchOldItems: &fetchOld,
	})
	s.Require().NoError(err)
	return feed
}

func (s *storeSuite) insertItem(feedID int64, title string, published time.Time) domain.Item {
	item, err := s.items.Insert(s.ctx, domain.ItemToCreate{
		Fingerprint: fmt.Sprintf("%d-%s", feedID, title),
		Title:       title,
		Link:        "https://example.com/" + title,
		Status:      domain.ItemUnread,
		PublishedAt: published,
		FeedID:      feedID,
	})
	s.Require().NoError(err)
	return item
}

func titles(items []domain.Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Title)
	}
	return out
}

var (
	t1 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 = t1.Add(time.Hour)
	t3 = t2.Add(time.Hour)
)

func (s *storeSuite) TestFeedStore_CreateAndGet() {
	feed := s.createFeed("https://a.example/feed", false)

	s.Greater(feed.ID, int64(0))
	s.Equal("https://a.example/feed", feed.Link)
	s.Equal(domain.FeedSubscribed, feed.Status)
	s.False(feed.FetchOldItems)
	s.Equal(domain.BacklogSkip, feed.Mode())
	s.False(feed.CheckedAt.IsZero())

	got, err := s.feeds.Get(s.ctx, feed.ID)
	s.NoError(err)
	s.Equal(feed.Link, got.Link)
}

func (s *storeSuite) TestFeedStore_CreateDuplicateLink() {
	s.createFeed("https://a.example/feed", true)

	_, err := s.feeds.Create(s.ctx, domain.FeedToCreate{Title: "again", Link: "https://a.example/feed"})
	s.ErrorIs(err, domain.ErrFeedExists)
}

func (s *storeSuite) TestFeedStore_GetNotFound() {
	_, err := s.feeds.Get(s.ctx, 4242)
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *storeSuite) TestFeedStore_ListSubscribed() {
	a := s.createFeed("https://a.example/feed", true)
	b := s.createFeed("https://b.example/feed", true)

	_, err := s.feeds.Update(s.ctx, domain.FeedToUpdate{ID: a.ID, Status: ptr(domain.FeedUnsubscribed)})
	s.Require().NoError(err)

	subscribed, err := s.feeds.ListSubscribed(s.ctx)
	s.NoError(err)
	s.Len(subscribed, 1)
	s.Equal(b.ID, subscribed[0].ID)

	all, err := s.feeds.List(s.ctx)
	s.NoError(err)
	s.Len(all, 2)
}

func (s *storeSuite) TestFeedStore_UpdatePartial() {
	feed := s.createFeed("https://a.example/feed", true)

	updated, err := s.feeds.Update(s.ctx, domain.FeedToUpdate{ID: feed.ID, FetchOldItems: ptr(false)})
	s.NoError(err)
	s.False(updated.FetchOldItems)
	s.Equal(domain.FeedSubscribed, updated.Status)

	_, err = s.feeds.Update(s.ctx, domain.FeedToUpdate{ID: 999, FetchOldItems: ptr(false)})
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *storeSuite) TestFeedStore_UpdateCheckedAt() {
	feed := s.createFeed("https://a.example/feed", true)

	s.NoError(s.feeds.UpdateCheckedAt(s.ctx, feed.ID, t1))

	got, err := s.feeds.Get(s.ctx, feed.ID)
	s.NoError(err)
	s.True(got.CheckedAt.Equal(t1), "checked_at = %s", got.CheckedAt)

	s.ErrorIs(s.feeds.UpdateCheckedAt(s.ctx, 999, t1), domain.ErrNotFound)
}

func (s *storeSuite) TestFeedStore_DeleteCascadesItems() {
	feed := s.createFeed("https://a.example/feed", true)
	other := s.createFeed("https://b.example/feed", true)
	s.insertItem(feed.ID, "one", t1)
	s.insertItem(feed.ID, "two", t2)
	s.insertItem(other.ID, "three", t3)

	s.NoError(s.feeds.Delete(s.ctx, feed.ID))

	count, err := s.items.Count(s.ctx, domain.ItemReadOption{})
	s.NoError(err)
	s.Equal(int64(1), count)

	s.ErrorIs(s.feeds.Delete(s.ctx, feed.ID), domain.ErrNotFound)
}

func (s *storeSuite) TestItemStore_InsertAndGet() {
	feed := s.createFeed("https://a.example/feed", true)

	item, err := s.items.Insert(s.ctx, domain.ItemToCreate{
		Fingerprint: "fp-1",
		Author:      ptr("Alice"),
		Title:       "Hello",
		Description: "<p>body</p>",
		Link:        "https://a.example/1",
		Status:      domain.ItemUnread,
		PublishedAt: t1,
		FeedID:      feed.ID,
	})
	s.Require().NoError(err)

	s.Greater(item.ID, int64(0))
	s.Equal("fp-1", item.Fingerprint)
	s.Equal("Alice", *item.Author)
	s.Equal(domain.ItemUnread, item.Status)
	s.False(item.IsSaved)
	s.True(item.PublishedAt.Equal(t1))
	s.Equal(feed.ID, item.Feed.ID)
	s.Equal(feed.Title, item.Feed.Title)
	s.Equal(feed.Link, item.Feed.Link)
}

func (s *storeSuite) TestItemStore_InsertDuplicateFingerprint() {
	feed := s.createFeed("https://a.example/feed", true)
	other := s.createFeed("https://b.example/feed", true)

	toCreate := domain.ItemToCreate{
		Fingerprint: "same",
		Title:       "Hello",
		Link:        "#",
		Status:      domain.ItemUnread,
		PublishedAt: t1,
		FeedID:      feed.ID,
	}
	_, err := s.items.Insert(s.ctx, toCreate)
	s.Require().NoError(err)

	toCreate.FeedID = other.ID
	_, err = s.items.Insert(s.ctx, toCreate)
	s.ErrorIs(err, domain.ErrDuplicateFingerprint)

	count, err := s.items.Count(s.ctx, domain.ItemReadOption{})
	s.NoError(err)
	s.Equal(int64(1), count)
}

func (s *storeSuite) TestItemStore_LatestPublished() {
	a := s.createFeed("https://a.example/feed", false)
	b := s.createFeed("https://b.example/feed", false)
	empty := s.createFeed("https://c.example/feed", false)

	s.insertItem(a.ID, "a1", t1)
	s.insertItem(a.ID, "a3", t3)
	s.insertItem(a.ID, "a2", t2)
	s.insertItem(b.ID, "b1", t1)

	latest, err := s.items.LatestPublished(s.ctx, []int64{a.ID, b.ID, empty.ID})
	s.NoError(err)
	s.Len(latest, 2)
	s.True(latest[a.ID].Equal(t3))
	s.True(latest[b.ID].Equal(t1))
	_, ok := latest[empty.ID]
	s.False(ok)

	none, err := s.items.LatestPublished(s.ctx, nil)
	s.NoError(err)
	s.Empty(none)
}

func (s *storeSuite) TestItemStore_ListOrders() {
	feed := s.createFeed("https://a.example/feed", true)
	old := s.insertItem(feed.ID, "late-received-old", t1)
	s.insertItem(feed.ID, "newest", t3)
	s.insertItem(feed.ID, "middle", t2)

	_, err := s.items.Update(s.ctx, domain.ItemToUpdate{ID: old.ID, Status: ptr(domain.ItemRead)})
	s.Require().NoError(err)

	items, err := s.items.List(s.ctx, domain.ItemReadOption{})
	s.NoError(err)
	s.Equal([]string{"middle", "newest", "late-received-old"}, titles(items))

	items, err = s.items.List(s.ctx, domain.ItemReadOption{OrderBy: ptr(domain.OrderPublishedDateDesc)})
	s.NoError(err)
	s.Equal([]string{"newest", "middle", "late-received-old"}, titles(items))

	_, err = s.items.Update(s.ctx, domain.ItemToUpdate{ID: old.ID, Status: ptr(domain.ItemUnread)})
	s.Require().NoError(err)
	newest := items[0]
	_, err = s.items.Update(s.ctx, domain.ItemToUpdate{ID: newest.ID, Status: ptr(domain.ItemRead)})
	s.Require().NoError(err)

	items, err = s.items.List(s.ctx, domain.ItemReadOption{OrderBy: ptr(domain.OrderUnreadFirst)})
	s.NoError(err)
	s.Equal([]string{"middle", "late-received-old", "newest"}, titles(items))
}

func (s *storeSuite) TestItemStore_ListFilters() {
	a := s.createFeed("https://a.example/feed", true)
	b := s.createFeed("https://b.example/feed", true)
	a1 := s.insertItem(a.ID, "a1", t1)
	a2 := s.insertItem(a.ID, "a2", t2)
	s.insertItem(b.ID, "b1", t3)

	_, err := s.items.Update(s.ctx, domain.ItemToUpdate{ID: a2.ID, IsSaved: ptr(true)})
	s.Require().NoError(err)

	items, err := s.items.List(s.ctx, domain.ItemReadOption{Feed: &a.ID})
	s.NoError(err)
	s.ElementsMatch([]string{"a1", "a2"}, titles(items))

	items, err = s.items.List(s.ctx, domain.ItemReadOption{IsSaved: ptr(true)})
	s.NoError(err)
	s.Equal([]string{"a2"}, titles(items))

	items, err = s.items.List(s.ctx, domain.ItemReadOption{IDs: []int64{a1.ID, a2.ID}, Status: ptr(domain.ItemUnread)})
	s.NoError(err)
	s.ElementsMatch([]string{"a1", "a2"}, titles(items))

	count, err := s.items.Count(s.ctx, domain.ItemReadOption{Feed: &b.ID})
	s.NoError(err)
	s.Equal(int64(1), count)
}

func (s *storeSuite) TestItemStore_ListPagination() {
	feed := s.createFeed("https://a.example/feed", true)
	for i := range 5 {
		s.insertItem(feed.ID, fmt.Sprintf("item-%d", i), t1.Add(time.Duration(i)*time.Minute))
	}

	page, err := s.items.List(s.ctx, domain.ItemReadOption{Limit: ptr(uint64(2)), Offset: ptr(uint64(1))})
	s.NoError(err)
	s.Equal([]string{"item-2", "item-1"}, titles(page))

	page, err = s.items.List(s.ctx, domain.ItemReadOption{Limit: ptr(uint64(2)), Offset: ptr(uint64(2))})
	s.NoError(err)
	s.Equal([]string{"item-0"}, titles(page))

	rest, err := s.items.List(s.ctx, domain.ItemReadOption{Offset: ptr(uint64(3))})
	s.NoError(err)
	s.Equal([]string{"item-1", "item-0"}, titles(rest))
}

func (s *storeSuite) TestItemStore_Update() {
	feed := s.createFeed("https://a.example/feed", true)
	item := s.insertItem(feed.ID, "one", t1)

	updated, err := s.items.Update(s.ctx, domain.ItemToUpdate{ID: item.ID, Status: ptr(domain.ItemRead), IsSaved: ptr(true)})
	s.NoError(err)
	s.Equal(domain.ItemRead, updated.Status)
	s.True(updated.IsSaved)

	_, err = s.items.Update(s.ctx, domain.ItemToUpdate{ID: 999, IsSaved: ptr(true)})
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *storeSuite) TestItemStore_UpdateAll() {
	a := s.createFeed("https://a.example/feed", true)
	b := s.createFeed("https://b.example/feed", true)
	s.insertItem(a.ID, "a1", t1)
	s.insertItem(a.ID, "a2", t2)
	s.insertItem(b.ID, "b1", t3)

	n, err := s.items.UpdateAll(s.ctx, domain.ItemToUpdateAll{
		Status: ptr(domain.ItemRead),
		Opt:    &domain.ItemReadOption{Feed: &a.ID},
	})
	s.NoError(err)
	s.Equal(int64(2), n)

	unread, err := s.items.Count(s.ctx, domain.ItemReadOption{Status: ptr(domain.ItemUnread)})
	s.NoError(err)
	s.Equal(int64(1), unread)

	n, err = s.items.UpdateAll(s.ctx, domain.ItemToUpdateAll{IsSaved: ptr(true)})
	s.NoError(err)
	s.Equal(int64(3), n)

	n, err = s.items.UpdateAll(s.ctx, domain.ItemToUpdateAll{})
	s.NoError(err)
	s.Zero(n)
}

func (s *storeSuite) TestSettingStore_Defaults() {
	settings, err := s.settings.Load(s.ctx)
	s.NoError(err)
	s.Equal(domain.DefaultSettings(), settings)

	rows, err := s.settings.List(s.ctx)
	s.NoError(err)
	s.Len(rows, len(domain.SettingKeys))
}

func (s *storeSuite) TestSettingStore_Save() {
	s.NoError(s.settings.Save(s.ctx, domain.Setting{Key: domain.SettingPollingFrequency, Value: "60"}))
	s.NoError(s.settings.Save(s.ctx, domain.Setting{Key: domain.SettingProxy, Value: "http://127.0.0.1:8080"}))

	got, err := s.settings.Get(s.ctx, domain.SettingPollingFrequency)
	s.NoError(err)
	s.Equal("60", got.Value)

	settings, err := s.settings.Load(s.ctx)
	s.NoError(err)
	s.Equal(60*time.Second, settings.PollingFrequency)
	s.Equal("http://127.0.0.1:8080", *settings.ProxyURL())

	err = s.settings.Save(s.ctx, domain.Setting{Key: domain.SettingPollingFrequency, Value: "10"})
	s.ErrorIs(err, domain.ErrInvalidSetting)

	err = s.settings.Save(s.ctx, domain.Setting{Key: "unknown", Value: "x"})
	s.ErrorIs(err, domain.ErrInvalidSetting)
}

func (s *storeSuite) TestTransactionManager_Rollback() {
	errBoom := errors.New("boom")

	err := s.tx.WithTransaction(s.ctx, func(ctx context.Context) error {
		if _, err := s.feeds.Create(ctx, domain.FeedToCreate{Title: "t", Link: "https://a.example/feed"}); err != nil {
			return err
		}
		return errBoom
	})
	s.ErrorIs(err, errBoom)

	feeds, err := s.feeds.List(s.ctx)
	s.NoError(err)
	s.Empty(feeds)
}

func (s *storeSuite) TestTransactionManager_Commit() {
	err := s.tx.WithTransaction(s.ctx, func(ctx context.Context) error {
		feed, err := s.feeds.Create(ctx, domain.FeedToCreate{Title: "t", Link: "https://a.example/feed"})
		if err != nil {
			return err
		}
		_, err = s.items.Insert(ctx, domain.ItemToCreate{
			Fingerprint: "fp", Title: "x", Link: "#", Status: domain.ItemUnread, PublishedAt: t1, FeedID: feed.ID,
		})
		return err
	})
	s.NoError(err)

	count, err := s.items.Count(s.ctx, domain.ItemReadOption{})
	s.NoError(err)
	s.Equal(int64(1), count)
}

type SQLiteStoreTestSuite struct {
	storeSuite
}

func (s *SQLiteStoreTestSuite) SetupTest() {
	s.ctx = context.Background()

	path := filepath.Join(s.T().TempDir(), "feedsync.db")
	db, err := Open(s.ctx, Config{Driver: DriverSQLite, DSN: SQLiteDSN(path)})
	s.Require().NoError(err)
	s.Require().NoError(db.Migrate(s.ctx, slog.New(slog.NewTextHandler(io.Discard, nil))))

	s.use(db)
}

func (s *SQLiteStoreTestSuite) TearDownTest() {
	if s.db != nil {
		s.db.Close()
	}
}

func TestSQLiteStoreTestSuite(t *testing.T) {
	suite.Run(t, new(SQLiteStoreTestSuite))
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "mysql", DSN: "x"})
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

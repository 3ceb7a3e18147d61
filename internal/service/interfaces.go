package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"feedsync/internal/domain"
)

type FeedStore interface {
	ListSubscribed(ctx context.Context) ([]domain.Feed, error)
	UpdateCheckedAt(ctx context.Context, id int64, at time.Time) error
	Create(ctx context.Context, feed domain.FeedToCreate) (domain.Feed, error)
	Get(ctx context.Context, id int64) (domain.Feed, error)
	List(ctx context.Context) ([]domain.Feed, error)
	Update(ctx context.Context, upd domain.FeedToUpdate) (domain.Feed, error)
	Delete(ctx context.Context, id int64) error
}

type ItemStore interface {
	LatestPublished(ctx context.Context, feedIDs []int64) (map[int64]time.Time, error)
	Insert(ctx context.Context, item domain.ItemToCreate) (domain.Item, error)
}

type SettingsStore interface {
	Load(ctx context.Context) (domain.Settings, error)
	Save(ctx context.Context, setting domain.Setting) error
}

type Fetcher interface {
	Fetch(ctx context.Context, url string, proxy *string) ([]byte, error)
}

type Resolver interface {
	Resolve(ctx context.Context, url string, proxy *string) (string, error)
}

type FeedSyncer interface {
	SyncFeed(ctx context.Context, feed domain.Feed) (*domain.SyncResult, error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

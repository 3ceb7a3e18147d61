package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"feedsync/internal/domain"
)

const feedColumns = `id, title, link, status, checked_at, fetch_old_items`

type FeedStore struct {
	db *DB
}

func NewFeedStore(db *DB) *FeedStore {
	return &FeedStore{db: db}
}

// Create inserts a subscribed feed. A feed with the same link yields
// domain.ErrFeedExists.
func (s *FeedStore) Create(ctx context.Context, feed domain.FeedToCreate) (domain.Feed, error) {
	fetchOld := true
	if feed.FetchOldItems != nil {
		fetchOld = *feed.FetchOldItems
	}

	query := s.db.rebind(`
		INSERT INTO feeds (title, link, status, checked_at, fetch_old_items)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (link) DO NOTHING
		RETURNING id`)

	var id int64
	err := s.db.write(ctx, func(ext sqlx.ExtContext) error {
		return ext.QueryRowxContext(ctx, query,
			feed.Title,
			feed.Link,
			domain.FeedSubscribed,
			time.Now().UTC(),
			fetchOld,
		).Scan(&id)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Feed{}, domain.ErrFeedExists
	}
	if err != nil {
		return domain.Feed{}, fmt.Errorf("insert feed: %w", err)
	}

	return s.Get(ctx, id)
}

func (s *FeedStore) Get(ctx context.Context, id int64) (domain.Feed, error) {
	var feed domain.Feed
	query := s.db.rebind(`SELECT ` + feedColumns + ` FROM feeds WHERE id = ?`)

	err := sqlx.GetContext(ctx, s.db.executor(ctx), &feed, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Feed{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Feed{}, fmt.Errorf("get feed %d: %w", id, err)
	}
	return feed, nil
}

func (s *FeedStore) List(ctx context.Context) ([]domain.Feed, error) {
	feeds := []domain.Feed{}
	query := `SELECT ` + feedColumns + ` FROM feeds ORDER BY id`

	if err := sqlx.SelectContext(ctx, s.db.executor(ctx), &feeds, query); err != nil {
		return nil, fmt.Errorf("list feeds: %w", err)
	}
	return feeds, nil
}

// ListSubscribed returns the feeds a sync cycle should visit, in id order.
func (s *FeedStore) ListSubscribed(ctx context.Context) ([]domain.Feed, error) {
	feeds := []domain.Feed{}
	query := s.db.rebind(`SELECT ` + feedColumns + ` FROM feeds WHERE status = ? ORDER BY id`)

	if err := sqlx.SelectContext(ctx, s.db.executor(ctx), &feeds, query, domain.FeedSubscribed); err != nil {
		return nil, fmt.Errorf("list subscribed feeds: %w", err)
	}
	return feeds, nil
}

func (s *FeedStore) UpdateCheckedAt(ctx context.Context, id int64, at time.Time) error {
	query := s.db.rebind(`UPDATE feeds SET checked_at = ? WHERE id = ?`)

	return s.db.write(ctx, func(ext sqlx.ExtContext) error {
		res, err := ext.ExecContext(ctx, query, at.UTC(), id)
		if err != nil {
			return fmt.Errorf("update checked_at: %w", err)
		}
		return expectAffected(res)
	})
}

// Update changes the non-nil fields of upd and returns the stored feed.
func (s *FeedStore) Update(ctx context.Context, upd domain.FeedToUpdate) (domain.Feed, error) {
	var checkedAt *time.Time
	if upd.CheckedAt != nil {
		t := upd.CheckedAt.UTC()
		checkedAt = &t
	}

	query := s.db.rebind(`
		UPDATE feeds SET
			status = COALESCE(?, status),
			fetch_old_items = COALESCE(?, fetch_old_items),
			checked_at = COALESCE(?, checked_at)
		WHERE id = ?`)

	err := s.db.write(ctx, func(ext sqlx.ExtContext) error {
		res, err := ext.ExecContext(ctx, query, upd.Status, upd.FetchOldItems, checkedAt, upd.ID)
		if err != nil {
			return fmt.Errorf("update feed: %w", err)
		}
		return expectAffected(res)
	})
	if err != nil {
		return domain.Feed{}, err
	}

	return s.Get(ctx, upd.ID)
}

// Delete removes a feed together with its items.
func (s *FeedStore) Delete(ctx context.Context, id int64) error {
	query := s.db.rebind(`DELETE FROM feeds WHERE id = ?`)

	return s.db.write(ctx, func(ext sqlx.ExtContext) error {
		res, err := ext.ExecContext(ctx, query, id)
		if err != nil {
			return fmt.Errorf("delete feed: %w", err)
		}
		return expectAffected(res)
	})
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"feedsync/internal/domain"
)

const itemSelect = `
	SELECT
		items.id, items.fingerprint, items.author, items.title, items.description,
		items.link, items.status, items.is_saved, items.published_at,
		feeds.id AS feed_id, feeds.title AS feed_title, feeds.link AS feed_link
	FROM items
	JOIN feeds ON feeds.id = items.feed_id`

type itemRow struct {
	domain.Item
	domain.ItemFeed
}

func (r itemRow) toDomain() domain.Item {
	item := r.Item
	item.Feed = r.ItemFeed
	return item
}

type ItemStore struct {
	db *DB
}

func NewItemStore(db *DB) *ItemStore {
	return &ItemStore{db: db}
}

// Insert stores a new item. An item whose fingerprint is already stored
// yields domain.ErrDuplicateFingerprint and leaves the table untouched.
func (s *ItemStore) Insert(ctx context.Context, item domain.ItemToCreate) (domain.Item, error) {
	query := s.db.rebind(`
		INSERT INTO items (
			fingerprint, author, title, description, link, status, is_saved, published_at, feed_id
		) VALUES (
			?, ?, ?, ?, ?, ?, ?, ?, ?
		)
		ON CONFLICT (fingerprint) DO NOTHING
		RETURNING id`)

	var id int64
	err := s.db.write(ctx, func(ext sqlx.ExtContext) error {
		return ext.QueryRowxContext(ctx, query,
			item.Fingerprint,
			item.Author,
			item.Title,
			item.Description,
			item.Link,
			item.Status,
			false,
			item.PublishedAt.UTC(),
			item.FeedID,
		).Scan(&id)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Item{}, domain.ErrDuplicateFingerprint
	}
	if err != nil {
		return domain.Item{}, fmt.Errorf("insert item: %w", err)
	}

	return s.Get(ctx, id)
}

// LatestPublished returns the newest published_at per feed. Feeds without
// items are absent from the result.
func (s *ItemStore) LatestPublished(ctx context.Context, feedIDs []int64) (map[int64]time.Time, error) {
	result := make(map[int64]time.Time, len(feedIDs))
	if len(feedIDs) == 0 {
		return result, nil
	}

	// The column is selected as is: an aggregate would lose its type on SQLite.
	query, args, err := sqlx.In(`
		SELECT feed_id, published_at FROM items
		WHERE feed_id IN (?)
		AND published_at = (
			SELECT MAX(i2.published_at) FROM items i2 WHERE i2.feed_id = items.feed_id
		)`, feedIDs)
	if err != nil {
		return nil, fmt.Errorf("build latest query: %w", err)
	}

	rows, err := s.db.executor(ctx).QueryContext(ctx, s.db.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query latest published: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			feedID int64
			latest time.Time
		)
		if err := rows.Scan(&feedID, &latest); err != nil {
			return nil, fmt.Errorf("scan latest published: %w", err)
		}
		result[feedID] = latest.UTC()
	}

	return result, rows.Err()
}

func (s *ItemStore) Get(ctx context.Context, id int64) (domain.Item, error) {
	var row itemRow
	query := s.db.rebind(itemSelect + ` WHERE items.id = ?`)

	err := sqlx.GetContext(ctx, s.db.executor(ctx), &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Item{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Item{}, fmt.Errorf("get item %d: %w", id, err)
	}
	return row.toDomain(), nil
}

// List returns the items matching opt, ordered by opt.OrderBy
// (received date, newest first, when unset).
func (s *ItemStore) List(ctx context.Context, opt domain.ItemReadOption) ([]domain.Item, error) {
	where, args := itemFilter(opt)

	var b strings.Builder
	b.WriteString(itemSelect)
	b.WriteString(where)
	b.WriteString(itemOrder(opt.OrderBy))
	args = append(args, s.pagination(&b, opt)...)

	query, args, err := sqlx.In(b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("build item query: %w", err)
	}

	var rows []itemRow
	if err := sqlx.SelectContext(ctx, s.db.executor(ctx), &rows, s.db.rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}

	items := make([]domain.Item, 0, len(rows))
	for _, r := range rows {
		items = append(items, r.toDomain())
	}
	return items, nil
}

// Count returns the number of items matching the filters of opt. Ordering
// and pagination are ignored.
func (s *ItemStore) Count(ctx context.Context, opt domain.ItemReadOption) (int64, error) {
	where, args := itemFilter(opt)

	query, args, err := sqlx.In(`SELECT COUNT(*) FROM items`+where, args...)
	if err != nil {
		return 0, fmt.Errorf("build count query: %w", err)
	}

	var count int64
	if err := sqlx.GetContext(ctx, s.db.executor(ctx), &count, s.db.rebind(query), args...); err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return count, nil
}

// Update changes the non-nil fields of upd and returns the stored item.
func (s *ItemStore) Update(ctx context.Context, upd domain.ItemToUpdate) (domain.Item, error) {
	query := s.db.rebind(`
		UPDATE items SET
			status = COALESCE(?, status),
			is_saved = COALESCE(?, is_saved)
		WHERE id = ?`)

	err := s.db.write(ctx, func(ext sqlx.ExtContext) error {
		res, err := ext.ExecContext(ctx, query, upd.Status, upd.IsSaved, upd.ID)
		if err != nil {
			return fmt.Errorf("update item: %w", err)
		}
		return expectAffected(res)
	})
	if err != nil {
		return domain.Item{}, err
	}

	return s.Get(ctx, upd.ID)
}

// UpdateAll applies status and saved flags to every item matched by
// upd.Opt (all items when nil) and returns the number of rows changed.
func (s *ItemStore) UpdateAll(ctx context.Context, upd domain.ItemToUpdateAll) (int64, error) {
	if upd.Status == nil && upd.IsSaved == nil {
		return 0, nil
	}

	var opt domain.ItemReadOption
	if upd.Opt != nil {
		opt = *upd.Opt
	}

	where, filterArgs := itemFilter(opt)

	var b strings.Builder
	b.WriteString(`UPDATE items SET status = COALESCE(?, status), is_saved = COALESCE(?, is_saved)
		WHERE id IN (SELECT items.id FROM items`)
	b.WriteString(where)
	args := append([]any{upd.Status, upd.IsSaved}, filterArgs...)
	if opt.Limit != nil {
		b.WriteString(itemOrder(opt.OrderBy))
		args = append(args, s.pagination(&b, opt)...)
	}
	b.WriteString(`)`)

	query, args, err := sqlx.In(b.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("build bulk update query: %w", err)
	}

	var affected int64
	err = s.db.write(ctx, func(ext sqlx.ExtContext) error {
		res, err := ext.ExecContext(ctx, s.db.rebind(query), args...)
		if err != nil {
			return fmt.Errorf("update items: %w", err)
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected, err
}

// itemFilter builds the WHERE clause for opt with "?" placeholders; an
// IN list is left for sqlx.In to expand.
func itemFilter(opt domain.ItemReadOption) (string, []any) {
	var (
		conds []string
		args  []any
	)

	if len(opt.IDs) > 0 {
		conds = append(conds, "items.id IN (?)")
		args = append(args, opt.IDs)
	}
	if opt.Feed != nil {
		conds = append(conds, "items.feed_id = ?")
		args = append(args, *opt.Feed)
	}
	if opt.Status != nil {
		conds = append(conds, "items.status = ?")
		args = append(args, *opt.Status)
	}
	if opt.IsSaved != nil {
		conds = append(conds, "items.is_saved = ?")
		args = append(args, *opt.IsSaved)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func itemOrder(order *domain.ItemOrder) string {
	o := domain.OrderReceivedDateDesc
	if order != nil {
		o = *order
	}

	switch o {
	case domain.OrderPublishedDateDesc:
		return " ORDER BY items.published_at DESC, items.id DESC"
	case domain.OrderUnreadFirst:
		return " ORDER BY CASE items.status WHEN 'unread' THEN 0 ELSE 1 END, items.published_at DESC, items.id DESC"
	default:
		return " ORDER BY items.id DESC, items.published_at DESC"
	}
}

// pagination appends LIMIT/OFFSET. With a limit, the offset counts pages.
func (s *ItemStore) pagination(b *strings.Builder, opt domain.ItemReadOption) []any {
	var args []any

	if opt.Limit != nil {
		b.WriteString(" LIMIT ?")
		args = append(args, *opt.Limit)
		if opt.Offset != nil {
			b.WriteString(" OFFSET ?")
			args = append(args, *opt.Offset * *opt.Limit)
		}
		return args
	}

	if opt.Offset != nil {
		if s.db.driver == DriverSQLite {
			b.WriteString(" LIMIT -1")
		}
		b.WriteString(" OFFSET ?")
		args = append(args, *opt.Offset)
	}
	return args
}

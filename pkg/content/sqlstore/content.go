package sqlstore

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/agentstation/freshen/pkg/content"
	"github.com/agentstation/freshen/pkg/errors"
)

var _ content.Store = (*Store)(nil)

const itemColumns = `content_key, module, section, data, source_type, source_url, confidence, notes,
	version, is_active, expires_at, refreshed_at, last_verified`

const upsertQuery = `INSERT INTO content_items (` + itemColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, TRUE, ?, ?, ?)
ON CONFLICT (content_key) DO UPDATE SET
	module = excluded.module,
	section = excluded.section,
	data = excluded.data,
	source_type = excluded.source_type,
	source_url = excluded.source_url,
	confidence = excluded.confidence,
	notes = excluded.notes,
	version = content_items.version + 1,
	is_active = TRUE,
	expires_at = excluded.expires_at,
	refreshed_at = excluded.refreshed_at,
	last_verified = excluded.last_verified`

const insertNewQuery = `INSERT INTO content_items (` + itemColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, TRUE, ?, ?, ?)
ON CONFLICT (content_key) DO NOTHING`

const updateVersionQuery = `UPDATE content_items SET
	module = ?, section = ?, data = ?, source_type = ?, source_url = ?, confidence = ?, notes = ?,
	version = version + 1, is_active = TRUE, expires_at = ?, refreshed_at = ?, last_verified = ?
WHERE content_key = ? AND version = ?`

// ModuleContent implements content.Reader.
func (s *Store) ModuleContent(ctx context.Context, module, section string) ([]content.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM content_items WHERE module = ? AND is_active = TRUE`
	args := []any{module}
	if section != "" {
		query += ` AND section = ?`
		args = append(args, section)
	}
	query += ` ORDER BY content_key`

	var items []content.Item
	if err := s.db.SelectContext(ctx, &items, s.db.Rebind(query), args...); err != nil {
		return nil, errors.WrapResource("list", "content items", module, err)
	}
	return normalize(items), nil
}

// Item implements content.Reader.
func (s *Store) Item(ctx context.Context, key string) (content.Item, bool, error) {
	it, err := getItem(ctx, s.db, key)
	if stderrors.Is(err, sql.ErrNoRows) {
		return content.Item{}, false, nil
	}
	if err != nil {
		return content.Item{}, false, errors.WrapResource("get", "content item", key, err)
	}
	return it, true, nil
}

func getItem(ctx context.Context, q sqlx.QueryerContext, key string) (content.Item, error) {
	var it content.Item
	query := sqlx.Rebind(sqlx.BindType(driverOf(q)), `SELECT `+itemColumns+` FROM content_items WHERE content_key = ?`)
	if err := sqlx.GetContext(ctx, q, &it, query, key); err != nil {
		return content.Item{}, err
	}
	return normalize([]content.Item{it})[0], nil
}

// Upsert implements content.Writer.
func (s *Store) Upsert(ctx context.Context, key, module, section string, data content.Document, meta content.Meta) (content.Item, error) {
	if err := content.ValidateWrite(key, module, data, meta); err != nil {
		return content.Item{}, err
	}
	var out content.Item
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		out, err = s.upsertTx(ctx, tx, key, module, section, data, meta)
		return err
	})
	if err != nil {
		return content.Item{}, errors.WrapResource("upsert", "content item", key, err)
	}
	return out, nil
}

func (s *Store) upsertTx(ctx context.Context, tx *sqlx.Tx, key, module, section string, data content.Document, meta content.Meta) (content.Item, error) {
	now := s.now()
	expires := s.expiry(module, now, meta)
	if _, err := tx.ExecContext(ctx, tx.Rebind(upsertQuery),
		key, module, section, data, string(meta.SourceType), meta.SourceURL, meta.Confidence, meta.Notes,
		expires, now, now,
	); err != nil {
		return content.Item{}, err
	}
	return getItem(ctx, tx, key)
}

// UpsertIfVersion implements content.Writer.
func (s *Store) UpsertIfVersion(ctx context.Context, key string, expected int, module, section string, data content.Document, meta content.Meta) (content.Item, error) {
	if err := content.ValidateWrite(key, module, data, meta); err != nil {
		return content.Item{}, err
	}

	var out content.Item
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		now := s.now()
		expires := s.expiry(module, now, meta)

		var res sql.Result
		var err error
		if expected == 0 {
			res, err = tx.ExecContext(ctx, tx.Rebind(insertNewQuery),
				key, module, section, data, string(meta.SourceType), meta.SourceURL, meta.Confidence, meta.Notes,
				expires, now, now,
			)
		} else {
			res, err = tx.ExecContext(ctx, tx.Rebind(updateVersionQuery),
				module, section, data, string(meta.SourceType), meta.SourceURL, meta.Confidence, meta.Notes,
				expires, now, now, key, expected,
			)
		}
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			actual := 0
			if cur, err := getItem(ctx, tx, key); err == nil {
				actual = cur.Version
			} else if !stderrors.Is(err, sql.ErrNoRows) {
				return err
			}
			return &errors.VersionConflictError{Key: key, Expected: expected, Actual: actual}
		}
		out, err = getItem(ctx, tx, key)
		return err
	})
	if err != nil {
		if errors.IsVersionConflict(err) {
			return content.Item{}, err
		}
		return content.Item{}, errors.WrapResource("upsert", "content item", key, err)
	}
	return out, nil
}

// BulkUpsert implements content.Writer. Every item commits in its own
// transaction; the first failure stops the batch.
func (s *Store) BulkUpsert(ctx context.Context, module string, items []content.Write, meta content.Meta) (int, error) {
	return content.BulkUpsert(ctx, s, module, items, meta)
}

// Deactivate implements content.Writer.
func (s *Store) Deactivate(ctx context.Context, module, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE content_items SET is_active = FALSE WHERE content_key = ? AND module = ? AND is_active = TRUE`),
		key, module)
	if err != nil {
		return false, errors.WrapResource("deactivate", "content item", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.WrapResource("deactivate", "content item", key, err)
	}
	return n > 0, nil
}

// ExpireStale implements content.Writer.
func (s *Store) ExpireStale(ctx context.Context, module string) (int, error) {
	query := `UPDATE content_items SET is_active = FALSE WHERE is_active = TRUE AND expires_at < ?`
	args := []any{s.now()}
	if module != "" {
		query += ` AND module = ?`
		args = append(args, module)
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return 0, errors.WrapResource("expire", "content items", module, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.WrapResource("expire", "content items", module, err)
	}
	return int(n), nil
}

type freshnessRow struct {
	SourceType content.SourceType `db:"source_type"`
	Total      int                `db:"total"`
	Active     int                `db:"active"`
	Stale      int                `db:"stale"`
	Expired    int                `db:"expired"`
}

// ModuleFreshness implements content.Reader.
func (s *Store) ModuleFreshness(ctx context.Context, module string) (content.Freshness, error) {
	now := s.now()
	var rows []freshnessRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`SELECT source_type,
	COUNT(*) AS total,
	SUM(CASE WHEN is_active THEN 1 ELSE 0 END) AS active,
	SUM(CASE WHEN is_active AND expires_at < ? THEN 1 ELSE 0 END) AS stale,
	SUM(CASE WHEN NOT is_active AND expires_at < ? THEN 1 ELSE 0 END) AS expired
FROM content_items WHERE module = ? GROUP BY source_type`), now, now, module)
	if err != nil {
		return content.Freshness{}, errors.WrapResource("aggregate", "content items", module, err)
	}

	f := content.Freshness{Module: module, SourceBreakdown: map[content.SourceType]int{}}
	for _, r := range rows {
		f.Total += r.Total
		f.Active += r.Active
		f.Stale += r.Stale
		f.Expired += r.Expired
		f.SourceBreakdown[r.SourceType] += r.Total
	}
	if f.Total == 0 {
		return f, nil
	}

	var last time.Time
	err = s.db.GetContext(ctx, &last, s.db.Rebind(
		`SELECT refreshed_at FROM content_items WHERE module = ? ORDER BY refreshed_at DESC LIMIT 1`), module)
	if err != nil {
		return content.Freshness{}, errors.WrapResource("aggregate", "content items", module, err)
	}
	last = last.UTC()
	f.LastRefreshed = &last
	return f, nil
}

func (s *Store) expiry(module string, now time.Time, meta content.Meta) time.Time {
	if meta.ExpiresAt != nil {
		return meta.ExpiresAt.UTC()
	}
	return s.policies.ExpiresAt(module, now).UTC()
}

// normalize puts timestamps in UTC whatever the driver's session zone.
func normalize(items []content.Item) []content.Item {
	for i := range items {
		items[i].ExpiresAt = items[i].ExpiresAt.UTC()
		items[i].RefreshedAt = items[i].RefreshedAt.UTC()
		items[i].LastVerified = items[i].LastVerified.UTC()
	}
	return items
}

func driverOf(q sqlx.QueryerContext) string {
	switch v := q.(type) {
	case *sqlx.DB:
		return v.DriverName()
	case *sqlx.Tx:
		return v.DriverName()
	}
	return DriverPostgres
}

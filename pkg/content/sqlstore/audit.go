package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/agentstation/freshen/pkg/audit"
	"github.com/agentstation/freshen/pkg/errors"
)

var _ audit.Log = (*Store)(nil)

type logRow struct {
	ID           string    `db:"id"`
	RunID        string    `db:"run_id"`
	Module       string    `db:"module"`
	RefreshType  string    `db:"refresh_type"`
	Status       string    `db:"status"`
	ItemsChecked int       `db:"items_checked"`
	ItemsUpdated int       `db:"items_updated"`
	ItemsCreated int       `db:"items_created"`
	ItemsExpired int       `db:"items_expired"`
	TokensUsed   int64     `db:"tokens_used"`
	DurationMS   int64     `db:"duration_ms"`
	ErrorMessage string    `db:"error_message"`
	CreatedAt    time.Time `db:"created_at"`
}

func (r logRow) entry() audit.Entry {
	return audit.Entry{
		ID:           r.ID,
		RunID:        r.RunID,
		Module:       r.Module,
		RefreshType:  audit.RefreshType(r.RefreshType),
		Status:       audit.Status(r.Status),
		ItemsChecked: r.ItemsChecked,
		ItemsUpdated: r.ItemsUpdated,
		ItemsCreated: r.ItemsCreated,
		ItemsExpired: r.ItemsExpired,
		TokensUsed:   r.TokensUsed,
		Duration:     time.Duration(r.DurationMS) * time.Millisecond,
		ErrorMessage: r.ErrorMessage,
		CreatedAt:    r.CreatedAt.UTC(),
	}
}

const logColumns = `id, run_id, module, refresh_type, status, items_checked, items_updated, items_created,
	items_expired, tokens_used, duration_ms, error_message, created_at`

// Append implements audit.Log.
func (s *Store) Append(ctx context.Context, e audit.Entry) (audit.Entry, error) {
	e = audit.Stamp(e, s.now())
	e.CreatedAt = e.CreatedAt.UTC()

	_, err := s.db.ExecContext(ctx, s.db.Rebind(`INSERT INTO refresh_logs (`+logColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		e.ID, e.RunID, e.Module, string(e.RefreshType), string(e.Status),
		e.ItemsChecked, e.ItemsUpdated, e.ItemsCreated, e.ItemsExpired,
		e.TokensUsed, e.Duration.Milliseconds(), e.ErrorMessage, e.CreatedAt,
	)
	if err != nil {
		return audit.Entry{}, errors.WrapResource("append", "refresh log", e.Module, err)
	}
	return e, nil
}

// List implements audit.Log.
func (s *Store) List(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		where = append(where, cond)
		args = append(args, arg)
	}
	if f.Module != "" {
		add("module = ?", f.Module)
	}
	if f.RefreshType != "" {
		add("refresh_type = ?", string(f.RefreshType))
	}
	if f.Status != "" {
		add("status = ?", string(f.Status))
	}
	if f.RunID != "" {
		add("run_id = ?", f.RunID)
	}
	if !f.Since.IsZero() {
		add("created_at >= ?", f.Since.UTC())
	}

	query := `SELECT ` + logColumns + ` FROM refresh_logs`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, f.Limit)
	}

	var rows []logRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, errors.WrapResource("list", "refresh logs", "", err)
	}
	out := make([]audit.Entry, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.entry())
	}
	return out, nil
}

// Prune implements audit.Log.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM refresh_logs WHERE created_at < ?`), cutoff.UTC())
	if err != nil {
		return 0, errors.WrapResource("prune", "refresh logs", "", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.WrapResource("prune", "refresh logs", "", err)
	}
	return int(n), nil
}

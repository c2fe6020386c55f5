package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rushteam/hybridrec/core"
)

const interactionSchema = `
CREATE TABLE IF NOT EXISTS user_interactions (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id          TEXT    NOT NULL,
	product_id       TEXT    NOT NULL,
	interaction_type TEXT    NOT NULL,
	search_query     TEXT    NOT NULL DEFAULT '',
	category         TEXT    NOT NULL DEFAULT '',
	created_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_user_interactions_user_created ON user_interactions (user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_user_interactions_created ON user_interactions (created_at);
`

const (
	insertInteractionSQL = `INSERT INTO user_interactions (user_id, product_id, interaction_type, search_query, category, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	selectColumns        = `SELECT id, user_id, product_id, interaction_type, search_query, category, created_at FROM user_interactions`
	queryByUserSQL       = selectColumns + ` WHERE user_id = ? AND created_at >= ? ORDER BY created_at DESC, id DESC LIMIT ?`
	querySinceSQL        = selectColumns + ` WHERE created_at >= ? ORDER BY created_at DESC, id DESC LIMIT ?`
	countByUserSQL       = `SELECT COUNT(*) FROM user_interactions WHERE user_id = ?`
	recentUsersSQL       = `SELECT user_id, MAX(created_at) AS last_at FROM user_interactions GROUP BY user_id ORDER BY last_at DESC, user_id ASC LIMIT ?`
)

// SQLInteractionStore 是基于 SQL（默认 SQLite）的行为日志。
// created_at 以 UTC 微秒整数存储，保证排序与索引有效。
type SQLInteractionStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLInteractionStore 包装已打开的连接，不做建表。
func NewSQLInteractionStore(db *sql.DB) *SQLInteractionStore {
	return &SQLInteractionStore{db: db, now: time.Now}
}

// OpenSQLiteInteractionStore 打开 SQLite 文件（或 ":memory:"）并建表。
func OpenSQLiteInteractionStore(ctx context.Context, dsn string) (*SQLInteractionStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, core.ErrStoreUnavailable.Wrap(err)
	}
	// SQLite 单写者；内存库每个连接各自独立，因此固定为一个连接。
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, core.ErrStoreUnavailable.Wrap(err)
	}
	s := NewSQLInteractionStore(db)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate 幂等建表建索引。
func (s *SQLInteractionStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, interactionSchema); err != nil {
		return core.ErrStoreUnavailable.Wrap(err)
	}
	return nil
}

func (s *SQLInteractionStore) Append(ctx context.Context, in *core.Interaction) error {
	if err := core.ValidateInteraction(in); err != nil {
		return err
	}
	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	createdAt = createdAt.UTC().Truncate(time.Microsecond)

	res, err := s.db.ExecContext(ctx, insertInteractionSQL,
		in.UserID, in.ProductID, string(in.Type), in.Query, in.Category, createdAt.UnixMicro())
	if err != nil {
		return core.ErrStoreUnavailable.Wrap(err)
	}
	if id, err := res.LastInsertId(); err == nil {
		in.ID = id
	}
	in.CreatedAt = createdAt
	return nil
}

func (s *SQLInteractionStore) QueryByUser(ctx context.Context, userID string, opts core.QueryOptions) ([]core.Interaction, error) {
	rows, err := s.db.QueryContext(ctx, queryByUserSQL, userID, sinceMicros(opts.Since), sqlLimit(opts.Limit))
	if err != nil {
		return nil, core.ErrStoreUnavailable.Wrap(err)
	}
	return scanInteractions(rows)
}

func (s *SQLInteractionStore) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, countByUserSQL, userID).Scan(&n); err != nil {
		return 0, core.ErrStoreUnavailable.Wrap(err)
	}
	return n, nil
}

func (s *SQLInteractionStore) RecentUsers(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, recentUsersSQL, sqlLimit(limit))
	if err != nil {
		return nil, core.ErrStoreUnavailable.Wrap(err)
	}
	defer rows.Close()

	users := make([]string, 0)
	for rows.Next() {
		var (
			user   string
			lastAt int64
		)
		if err := rows.Scan(&user, &lastAt); err != nil {
			return nil, core.ErrStoreUnavailable.Wrap(err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, core.ErrStoreUnavailable.Wrap(err)
	}
	return users, nil
}

func (s *SQLInteractionStore) QuerySince(ctx context.Context, since time.Time, limit int) ([]core.Interaction, error) {
	rows, err := s.db.QueryContext(ctx, querySinceSQL, sinceMicros(since), sqlLimit(limit))
	if err != nil {
		return nil, core.ErrStoreUnavailable.Wrap(err)
	}
	return scanInteractions(rows)
}

func (s *SQLInteractionStore) Close() error {
	return s.db.Close()
}

func scanInteractions(rows *sql.Rows) ([]core.Interaction, error) {
	defer rows.Close()

	out := make([]core.Interaction, 0)
	for rows.Next() {
		var (
			in        core.Interaction
			typ       string
			createdAt int64
		)
		if err := rows.Scan(&in.ID, &in.UserID, &in.ProductID, &typ, &in.Query, &in.Category, &createdAt); err != nil {
			return nil, core.ErrStoreUnavailable.Wrap(err)
		}
		in.Type = core.InteractionType(typ)
		in.CreatedAt = time.UnixMicro(createdAt).UTC()
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, core.ErrStoreUnavailable.Wrap(err)
	}
	return out, nil
}

func sinceMicros(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixMicro()
}

// sqlLimit SQLite 中 LIMIT -1 表示不限。
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

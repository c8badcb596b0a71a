package usagelog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"

	"HSEWrapped/internal/domain"
	"HSEWrapped/internal/ports"
)

const requestCounter = "total_requests"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS usage_users (
		id                  BIGINT PRIMARY KEY,
		username            TEXT NOT NULL DEFAULT '',
		first_name          TEXT NOT NULL DEFAULT '',
		last_name           TEXT NOT NULL DEFAULT '',
		chat_id             BIGINT NOT NULL,
		first_seen          TIMESTAMPTZ NOT NULL,
		last_seen           TIMESTAMPTZ NOT NULL,
		start_count         INTEGER NOT NULL DEFAULT 0,
		portfolio_requests  INTEGER NOT NULL DEFAULT 0,
		successful_requests INTEGER NOT NULL DEFAULT 0,
		failed_requests     INTEGER NOT NULL DEFAULT 0,
		total_images        INTEGER NOT NULL DEFAULT 0,
		last_portfolio_url  TEXT NOT NULL DEFAULT '',
		last_request_time   TIMESTAMPTZ,
		last_success_time   TIMESTAMPTZ,
		last_student_name   TEXT NOT NULL DEFAULT '',
		last_student_stats  JSONB,
		last_error          TEXT NOT NULL DEFAULT '',
		last_error_time     TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS usage_counters (
		name  TEXT PRIMARY KEY,
		value BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS usage_broadcasts (
		id           BIGSERIAL PRIMARY KEY,
		kind         TEXT NOT NULL,
		sent_count   INTEGER NOT NULL,
		total_count  INTEGER NOT NULL,
		success_rate DOUBLE PRECISION NOT NULL,
		sent_at      TIMESTAMPTZ NOT NULL
	)`,
}

var userColumns = []string{
	"id", "username", "first_name", "last_name", "chat_id", "first_seen", "last_seen",
	"start_count", "portfolio_requests", "successful_requests", "failed_requests", "total_images",
	"last_portfolio_url", "last_request_time", "last_success_time", "last_student_name",
	"last_student_stats", "last_error", "last_error_time",
}

// PostgresStore persists the usage log into Postgres.
type PostgresStore struct {
	db    *sql.DB
	psql  sq.StatementBuilderType
	clock func() time.Time
}

var _ ports.UsageLog = (*PostgresStore)(nil)

// NewPostgresStore wires a sql.DB implementation. The schema must exist; see Migrate.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db:    db,
		psql:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		clock: time.Now,
	}
}

// OpenPostgres connects through the pgx driver and applies the schema.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := NewPostgresStore(db)
	if err := store.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Migrate creates the usage tables when missing.
func (r *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate usage schema: %w", err)
		}
	}
	return nil
}

// RecordStart inserts the caller or refreshes an existing row.
func (r *PostgresStore) RecordStart(ctx context.Context, caller domain.Caller) error {
	now := r.clock().UTC()
	query, args, err := r.psql.Insert("usage_users").
		Columns("id", "username", "first_name", "last_name", "chat_id", "first_seen", "last_seen", "start_count").
		Values(caller.ID, caller.Username, caller.FirstName, caller.LastName, caller.ChatID, now, now, 1).
		Suffix(`ON CONFLICT (id) DO UPDATE
			SET last_seen = EXCLUDED.last_seen,
			    start_count = usage_users.start_count + 1,
			    chat_id = EXCLUDED.chat_id,
			    username = COALESCE(NULLIF(EXCLUDED.username, ''), usage_users.username),
			    first_name = COALESCE(NULLIF(EXCLUDED.first_name, ''), usage_users.first_name),
			    last_name = COALESCE(NULLIF(EXCLUDED.last_name, ''), usage_users.last_name)`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build start upsert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert start: %w", err)
	}
	return nil
}

// RecordRequest bumps the user's request counters and the global total in one transaction.
func (r *PostgresStore) RecordRequest(ctx context.Context, caller domain.Caller, portfolioURL string) error {
	now := r.clock().UTC()

	userQuery, userArgs, err := r.psql.Update("usage_users").
		Set("portfolio_requests", sq.Expr("portfolio_requests + 1")).
		Set("last_seen", now).
		Set("last_portfolio_url", portfolioURL).
		Set("last_request_time", now).
		Where(sq.Eq{"id": caller.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build request update: %w", err)
	}

	counterQuery, counterArgs, err := r.psql.Insert("usage_counters").
		Columns("name", "value").
		Values(requestCounter, 1).
		Suffix("ON CONFLICT (name) DO UPDATE SET value = usage_counters.value + 1").
		ToSql()
	if err != nil {
		return fmt.Errorf("build counter upsert: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin request tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, userQuery, userArgs...); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("update request: %w", err)
	}
	if _, err := tx.ExecContext(ctx, counterQuery, counterArgs...); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("bump request counter: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit request tx: %w", err)
	}
	return nil
}

// RecordSuccess stores the delivered image count and the report snapshot.
func (r *PostgresStore) RecordSuccess(ctx context.Context, caller domain.Caller, images int, summary domain.Summary) error {
	raw, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}

	now := r.clock().UTC()
	return r.exec(ctx, "update success", r.psql.Update("usage_users").
		Set("successful_requests", sq.Expr("successful_requests + 1")).
		Set("total_images", sq.Expr("total_images + ?", images)).
		Set("last_seen", now).
		Set("last_success_time", now).
		Set("last_student_name", summary.StudentName).
		Set("last_student_stats", string(raw)).
		Where(sq.Eq{"id": caller.ID}))
}

// RecordFailure stores the failure label.
func (r *PostgresStore) RecordFailure(ctx context.Context, caller domain.Caller, kind string) error {
	now := r.clock().UTC()
	return r.exec(ctx, "update failure", r.psql.Update("usage_users").
		Set("failed_requests", sq.Expr("failed_requests + 1")).
		Set("last_seen", now).
		Set("last_error", kind).
		Set("last_error_time", now).
		Where(sq.Eq{"id": caller.ID}))
}

// RecordBroadcast appends a broadcast row and trims history to the newest ones.
func (r *PostgresStore) RecordBroadcast(ctx context.Context, rec domain.BroadcastRecord) error {
	if err := r.exec(ctx, "insert broadcast", r.psql.Insert("usage_broadcasts").
		Columns("kind", "sent_count", "total_count", "success_rate", "sent_at").
		Values(rec.Type, rec.SentCount, rec.TotalCount, rec.SuccessRate, rec.Timestamp.UTC())); err != nil {
		return err
	}

	return r.exec(ctx, "trim broadcasts", r.psql.Delete("usage_broadcasts").
		Where("id NOT IN (SELECT id FROM usage_broadcasts ORDER BY id DESC LIMIT ?)", maxBroadcasts))
}

// Stats aggregates the user table in a single query.
func (r *PostgresStore) Stats(ctx context.Context, now time.Time) (domain.UsageStats, error) {
	cutoff := now.Add(-activeWindowDays * 24 * time.Hour).UTC()
	query, args, err := r.psql.Select("COUNT(*)").
		Column(sq.Expr("COUNT(*) FILTER (WHERE last_seen > ?)", cutoff)).
		Column("COUNT(*) FILTER (WHERE successful_requests > 0)").
		Column("COALESCE(SUM(successful_requests), 0)").
		Column("COALESCE(SUM(failed_requests), 0)").
		Column("COALESCE(SUM(total_images), 0)").
		Column(sq.Expr("COALESCE((SELECT value FROM usage_counters WHERE name = ?), 0)", requestCounter)).
		From("usage_users").
		ToSql()
	if err != nil {
		return domain.UsageStats{}, fmt.Errorf("build stats query: %w", err)
	}

	var stats domain.UsageStats
	row := r.db.QueryRowContext(ctx, query, args...)
	if err := row.Scan(
		&stats.TotalUsers,
		&stats.ActiveUsers,
		&stats.SuccessfulUsers,
		&stats.TotalSuccessful,
		&stats.TotalFailed,
		&stats.TotalImages,
		&stats.TotalRequests,
	); err != nil {
		return domain.UsageStats{}, fmt.Errorf("query stats: %w", err)
	}
	return withRates(stats), nil
}

// TopUsers returns users ordered by portfolio requests.
func (r *PostgresStore) TopUsers(ctx context.Context, limit int) ([]domain.UserRecord, error) {
	builder := r.psql.Select(userColumns...).From("usage_users").OrderBy("portfolio_requests DESC", "id")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	return r.queryUsers(ctx, builder)
}

// Users returns the users passing filter.
func (r *PostgresStore) Users(ctx context.Context, filter domain.UserFilter, now time.Time) ([]domain.UserRecord, error) {
	builder := r.psql.Select(userColumns...).From("usage_users").OrderBy("id")
	if filter.ActiveDays > 0 {
		cutoff := now.Add(-time.Duration(filter.ActiveDays) * 24 * time.Hour).UTC()
		builder = builder.Where(sq.Gt{"last_seen": cutoff})
	}
	if filter.HasSuccessfulRequests {
		builder = builder.Where(sq.Gt{"successful_requests": 0})
	}
	if filter.MinRequests > 0 {
		builder = builder.Where(sq.GtOrEq{"portfolio_requests": filter.MinRequests})
	}
	return r.queryUsers(ctx, builder)
}

// Broadcasts returns the retained broadcast history, oldest first.
func (r *PostgresStore) Broadcasts(ctx context.Context) ([]domain.BroadcastRecord, error) {
	query, args, err := r.psql.Select("kind", "sent_count", "total_count", "success_rate", "sent_at").
		From("usage_broadcasts").OrderBy("id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build broadcasts query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query broadcasts: %w", err)
	}

	var result []domain.BroadcastRecord
	for rows.Next() {
		var rec domain.BroadcastRecord
		if err := rows.Scan(&rec.Type, &rec.SentCount, &rec.TotalCount, &rec.SuccessRate, &rec.Timestamp); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan broadcast: %w", err)
		}
		result = append(result, rec)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return result, nil
}

// Close releases the connection pool.
func (r *PostgresStore) Close() error {
	return r.db.Close()
}

type sqlizer interface {
	ToSql() (string, []any, error)
}

func (r *PostgresStore) exec(ctx context.Context, what string, stmt sqlizer) error {
	query, args, err := stmt.ToSql()
	if err != nil {
		return fmt.Errorf("build %s: %w", what, err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}

func (r *PostgresStore) queryUsers(ctx context.Context, builder sq.SelectBuilder) ([]domain.UserRecord, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build users query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}

	result := make([]domain.UserRecord, 0)
	for rows.Next() {
		rec, err := scanUser(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		result = append(result, rec)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return result, nil
}

func scanUser(rows *sql.Rows) (domain.UserRecord, error) {
	var (
		rec                                 domain.UserRecord
		requestTime, successTime, errorTime sql.NullTime
		studentStats                        []byte
	)
	if err := rows.Scan(
		&rec.ID, &rec.Username, &rec.FirstName, &rec.LastName, &rec.ChatID, &rec.FirstSeen, &rec.LastSeen,
		&rec.StartCount, &rec.PortfolioRequests, &rec.SuccessfulRequests, &rec.FailedRequests, &rec.TotalImages,
		&rec.LastPortfolioURL, &requestTime, &successTime, &rec.LastStudentName,
		&studentStats, &rec.LastError, &errorTime,
	); err != nil {
		return domain.UserRecord{}, fmt.Errorf("scan user: %w", err)
	}

	rec.LastRequestTime = nullTime(requestTime)
	rec.LastSuccessTime = nullTime(successTime)
	rec.LastErrorTime = nullTime(errorTime)
	if len(studentStats) > 0 {
		var summary domain.Summary
		if err := json.Unmarshal(studentStats, &summary); err != nil {
			return domain.UserRecord{}, fmt.Errorf("decode student stats for %d: %w", rec.ID, err)
		}
		rec.LastStudentStats = &summary
	}
	return rec, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	return timePtr(t.Time)
}

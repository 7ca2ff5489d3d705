package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'

	"github.com/streamwall/streamsync/extract"
)

// Postgres is the primary record store, backed by the streams table managed
// by db.Migrate. It is the reconciler's source of truth for which URLs exist.
type Postgres struct {
	DB *sql.DB
}

// NewPostgres wraps an open database handle as the primary store.
func NewPostgres(db *sql.DB) *Postgres { return &Postgres{DB: db} }

func (p *Postgres) Name() string { return "primary" }

const streamColumns = `id, url, platform, COALESCE(city,''), COALESCE(state,''), status, COALESCE(source,''), created_at, updated_at, COALESCE(last_checked_at, 'epoch'::timestamptz)`

// Create upserts by URL. On conflict the incoming non-empty fields win and
// updated_at advances; status is left alone so a re-sighting of a live stream
// does not knock it back to checking.
func (p *Postgres) Create(ctx context.Context, rec Record) (Record, error) {
	status := rec.Status
	if status == "" {
		status = StatusChecking
	}
	row := p.DB.QueryRowContext(ctx, `
		INSERT INTO streams (url, platform, city, state, status, source, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3,''), NULLIF($4,''), $5, NULLIF($6,''), NOW(), NOW())
		ON CONFLICT (url) DO UPDATE SET
			platform = CASE WHEN EXCLUDED.platform <> 'unknown' THEN EXCLUDED.platform ELSE streams.platform END,
			city = COALESCE(EXCLUDED.city, streams.city),
			state = COALESCE(EXCLUDED.state, streams.state),
			source = COALESCE(EXCLUDED.source, streams.source),
			updated_at = NOW()
		RETURNING `+streamColumns,
		rec.URL, string(rec.Platform), rec.City, rec.State, status, rec.Source)
	return scanStream(row)
}

func (p *Postgres) FindByURL(ctx context.Context, url string) (Record, error) {
	row := p.DB.QueryRowContext(ctx, `SELECT `+streamColumns+` FROM streams WHERE url=$1`, url)
	rec, err := scanStream(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

func (p *Postgres) Update(ctx context.Context, id string, patch Patch) (Record, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("primary store id %q: %w", id, ErrNotFound)
	}
	row := p.DB.QueryRowContext(ctx, `
		UPDATE streams SET
			platform = COALESCE($2, platform),
			city = COALESCE($3, city),
			state = COALESCE($4, state),
			status = COALESCE($5, status),
			source = COALESCE($6, source),
			last_checked_at = COALESCE($7, last_checked_at),
			updated_at = NOW()
		WHERE id=$1
		RETURNING `+streamColumns,
		n, platformArg(patch.Platform), patch.City, patch.State, patch.Status, patch.Source, patch.LastCheckedAt)
	rec, err := scanStream(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

// ListStatuses returns every non-archived stream's URL and current status.
func (p *Postgres) ListStatuses(ctx context.Context) ([]StatusEntry, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT id, url, status FROM streams WHERE status <> $1 ORDER BY id`, StatusArchived)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StatusEntry
	for rows.Next() {
		var e StatusEntry
		var id int64
		if err := rows.Scan(&id, &e.URL, &e.Status); err != nil {
			return nil, err
		}
		e.ID = strconv.FormatInt(id, 10)
		out = append(out, e)
	}
	return out, rows.Err()
}

func platformArg(p *extract.Platform) *string {
	if p == nil {
		return nil
	}
	s := string(*p)
	return &s
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStream(row rowScanner) (Record, error) {
	var rec Record
	var id int64
	var platform string
	var checked time.Time
	if err := row.Scan(&id, &rec.URL, &platform, &rec.City, &rec.State, &rec.Status, &rec.Source, &rec.CreatedAt, &rec.UpdatedAt, &checked); err != nil {
		return Record{}, err
	}
	rec.ID = strconv.FormatInt(id, 10)
	rec.Platform = extract.Platform(platform)
	if checked.Year() > 1970 {
		rec.LastCheckedAt = checked
	}
	return rec, nil
}

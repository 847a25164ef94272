package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lucsky/cuid"
	"github.com/truemediaorg/postrelay/database/db"
	"github.com/truemediaorg/postrelay/model"
)

// Database records what was resolved and relayed. It never stores URLs or media.
type Database struct {
	connString string
	pool       *pgxpool.Pool
}

func NewDatabase(connString string) *Database {
	return &Database{
		connString: connString,
	}
}

func (d *Database) Connect(ctx context.Context) error {
	var err error
	d.pool, err = pgxpool.New(ctx, d.connString)
	if err != nil {
		return err
	}
	return nil
}

func (d *Database) Disconnect() {
	d.pool.Close()
}

func (d *Database) AddResolution(ctx context.Context, identifier string, selection model.Selection, assetCount int, outcome string) error {
	// don't really care about the result, as long as this succeeds
	_, err := d.pool.Exec(ctx, `
	INSERT INTO resolution_log (id, identifier, preference, mode, asset_count, outcome, resolved) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		cuid.New(),
		identifier,
		selection.Preference,
		selection.Mode.String(),
		assetCount,
		outcome,
		time.Now().UTC(), // the DB stores timezones and assumes UTC
	)
	if err != nil {
		return err
	}
	return nil
}

func (d *Database) AddRelay(ctx context.Context, filename string, mode db.RelayMode, written int, omitted int, bytes int64, outcome string) error {
	_, err := d.pool.Exec(ctx, `
	INSERT INTO relay_log (id, filename, mode, entries_written, entries_omitted, bytes, outcome, relayed) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		cuid.New(),
		filename,
		mode,
		written,
		omitted,
		bytes,
		outcome,
		time.Now().UTC(),
	)
	if err != nil {
		return err
	}
	return nil
}

func (d *Database) GetRecentResolutions(ctx context.Context, limit int) ([]model.ResolutionActivity, error) {
	var activities []model.ResolutionActivity
	rows, err := d.pool.Query(ctx, `
	SELECT
		id,
		identifier,
		preference,
		mode,
		asset_count,
		outcome,
		resolved
	FROM resolution_log
	ORDER BY resolved DESC
	LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}

	raws, err := pgx.CollectRows(rows, pgx.RowToStructByName[db.ResolutionLog])
	if err != nil {
		return nil, err
	}

	for _, raw := range raws {
		activity, err := model.ResolutionActivityFromLog(raw)
		if err != nil {
			return nil, err
		}
		activities = append(activities, *activity)
	}
	return activities, nil
}

func (d *Database) GetRecentRelays(ctx context.Context, limit int) ([]db.RelayLog, error) {
	rows, err := d.pool.Query(ctx, `
	SELECT
		id,
		filename,
		mode,
		entries_written,
		entries_omitted,
		bytes,
		outcome,
		relayed
	FROM relay_log
	ORDER BY relayed DESC
	LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, pgx.RowToStructByName[db.RelayLog])
}

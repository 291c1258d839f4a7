package catalog

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/onnwee/bingo-ledger/db"
	"github.com/onnwee/bingo-ledger/semver"
	"github.com/onnwee/bingo-ledger/telemetry"
)

// Week is one weekly challenge set. A week is drafted unpublished, filled
// with seeds, and then published exactly once; publication stamps PublishedAt
// and the announcement MessageRef.
type Week struct {
	ID     int64
	Number int
	// Version and GameVersion pin the oldest tool and game release the week
	// is valid for; the Max pair, when set, closes the range.
	Version        semver.Version
	GameVersion    semver.Version
	MaxVersion     *semver.Version
	MaxGameVersion *semver.Version
	Description    string
	PublishedAt    time.Time // zero while unpublished
	MessageRef     string
}

// Published reports whether the week has been announced.
func (w Week) Published() bool { return !w.PublishedAt.IsZero() }

// CreateWeekParams carries the fields needed to draft a week. A zero Number
// means "next after the highest known week number".
type CreateWeekParams struct {
	Number         int
	Version        semver.Version
	GameVersion    semver.Version
	MaxVersion     *semver.Version
	MaxGameVersion *semver.Version
	Description    string
}

const weekColumns = `
	w.id, w.week_number,
	v.major, v.minor, v.patch,
	gv.major, gv.minor, gv.patch,
	mv.major, mv.minor, mv.patch,
	mgv.major, mgv.minor, mgv.patch,
	w.description, w.published_at_unix_millis, w.message_ref`

const weekFrom = `
	FROM weeks w
	JOIN tool_versions v ON v.id = w.version_id
	JOIN game_versions gv ON gv.id = w.game_version_id
	LEFT JOIN tool_versions mv ON mv.id = w.max_version_id
	LEFT JOIN game_versions mgv ON mgv.id = w.max_game_version_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWeek(row rowScanner) (Week, error) {
	var (
		w                      Week
		maxMaj, maxMin, maxPat sql.NullInt64
		mgMaj, mgMin, mgPat    sql.NullInt64
		desc, ref              sql.NullString
		publishedAt            sql.NullInt64
	)
	err := row.Scan(
		&w.ID, &w.Number,
		&w.Version.Major, &w.Version.Minor, &w.Version.Patch,
		&w.GameVersion.Major, &w.GameVersion.Minor, &w.GameVersion.Patch,
		&maxMaj, &maxMin, &maxPat,
		&mgMaj, &mgMin, &mgPat,
		&desc, &publishedAt, &ref,
	)
	if err != nil {
		return Week{}, err
	}
	if maxMaj.Valid {
		w.MaxVersion = &semver.Version{Major: int(maxMaj.Int64), Minor: int(maxMin.Int64), Patch: int(maxPat.Int64)}
	}
	if mgMaj.Valid {
		w.MaxGameVersion = &semver.Version{Major: int(mgMaj.Int64), Minor: int(mgMin.Int64), Patch: int(mgPat.Int64)}
	}
	w.Description = desc.String
	w.MessageRef = ref.String
	if publishedAt.Valid {
		w.PublishedAt = time.UnixMilli(publishedAt.Int64)
	}
	return w, nil
}

// CreateWeek drafts a new unpublished week. The version range is validated
// (max bounds must not precede the base versions) and at most one unpublished
// week may exist per number; a second draft with the same number fails with a
// ConstraintViolation.
func (c *Catalog) CreateWeek(ctx context.Context, p CreateWeekParams) (Week, error) {
	if p.MaxVersion != nil && p.MaxVersion.Compare(p.Version) < 0 {
		return Week{}, &db.ValidationError{Field: "max_version", Reason: "max tool version precedes the base version"}
	}
	if p.MaxGameVersion != nil && p.MaxGameVersion.Compare(p.GameVersion) < 0 {
		return Week{}, &db.ValidationError{Field: "max_game_version", Reason: "max game version precedes the base version"}
	}
	if p.Number < 0 {
		return Week{}, &db.ValidationError{Field: "week_number", Reason: "must not be negative"}
	}
	if p.Number == 0 {
		next, err := c.NextWeekNumber(ctx)
		if err != nil {
			return Week{}, err
		}
		p.Number = next
	}

	versionID, err := c.GetOrCreateVersion(ctx, PoolTool, p.Version)
	if err != nil {
		return Week{}, err
	}
	gameVersionID, err := c.GetOrCreateVersion(ctx, PoolGame, p.GameVersion)
	if err != nil {
		return Week{}, err
	}
	var maxVersionID, maxGameVersionID any
	if p.MaxVersion != nil {
		id, err := c.GetOrCreateVersion(ctx, PoolTool, *p.MaxVersion)
		if err != nil {
			return Week{}, err
		}
		maxVersionID = id
	}
	if p.MaxGameVersion != nil {
		id, err := c.GetOrCreateVersion(ctx, PoolGame, *p.MaxGameVersion)
		if err != nil {
			return Week{}, err
		}
		maxGameVersionID = id
	}

	res, err := c.db.ExecContext(ctx, `
		INSERT INTO weeks(week_number, version_id, game_version_id, max_version_id, max_game_version_id, description)
		VALUES (?, ?, ?, ?, ?, NULLIF(?, ''))`,
		p.Number, versionID, gameVersionID, maxVersionID, maxGameVersionID, p.Description)
	if err != nil {
		return Week{}, db.MapError(err, "create week", "one unpublished week per number")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Week{}, &db.StorageError{Op: "create week", Err: err}
	}
	c.log.InfoContext(ctx, "week drafted", "week_id", id, "week_number", p.Number)
	return c.GetWeek(ctx, id)
}

// GetWeek returns the week stored under id.
func (c *Catalog) GetWeek(ctx context.Context, id int64) (Week, error) {
	row := c.db.QueryRowContext(ctx, `SELECT`+weekColumns+weekFrom+` WHERE w.id = ?`, id)
	w, err := scanWeek(row)
	if err != nil {
		return Week{}, db.MapError(err, "get week", "")
	}
	return w, nil
}

// GetWeekByNumber returns the week carrying number, preferring a still
// unpublished draft over published history; among published weeks the most
// recently announced wins.
func (c *Catalog) GetWeekByNumber(ctx context.Context, number int) (Week, error) {
	row := c.db.QueryRowContext(ctx, `SELECT`+weekColumns+weekFrom+`
		WHERE w.week_number = ?
		ORDER BY w.published_at_unix_millis IS NOT NULL, w.published_at_unix_millis DESC
		LIMIT 1`, number)
	w, err := scanWeek(row)
	if err != nil {
		return Week{}, db.MapError(err, "get week by number", "")
	}
	return w, nil
}

// GetCurrentWeek returns the most recently published week, or ErrNotFound
// when nothing has been published yet.
func (c *Catalog) GetCurrentWeek(ctx context.Context) (Week, error) {
	row := c.db.QueryRowContext(ctx, `SELECT`+weekColumns+weekFrom+`
		WHERE w.published_at_unix_millis IS NOT NULL
		ORDER BY w.published_at_unix_millis DESC
		LIMIT 1`)
	w, err := scanWeek(row)
	if err != nil {
		return Week{}, db.MapError(err, "get current week", "")
	}
	return w, nil
}

// NextWeekNumber returns one past the highest week number on record, or 1 for
// an empty catalog.
func (c *Catalog) NextWeekNumber(ctx context.Context) (int, error) {
	var next int
	err := c.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(week_number), 0) + 1 FROM weeks`).Scan(&next)
	if err != nil {
		return 0, db.MapError(err, "next week number", "")
	}
	return next, nil
}

// FilterWeeks returns weeks whose number starts with the typed digits, newest
// number first. With unpublishedOnly set, published history is excluded.
func (c *Catalog) FilterWeeks(ctx context.Context, partial string, unpublishedOnly bool, limit int) ([]Week, error) {
	if partial != "" {
		if _, err := strconv.Atoi(partial); err != nil {
			return nil, nil
		}
	}
	if limit <= 0 {
		limit = 25
	}
	query := `SELECT` + weekColumns + weekFrom + `
		WHERE CAST(w.week_number AS TEXT) LIKE ? || '%'`
	if unpublishedOnly {
		query += ` AND w.published_at_unix_millis IS NULL`
	}
	query += `
		ORDER BY w.week_number DESC
		LIMIT ?`
	rows, err := c.db.QueryContext(ctx, query, partial, limit)
	if err != nil {
		return nil, db.MapError(err, "filter weeks", "")
	}
	defer rows.Close()

	var out []Week
	for rows.Next() {
		w, err := scanWeek(rows)
		if err != nil {
			return nil, &db.StorageError{Op: "scan week", Err: err}
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, &db.StorageError{Op: "filter weeks", Err: err}
	}
	return out, nil
}

// PublishWeek marks the week as announced under messageRef. Publishing is a
// one-way transition; a second publish fails with a ConstraintViolation.
func (c *Catalog) PublishWeek(ctx context.Context, id int64, messageRef string) (Week, error) {
	res, err := c.db.ExecContext(ctx, `
		UPDATE weeks SET published_at_unix_millis = ?, message_ref = ?
		WHERE id = ? AND published_at_unix_millis IS NULL`,
		c.now().UnixMilli(), messageRef, id)
	if err != nil {
		return Week{}, db.MapError(err, "publish week", "")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Week{}, &db.StorageError{Op: "publish week", Err: err}
	}
	if n == 0 {
		w, err := c.GetWeek(ctx, id)
		if err != nil {
			return Week{}, err
		}
		if w.Published() {
			return Week{}, &db.ConstraintViolation{Constraint: "week already published"}
		}
		return Week{}, db.ErrNotFound
	}
	if telemetry.WeeksPublished != nil {
		telemetry.WeeksPublished.Inc()
	}
	c.log.InfoContext(ctx, "week published", "week_id", id, "message_ref", messageRef)
	return c.GetWeek(ctx, id)
}

// DeleteWeek removes the week and, through the schema's cascade, its seeds
// and their scores.
func (c *Catalog) DeleteWeek(ctx context.Context, id int64) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM weeks WHERE id = ?`, id)
	if err != nil {
		return db.MapError(err, "delete week", "")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &db.StorageError{Op: "delete week", Err: err}
	}
	if n == 0 {
		return db.ErrNotFound
	}
	c.log.InfoContext(ctx, "week deleted", "week_id", id)
	return nil
}

package catalog

import (
	"context"
	"strconv"

	"github.com/onnwee/bingo-ledger/db"
	"github.com/onnwee/bingo-ledger/semver"
)

// Pool selects which version table an operation works against: the challenge
// tool's own releases or the game's releases.
type Pool int

const (
	PoolTool Pool = iota
	PoolGame
)

func (p Pool) table() string {
	if p == PoolGame {
		return "game_versions"
	}
	return "tool_versions"
}

func (p Pool) String() string {
	if p == PoolGame {
		return "game"
	}
	return "tool"
}

// GetOrCreateVersion resolves v to its row id in the pool, inserting it on
// first sight. Repeated calls with the same version return the same id.
func (c *Catalog) GetOrCreateVersion(ctx context.Context, pool Pool, v semver.Version) (int64, error) {
	table := pool.table()
	var id int64
	err := c.db.QueryRowContext(ctx,
		`SELECT id FROM `+table+` WHERE major = ? AND minor = ? AND patch = ?`,
		v.Major, v.Minor, v.Patch).Scan(&id)
	if err == nil {
		return id, nil
	}
	if mapped := db.MapError(err, "lookup "+pool.String()+" version", ""); mapped != db.ErrNotFound {
		return 0, mapped
	}

	res, err := c.db.ExecContext(ctx,
		`INSERT INTO `+table+`(major, minor, patch) VALUES (?, ?, ?)`,
		v.Major, v.Minor, v.Patch)
	if err != nil {
		// A concurrent insert of the same triple loses the race but the row
		// now exists; re-read it.
		if db.IsConstraint(db.MapError(err, "", table)) {
			err = c.db.QueryRowContext(ctx,
				`SELECT id FROM `+table+` WHERE major = ? AND minor = ? AND patch = ?`,
				v.Major, v.Minor, v.Patch).Scan(&id)
			if err != nil {
				return 0, db.MapError(err, "re-lookup "+pool.String()+" version", "")
			}
			return id, nil
		}
		return 0, db.MapError(err, "insert "+pool.String()+" version", table)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, &db.StorageError{Op: "insert " + pool.String() + " version", Err: err}
	}
	return id, nil
}

// GetVersion returns the version stored under id in the pool.
func (c *Catalog) GetVersion(ctx context.Context, pool Pool, id int64) (semver.Version, error) {
	var v semver.Version
	err := c.db.QueryRowContext(ctx,
		`SELECT major, minor, patch FROM `+pool.table()+` WHERE id = ?`, id).
		Scan(&v.Major, &v.Minor, &v.Patch)
	if err != nil {
		return semver.Version{}, db.MapError(err, "get "+pool.String()+" version", "")
	}
	return v, nil
}

// FilterVersions returns known versions whose rendering starts with the given
// partial input, newest first. The partial input is a version prefix typed
// left to right, so "1.2" matches against major=1, minor=2%; a single typed
// part may still be the start of any position, which the shifted clauses
// cover: "21" matches 21.x.x as well as x.21.x and x.x.21.
func (c *Catalog) FilterVersions(ctx context.Context, pool Pool, partial string, limit int) ([]semver.Version, error) {
	maj, min, pat := splitPartial(partial)
	if limit <= 0 {
		limit = 25
	}

	query := `SELECT major, minor, patch FROM ` + pool.table() + `
		WHERE (CAST(major AS TEXT) LIKE ? || '%' AND CAST(minor AS TEXT) LIKE ? || '%' AND CAST(patch AS TEXT) LIKE ? || '%')
		   OR (? = '' AND CAST(minor AS TEXT) LIKE ? || '%' AND CAST(patch AS TEXT) LIKE ? || '%')
		   OR (? = '' AND ? = '' AND CAST(patch AS TEXT) LIKE ? || '%')
		ORDER BY major DESC, minor DESC, patch DESC
		LIMIT ?`
	rows, err := c.db.QueryContext(ctx, query,
		maj, min, pat,
		pat, maj, min,
		min, pat, maj,
		limit)
	if err != nil {
		return nil, db.MapError(err, "filter "+pool.String()+" versions", "")
	}
	defer rows.Close()

	var out []semver.Version
	for rows.Next() {
		var v semver.Version
		if err := rows.Scan(&v.Major, &v.Minor, &v.Patch); err != nil {
			return nil, &db.StorageError{Op: "scan version", Err: err}
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, &db.StorageError{Op: "filter versions", Err: err}
	}
	return out, nil
}

// splitPartial breaks a partially typed version into up to three numeric
// prefixes. Non-numeric parts become impossible matches rather than errors so
// a half-typed filter degrades to an empty result.
func splitPartial(partial string) (maj, min, pat string) {
	parts := [3]string{}
	i := 0
	for _, r := range partial {
		if r == '.' {
			i++
			if i > 2 {
				return "\x00", "\x00", "\x00"
			}
			continue
		}
		parts[i] += string(r)
	}
	for _, p := range parts {
		if p == "" {
			continue
		}
		if _, err := strconv.Atoi(p); err != nil {
			return "\x00", "\x00", "\x00"
		}
	}
	return parts[0], parts[1], parts[2]
}

package catalog

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/onnwee/bingo-ledger/db"
)

// Seed is one playable challenge inside a week. Its identity within the week
// is the (number, game type) pair: the same seed number may be reissued for a
// different discipline, practiced or not.
type Seed struct {
	ID          int64
	WeekID      int64
	Number      int64
	Mode        Mode
	Description string
	MessageRef  string
}

// Label renders the seed for announcements and pickers, e.g.
// "1234567 (blind points-in-20-mins)".
func (s Seed) Label() string {
	return strconv.FormatInt(s.Number, 10) + " (" + s.Mode.label() + ")"
}

const seedColumns = `id, week_id, seed_number, practiced, game_type, time_box_minutes, description, message_ref`

func scanSeed(row rowScanner) (Seed, error) {
	var (
		s         Seed
		practiced int
		gameType  int
		timeBox   sql.NullInt64
		desc, ref sql.NullString
	)
	err := row.Scan(&s.ID, &s.WeekID, &s.Number, &practiced, &gameType, &timeBox, &desc, &ref)
	if err != nil {
		return Seed{}, err
	}
	s.Mode = Mode{Type: GameType(gameType), Practiced: practiced == 1, TimeBoxMinutes: int(timeBox.Int64)}
	s.Description = desc.String
	s.MessageRef = ref.String
	return s, nil
}

// CreateSeed adds a seed to the week. The mode is validated first, and a
// duplicate (number, game type) pair within the week fails with a
// ConstraintViolation.
func (c *Catalog) CreateSeed(ctx context.Context, weekID, number int64, mode Mode, description string) (Seed, error) {
	if err := mode.Validate(); err != nil {
		return Seed{}, err
	}
	if number <= 0 {
		return Seed{}, &db.ValidationError{Field: "seed_number", Reason: "must be positive"}
	}

	var timeBox any
	if mode.Type.PointsBased() {
		timeBox = mode.TimeBoxMinutes
	}
	practiced := 0
	if mode.Practiced {
		practiced = 1
	}
	res, err := c.db.ExecContext(ctx, `
		INSERT INTO seeds(week_id, seed_number, practiced, game_type, time_box_minutes, description)
		VALUES (?, ?, ?, ?, ?, NULLIF(?, ''))`,
		weekID, number, practiced, int(mode.Type), timeBox, description)
	if err != nil {
		return Seed{}, db.MapError(err, "create seed", "one seed per (week, number, game type)")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Seed{}, &db.StorageError{Op: "create seed", Err: err}
	}
	c.log.InfoContext(ctx, "seed added", "seed_id", id, "week_id", weekID, "seed_number", number, "game_type", mode.Type.String())
	return c.GetSeed(ctx, id)
}

// GetSeed returns the seed stored under id.
func (c *Catalog) GetSeed(ctx context.Context, id int64) (Seed, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+seedColumns+` FROM seeds WHERE id = ?`, id)
	s, err := scanSeed(row)
	if err != nil {
		return Seed{}, db.MapError(err, "get seed", "")
	}
	return s, nil
}

// SeedsByWeek lists the week's seeds in announcement order: blind before
// practiced, then by discipline, then by seed number.
func (c *Catalog) SeedsByWeek(ctx context.Context, weekID int64) ([]Seed, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT `+seedColumns+` FROM seeds
		WHERE week_id = ?
		ORDER BY practiced, game_type, seed_number`, weekID)
	if err != nil {
		return nil, db.MapError(err, "seeds by week", "")
	}
	defer rows.Close()
	return collectSeeds(rows)
}

// FilterSeedsByWeek returns the week's seeds whose number starts with the
// typed digits, in announcement order.
func (c *Catalog) FilterSeedsByWeek(ctx context.Context, weekID int64, partial string, limit int) ([]Seed, error) {
	if partial != "" {
		if _, err := strconv.Atoi(partial); err != nil {
			return nil, nil
		}
	}
	if limit <= 0 {
		limit = 25
	}
	rows, err := c.db.QueryContext(ctx, `
		SELECT `+seedColumns+` FROM seeds
		WHERE week_id = ? AND CAST(seed_number AS TEXT) LIKE ? || '%'
		ORDER BY practiced, game_type, seed_number
		LIMIT ?`, weekID, partial, limit)
	if err != nil {
		return nil, db.MapError(err, "filter seeds", "")
	}
	defer rows.Close()
	return collectSeeds(rows)
}

func collectSeeds(rows *sql.Rows) ([]Seed, error) {
	var out []Seed
	for rows.Next() {
		s, err := scanSeed(rows)
		if err != nil {
			return nil, &db.StorageError{Op: "scan seed", Err: err}
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, &db.StorageError{Op: "collect seeds", Err: err}
	}
	return out, nil
}

// SetSeedMessageRef records the announcement reference for the seed.
func (c *Catalog) SetSeedMessageRef(ctx context.Context, id int64, ref string) error {
	res, err := c.db.ExecContext(ctx, `UPDATE seeds SET message_ref = ? WHERE id = ?`, ref, id)
	if err != nil {
		return db.MapError(err, "set seed message ref", "")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &db.StorageError{Op: "set seed message ref", Err: err}
	}
	if n == 0 {
		return db.ErrNotFound
	}
	return nil
}

// DeleteSeed removes the seed and, through the schema's cascade, every score
// submitted against it.
func (c *Catalog) DeleteSeed(ctx context.Context, id int64) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM seeds WHERE id = ?`, id)
	if err != nil {
		return db.MapError(err, "delete seed", "")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &db.StorageError{Op: "delete seed", Err: err}
	}
	if n == 0 {
		return db.ErrNotFound
	}
	c.log.InfoContext(ctx, "seed deleted", "seed_id", id)
	return nil
}
